package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/namikmesic/threadstream/internal/client"
	"github.com/namikmesic/threadstream/internal/config"
	"github.com/spf13/cobra"
)

func newStateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "state <thread-id>",
		Short: "Print the backend's state for a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printState(cmd.Context(), newClient(cfg), args[0], cmd.OutOrStdout())
		},
	}
}

func printState(ctx context.Context, cl *client.Client, threadID string, out io.Writer) error {
	st, err := cl.ThreadState(ctx, threadID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode thread state: %w", err)
	}
	fmt.Fprintln(out, string(data))
	if st.Interrupted() {
		fmt.Fprintln(out, "thread is interrupted and waiting for input")
	}
	return nil
}

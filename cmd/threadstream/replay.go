package main

import (
	"encoding/json"
	"fmt"

	"github.com/namikmesic/threadstream/internal/config"
	"github.com/namikmesic/threadstream/internal/jetstream"
	"github.com/namikmesic/threadstream/internal/session"
	"github.com/spf13/cobra"
)

func newReplayCmd(cfg *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Replay a recorded run from the tap through a fresh conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTapStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			onUpdate := func(session.Transcript) {}
			if !asJSON {
				onUpdate = newPrinter(out).Update
			}

			conv := session.NewConversation(jetstream.RunSource{JS: store.js, RunID: args[0]}, session.Config{
				ThreadID: "replay-" + args[0],
				Session:  session.Options{ReadBufferSize: cfg.ReadBufferSize},
				OnUpdate: onUpdate,
			})
			conv.Start(cmd.Context())
			outcome, _ := conv.Wait()

			if asJSON {
				data, err := json.MarshalIndent(conv.Transcript().Messages, "", "  ")
				if err != nil {
					return fmt.Errorf("encode transcript: %w", err)
				}
				fmt.Fprintln(out, string(data))
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "outcome=%s records=%d events=%d skipped=%d dropped_bytes=%d\n",
				outcome.Kind, outcome.Stats.Records, outcome.Stats.Events, outcome.Stats.Skipped, outcome.Stats.Dropped)
			if outcome.Kind == session.OutcomeError {
				return outcome.Err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final transcript as JSON")
	return cmd
}

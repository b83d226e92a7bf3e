package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/namikmesic/threadstream/internal/client"
	"github.com/namikmesic/threadstream/internal/config"
	"github.com/namikmesic/threadstream/internal/jetstream"
	"github.com/namikmesic/threadstream/internal/session"
	"github.com/namikmesic/threadstream/internal/transcript"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

func newChatCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat on a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfg.ThreadID, "thread", cfg.ThreadID, "existing thread id (a new thread is created when empty)")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl := newClient(cfg)
	if err := cl.Health(ctx); err != nil {
		log.Warn().Err(err).Str("base_url", cfg.BaseURL).Msg("backend health check failed")
	}

	threadID := cfg.ThreadID
	if threadID == "" {
		id, err := cl.CreateThread(ctx)
		if err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		threadID = id
	}

	opts := session.Options{ReadBufferSize: cfg.ReadBufferSize}
	if cfg.TapEnabled {
		store, err := openTapStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		tap := jetstream.NewTap(store.js, cfg.TapBufferSize, cfg.TapBatchSize, cfg.TapFlushMs)
		defer tap.Shutdown()
		opts.Recorder = tap
	}

	render := newPrinter(out)
	conv := session.NewConversation(cl, session.Config{
		ThreadID:    threadID,
		AssistantID: cfg.AssistantID,
		Session:     opts,
		OnUpdate:    render.Update,
	})

	log.Info().Str("thread_id", threadID).Str("assistant_id", cfg.AssistantID).Bool("tap", cfg.TapEnabled).Msg("chat ready")
	fmt.Fprintln(out, "commands: /cancel, /result <toolCallId> <json>, /state, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conv.Cancel()
			conv.Wait()
			return nil
		case line, ok := <-lines:
			if !ok {
				conv.Wait()
				return nil
			}
			err := handleLine(ctx, conv, cl, line, out)
			if errors.Is(err, errQuit) {
				conv.Cancel()
				conv.Wait()
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// handleLine executes one line of REPL input.
func handleLine(ctx context.Context, conv *session.Conversation, cl *client.Client, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := conv.Send(ctx, transcript.TextPart(line))
		return err
	}

	name, rest, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return errQuit

	case "/cancel":
		conv.Cancel()
		return nil

	case "/state":
		return printState(ctx, cl, conv.ThreadID(), out)

	case "/result":
		id, payload, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok || id == "" {
			return errors.New("usage: /result <toolCallId> <json>")
		}
		var result any
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return fmt.Errorf("parse tool result: %w", err)
		}
		var toolName string
		if part, found := conv.ToolCall(id); found {
			toolName = part.ToolName
		}
		_, err := conv.AddToolResult(ctx, id, toolName, result)
		return err

	default:
		return fmt.Errorf("unknown command %s", name)
	}
}

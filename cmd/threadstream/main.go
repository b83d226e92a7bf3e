package main

import (
	"fmt"
	"os"

	"github.com/namikmesic/threadstream/internal/client"
	"github.com/namikmesic/threadstream/internal/config"
	"github.com/namikmesic/threadstream/internal/jetstream"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "threadstream",
		Short:        "Chat with an agent backend over its streaming run protocol",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cfg.LogLevel)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "agent backend base URL")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "bearer token")
	flags.StringVar(&cfg.AssistantID, "assistant", cfg.AssistantID, "assistant id sent with each run")
	flags.StringToStringVar(&cfg.Headers, "header", cfg.Headers, "extra request header as name=value (repeatable)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.TapEnabled, "tap", cfg.TapEnabled, "record run bodies to the embedded JetStream tap")
	flags.StringVar(&cfg.TapStoreDir, "tap-dir", cfg.TapStoreDir, "JetStream store directory for the tap")

	root.AddCommand(newChatCmd(cfg), newReplayCmd(cfg), newStateCmd(cfg))
	return root
}

func setupLogging(levelName string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(client.Options{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
		Headers: cfg.HTTPHeaders(),
	})
}

// tapStore is the embedded JetStream server backing the wire tap.
type tapStore struct {
	server *jetstream.Server
	nc     *nats.Conn
	js     nats.JetStreamContext
}

func openTapStore(cfg *config.Config) (*tapStore, error) {
	srv, err := jetstream.NewServer(cfg.TapStoreDir)
	if err != nil {
		return nil, fmt.Errorf("start embedded NATS: %w", err)
	}

	nc, err := srv.Connect()
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}
	if err := jetstream.EnsureStream(js, cfg.TapMaxAge); err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("create JetStream stream: %w", err)
	}

	log.Debug().Str("store_dir", cfg.TapStoreDir).Msg("tap store ready")
	return &tapStore{server: srv, nc: nc, js: js}, nil
}

func (s *tapStore) Close() {
	s.nc.Drain()
	s.server.Shutdown()
}

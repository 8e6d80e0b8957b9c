package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/config"
	"github.com/stupiduntilnot/chatrelay/internal/logging"
)

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "Relay chat messages to an AI language model",
		Long: `chatrelay forwards each user's messages, together with that user's
conversation history, to a chat completion API and sends the reply back.
Configuration comes from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the environment (skipped if absent)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override RELAY_LOG_LEVEL")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newConsoleCmd(opts))
	cmd.AddCommand(newEventsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// load reads configuration and builds the process logger.
func (o *rootOptions) load() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

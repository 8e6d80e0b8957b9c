package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/telegram"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Relay Telegram messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.RequireTelegram(); err != nil {
				return err
			}

			r, closeJournal, err := buildRelay(cfg, history.NewStore(), "serve", logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeJournal(); err != nil {
					logger.Warn().Err(err).Msg("failed to close journal")
				}
			}()

			b, err := telegram.New(r, telegram.Options{
				Token:     cfg.TelegramBotToken,
				ServerURL: cfg.TelegramAPIURL,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b.Start(ctx)
			logger.Info().Msg("shutting down")
			return nil
		},
	}
}

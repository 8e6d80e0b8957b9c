package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/relay"
)

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the model from the terminal",
		Long: `console reads one message per line from stdin and prints each reply.
Commands such as /help and /clear behave as they do on Telegram.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			r, closeJournal, err := buildRelay(cfg, history.NewStore(), "console", logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeJournal(); err != nil {
					logger.Warn().Err(err).Msg("failed to close journal")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runConsole(ctx, r, userID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 1, "user id the console speaks as")
	return cmd
}

// runConsole relays each non-blank input line as userID and writes the reply.
func runConsole(ctx context.Context, h relay.Handler, userID int64, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		reply := relay.Dispatch(ctx, h, relay.Inbound{UserID: userID, ChatID: userID, Text: text})
		if _, err := fmt.Fprintln(out, reply); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

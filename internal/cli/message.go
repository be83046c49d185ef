package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbrandt/legate/internal/domain"
)

func newMessageCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "message [text]",
		Short: "Send one message through the relay and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			router, cleanup, err := buildRouter(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reply, err := router.Handle(ctx, domain.InboundMessage{
				ChatType:  domain.ChatTypeP2P,
				ChatID:    chatID,
				SenderID:  "local",
				Text:      text,
				Timestamp: time.Now(),
			})
			if err != nil {
				return err
			}
			if reply != "" {
				fmt.Println(reply)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat-id", "cli", "conversation id to attribute the message to")

	return cmd
}

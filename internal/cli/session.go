package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage conversation sessions",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionNewCmd())
	cmd.AddCommand(newSessionResetCmd())
	return cmd
}

func openStore() (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return session.Open(paths.Index(), cfg.WorkspaceCwd, log)
}

// chatIdentity parses the positional <chatType> <chatId> [senderId] triple.
func chatIdentity(args []string) (domain.ChatType, string, string, error) {
	chatType := domain.ChatType(args[0])
	if chatType != domain.ChatTypeP2P && chatType != domain.ChatTypeGroup {
		return "", "", "", fmt.Errorf("chatType must be %q or %q", domain.ChatTypeP2P, domain.ChatTypeGroup)
	}
	senderID := ""
	if len(args) == 3 {
		senderID = args[2]
	}
	if chatType == domain.ChatTypeGroup && senderID == "" {
		return "", "", "", fmt.Errorf("group chats need a senderId")
	}
	return chatType, args[1], senderID, nil
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sessions in the current workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			entries := store.Active()
			if len(entries) == 0 {
				fmt.Println("no active sessions")
				return nil
			}
			for _, e := range entries {
				title := e.Session.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%-28s thread=%s mode=%s model=%s  %s\n",
					e.Key, e.Session.ThreadID, e.Session.Mode, e.Session.Model, title)
			}
			return nil
		},
	}
}

func newSessionNewCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "new <chatType> <chatId> [senderId]",
		Short: "Start a fresh backend thread for a conversation, replacing any active session",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatType, chatID, senderID, err := chatIdentity(args)
			if err != nil {
				return err
			}

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

			sess, err := router.NewSession(ctx, chatType, chatID, senderID, domain.Mode(mode))
			if err != nil {
				return err
			}
			fmt.Printf("started %s thread=%s mode=%s\n",
				domain.SessionKey(chatType, chatID, senderID), sess.ThreadID, sess.Mode)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "collaboration mode (default, plan); empty uses the configured default")

	return cmd
}

func newSessionResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <chatType> <chatId> [senderId]",
		Short: "Discard the active session for a conversation (history stays)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatType, chatID, senderID, err := chatIdentity(args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			router, cleanup, err := buildRouter(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := router.Reset(chatType, chatID, senderID); err != nil {
				return err
			}
			fmt.Printf("reset %s\n", domain.SessionKey(chatType, chatID, senderID))
			return nil
		},
	}
}

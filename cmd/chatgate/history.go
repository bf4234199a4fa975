package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pario-ai/chatgate/pkg/config"
	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/history"
	"github.com/pario-ai/chatgate/pkg/models"
)

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse persisted conversations",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			sessions, err := s.ListSessions(context.Background(), limit)
			if err != nil {
				return err
			}
			fmt.Print(formatSessions(sessions))
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "max sessions to list")

	var output string
	showCmd := &cobra.Command{
		Use:     "show <session-id>",
		Aliases: []string{"export"},
		Short:   "Print a session transcript",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := context.Background()
			sess, err := s.Session(ctx, args[0])
			if err != nil {
				return err
			}
			records, err := s.Messages(ctx, sess.ID)
			if err != nil {
				return err
			}
			msgs := make([]models.Message, 0, len(records))
			for _, r := range records {
				msgs = append(msgs, r.Message)
			}

			text := gateway.FormatTranscript(sess.Model, msgs, time.Now())
			if output == "" {
				fmt.Print(text)
				return nil
			}
			if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
				return errors.Wrap(err, "write transcript")
			}
			fmt.Printf("Wrote %d messages to %s\n", len(msgs), output)
			return nil
		},
	}
	showCmd.Flags().StringVarP(&output, "output", "o", "", "write the transcript to a file")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func openHistory(configPath string) (*history.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	s, err := history.New(cfg.History.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	return s, nil
}

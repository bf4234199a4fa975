package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pario-ai/chatgate/pkg/audit"
	"github.com/pario-ai/chatgate/pkg/config"
	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
)

var auditStates = []gateway.State{
	gateway.StateCompleted,
	gateway.StateCancelled,
	gateway.StateFallback,
	gateway.StateRejected,
}

// auditCmd groups the audit subcommands around one --config flag.
type auditCmd struct {
	configPath string
}

func newAuditCmd() *cobra.Command {
	a := &auditCmd{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the outcome of past chat requests",
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "path to config file")

	cmd.AddCommand(a.searchCmd(), a.showCmd(), a.statsCmd(), a.cleanupCmd())
	return cmd
}

// with opens the audit database for the duration of fn.
func (a *auditCmd) with(ctx context.Context, fn func(context.Context, *audit.Logger) error) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	l, err := audit.New(cfg.Audit)
	if err != nil {
		return errors.Wrap(err, "open audit db")
	}
	defer func() { _ = l.Close() }()
	return fn(ctx, l)
}

func (a *auditCmd) searchCmd() *cobra.Command {
	var (
		opts      models.AuditQueryOpts
		since     string
		fallbacks bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List requests, newest first",
		Example: `  chatgate audit search --model general-assistant --since 24h
  chatgate audit search --fallbacks --since 2026-03-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fallbacks {
				opts.State = string(gateway.StateFallback)
			}
			if err := validateState(opts.State); err != nil {
				return err
			}
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				opts.Since = t
			}

			return a.with(cmd.Context(), func(ctx context.Context, l *audit.Logger) error {
				entries, err := l.Query(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Print(formatAuditEntries(entries))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Model, "model", "", "only requests to this model ID")
	f.StringVar(&opts.State, "state", "", "only this outcome: "+joinStates())
	f.BoolVar(&fallbacks, "fallbacks", false, "only requests answered by the fallback responder")
	f.StringVar(&opts.SessionID, "session", "", "only this chat session")
	f.StringVar(&since, "since", "", "a date (YYYY-MM-DD) or a lookback such as 90m or 24h")
	f.IntVar(&opts.Limit, "limit", 50, "max entries to return")
	return cmd
}

func (a *auditCmd) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show everything recorded about one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd.Context(), func(ctx context.Context, l *audit.Logger) error {
				entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: args[0], Limit: 1})
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return errors.Errorf("no request %s in the audit log", args[0])
				}
				fmt.Print(formatAuditEntry(entries[0]))
				return nil
			})
		},
	}
}

func (a *auditCmd) statsCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count requests by model, day and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd.Context(), func(ctx context.Context, l *audit.Logger) error {
				stats, err := l.Stats(ctx)
				if err != nil {
					return err
				}
				if model != "" {
					stats = filterStats(stats, model)
				}
				fmt.Print(formatAuditStats(stats))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "only this model ID")
	return cmd
}

func (a *auditCmd) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete entries older than audit.retention_days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd.Context(), func(ctx context.Context, l *audit.Logger) error {
				deleted, err := l.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d audit entries.\n", deleted)
				return nil
			})
		},
	}
}

// parseSince accepts a calendar date or a lookback duration relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, errors.Errorf("--since lookback must be positive, got %s", s)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid --since %q: use YYYY-MM-DD or a duration like 24h", s)
	}
	return t, nil
}

func validateState(s string) error {
	if s == "" {
		return nil
	}
	for _, st := range auditStates {
		if string(st) == s {
			return nil
		}
	}
	return errors.Errorf("unknown state %q, want one of %s", s, joinStates())
}

func joinStates() string {
	names := make([]string, len(auditStates))
	for i, st := range auditStates {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

func filterStats(stats []models.AuditStat, model string) []models.AuditStat {
	var out []models.AuditStat
	for _, s := range stats {
		if s.Model == model {
			out = append(out, s)
		}
	}
	return out
}

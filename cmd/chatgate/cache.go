package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	cachepkg "github.com/pario-ai/chatgate/pkg/cache/sqlite"
	"github.com/pario-ai/chatgate/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent reply cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\n", stats.Entries)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if expiredOnly {
				n, err := c.ClearExpired()
				if err != nil {
					return err
				}
				fmt.Printf("Cleared %d expired cache entries.\n", n)
				return nil
			}
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func openCache(configPath string) (*cachepkg.Cache, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != "sqlite" {
		return nil, errors.Errorf("cache backend is %q; only the sqlite cache persists between runs", cfg.Cache.Backend)
	}
	return cachepkg.New(cfg.Cache.DBPath, cfg.Cache.TTL)
}

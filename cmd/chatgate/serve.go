package main

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pario-ai/chatgate/pkg/config"
	"github.com/pario-ai/chatgate/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a chat session over a JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if model != "" {
				if _, err := a.session.SelectModel(ctx, model); err != nil {
					return err
				}
			}

			addr := a.cfg.Listen
			if listen != "" {
				addr = listen
			}
			log.Infof("starting chatgate with config: %s", configPath)
			return server.New(addr, a.session).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to connect to on startup")
	return cmd
}

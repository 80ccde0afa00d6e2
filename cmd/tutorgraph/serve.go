package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/tutorgraph"
	"github.com/aretw0/tutorgraph/internal/cli"
	httpadapter "github.com/aretw0/tutorgraph/pkg/adapters/http"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stateless HTTP server",
	Long: `Exposes the engine as a JSON API over HTTP, with per-step SSE events,
Prometheus metrics on /metrics and the OpenAPI document on /openapi.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		offline, _ := cmd.Flags().GetBool("offline")
		logger := newLogger(cfg)

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		streams := httpadapter.NewStreamManager(logger)
		stack, err := cli.Build(sigCtx, cfg, cli.Options{
			Offline: offline,
			Logger:  logger,
			Hooks:   []domain.LifecycleHooks{streams.Hooks()},
			Version: tutorgraph.Version,
		})
		if err != nil {
			return err
		}
		defer stack.Close()

		handler, err := httpadapter.NewHandler(stack.Engine,
			httpadapter.WithStreams(streams),
			httpadapter.WithMetricsHandler(promhttp.HandlerFor(stack.Registry, promhttp.HandlerOpts{})),
			httpadapter.WithVersion(tutorgraph.Version),
			httpadapter.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting tutorgraph server", "addr", srv.Addr, "offline", offline)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sigCtx.Done():
			logger.Info("shutting down", "signal", sigCtx.Signal())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().Bool("offline", false, "Use the keyword rules instead of the model")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mickaelvieira/dspclient"
	"github.com/mickaelvieira/dspclient/internal/config"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var retryAfter time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect every configured unit and log its activity until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return runWatch(signalCtx, ctx, cfg, retryAfter)
		},
	}

	cmd.Flags().DurationVar(&retryAfter, "retry-after", 30*time.Second, "Delay before connecting again a unit that gave up")
	return cmd
}

func runWatch(ctx context.Context, cmdCtx *commandContext, cfg *config.Config, retryAfter time.Duration) error {
	logger := cmdCtx.logger("watch")

	var metrics *dspclient.Metrics
	if cfg.Metrics.Listen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		metrics = dspclient.NewMetrics(registry)

		server, err := newMetricsServer(cfg.Metrics.Listen, cfg.Metrics.Path, registry, cmdCtx.logger("metrics"))
		if err != nil {
			return err
		}
		server.start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.stop(stopCtx); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	registry := dspclient.NewRegistry()
	defer registry.Clear()

	var wg sync.WaitGroup
	for _, u := range cfg.Units {
		client, err := cmdCtx.newClient(u, metrics)
		if err != nil {
			return err
		}
		registry.Set(u.ID, client)

		wg.Add(1)
		go func() {
			defer wg.Done()
			watchUnit(ctx, client, cmdCtx.unitLogger("watch", u), retryAfter)
		}()
	}

	logger.Info("watching units", "count", registry.Len())
	<-ctx.Done()
	wg.Wait()
	logger.Info("stopped watching")

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// watchUnit logs the activity of client and connects it again whenever it gives up.
func watchUnit(ctx context.Context, client *dspclient.Client, logger *slog.Logger, retryAfter time.Duration) {
	gaveUp := make(chan struct{}, 1)

	unsubscribers := []func(){
		dspclient.Subscribe(client, dspclient.EventStateChange, func(s dspclient.State) {
			logger.Info("state changed", "state", s.String())
			if s == dspclient.StateError {
				select {
				case gaveUp <- struct{}{}:
				default:
				}
			}
		}),
		dspclient.Subscribe(client, dspclient.EventDisconnected, func(info dspclient.CloseInfo) {
			logger.Info("disconnected", "code", info.Code, "reason", info.Reason)
		}),
		dspclient.Subscribe(client, dspclient.EventError, func(err error) {
			logger.Warn("client error", "error", err)
		}),
		dspclient.Subscribe(client, dspclient.EventMessage, func(f dspclient.Frame) {
			logger.Info("frame", "data", string(f.Data))
		}),
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	for {
		if err := client.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("connect failed", "url", client.URL(), "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-gaveUp:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryAfter):
		}
	}
}

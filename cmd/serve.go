package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hsiehdog/travel-coordination-back/internal/server"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

var servePort int

const storeCheckInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(server.Config{CORSOrigins: cfg.Server.CORSOrigins}, env.Store, env.Engine)
		addr := fmt.Sprintf(":%d", resolvePort(servePort, cfg.Server.Port))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(gctx, addr) })
		g.Go(func() error {
			watchStore(gctx, env.Store, storeCheckInterval)
			return nil
		})
		return g.Wait()
	},
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// watchStore pings the store until ctx is done and logs when it stops
// answering or recovers.
func watchStore(ctx context.Context, st store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := st.Ping(pingCtx)
		cancel()
		switch {
		case err != nil && healthy:
			zap.L().Warn("store ping failed", zap.Error(err))
			healthy = false
		case err == nil && !healthy:
			zap.L().Info("store ping recovered")
			healthy = true
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

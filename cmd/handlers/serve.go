package handlers

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commentpulse/internal/config"
	"commentpulse/internal/logger"
	"commentpulse/internal/ratelimit"
	"commentpulse/internal/server"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		host  string
		port  int
		model string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server. Analyses submitted over the API run through the
same job queue as the CLI; clients poll jobs by ID and fetch results once
a job completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, model)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "Gemini model override")

	return cmd
}

func runServe(host string, port int, model string) error {
	a, err := buildApp(model)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := a.cfg.Server
	if host != "" {
		serverCfg.Host = host
	}
	if port > 0 {
		serverCfg.Port = port
	}

	srv := server.New(a.service, a.lifecycle, a.orchestrator, a.store,
		buildLimiter(a.cfg), serverCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildLimiter constructs the configured rate-limit store, or nil when rate
// limiting is disabled.
func buildLimiter(cfg *config.Config) ratelimit.Store {
	rl := cfg.Server.RateLimit
	if rl.Requests <= 0 {
		return nil
	}

	window := rl.WindowDuration()
	if rl.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return ratelimit.NewRedisStore(client, window)
	}
	return ratelimit.NewMemoryStore(window)
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	log := b.log

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service := b.service(ctx)
	var auth *transport.Authenticator
	if cfg.Auth.Secret != "" {
		auth = transport.NewAuthenticator(cfg.Auth.Secret)
	} else {
		log.Warn("auth.secret not set; clients identify with userId")
	}

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterDeps{
			Service:  service,
			Attempts: b.attempts,
			Auth:     auth,
			Origins:  cfg.CORS.Origins,
			Logger:   log,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runFlusher(gctx, service, config.TTLDuration(cfg.Sync.Interval, time.Minute), b)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runFlusher replays queued attempts every interval until ctx ends.
func runFlusher(ctx context.Context, service *app.QuizService, interval time.Duration, b *backend) {
	if b.sink == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := service.FlushAll(ctx)
			entry := b.log.WithField("delivered", report.Delivered).
				WithField("rejected", report.Rejected).
				WithField("remaining", report.Remaining)
			if err != nil {
				entry.WithError(err).Warn("offline sync incomplete")
				continue
			}
			if report.Delivered+report.Rejected > 0 {
				entry.Info("offline sync")
			}
		}
	}
}

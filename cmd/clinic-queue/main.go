package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/clinic-queue/internal/auth"
	"qms/clinic-queue/internal/config"
	"qms/clinic-queue/internal/httpapi"
	"qms/clinic-queue/internal/hub"
	"qms/clinic-queue/internal/logging"
	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/queue"
	"qms/clinic-queue/internal/stats"
	"qms/clinic-queue/internal/store"
	"qms/clinic-queue/internal/store/memory"
	"qms/clinic-queue/internal/store/postgres"
	"qms/clinic-queue/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "clinic-queue"

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Outpatient clinic queue service",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DB_DSN is required for migrate")
			}
			logger := logging.New(cfg.LogLevel)
			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()

			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			logger.WithField("applied", applied).Info("migrations complete")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			issuer, err := auth.NewJWT(cfg.AuthJWTSecret, cfg.TokenTTL())
			if err != nil {
				return err
			}
			token, err := issuer.Issue(models.Actor{ID: id, Name: name, Role: models.Role(role)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "subject id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(models.RolePatient), "patient, doctor or admin")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// backends groups the stores the server runs on. Queue state always lives in
// memory; the directory and visit history move to Postgres when DB_DSN is set.
type backends struct {
	entries   store.QueueStore
	events    store.EventStore
	directory store.DirectoryStore
	visits    store.VisitStore
	close     func()
}

func openBackends(ctx context.Context, cfg config.Config, logger *logrus.Logger) (backends, error) {
	mem := memory.NewStore()
	b := backends{entries: mem, events: mem, directory: mem, visits: mem, close: func() {}}
	if cfg.DatabaseURL == "" {
		logger.Info("DB_DSN not set, keeping directory and visit history in memory")
		return b, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return backends{}, fmt.Errorf("db connect: %w", err)
	}
	applied, err := postgres.Migrate(ctx, pool)
	if err != nil {
		pool.Close()
		return backends{}, err
	}
	if len(applied) > 0 {
		logger.WithField("applied", applied).Info("migrations applied")
	}
	pg := postgres.NewStore(pool)
	b.directory = pg
	b.visits = pg
	b.close = pool.Close
	return b, nil
}

func seedClinics(ctx context.Context, directory store.DirectoryStore, names []string, logger *logrus.Logger) error {
	if len(names) == 0 {
		return nil
	}
	existing, err := directory.ListClinics(ctx, nil)
	if err != nil {
		return fmt.Errorf("list clinics: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, clinic := range existing {
		known[clinic.Name] = true
	}
	for _, name := range names {
		if known[name] {
			continue
		}
		clinic, err := directory.CreateClinic(ctx, models.Clinic{Name: name, Active: true})
		if err != nil {
			return fmt.Errorf("seed clinic %q: %w", name, err)
		}
		logger.WithFields(logrus.Fields{"clinic_id": clinic.ClinicID, "name": clinic.Name}).Info("seeded clinic")
	}
	return nil
}

func runServer(cfg config.Config) error {
	logger := logging.New(cfg.LogLevel)
	shutdownTracing := telemetry.Setup(telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.AppVersion,
		Environment:    cfg.AppEnv,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SampleRatio:    cfg.TraceSampleRatio,
	}, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("tracer shutdown error")
		}
	}()

	ctx := context.Background()
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()
	if err := seedClinics(ctx, b.directory, cfg.Clinics(), logger); err != nil {
		return err
	}

	authenticator, err := auth.NewJWT(cfg.AuthJWTSecret, cfg.TokenTTL())
	if err != nil {
		return err
	}

	realtime := hub.New(logger)
	queueService := queue.NewService(b.entries, b.directory, b.visits, b.events, queue.Options{
		PerPatientMinutes: cfg.ETAMinutesPerPatient,
		Publisher:         realtime,
		Logger:            logger,
	})
	statsService := stats.NewService(b.entries, b.directory, b.visits)
	handler := httpapi.NewHandler(queueService, b.directory, b.visits, statsService, httpapi.Options{
		Realtime: realtime,
		Logger:   logger,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:        cfg.RateLimitPerMinute,
		IPBurst:            cfg.RateLimitBurst,
		PrincipalPerMinute: cfg.PrincipalRateLimitPerMinute,
		PrincipalBurst:     cfg.PrincipalRateLimitBurst,
	})

	routes := httpapi.AuthMiddleware(authenticator, limiter.PrincipalMiddleware(handler.Routes()))
	routes = httpapi.LoggingMiddleware(logger, limiter.Middleware(routes))

	// WriteTimeout stays unset: it would cut long-lived WebSocket connections.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(routes, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("clinic-queue listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fertility/cds/internal/config"
	"github.com/fertility/cds/internal/domain/admin"
	"github.com/fertility/cds/internal/domain/clinic"
	"github.com/fertility/cds/internal/domain/consultation"
	"github.com/fertility/cds/internal/domain/patient"
	"github.com/fertility/cds/internal/domain/treatment"
	"github.com/fertility/cds/internal/platform/auth"
	"github.com/fertility/cds/internal/platform/db"
	"github.com/fertility/cds/internal/platform/hipaa"
	"github.com/fertility/cds/internal/platform/inference"
	"github.com/fertility/cds/internal/platform/logging"
	"github.com/fertility/cds/internal/platform/middleware"
	"github.com/fertility/cds/internal/platform/sandbox"
	"github.com/fertility/cds/internal/platform/telemetry"
	"github.com/fertility/cds/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cds-server",
		Short: "Fertility clinic decision-support API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded schema)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded schema)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert synthetic clinic data",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.Patients, _ = cmd.Flags().GetInt("patients")
			seedCfg.CyclesPerPatient, _ = cmd.Flags().GetInt("cycles")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")
			reset, _ := cmd.Flags().GetBool("reset")

			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
				seeder := sandbox.NewSeeder(pool, sandbox.Stores{
					Clinics:  clinic.NewClinicRepo(pool),
					Users:    clinic.NewUserRepo(pool),
					Patients: patient.NewRepo(pool),
					Cycles:   treatment.NewCycleRepo(pool),
					Labs:     treatment.NewLabResultRepo(pool),
				}, logger)

				if reset {
					if err := seeder.Purge(ctx); err != nil {
						return err
					}
				}
				res, err := seeder.Seed(ctx, seedCfg)
				if err != nil {
					return err
				}
				fmt.Printf("Seeded clinic %s: %d users, %d patients, %d cycles, %d lab results.\n",
					res.ClinicID, res.Users, res.Patients, res.Cycles, res.LabResults)
				return nil
			})
		},
	}
	defaults := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("patients", defaults.Patients, "Number of patients to create")
	cmd.Flags().Int("cycles", defaults.CyclesPerPatient, "Treatment cycles per patient")
	cmd.Flags().Int64("seed", defaults.Seed, "Random seed")
	cmd.Flags().Bool("reset", false, "Delete all existing rows first")
	return cmd
}

// withPool loads config, opens a pool for the duration of fn and closes it.
func withPool(ctx context.Context, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

// migrationsFS returns the embedded schema unless dir names a directory.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(logging.Options{Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile})

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	limiter, closeLimiter, err := newLimiter(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure rate limiter")
	}
	defer closeLimiter()

	e, err := newServer(cfg, pool, limiter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires repositories, services and handlers onto an echo instance.
// pool may be nil in tests that never reach the store.
func newServer(cfg *config.Config, pool *pgxpool.Pool, limiter middleware.Limiter, logger zerolog.Logger) (*echo.Echo, error) {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, err
	}
	encryption, err := hipaa.NewEncryptionService(key, logger)
	if err != nil {
		return nil, err
	}

	llm, err := newInferenceClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New()
	poolStats := func() *db.PoolStats { return db.GetPoolStats(pool) }
	if pool != nil {
		metrics.RegisterPool(poolStats)
	} else {
		poolStats = nil
	}

	// Repositories
	clinicRepo := clinic.NewClinicRepo(pool)
	userRepo := clinic.NewUserRepo(pool)
	patientRepo := patient.NewRepo(pool)
	cycleRepo := treatment.NewCycleRepo(pool)
	labRepo := treatment.NewLabResultRepo(pool)
	documentRepo := treatment.NewDocumentRepo(pool)
	predictionRepo := consultation.NewRepoWithEncryption(pool, encryption.Encryptor())

	// Services
	clinicSvc := clinic.NewService(clinicRepo, userRepo)
	patientSvc := patient.NewService(patientRepo)
	treatmentSvc := treatment.NewService(patientRepo, cycleRepo, labRepo, documentRepo)
	consultSvc := consultation.NewService(patientRepo, cycleRepo, predictionRepo, llm,
		consultation.WithRecorder(metrics),
		consultation.WithLogger(logger),
		consultation.WithTimeout(cfg.InferenceTimeout()),
	)
	adminSvc := admin.NewService([]admin.Source{
		{Name: "clinics", Counter: clinicRepo},
		{Name: "users", Counter: userRepo},
		{Name: "patients", Counter: patientRepo},
		{Name: "cycles", Counter: cycleRepo},
		{Name: "labResults", Counter: labRepo},
		{Name: "documents", Counter: documentRepo},
		{Name: "predictions", Counter: predictionRepo},
	}, poolStats, llm.Model())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger, metrics))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit("1M"))
	apiV1.Use(authMiddleware(cfg))
	apiV1.Use(middleware.RateLimit(limiter, rateLimitConfig(cfg), logger))
	apiV1.Use(middleware.Audit(logger))

	clinic.NewHandler(clinicSvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(apiV1)
	consultation.NewHandler(consultSvc).RegisterRoutes(apiV1)
	admin.NewHandler(adminSvc).RegisterRoutes(apiV1)

	return e, nil
}

// authMiddleware validates bearer tokens. In development requests without a
// token run as a local admin.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	var jwtMW echo.MiddlewareFunc
	if cfg.AuthIssuer != "" || cfg.AuthJWKSURL != "" || cfg.AuthSigningKey != "" {
		jwtMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtMW)
	}
	return jwtMW
}

func newInferenceClient(cfg *config.Config, logger zerolog.Logger) (inference.Client, error) {
	if cfg.OpenAIAPIKey != "" {
		return inference.NewOpenAIClient(inference.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	}
	if cfg.IsDev() {
		logger.Warn().Msg("OPENAI_API_KEY is not set; consultations use the static development client")
		return &inference.StaticClient{}, nil
	}
	return nil, fmt.Errorf("OPENAI_API_KEY is required when ENV=%q", cfg.Env)
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

// newLimiter uses Redis when REDIS_URL is set so limits hold across
// replicas. The returned func releases the client.
func newLimiter(cfg *config.Config, logger zerolog.Logger) (middleware.Limiter, func(), error) {
	rl := rateLimitConfig(cfg)
	if cfg.RedisURL == "" {
		return middleware.NewMemoryLimiter(rl), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup; rate limiting fails open until it recovers")
	} else {
		logger.Info().Str("addr", opts.Addr).Msg("rate limiting backed by redis")
	}

	return middleware.NewRedisLimiter(client, rl), func() { _ = client.Close() }, nil
}

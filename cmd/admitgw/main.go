// Package main is the entry point for the admission gateway.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/avolkov/admitgw/internal/audit"
	"github.com/avolkov/admitgw/internal/auth"
	"github.com/avolkov/admitgw/internal/auth/token"
	"github.com/avolkov/admitgw/internal/authz"
	"github.com/avolkov/admitgw/internal/config"
	"github.com/avolkov/admitgw/internal/observability"
	"github.com/avolkov/admitgw/internal/pipeline"
	"github.com/avolkov/admitgw/internal/ratelimit"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags, logger)
	app := initApplication(cfg, logger)

	run(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("ADMITGW_CONFIG_PATH", ""),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("ADMITGW_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("ADMITGW_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("admitgw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration. A
// configuration defect is fatal; the gateway never serves traffic
// with an invalid admission setup.
func loadAndValidateConfig(flags cliFlags, logger observability.Logger) *config.Config {
	logger.Info("starting admitgw",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("listen", cfg.Listen),
		observability.Bool("auth_enabled", cfg.Auth.Enabled),
		observability.Int("public_paths", len(cfg.Auth.PublicPaths)),
		observability.Int("per_minute", cfg.RateLimit.PerMinute),
		observability.Int("per_hour", cfg.RateLimit.PerHour),
		observability.Int("per_day", cfg.RateLimit.PerDay),
	)

	return cfg
}

// application holds all application components.
type application struct {
	config   *config.Config
	metrics  *observability.Metrics
	recorder audit.Recorder
	authGate auth.Gate
	limiter  *ratelimit.Limiter
	pipeline *pipeline.Pipeline
	server   *http.Server
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("admitgw")

	// Component metrics share the gateway registry so every series is
	// visible on the /metrics endpoint.
	registerer := metrics.Registerer()

	recorder, err := audit.NewRecorder(cfg.Audit,
		audit.WithRecorderLogger(logger),
		audit.WithRecorderMetrics(audit.NewMetricsWithRegisterer("admitgw", registerer)),
	)
	if err != nil {
		logger.Fatal("failed to create audit recorder", observability.Error(err))
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.Enabled {
		verifier, err = token.NewVerifier(&token.Config{
			Secret:   cfg.Auth.Secret,
			Issuer:   cfg.Auth.Issuer,
			TokenTTL: cfg.Auth.TokenTTL,
		})
		if err != nil {
			logger.Fatal("failed to create token verifier", observability.Error(err))
		}
	}

	clientIP := auth.NewClientIPExtractor(cfg.Auth.TrustedProxies)

	authGate, err := auth.NewGate(cfg.Auth, verifier,
		auth.WithGateLogger(logger),
		auth.WithGateRecorder(recorder),
		auth.WithGateMetrics(auth.NewMetricsWithRegisterer("admitgw", registerer)),
	)
	if err != nil {
		logger.Fatal("failed to create auth gate", observability.Error(err))
	}

	authzGate := authz.NewGate(
		authz.WithGateLogger(logger),
		authz.WithGateRecorder(recorder),
		authz.WithGateMetrics(authz.NewMetricsWithRegisterer("admitgw", registerer)),
		authz.WithGateClientIP(clientIP),
	)

	limiter := ratelimit.NewLimiter(
		ratelimit.WithLimiterLogger(logger),
		ratelimit.WithLimiterMetrics(ratelimit.NewMetricsWithRegisterer("admitgw", registerer)),
	)

	limits := ratelimit.Limits{
		PerMinute: cfg.RateLimit.PerMinute,
		PerHour:   cfg.RateLimit.PerHour,
		PerDay:    cfg.RateLimit.PerDay,
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithRecorder(recorder),
		pipeline.WithLogger(logger),
		pipeline.WithClientIP(clientIP),
	}
	if cfg.RateLimit.GlobalRPS > 0 {
		burst := cfg.RateLimit.GlobalBurst
		if burst <= 0 {
			burst = cfg.RateLimit.GlobalRPS
		}
		pipeOpts = append(pipeOpts,
			pipeline.WithGlobalLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit.GlobalRPS), burst)))
	}

	pipe := pipeline.New(authGate, authzGate, limiter, limits, pipeOpts...)

	handler := observability.RequestIDMiddleware()(
		observability.MetricsMiddleware(metrics)(buildMux(pipe, metrics)))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return &application{
		config:   cfg,
		metrics:  metrics,
		recorder: recorder,
		authGate: authGate,
		limiter:  limiter,
		pipeline: pipe,
		server:   server,
	}
}

// buildMux builds the HTTP routes. Health and metrics bypass the
// admission gates; everything else goes through the pipeline.
func buildMux(pipe *pipeline.Pipeline, metrics *observability.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	metrics.RegisterRoutes("/healthz", "/metrics", "/v1/whoami", "/v1/admin/status")

	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/v1/whoami", pipe.HandlerFunc(
		pipeline.Route{},
		whoamiHandler,
	))
	mux.Handle("/v1/admin/status", pipe.HandlerFunc(
		pipeline.Route{Permissions: []string{"admin:read"}},
		adminStatusHandler,
	))

	return mux
}

// healthHandler reports process liveness.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

// whoamiHandler returns the caller identity attached by the auth gate.
func whoamiHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())

	resp := map[string]interface{}{
		"authenticated": ok,
		"subject":       claims.Subject(),
	}
	if ok {
		resp["admin"] = claims.IsAdmin
		resp["permissions"] = claims.Permissions
	}

	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// adminStatusHandler reports gateway status to administrators. The
// permission gate guarantees an identity is present by the time this
// handler runs, so a missing one is a server fault.
func adminStatusHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContextOrError(r.Context())
	if err != nil {
		http.Error(w, "identity missing from request context", http.StatusInternalServerError)
		return
	}

	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "serving",
		"version":    version,
		"checked_by": claims.Subject(),
	})
}

// run starts the server and supporting goroutines and blocks until a
// shutdown signal arrives.
func run(app *application, logger observability.Logger) {
	app.limiter.StartSweeper(
		app.config.RateLimit.SweepInterval.Duration(),
		app.config.RateLimit.Retention.Duration(),
	)

	watcher := startPatternsWatcher(app, logger)

	go func() {
		logger.Info("listening", observability.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", observability.Error(err))
		}
	}()

	waitForShutdown(app, watcher, logger)
}

// startPatternsWatcher starts the public patterns watcher if a
// patterns file is configured.
func startPatternsWatcher(app *application, logger observability.Logger) *config.PatternsWatcher {
	if app.config.PublicPatternsFile == "" {
		return nil
	}

	watcher, err := config.NewPatternsWatcher(app.config.PublicPatternsFile,
		func(patterns []string) {
			for _, pattern := range patterns {
				if regErr := app.authGate.RegisterPublicPath(pattern); regErr != nil {
					logger.Warn("skipping invalid public pattern",
						observability.String("pattern", pattern),
						observability.Error(regErr),
					)
				}
			}
		},
		config.WithWatcherLogger(logger),
	)
	if err != nil {
		logger.Warn("failed to create patterns watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start patterns watcher", observability.Error(err))
		return watcher
	}

	logger.Info("public patterns watcher started",
		observability.String("file", app.config.PublicPatternsFile),
		observability.Int("patterns", len(watcher.LastPatterns())),
	)

	return watcher
}

// waitForShutdown waits for a shutdown signal and performs graceful
// shutdown.
func waitForShutdown(app *application, watcher *config.PatternsWatcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	app.limiter.Stop()

	if err := app.recorder.Close(); err != nil {
		logger.Error("failed to close audit recorder", observability.Error(err))
	}

	logger.Info("admitgw stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

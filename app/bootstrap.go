package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"careerhero-api/internal/auth"
	"careerhero-api/internal/config"
	"careerhero-api/internal/db"
	"careerhero-api/internal/maintenance"
	"careerhero-api/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool

	// ProtectedRoutes are additional routes mounted behind the request
	// throttle and the login requirement, keyed by mux pattern
	// ("POST /api/coach/review"). The auth surface itself is always wired.
	ProtectedRoutes map[string]http.Handler
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	// Sentry is best effort; the service runs without it.
	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Warn("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	repo := auth.NewRepository(database)
	vault := auth.NewVault(repo, cfg.DefaultUsername, cfg.DefaultPassword)
	ledger := auth.NewLedger(repo, cfg.SessionTTL)
	loginThrottle := auth.NewLoginThrottle(cfg.LoginFailLimit, cfg.LoginFailWindow, cfg.LoginLock)
	requestThrottle := auth.NewRequestThrottle(
		cfg.RequestLimitPerMinute,
		time.Minute,
		cfg.DuplicateLimit,
		cfg.DuplicateWindow,
		cfg.EnforceHardRateLimit,
	).WithMaxBodyBytes(cfg.MaxJSONBodyBytes)

	if cfg.AuthMode == "local" {
		account, err := vault.EnsureDefaultAccount(context.Background())
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("ensure default account: %w", err)
		}
		logger.Info("default_account_ready", map[string]any{"username": account.Username})
	}

	authHandler := auth.NewHandler(
		vault,
		ledger,
		loginThrottle,
		cfg.AuthMode,
		cfg.SessionTTL,
		cfg.RefreshGrace,
		cfg.MaxJSONBodyBytes,
	)
	maintenanceHandler := maintenance.NewHandler(vault, ledger, metricsTracker(), logger, cfg.CronSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)
	mux.HandleFunc("POST /internal/maintenance/accounts/disable", maintenanceHandler.DisableAccount)
	mux.HandleFunc("GET /internal/maintenance/metrics", maintenanceHandler.Metrics)
	mux.HandleFunc("GET /health", healthHandler(database))

	gatedPrefixes := make([]string, 0, len(options.ProtectedRoutes))
	for pattern, routeHandler := range options.ProtectedRoutes {
		mux.Handle(pattern, requestThrottle.Middleware(routeHandler))
		gatedPrefixes = append(gatedPrefixes, patternPath(pattern))
	}

	gate := auth.NewAccessGate(ledger, auth.GateConfig{
		Mode:                     cfg.AuthMode,
		APIToken:                 cfg.APIToken,
		RequireSessionID:         cfg.RequireSessionID,
		RequireLoginForProtected: cfg.RequireLoginForProtected,
		GatedPrefixes:            gatedPrefixes,
	})

	handler := observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger, metricsTracker(),
			gate.Middleware(mux)))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

var sharedMetrics = observability.NewMetricsTracker()

// metricsTracker returns the process-wide tracker. The serverless entrypoint
// may rebuild the runtime; counters survive as long as the process does.
func metricsTracker() *observability.MetricsTracker {
	return sharedMetrics
}

// patternPath strips the optional method prefix from a mux pattern so the
// access gate can match on the path alone.
func patternPath(pattern string) string {
	if idx := strings.IndexByte(pattern, ' '); idx >= 0 {
		return strings.TrimSpace(pattern[idx+1:])
	}
	return pattern
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

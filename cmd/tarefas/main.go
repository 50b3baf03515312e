package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tarefas/internal/auth"
	"tarefas/internal/server"
	"tarefas/internal/storage"
	"tarefas/internal/storage/memory"
	"tarefas/internal/storage/sqlite"
	"tarefas/internal/util"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load(".env")

	addrFlag := flag.String("addr", util.EnvOrDefault("TAREFAS_ADDR", ":5000"), "HTTP listen address")
	dbFlag := flag.String("db", util.EnvOrDefault("TAREFAS_DB_PATH", ""), "Path to sqlite database file; empty keeps tasks in memory")
	staticFlag := flag.String("static", util.EnvOrDefault("TAREFAS_STATIC_DIR", ""), "Directory with built frontend")
	issuerFlag := flag.String("issuer", util.EnvOrDefault("KEYCLOAK_URL", "http://localhost:8080"), "Keycloak base URL")
	realmFlag := flag.String("realm", util.EnvOrDefault("KEYCLOAK_REALM", "meu_realm"), "Keycloak realm")
	clientFlag := flag.String("client-id", util.EnvOrDefault("KEYCLOAK_CLIENT_ID", "meu-backend"), "Expected token audience")
	jwksFlag := flag.String("jwks-url", util.EnvOrDefault("KEYCLOAK_JWKS_URL", ""), "JWKS endpoint; derived from issuer and realm when empty")
	verifyIssFlag := flag.Bool("verify-issuer", util.EnvBoolOrDefault("KEYCLOAK_VERIFY_ISSUER", false), "Require the iss claim to match the realm URL")
	keyTTLFlag := flag.Duration("key-ttl", util.EnvDurationOrDefault("KEYCLOAK_KEY_TTL", 0), "Signing key cache lifetime; 0 caches until restart")
	fetchTimeoutFlag := flag.Duration("fetch-timeout", util.EnvDurationOrDefault("KEYCLOAK_FETCH_TIMEOUT", auth.DefaultFetchTimeout), "Timeout for fetching signing keys")
	corsFlag := flag.String("cors-origins", util.EnvOrDefault("TAREFAS_CORS_ORIGINS", "http://localhost:5173,http://localhost:3000"), "Comma separated browser origins allowed by CORS")
	levelFlag := flag.String("log-level", util.EnvOrDefault("TAREFAS_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	formatFlag := flag.String("log-format", util.EnvOrDefault("TAREFAS_LOG_FORMAT", "text"), "Log format: text or json")
	flag.Parse()

	logger := newLogger(*levelFlag, *formatFlag)
	slog.SetDefault(logger)

	store, err := openStore(*dbFlag, logger)
	if err != nil {
		logger.Error("unable to open task store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	jwksURL := *jwksFlag
	if jwksURL == "" {
		jwksURL = auth.CertsURL(*issuerFlag, *realmFlag)
	}
	keys := auth.NewJWKSKeySource(jwksURL,
		auth.WithHTTPClient(&http.Client{Timeout: *fetchTimeoutFlag}),
		auth.WithFetchTimeout(*fetchTimeoutFlag),
		auth.WithKeyTTL(*keyTTLFlag),
		auth.WithKeySourceLogger(logger),
	)

	verifierOpts := []auth.VerifierOption{}
	if *verifyIssFlag {
		verifierOpts = append(verifierOpts, auth.WithIssuer(auth.RealmIssuer(*issuerFlag, *realmFlag)))
	}
	verifier := auth.NewVerifier(keys, *clientFlag, verifierOpts...)
	authn := auth.NewAuthenticator(verifier, auth.DefaultPolicy(), logger)

	// Warm the key cache; a failure here is retried lazily on the first request.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), *fetchTimeoutFlag)
	if _, err := keys.SigningKey(warmCtx, ""); err != nil {
		logger.Warn("signing keys not available yet", slog.String("jwks_url", jwksURL), slog.String("error", err.Error()))
	}
	warmCancel()

	srv := server.New(store, authn, logger,
		server.WithStaticDir(*staticFlag),
		server.WithAllowedOrigins(util.SplitList(*corsFlag)...),
	)

	httpServer := &http.Server{
		Addr:              *addrFlag,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr), slog.String("audience", *clientFlag))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func openStore(path string, logger *slog.Logger) (storage.TaskStore, error) {
	if path == "" {
		logger.Info("using in-memory task store")
		return memory.New(), nil
	}
	return sqlite.Open(path, logger)
}

func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Command server runs the companion chat backend: a persona-driven
// conversation API with per-room emotional state, backed by SQLite and the
// OpenAI chat-completions API.
//
// Startup order: environment → config → logging → database (migrate + seed) →
// tracing → generator → HTTP server. Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwkoh-dev/go-companion-backend/internal/config"
	"github.com/jwkoh-dev/go-companion-backend/internal/crypto"
	"github.com/jwkoh-dev/go-companion-backend/internal/genai"
	httpapi "github.com/jwkoh-dev/go-companion-backend/internal/http"
	"github.com/jwkoh-dev/go-companion-backend/internal/observability"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
	"github.com/jwkoh-dev/go-companion-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	// Database: open, migrate, seed the persona catalog and the operator
	// settings singleton so first requests never race on bootstrap.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	ctx := context.Background()
	if err := repo.SeedCharacterConfigs(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("seed character configs")
	}
	if _, err := repo.GetBonusConfig(ctx, db, cfg.AI.Model); err != nil {
		log.Fatal().Err(err).Msg("bootstrap bonus config")
	}

	// Tracing (no-op unless OTEL_ENABLED).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// Encryption at rest. Without a secret the service still runs, but
	// message content and summaries persist in the clear.
	var cipher *crypto.Cipher
	if cfg.EncryptionSecret != "" {
		cipher, err = crypto.New(cfg.EncryptionSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("init cipher")
		}
	} else {
		log.Warn().Msg("ENCRYPTION_SECRET not set; storing conversation content unencrypted")
	}

	gen, err := genai.NewOpenAI(genai.Options{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("init generator")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, gen, cipher, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

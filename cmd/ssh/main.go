package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"headline-vol/internal/config"
	"headline-vol/internal/db"
	"headline-vol/internal/ml/predictions"
	"headline-vol/internal/ml/registry"
	"headline-vol/internal/service"
	"headline-vol/internal/tui"
	"headline-vol/pkg/logger"
	"headline-vol/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initLoggerFunc    = logger.Init
	initPostgresFunc  = db.InitPostgres
	initTracerFunc    = tracing.InitTracer
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

// parseAuthorizedKeys reads a comma or whitespace separated list of
// SHA256 key fingerprints.
func parseAuthorizedKeys(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		out[f] = true
	}
	return out
}

func allowKey(allowed map[string]bool, key gossh.PublicKey) (string, bool) {
	fingerprint := gossh.FingerprintSHA256(key)
	return fingerprint, allowed[fingerprint]
}

func authHandler(allowed map[string]bool) ssh.PublicKeyHandler {
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint, ok := allowKey(allowed, key)
		if !ok {
			log.Warn().Str("user", ctx.User()).Str("fingerprint", fingerprint).Msg("SSH auth denied")
			return false
		}
		log.Info().Str("user", ctx.User()).Str("fingerprint", fingerprint).Msg("SSH auth accepted")
		return true
	}
}

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, dashboard will show errors")
	}
	defer db.Close()

	tp, tracer, err := initTracerFunc(ctx, "ssh")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	var (
		predictionReader tui.PredictionReader
		versionLister    tui.VersionLister
	)
	if db.Pool != nil {
		predictionReader = service.NewPredictionService(tracer, predictions.NewRepository(db.Pool, tracer), nil)
		versionLister = registry.NewRepository(db.Pool, tracer)
	}

	allowed := parseAuthorizedKeys(cfg.SSHAuthorizedKeys)
	if len(allowed) == 0 {
		log.Warn().Msg("SSH_AUTHORIZED_KEYS empty, every login will be denied")
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)
	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(authHandler(allowed)),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				model := tui.NewAppModel(tui.Services{
					Predictions: predictionReader,
					Models:      versionLister,
					ModelKey:    cfg.ModelKey,
					Username:    s.User(),
				})
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create SSH server")
	}

	if srv != nil {
		go func() {
			log.Info().Str("addr", addr).Msg("SSH server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				log.Error().Err(err).Msg("SSH server stopped")
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("SSH server shutdown error")
		}
	}

	log.Info().Msg("SSH server exited")
}

// Command bot runs the homework assistant: a long-polling Telegram bot plus
// a small HTTP server exposing health probes and Prometheus metrics.
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
	"github.com/rs/zerolog/log"

	"github.com/ddanshin/go-homework-bot/internal/bot"
	"github.com/ddanshin/go-homework-bot/internal/calendar"
	"github.com/ddanshin/go-homework-bot/internal/config"
	httpapi "github.com/ddanshin/go-homework-bot/internal/http"
	"github.com/ddanshin/go-homework-bot/internal/llm"
	"github.com/ddanshin/go-homework-bot/internal/observability"
	"github.com/ddanshin/go-homework-bot/internal/pending"
	"github.com/ddanshin/go-homework-bot/internal/repo"
	"github.com/ddanshin/go-homework-bot/internal/schedule"
	"github.com/ddanshin/go-homework-bot/internal/services"
	"github.com/ddanshin/go-homework-bot/internal/state"
	"github.com/ddanshin/go-homework-bot/internal/sysutil"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bot exited")
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	states := state.Open(cfg.StatePath, cfg.StateDebounce)
	defer func() {
		if err := states.Close(); err != nil {
			log.Warn().Err(err).Msg("state store close failed")
		}
	}()

	client := llm.NewClient(llm.Config{
		APIKey:      cfg.Mistral.APIKey,
		BaseURL:     cfg.Mistral.BaseURL,
		TextModel:   cfg.Mistral.TextModel,
		VisionModel: cfg.Mistral.VisionModel,
		RPS:         cfg.Mistral.RPS,
	})
	parser := llm.NewParser(client)

	var cal services.CalendarWriter
	if cfg.Calendar.Enabled {
		cal = calendar.NewClient(calendar.Config{
			CalendarID: cfg.Calendar.CalendarID,
			TokenPath:  cfg.TokenPath,
			Timezone:   cfg.Calendar.Timezone,
		})
	}

	analytics := &services.AnalyticsService{DB: db, Estimator: parser}
	homework := &services.HomeworkService{
		DB:       db,
		States:   states,
		Pending:  pending.NewRegistry(),
		Resolver: schedule.Resolver{},
		Parser:   parser,
		Calendar: cal,
		Load:     analytics,
	}
	schedules := services.NewScheduleService(db)

	tg, err := bot.New(cfg.Telegram, db, states, homework, schedules, analytics)
	if err != nil {
		return err
	}
	if err := tg.SetCommands(); err != nil {
		log.Warn().Err(err).Msg("set bot commands failed")
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, db, cfg)
	srv := httpapi.NewServer(router, cfg)

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := tg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		stop()
		log.Error().Err(err).Msg("component failed, shutting down")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown failed")
	}
	return nil
}

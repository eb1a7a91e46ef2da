// Package main Companion Bot API
//
// @title           Companion Bot API
// @version         1.0
// @description     Вебхуки платежей и административный API бота-компаньона
//
// @host      localhost:8080
// @BasePath  /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/magabrotheeeer/companion-bot/internal/app/companion"
	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/logger"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, cfg.Log)

	log.Info("starting companion-bot", slog.String("env", cfg.Env))
	log.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := companion.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("companion-bot stopped gracefully")
}

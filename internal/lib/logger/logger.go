// Package logger собирает slog.Logger по окружению и настройкам ротации файла.
package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/magabrotheeeer/companion-bot/internal/config"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// New возвращает текстовый логгер. Для local и dev уровень debug, иначе info.
// Если задан cfg.File, записи дублируются в файл с ротацией.
func New(env string, cfg config.Log) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: Level(env)}))
}

// Level уровень логирования для окружения.
func Level(env string) slog.Level {
	switch env {
	case envLocal, envDev:
		return slog.LevelDebug
	case envProd:
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

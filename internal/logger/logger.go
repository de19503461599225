package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/config"
)

const serviceName = "analytics-service"

// Init configures the global zerolog logger. When a log file is configured,
// records go both to stderr and to a size-rotated file.
func Init(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = zerolog.New(writer(cfg)).With().Timestamp().Str("service", serviceName).Logger()

	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, falling back to info")
	}
}

func writer(cfg config.AppConfig) io.Writer {
	var out io.Writer = os.Stderr
	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if cfg.LogFile == "" {
		return out
	}

	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	return zerolog.MultiLevelWriter(out, file)
}

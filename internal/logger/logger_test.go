package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/config"
)

func TestInit_WritesJSONToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.log")

	Init(config.AppConfig{LogLevel: "debug", LogFormat: "json", LogFile: path, LogMaxSize: 1})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Str("relation", "mv_daily_metrics").Msg("snapshot refreshed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"analytics-service"`)
	assert.Contains(t, string(data), `"relation":"mv_daily_metrics"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	Init(config.AppConfig{LogLevel: "chatty", LogFormat: "json"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

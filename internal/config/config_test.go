package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(viper.New())

	assert.Equal(t, "openrouter", cfg.AIProvider)
	assert.Equal(t, "moonshotai/kimi-k2-thinking", cfg.AIModel)
	assert.Equal(t, 60*time.Second, cfg.AITimeout)
	assert.Equal(t, 10, cfg.SummaryMessageThreshold)
	assert.Equal(t, 5000, cfg.SummaryTokenThreshold)
	assert.Equal(t, 24*time.Hour, cfg.AnalyticsCacheTTL)
	assert.Equal(t, 30, cfg.AnalyticsLookbackDays)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.False(t, cfg.IsProduction())
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("APP_ENV", "Production")
	v.Set("AI_TIMEOUT", "15s")
	v.Set("WORKER_CONCURRENCY", 500)
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("DB_DRIVER", "Postgres")

	cfg := FromViper(v)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 15*time.Second, cfg.AITimeout)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "postgres", cfg.DBDriver)
}

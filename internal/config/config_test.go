package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":     "postgres://localhost/orderlines",
		"REDIS_URL":        "redis://localhost:6379/0",
		"FILE_SERVICE_URL": "http://files.internal/",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "orderlines", cfg.QueuePrefix)
	require.Equal(t, 5, cfg.QueueMaxAttempts)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, 10*time.Minute, cfg.VatCacheTTL)
	require.Equal(t, 5, cfg.VatMaxHops)
	require.Equal(t, 1, cfg.FileServiceMaxAttempts)
	require.Equal(t, "http://files.internal", cfg.FileServiceURL)
	require.Equal(t, 1, cfg.ItemNamePreferred)
	require.False(t, cfg.ItemNameAppendVariation)
	require.Equal(t, 1.0, cfg.SamplingRatio)
	require.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["APP_ENV"] = "production"
	env["QUEUE_CONCURRENCY"] = "16"
	env["QUEUE_BACKOFF_BASE"] = "2s"
	env["VAT_MAX_HOPS"] = "not-a-number"
	env["ITEM_NAME_PREFERRED"] = "2"
	env["ITEM_NAME_APPEND_VARIATION"] = "yes"
	env["OTEL_SAMPLING_RATIO"] = "0.25"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 16, cfg.QueueConcurrency)
	require.Equal(t, 2*time.Second, cfg.QueueBackoffBase)
	require.Equal(t, 5, cfg.VatMaxHops)
	require.Equal(t, 2, cfg.ItemNamePreferred)
	require.True(t, cfg.ItemNameAppendVariation)
	require.Equal(t, 0.25, cfg.SamplingRatio)
}

func TestLoadRequiresConnections(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "FILE_SERVICE_URL"} {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = ""
			_, err := config.LoadForTests(env)
			require.ErrorContains(t, err, key)
		})
	}
}

func TestLoadRejectsInvalidNamePreference(t *testing.T) {
	env := baseEnv()
	env["ITEM_NAME_PREFERRED"] = "4"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "ITEM_NAME_PREFERRED")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesStrategies(t *testing.T) {
	path := writeConfig(t, `{
		"log": {"level": "debug", "output": "console"},
		"rate_limit_interval_ms": 3000,
		"strategies": {
			"btc-long": {
				"symbol": "BTCUSD",
				"market_index": 0,
				"grid_lower": 60000,
				"grid_upper": 70000,
				"grid_number": 10,
				"investment_per_grid": 50
			},
			"eth-short": {
				"symbol": "ETHUSD",
				"market_index": 1,
				"strategy_type": "SHORT",
				"grid_lower": 2000,
				"grid_upper": 3000,
				"grid_number": 5,
				"investment_per_grid": 20
			}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.RateLimitIntervalMs)
	require.Len(t, cfg.Strategies, 2)
	assert.Equal(t, "BTCUSD", cfg.Strategies["btc-long"].Symbol)
	assert.Equal(t, "SHORT", cfg.Strategies["eth-short"].StrategyType)
}

func TestLoadRejectsEmptyStrategies(t *testing.T) {
	path := writeConfig(t, `{"strategies": {}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadDefaultsRateLimitInterval(t *testing.T) {
	path := writeConfig(t, `{"strategies": {"a": {"symbol": "BTCUSD"}}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.RateLimitIntervalMs)
}

func TestApplyEnvCredentialsFillsOnlyMissing(t *testing.T) {
	t.Setenv("BUMPIN_API_KEY", "env-key")
	t.Setenv("BUMPIN_SECRET_KEY", "env-secret")

	path := writeConfig(t, `{"strategies": {
		"a": {"symbol": "BTCUSD"},
		"b": {"symbol": "ETHUSD", "api_key": "own-key", "secret_key": "own-secret"}
	}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.ApplyEnvCredentials()

	assert.Equal(t, "env-key", cfg.Strategies["a"].APIKey)
	assert.Equal(t, "env-secret", cfg.Strategies["a"].SecretKey)
	assert.Equal(t, "own-key", cfg.Strategies["b"].APIKey)
	assert.Equal(t, "own-secret", cfg.Strategies["b"].SecretKey)
}

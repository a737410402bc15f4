package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
feed:
  websocket_url: wss://fstream.binance.com/ws
  symbols: [btcusdt, ethusdt]
pipeline:
  candle_interval: 1m
  timeframe: 1m
  pairs: ["ethusdt:btcusdt"]
  window: 120
  stats_source: candles
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadMinimal(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, []string{"btcusdt", "ethusdt"}, c.Feed.Symbols)
	assert.Equal(t, time.Minute, c.Pipeline.CandleInterval.Std())
	assert.Equal(t, 120, c.Pipeline.Window)
}

func TestDurationUnmarshal(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+`
feed_extra: ignored
orchestrator:
  restart_backoff_base: 500ms
  fault_window: 1m30s
`))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, c.Orchestrator.RestartBackoffBase.Std())
	assert.Equal(t, 90*time.Second, c.Orchestrator.FaultWindow.Std())

	_, err = Load(writeConfig(t, minimalYAML+`
server:
  read_timeout: not-a-duration
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing environment", func(c *Config) { c.Environment = "" }, "environment is required"},
		{"missing ws url", func(c *Config) { c.Feed.WebSocketURL = "" }, "websocket_url"},
		{"no symbols", func(c *Config) { c.Feed.Symbols = nil }, "symbols"},
		{"zero interval", func(c *Config) { c.Pipeline.CandleInterval = 0 }, "candle_interval"},
		{"window too small", func(c *Config) { c.Pipeline.Window = 1 }, "window"},
		{"bad stats source", func(c *Config) { c.Pipeline.StatsSource = "trades" }, "stats_source"},
		{"malformed pair", func(c *Config) { c.Pipeline.Pairs = []string{"ethusdt"} }, "must be 'y:x'"},
		{"pair leg not subscribed", func(c *Config) { c.Pipeline.Pairs = []string{"ethusdt:solusdt"} }, "unsubscribed symbol"},
		{"persistence without brokers", func(c *Config) { c.Persistence.Enabled = true }, "kafka.brokers"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeConfig(t, minimalYAML))
			require.NoError(t, err)
			tc.mutate(c)
			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("FEED_WS_URL", "wss://override.example/ws")
	t.Setenv("SYMBOLS", "btcusdt,ethusdt,solusdt")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "wss://override.example/ws", c.Feed.WebSocketURL)
	assert.Equal(t, []string{"btcusdt", "ethusdt", "solusdt"}, c.Feed.Symbols)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
}

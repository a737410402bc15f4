package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int      `yaml:"port"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Feed struct {
		WebSocketURL string   `yaml:"websocket_url"`
		Symbols      []string `yaml:"symbols"`
		BackoffBase  Duration `yaml:"backoff_base"`
		BackoffMax   Duration `yaml:"backoff_max"`
		PingInterval Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
	Pipeline struct {
		CandleInterval Duration `yaml:"candle_interval"`
		Timeframe      string   `yaml:"timeframe"`
		Pairs          []string `yaml:"pairs"` // "y:x" per entry
		Window         int      `yaml:"window"`
		RecomputeEvery int      `yaml:"recompute_every"`
		StatsSource    string   `yaml:"stats_source"` // candles or ticks
		BrokerBuffer   int      `yaml:"broker_buffer"`
		DropPolicy     string   `yaml:"drop_policy"` // newest or oldest
	} `yaml:"pipeline"`
	Orchestrator struct {
		RestartBackoffBase Duration `yaml:"restart_backoff_base"`
		RestartBackoffMax  Duration `yaml:"restart_backoff_max"`
		FaultLimit         int      `yaml:"fault_limit"`
		FaultWindow        Duration `yaml:"fault_window"`
	} `yaml:"orchestrator"`
	Persistence struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
	} `yaml:"persistence"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TickTopic    string   `yaml:"tick_topic"`
		CandleTopic  string   `yaml:"candle_topic"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int      `yaml:"max_attempts"`
			BatchBytes   int      `yaml:"batch_bytes"`
			BatchSize    int      `yaml:"batch_size"`
			BatchTimeout Duration `yaml:"batch_timeout"`
			WriteTimeout Duration `yaml:"write_timeout"`
			ReadTimeout  Duration `yaml:"read_timeout"`
			Async        bool     `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string   `yaml:"group_id"`
			Workers    int      `yaml:"workers"`
			BufferSize int      `yaml:"buffer_size"`
			RetryMax   int      `yaml:"retry_max"`
			BackoffMin Duration `yaml:"backoff_min"`
			BackoffMax Duration `yaml:"backoff_max"`
			DLQTopic   string   `yaml:"dlq_topic"`
			MinBytes   int      `yaml:"min_bytes"`
			MaxBytes   int      `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string   `yaml:"host"`
		Port             int      `yaml:"port"`
		Database         string   `yaml:"database"`
		User             string   `yaml:"user"`
		Password         string   `yaml:"password"`
		UseHTTP          bool     `yaml:"use_http"`
		AsyncInsert      bool     `yaml:"async_insert"`
		WaitForAsync     bool     `yaml:"wait_for_async_insert"`
		DialTimeout      Duration `yaml:"dial_timeout"`
		ReadTimeout      Duration `yaml:"read_timeout"`
		WriteTimeout     Duration `yaml:"write_timeout"`
		MaxExecutionTime Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled         bool   `yaml:"enabled"`
		Addr            string `yaml:"addr"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		Prefix          string `yaml:"prefix"`
		SnapshotChannel string `yaml:"snapshot_channel"`
		CandleChannel   string `yaml:"candle_channel"`
	} `yaml:"redis"`
	RateLimit struct {
		Enabled bool `yaml:"enabled"`
		RPS     int  `yaml:"rps"`
		Burst   int  `yaml:"burst"`
	} `yaml:"ratelimit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_WS_URL"); v != "" {
		c.Feed.WebSocketURL = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Feed.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("PAIRS"); v != "" {
		c.Pipeline.Pairs = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required")
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols cannot be empty")
	}
	if c.Pipeline.CandleInterval <= 0 {
		return fmt.Errorf("pipeline.candle_interval must be positive")
	}
	if c.Pipeline.Window < 2 {
		return fmt.Errorf("pipeline.window must be at least 2")
	}
	switch c.Pipeline.StatsSource {
	case "", "candles", "ticks":
	default:
		return fmt.Errorf("pipeline.stats_source must be 'candles' or 'ticks', got %q", c.Pipeline.StatsSource)
	}
	seen := make(map[string]bool, len(c.Feed.Symbols))
	for _, s := range c.Feed.Symbols {
		seen[strings.ToLower(s)] = true
	}
	for _, p := range c.Pipeline.Pairs {
		legs := strings.Split(p, ":")
		if len(legs) != 2 || legs[0] == "" || legs[1] == "" {
			return fmt.Errorf("pipeline.pairs entry %q must be 'y:x'", p)
		}
		for _, leg := range legs {
			if !seen[strings.ToLower(leg)] {
				return fmt.Errorf("pipeline.pairs entry %q references unsubscribed symbol %q", p, leg)
			}
		}
	}
	if c.Persistence.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers are required when persistence is enabled")
	}
	return nil
}

package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"Tradeflow/pkg/util"
)

// Bar source kinds.
const (
	BarSourceFile       = "file"
	BarSourceClickHouse = "clickhouse"
	BarSourceStream     = "stream"
)

// Cache modes for the phase store.
const (
	CacheMemory  = "memory"
	CacheRedis   = "redis"
	CacheLayered = "layered"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		WebSocket       struct {
			PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
			CommandBurst float64       `yaml:"command_burst" default:"10"`
			CommandRate  float64       `yaml:"command_rate" default:"2"`
		} `yaml:"websocket"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled" default:"false"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
			Topic     string        `yaml:"topic" default:"tradeflow.logs"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Session struct {
		Timezone   string        `yaml:"timezone" default:"America/New_York"`
		NearClose  time.Duration `yaml:"near_close" default:"10m"`
		QuietStart string        `yaml:"quiet_start" default:"12:00"`
		QuietEnd   string        `yaml:"quiet_end" default:"13:00"`
	} `yaml:"session"`
	Phases struct {
		PlanningTimeframe    string        `yaml:"planning_timeframe" default:"1h"`
		PlanningLookbackDays int           `yaml:"planning_lookback_days" default:"5"`
		AutoChain            bool          `yaml:"auto_chain" default:"true"`
		ClaimTTL             time.Duration `yaml:"claim_ttl" default:"30m"`
		SubscriberBuffer     int           `yaml:"subscriber_buffer" default:"256"`
		CacheTTL             time.Duration `yaml:"cache_ttl" default:"168h"`
	} `yaml:"phases"`
	Strategy struct {
		Probes            []string `yaml:"probes" default:"[\"plan_zone\",\"trend_cross\",\"zone_fade\"]"`
		Lookback          int      `yaml:"lookback" default:"30"`
		MomentumPeriod    int      `yaml:"momentum_period" default:"14"`
		CrossMinutesAgo   int      `yaml:"cross_minutes_ago" default:"3"`
		CrossMinStrength  float64  `yaml:"cross_min_strength" default:"0.5"`
		ModelThreshold    float64  `yaml:"model_threshold" default:"0.6"`
		PlanZoneTimeframe string   `yaml:"plan_zone_timeframe" default:"1h"`
		Risk              struct {
			TickSize         float64 `yaml:"tick_size" default:"0.25"`
			PointValue       float64 `yaml:"point_value" default:"50"`
			StopTicks        int     `yaml:"stop_ticks" default:"16"`
			ProfitMultiplier float64 `yaml:"profit_multiplier" default:"2"`
			MaxRisk          float64 `yaml:"max_risk" default:"1000"`
			MaxContracts     int     `yaml:"max_contracts" default:"5"`
			TrailTicks       int     `yaml:"trail_ticks" default:"0"`
			MarketEntry      bool    `yaml:"market_entry" default:"false"`
		} `yaml:"risk"`
	} `yaml:"strategy"`
	Lifecycle struct {
		TieBreak   string        `yaml:"tie_break" default:"bar_direction"`
		StaleAfter time.Duration `yaml:"stale_after" default:"30m"`
	} `yaml:"lifecycle"`
	Engine struct {
		Symbol           string        `yaml:"symbol" default:"ES"`
		TradingTimeframe string        `yaml:"trading_timeframe" default:"1m"`
		TrendCapacity    int           `yaml:"trend_capacity" default:"390"`
		SwingStrength    int           `yaml:"swing_strength" default:"2"`
		PublishBuffer    int           `yaml:"publish_buffer" default:"1024"`
		PublishAttempts  int           `yaml:"publish_attempts" default:"3"`
		RetryBackoff     time.Duration `yaml:"retry_backoff" default:"100ms"`
	} `yaml:"engine"`
	BarSource struct {
		Type      string `yaml:"type" default:"clickhouse"`
		File      string `yaml:"file"`
		Table     string `yaml:"table" default:"tradeflow.bars"`
		Retention int    `yaml:"retention" default:"50000"`
		// Persist writes streamed bars to ClickHouse as well.
		Persist bool `yaml:"persist" default:"false"`
	} `yaml:"bar_source"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled" default:"true"`
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		EventsTopic  string   `yaml:"events_topic" default:"tradeflow.events"`
		BarsTopic    string   `yaml:"bars_topic" default:"tradeflow.bars"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async" default:"false"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradeflow-bars"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"tradeflow.bars.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradeflow"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http" default:"false"`
		AsyncInsert      bool          `yaml:"async_insert" default:"false"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Mode        string        `yaml:"mode" default:"memory"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db" default:"0"`
		Prefix      string        `yaml:"prefix" default:"tradeflow"`
		PoolSize    int           `yaml:"pool_size" default:"10"`
		MinIdle     int           `yaml:"min_idle" default:"2"`
		Timeout     time.Duration `yaml:"timeout" default:"3s"`
		MemorySize  int           `yaml:"memory_size" default:"1000"`
		MemoryTTL   time.Duration `yaml:"memory_ttl" default:"5m"`
		MemoryClean time.Duration `yaml:"memory_cleanup" default:"1m"`
	} `yaml:"redis"`
	Predictor struct {
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout" default:"2s"`
		Attempts int           `yaml:"attempts" default:"2"`
	} `yaml:"predictor"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing path yields the defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TRADEFLOW_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.EventsTopic = v
	}
	if v := getenv("BAR_SOURCE"); v != "" {
		c.BarSource.Type = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			host, port = v, ""
		}
		c.Redis.Host = host
		c.Redis.Port = util.ParseIntDefault(port, c.Redis.Port)
		if c.Redis.Mode == CacheMemory {
			c.Redis.Mode = CacheRedis
		}
	}
	if v := getenv("PREDICTOR_URL"); v != "" {
		c.Predictor.URL = v
	}
}

// QuietWindow returns the quiet window as offsets from local midnight.
func (c *Config) QuietWindow() (time.Duration, time.Duration, error) {
	start, ok := util.ParseClock(c.Session.QuietStart)
	if !ok {
		return 0, 0, fmt.Errorf("session.quiet_start %q is not HH:MM", c.Session.QuietStart)
	}
	end, ok := util.ParseClock(c.Session.QuietEnd)
	if !ok {
		return 0, 0, fmt.Errorf("session.quiet_end %q is not HH:MM", c.Session.QuietEnd)
	}
	return start, end, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Engine.Symbol == "" {
		return fmt.Errorf("engine.symbol is required")
	}
	if c.Engine.PublishBuffer <= 0 {
		return fmt.Errorf("engine.publish_buffer must be positive")
	}
	switch c.BarSource.Type {
	case BarSourceFile:
		if c.BarSource.File == "" {
			return fmt.Errorf("bar_source.file is required for the file source")
		}
	case BarSourceClickHouse:
	case BarSourceStream:
		if !c.Kafka.Enabled || c.Kafka.BarsTopic == "" {
			return fmt.Errorf("bar_source.type stream needs kafka.enabled and kafka.bars_topic")
		}
	default:
		return fmt.Errorf("bar_source.type must be 'file', 'clickhouse' or 'stream', got '%s'", c.BarSource.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	switch c.Redis.Mode {
	case CacheMemory, CacheRedis, CacheLayered:
	default:
		return fmt.Errorf("redis.mode must be 'memory', 'redis' or 'layered', got '%s'", c.Redis.Mode)
	}
	switch c.Lifecycle.TieBreak {
	case "bar_direction", "stop_first":
	default:
		return fmt.Errorf("lifecycle.tie_break must be 'bar_direction' or 'stop_first', got '%s'", c.Lifecycle.TieBreak)
	}
	if c.Strategy.Risk.TickSize <= 0 || c.Strategy.Risk.PointValue <= 0 {
		return fmt.Errorf("strategy.risk tick_size and point_value must be positive")
	}
	for _, p := range c.Strategy.Probes {
		switch p {
		case "plan_zone", "trend_cross", "zone_fade":
		case "model":
			if c.Predictor.URL == "" {
				return fmt.Errorf("strategy.probes: the model probe needs predictor.url")
			}
		default:
			return fmt.Errorf("strategy.probes: unknown probe %q", p)
		}
	}
	if _, _, err := c.QuietWindow(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	return nil
}

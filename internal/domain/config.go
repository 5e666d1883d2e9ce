package domain

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete txmon configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Detection rules
	Rules RulesConfig `yaml:"rules"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Report     ReportConfig     `yaml:"report"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// DatasetConfig controls where CSV data is read from and written to.
type DatasetConfig struct {
	// InputDir holds customers.csv, accounts.csv and transactions.csv.
	InputDir string `yaml:"input_dir"`

	// ExportDir receives processed CSVs after each run. Empty disables export.
	ExportDir string `yaml:"export_dir"`
}

// ReportConfig holds reporting settings.
type ReportConfig struct {
	TopCustomers int `yaml:"top_customers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Logger builds the structured logger described by c. Unknown levels fall
// back to info.
func (c LoggingConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory cache
// and a channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Rules: DefaultRulesConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./data/processed/sqlite/bank_data.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
			ReportTTL:    time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Dataset: DatasetConfig{
			InputDir:  "./data/raw",
			ExportDir: "./data/processed/CSVs",
		},
		Report: ReportConfig{
			TopCustomers: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "txmon",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and TXMON_* environment variables, in that order of precedence.
// An empty path falls back to TXMON_CONFIG_PATH.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("TXMON_CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TXMON_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TXMON_HTTP_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("TXMON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if os.Getenv("TXMON_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := os.Getenv("TXMON_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("TXMON_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("TXMON_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("TXMON_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("TXMON_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("TXMON_CACHE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("TXMON_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("TXMON_BUS"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("TXMON_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("TXMON_KAFKA_BROKERS"); v != "" {
		cfg.EventBus.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TXMON_HIGH_VALUE_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TXMON_HIGH_VALUE_THRESHOLD: %w", err)
		}
		cfg.Rules.HighValue.Threshold = threshold
	}
	if v := os.Getenv("TXMON_MAX_PER_DAY"); v != "" {
		maxPerDay, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TXMON_MAX_PER_DAY: %w", err)
		}
		cfg.Rules.Frequency.MaxPerDay = maxPerDay
	}
	return nil
}

// Package config loads and validates relay configuration via Viper.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/resort-relay/internal/caller"
	"github.com/JakeFAU/resort-relay/internal/entries/postgres"
	"github.com/JakeFAU/resort-relay/internal/facts"
	headlessfetcher "github.com/JakeFAU/resort-relay/internal/fetcher/headless"
	"github.com/JakeFAU/resort-relay/internal/logging"
	"github.com/JakeFAU/resort-relay/internal/policy/ratelimit"
	"github.com/JakeFAU/resort-relay/internal/slot"
	fileslot "github.com/JakeFAU/resort-relay/internal/slot/file"
	gcsslot "github.com/JakeFAU/resort-relay/internal/slot/gcs"
	redisslot "github.com/JakeFAU/resort-relay/internal/slot/redis"
	"github.com/JakeFAU/resort-relay/internal/weather"
)

// EnvPrefix namespaces environment overrides, e.g. RELAY_WEATHER_API_KEY.
const EnvPrefix = "RELAY"

// Slot backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Logging  logging.Config         `mapstructure:"logging"`
	Slot     SlotConfig             `mapstructure:"slot"`
	Weather  WeatherConfig          `mapstructure:"weather"`
	Facts    FactsConfig            `mapstructure:"facts"`
	Handoff  caller.Config          `mapstructure:"handoff"`
	DB       DBConfig               `mapstructure:"db"`
	PubSub   PubSubConfig           `mapstructure:"pubsub"`
	Headless headlessfetcher.Config `mapstructure:"headless"`
}

// ServerConfig controls the front-end HTTP server and the workers' admin
// listener.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	AdminAddr string `mapstructure:"admin_addr"`
	// EmbedWorkers runs both workers inside the front-end process.
	EmbedWorkers    bool          `mapstructure:"embed_workers"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SlotConfig selects the slot backend shared by callers and workers.
type SlotConfig struct {
	Backend string           `mapstructure:"backend"`
	Names   SlotNames        `mapstructure:"names"`
	File    fileslot.Config  `mapstructure:"file"`
	Redis   redisslot.Config `mapstructure:"redis"`
	GCS     gcsslot.Config   `mapstructure:"gcs"`
}

// SlotNames maps each role to a slot name. The legacy facts files were
// request.txt and response.txt.
type SlotNames struct {
	WeatherRequest  string `mapstructure:"weather_request"`
	WeatherResponse string `mapstructure:"weather_response"`
	FactsRequest    string `mapstructure:"facts_request"`
	FactsResponse   string `mapstructure:"facts_response"`
}

// WeatherConfig configures the weather worker and its upstream.
type WeatherConfig struct {
	APIKey string `mapstructure:"api_key"`
	// APIKeyFile is read once at startup; only its first line is used.
	APIKeyFile      string        `mapstructure:"api_key_file"`
	BaseURL         string        `mapstructure:"base_url"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// ClientConfig converts the section into a weather.ClientConfig.
func (w WeatherConfig) ClientConfig() weather.ClientConfig {
	return weather.ClientConfig{
		BaseURL:         w.BaseURL,
		APIKey:          w.APIKey,
		Timeout:         w.Timeout,
		BreakerFailures: w.BreakerFailures,
		BreakerCooldown: w.BreakerCooldown,
	}
}

// FactsConfig configures the facts worker.
type FactsConfig struct {
	BaseURL      string           `mapstructure:"base_url"`
	PollInterval time.Duration    `mapstructure:"poll_interval"`
	UserAgent    string           `mapstructure:"user_agent"`
	Timeout      time.Duration    `mapstructure:"timeout"`
	RateLimit    ratelimit.Config `mapstructure:"rate_limit"`
	// PromotionThreshold is the body size under which script-heavy articles
	// are rendered headless.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// DBConfig selects where visit entries live.
type DBConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	// EnsureSchema creates the entries table on startup.
	EnsureSchema bool `mapstructure:"ensure_schema"`
}

// Postgres converts the section into a postgres.Config.
func (d DBConfig) Postgres() postgres.Config {
	return postgres.Config{DSN: d.DSN, Table: d.Table, MaxConns: d.MaxConns}
}

// PubSubConfig holds metadata for result notifications. An empty topic
// disables publishing; an empty project keeps notifications in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from an optional .env file, an optional config file and
// the environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Weather.APIKey == "" && cfg.Weather.APIKeyFile != "" {
		key, err := readFirstLine(cfg.Weather.APIKeyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Weather.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open api key file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read api key file: %w", err)
		}
		return "", fmt.Errorf("api key file %s is empty", path)
	}
	return strings.TrimSpace(sc.Text()), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_addr", ":9090")
	v.SetDefault("server.embed_workers", false)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("slot.backend", BackendFile)
	v.SetDefault("slot.names.weather_request", slot.WeatherRequest)
	v.SetDefault("slot.names.weather_response", slot.WeatherResponse)
	v.SetDefault("slot.names.facts_request", slot.FactsRequest)
	v.SetDefault("slot.names.facts_response", slot.FactsResponse)
	v.SetDefault("slot.file.dir", "data/slots")
	v.SetDefault("slot.file.extension", ".txt")
	v.SetDefault("slot.redis.addr", "localhost:6379")
	v.SetDefault("slot.redis.username", "")
	v.SetDefault("slot.redis.password", "")
	v.SetDefault("slot.redis.db", 0)
	v.SetDefault("slot.redis.key_prefix", "relay:")
	v.SetDefault("slot.gcs.bucket", "")
	v.SetDefault("slot.gcs.prefix", "relay/")

	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.api_key_file", "")
	v.SetDefault("weather.base_url", weather.DefaultBaseURL)
	v.SetDefault("weather.poll_interval", "250ms")
	v.SetDefault("weather.timeout", "10s")
	v.SetDefault("weather.breaker_failures", 5)
	v.SetDefault("weather.breaker_cooldown", "1m")

	v.SetDefault("facts.base_url", facts.DefaultBaseURL)
	v.SetDefault("facts.poll_interval", "250ms")
	v.SetDefault("facts.user_agent", "resort-relay/1.0 (+https://github.com/JakeFAU/resort-relay)")
	v.SetDefault("facts.timeout", "15s")
	v.SetDefault("facts.rate_limit.rps", 1.0)
	v.SetDefault("facts.rate_limit.burst", 1)
	v.SetDefault("facts.promotion_threshold", 2048)

	v.SetDefault("handoff.timeout", caller.DefaultTimeout.String())
	v.SetDefault("handoff.poll_interval", caller.DefaultPollInterval.String())

	v.SetDefault("db.backend", BackendMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "visit_entries")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", true)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", "25s")
	v.SetDefault("headless.wait_selector", "table.infobox")
	v.SetDefault("headless.settle_delay", "0s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := c.Slot.validate(); err != nil {
		return err
	}
	if c.Weather.PollInterval <= 0 {
		return fmt.Errorf("weather.poll_interval must be > 0")
	}
	if c.Weather.Timeout <= 0 {
		return fmt.Errorf("weather.timeout must be > 0")
	}
	if c.Weather.BreakerFailures == 0 {
		return fmt.Errorf("weather.breaker_failures must be > 0")
	}
	if c.Facts.PollInterval <= 0 {
		return fmt.Errorf("facts.poll_interval must be > 0")
	}
	if c.Facts.Timeout <= 0 {
		return fmt.Errorf("facts.timeout must be > 0")
	}
	if c.Facts.RateLimit.RPS < 0 {
		return fmt.Errorf("facts.rate_limit.rps must be >= 0")
	}
	if c.Handoff.Timeout <= 0 {
		return fmt.Errorf("handoff.timeout must be > 0")
	}
	if c.Handoff.PollInterval <= 0 || c.Handoff.PollInterval >= c.Handoff.Timeout {
		return fmt.Errorf("handoff.poll_interval must be > 0 and below handoff.timeout")
	}
	if c.Server.RequestTimeout <= c.Handoff.Timeout {
		return fmt.Errorf("server.request_timeout must exceed handoff.timeout")
	}
	switch c.DB.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.backend is postgres")
		}
	default:
		return fmt.Errorf("unknown db.backend %q", c.DB.Backend)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	return nil
}

func (s SlotConfig) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.File.Dir == "" {
			return fmt.Errorf("slot.file.dir must be set when slot.backend is file")
		}
	case BackendRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("slot.redis.addr must be set when slot.backend is redis")
		}
	case BackendGCS:
		if s.GCS.Bucket == "" {
			return fmt.Errorf("slot.gcs.bucket must be set when slot.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown slot.backend %q", s.Backend)
	}
	names := []string{s.Names.WeatherRequest, s.Names.WeatherResponse, s.Names.FactsRequest, s.Names.FactsResponse}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := slot.ValidateName(name); err != nil {
			return fmt.Errorf("slot.names: %w", err)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("slot.names: %q is used twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

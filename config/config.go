// file: config/config.go

package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvironmentDevelopment is the only open deployment mode. In it the
// delivery gate is lifted and the missing-signature check is skipped.
const EnvironmentDevelopment = "development"

type Config struct {
	Environment string           `mapstructure:"environment"`
	NATS        NATSConfig       `mapstructure:"nats"`
	HTTP        HTTPConfig       `mapstructure:"http"`
	Federation  FederationConfig `mapstructure:"federation"`
	Resolver    ResolverConfig   `mapstructure:"resolver"`
	Logging     LogConfig        `mapstructure:"logging"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

type NATSConfig struct {
	URLs     []string `mapstructure:"urls"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Token    string   `mapstructure:"token"`

	// NATS-specific authentication
	NKeySeed  string `mapstructure:"nkeySeed"`  // User NKey seed (SU...)
	CredsFile string `mapstructure:"credsFile"` // Path to .creds file

	MaxReconnects int           `mapstructure:"maxReconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnectWait"`

	TLS TLSConfig `mapstructure:"tls"`
}

type TLSConfig struct {
	Enable   bool   `mapstructure:"enable"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
	Insecure bool   `mapstructure:"insecure"` // Skip certificate verification
}

// HTTPConfig contains HTTP server and client configuration
type HTTPConfig struct {
	Server HTTPServerConfig `mapstructure:"server"`
	Client HTTPClientConfig `mapstructure:"client"`
}

// HTTPServerConfig configures the inbound inbox server
type HTTPServerConfig struct {
	Address             string        `mapstructure:"address"`
	ReadTimeout         time.Duration `mapstructure:"readTimeout"`
	WriteTimeout        time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout         time.Duration `mapstructure:"idleTimeout"`
	MaxHeaderBytes      int           `mapstructure:"maxHeaderBytes"`
	MaxBodyBytes        int64         `mapstructure:"maxBodyBytes"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdownGracePeriod"`
	InboundWorkerCount  int           `mapstructure:"inboundWorkerCount"`
	InboundQueueSize    int           `mapstructure:"inboundQueueSize"`
}

// HTTPClientConfig configures the outbound client used to fetch actor documents
type HTTPClientConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxIdleConnsPerHost"`
	IdleConnTimeout     time.Duration `mapstructure:"idleConnTimeout"`
	UserAgent           string        `mapstructure:"userAgent"`
}

type FederationConfig struct {
	// GateEnabled rejects every delivery with 405 outside development.
	// Server-to-server delivery is not yet supported in production.
	GateEnabled   bool          `mapstructure:"gateEnabled"`
	InboxPaths    []string      `mapstructure:"inboxPaths"`
	SubjectPrefix string        `mapstructure:"subjectPrefix"`
	PublishMode   string        `mapstructure:"publishMode"` // "jetstream" or "core"
	AckTimeout    time.Duration `mapstructure:"ackTimeout"`
}

type ResolverConfig struct {
	CacheTTL               time.Duration `mapstructure:"cacheTTL"`
	CacheMaxEntrySize      int           `mapstructure:"cacheMaxEntrySize"`
	KVEnabled              bool          `mapstructure:"kvEnabled"`
	KVBucket               string        `mapstructure:"kvBucket"`
	KVTTL                  time.Duration `mapstructure:"kvTTL"`
	TombstoneRetention     time.Duration `mapstructure:"tombstoneRetention"`
	TombstoneSweepSchedule string        `mapstructure:"tombstoneSweepSchedule"` // standard cron expression
}

type LogConfig struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	OutputPath string `mapstructure:"outputPath"` // file path or "stdout"
	Encoding   string `mapstructure:"encoding"`   // json or console
}

type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Address        string `mapstructure:"address"`
	Path           string `mapstructure:"path"`
	UpdateInterval string `mapstructure:"updateInterval"` // Duration string
}

// Load reads configuration from a YAML or JSON file using Viper.
// Every key can be overridden from the environment with the FEDGATE_
// prefix, e.g. FEDGATE_HTTP_SERVER_ADDRESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("FEDGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variable wins even when the key is absent from the file
	if env := v.GetString("environment"); env != "" {
		cfg.Environment = env
	}

	setDefaults(&cfg, v)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied and nothing
// read from disk.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg, nil)
	return cfg
}

// IsDevelopment reports whether the deployment runs in open mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// setDefaults sets default values for configuration. Booleans that default
// to true are only applied when the key was not set explicitly.
func setDefaults(cfg *Config, v *viper.Viper) {
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}

	// NATS defaults
	if len(cfg.NATS.URLs) == 0 {
		cfg.NATS.URLs = []string{"nats://localhost:4222"}
	}
	if cfg.NATS.MaxReconnects == 0 {
		cfg.NATS.MaxReconnects = -1 // Unlimited
	}
	if cfg.NATS.ReconnectWait == 0 {
		cfg.NATS.ReconnectWait = 50 * time.Millisecond
	}

	// HTTP Server defaults
	if cfg.HTTP.Server.Address == "" {
		cfg.HTTP.Server.Address = ":8080"
	}
	if cfg.HTTP.Server.ReadTimeout == 0 {
		cfg.HTTP.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.Server.WriteTimeout == 0 {
		cfg.HTTP.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.Server.IdleTimeout == 0 {
		cfg.HTTP.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.HTTP.Server.MaxHeaderBytes == 0 {
		cfg.HTTP.Server.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.Server.MaxBodyBytes == 0 {
		cfg.HTTP.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.HTTP.Server.ShutdownGracePeriod == 0 {
		cfg.HTTP.Server.ShutdownGracePeriod = 30 * time.Second
	}
	if cfg.HTTP.Server.InboundWorkerCount <= 0 {
		cfg.HTTP.Server.InboundWorkerCount = runtime.NumCPU()
	}
	if cfg.HTTP.Server.InboundQueueSize <= 0 {
		cfg.HTTP.Server.InboundQueueSize = 1000
	}

	// HTTP Client defaults
	if cfg.HTTP.Client.Timeout == 0 {
		cfg.HTTP.Client.Timeout = 10 * time.Second
	}
	if cfg.HTTP.Client.MaxIdleConns == 0 {
		cfg.HTTP.Client.MaxIdleConns = 100
	}
	if cfg.HTTP.Client.MaxIdleConnsPerHost == 0 {
		cfg.HTTP.Client.MaxIdleConnsPerHost = 10
	}
	if cfg.HTTP.Client.IdleConnTimeout == 0 {
		cfg.HTTP.Client.IdleConnTimeout = 90 * time.Second
	}
	if cfg.HTTP.Client.UserAgent == "" {
		cfg.HTTP.Client.UserAgent = "fedgate/1.0"
	}

	// Federation defaults
	if v == nil || !v.IsSet("federation.gateEnabled") {
		cfg.Federation.GateEnabled = true
	}
	if len(cfg.Federation.InboxPaths) == 0 {
		cfg.Federation.InboxPaths = []string{"/inbox"}
	}
	if cfg.Federation.SubjectPrefix == "" {
		cfg.Federation.SubjectPrefix = "fedgate.inbox"
	}
	if cfg.Federation.PublishMode == "" {
		cfg.Federation.PublishMode = "jetstream"
	}
	if cfg.Federation.AckTimeout == 0 {
		cfg.Federation.AckTimeout = 5 * time.Second
	}

	// Resolver defaults
	if cfg.Resolver.CacheTTL == 0 {
		cfg.Resolver.CacheTTL = 10 * time.Minute
	}
	if cfg.Resolver.CacheMaxEntrySize == 0 {
		cfg.Resolver.CacheMaxEntrySize = 8192
	}
	if v == nil || !v.IsSet("resolver.kvEnabled") {
		cfg.Resolver.KVEnabled = true
	}
	if cfg.Resolver.KVBucket == "" {
		cfg.Resolver.KVBucket = "actors"
	}
	if cfg.Resolver.KVTTL == 0 {
		cfg.Resolver.KVTTL = 24 * time.Hour
	}
	if cfg.Resolver.TombstoneRetention == 0 {
		cfg.Resolver.TombstoneRetention = 7 * 24 * time.Hour
	}
	if cfg.Resolver.TombstoneSweepSchedule == "" {
		cfg.Resolver.TombstoneSweepSchedule = "0 * * * *"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = "stdout"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "json"
	}

	// Metrics defaults
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":2112"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.UpdateInterval == "" {
		cfg.Metrics.UpdateInterval = "15s"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if len(cfg.NATS.URLs) == 0 {
		return fmt.Errorf("at least one NATS server URL is required")
	}

	// Validate authentication options are not conflicting
	authCount := 0
	if cfg.NATS.Username != "" {
		authCount++
	}
	if cfg.NATS.Token != "" {
		authCount++
	}
	if cfg.NATS.NKeySeed != "" {
		authCount++
	}
	if cfg.NATS.CredsFile != "" {
		authCount++
	}
	if authCount > 1 {
		return fmt.Errorf("only one NATS authentication method should be specified")
	}

	if cfg.NATS.TLS.Enable {
		if (cfg.NATS.TLS.CertFile == "") != (cfg.NATS.TLS.KeyFile == "") {
			return fmt.Errorf("NATS TLS requires both certFile and keyFile to be specified together")
		}
	}

	if cfg.NATS.CredsFile != "" {
		if _, err := os.Stat(cfg.NATS.CredsFile); os.IsNotExist(err) {
			return fmt.Errorf("NATS creds file does not exist: %s", cfg.NATS.CredsFile)
		}
	}

	if cfg.HTTP.Server.Address == "" {
		return fmt.Errorf("HTTP server address cannot be empty")
	}
	if cfg.HTTP.Server.ReadTimeout < 0 {
		return fmt.Errorf("HTTP server read timeout cannot be negative")
	}
	if cfg.HTTP.Client.Timeout < 0 {
		return fmt.Errorf("HTTP client timeout cannot be negative")
	}

	for _, p := range cfg.Federation.InboxPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("inbox path must start with '/': %s", p)
		}
	}
	switch cfg.Federation.PublishMode {
	case "jetstream", "core":
	default:
		return fmt.Errorf("invalid publish mode: %s", cfg.Federation.PublishMode)
	}

	if cfg.Resolver.CacheTTL < 0 {
		return fmt.Errorf("resolver cache TTL cannot be negative")
	}
	if cfg.Resolver.TombstoneRetention < 0 {
		return fmt.Errorf("tombstone retention cannot be negative")
	}
	if _, err := cron.ParseStandard(cfg.Resolver.TombstoneSweepSchedule); err != nil {
		return fmt.Errorf("invalid tombstone sweep schedule: %w", err)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(environment, listenAddr, metricsAddr string, workers int) {
	if environment != "" {
		c.Environment = environment
	}
	if listenAddr != "" {
		c.HTTP.Server.Address = listenAddr
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if workers > 0 {
		c.HTTP.Server.InboundWorkerCount = workers
	}
}

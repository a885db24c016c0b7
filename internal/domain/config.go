package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure backends
	Tier Tier `json:"tier"`

	// Component configurations
	Graph    GraphConfig    `json:"graph"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`

	// Detection parameters
	Detection DetectionConfig `json:"detection"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + local LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DetectionConfig is the recognized detector parameter surface.
// Zero values fall back to defaults via Normalize.
type DetectionConfig struct {
	MinCycleLength    int     `json:"min_cycle_length"`
	MaxCycleLength    int     `json:"max_cycle_length"`
	CycleWindowDays   int     `json:"cycle_window_days"`
	StrictCycles      bool    `json:"strict_cycles"`
	FanMinCount       int     `json:"fan_min_count"`
	FanWindowHours    int     `json:"fan_window_hours"`
	MuleMinThroughput float64 `json:"mule_min_throughput"`
	MuleMaxHoldHours  int     `json:"mule_max_hold_hours"`
	InfraWindowDays   int     `json:"infra_window_days"`
	DetectorTimeoutMs int     `json:"detector_timeout_ms"`
	GlobalTimeoutMs   int     `json:"global_timeout_ms"`
}

// DefaultDetectionConfig returns detection defaults.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MinCycleLength:    3,
		MaxCycleLength:    8,
		CycleWindowDays:   30,
		StrictCycles:      false,
		FanMinCount:       5,
		FanWindowHours:    24,
		MuleMinThroughput: 10000,
		MuleMaxHoldHours:  48,
		InfraWindowDays:   30,
		DetectorTimeoutMs: 5000,
		GlobalTimeoutMs:   30000,
	}
}

// Normalize fills unset fields from defaults and returns the result.
func (d DetectionConfig) Normalize() DetectionConfig {
	def := DefaultDetectionConfig()
	if d.MinCycleLength <= 0 {
		d.MinCycleLength = def.MinCycleLength
	}
	if d.MaxCycleLength <= 0 {
		d.MaxCycleLength = def.MaxCycleLength
	}
	if d.MaxCycleLength < d.MinCycleLength {
		d.MaxCycleLength = d.MinCycleLength
	}
	if d.CycleWindowDays <= 0 {
		d.CycleWindowDays = def.CycleWindowDays
	}
	if d.FanMinCount <= 0 {
		d.FanMinCount = def.FanMinCount
	}
	if d.FanWindowHours <= 0 {
		d.FanWindowHours = def.FanWindowHours
	}
	if d.MuleMinThroughput <= 0 {
		d.MuleMinThroughput = def.MuleMinThroughput
	}
	if d.MuleMaxHoldHours <= 0 {
		d.MuleMaxHoldHours = def.MuleMaxHoldHours
	}
	if d.InfraWindowDays <= 0 {
		d.InfraWindowDays = def.InfraWindowDays
	}
	if d.DetectorTimeoutMs <= 0 {
		d.DetectorTimeoutMs = def.DetectorTimeoutMs
	}
	if d.GlobalTimeoutMs <= 0 {
		d.GlobalTimeoutMs = def.GlobalTimeoutMs
	}
	return d
}

// DetectorTimeout returns the per-detector soft timeout.
func (d DetectionConfig) DetectorTimeout() time.Duration {
	return time.Duration(d.DetectorTimeoutMs) * time.Millisecond
}

// GlobalTimeout returns the whole-run timeout.
func (d DetectionConfig) GlobalTimeout() time.Duration {
	return time.Duration(d.GlobalTimeoutMs) * time.Millisecond
}

// CycleWindow returns the circular-flow trailing window.
func (d DetectionConfig) CycleWindow() time.Duration {
	return time.Duration(d.CycleWindowDays) * 24 * time.Hour
}

// FanWindow returns the fan-out/fan-in trailing window.
func (d DetectionConfig) FanWindow() time.Duration {
	return time.Duration(d.FanWindowHours) * time.Hour
}

// MuleMaxHold returns the maximum in/out hold gap.
func (d DetectionConfig) MuleMaxHold() time.Duration {
	return time.Duration(d.MuleMaxHoldHours) * time.Hour
}

// InfraWindow returns the shared-infrastructure trailing window.
func (d DetectionConfig) InfraWindow() time.Duration {
	return time.Duration(d.InfraWindowDays) * 24 * time.Hour
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Graph: GraphConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DefaultDetectionConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Graph = GraphConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadFromEnv overlays HARRIER_* environment variables onto the config.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("HARRIER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := envInt("HARRIER_PORT"); v > 0 {
		c.Server.Port = v
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		c.Graph.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		c.Graph.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		c.Graph.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		c.Graph.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		c.Graph.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		c.EventBus.NATSUrl = v
	}

	if v := envInt("HARRIER_MIN_CYCLE_LENGTH"); v > 0 {
		c.Detection.MinCycleLength = v
	}
	if v := envInt("HARRIER_MAX_CYCLE_LENGTH"); v > 0 {
		c.Detection.MaxCycleLength = v
	}
	if v := envInt("HARRIER_CYCLE_WINDOW_DAYS"); v > 0 {
		c.Detection.CycleWindowDays = v
	}
	if os.Getenv("HARRIER_STRICT_CYCLES") == "true" {
		c.Detection.StrictCycles = true
	}
	if v := envInt("HARRIER_FAN_MIN_COUNT"); v > 0 {
		c.Detection.FanMinCount = v
	}
	if v := envInt("HARRIER_FAN_WINDOW_HOURS"); v > 0 {
		c.Detection.FanWindowHours = v
	}
	if v := envFloat("HARRIER_MULE_MIN_THROUGHPUT"); v > 0 {
		c.Detection.MuleMinThroughput = v
	}
	if v := envInt("HARRIER_MULE_MAX_HOLD_HOURS"); v > 0 {
		c.Detection.MuleMaxHoldHours = v
	}
	if v := envInt("HARRIER_DETECTOR_TIMEOUT_MS"); v > 0 {
		c.Detection.DetectorTimeoutMs = v
	}
	if v := envInt("HARRIER_GLOBAL_TIMEOUT_MS"); v > 0 {
		c.Detection.GlobalTimeoutMs = v
	}
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

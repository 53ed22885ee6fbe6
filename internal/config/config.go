package config

import (
	"fmt"
	"strings"
	"time"

	"GasMonitorAPI/internal/aggregation"
	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/retry"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Registry sources.
const (
	RegistryFleet    = "fleet"
	RegistryFile     = "file"
	RegistryDatabase = "database"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Security    SecurityConfig    `mapstructure:"security"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Store       StoreConfig       `mapstructure:"store"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Hub         HubConfig         `mapstructure:"hub"`
	Sink        SinkConfig        `mapstructure:"sink"`
	Simulator   SimulatorConfig   `mapstructure:"simulator"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	Port           int           `mapstructure:"port"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TelemetryTopic string        `mapstructure:"telemetry_topic"`
	QoS            byte          `mapstructure:"qos"`
	RetainMessages bool          `mapstructure:"retain"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AutoReconnect  bool          `mapstructure:"auto_reconnect"`
	// SubmitTimeout bounds how long a message waits for room in the ingest queue.
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

type SecurityConfig struct {
	AuthEnabled        bool     `mapstructure:"auth_enabled"`
	JWTSecret          string   `mapstructure:"jwt_secret"`
	JWTExpirationHours int      `mapstructure:"jwt_expiration_hours"`
	JWTIssuer          string   `mapstructure:"jwt_issuer"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods []string `mapstructure:"cors_allowed_methods"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	EnableRateLimit    bool     `mapstructure:"enable_rate_limit"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Mode      string `mapstructure:"mode"`
	FilePath  string `mapstructure:"file_path"`
	UseColors bool   `mapstructure:"use_colors"`
	JSON      bool   `mapstructure:"json"`
}

// Logger converts the section into logger settings.
func (l LoggingConfig) Logger() logger.Config {
	return logger.Config{
		Level:       logger.ParseLevel(l.Level),
		Mode:        logger.ParseMode(l.Mode),
		LogFilePath: l.FilePath,
		UseColors:   l.UseColors,
		JSON:        l.JSON,
	}
}

type RegistryConfig struct {
	Source    string          `mapstructure:"source"`
	Prefix    string          `mapstructure:"prefix"`
	FleetSize int             `mapstructure:"fleet_size"`
	Devices   []models.Device `mapstructure:"devices"`
}

type StoreConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	Tolerance     time.Duration `mapstructure:"tolerance"`
	MaxFutureSkew time.Duration `mapstructure:"max_future_skew"`
}

type IngestConfig struct {
	QueueSize      int `mapstructure:"queue_size"`
	Workers        int `mapstructure:"workers"`
	ShardQueueSize int `mapstructure:"shard_queue_size"`
}

type AggregationConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlignToStart bool          `mapstructure:"align_to_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	// Thresholds overrides the built-in table, keyed by quantity then window label.
	Thresholds map[string]map[string]aggregation.Limit `mapstructure:"thresholds"`
}

type HubConfig struct {
	QueueSize     int           `mapstructure:"queue_size"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type SinkConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Retry         retry.Config  `mapstructure:"retry"`

	// AlertRetention is how long persisted alerts are kept; zero keeps them forever.
	AlertRetention time.Duration `mapstructure:"alert_retention"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type SimulatorConfig struct {
	Devices  int           `mapstructure:"devices"`
	Interval time.Duration `mapstructure:"interval"`
	Seed     int64         `mapstructure:"seed"`
	// SpikeChance is the per-reading probability of a CO excursion.
	SpikeChance float64 `mapstructure:"spike_chance"`
}

// envBindings maps config keys to the environment variable names operators use.
var envBindings = map[string]string{
	"server.host":             "SERVER_HOST",
	"server.port":             "SERVER_PORT",
	"server.environment":      "ENVIRONMENT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"server.read_timeout":     "READ_TIMEOUT",
	"server.write_timeout":    "WRITE_TIMEOUT",
	"server.max_header_bytes": "MAX_HEADER_BYTES",

	"database.host":               "DB_HOST",
	"database.port":               "DB_PORT",
	"database.user":               "DB_USER",
	"database.password":           "DB_PASSWORD",
	"database.name":               "DB_NAME",
	"database.ssl_mode":           "DB_SSL_MODE",
	"database.max_open_conns":     "DB_MAX_OPEN_CONNS",
	"database.max_idle_conns":     "DB_MAX_IDLE_CONNS",
	"database.conn_max_lifetime":  "DB_CONN_MAX_LIFETIME",
	"database.conn_max_idle_time": "DB_CONN_MAX_IDLE_TIME",

	"mqtt.broker":          "MQTT_BROKER",
	"mqtt.port":            "MQTT_PORT",
	"mqtt.client_id":       "MQTT_CLIENT_ID",
	"mqtt.username":        "MQTT_USERNAME",
	"mqtt.password":        "MQTT_PASSWORD",
	"mqtt.telemetry_topic": "MQTT_TELEMETRY_TOPIC",
	"mqtt.qos":             "MQTT_QOS",
	"mqtt.retain":          "MQTT_RETAIN",
	"mqtt.keep_alive":      "MQTT_KEEP_ALIVE",
	"mqtt.connect_timeout": "MQTT_CONNECT_TIMEOUT",
	"mqtt.auto_reconnect":  "MQTT_AUTO_RECONNECT",
	"mqtt.submit_timeout":  "MQTT_SUBMIT_TIMEOUT",

	"security.auth_enabled":          "AUTH_ENABLED",
	"security.jwt_secret":            "JWT_SECRET",
	"security.jwt_expiration_hours":  "JWT_EXPIRATION_HOURS",
	"security.jwt_issuer":            "JWT_ISSUER",
	"security.cors_allowed_origins":  "CORS_ALLOWED_ORIGINS",
	"security.cors_allowed_methods":  "CORS_ALLOWED_METHODS",
	"security.rate_limit_per_minute": "RATE_LIMIT_PER_MINUTE",
	"security.enable_rate_limit":     "ENABLE_RATE_LIMIT",

	"logging.level":      "LOG_LEVEL",
	"logging.mode":       "LOG_MODE",
	"logging.file_path":  "LOG_FILE_PATH",
	"logging.use_colors": "LOG_USE_COLORS",
	"logging.json":       "LOG_JSON",

	"registry.source":     "REGISTRY_SOURCE",
	"registry.prefix":     "REGISTRY_PREFIX",
	"registry.fleet_size": "FLEET_SIZE",

	"store.retention":       "STORE_RETENTION",
	"store.tolerance":       "STORE_TOLERANCE",
	"store.max_future_skew": "STORE_MAX_FUTURE_SKEW",

	"ingest.queue_size":       "INGEST_QUEUE_SIZE",
	"ingest.workers":          "INGEST_WORKERS",
	"ingest.shard_queue_size": "INGEST_SHARD_QUEUE_SIZE",

	"aggregation.interval":       "AGGREGATION_INTERVAL",
	"aggregation.align_to_start": "AGGREGATION_ALIGN",
	"aggregation.startup_delay":  "AGGREGATION_STARTUP_DELAY",

	"hub.queue_size":     "HUB_QUEUE_SIZE",
	"hub.stats_interval": "HUB_STATS_INTERVAL",

	"sink.enabled":         "SINK_ENABLED",
	"sink.queue_size":      "SINK_QUEUE_SIZE",
	"sink.batch_size":      "SINK_BATCH_SIZE",
	"sink.flush_interval":  "SINK_FLUSH_INTERVAL",
	"sink.alert_retention": "SINK_ALERT_RETENTION",
	"sink.sweep_interval":  "SINK_SWEEP_INTERVAL",

	"simulator.devices":      "SIM_DEVICES",
	"simulator.interval":     "SIM_INTERVAL",
	"simulator.seed":         "SIM_SEED",
	"simulator.spike_chance": "SIM_SPIKE_CHANCE",
}

// Load reads .env, then the optional YAML file at path, then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gasmonitor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.max_header_bytes", 1048576)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gas_monitor")
	v.SetDefault("database.name", "gas_monitor")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "gas-monitor")
	v.SetDefault("mqtt.telemetry_topic", "safety/devices/+/telemetry")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.keep_alive", "60s")
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.auto_reconnect", true)
	v.SetDefault("mqtt.submit_timeout", "100ms")

	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.jwt_secret", "gas_monitor_secret_change_in_production")
	v.SetDefault("security.jwt_expiration_hours", 24)
	v.SetDefault("security.jwt_issuer", "gas-monitor")
	v.SetDefault("security.cors_allowed_origins", []string{"*"})
	v.SetDefault("security.cors_allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("security.rate_limit_per_minute", 100)
	v.SetDefault("security.enable_rate_limit", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.mode", "normal")
	v.SetDefault("logging.use_colors", true)
	v.SetDefault("logging.json", false)

	v.SetDefault("registry.source", RegistryFleet)
	v.SetDefault("registry.prefix", "")
	v.SetDefault("registry.fleet_size", 50)

	v.SetDefault("store.retention", models.LongestWindow().String())
	v.SetDefault("store.tolerance", "5s")
	v.SetDefault("store.max_future_skew", "2m")

	v.SetDefault("ingest.queue_size", 1024)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.shard_queue_size", 64)

	v.SetDefault("aggregation.interval", "60s")
	v.SetDefault("aggregation.align_to_start", false)
	v.SetDefault("aggregation.startup_delay", "0s")

	v.SetDefault("hub.queue_size", 256)
	v.SetDefault("hub.stats_interval", "1m")

	v.SetDefault("sink.enabled", false)
	v.SetDefault("sink.queue_size", 4096)
	v.SetDefault("sink.batch_size", 200)
	v.SetDefault("sink.flush_interval", "2s")
	v.SetDefault("sink.alert_retention", "720h")
	v.SetDefault("sink.sweep_interval", "1h")
	v.SetDefault("sink.retry.max_attempts", 4)
	v.SetDefault("sink.retry.initial_delay", "200ms")
	v.SetDefault("sink.retry.max_delay", "5s")
	v.SetDefault("sink.retry.multiplier", 2.0)
	v.SetDefault("sink.retry.jitter", true)

	v.SetDefault("simulator.devices", 10)
	v.SetDefault("simulator.interval", "5s")
	v.SetDefault("simulator.seed", 0)
	v.SetDefault("simulator.spike_chance", 0.02)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Thresholds returns the built-in table overlaid with the configured overrides.
func (c *Config) Thresholds() (aggregation.Thresholds, error) {
	overrides := aggregation.Thresholds{}
	for name, windows := range c.Aggregation.Thresholds {
		q, ok := models.ParseQuantity(name)
		if !ok {
			return nil, fmt.Errorf("aggregation.thresholds: unknown quantity %q", name)
		}
		overrides[q] = windows
	}
	merged := aggregation.DefaultThresholds().Merge(overrides)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("aggregation.thresholds: %w", err)
	}
	return merged, nil
}

// DSN renders the lib/pq connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Database,
		d.SSLMode,
	)
}

func (m *MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", m.Broker, m.Port)
}

// NeedsDatabase reports whether any enabled component uses PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Sink.Enabled || c.Registry.Source == RegistryDatabase
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errors = append(errors, "MQTT_PORT must be between 1 and 65535")
	}
	if c.MQTT.QoS > 2 {
		errors = append(errors, "MQTT_QOS must be 0, 1 or 2")
	}
	if c.MQTT.TelemetryTopic == "" {
		errors = append(errors, "MQTT_TELEMETRY_TOPIC cannot be empty")
	}

	if c.NeedsDatabase() {
		if c.Database.Password == "" {
			errors = append(errors, "DB_PASSWORD cannot be empty when the database is used")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			errors = append(errors, "DB_PORT must be between 1 and 65535")
		}
	}

	if c.Security.AuthEnabled && len(c.Security.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters when auth is enabled")
	}

	switch c.Registry.Source {
	case RegistryFleet:
		if c.Registry.FleetSize < 1 {
			errors = append(errors, "FLEET_SIZE must be positive")
		}
	case RegistryFile:
		if len(c.Registry.Devices) == 0 {
			errors = append(errors, "registry.devices must list at least one device for the file source")
		}
	case RegistryDatabase:
	default:
		errors = append(errors, fmt.Sprintf("REGISTRY_SOURCE %q must be one of fleet, file, database", c.Registry.Source))
	}

	if c.Store.Retention != models.LongestWindow() {
		errors = append(errors, fmt.Sprintf("STORE_RETENTION must equal the longest window (%s)", models.LongestWindow()))
	}
	if c.Store.Tolerance < 0 {
		errors = append(errors, "STORE_TOLERANCE cannot be negative")
	}
	if c.Aggregation.Interval <= 0 {
		errors = append(errors, "AGGREGATION_INTERVAL must be greater than zero")
	}
	if c.Ingest.QueueSize < 1 || c.Ingest.Workers < 1 {
		errors = append(errors, "INGEST_QUEUE_SIZE and INGEST_WORKERS must be positive")
	}
	if c.Hub.QueueSize < 1 {
		errors = append(errors, "HUB_QUEUE_SIZE must be positive")
	}
	if c.Sink.Enabled && (c.Sink.BatchSize < 1 || c.Sink.FlushInterval <= 0) {
		errors = append(errors, "SINK_BATCH_SIZE and SINK_FLUSH_INTERVAL must be positive")
	}
	if c.Sink.Enabled && c.Sink.AlertRetention > 0 && c.Sink.SweepInterval <= 0 {
		errors = append(errors, "SINK_SWEEP_INTERVAL must be positive when SINK_ALERT_RETENTION is set")
	}
	if c.Sink.AlertRetention < 0 {
		errors = append(errors, "SINK_ALERT_RETENTION cannot be negative")
	}
	if _, err := c.Thresholds(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║           Gas Exposure Monitor - Configuration           ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Printf("Environment:     %s\n", c.Server.Environment)
	fmt.Printf("Server:          %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Printf("MQTT Broker:     %s:%d (%s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.TelemetryTopic)
	fmt.Printf("Registry:        %s\n", c.Registry.Source)
	fmt.Printf("Aggregation:     every %s\n", c.Aggregation.Interval)
	if c.NeedsDatabase() {
		fmt.Printf("Database:        %s:%d/%s\n", c.Database.Host, c.Database.Port, c.Database.Database)
	} else {
		fmt.Println("Database:        disabled")
	}
	fmt.Printf("Viewer auth:     %t\n", c.Security.AuthEnabled)
	fmt.Println("──────────────────────────────────────────────────────────")
}

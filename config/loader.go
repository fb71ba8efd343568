package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gamebyte/switchboard/assets"
	"github.com/gamebyte/switchboard/runctl"
	"github.com/gamebyte/switchboard/store"
	"github.com/gamebyte/switchboard/stream"
	"github.com/gamebyte/switchboard/types"
)

// Config is the complete switchboard configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server" env:"SERVER"`
	Handoff   HandoffConfig     `yaml:"handoff" env:"HANDOFF"`
	Store     StoreConfig       `yaml:"store" env:"STORE"`
	Engine    EngineConfig      `yaml:"engine" env:"ENGINE"`
	Stream    StreamConfig      `yaml:"stream" env:"STREAM"`
	Assets    AssetsConfig      `yaml:"assets" env:"ASSETS"`
	Auth      AuthConfig        `yaml:"auth" env:"AUTH"`
	RateLimit RateLimitConfig   `yaml:"rate_limit" env:"RATE_LIMIT"`
	Log       LogConfig         `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig   `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// EnableH2C serves HTTP/2 over cleartext for in-cluster callers.
	EnableH2C bool `yaml:"enable_h2c" env:"ENABLE_H2C"`
	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. Empty denies cross-origin requests.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// HandoffConfig configures the per-conversation coordinator.
type HandoffConfig struct {
	// StopTimeout bounds the best-effort stop of the previous run.
	StopTimeout time.Duration `yaml:"stop_timeout" env:"STOP_TIMEOUT"`
	// DefaultModel seeds a fresh conversation's settings.
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// DefaultThinking seeds the extended-thinking toggle.
	DefaultThinking bool `yaml:"default_thinking" env:"DEFAULT_THINKING"`
	// DefaultEffort seeds the reasoning effort: low, medium, high.
	DefaultEffort string `yaml:"default_effort" env:"DEFAULT_EFFORT"`
}

// StoreConfig configures message persistence.
type StoreConfig struct {
	// Type selects the backend: memory, redis, sqlite, mysql, postgres, mongo.
	Type  string      `yaml:"type" env:"TYPE"`
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	Mongo    MongoConfig    `yaml:"mongo" env:"MONGO"`

	CleanupEnabled   bool          `yaml:"cleanup_enabled" env:"CLEANUP_ENABLED"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	CleanupRetention time.Duration `yaml:"cleanup_retention" env:"CLEANUP_RETENTION"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host      string `yaml:"host" env:"HOST"`
	Port      int    `yaml:"port" env:"PORT"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the SQL backends.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string `yaml:"uri" env:"URI"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// EngineConfig configures the run engine client.
type EngineConfig struct {
	BaseURL            string        `yaml:"base_url" env:"BASE_URL"`
	APIKey             string        `yaml:"api_key" env:"API_KEY"`
	ServiceTokenSecret string        `yaml:"service_token_secret" env:"SERVICE_TOKEN_SECRET"`
	ServiceTokenTTL    time.Duration `yaml:"service_token_ttl" env:"SERVICE_TOKEN_TTL"`
	Timeout            time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries         int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBackoff       time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	RateLimit          float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst          int           `yaml:"rate_burst" env:"RATE_BURST"`
}

// StreamConfig configures the run event stream transport.
type StreamConfig struct {
	// Transport: sse or websocket.
	Transport   string        `yaml:"transport" env:"TRANSPORT"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Buffer      int           `yaml:"buffer" env:"BUFFER"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// AssetsConfig configures the visual asset generator.
type AssetsConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AuthConfig configures inbound API authentication.
type AuthConfig struct {
	// APIKeys accepted on X-API-Key; empty disables the check.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWTSecret validates bearer tokens; empty disables JWT auth.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// RateLimitConfig configures inbound request rate limiting.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" env:"ENABLED"`
	RPS     float64 `yaml:"rps" env:"RPS"`
	Burst   int     `yaml:"burst" env:"BURST"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a configuration loader with the SWITCHBOARD env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SWITCHBOARD",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration. Precedence: defaults, YAML file, environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration or panics. Initialization use only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Handoff.StopTimeout <= 0 {
		errs = append(errs, "handoff stop_timeout must be positive")
	}
	switch types.ReasoningEffort(c.Handoff.DefaultEffort) {
	case types.EffortLow, types.EffortMedium, types.EffortHigh:
	default:
		errs = append(errs, "handoff default_effort must be low, medium or high")
	}
	switch store.Type(c.Store.Type) {
	case store.TypeMemory, store.TypeRedis, store.TypeSQLite, store.TypeMySQL, store.TypePostgres, store.TypeMongo:
	default:
		errs = append(errs, fmt.Sprintf("unknown store type %q", c.Store.Type))
	}
	switch stream.Transport(c.Stream.Transport) {
	case stream.TransportSSE, stream.TransportWebSocket:
	default:
		errs = append(errs, fmt.Sprintf("unknown stream transport %q", c.Stream.Transport))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the SQL connection string for the configured store type.
func (c *Config) DSN() string {
	d := c.Store.Database
	switch store.Type(c.Store.Type) {
	case store.TypePostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case store.TypeMySQL:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case store.TypeSQLite:
		return d.Name
	default:
		return ""
	}
}

// StoreConfig converts to the store package's configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type: store.Type(c.Store.Type),
		Redis: store.RedisConfig{
			Host:      c.Store.Redis.Host,
			Port:      c.Store.Redis.Port,
			Password:  c.Store.Redis.Password,
			DB:        c.Store.Redis.DB,
			PoolSize:  c.Store.Redis.PoolSize,
			KeyPrefix: c.Store.Redis.KeyPrefix,
		},
		Database: store.DatabaseConfig{
			DSN:             c.DSN(),
			MaxOpenConns:    c.Store.Database.MaxOpenConns,
			MaxIdleConns:    c.Store.Database.MaxIdleConns,
			ConnMaxLifetime: c.Store.Database.ConnMaxLifetime,
		},
		Mongo: store.MongoConfig{
			URI:        c.Store.Mongo.URI,
			Database:   c.Store.Mongo.Database,
			Collection: c.Store.Mongo.Collection,
		},
		Cleanup: store.CleanupConfig{
			Enabled:   c.Store.CleanupEnabled,
			Interval:  c.Store.CleanupInterval,
			Retention: c.Store.CleanupRetention,
		},
	}
}

// EngineConfig converts to the runctl package's configuration.
func (c *Config) EngineConfig() runctl.Config {
	return runctl.Config{
		BaseURL:            c.Engine.BaseURL,
		APIKey:             c.Engine.APIKey,
		ServiceTokenSecret: c.Engine.ServiceTokenSecret,
		ServiceTokenTTL:    c.Engine.ServiceTokenTTL,
		Timeout:            c.Engine.Timeout,
		MaxRetries:         c.Engine.MaxRetries,
		RetryBackoff:       c.Engine.RetryBackoff,
		RateLimit:          c.Engine.RateLimit,
		RateBurst:          c.Engine.RateBurst,
	}
}

// StreamConfig converts to the stream package's configuration.
func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		Transport:   stream.Transport(c.Stream.Transport),
		BaseURL:     c.Stream.BaseURL,
		APIKey:      c.Stream.APIKey,
		Buffer:      c.Stream.Buffer,
		DialTimeout: c.Stream.DialTimeout,
	}
}

// AssetsConfig converts to the assets package's configuration.
func (c *Config) AssetsConfig() assets.Config {
	return assets.Config{
		BaseURL: c.Assets.BaseURL,
		APIKey:  c.Assets.APIKey,
		Timeout: c.Assets.Timeout,
	}
}

// DefaultSettings builds the seed generation settings from config.
func (c *Config) DefaultSettings() types.GenerationSettings {
	s := types.DefaultGenerationSettings()
	if c.Handoff.DefaultModel != "" {
		s.ModelName = c.Handoff.DefaultModel
	}
	s.ThinkingEnabled = c.Handoff.DefaultThinking
	if c.Handoff.DefaultEffort != "" {
		s.ReasoningEffort = types.ReasoningEffort(c.Handoff.DefaultEffort)
	}
	return s
}

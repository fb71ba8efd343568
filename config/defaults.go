package config

import "time"

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			EnableH2C:       false,
		},
		Handoff: HandoffConfig{
			StopTimeout:     3 * time.Second,
			DefaultModel:    "gpt-4o",
			DefaultThinking: false,
			DefaultEffort:   "medium",
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				DB:        0,
				PoolSize:  10,
				KeyPrefix: "switchboard:",
			},
			Database: DatabaseConfig{
				Host:            "localhost",
				Port:            5432,
				User:            "switchboard",
				Name:            "switchboard",
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "switchboard",
				Collection: "messages",
			},
			CleanupEnabled:   true,
			CleanupInterval:  1 * time.Hour,
			CleanupRetention: 30 * 24 * time.Hour,
		},
		Engine: EngineConfig{
			BaseURL:         "http://localhost:8081",
			ServiceTokenTTL: 5 * time.Minute,
			Timeout:         30 * time.Second,
			MaxRetries:      3,
			RetryBackoff:    200 * time.Millisecond,
			RateLimit:       50,
			RateBurst:       100,
		},
		Stream: StreamConfig{
			Transport:   "sse",
			BaseURL:     "http://localhost:8081",
			Buffer:      64,
			DialTimeout: 10 * time.Second,
		},
		Assets: AssetsConfig{
			BaseURL: "http://localhost:9090",
			Timeout: 60 * time.Second,
		},
		Auth: AuthConfig{},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     100,
			Burst:   200,
		},
		Log: LogConfig{
			Level:            "info",
			Format:           "json",
			OutputPaths:      []string{"stdout"},
			EnableCaller:     true,
			EnableStacktrace: false,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "switchboard",
			SampleRate:   1.0,
		},
	}
}

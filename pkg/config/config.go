// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Search, Feedback, Batch, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Batch     BatchConfig     `yaml:"batch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RunLog    RunLogConfig    `yaml:"runlog"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string        `yaml:"corsOrigins"`
	RateLimit   RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds requests per client IP with a token bucket.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Burst   int           `yaml:"burst"`
	Window  time.Duration `yaml:"window"`
	// ExpandCost is the token price of an expanded search, which runs
	// retrieval twice.
	ExpandCost int `yaml:"expandCost"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	ExpansionEvents string `yaml:"expansionEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the indexing engine's memory thresholds, flush
// interval and text analysis.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	// Stemmer is one of "none", "simple" or "porter".
	Stemmer       string `yaml:"stemmer"`
	StopwordsFile string `yaml:"stopwordsFile"`
}

// SearchConfig controls query execution limits and the retrieval model.
type SearchConfig struct {
	MaxResults   int `yaml:"maxResults"`
	DefaultLimit int `yaml:"defaultLimit"`
	// Scorer is "dirichlet" (query likelihood) or "bm25".
	Scorer string  `yaml:"scorer"`
	Mu     float64 `yaml:"mu"`
	K1     float64 `yaml:"k1"`
	B      float64 `yaml:"b"`
}

// FeedbackConfig holds the system defaults for pseudo-relevance feedback.
// Per-query and node-level parameters take precedence over these.
type FeedbackConfig struct {
	FbDocs int `yaml:"fbDocs"`
	FbTerm int `yaml:"fbTerm"`
	// FbOrigWeight is a pointer so that an explicitly absent default can be
	// told apart from zero.
	FbOrigWeight       *float64 `yaml:"fbOrigWeight"`
	Epsilon            float64  `yaml:"epsilon"`
	MaxIterations      int      `yaml:"maxIterations"`
	AcceptNonConverged bool     `yaml:"acceptNonConverged"`
	// StopwordsFile replaces the built-in exclusion list used when counting
	// feedback terms.
	StopwordsFile string `yaml:"stopwordsFile"`
}

// BatchConfig controls the batch search driver.
type BatchConfig struct {
	QueryFile  string `yaml:"queryFile"`
	OutputFile string `yaml:"outputFile"`
	Requested  int    `yaml:"requested"`
	Append     bool   `yaml:"append"`
	RunTag     string `yaml:"runTag"`
	Expand     bool   `yaml:"expand"`
	// QueryParams are set on every query before expansion, like a parameter
	// file shared by all queries of a run.
	QueryParams map[string]float64 `yaml:"queryParams"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AnalyticsConfig controls publishing of expansion events to Kafka and the
// analytics service that aggregates them.
type AnalyticsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"bufferSize"`
	// BatchSize and FlushInterval bound the batch runner's event buffer.
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	// SnapshotInterval is how often the analytics service persists its
	// aggregates. Zero disables snapshots.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// MaxConsumerLag is the consumer lag above which the analytics service
	// reports Kafka degraded. Zero disables the bound.
	MaxConsumerLag int64 `yaml:"maxConsumerLag"`
}

// RunLogConfig controls recording of expansion runs in PostgreSQL.
type RunLogConfig struct {
	Enabled bool `yaml:"enabled"`
	// WriteTimeout bounds one run log write.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the feedback pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Feedback.FbDocs <= 0 {
		return fmt.Errorf("feedback.fbDocs must be positive, got %d", c.Feedback.FbDocs)
	}
	if c.Feedback.FbTerm <= 0 {
		return fmt.Errorf("feedback.fbTerm must be positive, got %d", c.Feedback.FbTerm)
	}
	if c.Feedback.MaxIterations <= 0 {
		return fmt.Errorf("feedback.maxIterations must be positive, got %d", c.Feedback.MaxIterations)
	}
	if c.Feedback.Epsilon <= 0 {
		return fmt.Errorf("feedback.epsilon must be positive, got %g", c.Feedback.Epsilon)
	}
	if w := c.Feedback.FbOrigWeight; w != nil && (*w < 0 || *w > 1) {
		return fmt.Errorf("feedback.fbOrigWeight must be in [0,1], got %g", *w)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.Burst <= 0 || rl.Window <= 0) {
		return fmt.Errorf("server.rateLimit needs a positive burst and window")
	}
	if c.Batch.Requested <= 0 {
		return fmt.Errorf("batch.requested must be positive, got %d", c.Batch.Requested)
	}
	switch c.Search.Scorer {
	case "dirichlet", "bm25":
	default:
		return fmt.Errorf("search.scorer must be dirichlet or bm25, got %q", c.Search.Scorer)
	}
	switch c.Indexer.Stemmer {
	case "none", "simple", "porter":
	default:
		return fmt.Errorf("indexer.stemmer must be none, simple or porter, got %q", c.Indexer.Stemmer)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local runs.
func defaultConfig() *Config {
	origWeight := 0.5
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Burst:      120,
				Window:     time.Minute,
				ExpandCost: 2,
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "feedbacksearch",
			User:            "feedbacksearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "feedbacksearch-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				ExpansionEvents: "expansion-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			SegmentMaxSize: 64 * 1024 * 1024,
			FlushInterval:  30 * time.Second,
			Stemmer:        "porter",
		},
		Search: SearchConfig{
			MaxResults:   1000,
			DefaultLimit: 10,
			Scorer:       "dirichlet",
			Mu:           1500,
			K1:           1.2,
			B:            0.75,
		},
		Feedback: FeedbackConfig{
			FbDocs:        10,
			FbTerm:        50,
			FbOrigWeight:  &origWeight,
			Epsilon:       1e-4,
			MaxIterations: 100,
		},
		Batch: BatchConfig{
			Requested: 1000,
			RunTag:    "mixture",
			Expand:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			MaxConsumerLag:   10000,
		},
		RunLog: RunLogConfig{
			WriteTimeout: 5 * time.Second,
		},
	}
}

// applyEnvOverrides reads PRF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PRF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PRF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PRF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PRF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PRF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PRF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PRF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PRF_INDEX_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("PRF_FB_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feedback.FbDocs = n
		}
	}
	if v := os.Getenv("PRF_FB_TERM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feedback.FbTerm = n
		}
	}
	if v := os.Getenv("PRF_FB_ORIG_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Feedback.FbOrigWeight = &w
		}
	}
	if v := os.Getenv("PRF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PRF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

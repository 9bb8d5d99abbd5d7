package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	API       APIConfig
	Log       LogConfig
	Limits    LimitsConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
}

type APIConfig struct {
	Addr            string        `env:"IMAGEOPTIMIZER_API_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"IMAGEOPTIMIZER_API_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout    time.Duration `env:"IMAGEOPTIMIZER_API_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout     time.Duration `env:"IMAGEOPTIMIZER_API_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"IMAGEOPTIMIZER_API_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	EnableJobs      bool          `env:"IMAGEOPTIMIZER_ENABLE_JOBS" envDefault:"false"`
	PresignTTL      time.Duration `env:"IMAGEOPTIMIZER_PRESIGN_TTL" envDefault:"15m"`
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"console"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"14"`
}

type LimitsConfig struct {
	MaxBodyBytes     int64 `env:"MAX_BODY_BYTES" envDefault:"67108864"`
	MaxImagePixels   int64 `env:"MAX_IMAGE_PIXELS" envDefault:"100000000"`
	SplitConcurrency int   `env:"SPLIT_CONCURRENCY" envDefault:"4"`
}

type RateLimitConfig struct {
	Enabled      bool          `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	Capacity     int64         `env:"RATE_LIMIT_CAPACITY" envDefault:"60"`
	Window       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	KeyPrefix    string        `env:"RATE_LIMIT_KEY_PREFIX" envDefault:"imageoptimizer:ratelimit"`
	UserIDHdr    string        `env:"RATE_LIMIT_USER_ID_HEADER" envDefault:"X-User-ID"`
	BytesPerUnit int64         `env:"RATE_LIMIT_BYTES_PER_UNIT" envDefault:"4194304"`
}

type QueueConfig struct {
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	Name          string `env:"ASYNC_QUEUE" envDefault:"default"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

func (q QueueConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int    `env:"WORKER_CONCURRENCY"`
	MaxActiveJobs int    `env:"WORKER_MAX_ACTIVE_JOBS"`
	MetricsAddr   string `env:"WORKER_METRICS_ADDR" envDefault:":9091"`
}

type StorageConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"imageoptimizer-jobs"`
	Region    string `env:"MINIO_REGION" envDefault:"us-east-1"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type DatabaseConfig struct {
	DSN string `env:"POSTGRES_DSN"`
}

type AuthConfig struct {
	BcryptCost   int    `env:"AUTH_BCRYPT_COST" envDefault:"10"`
	SeedName     string `env:"AUTH_SEED_NAME" envDefault:"John Doe"`
	SeedEmail    string `env:"AUTH_SEED_EMAIL"`
	SeedPassword string `env:"AUTH_SEED_PASSWORD"`
}

type WebhookConfig struct {
	SigningSecret  string        `env:"WEBHOOK_SIGNING_SECRET"`
	Timeout        time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	MaxAttempts    int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"WEBHOOK_INITIAL_BACKOFF" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"WEBHOOK_MAX_BACKOFF" envDefault:"10s"`
}

type TracingConfig struct {
	Exporter     string `env:"OTEL_TRACES_EXPORTER" envDefault:"none"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = max(2, runtime.NumCPU())
	}
	if cfg.Worker.MaxActiveJobs <= 0 {
		cfg.Worker.MaxActiveJobs = max(1, runtime.NumCPU()/2)
	}
	if cfg.Limits.SplitConcurrency <= 0 {
		cfg.Limits.SplitConcurrency = 1
	}
	return cfg, nil
}

package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scenegen/internal/prompt"
	"scenegen/internal/providers/image"
)

const (
	JobStoreMemory     = "memory"
	JobStorePostgres   = "postgres"
	JobQueueMemory     = "memory"
	JobQueueRedis      = "redis"
	WorkerModeInline   = "inline"
	WorkerModeExternal = "external"
)

// Config represents application configuration. Values come from an optional
// YAML file named by CONFIG_FILE and are then overridden by environment variables.
type Config struct {
	AppEnv    string `yaml:"app_env"`
	Port      string `yaml:"port"`
	OutputDir string `yaml:"output_dir"`
	UploadDir string `yaml:"upload_dir"`

	XAIAPIKey          string        `yaml:"xai_api_key"`
	XAIBaseURL         string        `yaml:"xai_base_url"`
	ChatModel          string        `yaml:"chat_model"`
	ImageModel         string        `yaml:"image_model"`
	ImageFormat        string        `yaml:"image_format"`
	ImageRetry         int           `yaml:"image_retry"`
	BackoffUnit        time.Duration `yaml:"image_backoff_unit"`
	ScenePause         time.Duration `yaml:"scene_pause"`
	ImageRatePerMinute int           `yaml:"image_rate_per_minute"`
	PromptTemplate     string        `yaml:"prompt_template"`
	HTTPClientTimeout  time.Duration `yaml:"http_client_timeout"`

	WorkerCount  int    `yaml:"worker_count"`
	WorkerMode   string `yaml:"worker_mode"`
	JobStore     string `yaml:"job_store"`
	JobQueue     string `yaml:"job_queue"`
	JobQueueName string `yaml:"job_queue_name"`
	DatabaseURL  string `yaml:"database_url"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	GeoIPDBPath        string        `yaml:"geoip_db_path"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	RateLimitPerMin    int           `yaml:"rate_limit_per_minute"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes"`
	HTTPReadTimeout    time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout   time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout    time.Duration `yaml:"http_idle_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		AppEnv:             "development",
		Port:               "5001",
		OutputDir:          "output_images",
		UploadDir:          "uploads",
		XAIBaseURL:         "https://api.x.ai/v1",
		ChatModel:          "grok-3",
		ImageModel:         "grok-2-image",
		ImageFormat:        "base64",
		ImageRetry:         3,
		BackoffUnit:        time.Second,
		ScenePause:         200 * time.Millisecond,
		ImageRatePerMinute: 300,
		PromptTemplate:     prompt.DefaultTemplate,
		HTTPClientTimeout:  120 * time.Second,
		WorkerCount:        1,
		WorkerMode:         WorkerModeInline,
		JobStore:           JobStoreMemory,
		JobQueue:           JobQueueMemory,
		JobQueueName:       "scenegen:jobs",
		CORSAllowedOrigins: []string{"*"},
		RateLimitPerMin:    30,
		MaxUploadBytes:     10 << 20,
		HTTPReadTimeout:    15 * time.Second,
		HTTPWriteTimeout:   10 * time.Minute,
		HTTPIdleTimeout:    60 * time.Second,
	}
}

// LoadConfig loads configuration and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.XAIAPIKey = getEnv("XAI_API_KEY", cfg.XAIAPIKey)
	cfg.XAIBaseURL = getEnv("XAI_BASE_URL", cfg.XAIBaseURL)
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.ImageModel = getEnv("IMAGE_MODEL", cfg.ImageModel)
	cfg.ImageFormat = getEnv("IMAGE_FORMAT", cfg.ImageFormat)
	cfg.ImageRetry = getEnvInt("IMAGE_RETRY", cfg.ImageRetry)
	cfg.BackoffUnit = getEnvDuration("IMAGE_BACKOFF_UNIT", cfg.BackoffUnit)
	cfg.ScenePause = getEnvDuration("SCENE_PAUSE", cfg.ScenePause)
	cfg.ImageRatePerMinute = getEnvInt("IMAGE_RATE_PER_MINUTE", cfg.ImageRatePerMinute)
	cfg.PromptTemplate = getEnv("PROMPT_TEMPLATE", cfg.PromptTemplate)
	cfg.HTTPClientTimeout = time.Second * time.Duration(getEnvInt("HTTP_CLIENT_TIMEOUT_SECONDS", int(cfg.HTTPClientTimeout/time.Second)))
	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.WorkerMode = strings.ToLower(getEnv("WORKER_MODE", cfg.WorkerMode))
	cfg.JobStore = strings.ToLower(getEnv("JOB_STORE", cfg.JobStore))
	cfg.JobQueue = strings.ToLower(getEnv("JOB_QUEUE", cfg.JobQueue))
	cfg.JobQueueName = getEnv("JOB_QUEUE_NAME", cfg.JobQueueName)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.GeoIPDBPath = getEnv("GEOIP_DB_PATH", cfg.GeoIPDBPath)
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMin)
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.HTTPReadTimeout = time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", int(cfg.HTTPReadTimeout/time.Second)))
	cfg.HTTPWriteTimeout = time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", int(cfg.HTTPWriteTimeout/time.Second)))
	cfg.HTTPIdleTimeout = time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", int(cfg.HTTPIdleTimeout/time.Second)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := image.ParseMode(c.ImageFormat); err != nil {
		return fmt.Errorf("IMAGE_FORMAT: %w", err)
	}
	if err := prompt.Validate(c.PromptTemplate); err != nil {
		return fmt.Errorf("PROMPT_TEMPLATE: %w", err)
	}
	if c.ImageRetry < 1 {
		return fmt.Errorf("IMAGE_RETRY must be at least 1")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	switch c.JobStore {
	case JobStoreMemory:
	case JobStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when JOB_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported JOB_STORE %q", c.JobStore)
	}
	switch c.JobQueue {
	case JobQueueMemory:
	case JobQueueRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when JOB_QUEUE=redis")
		}
	default:
		return fmt.Errorf("unsupported JOB_QUEUE %q", c.JobQueue)
	}
	switch c.WorkerMode {
	case WorkerModeInline:
	case WorkerModeExternal:
		if c.JobQueue != JobQueueRedis || c.JobStore != JobStorePostgres {
			return fmt.Errorf("WORKER_MODE=external requires JOB_QUEUE=redis and JOB_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported WORKER_MODE %q", c.WorkerMode)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

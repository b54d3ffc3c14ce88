package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/pkg/icron"
	"github.com/MimeLyc/sales-playbook/pkg/lang"
)

// Config holds all application configuration.
// Values come from defaults, then the optional YAML file named by
// CONFIG_FILE, then environment variables, then options.
//
// Environment Variables:
// LLM:
// - LLM_PROVIDER: groq (OpenAI compatible) or gemini (default: groq)
// - LLM_API_KEY / GROQ_API_KEY / GEMINI_API_KEY: provider API key (required)
// - LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT
// - LLM_MAX_CONCURRENCY: in-flight LLM calls per process (default: 4)
// - PROMPT_LANGUAGE: BCP-47 tag the model answers in (default: pt-BR)
//
// Transcription:
// - ASSEMBLYAI_API_KEY: enables audio files (optional)
// - TRANSCRIPTION_LANGUAGE: spoken language code (default: pt)
//
// Batch:
// - BATCH_CONCURRENCY_LIMIT: files processed at once per job (default: 3)
// - EXTRACTION_CONCURRENCY: parallel extraction calls per analysis (default: 8)
// - RETRY_ATTEMPTS, RETRY_BASE_DELAY
//
// Storage:
// - DATABASE_URL: Postgres DSN; SQLite is used when empty
// - DATA_DIR, SQLITE_PATH
// - REDIS_URL: fan progress events out through Redis (optional)
// - STORAGE_DRIVER: local or minio (default: local), STORAGE_PATH
// - MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY, MINIO_BUCKET, MINIO_USE_SSL, MINIO_REGION
//
// System:
// - MAINTENANCE_CRON, STALE_JOB_AFTER, TEMP_FILE_MAX_AGE
// - HTTP_ADDR, UI_ENABLED, UI_STATIC_DIR
// - LOG_LEVEL, LOG_FORMAT
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Batch         BatchConfig         `yaml:"batch"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	HTTP          HTTPConfig          `yaml:"http"`
	Log           LogConfig           `yaml:"log"`
}

const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

type LLMConfig struct {
	llm.Config `yaml:",inline"`

	Provider       string `yaml:"provider"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	PromptLanguage string `yaml:"prompt_language"`
}

// ResponseLanguage is the parsed PromptLanguage.
func (c LLMConfig) ResponseLanguage() language.Tag {
	return lang.Parse(c.PromptLanguage)
}

type TranscriptionConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type BatchConfig struct {
	ConcurrencyLimit      int           `yaml:"concurrency_limit"`
	ExtractionConcurrency int           `yaml:"extraction_concurrency"`
	RetryAttempts         int           `yaml:"retry_attempts"`
	RetryBaseDelay        time.Duration `yaml:"retry_base_delay"`
}

type DatabaseConfig struct {
	URL        string `yaml:"url"`
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Path returns the SQLite file, defaulting to playbook.db under DataDir.
func (c DatabaseConfig) Path() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "playbook.db")
}

type RedisConfig struct {
	URL           string `yaml:"url"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Minio  MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

type MaintenanceConfig struct {
	CronExpr       string        `yaml:"cron"`
	StaleJobAfter  time.Duration `yaml:"stale_job_after"`
	TempFileMaxAge time.Duration `yaml:"temp_file_max_age"`
}

type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	UIEnabled   bool   `yaml:"ui_enabled"`
	UIStaticDir string `yaml:"ui_static_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Option is a function type for configuring Config
type Option func(*Config)

func defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: ProviderGroq,
			Config: llm.Config{
				APIURL:      llm.DefaultAPIURL,
				Model:       llm.DefaultModel,
				MaxTokens:   llm.DefaultMaxTokens,
				Temperature: llm.DefaultTemperature,
				Timeout:     llm.DefaultTimeout,
			},
			MaxConcurrency: 4,
			PromptLanguage: lang.Default.String(),
		},
		Transcription: TranscriptionConfig{
			Language: llm.DefaultTranscriptionLanguage,
		},
		Batch: BatchConfig{
			ConcurrencyLimit:      3,
			ExtractionConcurrency: 8,
			RetryAttempts:         3,
			RetryBaseDelay:        2 * time.Second,
		},
		Database: DatabaseConfig{
			DataDir: "/app/data",
		},
		Redis: RedisConfig{
			ChannelPrefix: "playbook:progress:",
		},
		Storage: StorageConfig{
			Driver: StorageLocal,
			Path:   "/app/data/uploads",
			Minio: MinioConfig{
				Bucket: "playbook-uploads",
				Region: "us-east-1",
			},
		},
		Maintenance: MaintenanceConfig{
			CronExpr:       "0 */10 * * * *",
			StaleJobAfter:  30 * time.Minute,
			TempFileMaxAge: time.Hour,
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			UIEnabled:   false,
			UIStaticDir: "/app/web",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// NewFromEnv creates a new Config instance with values from the config file,
// environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := defaults()

	if path := getEnvString("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = strings.ToLower(getEnvString("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.APIKey = getEnvString("LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderGemini:
			c.LLM.APIKey = getEnvString("GEMINI_API_KEY", "")
		default:
			c.LLM.APIKey = getEnvString("GROQ_API_KEY", "")
		}
	}
	c.LLM.APIURL = getEnvString("LLM_API_URL", c.LLM.APIURL)
	c.LLM.Model = getEnvString("LLM_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvInt("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxConcurrency = getEnvInt("LLM_MAX_CONCURRENCY", c.LLM.MaxConcurrency)
	c.LLM.PromptLanguage = getEnvString("PROMPT_LANGUAGE", c.LLM.PromptLanguage)
	if c.LLM.Provider == ProviderGemini && c.LLM.Model == llm.DefaultModel {
		c.LLM.Model = llm.DefaultGeminiModel
	}

	c.Transcription.APIKey = getEnvString("ASSEMBLYAI_API_KEY", c.Transcription.APIKey)
	c.Transcription.Language = getEnvString("TRANSCRIPTION_LANGUAGE", c.Transcription.Language)

	c.Batch.ConcurrencyLimit = getEnvInt("BATCH_CONCURRENCY_LIMIT", c.Batch.ConcurrencyLimit)
	c.Batch.ExtractionConcurrency = getEnvInt("EXTRACTION_CONCURRENCY", c.Batch.ExtractionConcurrency)
	c.Batch.RetryAttempts = getEnvInt("RETRY_ATTEMPTS", c.Batch.RetryAttempts)
	c.Batch.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", c.Batch.RetryBaseDelay)

	c.Database.URL = getEnvString("DATABASE_URL", c.Database.URL)
	c.Database.DataDir = getEnvString("DATA_DIR", c.Database.DataDir)
	c.Database.SQLitePath = getEnvString("SQLITE_PATH", c.Database.SQLitePath)

	c.Redis.URL = getEnvString("REDIS_URL", c.Redis.URL)

	c.Storage.Driver = strings.ToLower(getEnvString("STORAGE_DRIVER", c.Storage.Driver))
	c.Storage.Path = getEnvString("STORAGE_PATH", c.Storage.Path)
	c.Storage.Minio.Endpoint = getEnvString("MINIO_ENDPOINT", c.Storage.Minio.Endpoint)
	c.Storage.Minio.AccessKey = getEnvString("MINIO_ACCESS_KEY", c.Storage.Minio.AccessKey)
	c.Storage.Minio.SecretKey = getEnvString("MINIO_SECRET_KEY", c.Storage.Minio.SecretKey)
	c.Storage.Minio.Bucket = getEnvString("MINIO_BUCKET", c.Storage.Minio.Bucket)
	c.Storage.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", c.Storage.Minio.UseSSL)
	c.Storage.Minio.Region = getEnvString("MINIO_REGION", c.Storage.Minio.Region)

	c.Maintenance.CronExpr = getEnvString("MAINTENANCE_CRON", c.Maintenance.CronExpr)
	c.Maintenance.StaleJobAfter = getEnvDuration("STALE_JOB_AFTER", c.Maintenance.StaleJobAfter)
	c.Maintenance.TempFileMaxAge = getEnvDuration("TEMP_FILE_MAX_AGE", c.Maintenance.TempFileMaxAge)

	c.HTTP.Addr = getEnvString("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.UIEnabled = getEnvBool("UI_ENABLED", c.HTTP.UIEnabled)
	c.HTTP.UIStaticDir = getEnvString("UI_STATIC_DIR", c.HTTP.UIStaticDir)

	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("LOG_FORMAT", c.Log.Format)
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderGroq, ProviderGemini:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if err := c.LLM.Config.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if _, err := language.Parse(c.LLM.PromptLanguage); err != nil {
		return fmt.Errorf("invalid PROMPT_LANGUAGE %q: %w", c.LLM.PromptLanguage, err)
	}
	if c.Batch.ConcurrencyLimit < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY_LIMIT must be at least 1")
	}
	if c.Batch.ExtractionConcurrency < 1 {
		return fmt.Errorf("EXTRACTION_CONCURRENCY must be at least 1")
	}
	if c.Batch.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.Path == "" {
			return fmt.Errorf("STORAGE_PATH is required for the local driver")
		}
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if _, err := icron.Parse(c.Maintenance.CronExpr); err != nil {
		return fmt.Errorf("invalid MAINTENANCE_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

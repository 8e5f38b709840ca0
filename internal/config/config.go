package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration shared by the API server and the
// worker. Values come from config.yaml when present, with environment
// variables taking precedence.
type Config struct {
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Storage struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"storage"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Queue struct {
		Name     string `mapstructure:"name"`
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"queue"`

	Worker struct {
		Concurrency int `mapstructure:"concurrency"`
	} `mapstructure:"worker"`

	Auth struct {
		SecretKey         string `mapstructure:"secret_key"`
		RefreshSecretKey  string `mapstructure:"refresh_secret_key"`
		AccessExpiryMins  int    `mapstructure:"access_expiry_minutes"`
		RefreshExpiryMins int    `mapstructure:"refresh_expiry_minutes"`
		AccessCookieName  string `mapstructure:"access_cookie_name"`
		RefreshCookieName string `mapstructure:"refresh_cookie_name"`
	} `mapstructure:"auth"`

	Transcription struct {
		ModelName   string `mapstructure:"model_name"`
		DeviceIndex int    `mapstructure:"device_index"` // -1 means auto
		ComputeType string `mapstructure:"compute_type"`
		LoadIn8Bit  bool   `mapstructure:"load_in_8bit"`
	} `mapstructure:"transcription"`

	Monitor struct {
		Enabled         bool    `mapstructure:"enabled"`
		IntervalSeconds float64 `mapstructure:"interval_seconds"`
		RAMWarnRatio    float64 `mapstructure:"ram_warn_ratio"`
		GPUWarnRatio    float64 `mapstructure:"gpu_warn_ratio"`
	} `mapstructure:"monitor"`
}

// AccessExpiry returns the access token lifetime.
func (c *Config) AccessExpiry() time.Duration {
	return time.Duration(c.Auth.AccessExpiryMins) * time.Minute
}

// RefreshExpiry returns the refresh token lifetime.
func (c *Config) RefreshExpiry() time.Duration {
	return time.Duration(c.Auth.RefreshExpiryMins) * time.Minute
}

func setDefaults() {
	viper.SetDefault("database.dsn", "postgres://localhost:5432/jozvesaz?sslmode=disable")
	viper.SetDefault("storage.root", "./storage")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("queue.name", "transcriptions")
	viper.SetDefault("queue.timezone", "UTC")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("auth.access_expiry_minutes", 15)
	viper.SetDefault("auth.refresh_expiry_minutes", 60*24*7)
	viper.SetDefault("auth.access_cookie_name", "access_token")
	viper.SetDefault("auth.refresh_cookie_name", "refresh_token")
	viper.SetDefault("transcription.model_name", "base")
	viper.SetDefault("transcription.device_index", -1)
	viper.SetDefault("transcription.compute_type", "default")
	viper.SetDefault("transcription.load_in_8bit", false)
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval_seconds", 30)
	viper.SetDefault("monitor.ram_warn_ratio", 0.9)
	viper.SetDefault("monitor.gpu_warn_ratio", 0.9)
}

// bindEnvAliases wires the environment variable names recognized by earlier
// deployments to their config keys.
func bindEnvAliases() {
	viper.BindEnv("database.dsn", "DATABASE_URL")
	viper.BindEnv("storage.root", "STORAGE_ROOT")
	viper.BindEnv("redis.address", "REDIS_ADDR", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("queue.name", "QUEUE_NAME", "TASK_QUEUE")
	viper.BindEnv("queue.timezone", "QUEUE_TIMEZONE", "TZ")
	viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	viper.BindEnv("auth.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("auth.refresh_secret_key", "JWT_REFRESH_SECRET_KEY")
	viper.BindEnv("auth.access_expiry_minutes", "ACCESS_TOKEN_EXPIRE_MINUTES")
	viper.BindEnv("auth.refresh_expiry_minutes", "REFRESH_TOKEN_EXPIRE_MINUTES")
	viper.BindEnv("auth.access_cookie_name", "ACCESS_TOKEN_COOKIE_NAME")
	viper.BindEnv("auth.refresh_cookie_name", "REFRESH_TOKEN_COOKIE_NAME")
	viper.BindEnv("transcription.model_name", "TRANSCRIPTION_MODEL_NAME")
	viper.BindEnv("transcription.device_index", "TRANSCRIPTION_DEVICE_INDEX")
	viper.BindEnv("transcription.compute_type", "TRANSCRIPTION_COMPUTE_TYPE")
	viper.BindEnv("transcription.load_in_8bit", "TRANSCRIPTION_LOAD_IN_8BIT")
	viper.BindEnv("monitor.enabled", "MEMORY_MONITOR_ENABLED")
	viper.BindEnv("monitor.interval_seconds", "MEMORY_MONITOR_INTERVAL_SECONDS")
	viper.BindEnv("monitor.ram_warn_ratio", "MEMORY_MONITOR_RAM_WARNING_RATIO")
	viper.BindEnv("monitor.gpu_warn_ratio", "MEMORY_MONITOR_GPU_WARNING_RATIO")
}

// LoadConfig reads configuration from config.yaml (optional) and the
// environment. It is called once at process start.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()
	bindEnvAliases()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; env vars and defaults cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Auth.RefreshSecretKey == "" {
		cfg.Auth.RefreshSecretKey = cfg.Auth.SecretKey
	}
	return &cfg, nil
}

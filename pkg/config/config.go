package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the sync daemon configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Keka       KekaConfig       `mapstructure:"keka"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// CacheConfig contains settings for the durable key-value cache
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

// KekaConfig contains remote HR API settings
type KekaConfig struct {
	Company        string        `mapstructure:"company" validate:"required"`
	Environment    string        `mapstructure:"environment" validate:"required"`
	TokenURL       string        `mapstructure:"token_url"`
	ClientID       string        `mapstructure:"client_id" validate:"required"`
	ClientSecret   string        `mapstructure:"client_secret" validate:"required"`
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PageSize       int           `mapstructure:"page_size"`
	// TargetGroupIDs limits the employee sync to members of these
	// organizational groups.
	TargetGroupIDs []string `mapstructure:"target_group_ids"`
}

// SyncConfig contains sync engine and scheduler settings
type SyncConfig struct {
	MaxCallsPerMinute   int           `mapstructure:"max_calls_per_minute"`
	RateWindow          time.Duration `mapstructure:"rate_window"`
	AttendancePageDelay time.Duration `mapstructure:"attendance_page_delay"`
	EmployeePageDelay   time.Duration `mapstructure:"employee_page_delay"`
	AttendanceInterval  time.Duration `mapstructure:"attendance_interval"`
	EmployeeTimes       []string      `mapstructure:"employee_times"`
	TokenRefreshTimes   []string      `mapstructure:"token_refresh_times"`
	InitialDelay        time.Duration `mapstructure:"initial_delay"`
	Timezone            string        `mapstructure:"timezone"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "keka_hr")

	// Cache defaults
	viper.SetDefault("cache.dir", "data/cache")
	viper.SetDefault("cache.in_memory", false)

	// Keka defaults
	viper.SetDefault("keka.token_url", "https://login.keka.com/connect/token")
	viper.SetDefault("keka.request_timeout", "30s")
	viper.SetDefault("keka.token_ttl", "24h")
	viper.SetDefault("keka.page_size", 100)

	// Sync defaults
	viper.SetDefault("sync.max_calls_per_minute", 40)
	viper.SetDefault("sync.rate_window", "60s")
	viper.SetDefault("sync.attendance_page_delay", "300ms")
	viper.SetDefault("sync.employee_page_delay", "500ms")
	viper.SetDefault("sync.attendance_interval", "5m")
	viper.SetDefault("sync.employee_times", []string{"07:00", "07:30", "12:00"})
	viper.SetDefault("sync.token_refresh_times", []string{"06:50", "07:00"})
	viper.SetDefault("sync.initial_delay", "10s")
	viper.SetDefault("sync.timezone", "Asia/Kolkata")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}
	if config.Sync.MaxCallsPerMinute <= 0 {
		return fmt.Errorf("sync.max_calls_per_minute must be positive")
	}
	if config.Keka.PageSize <= 0 {
		return fmt.Errorf("keka.page_size must be positive")
	}
	if _, err := time.LoadLocation(config.Sync.Timezone); err != nil {
		return fmt.Errorf("invalid sync.timezone: %w", err)
	}
	return nil
}

// APIBaseURL returns the tenant base URL for the Keka HR API.
// An explicit base_url overrides the company/environment derivation
// (useful for tests and non-standard deployments).
func (c *KekaConfig) APIBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s.%s.com/api/v1", c.Company, c.Environment)
}

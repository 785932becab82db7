package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	PageSize   int           `mapstructure:"page_size"`
	MaxPages   int           `mapstructure:"max_pages"`
	MaxRetries int           `mapstructure:"max_retries"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	Schedule      string   `mapstructure:"schedule"`
	ActivePrefix  string   `mapstructure:"active_prefix"`
	TenantFilter  []string `mapstructure:"tenant_filter"`
	ForceFull     bool     `mapstructure:"force_full"`
	ResolveTables bool     `mapstructure:"resolve_tables"`
	SampleRows    int      `mapstructure:"sample_rows"`
}

type DocsConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PublishConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type Config struct {
	DatabaseURL string        `mapstructure:"database_url"`
	API         APIConfig     `mapstructure:"api"`
	Sync        SyncConfig    `mapstructure:"sync"`
	Docs        DocsConfig    `mapstructure:"docs"`
	Publish     PublishConfig `mapstructure:"publish"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	if config.DatabaseURL == "" {
		log.Fatal("database_url must be set in the config file")
	}
	if config.API.BaseURL == "" {
		log.Fatal("api.base_url must be set in the config file")
	}

	// Fallback defaults
	if config.API.PageSize == 0 {
		config.API.PageSize = 100
	}
	if config.API.MaxPages == 0 {
		config.API.MaxPages = 1000
	}
	if config.API.MaxRetries == 0 {
		config.API.MaxRetries = 3
	}
	if config.API.MaxBackoff == 0 {
		config.API.MaxBackoff = 30 * time.Second
	}
	if config.API.Timeout == 0 {
		config.API.Timeout = 30 * time.Second
	}
	if config.Sync.SampleRows == 0 {
		config.Sync.SampleRows = 5
	}
	if config.Docs.Timeout == 0 {
		config.Docs.Timeout = 2 * time.Minute
	}

	return &config
}

package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Vendor VendorConfig `yaml:"vendor" mapstructure:"vendor"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	OCR    OCRConfig    `yaml:"ocr" mapstructure:"ocr"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// DataConfig locates the working directories for catalog files and
// generated artifacts.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CatalogsDir is where pulled catalog PDFs land.
func (d DataConfig) CatalogsDir() string { return filepath.Join(d.Dir, "catalogs") }

// ExtractsDir holds extraction artifacts (records + page errors).
func (d DataConfig) ExtractsDir() string { return filepath.Join(d.Dir, "extracts") }

// OutputsDir holds exported feed files.
func (d DataConfig) OutputsDir() string { return filepath.Join(d.Dir, "outputs") }

// ErrorsDir holds per-run error reports.
func (d DataConfig) ErrorsDir() string { return filepath.Join(d.Dir, "errors") }

// BackupsDir holds snapshot backup JSON files.
func (d DataConfig) BackupsDir() string { return filepath.Join(d.Dir, "backups") }

// VendorConfig holds dealer-portal access settings. Username and
// password may come from the credentials file instead.
type VendorConfig struct {
	Name            string `yaml:"name" mapstructure:"name"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Username        string `yaml:"username" mapstructure:"username"`
	Password        string `yaml:"password" mapstructure:"password"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request portal timeout.
func (v VendorConfig) Timeout() time.Duration {
	if v.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(v.TimeoutSecs) * time.Second
}

// FetchConfig tunes the price-fetch scheduler.
type FetchConfig struct {
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseMs   int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffMaxMs    int     `yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	CheckpointEvery int     `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	StaleAfterHours int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// BackoffBase returns the first retry delay.
func (f FetchConfig) BackoffBase() time.Duration {
	return time.Duration(f.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (f FetchConfig) BackoffMax() time.Duration {
	return time.Duration(f.BackoffMaxMs) * time.Millisecond
}

// StaleAfter returns the price staleness threshold.
func (f FetchConfig) StaleAfter() time.Duration {
	return time.Duration(f.StaleAfterHours) * time.Hour
}

// ExportConfig shapes the output feed.
type ExportConfig struct {
	SKUPrefix        string `yaml:"sku_prefix" mapstructure:"sku_prefix"`
	DescriptionLimit int    `yaml:"description_limit" mapstructure:"description_limit"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	Binary        string `yaml:"binary" mapstructure:"binary"`
	MistralAPIKey string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// ServerConfig configures the feed HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/partsync.db")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("data.dir", "data")
	v.SetDefault("vendor.name", "Cascade")
	v.SetDefault("vendor.base_url", "https://dealer.cascadespas.com")
	v.SetDefault("vendor.credentials_file", "credentials.yaml")
	v.SetDefault("vendor.timeout_secs", 30)
	v.SetDefault("fetch.rate_per_sec", 0.5)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_base_ms", 1000)
	v.SetDefault("fetch.backoff_max_ms", 30000)
	v.SetDefault("fetch.checkpoint_every", 50)
	v.SetDefault("fetch.stale_after_hours", 168)
	v.SetDefault("export.sku_prefix", "CSP")
	v.SetDefault("export.description_limit", 200)
	v.SetDefault("ocr.provider", "pdftotext")
	v.SetDefault("ocr.binary", "pdftotext")
	v.SetDefault("ocr.mistral_model", "pixtral-large-latest")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

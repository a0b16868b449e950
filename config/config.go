package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kataras/golog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port               string   `yaml:"port"`
	DatabaseURL        string   `yaml:"database_url"`
	RedisURL           string   `yaml:"redis_url"`
	AccessTokenSecret  string   `yaml:"access_token_secret"`
	RefreshTokenSecret string   `yaml:"refresh_token_secret"`
	StorageURLSecret   string   `yaml:"storage_url_secret"`
	StorageRoot        string   `yaml:"storage_root"`
	StorageBucket      string   `yaml:"storage_bucket"`
	PublicBaseURL      string   `yaml:"public_base_url"`
	OCRLanguages       []string `yaml:"ocr_languages"`
	LogLevel           string   `yaml:"log_level"`
	CORSOrigin         string   `yaml:"cors_origin"`
}

func defaults() *Config {
	return &Config{
		Port:          "4000",
		RedisURL:      "localhost:6379",
		StorageRoot:   "./data/objects",
		StorageBucket: "kyc-documents",
		PublicBaseURL: "http://localhost:4000",
		OCRLanguages:  []string{"eng"},
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// KYC_CONFIG_FILE, and the environment, in increasing precedence.
func Load() (*Config, error) {
	// Only load .env in development (when RENDER env var is not set)
	if os.Getenv("RENDER") == "" {
		if err := godotenv.Load(); err != nil {
			golog.Debug("no .env file loaded (this is normal in production)")
		}
	}

	cfg := defaults()
	if path := os.Getenv("KYC_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.mergeEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Port, "PORT")
	set(&c.DatabaseURL, "DB_CONNECTION_STRING")
	set(&c.RedisURL, "REDIS_URL")
	set(&c.AccessTokenSecret, "ACCESS_TOKEN_SECRET")
	set(&c.RefreshTokenSecret, "REFRESH_TOKEN_SECRET")
	set(&c.StorageURLSecret, "STORAGE_URL_SECRET")
	set(&c.StorageRoot, "STORAGE_ROOT")
	set(&c.StorageBucket, "STORAGE_BUCKET")
	set(&c.PublicBaseURL, "PUBLIC_BASE_URL")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.CORSOrigin, "CORS_ORIGIN")
	if v := strings.TrimSpace(getenv("OCR_LANGUAGES")); v != "" {
		c.OCRLanguages = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
}

func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"DB_CONNECTION_STRING": c.DatabaseURL,
		"ACCESS_TOKEN_SECRET":  c.AccessTokenSecret,
		"REFRESH_TOKEN_SECRET": c.RefreshTokenSecret,
		"STORAGE_URL_SECRET":   c.StorageURLSecret,
	}
	for _, key := range []string{"DB_CONNECTION_STRING", "ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET", "STORAGE_URL_SECRET"} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if c.StorageBucket == "" || strings.ContainsAny(c.StorageBucket, `/\`) {
		errs = append(errs, fmt.Errorf("invalid storage bucket %q", c.StorageBucket))
	}
	return errors.Join(errs...)
}

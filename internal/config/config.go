package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port             string `yaml:"port"`
	DatabaseURL      string `yaml:"databaseURL"`
	LogLevel         string `yaml:"logLevel"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	QueueStream      string `yaml:"queueStream"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	AuthJWTSecret    string `yaml:"authJWTSecret"`
	JWTIssuer        string `yaml:"jwtIssuer"`
	JWTAudience      string `yaml:"jwtAudience"`
	AIBaseURL        string `yaml:"aiBaseURL"`
	AIAPIKey         string `yaml:"aiAPIKey"`
	AIModel          string `yaml:"aiModel"`
	CallbackToken    string `yaml:"callbackToken"`
	EnrichLinks      bool   `yaml:"enrichLinks"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueConcurrency = n
		}
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.AuthJWTSecret = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AIBaseURL = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AIAPIKey = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AIModel = v
	}
	if v := os.Getenv("CALLBACK_TOKEN"); v != "" {
		cfg.CallbackToken = v
	}
	if v := os.Getenv("ENRICH_LINKS"); v == "true" {
		cfg.EnrichLinks = true
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.QueueStream == "" {
		return errors.New("config: queueStream is required (set in config.yaml)")
	}
	if cfg.AuthJWTSecret == "" {
		return errors.New("config: authJWTSecret is required (set in config.yaml or AUTH_JWT_SECRET)")
	}
	if cfg.AIBaseURL == "" {
		return errors.New("config: aiBaseURL is required (set in config.yaml or AI_BASE_URL)")
	}
	if cfg.AIModel == "" {
		return errors.New("config: aiModel is required (set in config.yaml or AI_MODEL)")
	}
	return nil
}

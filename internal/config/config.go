package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all famcare server settings. Values come from a YAML file
// (FAMCARE_CONFIG_PATH, fallback ./config.yaml) overridden by environment
// variables.
type Config struct {
	Addr            string        `yaml:"addr"              env:"FAMCARE_ADDR"              env-default:":8080"`
	DatabasePath    string        `yaml:"database_path"     env:"FAMCARE_DB_PATH"           env-default:"./famcare.db"`
	SnoozeCachePath string        `yaml:"snooze_cache_path" env:"FAMCARE_SNOOZE_CACHE_PATH" env-default:"./data/snoozes.json"`
	LogLevel        string        `yaml:"log_level"         env:"FAMCARE_LOG_LEVEL"         env-default:"info"`
	AlarmInterval   time.Duration `yaml:"alarm_interval"    env:"FAMCARE_ALARM_INTERVAL"    env-default:"15s"`

	VAPIDPublicKey  string `yaml:"vapid_public_key"  env:"FAMCARE_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `yaml:"vapid_private_key" env:"FAMCARE_VAPID_PRIVATE_KEY"`

	AbuseDetectorURL string `yaml:"abuse_detector_url" env:"FAMCARE_ABUSE_DETECTOR_URL"`
	AbuseDetectorKey string `yaml:"abuse_detector_key" env:"FAMCARE_ABUSE_DETECTOR_KEY"`
}

// Load reads configuration with priority ENV > YAML > defaults.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("FAMCARE_CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.AlarmInterval <= 0 {
		return fmt.Errorf("alarm_interval must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID keys must be set together")
	}
	return nil
}

package models

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Config struct {
	ServerAddr     string        `yaml:"server_addr"`
	DatabaseURL    string        `yaml:"database_url"`
	RedisAddr      string        `yaml:"redis_addr"`
	AllowOrigins   []string      `yaml:"allow_origins"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	PayloadStore   S3Config      `yaml:"payload_store"`
	ThumbnailStore S3Config      `yaml:"thumbnail_store"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	return &cfg, nil
}

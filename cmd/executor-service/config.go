package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"execbox/internal/sandbox/provision"
	"execbox/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWorkRoot        = "/var/lib/execbox/work"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// StoreConfig holds result retention settings.
type StoreConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// ArchiveConfig holds artifact archiving settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// QueueConfig holds submission intake settings.
type QueueConfig struct {
	Depth             int   `yaml:"depth"`
	MaxSourceBytes    int64 `yaml:"maxSourceBytes"`
	DeduplicateSource bool  `yaml:"deduplicateSource"`
}

// AppConfig holds executor-service config.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Logger    logger.Config    `yaml:"logger"`
	Provision provision.Config `yaml:"provision"`
	Store     StoreConfig      `yaml:"store"`
	Archive   ArchiveConfig    `yaml:"archive"`
	Queue     QueueConfig      `yaml:"queue"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Provision.WorkRoot == "" {
		cfg.Provision.WorkRoot = defaultWorkRoot
	}
	if cfg.Provision.InstanceCount <= 0 {
		cfg.Provision.InstanceCount = 1
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type StorageConfig struct {
	VideoDir      string `yaml:"video_dir"`
	ImageDir      string `yaml:"image_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"` // bytes
	IndexCapacity int    `yaml:"index_capacity"`  // identifiers kept in the resolver index per root
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Token string `yaml:"token"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   0, // streaming responses can run for hours
			AllowedOrigins: []string{"http://localhost:4200"},
		},
		Storage: StorageConfig{
			VideoDir:      "uploads/videos",
			ImageDir:      "uploads/images",
			MaxUploadSize: 5 * 1024 * 1024 * 1024, // 5 GB
			IndexCapacity: 4096,
		},
		Database: DatabaseConfig{
			Path: "data/catalog.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// CINESTREAM_* environment overrides (optionally from a .env file).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CINESTREAM_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CINESTREAM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CINESTREAM_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CINESTREAM_VIDEO_DIR"); v != "" {
		c.Storage.VideoDir = v
	}
	if v := os.Getenv("CINESTREAM_IMAGE_DIR"); v != "" {
		c.Storage.ImageDir = v
	}
	if v := os.Getenv("CINESTREAM_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CINESTREAM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Storage.VideoDir == "" || c.Storage.ImageDir == "" {
		return errors.New("storage.video_dir and storage.image_dir are required")
	}
	videoDir, err := filepath.Abs(c.Storage.VideoDir)
	if err != nil {
		return err
	}
	imageDir, err := filepath.Abs(c.Storage.ImageDir)
	if err != nil {
		return err
	}
	if videoDir == imageDir {
		return errors.New("storage.video_dir and storage.image_dir must differ")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return errors.New("storage.max_upload_size must be positive")
	}
	for i, t := range c.Auth.Tokens {
		if t.Token == "" || t.Email == "" {
			return fmt.Errorf("auth.tokens[%d]: token and email are required", i)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

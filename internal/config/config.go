package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	FileName  = "surveydesk.yml"
	EnvPrefix = "SURVEYDESK"

	FlatMemory = "memory"
	FlatFile   = "file"
	FlatRedis  = "redis"
)

// Config models surveydesk.yml.
type Config struct {
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Seed    SeedConfig    `yaml:"seed" mapstructure:"seed"`
}

type StorageConfig struct {
	Prefix      string        `yaml:"prefix" mapstructure:"prefix"`
	Flat        string        `yaml:"flat" mapstructure:"flat"`
	Structured  bool          `yaml:"structured" mapstructure:"structured"`
	WaitTimeout time.Duration `yaml:"wait_timeout" mapstructure:"wait_timeout"`
	Redis       RedisConfig   `yaml:"redis" mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	BasePath  string `yaml:"base_path" mapstructure:"base_path"`
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

type SeedConfig struct {
	SampleData bool `yaml:"sample_data" mapstructure:"sample_data"`
}

// Load reads the workspace config file when present, then applies
// SURVEYDESK_* environment overrides on top of the defaults.
func Load(workspace string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("storage.flat", d.Storage.Flat)
	v.SetDefault("storage.structured", d.Storage.Structured)
	v.SetDefault("storage.wait_timeout", d.Storage.WaitTimeout)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.jwt_secret", d.Server.JWTSecret)
	v.SetDefault("seed.sample_data", d.Seed.SampleData)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Prefix) == "" {
		return fmt.Errorf("config.storage.prefix is required")
	}
	switch c.Storage.Flat {
	case FlatMemory, FlatFile:
	case FlatRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("config.storage.redis.addr is required when storage.flat is redis")
		}
	default:
		return fmt.Errorf("config.storage.flat must be one of memory, file, redis (got %q)", c.Storage.Flat)
	}
	if c.Storage.WaitTimeout < 0 {
		return fmt.Errorf("config.storage.wait_timeout must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config.log.format must be console or json (got %q)", c.Log.Format)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML renders the effective config.
func (c *Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const defaultTemplate = `storage:
  # key prefix of the flat store
  prefix: survey_app_
  # flat backend: memory, file or redis
  flat: file
  # open the SQLite document store
  structured: true
  # how long the CLI waits for the structured store before running degraded
  wait_timeout: 5s
  redis:
    addr: ""
    password: ""
    db: 0

log:
  level: info
  format: console
  file: ""
  max_size: 50
  max_backups: 3
  max_age: 28
  compress: false

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""

seed:
  sample_data: true
`

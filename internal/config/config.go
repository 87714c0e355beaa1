package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DB     DBConfig     `yaml:"db"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

type DBConfig struct {
	Driver   string `yaml:"driver"` // postgres or sqlite3
	DSN      string `yaml:"dsn"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
}

type ServerConfig struct {
	Addr     string   `yaml:"addr"`
	Tokens   []string `yaml:"tokens"`   // accepted bearer tokens
	Insecure bool     `yaml:"insecure"` // serve without tokens, authentication disabled
}

type ClientConfig struct {
	URL            string        `yaml:"url"` // empty runs the engine against the local database
	Token          string        `yaml:"token"`
	Operator       string        `yaml:"operator"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		DB:     DBConfig{Driver: "postgres", Port: "5432"},
		Server: ServerConfig{Addr: ":8080"},
		Client: ClientConfig{PersistTimeout: 10 * time.Second},
		Log:    LogConfig{Level: "INFO", Format: "text"},
	}
}

// Load reads .env if present, then the YAML file at path (or SHOPFLOOR_CONFIG),
// then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path == "" {
		path = os.Getenv("SHOPFLOOR_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	override(&cfg.DB.Driver, "DB_DRIVER")
	override(&cfg.DB.DSN, "DB_DSN")
	override(&cfg.DB.Username, "DB_USERNAME")
	override(&cfg.DB.Password, "DB_PASSWORD")
	override(&cfg.DB.Host, "DB_HOST")
	override(&cfg.DB.Port, "DB_PORT")
	override(&cfg.DB.Name, "DB_NAME")
	override(&cfg.Server.Addr, "SERVER_ADDR")
	override(&cfg.Client.URL, "API_URL")
	override(&cfg.Client.Token, "API_TOKEN")
	override(&cfg.Client.Operator, "OPERATOR")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Log.Format, "LOG_FORMAT")
	if v := os.Getenv("API_TOKENS"); v != "" {
		cfg.Server.Tokens = nil
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				cfg.Server.Tokens = append(cfg.Server.Tokens, tok)
			}
		}
	}
	if v := os.Getenv("SERVER_INSECURE"); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_INSECURE %q: %w", v, err)
		}
		cfg.Server.Insecure = insecure
	}
	if v := os.Getenv("PERSIST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PERSIST_TIMEOUT %q: %w", v, err)
		}
		cfg.Client.PersistTimeout = d
	}
	if cfg.Client.PersistTimeout <= 0 {
		return nil, fmt.Errorf("persist timeout must be positive, got %s", cfg.Client.PersistTimeout)
	}
	return cfg, nil
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() (string, error) {
	if c.DB.DSN != "" {
		return c.DB.DSN, nil
	}
	switch c.DB.Driver {
	case "sqlite3":
		return "shopfloor.db", nil
	case "postgres":
		db := c.DB
		if db.Username == "" || db.Password == "" || db.Host == "" || db.Port == "" || db.Name == "" {
			return "", fmt.Errorf("DB_DSN or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			db.Username, db.Password, db.Host, db.Port, db.Name), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", c.DB.Driver)
}

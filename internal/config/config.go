package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "etc/console.yml"

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Backend Backend `yaml:"backend"`
	Sync    Sync    `yaml:"sync"`
	Feed    Feed    `yaml:"feed"`
	KV      KV      `yaml:"kv"`
	Kafka   Kafka   `yaml:"kafka"`
	Auth    Auth    `yaml:"auth"`
	Google  Google  `yaml:"google"`
	Log     Log     `yaml:"log"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type Backend struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Timeout of zero leaves requests bounded only by the caller's context.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

type Sync struct {
	CalendarInterval time.Duration `yaml:"calendar_interval" validate:"gt=0"`
	BellInterval     time.Duration `yaml:"bell_interval" validate:"gt=0"`
}

type Feed struct {
	Capacity int `yaml:"capacity" validate:"gt=0"`
}

type KV struct {
	Driver      string `yaml:"driver" validate:"oneof=memory redis postgres"`
	RedisAddr   string `yaml:"redis_addr" validate:"required_if=Driver redis"`
	PostgresURL string `yaml:"postgres_url" validate:"required_if=Driver postgres"`
	Prefix      string `yaml:"prefix"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Auth struct {
	JWTSecret    string   `yaml:"jwt_secret"`
	StaticTokens []string `yaml:"static_tokens"`
	// Roles allowed to use the console.
	Roles []string `yaml:"roles" validate:"min=1"`
}

type Google struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	CalendarID   string `yaml:"calendar_id"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Config {
	return Config{
		HTTP:    HTTP{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Backend: Backend{BaseURL: "http://localhost:5000/api"},
		Sync:    Sync{CalendarInterval: 30 * time.Second, BellInterval: 10 * time.Second},
		Feed:    Feed{Capacity: 20},
		KV:      KV{Driver: "memory", Prefix: "console"},
		Kafka:   Kafka{Topic: "console.booking-events"},
		Auth:    Auth{Roles: []string{"owner", "admin", "receptionist"}},
		Google:  Google{CalendarID: "primary"},
		Log:     Log{Level: "info"},
	}
}

// Load reads the YAML file named by CONFIG_PATH (or DefaultPath), then a .env
// file if present, then applies environment overrides and validates. A
// missing default file is not an error; a missing explicit one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(&cfg)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Auth.JWTSecret == "" && len(cfg.Auth.StaticTokens) == 0 {
		return nil, errors.New("config validation failed: auth needs jwt_secret or static_tokens")
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("CONSOLE_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.KV.PostgresURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.KV.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("JWT_HMAC_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("STATIC_TOKENS"); v != "" {
		cfg.Auth.StaticTokens = splitList(v)
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		cfg.Google.RedirectURL = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rpattn/opsreport/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds the shared secret of the account service tokens
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string
}

// UploadConfig bounds uploaded workbooks
type UploadConfig struct {
	MaxBytes int64
}

// Config is the complete service configuration
type Config struct {
	Database db.Config
	Server   ServerConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Upload   UploadConfig
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server:   DefaultServerConfig(),
		Auth:     AuthConfig{Issuer: "opsreport"},
		CORS:     CORSConfig{AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"}},
		Upload:   UploadConfig{MaxBytes: 32 << 20},
	}
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.dbname":            "DB_NAME",
	"database.sslmode":           "DB_SSLMODE",
	"database.max_conns":         "DB_MAX_CONNS",
	"database.min_conns":         "DB_MIN_CONNS",
	"database.max_conn_lifetime": "DB_MAX_CONN_LIFETIME",
	"database.max_conn_idle":     "DB_MAX_CONN_IDLE",
	"server.addr":                "SERVER_ADDR",
	"server.read_timeout":        "SERVER_READ_TIMEOUT",
	"server.write_timeout":       "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":        "SERVER_IDLE_TIMEOUT",
	"server.shutdown_timeout":    "SERVER_SHUTDOWN_TIMEOUT",
	"auth.jwt_secret":            "AUTH_JWT_SECRET",
	"auth.issuer":                "AUTH_ISSUER",
	"cors.allowed_origins":       "CORS_ALLOWED_ORIGINS",
	"upload.max_bytes":           "UPLOAD_MAX_BYTES",
}

// Load reads config.yaml from configPath when present and applies
// environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Println("[CONFIG] no config.yaml found, using defaults and env vars")
	} else {
		log.Printf("[CONFIG] loaded %s", v.ConfigFileUsed())
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}
	if v.IsSet("database.min_conns") {
		cfg.Database.MinConns = v.GetInt32("database.min_conns")
	}
	if v.IsSet("database.max_conn_lifetime") {
		cfg.Database.MaxConnLifetime = v.GetDuration("database.max_conn_lifetime")
	}
	if v.IsSet("database.max_conn_idle") {
		cfg.Database.MaxConnIdleTime = v.GetDuration("database.max_conn_idle")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}

	if v.IsSet("auth.jwt_secret") {
		cfg.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	}
	if v.IsSet("auth.issuer") {
		cfg.Auth.Issuer = v.GetString("auth.issuer")
	}

	if v.IsSet("cors.allowed_origins") {
		cfg.CORS.AllowedOrigins = splitList(v.GetStringSlice("cors.allowed_origins"))
	}

	if v.IsSet("upload.max_bytes") {
		cfg.Upload.MaxBytes = v.GetInt64("upload.max_bytes")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

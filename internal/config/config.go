// Package config provides application configuration loaded from the environment,
// an optional .env file and an optional config file.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	App       AppConfig
	SMTP      SMTPConfig
	Portal    PortalConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          string
	ReadTimeout   int // seconds
	WriteTimeout  int // seconds
	IdleTimeout   int // seconds
	SessionSecret string
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig selects the driver and holds connection settings.
type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
	Debug      bool
	Retries    int
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev           bool
	Migrations    bool
	LogLevel      string
	AdminEmail    string
	AdminPassword string
	DefaultTenant string
}

// SMTPConfig configures outgoing mail. An empty Host logs emails instead of sending.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	MaxAttempts int
}

// PortalConfig configures supplier magic links.
type PortalConfig struct {
	BaseURL      string
	TokenTTLDays int
}

// JobsConfig holds cron specs for background jobs.
type JobsConfig struct {
	Enabled        bool
	ScoringSpec    string
	AlertsSpec     string
	OutboxSpec     string
	CleanupSpec    string
	AlertThreshold int
	AlertDrop      int
}

// RateLimitConfig bounds requests per client IP in a fixed window.
type RateLimitConfig struct {
	PortalLimit int
	LoginLimit  int
	Window      time.Duration
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60)
	v.SetDefault("SESSION_SECRET", "devsessionsecret")
	v.SetDefault("TRUSTED_PROXIES", "")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "procurement")
	v.SetDefault("DB_PASSWORD", "procurement")
	v.SetDefault("DB_NAME", "procurement")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "procurement.db")
	v.SetDefault("DB_DEBUG", false)
	v.SetDefault("DB_RETRIES", 5)

	v.SetDefault("DEV", true)
	v.SetDefault("MIGRATIONS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("DEFAULT_TENANT", "default")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "no-reply@example.com")
	v.SetDefault("SMTP_MAX_ATTEMPTS", 5)

	v.SetDefault("PORTAL_BASE_URL", "http://localhost:8080")
	v.SetDefault("PORTAL_TOKEN_TTL_DAYS", 30)

	v.SetDefault("JOBS_ENABLED", true)
	v.SetDefault("JOBS_SCORING_SPEC", "0 3 1 * *")
	v.SetDefault("JOBS_ALERTS_SPEC", "30 3 1 * *")
	v.SetDefault("JOBS_OUTBOX_SPEC", "@every 30s")
	v.SetDefault("JOBS_CLEANUP_SPEC", "@every 10m")
	v.SetDefault("ALERT_THRESHOLD", 60)
	v.SetDefault("ALERT_DROP", 15)

	v.SetDefault("RATE_LIMIT_PORTAL", 60)
	v.SetDefault("RATE_LIMIT_LOGIN", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
}

// Load reads configuration. A .env file in the working directory is loaded
// first; configFile, when set, is read by viper. Environment variables win.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	cfg := fromViper(v)
	proxies, err := parseProxies(strings.Join(v.GetStringSlice("TRUSTED_PROXIES"), ","))
	if err != nil {
		return nil, err
	}
	cfg.Server.TrustedProxies = proxies
	return cfg, nil
}

// parseProxies reads a comma separated list of addresses and CIDR ranges.
func parseProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:          v.GetString("PORT"),
			ReadTimeout:   v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:  v.GetInt("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:   v.GetInt("SERVER_IDLE_TIMEOUT"),
			SessionSecret: v.GetString("SESSION_SECRET"),
		},
		Database: DatabaseConfig{
			Driver:     v.GetString("DB_DRIVER"),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetInt("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			DBName:     v.GetString("DB_NAME"),
			SSLMode:    v.GetString("DB_SSLMODE"),
			SQLitePath: v.GetString("DB_SQLITE_PATH"),
			Debug:      v.GetBool("DB_DEBUG"),
			Retries:    v.GetInt("DB_RETRIES"),
		},
		App: AppConfig{
			Dev:           v.GetBool("DEV"),
			Migrations:    v.GetBool("MIGRATIONS"),
			LogLevel:      v.GetString("LOG_LEVEL"),
			AdminEmail:    v.GetString("ADMIN_EMAIL"),
			AdminPassword: v.GetString("ADMIN_PASSWORD"),
			DefaultTenant: v.GetString("DEFAULT_TENANT"),
		},
		SMTP: SMTPConfig{
			Host:        v.GetString("SMTP_HOST"),
			Port:        v.GetInt("SMTP_PORT"),
			Username:    v.GetString("SMTP_USERNAME"),
			Password:    v.GetString("SMTP_PASSWORD"),
			From:        v.GetString("SMTP_FROM"),
			MaxAttempts: v.GetInt("SMTP_MAX_ATTEMPTS"),
		},
		Portal: PortalConfig{
			BaseURL:      v.GetString("PORTAL_BASE_URL"),
			TokenTTLDays: v.GetInt("PORTAL_TOKEN_TTL_DAYS"),
		},
		Jobs: JobsConfig{
			Enabled:        v.GetBool("JOBS_ENABLED"),
			ScoringSpec:    v.GetString("JOBS_SCORING_SPEC"),
			AlertsSpec:     v.GetString("JOBS_ALERTS_SPEC"),
			OutboxSpec:     v.GetString("JOBS_OUTBOX_SPEC"),
			CleanupSpec:    v.GetString("JOBS_CLEANUP_SPEC"),
			AlertThreshold: v.GetInt("ALERT_THRESHOLD"),
			AlertDrop:      v.GetInt("ALERT_DROP"),
		},
		RateLimit: RateLimitConfig{
			PortalLimit: v.GetInt("RATE_LIMIT_PORTAL"),
			LoginLimit:  v.GetInt("RATE_LIMIT_LOGIN"),
			Window:      v.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}
}

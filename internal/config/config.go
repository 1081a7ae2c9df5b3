package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	Issuer               string
	SigningSecret        string
	SessionTTL           time.Duration
	SessionInactivityTTL time.Duration
	LoginTokenTTL        time.Duration
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	AuthCodeTTL          time.Duration
	SSOTokenTTL          time.Duration
	RefreshTokenBytes    int
	SSOServiceURLs       map[string]string
	LoginBypassEmail     string
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		Issuer:               getEnv("ISSUER", "https://hub.appsqa.io"),
		SigningSecret:        os.Getenv("TOKEN_SIGNING_SECRET"),
		SessionTTL:           getDuration("SESSION_TTL", 168*time.Hour),
		SessionInactivityTTL: getDuration("SESSION_INACTIVITY_TTL", time.Hour),
		LoginTokenTTL:        getDuration("LOGIN_TOKEN_TTL", 10*time.Minute),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AuthCodeTTL:          getDuration("AUTH_CODE_TTL", 10*time.Minute),
		SSOTokenTTL:          getDuration("SSO_TOKEN_TTL", 5*time.Minute),
		RefreshTokenBytes:    getInt("REFRESH_TOKEN_BYTES", 32),
		SSOServiceURLs:       getMap("SSO_SERVICE_URLS", map[string]string{}),
		LoginBypassEmail:     os.Getenv("LOGIN_BYPASS_EMAIL"),
		ServiceName:          getEnv("SERVICE_NAME", "appsqa-auth"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.SigningSecret) < 32 {
		return Config{}, fmt.Errorf("TOKEN_SIGNING_SECRET must be at least 32 bytes")
	}
	if cfg.LoginBypassEmail != "" && cfg.Environment == "production" {
		return Config{}, fmt.Errorf("LOGIN_BYPASS_EMAIL must not be set in production")
	}

	if cfg.RefreshTokenBytes < 32 {
		cfg.RefreshTokenBytes = 32
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

// getMap parses "key=value,key=value" pairs, e.g.
// SSO_SERVICE_URLS="sqa-bi=https://bi.appsqa.io,sqa-crm=https://crm.appsqa.io".
func getMap(key string, def map[string]string) map[string]string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			parsed[name] = value
		}
	}
	if len(parsed) > 0 {
		return parsed
	}
	return def
}

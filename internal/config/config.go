package config

import (
	"os"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// InternalApp and InternalKey identify the app used for self-reporting
	// admin traffic into this instance's own events API. If either is empty,
	// internal reporting is disabled.
	InternalApp string
	InternalKey string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	return &Config{
		AdminUser:     getenv("APP_ADMIN_USER", "admin"),
		AdminPassword: getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:   os.Getenv("APP_DATABASE_URL"),
		ListenAddr:    getenv("APP_LISTEN_ADDR", ":8080"),
		InternalApp:   getenv("APP_INTERNAL_APP", ""),
		InternalKey:   getenv("APP_INTERNAL_KEY", ""),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

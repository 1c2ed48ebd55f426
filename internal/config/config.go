// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything the serve command needs.
type Config struct {
	// DBPath is the SQLite file path, derived from DATABASE_URL.
	DBPath string
	// Environment is "development" or "production". Development drops and
	// recreates the table at startup.
	Environment string
	// AllowedOrigins is the CORS allow-list; "*" allows any origin.
	AllowedOrigins []string
	// Port is the HTTP listen port.
	Port int
}

// Defaults mirrored from the service's deployment environment.
const (
	defaultDatabaseURL = "sqlite:///./tree.db"
	defaultEnvironment = "development"
	defaultPort        = 8000
)

// FromEnv reads DATABASE_URL, ENVIRONMENT, ALLOWED_ORIGINS and PORT,
// applying defaults for anything unset.
func FromEnv() (*Config, error) {
	dbURL := envOr("DATABASE_URL", defaultDatabaseURL)
	dbPath, err := sqlitePath(dbURL)
	if err != nil {
		return nil, err
	}

	port := defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		port = p
	}

	origins := []string{"*"}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins = origins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return &Config{
		DBPath:         dbPath,
		Environment:    envOr("ENVIRONMENT", defaultEnvironment),
		AllowedOrigins: origins,
		Port:           port,
	}, nil
}

// Development reports whether startup should reset the schema.
func (c *Config) Development() bool {
	return c.Environment == "development"
}

// sqlitePath extracts a file path from a sqlite URL. Plain paths pass
// through; non-sqlite schemes are rejected — this build is SQLite-only.
func sqlitePath(url string) (string, error) {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		return strings.TrimPrefix(url, "sqlite:///"), nil
	case strings.HasPrefix(url, "sqlite://"):
		return strings.TrimPrefix(url, "sqlite://"), nil
	case strings.Contains(url, "://"):
		return "", fmt.Errorf("unsupported DATABASE_URL scheme in %q (only sqlite is supported)", url)
	default:
		return url, nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

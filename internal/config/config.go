// Package config centralizes the HYBRIDAUTH_* environment variables the
// module reads at process start, the way the teacher's cmd/*/main.go
// files each read their own HELPDESK_* variables directly.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds the process-wide settings sourced from the environment.
type Config struct {
	// DatabaseDSN selects the backend: a "postgres://"/"postgresql://"
	// DSN for PostgreSQL, or a filesystem path for SQLite. Defaults to a
	// local SQLite file so the module runs out of the box.
	DatabaseDSN string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// DefaultDeny is read from HYBRIDAUTH_DEFAULT_DENY and defaults to
	// true. The Decision Engine does not consult it: Engine.Check always
	// denies when no policy matches, whatever this field holds.
	DefaultDeny bool
}

// Load reads configuration from the environment. Unset variables fall back
// to the documented defaults.
func Load() Config {
	cfg := Config{
		DatabaseDSN: getEnv("HYBRIDAUTH_DATABASE_DSN", "hybridauth.db"),
		LogLevel:    getEnv("HYBRIDAUTH_LOG_LEVEL", "info"),
		DefaultDeny: true,
	}
	if v := os.Getenv("HYBRIDAUTH_DEFAULT_DENY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DefaultDeny = b
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// InitLogging configures the default slog logger based on HYBRIDAUTH_LOG_LEVEL
// and an optional -log-level/--log-level CLI flag (flag wins). It returns
// args with the flag stripped so downstream flag parsing doesn't choke on
// it — mirrors the teacher's initLogging in logging.go.
func InitLogging(args []string) []string {
	levelStr := getEnv("HYBRIDAUTH_LOG_LEVEL", "info")

	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "--log-level=") {
			levelStr = strings.TrimPrefix(arg, "--log-level=")
			continue
		}
		if strings.HasPrefix(arg, "-log-level=") {
			levelStr = strings.TrimPrefix(arg, "-log-level=")
			continue
		}
		if arg == "-log-level" || arg == "--log-level" {
			if i+1 < len(args) {
				levelStr = args[i+1]
				i++
			}
			continue
		}

		remaining = append(remaining, arg)
	}

	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	return remaining
}

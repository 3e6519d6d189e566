package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// parseEnv loads .env (when present) into the process environment and copies
// the known HAULAGE_* variables into cfg. Missing variables leave fields
// untouched.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	setString(&cfg.BackendURL, "HAULAGE_BACKEND_URL")
	setString(&cfg.AnonKey, "HAULAGE_ANON_KEY")
	setString(&cfg.DatabaseDSN, "HAULAGE_DATABASE_DSN")
	setString(&cfg.LocalDBPath, "HAULAGE_LOCAL_DB")
	setString(&cfg.LogFormat, "HAULAGE_LOG_FORMAT")
	setString(&cfg.LogLevel, "HAULAGE_LOG_LEVEL")

	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

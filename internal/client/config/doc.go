// Package config loads runtime configuration for the haulage client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory and the process environment
//     (HAULAGE_BACKEND_URL, HAULAGE_ANON_KEY, HAULAGE_DATABASE_DSN,
//     HAULAGE_LOCAL_DB, HAULAGE_LOG_FORMAT, HAULAGE_LOG_LEVEL).
//  3. Optional JSON file selected via -c or -config (see parseJson).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u string   backend base URL (https://<project>.supabase.co)
//	-k string   backend anon key
//	-d string   path to the local SQLite state file
//	-l string   log format: json, text or zap
//	-reload     enable session recovery after an interrupted run
//
// # JSON schema
//
// Durations accept strings like "2s" or integer nanoseconds:
//
//	{
//	  "backend_url": "https://example.supabase.co",
//	  "anon_key": "public-anon-key",
//	  "local_db_path": "haulage.db",
//	  "session_timeout": "2s",
//	  "profile_timeout": "2s",
//	  "failsafe_timeout": "3s",
//	  "focus_debounce": "2s",
//	  "reload_recovery": true
//	}
package config

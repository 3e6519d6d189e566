package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/dmitrijs2005/haulage/internal/flagx"
	"github.com/dmitrijs2005/haulage/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from "false".
type JsonConfig struct {
	BackendURL              string         `json:"backend_url"`
	AnonKey                 string         `json:"anon_key"`
	DatabaseDSN             string         `json:"database_dsn"`
	LocalDBPath             string         `json:"local_db_path"`
	LogFormat               string         `json:"log_format"`
	LogLevel                string         `json:"log_level"`
	SessionTimeout          timex.Duration `json:"session_timeout"`
	ProfileTimeout          timex.Duration `json:"profile_timeout"`
	FailsafeTimeout         timex.Duration `json:"failsafe_timeout"`
	FocusDebounce           timex.Duration `json:"focus_debounce"`
	ReloadRecovery          *bool          `json:"reload_recovery"`
	FocusRefresh            *bool          `json:"focus_refresh"`
	AssumeCompleteOnTimeout *bool          `json:"assume_complete_on_timeout"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config.
// Only non-zero values override. Panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlayString(&cfg.BackendURL, strings.TrimRight(jc.BackendURL, "/"))
	overlayString(&cfg.AnonKey, jc.AnonKey)
	overlayString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	overlayString(&cfg.LocalDBPath, jc.LocalDBPath)
	overlayString(&cfg.LogFormat, jc.LogFormat)
	overlayString(&cfg.LogLevel, jc.LogLevel)

	if jc.SessionTimeout.Duration > 0 {
		cfg.SessionTimeout = jc.SessionTimeout.Duration
	}
	if jc.ProfileTimeout.Duration > 0 {
		cfg.ProfileTimeout = jc.ProfileTimeout.Duration
	}
	if jc.FailsafeTimeout.Duration > 0 {
		cfg.FailsafeTimeout = jc.FailsafeTimeout.Duration
	}
	if jc.FocusDebounce.Duration > 0 {
		cfg.FocusDebounce = jc.FocusDebounce.Duration
	}
	if jc.ReloadRecovery != nil {
		cfg.ReloadRecovery = *jc.ReloadRecovery
	}
	if jc.FocusRefresh != nil {
		cfg.FocusRefresh = *jc.FocusRefresh
	}
	if jc.AssumeCompleteOnTimeout != nil {
		cfg.AssumeCompleteOnTimeout = *jc.AssumeCompleteOnTimeout
	}
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

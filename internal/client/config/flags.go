package config

import (
	"flag"
	"io"
	"strings"

	"github.com/dmitrijs2005/haulage/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-u string   backend base URL
//	-k string   backend anon key
//	-d string   local SQLite state file
//	-l string   log format
//	-reload     enable session recovery after an interrupted run
//
// args is filtered with flagx.FilterArgs so flags owned by other loaders
// (-c/-config) do not break parsing. Panics on malformed values.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-u", "-k", "-d", "-l", "-reload"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BackendURL, "u", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "backend anon key")
	fs.StringVar(&cfg.LocalDBPath, "d", cfg.LocalDBPath, "local state file")
	fs.StringVar(&cfg.LogFormat, "l", cfg.LogFormat, "log format (json, text, zap)")
	fs.BoolVar(&cfg.ReloadRecovery, "reload", cfg.ReloadRecovery, "recover session after an interrupted run")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
}

package bootstrap

import (
	"time"

	"github.com/dmitrijs2005/haulage/internal/client/config"
)

// Options tune the boot pipeline.
type Options struct {
	// SessionTimeout bounds each identity call made during boot.
	SessionTimeout time.Duration
	// ProfileTimeout bounds each profile read.
	ProfileTimeout time.Duration
	// FailsafeTimeout forces any loading phase to PhaseTimedOut.
	FailsafeTimeout time.Duration
	// FocusDebounce is the window after NotifyFocus during which auth events
	// for the same user are ignored.
	FocusDebounce time.Duration

	// ReloadRecovery enables session recovery when the reload flag is set.
	ReloadRecovery bool
	// FocusRefresh makes NotifyFocus trigger a guarded refresh.
	FocusRefresh bool
	// AssumeCompleteOnTimeout treats the profile as complete once the
	// failsafe fired.
	AssumeCompleteOnTimeout bool
}

func DefaultOptions() Options {
	return Options{
		SessionTimeout:          2 * time.Second,
		ProfileTimeout:          2 * time.Second,
		FailsafeTimeout:         3 * time.Second,
		FocusDebounce:           2 * time.Second,
		AssumeCompleteOnTimeout: true,
	}
}

// OptionsFromConfig copies the bootstrap settings out of cfg. Zero
// durations fall back to the defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		SessionTimeout:          cfg.SessionTimeout,
		ProfileTimeout:          cfg.ProfileTimeout,
		FailsafeTimeout:         cfg.FailsafeTimeout,
		FocusDebounce:           cfg.FocusDebounce,
		ReloadRecovery:          cfg.ReloadRecovery,
		FocusRefresh:            cfg.FocusRefresh,
		AssumeCompleteOnTimeout: cfg.AssumeCompleteOnTimeout,
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = d.SessionTimeout
	}
	if o.ProfileTimeout <= 0 {
		o.ProfileTimeout = d.ProfileTimeout
	}
	if o.FailsafeTimeout <= 0 {
		o.FailsafeTimeout = d.FailsafeTimeout
	}
	if o.FocusDebounce < 0 {
		o.FocusDebounce = 0
	}
	return o
}

package bootstrap

import "github.com/dmitrijs2005/haulage/internal/client/models"

// Phase is the bootstrapper's position in the boot pipeline.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiringSession
	PhaseSessionRecovery
	PhaseFetchingProfile
	PhaseProfileFallback
	PhaseReady
	PhaseTimedOut
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:             "idle",
	PhaseAcquiringSession: "acquiring_session",
	PhaseSessionRecovery:  "session_recovery",
	PhaseFetchingProfile:  "fetching_profile",
	PhaseProfileFallback:  "profile_fallback",
	PhaseReady:            "ready",
	PhaseTimedOut:         "timed_out",
	PhaseFailed:           "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Loading reports whether p is one of the in-progress phases.
func (p Phase) Loading() bool {
	switch p {
	case PhaseIdle, PhaseAcquiringSession, PhaseSessionRecovery, PhaseFetchingProfile, PhaseProfileFallback:
		return true
	}
	return false
}

// Snapshot is an immutable copy of the bootstrapper state. Subscribers may
// keep it; nothing in it is shared with the live state.
type Snapshot struct {
	// Version increases with every published change.
	Version uint64

	Phase   Phase
	Session *models.Session
	User    *models.User
	Profile *models.Profile

	// Role is the profile role, "user" when signed in without one, "" when
	// signed out.
	Role string

	IsProfileComplete bool
	Loading           bool

	// InitError is set when boot failed or the failsafe fired.
	InitError string

	// TimedOut records that the failsafe timer fired during this run.
	TimedOut bool
}

// UserID returns the signed-in user's id, or "".
func (s Snapshot) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

func (s Snapshot) clone() Snapshot {
	c := s
	if s.Session != nil {
		v := *s.Session
		c.Session = &v
	}
	if s.User != nil {
		v := *s.User
		c.User = &v
	}
	c.Profile = s.Profile.Clone()
	return c
}

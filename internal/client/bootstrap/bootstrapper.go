package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/haulage/internal/client/identity"
	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/dmitrijs2005/haulage/internal/client/profiles"
	"github.com/dmitrijs2005/haulage/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrClosed      = errors.New("bootstrapper closed")
)

// LocalStore is the device-local state the bootstrapper needs.
// localstore.Store implements it.
type LocalStore interface {
	CompletionMarker(ctx context.Context, userID string) (bool, error)
	SetCompletionMarker(ctx context.Context, userID string) error
	LastUserID(ctx context.Context) (string, error)
	SetLastUserID(ctx context.Context, userID string) error
	SetReloading(ctx context.Context) error
	ConsumeReloading(ctx context.Context) (bool, error)
	RawToken(ctx context.Context) ([]byte, error)
	ForgetUser(ctx context.Context, userID string) error
}

// Deps are the collaborators of a Bootstrapper.
type Deps struct {
	Identity identity.Service
	Profiles profiles.Store
	Local    LocalStore
	Logger   logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type authEvent struct {
	event   identity.Event
	session *models.Session
}

// Bootstrapper owns the session/profile state of one application run.
type Bootstrapper struct {
	identity identity.Service
	profiles profiles.Store
	local    LocalStore
	log      logging.Logger
	opts     Options
	now      func() time.Time
	bootID   string

	// guard admits one profile fetch at a time.
	guard *semaphore.Weighted

	// localMu serializes device writes with sign-out. It is taken before mu,
	// never while holding it.
	localMu sync.Mutex

	mu    sync.Mutex
	state Snapshot
	// gen changes on every identity switch and on Close. Work started for an
	// older generation must not touch state.
	gen         uint64
	started     bool
	booting     bool
	closed      bool
	handledUser string
	marker      bool
	assume      bool
	fired       bool
	firedGen    uint64
	lastFocus   time.Time
	pending     *authEvent
	ctx         context.Context
	cancel      context.CancelFunc
	failsafe    *time.Timer
	unsubscribe func()
	wg          sync.WaitGroup

	subMu     sync.Mutex
	subs      map[int]func(Snapshot)
	nextSub   int
	published uint64
}

// New builds an idle Bootstrapper. Nothing runs until Start.
func New(deps Deps, opts Options) *Bootstrapper {
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	bootID := uuid.NewString()

	return &Bootstrapper{
		identity: deps.Identity,
		profiles: deps.Profiles,
		local:    deps.Local,
		log:      log.With("boot_id", bootID),
		opts:     opts.withDefaults(),
		now:      now,
		bootID:   bootID,
		guard:    semaphore.NewWeighted(1),
		state:    Snapshot{Phase: PhaseIdle, Loading: true},
		subs:     make(map[int]func(Snapshot)),
	}
}

// BootID identifies this run in logs.
func (b *Bootstrapper) BootID() string { return b.bootID }

// Start arms the failsafe timer, subscribes to auth events and runs the
// boot pipeline in the background. ctx bounds all background work. Calling
// Start twice, or after Close, does nothing.
func (b *Bootstrapper) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.booting = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	gen := b.gen
	b.failsafe = time.AfterFunc(b.opts.FailsafeTimeout, b.onFailsafe)
	b.mu.Unlock()

	b.log.Info(ctx, "boot started",
		"session_timeout", b.opts.SessionTimeout,
		"profile_timeout", b.opts.ProfileTimeout,
		"failsafe_timeout", b.opts.FailsafeTimeout)

	unsubscribe := b.identity.Subscribe(b.onAuthEvent)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		unsubscribe()
		return
	}
	b.unsubscribe = unsubscribe
	b.mu.Unlock()

	b.spawn(func(ctx context.Context) {
		defer b.finishBoot(ctx)
		b.boot(ctx, gen)
	})
}

// Close stops the failsafe timer and the auth subscription, cancels the
// background context and waits for background work to return. It must not
// be called from a subscriber.
func (b *Bootstrapper) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.gen++
	if b.failsafe != nil {
		b.failsafe.Stop()
	}
	unsubscribe, cancel := b.unsubscribe, b.cancel
	b.unsubscribe = nil
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

// Snapshot returns the current state.
func (b *Bootstrapper) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// Subscribe registers fn for every published snapshot. fn runs on the
// goroutine that changed the state and must not call Close.
func (b *Bootstrapper) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
		})
	}
}

// publish delivers s unless a newer version has already gone out.
func (b *Bootstrapper) publish(s Snapshot) {
	b.subMu.Lock()
	if s.Version <= b.published {
		b.subMu.Unlock()
		return
	}
	b.published = s.Version
	fns := make([]func(Snapshot), 0, len(b.subs))
	for i := 0; i < b.nextSub; i++ {
		if fn, ok := b.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	b.subMu.Unlock()

	for _, fn := range fns {
		fn(s.clone())
	}
}

// spawn runs fn in a tracked goroutine. It refuses once closed.
func (b *Bootstrapper) spawn(fn func(ctx context.Context)) bool {
	b.mu.Lock()
	if b.closed || b.ctx == nil {
		b.mu.Unlock()
		return false
	}
	ctx := b.ctx
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.recoverPanic(ctx)
		fn(ctx)
	}()
	return true
}

func (b *Bootstrapper) recoverPanic(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	b.log.Error(ctx, "bootstrap panicked", "panic", r)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state.Phase = PhaseFailed
	b.state.Loading = false
	b.state.InitError = fmt.Sprintf("initialization failed: %v", r)
	snap := b.commitLocked()
	b.mu.Unlock()
	b.publish(snap)
}

// update applies fn to the state if gen is still current. fn reports
// whether it changed anything; only changes are published.
func (b *Bootstrapper) update(gen uint64, fn func(s *Snapshot) bool) bool {
	b.mu.Lock()
	if b.closed || gen != b.gen || !fn(&b.state) {
		b.mu.Unlock()
		return false
	}
	snap := b.commitLocked()
	b.mu.Unlock()
	b.publish(snap)
	return true
}

// persist runs a device write for gen outside mu. wrote is false when gen
// went stale first and nothing was written.
func (b *Bootstrapper) persist(ctx context.Context, gen uint64, write func(ctx context.Context) error) (wrote bool, err error) {
	b.localMu.Lock()
	defer b.localMu.Unlock()

	b.mu.Lock()
	current := !b.closed && gen == b.gen
	b.mu.Unlock()
	if !current {
		return false, nil
	}
	return true, write(ctx)
}

// commitLocked recomputes the derived fields, bumps the version and
// returns a copy for publishing.
func (b *Bootstrapper) commitLocked() Snapshot {
	b.state.IsProfileComplete = b.completeLocked()
	b.state.Version++
	return b.state.clone()
}

func (b *Bootstrapper) completeLocked() bool {
	s := &b.state
	if s.User == nil {
		return false
	}
	return s.Profile.IsCompleted() ||
		s.Profile.HasNames() ||
		b.marker ||
		(b.assume && b.opts.AssumeCompleteOnTimeout)
}

func (b *Bootstrapper) setPhase(gen uint64, p Phase) {
	b.update(gen, func(s *Snapshot) bool {
		if b.fired && b.firedGen == gen {
			return false
		}
		if s.Phase == p {
			return false
		}
		s.Phase = p
		s.Loading = p.Loading()
		return true
	})
}

func (b *Bootstrapper) onFailsafe() {
	b.mu.Lock()
	if b.closed || !b.state.Loading {
		b.mu.Unlock()
		return
	}
	b.fired = true
	b.firedGen = b.gen
	b.assume = true
	from := b.state.Phase

	b.state.Phase = PhaseTimedOut
	b.state.Loading = false
	b.state.TimedOut = true
	b.state.InitError = fmt.Sprintf("initialization timed out after %s", b.opts.FailsafeTimeout)
	snap := b.commitLocked()
	ctx := b.ctx
	b.mu.Unlock()

	b.log.Warn(ctx, "failsafe fired", "phase", from.String())
	b.publish(snap)
}

func roleOf(p *models.Profile) string {
	if p != nil && p.Role != "" {
		return p.Role
	}
	return models.RoleUser
}

func readyLocked(s *Snapshot) {
	s.Phase = PhaseReady
	s.Loading = false
}

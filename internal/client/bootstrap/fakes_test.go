package bootstrap

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/haulage/internal/client/identity"
	"github.com/dmitrijs2005/haulage/internal/client/localstore"
	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/dmitrijs2005/haulage/internal/client/profiles"
	"github.com/dmitrijs2005/haulage/internal/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ---- identity ----

type fakeIdentity struct {
	mu         sync.Mutex
	session    *models.Session
	stall      bool
	getErr     error
	refreshed  *models.Session
	refreshErr error
	restored   *models.Session
	restoreErr error
	signIn     *models.Session
	setCalls   [][2]string
	calls      map[string]int
	listeners  map[int]identity.Listener
	nextID     int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		calls:     make(map[string]int),
		listeners: make(map[int]identity.Listener),
	}
}

func (f *fakeIdentity) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*models.Session, error) {
	f.mu.Lock()
	f.calls["get"]++
	stall, s, err := f.stall, f.session, f.getErr
	f.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return copySession(s), err
}

func (f *fakeIdentity) SignIn(_ context.Context, _, _ string) (*models.Session, error) {
	f.mu.Lock()
	f.calls["sign_in"]++
	s := f.signIn
	f.session = s
	f.mu.Unlock()
	if s == nil {
		return nil, identity.ErrUnauthorized
	}
	f.emit(identity.EventSignedIn, s)
	return copySession(s), nil
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	return f.SignIn(ctx, email, password)
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.mu.Lock()
	f.calls["sign_out"]++
	f.session = nil
	f.mu.Unlock()
	f.emit(identity.EventSignedOut, nil)
	return nil
}

func (f *fakeIdentity) RefreshSession(context.Context) (*models.Session, error) {
	f.mu.Lock()
	f.calls["refresh"]++
	s, err := f.refreshed, f.refreshErr
	if err == nil && s != nil {
		f.session = s
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, identity.ErrNoSession
	}
	f.emit(identity.EventTokenRefreshed, s)
	return copySession(s), nil
}

func (f *fakeIdentity) SetSession(_ context.Context, access, refresh string) (*models.Session, error) {
	f.mu.Lock()
	f.calls["set"]++
	f.setCalls = append(f.setCalls, [2]string{access, refresh})
	s, err := f.restored, f.restoreErr
	if err == nil {
		f.session = s
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.emit(identity.EventSignedIn, s)
	return copySession(s), nil
}

func (f *fakeIdentity) Subscribe(l identity.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeIdentity) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeIdentity) emit(e identity.Event, s *models.Session) {
	f.mu.Lock()
	ls := make([]identity.Listener, 0, len(f.listeners))
	for i := 0; i < f.nextID; i++ {
		if l, ok := f.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(e, copySession(s))
	}
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func sessionFor(userID string) *models.Session {
	return &models.Session{
		AccessToken:  "at-" + userID,
		RefreshToken: "rt-" + userID,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		User:         models.User{ID: userID, Email: userID[:8] + "@example.com"},
	}
}

// ---- profiles ----

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]*models.Profile
	legacy    bool
	err       error
	gate      chan struct{}
	started   chan []string
	gets      [][]string
	upserts   []*models.Profile
	upsertErr error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: make(map[string]*models.Profile)}
}

func (f *fakeProfiles) put(p *models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[p.ID] = p.Clone()
}

func (f *fakeProfiles) setGate(gate chan struct{}, started chan []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
	f.started = started
}

func (f *fakeProfiles) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

func (f *fakeProfiles) columns(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[i]
}

func (f *fakeProfiles) Get(ctx context.Context, userID string, columns []string) (*models.Profile, error) {
	f.mu.Lock()
	f.gets = append(f.gets, columns)
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- columns:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.legacy && slices.Contains(columns, "completed") {
		return nil, &profiles.SchemaMismatchError{Column: "completed"}
	}
	row := f.rows[userID].Clone()
	if row == nil {
		return nil, profiles.ErrNotFound
	}
	if !slices.Contains(columns, "completed") {
		row.Completed = nil
	}
	return row, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, p.Clone())
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.legacy && p.Completed != nil {
		return &profiles.SchemaMismatchError{Column: "completed"}
	}
	row := p.Clone()
	if old, ok := f.rows[p.ID]; ok && row.Role == "" {
		row.Role = old.Role
	}
	f.rows[p.ID] = row
	return nil
}

// ---- local store ----

// panickyLocal blows up on the marker read to exercise the Failed phase.
type panickyLocal struct {
	*localstore.Store
}

func (panickyLocal) CompletionMarker(context.Context, string) (bool, error) {
	panic("disk on fire")
}

// ---- clock ----

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- fixture ----

type fixture struct {
	t        *testing.T
	identity *fakeIdentity
	profiles *fakeProfiles
	local    *localstore.Store
	clock    *testClock
	userID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	return &fixture{
		t:        t,
		identity: newFakeIdentity(),
		profiles: newFakeProfiles(),
		local:    local,
		clock:    &testClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		userID:   uuid.NewString(),
	}
}

// signedIn makes the identity service hold a session for the fixture user.
func (fx *fixture) signedIn() *models.Session {
	s := sessionFor(fx.userID)
	fx.identity.mu.Lock()
	fx.identity.session = s
	fx.identity.mu.Unlock()
	return s
}

func testOptions() Options {
	return Options{
		SessionTimeout:          200 * time.Millisecond,
		ProfileTimeout:          200 * time.Millisecond,
		FailsafeTimeout:         5 * time.Second,
		FocusDebounce:           2 * time.Second,
		AssumeCompleteOnTimeout: true,
	}
}

func (fx *fixture) newBootstrapper(opts Options) *Bootstrapper {
	return fx.newBootstrapperWith(fx.local, opts)
}

func (fx *fixture) newBootstrapperWith(local LocalStore, opts Options) *Bootstrapper {
	b := New(Deps{
		Identity: fx.identity,
		Profiles: fx.profiles,
		Local:    local,
		Logger:   logging.Nop(),
		Now:      fx.clock.Now,
	}, opts)
	fx.t.Cleanup(b.Close)
	return b
}

func (fx *fixture) start(opts Options) *Bootstrapper {
	b := fx.newBootstrapper(opts)
	b.Start(context.Background())
	return b
}

func waitFor(t *testing.T, b *Bootstrapper, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(b.Snapshot()) }, 3*time.Second, 5*time.Millisecond)
	return b.Snapshot()
}

func isReady(s Snapshot) bool { return s.Phase == PhaseReady }

// phaseRecorder collects every published snapshot.
type phaseRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *phaseRecorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *phaseRecorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Phase)
	}
	return out
}

// waitBooted waits until the boot goroutine has finished, so auth events
// emitted afterwards take the regular path.
func waitBooted(t *testing.T, b *Bootstrapper) {
	t.Helper()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.started && !b.booting
	}, 3*time.Second, 5*time.Millisecond)
}

// slowLocal holds completion marker writes until gate closes.
type slowLocal struct {
	*localstore.Store
	gate    chan struct{}
	entered chan struct{}
}

func (l slowLocal) SetCompletionMarker(ctx context.Context, userID string) error {
	select {
	case l.entered <- struct{}{}:
	default:
	}
	select {
	case <-l.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return l.Store.SetCompletionMarker(ctx, userID)
}

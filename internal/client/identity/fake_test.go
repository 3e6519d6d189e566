package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ---- in-memory storage ----

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string][]byte)}
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *memStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ---- fake GoTrue backend ----

const testSecret = "test-secret"

type fakeUser struct {
	ID       string
	Email    string
	Password string
}

type fakeGoTrue struct {
	t *testing.T

	mu          sync.Mutex
	users       map[string]fakeUser // by email
	refresh     map[string]string   // refresh token -> user id
	now         func() time.Time
	tokenTTL    time.Duration
	autoConfirm bool
	failStatus  int
	calls       map[string]int
	lastBearer  string
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	t.Helper()
	f := &fakeGoTrue{
		t:           t,
		users:       make(map[string]fakeUser),
		refresh:     make(map[string]string),
		now:         time.Now,
		tokenTTL:    time.Hour,
		autoConfirm: true,
		calls:       make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.checkAPIKey)
	r.Post("/auth/v1/token", f.token)
	r.Post("/auth/v1/signup", f.signup)
	r.Post("/auth/v1/logout", f.logout)
	r.Get("/auth/v1/user", f.user)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) addUser(email, password string) fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := fakeUser{ID: uuid.NewString(), Email: email, Password: password}
	f.users[email] = u
	return u
}

func (f *fakeGoTrue) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGoTrue) checkAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "No API key found in request"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeGoTrue) signToken(userID string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(f.t, err)
	return s
}

// issue must be called with f.mu held.
func (f *fakeGoTrue) issue(u fakeUser) map[string]any {
	exp := f.now().Add(f.tokenTTL)
	rt := uuid.NewString()
	f.refresh[rt] = u.ID
	return map[string]any{
		"access_token":  f.signToken(u.ID, exp),
		"token_type":    "bearer",
		"expires_in":    int64(f.tokenTTL.Seconds()),
		"expires_at":    exp.Unix(),
		"refresh_token": rt,
		"user":          map[string]any{"id": u.ID, "email": u.Email},
	}
}

func (f *fakeGoTrue) userByID(id string) (fakeUser, bool) {
	for _, u := range f.users {
		if u.ID == id {
			return u, true
		}
	}
	return fakeUser{}, false
}

func (f *fakeGoTrue) token(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	grant := r.URL.Query().Get("grant_type")
	f.calls["token:"+grant]++

	if f.failStatus != 0 {
		writeJSON(w, f.failStatus, map[string]any{"msg": "boom"})
		return
	}

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch grant {
	case "password":
		u, ok := f.users[body["email"]]
		if !ok || u.Password != body["password"] {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, f.issue(u))
	case "refresh_token":
		id, ok := f.refresh[body["refresh_token"]]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "invalid_grant", "error_description": "Invalid Refresh Token: Refresh Token Not Found",
			})
			return
		}
		delete(f.refresh, body["refresh_token"])
		u, _ := f.userByID(id)
		writeJSON(w, http.StatusOK, f.issue(u))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "unsupported_grant_type"})
	}
}

func (f *fakeGoTrue) signup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["signup"]++

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	if _, exists := f.users[body["email"]]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code": 422, "error_code": "user_already_exists", "msg": "User already registered",
		})
		return
	}
	u := fakeUser{ID: uuid.NewString(), Email: body["email"], Password: body["password"]}
	f.users[u.Email] = u

	if !f.autoConfirm {
		writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "email": u.Email})
		return
	}
	writeJSON(w, http.StatusOK, f.issue(u))
}

func (f *fakeGoTrue) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["logout"]++
	f.lastBearer = r.Header.Get("Authorization")
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGoTrue) user(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["user"]++

	raw := r.Header.Get("Authorization")
	if len(raw) < len("Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "missing token"})
		return
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw[len("Bearer "):], claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithTimeFunc(f.now))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error_code": "bad_jwt", "msg": err.Error()})
		return
	}
	u, ok := f.userByID(claims.Subject)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"msg": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "email": u.Email})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---- event recorder ----

type recorded struct {
	Event  Event
	UserID string
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) listen(e Event, s *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{Event: e, UserID: s.UserID()})
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

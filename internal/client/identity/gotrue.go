package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultStorageKey is the storage key of the persisted session JSON.
const DefaultStorageKey = "auth.session"

// expiryMargin refreshes access tokens slightly before they actually expire.
const expiryMargin = 10 * time.Second

// GoTrueClient implements Service over the GoTrue REST API.
type GoTrueClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	storage    Storage
	storageKey string
	now        func() time.Time

	mu      sync.Mutex
	session *models.Session
	loaded  bool

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

type Option func(*GoTrueClient)

func WithHTTPClient(c *http.Client) Option {
	return func(g *GoTrueClient) { g.httpClient = c }
}

func WithStorageKey(key string) Option {
	return func(g *GoTrueClient) { g.storageKey = key }
}

func WithClock(now func() time.Time) Option {
	return func(g *GoTrueClient) { g.now = now }
}

// NewGoTrueClient builds a client for baseURL (the project URL, without the
// /auth/v1 suffix). apiKey is sent as the apikey header on every call.
func NewGoTrueClient(baseURL, apiKey string, storage Storage, opts ...Option) *GoTrueClient {
	g := &GoTrueClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		storage:    storage,
		storageKey: DefaultStorageKey,
		now:        time.Now,
		listeners:  make(map[int]Listener),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// tokenResponse is the body of /token and of auto-confirmed /signup.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

func (g *GoTrueClient) toSession(tr tokenResponse) (*models.Session, error) {
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrBadResponse)
	}
	if _, err := uuid.Parse(tr.User.ID); err != nil {
		return nil, fmt.Errorf("%w: malformed user id %q", ErrBadResponse, tr.User.ID)
	}

	s := &models.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		User:         tr.User,
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		s.ExpiresAt = g.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	default:
		if claims, err := parseClaims(tr.AccessToken); err == nil && claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}
	}
	return s, nil
}

// parseClaims decodes the access token payload without verifying the
// signature. The backend verifies; the client only needs exp and sub.
func parseClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: unparsable access token: %v", ErrBadResponse, err)
	}
	return claims, nil
}

// GetSession returns the persisted session, refreshing it when the access
// token has expired. (nil, nil) means nobody is signed in.
func (g *GoTrueClient) GetSession(ctx context.Context) (*models.Session, error) {
	s, err := g.current(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.Expired(g.now(), expiryMargin) {
		return s, nil
	}
	if s.RefreshToken == "" {
		g.clear(ctx)
		return nil, nil
	}

	refreshed, err := g.refresh(ctx, s.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			g.clear(ctx)
			g.emit(EventSignedOut, nil)
		}
		return nil, err
	}
	g.emit(EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// current returns the in-memory session, loading it from storage once.
// A corrupt blob is dropped.
func (g *GoTrueClient) current(ctx context.Context) (*models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.loaded {
		return copySession(g.session), nil
	}

	raw, err := g.storage.Get(ctx, g.storageKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	g.loaded = true
	if raw == nil {
		return nil, nil
	}

	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil || s.AccessToken == "" {
		_ = g.storage.Delete(ctx, g.storageKey)
		return nil, nil
	}
	g.session = &s
	return copySession(g.session), nil
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// store makes s the current session and persists it.
func (g *GoTrueClient) store(ctx context.Context, s *models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.storage.Set(ctx, g.storageKey, raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	g.session = copySession(s)
	g.loaded = true
	return nil
}

func (g *GoTrueClient) clear(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = nil
	g.loaded = true
	_ = g.storage.Delete(ctx, g.storageKey)
}

func (g *GoTrueClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var tr tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := g.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"password"}}, "", body, &tr); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	s, err := g.toSession(tr)
	if err != nil {
		return nil, err
	}
	if err := g.store(ctx, s); err != nil {
		return nil, err
	}
	g.emit(EventSignedIn, s)
	return s, nil
}

// SignUp registers a new account. When the project requires e-mail
// confirmation the backend returns only the user and SignUp returns
// (nil, nil).
func (g *GoTrueClient) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	var tr tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := g.do(ctx, http.MethodPost, "/auth/v1/signup", nil, "", body, &tr); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, nil
	}

	s, err := g.toSession(tr)
	if err != nil {
		return nil, err
	}
	if err := g.store(ctx, s); err != nil {
		return nil, err
	}
	g.emit(EventSignedIn, s)
	return s, nil
}

// SignOut revokes the session server-side and always clears it locally.
// An already invalid token is not an error.
func (g *GoTrueClient) SignOut(ctx context.Context) error {
	s, _ := g.current(ctx)

	var err error
	if s != nil {
		err = g.do(ctx, http.MethodPost, "/auth/v1/logout", nil, s.AccessToken, nil, nil)
		if errors.Is(err, ErrUnauthorized) {
			err = nil
		}
	}

	g.clear(ctx)
	g.emit(EventSignedOut, nil)

	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// RefreshSession forces a token refresh using the stored refresh token.
func (g *GoTrueClient) RefreshSession(ctx context.Context) (*models.Session, error) {
	s, err := g.current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || s.RefreshToken == "" {
		return nil, ErrNoSession
	}

	refreshed, err := g.refresh(ctx, s.RefreshToken)
	if err != nil {
		return nil, err
	}
	g.emit(EventTokenRefreshed, refreshed)
	return refreshed, nil
}

func (g *GoTrueClient) refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	var tr tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := g.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"refresh_token"}}, "", body, &tr); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	s, err := g.toSession(tr)
	if err != nil {
		return nil, err
	}
	if err := g.store(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SetSession rebuilds a session from raw tokens: an expired access token is
// refreshed, a live one is validated against /user.
func (g *GoTrueClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*models.Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}

	claims, err := parseClaims(accessToken)
	if err != nil {
		return nil, err
	}

	expired := claims.ExpiresAt != nil && !g.now().Add(expiryMargin).Before(claims.ExpiresAt.Time)
	if expired {
		if refreshToken == "" {
			return nil, ErrNoSession
		}
		s, err := g.refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		g.emit(EventTokenRefreshed, s)
		return s, nil
	}

	var user models.User
	if err := g.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("set session: %w", err)
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		return nil, fmt.Errorf("%w: malformed user id %q", ErrBadResponse, user.ID)
	}

	s := &models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         user,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	if err := g.store(ctx, s); err != nil {
		return nil, err
	}
	g.emit(EventSignedIn, s)
	return s, nil
}

// AccessToken returns the bearer token for data API calls, or "" when
// signed out. It satisfies profiles.TokenSource.
func (g *GoTrueClient) AccessToken(ctx context.Context) (string, error) {
	s, err := g.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return s.AccessToken, nil
}

func (g *GoTrueClient) Subscribe(l Listener) func() {
	g.lmu.Lock()
	defer g.lmu.Unlock()

	id := g.nextID
	g.nextID++
	g.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			g.lmu.Lock()
			delete(g.listeners, id)
			g.lmu.Unlock()
		})
	}
}

func (g *GoTrueClient) emit(event Event, s *models.Session) {
	g.lmu.Lock()
	ls := make([]Listener, 0, len(g.listeners))
	for i := 0; i < g.nextID; i++ {
		if l, ok := g.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	g.lmu.Unlock()

	for _, l := range ls {
		l(event, copySession(s))
	}
}

// do sends one JSON request. A nil out discards the response body.
func (g *GoTrueClient) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return mapStatus(resp.StatusCode, eb)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

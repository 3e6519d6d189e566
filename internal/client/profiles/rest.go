package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/haulage/internal/client/models"
)

// RESTStore implements Store over PostgREST (/rest/v1).
type RESTStore struct {
	baseURL    string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
	now        func() time.Time
}

type RESTOption func(*RESTStore)

func WithHTTPClient(c *http.Client) RESTOption {
	return func(s *RESTStore) { s.httpClient = c }
}

func WithClock(now func() time.Time) RESTOption {
	return func(s *RESTStore) { s.now = now }
}

// NewRESTStore builds a store for the project at baseURL. Requests carry
// apiKey and, when tokens yields one, the user's bearer token; otherwise the
// anon key doubles as the bearer.
func NewRESTStore(baseURL, apiKey string, tokens TokenSource, opts ...RESTOption) *RESTStore {
	s := &RESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RESTStore) Get(ctx context.Context, userID string, columns []string) (*models.Profile, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", strings.Join(columns, ","))

	req, err := s.newRequest(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	var p models.Profile
	if err := s.do(req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RESTStore) Upsert(ctx context.Context, p *models.Profile) error {
	row := map[string]any{
		"id":         p.ID,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"updated_at": s.now().UTC().Format(time.RFC3339Nano),
	}
	if p.Completed != nil {
		row["completed"] = *p.Completed
	}

	body, err := json.Marshal(row)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("on_conflict", "id")
	req, err := s.newRequest(ctx, http.MethodPost, q, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	return s.do(req, nil)
}

func (s *RESTStore) newRequest(ctx context.Context, method string, q url.Values, body io.Reader) (*http.Request, error) {
	u := s.baseURL + "/rest/v1/" + Table + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	bearer := s.apiKey
	if s.tokens != nil {
		tok, err := s.tokens.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		if tok != "" {
			bearer = tok
		}
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	return req, nil
}

func (s *RESTStore) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var eb restError
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return mapRESTError(resp.StatusCode, eb)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	return nil
}

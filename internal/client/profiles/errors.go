package profiles

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	ErrNotFound    = errors.New("profile not found")
	ErrUnavailable = errors.New("profile store unavailable")
	ErrNoColumns   = errors.New("no columns selected")
)

// SchemaMismatchError means the deployed schema lacks a selected column.
type SchemaMismatchError struct {
	Column string
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return "profile schema mismatch"
	}
	return fmt.Sprintf("profile schema mismatch: column %s does not exist", e.Column)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// IsSchemaMismatch reports whether err is, or wraps, a *SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var sm *SchemaMismatchError
	return errors.As(err, &sm)
}

// UnknownColumnError is returned for a column outside the profiles table.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown profile column %q", e.Column)
}

// APIError is a PostgREST failure that has no sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("profiles: %d %s: %s", e.Status, e.Code, e.Message)
}

// undefinedColumn is the Postgres SQLSTATE for a missing column.
const undefinedColumn = "42703"

// noRows is the PostgREST code for a single-object request matching zero
// (or several) rows.
const noRows = "PGRST116"

// schemaCacheMiss is the PostgREST code for a write naming a column its
// schema cache does not know.
const schemaCacheMiss = "PGRST204"

var schemaCacheRe = regexp.MustCompile(`Could not find the '([A-Za-z0-9_]+)' column`)

var missingColumnRe = regexp.MustCompile(`column "?([A-Za-z0-9_."]+?)"?(?: of relation "?[A-Za-z0-9_.]+"?)? does not exist`)

// missingColumn extracts the column name from messages such as
// `column profiles.completed does not exist`.
func missingColumn(msg string) (string, bool) {
	m := missingColumnRe.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	col := strings.Trim(m[1], `"`)
	if i := strings.LastIndex(col, "."); i >= 0 {
		col = col[i+1:]
	}
	return col, true
}

// restError is the PostgREST error body.
type restError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func mapRESTError(status int, body restError) error {
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	if body.Code == noRows {
		return ErrNotFound
	}
	if body.Code == undefinedColumn {
		col, _ := missingColumn(msg)
		return &SchemaMismatchError{Column: col, Err: &APIError{Status: status, Code: body.Code, Message: msg}}
	}
	if body.Code == schemaCacheMiss {
		var col string
		if m := schemaCacheRe.FindStringSubmatch(msg); m != nil {
			col = m[1]
		}
		return &SchemaMismatchError{Column: col, Err: &APIError{Status: status, Code: body.Code, Message: msg}}
	}
	if col, ok := missingColumn(msg); ok {
		return &SchemaMismatchError{Column: col, Err: &APIError{Status: status, Code: body.Code, Message: msg}}
	}
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %d %s", ErrUnavailable, status, msg)
	}
	return &APIError{Status: status, Code: body.Code, Message: msg}
}

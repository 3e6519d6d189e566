package identity

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnavailable  = errors.New("identity service unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoSession    = errors.New("no session")
	ErrBadResponse  = errors.New("unexpected identity response")
)

// APIError is a non-auth failure reported by the identity service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity: %d: %s", e.Status, e.Message)
}

// errorBody covers both the legacy and the current GoTrue error shapes.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	return b.Error
}

func (b errorBody) message() string {
	for _, m := range []string{b.Msg, b.ErrorDescription, b.Message} {
		if m != "" {
			return m
		}
	}
	return ""
}

// mapStatus converts a failed HTTP response into a sentinel or *APIError.
func mapStatus(status int, body errorBody) error {
	msg := body.message()
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case status == http.StatusBadRequest && isCredentialCode(body.code()):
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return &APIError{Status: status, Code: body.code(), Message: msg}
	}
}

func isCredentialCode(code string) bool {
	switch code {
	case "invalid_grant", "invalid_credentials", "refresh_token_not_found",
		"refresh_token_already_used", "session_not_found", "bad_jwt":
		return true
	}
	return false
}

// Package profiles reads and writes rows of the backend profiles table.
//
// Two adapters implement Store: RESTStore talks to a PostgREST endpoint the
// way the hosted backend exposes it, PostgresStore goes straight to the
// database for self-hosted deployments. Both report a missing row as
// ErrNotFound and a column the deployed schema does not have yet as a
// *SchemaMismatchError, so callers can retry with BaseColumns.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/haulage/internal/client/models"
)

// Table is the backend table holding one profile row per user.
const Table = "profiles"

// BaseColumns exist in every deployed schema version.
var BaseColumns = []string{"id", "first_name", "last_name", "role", "updated_at"}

// FullColumns adds the completed flag introduced by a later migration.
var FullColumns = append(append([]string(nil), BaseColumns...), "completed")

// Store is the profile table contract.
type Store interface {
	// Get reads the row of userID selecting only columns. Columns that are
	// not selected stay zero (Completed stays nil).
	Get(ctx context.Context, userID string, columns []string) (*models.Profile, error)

	// Upsert inserts or updates the row p.ID. A nil p.Completed leaves the
	// completed column out of the statement.
	Upsert(ctx context.Context, p *models.Profile) error
}

// TokenSource yields the bearer token of the signed-in user, or "" when
// nobody is signed in.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

var knownColumns = map[string]bool{
	"id":         true,
	"first_name": true,
	"last_name":  true,
	"role":       true,
	"updated_at": true,
	"completed":  true,
}

func checkColumns(columns []string) error {
	if len(columns) == 0 {
		return ErrNoColumns
	}
	for _, c := range columns {
		if !knownColumns[c] {
			return &UnknownColumnError{Column: c}
		}
	}
	return nil
}

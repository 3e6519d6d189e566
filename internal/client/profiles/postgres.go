package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/dmitrijs2005/haulage/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store directly against the profiles table.
type PostgresStore struct {
	db dbx.DBTX
}

func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a pgx-backed *sql.DB.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func (r *PostgresStore) Get(ctx context.Context, userID string, columns []string) (*models.Profile, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, strings.Join(columns, ", "), Table)

	p := &models.Profile{}
	var (
		role      sql.NullString
		updatedAt sql.NullTime
	)
	dest := make([]any, 0, len(columns))
	for _, c := range columns {
		switch c {
		case "id":
			dest = append(dest, &p.ID)
		case "first_name":
			dest = append(dest, &p.FirstName)
		case "last_name":
			dest = append(dest, &p.LastName)
		case "completed":
			dest = append(dest, &p.Completed)
		case "role":
			dest = append(dest, &role)
		case "updated_at":
			dest = append(dest, &updatedAt)
		}
	}

	if err := r.db.QueryRowContext(ctx, query, userID).Scan(dest...); err != nil {
		return nil, mapPgError(err)
	}

	p.Role = role.String
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time.UTC()
	}
	return p, nil
}

func (r *PostgresStore) Upsert(ctx context.Context, p *models.Profile) error {
	var (
		query string
		args  []any
	)
	if p.Completed != nil {
		query = `INSERT INTO profiles (id, first_name, last_name, completed, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE
		 SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
		     completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at`
		args = []any{p.ID, p.FirstName, p.LastName, *p.Completed}
	} else {
		query = `INSERT INTO profiles (id, first_name, last_name, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
		     updated_at = EXCLUDED.updated_at`
		args = []any{p.ID, p.FirstName, p.LastName}
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPgError(err)
	}
	return nil
}

func mapPgError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedColumn {
		col, _ := missingColumn(pgErr.Message)
		return &SchemaMismatchError{Column: col, Err: err}
	}
	return fmt.Errorf("db error: %w", err)
}

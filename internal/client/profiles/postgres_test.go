package profiles

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresStore(db), mock
}

const selectFull = `(?s)^SELECT id, first_name, last_name, role, updated_at, completed FROM profiles WHERE id = \$1$`
const selectBase = `(?s)^SELECT id, first_name, last_name, role, updated_at FROM profiles WHERE id = \$1$`

func TestPostgresStore_Get_Found(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(FullColumns).
		AddRow(userID, "Jane", "Doe", "admin", updated, true)
	mock.ExpectQuery(selectFull).WithArgs(userID).WillReturnRows(rows)

	p, err := repo.Get(context.Background(), userID, FullColumns)
	require.NoError(t, err)

	assert.Equal(t, &models.Profile{
		ID:        userID,
		FirstName: models.Ptr("Jane"),
		LastName:  models.Ptr("Doe"),
		Completed: models.Ptr(true),
		Role:      "admin",
		UpdatedAt: updated,
	}, p)
}

func TestPostgresStore_Get_Nulls(t *testing.T) {
	repo, mock := newPostgresWithMock(t)

	rows := sqlmock.NewRows(FullColumns).
		AddRow(userID, nil, "Doe", nil, nil, nil)
	mock.ExpectQuery(selectFull).WithArgs(userID).WillReturnRows(rows)

	p, err := repo.Get(context.Background(), userID, FullColumns)
	require.NoError(t, err)
	assert.Nil(t, p.FirstName)
	assert.Equal(t, "Doe", *p.LastName)
	assert.Nil(t, p.Completed)
	assert.Empty(t, p.Role)
	assert.True(t, p.UpdatedAt.IsZero())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	mock.ExpectQuery(selectFull).WithArgs(userID).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), userID, FullColumns)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Get_UndefinedColumn(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	mock.ExpectQuery(selectFull).WithArgs(userID).WillReturnError(&pgconn.PgError{
		Severity: "ERROR",
		Code:     "42703",
		Message:  `column "completed" does not exist`,
	})
	mock.ExpectQuery(selectBase).WithArgs(userID).WillReturnRows(
		sqlmock.NewRows(BaseColumns).AddRow(userID, "Jane", "Doe", "user", nil),
	)

	_, err := repo.Get(context.Background(), userID, FullColumns)
	var sm *SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "completed", sm.Column)

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))

	p, err := repo.Get(context.Background(), userID, BaseColumns)
	require.NoError(t, err)
	assert.True(t, p.HasNames())
	assert.Nil(t, p.Completed)
}

func TestPostgresStore_Get_DBError(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	mock.ExpectQuery(selectFull).WithArgs(userID).WillReturnError(errors.New("db down"))

	_, err := repo.Get(context.Background(), userID, FullColumns)
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
	assert.False(t, IsSchemaMismatch(err))
}

func TestPostgresStore_Get_UnknownColumn(t *testing.T) {
	repo, _ := newPostgresWithMock(t)
	_, err := repo.Get(context.Background(), userID, []string{"id; DROP TABLE profiles"})
	var uc *UnknownColumnError
	require.ErrorAs(t, err, &uc)
}

func TestPostgresStore_Upsert(t *testing.T) {
	t.Run("with completed", func(t *testing.T) {
		repo, mock := newPostgresWithMock(t)
		q := `(?s)^INSERT INTO profiles \(id, first_name, last_name, completed, updated_at\)\s+VALUES \(\$1, \$2, \$3, \$4, now\(\)\)\s+ON CONFLICT \(id\) DO UPDATE.*completed = EXCLUDED.completed.*$`
		mock.ExpectExec(q).
			WithArgs(userID, "Jane", "Doe", true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(context.Background(), &models.Profile{
			ID: userID, FirstName: models.Ptr("Jane"), LastName: models.Ptr("Doe"), Completed: models.Ptr(true),
		})
		require.NoError(t, err)
	})

	t.Run("names only", func(t *testing.T) {
		repo, mock := newPostgresWithMock(t)
		q := `(?s)^INSERT INTO profiles \(id, first_name, last_name, updated_at\)\s+VALUES \(\$1, \$2, \$3, now\(\)\)\s+ON CONFLICT \(id\) DO UPDATE.*$`
		mock.ExpectExec(q).
			WithArgs(userID, "Jane", "Doe").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(context.Background(), &models.Profile{
			ID: userID, FirstName: models.Ptr("Jane"), LastName: models.Ptr("Doe"),
		})
		require.NoError(t, err)
	})

	t.Run("legacy schema", func(t *testing.T) {
		repo, mock := newPostgresWithMock(t)
		mock.ExpectExec(`(?s)^INSERT INTO profiles`).
			WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "completed" of relation "profiles" does not exist`})

		err := repo.Upsert(context.Background(), &models.Profile{
			ID: userID, FirstName: models.Ptr("Jane"), LastName: models.Ptr("Doe"), Completed: models.Ptr(true),
		})
		require.True(t, IsSchemaMismatch(err))
	})
}

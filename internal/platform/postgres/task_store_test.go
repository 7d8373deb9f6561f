package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrov/taskboard-api/internal/domain"
	"github.com/mpetrov/taskboard-api/internal/store"
)

// fakeResult implements sql.Result with a fixed affected-row count.
type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }

func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

// fakeDBTX implements store.DBTX, recording ExecContext calls. The query
// paths that need a *sql.Row or *sql.Rows cannot be faked without a live
// connection and are covered against a real database instead.
type fakeDBTX struct {
	execFn    func(query string, args []any) (sql.Result, error)
	execCalls []string
}

func (f *fakeDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execCalls = append(f.execCalls, query)
	return f.execFn(query, args)
}

func (f *fakeDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, nil
}

func (f *fakeDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}

func (f *fakeDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func mustTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("Write docs", "API reference")
	require.NoError(t, err)
	return task
}

func TestTaskStoreCreate(t *testing.T) {
	t.Run("maps a unique violation to ErrTaskExists", func(t *testing.T) {
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return nil, &pgconn.PgError{Code: uniqueViolationCode}
			},
		}
		s := NewPostgresTaskStore(db, nil)

		err := s.Create(context.Background(), mustTask(t))

		assert.ErrorIs(t, err, store.ErrTaskExists)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("wraps other driver failures in a StoreError", func(t *testing.T) {
		driverErr := errors.New("connection reset")
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return nil, driverErr
			},
		}
		s := NewPostgresTaskStore(db, nil)

		err := s.Create(context.Background(), mustTask(t))

		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "create", storeErr.Operation)
		assert.ErrorIs(t, err, driverErr)
		assert.False(t, store.IsNotFoundError(err))
	})

	t.Run("rejects an invalid task before touching the database", func(t *testing.T) {
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return fakeResult{rows: 1}, nil
			},
		}
		s := NewPostgresTaskStore(db, nil)

		bad := mustTask(t)
		bad.Title = ""

		err := s.Create(context.Background(), bad)

		assert.ErrorIs(t, err, domain.ErrTaskTitleEmpty)
		assert.Empty(t, db.execCalls)
	})
}

func TestTaskStoreReplace(t *testing.T) {
	t.Run("maps zero affected rows to ErrTaskNotFound", func(t *testing.T) {
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return fakeResult{rows: 0}, nil
			},
		}
		s := NewPostgresTaskStore(db, nil)

		err := s.Replace(context.Background(), mustTask(t))

		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("never rewrites created_at", func(t *testing.T) {
		task := mustTask(t)
		var gotQuery string
		var gotArgs []any
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				gotQuery = query
				gotArgs = args
				return fakeResult{rows: 1}, nil
			},
		}
		s := NewPostgresTaskStore(db, nil)

		require.NoError(t, s.Replace(context.Background(), task))

		assert.NotContains(t, gotQuery, "created_at")
		assert.NotContains(t, gotArgs, task.CreatedAt)
	})

	t.Run("wraps update failures in a StoreError", func(t *testing.T) {
		driverErr := errors.New("deadlock detected")
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return nil, driverErr
			},
		}
		s := NewPostgresTaskStore(db, nil)

		err := s.Replace(context.Background(), mustTask(t))

		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "replace", storeErr.Operation)
		assert.ErrorIs(t, err, driverErr)
	})
}

func TestTaskStoreDelete(t *testing.T) {
	t.Run("maps zero affected rows to ErrTaskNotFound", func(t *testing.T) {
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return fakeResult{rows: 0}, nil
			},
		}
		s := NewPostgresTaskStore(db, nil)

		err := s.Delete(context.Background(), mustTask(t).ID)

		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("succeeds when a row was removed", func(t *testing.T) {
		db := &fakeDBTX{
			execFn: func(query string, args []any) (sql.Result, error) {
				return fakeResult{rows: 1}, nil
			},
		}
		s := NewPostgresTaskStore(db, nil)

		assert.NoError(t, s.Delete(context.Background(), mustTask(t).ID))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: uniqueViolationCode}

	assert.True(t, isUniqueViolation(pgErr))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert failed: %w", pgErr)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
	assert.False(t, isUniqueViolation(nil))
}

func TestBuildTaskFilter(t *testing.T) {
	completed := domain.TaskStatusCompleted

	t.Run("empty filter yields no clause", func(t *testing.T) {
		where, args := buildTaskFilter(store.TaskFilter{})
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("status filter binds one parameter", func(t *testing.T) {
		where, args := buildTaskFilter(store.TaskFilter{Status: &completed})
		assert.Equal(t, "WHERE status = $1", where)
		require.Len(t, args, 1)
		assert.Equal(t, completed, args[0])
	})

	t.Run("search filter binds one parameter used on both columns", func(t *testing.T) {
		where, args := buildTaskFilter(store.TaskFilter{Search: "docs"})
		assert.Equal(t,
			"WHERE (position($1 in title) > 0 OR position($1 in description) > 0)",
			where)
		require.Len(t, args, 1)
		assert.Equal(t, "docs", args[0])
	})

	t.Run("combined filters join with AND in argument order", func(t *testing.T) {
		where, args := buildTaskFilter(store.TaskFilter{Status: &completed, Search: "docs"})
		assert.Equal(t,
			"WHERE status = $1 AND (position($2 in title) > 0 OR position($2 in description) > 0)",
			where)
		require.Len(t, args, 2)
		assert.Equal(t, completed, args[0])
		assert.Equal(t, "docs", args[1])
	})

	t.Run("search text is bound, never spliced into the query", func(t *testing.T) {
		hostile := `'; DROP TABLE tasks; --`
		where, args := buildTaskFilter(store.TaskFilter{Search: hostile})
		assert.NotContains(t, where, "DROP TABLE")
		require.Len(t, args, 1)
		assert.Equal(t, hostile, args[0])
	})
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mpetrov/taskboard-api/internal/domain"
	"github.com/mpetrov/taskboard-api/internal/platform/logger"
	"github.com/mpetrov/taskboard-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
// It saves a new task to the database, handling domain validation.
// Returns store.ErrTaskExists if a task with the same ID already exists.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, title, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			log.Warn("duplicate task ID during create",
				slog.String("task_id", task.ID.String()))
			return store.ErrTaskExists
		}

		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "create", "insert failed", err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// It retrieves a task by its unique ID.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, title, description, status, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	var task domain.Task
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.CreatedAt,
		&task.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}

		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, store.NewStoreError("task", "get", "query failed", err)
	}

	return &task, nil
}

// Replace implements store.TaskStore.Replace
// It overwrites an existing task's row with the given task.
// Returns store.ErrTaskNotFound if the task does not exist. There is no
// version check; concurrent replaces of the same ID are last-write-wins.
func (s *PostgresTaskStore) Replace(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during replace",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	// created_at is deliberately absent from the SET list: it is
	// written once at insert and immutable after that.
	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to replace task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "replace", "update failed", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("task", "replace", "rows affected unavailable", err)
	}
	if rows == 0 {
		return store.ErrTaskNotFound
	}

	log.Debug("task replaced", slog.String("task_id", task.ID.String()))
	return nil
}

// Delete implements store.TaskStore.Delete
// It removes a task from the store by its ID.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return store.NewStoreError("task", "delete", "delete failed", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("task", "delete", "rows affected unavailable", err)
	}
	if rows == 0 {
		return store.ErrTaskNotFound
	}

	log.Debug("task deleted", slog.String("task_id", id.String()))
	return nil
}

// List implements store.TaskStore.List
// It runs two independent queries against the same bound-parameter
// predicate: one for the capped/skipped page of rows and one for the
// total count. The two are not transactionally consistent with each
// other; the count may disagree with the rows under concurrent writes.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	filter store.TaskFilter,
	limit, offset int,
) ([]*domain.Task, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where, args := buildTaskFilter(filter)

	rowsQuery := fmt.Sprintf(`
		SELECT id, title, description, status, created_at, updated_at
		FROM tasks
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, rowsQuery, append(args, limit, offset)...)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("task", "list", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0, limit)
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(
			&task.ID,
			&task.Title,
			&task.Description,
			&task.Status,
			&task.CreatedAt,
			&task.UpdatedAt,
		); err != nil {
			return nil, 0, store.NewStoreError("task", "list", "row scan failed", err)
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.NewStoreError("task", "list", "row iteration failed", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tasks %s`, where)

	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("task", "list", "count query failed", err)
	}

	return tasks, total, nil
}

// buildTaskFilter translates a TaskFilter into a WHERE clause with bound
// parameters. An empty filter yields an empty clause.
func buildTaskFilter(filter store.TaskFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.Search != "" {
		args = append(args, filter.Search)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(position($%d in title) > 0 OR position($%d in description) > 0)", n, n))
	}

	if len(conditions) == 0 {
		return "", nil
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

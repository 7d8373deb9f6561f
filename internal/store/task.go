package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mpetrov/taskboard-api/internal/domain"
)

// TaskFilter restricts a List call to matching tasks. A nil Status and an
// empty Search mean "no constraint", not "match empty".
type TaskFilter struct {
	// Status, when set, is an exact-match equality predicate.
	Status *domain.TaskStatus

	// Search, when non-empty, matches case-sensitively as a substring
	// against either the title or the description.
	Search string
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrTaskExists if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Replace overwrites an existing task's row with the given task.
	// It is not an upsert: callers must fetch first. Returns
	// ErrTaskNotFound if the task does not exist. Concurrent replaces
	// of the same ID race; the last write wins with no version check.
	Replace(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns tasks matching the filter, capped and skipped by
	// limit/offset, along with a total count for the same predicate.
	// The rows and the count come from two independent queries and are
	// not guaranteed to be transactionally consistent with each other.
	List(ctx context.Context, filter TaskFilter, limit, offset int) ([]*domain.Task, int64, error)
}

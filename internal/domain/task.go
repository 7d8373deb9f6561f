// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxTaskTitleLength is the maximum number of characters allowed in a task title.
const MaxTaskTitleLength = 100

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskTitleTooLong is returned when a task's title exceeds the length limit.
	ErrTaskTitleTooLong = errors.New("task title exceeds maximum length")

	// ErrTaskStatusInvalid is returned when a task's status is not one of the
	// defined status values.
	ErrTaskStatusInvalid = errors.New("invalid task status")
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Valid task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// IsValid reports whether the status is one of the defined values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// Task represents a single tracked task. The store is the sole durable
// owner of tasks; callers always re-fetch rather than caching copies.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTask creates a new Task with the given title and description.
// It generates a new UUID, defaults the status to pending, and sets both
// timestamps to the same instant so that CreatedAt == UpdatedAt at creation.
// Returns an error if validation fails.
func NewTask(title, description string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.Title == "" {
		return ErrTaskTitleEmpty
	}

	if len(t.Title) > MaxTaskTitleLength {
		return ErrTaskTitleTooLong
	}

	if !t.Status.IsValid() {
		return ErrTaskStatusInvalid
	}

	return nil
}

// TaskPatch describes a partial update to a task. Only non-nil fields are
// applied; unknown fields cannot be expressed, so they cannot silently
// leak into the entity.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
}

// IsEmpty reports whether the patch carries no changes.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

// Apply merges the patch into the task field by field and refreshes the
// UpdatedAt timestamp. The task is left unchanged if the merged result
// fails validation.
func (t *Task) Apply(patch TaskPatch) error {
	merged := *t
	if patch.Title != nil {
		merged.Title = *patch.Title
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	merged.UpdatedAt = time.Now().UTC()

	if err := merged.Validate(); err != nil {
		return err
	}

	*t = merged
	return nil
}

// Package service contains the task orchestrator: it sequences the
// durable store write and the event publish for every mutation, and
// normalizes lower-layer failures into the service error taxonomy.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/mpetrov/taskboard-api/internal/domain"
	"github.com/mpetrov/taskboard-api/internal/platform/logger"
	"github.com/mpetrov/taskboard-api/internal/store"
)

// Pagination defaults applied when the caller omits or zeroes them.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// ErrTaskNotFound is returned when the requested task does not exist.
// Get-by-id normalizes every underlying failure, including a malformed
// id, to this error by contract.
var ErrTaskNotFound = errors.New("task not found")

// ErrListFailed is returned when the store cannot serve a list query.
// The original cause is attached for diagnostics but is not exposed to
// the caller in raw form.
var ErrListFailed = errors.New("failed to fetch tasks")

// TaskServiceError is a custom error type for task service errors.
type TaskServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
func NewTaskServiceError(operation, message string, err error) *TaskServiceError {
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// TaskNotifier publishes task lifecycle events on the fixed broker
// channels. The broadcast gateway implements this interface; the
// orchestrator never talks to the transport layer directly.
type TaskNotifier interface {
	NotifyTaskCreated(ctx context.Context, task *domain.Task) error
	NotifyTaskUpdated(ctx context.Context, task *domain.Task) error
	NotifyTaskDeleted(ctx context.Context, task *domain.Task) error
}

// CreateTaskInput carries the fields needed to create a task.
type CreateTaskInput struct {
	Title       string
	Description string
}

// ListTasksInput carries the list query parameters before normalization.
// Zero Page and Limit mean "use the defaults".
type ListTasksInput struct {
	Page   int
	Limit  int
	Status *domain.TaskStatus
	Search string
}

// PageMeta describes the pagination state of a list result. Page and
// Limit always reflect the normalized values actually used for the
// query, never the raw request input.
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// TaskPage is one page of tasks plus its pagination metadata.
type TaskPage struct {
	Items []*domain.Task `json:"items"`
	Meta  PageMeta       `json:"meta"`
}

// TaskService provides the task CRUD operations, each an independent
// request with no cached state: every read, update, and delete
// round-trips to the store first.
type TaskService interface {
	// CreateTask builds a new task and persists it, then publishes a
	// TASK_CREATED event. The durable write precedes the publish; a
	// publish failure surfaces as an error but does not roll back the write.
	CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error)

	// ListTasks returns a page of tasks matching the filter, with
	// normalized pagination metadata.
	ListTasks(ctx context.Context, input ListTasksInput) (*TaskPage, error)

	// GetTask retrieves a task by id. Any underlying failure, including
	// a malformed id, is normalized to ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// UpdateTask fetches the task, merges the patch field by field,
	// persists the result, and publishes a TASK_UPDATED event.
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error)

	// DeleteTask fetches the task, removes it, and publishes a
	// TASK_DELETED event carrying the fetched snapshot.
	DeleteTask(ctx context.Context, id string) error
}

// taskServiceImpl implements the TaskService interface.
type taskServiceImpl struct {
	tasks    store.TaskStore
	notifier TaskNotifier
	logger   *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	notifier TaskNotifier,
	logger *slog.Logger,
) (TaskService, error) {
	if tasks == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if notifier == nil {
		return nil, errors.New("task notifier cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &taskServiceImpl{
		tasks:    tasks,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "task_service")),
	}, nil
}

// CreateTask implements TaskService.CreateTask.
func (s *taskServiceImpl) CreateTask(
	ctx context.Context,
	input CreateTaskInput,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := domain.NewTask(input.Title, input.Description)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, NewTaskServiceError("create", "failed to persist task", err)
	}

	if err := s.notifier.NotifyTaskCreated(ctx, task); err != nil {
		// The write is durable; the notification is at-most-once.
		return nil, NewTaskServiceError("create", "task persisted but notification failed", err)
	}

	log.Info("task created", slog.String("task_id", task.ID.String()))
	return task, nil
}

// ListTasks implements TaskService.ListTasks.
func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	input ListTasksInput,
) (*TaskPage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	page := input.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := input.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	offset := (page - 1) * limit

	filter := store.TaskFilter{
		Status: input.Status,
		Search: input.Search,
	}

	items, total, err := s.tasks.List(ctx, filter, limit, offset)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, NewTaskServiceError("list", "store query failed",
			fmt.Errorf("%w: %v", ErrListFailed, err))
	}

	return &TaskPage{
		Items: items,
		Meta: PageMeta{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// GetTask implements TaskService.GetTask.
func (s *taskServiceImpl) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	taskID, err := uuid.Parse(id)
	if err != nil {
		// A malformed id is indistinguishable from an absent one by contract.
		return nil, ErrTaskNotFound
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, ErrTaskNotFound
	}

	return task, nil
}

// UpdateTask implements TaskService.UpdateTask.
func (s *taskServiceImpl) UpdateTask(
	ctx context.Context,
	id string,
	patch domain.TaskPatch,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := task.Apply(patch); err != nil {
		return nil, err
	}

	if err := s.tasks.Replace(ctx, task); err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, NewTaskServiceError("update", "failed to persist task", err)
	}

	if err := s.notifier.NotifyTaskUpdated(ctx, task); err != nil {
		return nil, NewTaskServiceError("update", "task persisted but notification failed", err)
	}

	log.Info("task updated", slog.String("task_id", task.ID.String()))
	return task, nil
}

// DeleteTask implements TaskService.DeleteTask.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		if store.IsNotFoundError(err) {
			return ErrTaskNotFound
		}
		return NewTaskServiceError("delete", "failed to delete task", err)
	}

	if err := s.notifier.NotifyTaskDeleted(ctx, task); err != nil {
		return NewTaskServiceError("delete", "task deleted but notification failed", err)
	}

	log.Info("task deleted", slog.String("task_id", task.ID.String()))
	return nil
}

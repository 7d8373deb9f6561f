package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrov/taskboard-api/internal/api"
	"github.com/mpetrov/taskboard-api/internal/domain"
	"github.com/mpetrov/taskboard-api/internal/service"
	"github.com/mpetrov/taskboard-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"service not found", service.ErrTaskNotFound, http.StatusNotFound},
		{"store not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"duplicate", store.ErrTaskExists, http.StatusConflict},
		{"list failure", service.ErrListFailed, http.StatusBadRequest},
		{"empty title", domain.ErrTaskTitleEmpty, http.StatusBadRequest},
		{"long title", domain.ErrTaskTitleTooLong, http.StatusBadRequest},
		{"bad status", domain.ErrTaskStatusInvalid, http.StatusBadRequest},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
		{
			"wrapped not found",
			service.NewTaskServiceError("get", "lookup failed", service.ErrTaskNotFound),
			http.StatusNotFound,
		},
		{
			"wrapped list failure",
			fmt.Errorf("%w: syntax error", service.ErrListFailed),
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"not found", service.ErrTaskNotFound, "Task not found"},
		{"duplicate", store.ErrTaskExists, "Task already exists"},
		{"list failure", service.ErrListFailed, "Failed to fetch tasks"},
		{"empty title", domain.ErrTaskTitleEmpty, "Task title is required"},
		{"long title", domain.ErrTaskTitleTooLong, "Task title is too long"},
		{"bad status", domain.ErrTaskStatusInvalid, "Invalid task status"},
		{
			"internal detail never leaks",
			errors.New("pq: connection refused at 10.0.0.5:5432"),
			"An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	type payload struct {
		Title string `validate:"required,max=100"`
	}

	t.Run("names the failing field and rule", func(t *testing.T) {
		err := validator.New().Struct(payload{})
		require.Error(t, err)

		got := api.SanitizeValidationError(err)
		assert.Contains(t, got, "Title")
		assert.Contains(t, got, "required field")
	})

	t.Run("falls back to a generic message", func(t *testing.T) {
		got := api.SanitizeValidationError(errors.New("something else entirely"))
		assert.Equal(t, "Validation error", got)
	})
}

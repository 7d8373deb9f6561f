package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mpetrov/taskboard-api/internal/redact"
)

// Envelope is the uniform response shape for every endpoint:
// {status: bool, message: string, data: T}. Error responses carry
// status=false and omit data.
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// RespondWithJSON writes a success envelope with the given status code,
// message, and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	writeEnvelope(w, Envelope{
		Status:  true,
		Message: message,
		Data:    data,
	}, status)
}

// RespondWithError writes an error envelope with the given status code and
// message. It also sets the TraceID from the request context if available.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	traceID := GetTraceID(r.Context())

	slog.Debug("sending error response",
		"status_code", status,
		"message", message,
		"trace_id", traceID,
		"path", r.URL.Path,
		"method", r.Method)

	writeEnvelope(w, Envelope{
		Status:  false,
		Message: message,
		TraceID: traceID,
	}, status)
}

// RespondWithErrorAndLog writes an error envelope and also logs the
// detailed error. The full error is logged (redacted); only the sanitized
// message is exposed to the client.
//
// Log level strategy: 5xx at ERROR, everything else at DEBUG.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	userMessage string,
	err error,
) {
	traceID := GetTraceID(r.Context())

	logAttrs := []slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}

	if err != nil {
		logAttrs = append(logAttrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	logLevel := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		logLevel = slog.LevelError
	}

	slog.LogAttrs(r.Context(), logLevel, "API error response", logAttrs...)

	writeEnvelope(w, Envelope{
		Status:  false,
		Message: userMessage,
		TraceID: traceID,
	}, status)
}

func writeEnvelope(w http.ResponseWriter, env Envelope, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

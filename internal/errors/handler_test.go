package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(includeStack bool) *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), includeStack)
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	sentinel := errors.New("file not found")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name:       "deadline exceeded",
			err:        fmt.Errorf("render: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "api error",
			err:        ErrInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "wrapped chart not found",
			err:        fmt.Errorf("lookup: %w", ErrChartNotFound),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
			wantCode:   "CHART_NOT_FOUND",
		},
		{
			name:       "load error",
			err:        NewLoadError("failed to load workbook", sentinel),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   TypeDataUnavailable,
			wantCode:   "LOAD",
		},
		{
			name:       "parsing error",
			err:        NewParsingError("bad sheet", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeDataCorrupted,
			wantCode:   "PARSING",
		},
		{
			name:       "validation error",
			err:        NewAppValidationError("invalid range", nil),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantCode:   "VALIDATION",
		},
		{
			name:       "not found error",
			err:        NewNotFoundError("sheet Q9", nil),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "render error",
			err:        NewRenderError("chart failed", errors.New("boom")),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeRender,
			wantCode:   "RENDER",
		},
		{
			name:       "plain error",
			err:        errors.New("something odd"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(false)
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard/render", nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			body := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/api/dashboard/render", body["instance"])
			assert.Equal(t, "req-1", body["trace_id"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error_code"])
			}
			assert.NotContains(t, body, "stack")
		})
	}
}

func TestErrorHandler_NilError(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(false).HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Zero(t, rec.Body.Len())
}

func TestErrorHandler_AppErrorContext(t *testing.T) {
	err := NewNotFoundError("sheet", errors.New("Q9")).WithContext("sheet", "Q9")

	rec := httptest.NewRecorder()
	newTestHandler(false).HandleError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), err)

	body := decodeProblem(t, rec)
	assert.Equal(t, "Q9", body["sheet"])
	assert.Equal(t, "sheet not found: Q9", body["detail"])
}

func TestErrorHandler_ValidationDetails(t *testing.T) {
	err := NewValidationErrors([]ValidationError{{Field: "from", Message: "from must be a date"}})

	rec := httptest.NewRecorder()
	newTestHandler(false).HandleError(rec, httptest.NewRequest(http.MethodPost, "/x", nil), err)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeProblem(t, rec)
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	errs, ok := details["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
}

func TestFieldError(t *testing.T) {
	err := FieldError("reducer", "reducer must be one of: mean sum count min max")

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", err.ErrorCode)
	details, ok := err.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, []ValidationError{{Field: "reducer", Message: "reducer must be one of: mean sum count min max"}}, details.Errors)
}

func TestErrorHandler_StackOnServerErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(true).HandleError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("boom"))
	assert.Contains(t, decodeProblem(t, rec), "stack")
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(true).HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/x", nil), "kaboom")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "kaboom", body["panic"])
}

func TestErrorHandler_NotFoundAndMethod(t *testing.T) {
	h := newTestHandler(false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decodeProblem(t, rec)["detail"], "DELETE")
}

func TestAppError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewLoadError("failed to read", cause)

	assert.Equal(t, "[LOAD] failed to read: disk on fire", err.Error())
	assert.ErrorIs(t, err, cause)

	var appErr *AppError
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &appErr)
	assert.Equal(t, ErrTypeLoad, appErr.Type)

	assert.Equal(t, "[CONFIG] bad", NewConfigError("bad", nil).Error())
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Bad Request", "", "/x").
		WithExtension("trace_id", "t1")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "t1", body["trace_id"])
	assert.Equal(t, "/x", body["instance"])
	assert.NotContains(t, body, "detail")
}

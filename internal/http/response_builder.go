// Package http serves the wallet's JSON API.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping from domain errors to the error body clients receive.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"otakuwallet/internal/core"
	applog "otakuwallet/internal/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Field     string    `json:"field,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		applog.Default(applog.ComponentHTTP).Error("Failed to encode response", applog.FieldError, err)
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":500,"message":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// NewErrorResponse builds the error body for r.
func NewErrorResponse(r *http.Request, statusCode int, message, field string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorResponse{
			Status:    statusCode,
			Message:   message,
			Timestamp: time.Now().UTC(),
			Path:      r.URL.Path,
			Field:     field,
		})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return NewErrorResponse(r, http.StatusBadRequest, message, "")
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(r *http.Request, message string) *JSONResponseBuilder {
	return NewErrorResponse(r, http.StatusNotFound, message, "")
}

// InternalServerError creates a 500 response. Details stay in the log.
func InternalServerError(r *http.Request) *JSONResponseBuilder {
	return NewErrorResponse(r, http.StatusInternalServerError, "internal server error", "")
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(r *http.Request) *JSONResponseBuilder {
	return NewErrorResponse(r, http.StatusMethodNotAllowed, "method not allowed", "")
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError(r *http.Request) *JSONResponseBuilder {
	return NewErrorResponse(r, http.StatusTooManyRequests, "rate limit exceeded, please try again later", "")
}

// ErrorFor maps a service error onto its response: validation failures are
// 400 with the offending field, unknown ids 404, everything else an opaque 500.
func ErrorFor(r *http.Request, err error) *JSONResponseBuilder {
	switch core.KindOf(err) {
	case core.KindValidation:
		var ve *core.ValidationError
		errors.As(err, &ve)
		return NewErrorResponse(r, http.StatusBadRequest, ve.Error(), ve.Field)
	case core.KindNotFound:
		return NotFoundError(r, err.Error())
	}

	applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP).ErrorContext(r.Context(),
		"Request failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
	return InternalServerError(r)
}

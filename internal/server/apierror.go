package server

import (
	"encoding/json"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeTooLarge         Code = "PAYLOAD_TOO_LARGE"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeInternalError    Code = "INTERNAL_ERROR"
)

// apiError is the error envelope every handler writes.
type apiError struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *apiError) write(w http.ResponseWriter) {
	writeJSON(w, e.Status, errorResponse{
		Error:   string(e.Code),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

func badRequest(msg string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msg}
}

func conflict(msg string) *apiError {
	return &apiError{Status: http.StatusConflict, Code: CodeConflict, Message: msg}
}

func tooLarge(msg string) *apiError {
	return &apiError{Status: http.StatusRequestEntityTooLarge, Code: CodeTooLarge, Message: msg}
}

func validationFailed(msg string, details any) *apiError {
	return &apiError{Status: http.StatusUnprocessableEntity, Code: CodeValidationFailed, Message: msg, Details: details}
}

func internalError() *apiError {
	return &apiError{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "An internal error occurred"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

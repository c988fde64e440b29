package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Success is the {success, data} shape used by write endpoints.
type Success struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes v as a 200 response body.
func JSON(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// Created writes v as a 201 response body.
func Created(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusCreated, v)
}

// OK writes {"success": true, "data": data}.
func OK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Success{Success: true, Data: data})
}

// Error writes {"error": message, "code": code}.
func Error(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// Degraded writes an error alongside fallback data fields so consumers always
// receive the shape they expect. fields must not contain "error" or "code".
func Degraded(w http.ResponseWriter, status int, code, message string, fields map[string]any) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["error"] = message
	body["code"] = code
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response body", "error", err)
	}
}

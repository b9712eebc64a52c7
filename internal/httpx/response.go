package httpx

import (
	"encoding/json"
	"net/http"
)

// All endpoints answer with the {success, data|error} envelope. Paginated
// lists add total/page/per_page at the top level next to data.

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(payload)
	if err != nil {
		// best-effort error response; avoid writing partial JSON
		http.Error(w, `{"success":false,"error":"encode_error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		// nothing we can do at this point
		_ = err
	}
}

// OK writes a successful envelope around data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// Created writes a 201 envelope with a human message and data, the shape the
// mutation endpoints use.
func Created(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusCreated, map[string]any{"success": true, "message": message, "data": data})
}

// Message writes a successful envelope with only a message.
func Message(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

// Fail writes the failure envelope.
func Fail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]any{"success": false, "error": msg})
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// ErrNotFound is returned by store adapters when the referenced row is absent.
var ErrNotFound = errors.New("registry not found")

// ErrInvalidCredentials is the single outcome for every token resolution
// failure: bad signature, malformed token, expired token, empty subject, or a
// subject with no matching account. Callers must not be able to tell these
// apart.
var ErrInvalidCredentials = errors.New("Could not validate credentials")

// ConflictError reports a uniqueness violation. Field is the offending column
// when the constraint maps to one ("username", "email", "name", "title"),
// empty when only a generic conflict is known.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return "duplicated registry"
	}
	return fmt.Sprintf("%s: %s is already in use", e.Field, e.Value)
}

// FieldError is one entry in a 400 validation detail list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed rule for a request body.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("%s: %s", v[0].Field, v[0].Message)
}

// writeDetail writes the {"detail": ...} error payload used across the API.
func writeDetail(w http.ResponseWriter, status int, detail interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"detail": detail}); err != nil {
		log.Printf("write detail: %v", err)
	}
}

// writeConflict maps a ConflictError to a 409, falling back to the
// entity-specific generic message when the constraint was not classified.
func writeConflict(w http.ResponseWriter, conflict *ConflictError, generic string) {
	if conflict.Field == "" {
		writeDetail(w, http.StatusConflict, generic)
		return
	}
	writeDetail(w, http.StatusConflict, conflict.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// writeStoreError surfaces an unanticipated store failure. Domain outcomes
// (conflict, not found) never go through here.
func writeStoreError(w http.ResponseWriter, err error) {
	log.Printf("store error: %v", err)
	writeDetail(w, http.StatusInternalServerError, "internal server error")
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/vfs"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

// StatusFor maps an operation error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case vfs.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, rpf.ErrReadOnly):
		return http.StatusConflict
	case vfs.IsFormatError(err), errors.Is(err, rpf.ErrNotFile), errors.Is(err, rpf.ErrNotDirectory):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Debug("write response", "err", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), Envelope{Error: err.Error()})
}

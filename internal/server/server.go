// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package server exposes container sessions over HTTP with JSON envelopes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/woozymasta/rpf/internal/defrag"
	"github.com/woozymasta/rpf/internal/inventory"
	"github.com/woozymasta/rpf/internal/session"
	"github.com/woozymasta/rpf/internal/vfs"
)

// DefaultMaxBodyBytes limits replacement payload uploads.
const DefaultMaxBodyBytes = 1 << 30

// Server serves one vfs.Service.
type Server struct {
	svc      *vfs.Service
	logger   *slog.Logger
	analyzer inventory.Analyzer
	driver   defrag.Driver
	analyses singleflight.Group
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	// MaxBodyBytes limits PUT bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// New returns a server over svc.
func New(svc *vfs.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:      svc,
		logger:   logger,
		analyzer: inventory.Analyzer{Logger: logger},
		driver:   defrag.Driver{Logger: logger},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return r.Header.Get("Origin") == "" || sameHost(r)
			},
		},
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /sessions", s.handleOpen)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleClose)
	s.mux.HandleFunc("GET /sessions/{id}/entries", s.handleExtract)
	s.mux.HandleFunc("PUT /sessions/{id}/entries", s.handleReplace)
	s.mux.HandleFunc("GET /sessions/{id}/raw", s.handleExtractRaw)
	s.mux.HandleFunc("GET /sessions/{id}/list", s.handleList)
	s.mux.HandleFunc("GET /sessions/{id}/find", s.handleFind)
	s.mux.HandleFunc("GET /sessions/{id}/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /sessions/{id}/defrag", s.handleDefrag)

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}

	return nil
}

// OpenRequest is the POST /sessions body.
type OpenRequest struct {
	Path string `json:"path"`
}

// SessionInfo describes one open session.
type SessionInfo struct {
	ID string `json:"id"`
}

// Payload carries entry bytes; Data is base64 in JSON and null for empty raw entries.
type Payload struct {
	Path string `json:"path"`
	Size int    `json:"size"`
	Data []byte `json:"data"`
}

// ReplaceResult is the PUT entries response.
type ReplaceResult struct {
	Path     string `json:"path"`
	Replaced bool   `json:"replaced"`
}

// FindResult is the find response.
type FindResult struct {
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decode body: %w", errBadRequest, err))
		return
	}
	if req.Path == "" {
		writeError(w, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}

	id, err := s.svc.Open(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, SessionInfo{ID: id})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.svc.Close(id) {
		writeError(w, fmt.Errorf("%w: session %s", session.ErrArchiveNotFound, id))
		return
	}

	writeData(w, http.StatusOK, SessionInfo{ID: id})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}

	data, err := s.svc.Extract(r.PathValue("id"), path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, Payload{Path: path, Size: len(data), Data: data})
}

func (s *Server) handleExtractRaw(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}

	data, err := s.svc.ExtractRaw(r.PathValue("id"), path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, Payload{Path: path, Size: len(data), Data: data})
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}

	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read body: %w", errBadRequest, err))
		return
	}

	replaced, err := s.svc.Replace(r.PathValue("id"), path, data)
	if err != nil {
		writeError(w, err)
		return
	}
	if !replaced {
		writeError(w, fmt.Errorf("%w: %s", vfs.ErrNotFound, path))
		return
	}

	writeData(w, http.StatusOK, ReplaceResult{Path: path, Replaced: true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var listing inventory.Listing
	err := s.svc.With(r.PathValue("id"), func(sess *session.Session, res *vfs.Resolver) error {
		var err error
		listing, err = inventory.List(res, sess.Archive(), r.URL.Query().Get("path"))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, listing)
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	name, ok := requireQuery(w, r, "name")
	if !ok {
		return
	}

	paths, err := s.svc.FindByName(r.PathValue("id"), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}

	writeData(w, http.StatusOK, FindResult{Name: name, Paths: paths})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	recursive := queryBool(r, "recursive")

	// Concurrent requests for the same session share one walk.
	key := id + ":" + strconv.FormatBool(recursive)
	v, err, _ := s.analyses.Do(key, func() (any, error) {
		var st inventory.Statistics
		err := s.svc.With(id, func(sess *session.Session, res *vfs.Resolver) error {
			an := s.analyzer
			an.Resolver = res
			an.MaxDepth = res.MaxDepth

			var err error
			st, err = an.Analyze(context.WithoutCancel(r.Context()), sess.Archive(), recursive)
			return err
		})
		return st, err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, v)
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, fmt.Errorf("%w: query parameter %q is required", errBadRequest, name))
		return "", false
	}

	return v, true
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return u.Host == r.Host
}

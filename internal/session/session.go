// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package session owns opened containers and hands them out by opaque id.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/woozymasta/rpf"
)

var (
	// ErrArchiveNotFound is returned for unknown or closed session ids and missing container files.
	ErrArchiveNotFound = errors.New("archive not found")
)

// ScanState tracks how much of a session's container tree has been visited.
type ScanState int

const (
	// Unscanned means only the header and entry table were read.
	Unscanned ScanState = iota
	// LazilyScanned means at least one nested container was materialized on demand.
	LazilyScanned
	// FullyScanned means every nested container was visited (name index built).
	FullyScanned
)

// String returns the scan state name.
func (s ScanState) String() string {
	switch s {
	case Unscanned:
		return "unscanned"
	case LazilyScanned:
		return "lazily_scanned"
	case FullyScanned:
		return "fully_scanned"
	default:
		return fmt.Sprintf("scan_state(%d)", int(s))
	}
}

// Session is one opened container owned by a Registry.
type Session struct {
	ID       string
	Path     string
	OpenedAt time.Time
	archive  *rpf.Archive
	lastUsed time.Time
	state    atomic.Int32
	closed   bool
	mu       sync.Mutex
}

// Archive returns the owned container. Callers must hold the session via Registry.With.
func (s *Session) Archive() *rpf.Archive {
	return s.archive
}

// ScanState returns the current scan state. Safe to call without holding the session.
func (s *Session) ScanState() ScanState {
	return ScanState(s.state.Load())
}

// MarkScanned raises the scan state; it never lowers it.
func (s *Session) MarkScanned(state ScanState) {
	for {
		cur := s.state.Load()
		if int32(state) <= cur || s.state.CompareAndSwap(cur, int32(state)) { //nolint:gosec // small enum
			return
		}
	}
}

// Registry maps session ids to opened containers.
type Registry struct {
	sessions map[string]*Session
	opts     rpf.Options
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry. Containers are opened with opts.
func NewRegistry(opts rpf.Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Open reads the header and entry table of path and registers a new session for it.
// Nested containers are not visited.
func (r *Registry) Open(path string) (string, error) {
	opts := r.opts
	opts.Name = ""

	a, err := rpf.OpenWithOptions(path, opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", ErrArchiveNotFound, err)
		}

		return "", err
	}

	now := r.now()
	s := &Session{
		ID:       uuid.NewString(),
		Path:     path,
		OpenedAt: now,
		archive:  a,
		lastUsed: now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Debug("session opened", "session", s.ID, "path", path, "entries", a.EntryCount())
	return s.ID, nil
}

// Close closes the container of id and forgets the session.
// It reports false when id is unknown.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.release(s)
	return true
}

// Get returns the session for id, or nil when unknown.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[id]
}

// With runs fn while holding the session's lock. One call per session runs at a time.
func (r *Registry) With(id string, fn func(*Session) error) error {
	s := r.Get(id)
	if s == nil {
		return fmt.Errorf("%w: session %s", ErrArchiveNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session %s", ErrArchiveNotFound, id)
	}

	s.lastUsed = r.now()
	return fn(s)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// IDs returns open session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		r.release(s)
	}
}

// RunJanitor closes sessions idle longer than idle every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, idle time.Duration, interval time.Duration) {
	if idle <= 0 {
		return
	}
	if interval <= 0 {
		interval = idle / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expire(idle)
		}
	}
}

// expire closes sessions whose last use is older than idle.
func (r *Registry) expire(idle time.Duration) int {
	now := r.now()

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}

		if now.Sub(s.lastUsed) > idle {
			delete(r.sessions, id)
			stale = append(stale, s)
		}
		s.mu.Unlock()
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.logger.Info("session expired", "session", s.ID, "path", s.Path)
		r.release(s)
	}

	return len(stale)
}

// release closes the session's container once no call holds it.
func (r *Registry) release(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	if err := s.archive.Close(); err != nil {
		r.logger.Warn("close archive", "session", s.ID, "path", s.Path, "error", err)
	}

	r.logger.Debug("session closed", "session", s.ID)
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/session"
)

// DefaultIndexCacheSize is the number of per-session name indexes kept in memory.
const DefaultIndexCacheSize = 32

// Service binds the session registry to the resolver. Every call holds the
// session lock for the whole resolve-and-operate sequence.
type Service struct {
	registry *session.Registry
	resolver *Resolver
	indexes  *lru.Cache[string, *NameIndex]
	flight   singleflight.Group
	logger   *slog.Logger

	// generations counts index invalidations per session; a build started
	// under an older generation is returned but never cached.
	generations map[string]uint64
	genMu       sync.Mutex
}

// NewService creates a service over registry and resolver.
func NewService(registry *session.Registry, resolver *Resolver, indexCacheSize int, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if indexCacheSize <= 0 {
		indexCacheSize = DefaultIndexCacheSize
	}

	indexes, err := lru.New[string, *NameIndex](indexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create name index cache: %w", err)
	}

	return &Service{
		registry:    registry,
		resolver:    resolver,
		indexes:     indexes,
		logger:      logger,
		generations: make(map[string]uint64),
	}, nil
}

// Registry returns the underlying session registry.
func (s *Service) Registry() *session.Registry {
	return s.registry
}

// Resolver returns the underlying resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Open opens a container and returns its session id.
func (s *Service) Open(path string) (string, error) {
	return s.registry.Open(path)
}

// Close closes a session and drops its name index.
func (s *Service) Close(id string) bool {
	closed := s.registry.Close(id)

	s.genMu.Lock()
	delete(s.generations, id)
	s.indexes.Remove(id)
	s.genMu.Unlock()

	return closed
}

// Extract returns the decoded payload at virtualPath.
func (s *Service) Extract(id string, virtualPath string) ([]byte, error) {
	var data []byte
	err := s.registry.With(id, func(sess *session.Session) error {
		var err error
		data, err = s.resolve(sess).Extract(sess.Archive(), virtualPath)
		return err
	})

	return data, err
}

// ExtractRaw returns the stored payload at virtualPath without decoding.
func (s *Service) ExtractRaw(id string, virtualPath string) ([]byte, error) {
	var data []byte
	err := s.registry.With(id, func(sess *session.Session) error {
		var err error
		data, err = s.resolve(sess).ExtractRaw(sess.Archive(), virtualPath)
		return err
	})

	return data, err
}

// Replace overwrites the file at virtualPath. It reports false when the path does not exist.
func (s *Service) Replace(id string, virtualPath string, data []byte) (bool, error) {
	var replaced bool
	err := s.registry.With(id, func(sess *session.Session) error {
		var err error
		replaced, err = s.resolve(sess).Replace(sess.Archive(), virtualPath, data)
		return err
	})
	if replaced {
		s.Invalidate(id)
	}

	return replaced, err
}

// ExtractAll writes the session's files below dstDir.
func (s *Service) ExtractAll(ctx context.Context, id string, dstDir string, opts ExtractOptions) (ExtractResult, error) {
	var result ExtractResult
	err := s.registry.With(id, func(sess *session.Session) error {
		var err error
		result, err = s.resolve(sess).ExtractAll(ctx, sess.Archive(), dstDir, opts)
		return err
	})

	return result, err
}

// FindByName returns the virtual paths of every file named name, using the cached name index.
func (s *Service) FindByName(id string, name string) ([]string, error) {
	idx, err := s.Index(id)
	if err != nil {
		return nil, err
	}

	return idx.Lookup(name), nil
}

// Index returns the session's name index, building it once for concurrent callers.
func (s *Service) Index(id string) (*NameIndex, error) {
	if idx, ok := s.indexes.Get(id); ok {
		return idx, nil
	}

	s.genMu.Lock()
	gen := s.generations[id]
	s.genMu.Unlock()

	v, err, _ := s.flight.Do(fmt.Sprintf("%s#%d", id, gen), func() (any, error) {
		var idx *NameIndex
		err := s.registry.With(id, func(sess *session.Session) error {
			var err error
			idx, err = s.resolve(sess).BuildIndex(sess.Archive())
			if err == nil {
				sess.MarkScanned(session.FullyScanned)
			}
			return err
		})
		if err != nil {
			return nil, err
		}

		s.store(id, gen, idx)
		s.logger.Debug("name index built", "session", id, "files", idx.Files())
		return idx, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*NameIndex), nil //nolint:forcetypeassert // flight returns only *NameIndex
}

// store caches idx unless id was invalidated or closed since gen was read.
func (s *Service) store(id string, gen uint64, idx *NameIndex) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	if s.generations[id] != gen || s.registry.Get(id) == nil {
		s.logger.Debug("stale name index dropped", "session", id)
		return
	}

	s.indexes.Add(id, idx)
}

// Invalidate drops the cached name index of id.
func (s *Service) Invalidate(id string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.generations[id]++
	s.indexes.Remove(id)
}

// With runs fn on the session's archive under the session lock.
func (s *Service) With(id string, fn func(*session.Session, *Resolver) error) error {
	return s.registry.With(id, func(sess *session.Session) error {
		return fn(sess, s.resolve(sess))
	})
}

// resolve returns a resolver copy that marks sess lazily scanned on descent.
func (s *Service) resolve(sess *session.Session) *Resolver {
	r := *s.resolver
	next := r.OnDescend
	r.OnDescend = func(e *rpf.Entry) {
		sess.MarkScanned(session.LazilyScanned)
		if next != nil {
			next(e)
		}
	}

	return &r
}

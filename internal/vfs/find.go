// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package vfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/woozymasta/rpf"
)

// NameIndex maps file-name hashes to the virtual paths carrying that name.
type NameIndex struct {
	paths map[uint32][]string
	files int
}

// Lookup returns every virtual path whose terminal name equals name (case-insensitive).
func (idx *NameIndex) Lookup(name string) []string {
	if idx == nil {
		return nil
	}

	candidates := idx.paths[rpf.JenkHash(name)]
	out := make([]string, 0, len(candidates))
	for _, p := range candidates {
		segments := rpf.SplitPath(p)
		if strings.EqualFold(segments[len(segments)-1], name) {
			out = append(out, p)
		}
	}

	return out
}

// Files returns the number of indexed files.
func (idx *NameIndex) Files() int {
	if idx == nil {
		return 0
	}

	return idx.files
}

// BuildIndex indexes every file of a, descending into nested containers.
// Paths are relative to a and use the native separator.
func (r *Resolver) BuildIndex(a *rpf.Archive) (*NameIndex, error) {
	idx := &NameIndex{paths: make(map[uint32][]string)}
	err := r.visitFiles(a, func(virtualPath string, e *rpf.Entry) {
		idx.paths[e.NameHash] = append(idx.paths[e.NameHash], virtualPath)
		idx.files++
	})
	if err != nil {
		return nil, err
	}

	for _, paths := range idx.paths {
		sort.Strings(paths)
	}

	return idx, nil
}

// FindByName returns the virtual paths of every file named name in a and its nested containers.
func (r *Resolver) FindByName(a *rpf.Archive, name string) ([]string, error) {
	var out []string
	err := r.visitFiles(a, func(virtualPath string, e *rpf.Entry) {
		if strings.EqualFold(e.Name, name) {
			out = append(out, virtualPath)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)
	return out, nil
}

// VisitFunc receives the container owning e and e's virtual path relative to the visit root.
type VisitFunc func(owner *rpf.Archive, virtualPath string, e *rpf.Entry) error

// Visit calls fn for every entry below a's root in name order. With recursive, the
// contents of nested containers follow their container entry.
// Returning an error from fn stops the visit.
func (r *Resolver) Visit(a *rpf.Archive, recursive bool, fn VisitFunc) error {
	return r.visit(a, nil, 0, recursive, fn)
}

// visitFiles calls fn for every file of a, recursing into nested containers.
func (r *Resolver) visitFiles(a *rpf.Archive, fn func(virtualPath string, e *rpf.Entry)) error {
	return r.visit(a, nil, 0, true, func(_ *rpf.Archive, virtualPath string, e *rpf.Entry) error {
		if e.IsFile() {
			fn(virtualPath, e)
		}

		return nil
	})
}

func (r *Resolver) visit(a *rpf.Archive, prefix []string, depth int, recursive bool, fn VisitFunc) error {
	root := a.Root()

	var walkErr error
	root.Walk(func(e *rpf.Entry) bool {
		if walkErr != nil {
			return false
		}
		if e == root {
			return true
		}

		segments := append(append([]string(nil), prefix...), rpf.SplitPath(e.RelPath())...)
		if err := fn(a, rpf.JoinPath(segments...), e); err != nil {
			walkErr = err
			return false
		}
		if !recursive || !e.IsContainer() {
			return true
		}

		if depth+1 > r.maxDepth() {
			walkErr = fmt.Errorf("%w: %s at depth %d", ErrDepthExceeded, e.Path, depth+1)
			return false
		}

		inner, release, err := r.Materialize(a, e)
		if err != nil {
			walkErr = err
			return false
		}
		defer release()

		if err := r.visit(inner, segments, depth+1, true, fn); err != nil {
			walkErr = err
			return false
		}

		return true
	})

	return walkErr
}

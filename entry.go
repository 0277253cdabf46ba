// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"path"
	"sort"
	"strings"
)

// Entry is one node of a container tree: a directory, binary file or resource file.
// Parent is a lookup link; ownership flows from parent to children only.
type Entry struct {
	// Parent is the owning directory; nil for root.
	Parent *Entry `json:"-" yaml:"-"`
	// Name is the entry name as stored in names table.
	Name string `json:"name" yaml:"name"`
	// Path is the "\"-joined path starting with the container name.
	Path string `json:"path" yaml:"path"`
	// Children holds directory contents sorted by name (case-insensitive).
	Children []*Entry `json:"children,omitempty" yaml:"children,omitempty"`
	// Kind is the entry record type.
	Kind EntryKind `json:"kind" yaml:"kind"`
	// BlockOffset is payload offset in 512-byte blocks relative to container base.
	BlockOffset uint32 `json:"block_offset,omitempty" yaml:"block_offset,omitempty"`
	// StoredSize is on-disk payload length in bytes.
	StoredSize uint32 `json:"stored_size,omitempty" yaml:"stored_size,omitempty"`
	// UncompressedSize is decoded payload length in bytes.
	UncompressedSize uint32 `json:"uncompressed_size,omitempty" yaml:"uncompressed_size,omitempty"`
	// ResourceVersion is the resource format version for resource entries.
	ResourceVersion uint32 `json:"resource_version,omitempty" yaml:"resource_version,omitempty"`
	// NameHash is the Jenkins hash of the lowercased name.
	NameHash uint32 `json:"name_hash" yaml:"name_hash"`
	// ShortNameHash is the Jenkins hash of the lowercased name without extension.
	ShortNameHash uint32 `json:"short_name_hash" yaml:"short_name_hash"`
	// Encrypted reports whether payload is stored encrypted.
	Encrypted bool `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
	// Compressed reports whether payload is stored compressed.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`

	relPath string
	index   int
}

// IsDir reports whether e is a directory.
func (e *Entry) IsDir() bool {
	return e != nil && e.Kind == KindDirectory
}

// IsFile reports whether e is a binary or resource file.
func (e *Entry) IsFile() bool {
	return e != nil && e.Kind != KindDirectory
}

// IsContainer reports whether e is a file entry holding a nested container.
func (e *Entry) IsContainer() bool {
	return e.IsFile() && IsContainerName(e.Name)
}

// RelPath returns the "\"-joined path below the container root.
func (e *Entry) RelPath() string {
	if e == nil {
		return ""
	}

	return e.relPath
}

// Extension returns the lowercased name extension including the dot.
func (e *Entry) Extension() string {
	return strings.ToLower(path.Ext(e.Name))
}

// Files returns file children of a directory.
func (e *Entry) Files() []*Entry {
	return e.childrenWhere(func(c *Entry) bool { return c.IsFile() })
}

// Directories returns directory children of a directory.
func (e *Entry) Directories() []*Entry {
	return e.childrenWhere(func(c *Entry) bool { return c.IsDir() })
}

// FindFile returns the file child with name (case-insensitive) or nil.
func (e *Entry) FindFile(name string) *Entry {
	return e.findChild(name, func(c *Entry) bool { return c.IsFile() })
}

// FindDirectory returns the directory child with name (case-insensitive) or nil.
func (e *Entry) FindDirectory(name string) *Entry {
	return e.findChild(name, func(c *Entry) bool { return c.IsDir() })
}

// Walk visits e and all descendants depth-first in name order.
// Returning false from fn skips the children of the visited entry.
func (e *Entry) Walk(fn func(*Entry) bool) {
	if e == nil {
		return
	}

	if !fn(e) {
		return
	}

	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// blocks returns number of payload blocks occupied by the entry.
func (e *Entry) blocks() int64 {
	return blocksFor(int64(e.StoredSize))
}

// childrenWhere filters directory children.
func (e *Entry) childrenWhere(keep func(*Entry) bool) []*Entry {
	if !e.IsDir() {
		return nil
	}

	out := make([]*Entry, 0, len(e.Children))
	for _, c := range e.Children {
		if keep(c) {
			out = append(out, c)
		}
	}

	return out
}

// findChild returns the first child matching name and kind predicate.
func (e *Entry) findChild(name string, keep func(*Entry) bool) *Entry {
	if !e.IsDir() {
		return nil
	}

	for _, c := range e.Children {
		if keep(c) && strings.EqualFold(c.Name, name) {
			return c
		}
	}

	return nil
}

// sortChildren orders children case-insensitively by name.
func (e *Entry) sortChildren() {
	sort.SliceStable(e.Children, func(i, j int) bool {
		return strings.ToLower(e.Children[i].Name) < strings.ToLower(e.Children[j].Name)
	})
}

// assignPaths recomputes Path and relPath for e and descendants.
func (e *Entry) assignPaths(rootName string) {
	if e.Parent == nil {
		e.Path = rootName
		e.relPath = ""
	} else {
		e.Path = e.Parent.Path + Separator + e.Name
		if e.Parent.relPath == "" {
			e.relPath = e.Name
		} else {
			e.relPath = e.Parent.relPath + Separator + e.Name
		}
	}

	for _, c := range e.Children {
		c.assignPaths(rootName)
	}
}

// blocksFor returns number of blocks required for size bytes.
func blocksFor(size int64) int64 {
	return (size + BlockSize - 1) / BlockSize
}

// alignBlock rounds size up to the next block boundary.
func alignBlock(size int64) int64 {
	return blocksFor(size) * BlockSize
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package inventory

import (
	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/vfs"
)

// Item is one child of a listed directory.
type Item struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	Kind            string `json:"kind"`
	Size            uint32 `json:"size,omitempty"`
	StoredSize      uint32 `json:"stored_size,omitempty"`
	ResourceVersion uint32 `json:"resource_version,omitempty"`
	Children        int    `json:"children,omitempty"`
	Encrypted       bool   `json:"encrypted,omitempty"`
	Compressed      bool   `json:"compressed,omitempty"`
	NestedContainer bool   `json:"nested_container,omitempty"`
}

// Listing is the immediate content of one directory.
type Listing struct {
	Path             string `json:"path"`
	Files            []Item `json:"files"`
	Directories      []Item `json:"directories"`
	TotalFiles       int    `json:"total_files"`
	TotalDirectories int    `json:"total_directories"`
}

// List returns the immediate children of dirPath in a. dirPath may cross nested
// container boundaries; an empty path lists the root.
func List(r *vfs.Resolver, a *rpf.Archive, dirPath string) (Listing, error) {
	base := rpf.JoinPath(vfs.TrimArchivePrefix(a, rpf.SplitPath(dirPath))...)
	out := Listing{Path: base, Files: []Item{}, Directories: []Item{}}

	err := r.WalkDir(a, dirPath, func(_ *rpf.Archive, dir *rpf.Entry) error {
		for _, c := range dir.Children {
			item := Item{
				Name: c.Name,
				Path: joinVirtual(base, c.Name),
				Kind: c.Kind.String(),
			}

			if c.IsDir() {
				item.Children = len(c.Children)
				out.Directories = append(out.Directories, item)
				continue
			}

			item.Size = c.UncompressedSize
			item.StoredSize = c.StoredSize
			item.Encrypted = c.Encrypted
			item.Compressed = c.Compressed
			item.NestedContainer = c.IsContainer()
			item.ResourceVersion = c.ResourceVersion
			out.Files = append(out.Files, item)
		}

		return nil
	})
	if err != nil {
		return Listing{}, err
	}

	out.TotalFiles = len(out.Files)
	out.TotalDirectories = len(out.Directories)
	return out, nil
}

// Paths returns the virtual path of every entry below a's root, prefixed with a's name.
// With recursive, the contents of nested containers are included.
func Paths(r *vfs.Resolver, a *rpf.Archive, recursive bool) ([]string, error) {
	var out []string
	err := r.Visit(a, recursive, func(_ *rpf.Archive, virtualPath string, _ *rpf.Entry) error {
		out = append(out, rpf.JoinPath(a.Name(), virtualPath))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

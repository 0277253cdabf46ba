// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package pack converts a host directory tree into a container.
package pack

import (
	"os"
	"strings"

	"github.com/woozymasta/rpf"
)

// Kind is the pack-time classification of a source directory.
type Kind int

const (
	// PlainDirectory becomes a directory entry.
	PlainDirectory Kind = iota
	// NestedContainer becomes a nested container file entry.
	NestedContainer
)

// String returns the kind name.
func (k Kind) String() string {
	if k == NestedContainer {
		return "nested_container"
	}

	return "plain_directory"
}

// Manifests are file names whose presence marks a directory as a container.
var Manifests = []string{"content.xml", "setup2.xml"}

// Listing is one directory's name and immediate children.
type Listing struct {
	Name        string
	Files       []string
	Directories []string
}

// Classify reports whether a directory should become a nested container:
// its name carries the container suffix or it holds a manifest file.
func Classify(l Listing) Kind {
	if rpf.IsContainerName(l.Name) {
		return NestedContainer
	}

	for _, f := range l.Files {
		for _, m := range Manifests {
			if strings.EqualFold(f, m) {
				return NestedContainer
			}
		}
	}

	return PlainDirectory
}

// ReadListing lists the immediate children of dir for Classify.
func ReadListing(dir string, name string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, err
	}

	l := Listing{Name: name}
	for _, e := range entries {
		if e.IsDir() {
			l.Directories = append(l.Directories, e.Name())
			continue
		}

		l.Files = append(l.Files, e.Name())
	}

	return l, nil
}

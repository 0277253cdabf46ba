// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package vfs

import (
	"errors"

	"github.com/woozymasta/rpf"
)

// Replace overwrites the existing file at virtualPath with data.
// It reports false, without error, when the path does not resolve to a file.
// Across a nested boundary the transient copy is modified; with WriteBack the copy
// is stored back into every enclosing container.
func (r *Resolver) Replace(a *rpf.Archive, virtualPath string, data []byte) (bool, error) {
	err := r.walk(a, virtualPath, r.WriteBack, func(owner *rpf.Archive, e *rpf.Entry) error {
		_, err := owner.CreateFile(e.Parent, e.Name, data, true)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

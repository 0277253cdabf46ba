// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package vfs

import (
	"errors"
	"os"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/session"
)

// IsNotFound reports whether err means a missing session, container, entry or host file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, session.ErrArchiveNotFound) ||
		errors.Is(err, rpf.ErrEntryNotFound) ||
		errors.Is(err, os.ErrNotExist)
}

// IsFormatError reports whether err comes from malformed or unsupported container data.
func IsFormatError(err error) bool {
	for _, target := range []error{
		rpf.ErrInvalidHeader,
		rpf.ErrInvalidEntryTable,
		rpf.ErrInvalidEntryOffset,
		rpf.ErrUnsupportedEncryption,
		rpf.ErrTooManyEntries,
		rpf.ErrSizeOverflow,
		ErrDepthExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

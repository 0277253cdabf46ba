// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import "errors"

// Sentinel errors for RPF operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the file is missing or has a bad RPF header.
	ErrInvalidHeader = errors.New("invalid RPF file: missing or bad header")
	// ErrInvalidEntryTable means the entry table or names table is malformed.
	ErrInvalidEntryTable = errors.New("invalid RPF entry table")
	// ErrInvalidEntryOffset means an entry payload points outside the container.
	ErrInvalidEntryOffset = errors.New("invalid entry offset")
	// ErrUnsupportedEncryption means the header declares an unknown encryption tag.
	ErrUnsupportedEncryption = errors.New("unsupported encryption")
	// ErrFileNameTooLong means the entry filename exceeds the maximum length.
	ErrFileNameTooLong = errors.New("entry filename exceeds maximum length")
	// ErrInvalidEntryName means the entry name is empty or contains separators.
	ErrInvalidEntryName = errors.New("invalid entry name")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryExists means an entry with the same name already exists and overwrite is off.
	ErrEntryExists = errors.New("entry already exists")
	// ErrNotDirectory means a directory entry was required.
	ErrNotDirectory = errors.New("entry is not a directory")
	// ErrNotFile means a file entry was required.
	ErrNotFile = errors.New("entry is not a file")
	// ErrForeignEntry means the entry belongs to another archive.
	ErrForeignEntry = errors.New("entry belongs to another archive")
	// ErrReadOnly means the archive was opened without a writable backing file.
	ErrReadOnly = errors.New("archive is read-only")
	// ErrClosed means the archive is already closed.
	ErrClosed = errors.New("archive already closed")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrSizeOverflow means a size exceeds the uint32 limits of the entry table.
	ErrSizeOverflow = errors.New("size exceeds uint32 RPF limit")
	// ErrTooManyEntries means the entry count exceeds the supported maximum.
	ErrTooManyEntries = errors.New("too many entries")
	// ErrInvalidCompressPattern means one or more classification rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")
	// ErrDecode means payload decryption or decompression failed.
	ErrDecode = errors.New("decode entry payload")
)

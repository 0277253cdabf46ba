// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"bytes"
	"fmt"
	"io"
)

// ExtractFile reads and decodes the full payload of a file entry.
// Encrypted payloads are decrypted and compressed payloads are expanded.
func (a *Archive) ExtractFile(e *Entry) ([]byte, error) {
	stored, err := a.readStored(e)
	if err != nil {
		return nil, err
	}

	return a.codec.decode(e, stored, a.hdr.encryption)
}

// OpenFile opens a decoded payload stream for a file entry.
func (a *Archive) OpenFile(e *Entry) (io.ReadCloser, error) {
	data, err := a.ExtractFile(e)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// ExtractPath resolves entryPath inside this container and decodes its payload.
func (a *Archive) ExtractPath(entryPath string) ([]byte, error) {
	e := a.Find(entryPath)
	if e == nil || !e.IsFile() {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
	}

	return a.ExtractFile(e)
}

// readStored reads the on-disk payload bytes of a file entry.
func (a *Archive) readStored(e *Entry) ([]byte, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}

	if err := a.owns(e); err != nil {
		return nil, err
	}

	if !e.IsFile() {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, e.Path)
	}

	if e.StoredSize == 0 {
		return []byte{}, nil
	}

	sr := io.NewSectionReader(a.ra, a.payloadOffset(e), int64(e.StoredSize))
	buf := make([]byte, e.StoredSize)
	if _, err := io.ReadFull(sr, buf); err != nil {
		return nil, fmt.Errorf("read payload %s: %w", e.Path, err)
	}

	return buf, nil
}

// payloadOffset returns absolute payload offset of e in backing storage.
func (a *Archive) payloadOffset(e *Entry) int64 {
	return a.startPos + int64(e.BlockOffset)*BlockSize
}

// owns reports ErrForeignEntry when e is not part of this archive's table.
func (a *Archive) owns(e *Entry) error {
	if e == nil {
		return ErrEntryNotFound
	}

	if e.index < 0 || e.index >= len(a.entries) || a.entries[e.index] != e {
		return fmt.Errorf("%w: %s", ErrForeignEntry, e.Path)
	}

	return nil
}

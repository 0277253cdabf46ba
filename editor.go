// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"errors"
	"fmt"
	"os"
)

// CreateFile stores data as file entry name inside dir and persists the entry table.
// With overwrite, an existing file is replaced: its blocks are reused when the new
// payload fits, otherwise the payload is appended and the old blocks become slack.
func (a *Archive) CreateFile(dir *Entry, name string, data []byte, overwrite bool) (*Entry, error) {
	if err := a.checkWritable(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.owns(dir); err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir.Path)
	}
	if err := validateEntryName(name); err != nil {
		return nil, err
	}
	if dir.FindDirectory(name) != nil {
		return nil, fmt.Errorf("%w: directory %s", ErrEntryExists, name)
	}

	existing := dir.FindFile(name)
	if existing != nil && !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrEntryExists, existing.Path)
	}

	relPath := name
	if dir.relPath != "" {
		relPath = dir.relPath + Separator + name
	}

	payload, err := a.codec.encode(relPath, name, data, a.hdr.encryption)
	if err != nil {
		return nil, err
	}

	var off int64
	if existing != nil && a.fitsInPlace(existing, len(payload.data)) {
		off = int64(existing.BlockOffset) * BlockSize
	} else {
		off = a.appendOffset(a.dataStart())
	}

	if err := a.writePayload(off, payload.data); err != nil {
		return nil, fmt.Errorf("store %s: %w", relPath, err)
	}

	e := existing
	if e == nil {
		e = &Entry{Parent: dir, Name: name, index: -1}
		dir.Children = append(dir.Children, e)
	}

	e.Kind = payload.kind
	e.BlockOffset = uint32(off / BlockSize) //nolint:gosec // checked by writePayload
	e.StoredSize = uint32(len(payload.data)) //nolint:gosec // bounded by encode
	e.UncompressedSize = payload.uncompressed
	e.ResourceVersion = payload.version
	e.Compressed = payload.compressed
	e.Encrypted = payload.encrypted
	e.NameHash, e.ShortNameHash = NameHashes(name)

	if err := a.writeTable(); err != nil {
		return nil, err
	}

	return e, nil
}

// CreateDirectory adds directory name inside dir and persists the entry table.
// An existing directory with the same name is returned unchanged.
func (a *Archive) CreateDirectory(dir *Entry, name string) (*Entry, error) {
	if err := a.checkWritable(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.owns(dir); err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir.Path)
	}
	if err := validateEntryName(name); err != nil {
		return nil, err
	}
	if existing := dir.FindDirectory(name); existing != nil {
		return existing, nil
	}
	if dir.FindFile(name) != nil {
		return nil, fmt.Errorf("%w: file %s", ErrEntryExists, name)
	}

	e := &Entry{Parent: dir, Name: name, Kind: KindDirectory, index: -1}
	e.NameHash, e.ShortNameHash = NameHashes(name)
	dir.Children = append(dir.Children, e)

	if err := a.writeTable(); err != nil {
		return nil, err
	}

	return e, nil
}

// fitsInPlace reports whether a payload of size bytes can overwrite e's blocks.
func (a *Archive) fitsInPlace(e *Entry, size int) bool {
	if e.StoredSize == 0 || int64(e.BlockOffset)*BlockSize < a.dataStart() {
		return false
	}

	return blocksFor(int64(size)) <= e.blocks()
}

// checkWritable returns ErrReadOnly for ReaderAt views and ErrClosed after Close.
func (a *Archive) checkWritable() error {
	if err := a.checkOpen(); err != nil {
		return err
	}

	if a.file == nil {
		return ErrReadOnly
	}

	return nil
}

// prepareBackupSlot rotates/removes existing backup generations before a rewrite.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed rewrite.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}

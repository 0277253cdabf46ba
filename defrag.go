// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// placement is a saved payload position used to roll back a failed defragmentation.
type placement struct {
	block        uint32
	size         uint32
	uncompressed uint32
}

// OpenNested opens a read-only in-place view of a nested container entry.
// Only raw (unencrypted, uncompressed) container payloads can be viewed in place.
func (a *Archive) OpenNested(e *Entry) (*Archive, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if err := a.owns(e); err != nil {
		return nil, err
	}
	if !e.IsContainer() {
		return nil, fmt.Errorf("%w: %s is not a container", ErrNotFile, e.Path)
	}
	if e.Encrypted || e.Compressed {
		return nil, fmt.Errorf("%w: %s is not stored raw", ErrReadOnly, e.Path)
	}

	opts := a.opts
	opts.Name = e.Name
	return NewArchiveFromReaderAt(a.ra, a.payloadOffset(e), int64(e.StoredSize), opts)
}

// DefragmentedSize returns the container size Defragment would produce.
// With recursive, raw nested containers are counted at their own defragmented size.
func (a *Archive) DefragmentedSize(recursive bool) (int64, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}

	total := a.dataStart()
	var walkErr error
	a.root.Walk(func(e *Entry) bool {
		if walkErr != nil {
			return false
		}
		if !e.IsFile() {
			return true
		}

		size := int64(e.StoredSize)
		if recursive && e.IsContainer() && !e.Encrypted && !e.Compressed && size > 0 {
			inner, err := a.OpenNested(e)
			if err != nil {
				walkErr = fmt.Errorf("open nested %s: %w", e.Path, err)
				return false
			}

			size, err = inner.DefragmentedSize(true)
			if err != nil {
				walkErr = err
				return false
			}
		}

		total += alignBlock(size)
		return true
	})

	return total, walkErr
}

// Defragment rewrites the container with tightly packed payloads, swaps it into place
// with a backup, and reloads the entry table. Entries obtained before the call are invalid
// after it returns.
func (a *Archive) Defragment(ctx context.Context, progress ProgressFunc, recursive bool) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if a.startPos != 0 || a.path == "" {
		return ErrReadOnly
	}
	if ctx == nil {
		ctx = context.Background()
	}

	report := func(msg string, p float64) {
		if progress != nil {
			progress(msg, p)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(a.path), filepath.Base(a.path)+".defrag-*")
	if err != nil {
		return fmt.Errorf("create defrag temp: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	layout, err := a.layoutTable()
	if err != nil {
		return err
	}

	files := make([]*Entry, 0, len(layout.order))
	for _, e := range layout.order {
		if e.IsFile() {
			files = append(files, e)
		}
	}

	saved := make(map[*Entry]placement, len(files))
	defer func() {
		if committed {
			return
		}

		for e, p := range saved {
			e.BlockOffset, e.StoredSize, e.UncompressedSize = p.block, p.size, p.uncompressed
		}
	}()

	next := alignBlock(int64(len(layout.data)))
	for i, e := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		report("Moving "+e.Path, float64(i)/float64(len(files)))

		payload, err := a.readPayload(e)
		if err != nil {
			return err
		}

		rewritten := false
		if recursive && e.IsContainer() && !e.Encrypted && !e.Compressed && len(payload) > 0 {
			payload, err = defragmentPayload(ctx, filepath.Dir(a.path), e.Name, payload, a.opts)
			if err != nil {
				return fmt.Errorf("defragment nested %s: %w", e.Path, err)
			}
			rewritten = true
		}

		if err := writePadded(tmp, next, payload); err != nil {
			return err
		}

		saved[e] = placement{block: e.BlockOffset, size: e.StoredSize, uncompressed: e.UncompressedSize}
		e.BlockOffset = uint32(next / BlockSize) //nolint:gosec // bounded by source container size
		e.StoredSize = uint32(len(payload))      //nolint:gosec // nested result is never larger than source
		if rewritten {
			e.UncompressedSize = e.StoredSize
		}
		if len(payload) == 0 {
			e.BlockOffset = 0
		}

		next += alignBlock(int64(len(payload)))
	}

	layout, err = a.layoutTable()
	if err != nil {
		return err
	}

	if _, err := tmp.WriteAt(layout.data, 0); err != nil {
		return fmt.Errorf("write defragmented table: %w", err)
	}

	if err := tmp.Truncate(next); err != nil {
		return fmt.Errorf("size defragmented archive: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync defragmented archive: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close defragmented archive: %w", err)
	}

	if err := a.swapFile(tmpPath); err != nil {
		return err
	}

	committed = true
	report("Done", 1)
	return nil
}

// swapFile replaces the backing file with replacement via a backup and reloads the table.
func (a *Archive) swapFile(replacement string) error {
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	backupPath := a.path + ".bak"
	if err := prepareBackupSlot(backupPath, a.opts.BackupKeep); err != nil {
		return a.reopen(err)
	}

	if err := os.Rename(a.path, backupPath); err != nil {
		return a.reopen(fmt.Errorf("move archive to backup: %w", err))
	}

	if err := os.Rename(replacement, a.path); err != nil {
		if rollbackErr := rollbackFromBackup(a.path, backupPath); rollbackErr != nil {
			return fmt.Errorf("%v (rollback failed: %v)", err, rollbackErr)
		}

		return a.reopen(fmt.Errorf("install defragmented archive: %w", err))
	}

	if err := a.reopen(nil); err != nil {
		if rollbackErr := rollbackFromBackup(a.path, backupPath); rollbackErr != nil {
			return fmt.Errorf("%v (rollback failed: %v)", err, rollbackErr)
		}

		return a.reopen(err)
	}

	if a.opts.BackupKeep == 0 {
		if err := removeIfExists(backupPath); err != nil {
			return fmt.Errorf("remove backup: %w", err)
		}
	}

	return nil
}

// reopen reopens the backing file, reparses it and returns cause (or the reopen error).
func (a *Archive) reopen(cause error) error {
	f, err := os.OpenFile(a.path, os.O_RDWR, 0)
	if err != nil {
		a.closed = true
		if cause != nil {
			return fmt.Errorf("%w (reopen failed: %v)", cause, err)
		}

		return fmt.Errorf("reopen archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		a.closed = true
		return fmt.Errorf("stat: %w", err)
	}

	a.file = f
	a.ra = f
	a.size = fi.Size()
	if err := a.parse(); err != nil {
		_ = f.Close()
		a.closed = true
		if cause != nil {
			return fmt.Errorf("%w (reparse failed: %v)", cause, err)
		}

		return err
	}

	return cause
}

// defragmentPayload defragments a nested container payload through a temp file.
func defragmentPayload(ctx context.Context, dir string, name string, payload []byte, opts Options) ([]byte, error) {
	tmp, err := os.CreateTemp(dir, "nested-*"+Suffix)
	if err != nil {
		return nil, fmt.Errorf("create nested temp: %w", err)
	}

	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	_, writeErr := tmp.Write(payload)
	closeErr := tmp.Close()
	if writeErr != nil {
		return nil, fmt.Errorf("write nested temp: %w", writeErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close nested temp: %w", closeErr)
	}

	opts.Name = name
	opts.BackupKeep = 0
	inner, err := OpenWithOptions(tmpPath, opts)
	if err != nil {
		return nil, err
	}

	if err := inner.Defragment(ctx, nil, true); err != nil {
		_ = inner.Close()
		return nil, err
	}

	if err := inner.Close(); err != nil {
		return nil, fmt.Errorf("close nested: %w", err)
	}

	return os.ReadFile(tmpPath)
}

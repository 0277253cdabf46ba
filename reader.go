// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Archive is an opened container: parsed header, entry tree and backing storage.
// Opening reads only the header, entry table and names table; payloads and nested
// containers are read on demand.
type Archive struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Archive owns a writable *os.File.
	file *os.File
	// codec encodes and decodes payloads according to options.
	codec *entryCodec
	// root is entry 0 of the table.
	root *Entry
	// path is the physical file path; empty for ReaderAt views.
	path string
	// name is the container name used as root path.
	name string
	// entries stores the parsed table in on-disk order.
	entries []*Entry
	// opts are applied codec options.
	opts Options
	// startPos is absolute offset of the container inside ra.
	startPos int64
	// size is total container size in bytes.
	size int64
	// hdr is the parsed fixed header.
	hdr header
	// mu guards closed state and mutations.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens a container file for reading and in-place updates.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens a container file using explicit codec options.
func OpenWithOptions(path string, opts Options) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrPermission) {
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open RPF: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	if opts.Name == "" {
		opts.Name = containerNameFromPath(path)
	}

	a, err := NewArchiveFromReaderAt(f, 0, fi.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	a.file = f
	a.path = path
	return a, nil
}

// NewArchiveFromReaderAt parses a read-only container view located at base inside ra.
func NewArchiveFromReaderAt(ra io.ReaderAt, base int64, size int64, opts Options) (*Archive, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	opts.applyDefaults()
	codec, err := newEntryCodec(opts)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		ra:       ra,
		codec:    codec,
		name:     opts.Name,
		opts:     opts,
		startPos: base,
		size:     size,
	}
	if err := a.parse(); err != nil {
		return nil, err
	}

	return a, nil
}

// Name returns the container name (root path).
func (a *Archive) Name() string {
	return a.name
}

// PhysicalPath returns the backing file path; empty for ReaderAt views.
func (a *Archive) PhysicalPath() string {
	return a.path
}

// StartPos returns the absolute offset of the container inside its backing storage.
func (a *Archive) StartPos() int64 {
	return a.startPos
}

// FileSize returns the container size in bytes.
func (a *Archive) FileSize() int64 {
	return a.size
}

// Root returns the root directory entry.
func (a *Archive) Root() *Entry {
	return a.root
}

// Entries returns all entries in table order, root first.
func (a *Archive) Entries() []*Entry {
	out := make([]*Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// EntryCount returns entry count declared in header.
func (a *Archive) EntryCount() uint32 {
	return a.hdr.entryCount
}

// NamesLength returns names table length declared in header.
func (a *Archive) NamesLength() uint32 {
	return a.hdr.namesLength
}

// Encryption returns container encryption tag.
func (a *Archive) Encryption() Encryption {
	return a.hdr.encryption
}

// Version returns the header magic identifying the format revision.
func (a *Archive) Version() uint32 {
	return a.hdr.magic
}

// Writable reports whether the archive has a writable backing file.
func (a *Archive) Writable() bool {
	return a.file != nil
}

// Find resolves a path below root inside this container only (case-insensitive).
// A leading segment equal to the container name is ignored.
func (a *Archive) Find(entryPath string) *Entry {
	segments := SplitPath(entryPath)
	if len(segments) > 0 && strings.EqualFold(segments[0], a.name) {
		segments = segments[1:]
	}

	current := a.root
	for i, seg := range segments {
		if i == len(segments)-1 {
			if f := current.FindFile(seg); f != nil {
				return f
			}
		}

		next := current.FindDirectory(seg)
		if next == nil {
			return nil
		}

		current = next
	}

	return current
}

// ReadAt reads raw bytes from the backing storage at an absolute offset.
func (a *Archive) ReadAt(p []byte, off int64) (int, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}

	return a.ra.ReadAt(p, off)
}

// Sync flushes the backing file to stable storage.
func (a *Archive) Sync() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if a.file == nil {
		return nil
	}

	return a.file.Sync()
}

// Close closes the underlying file if archive owns one.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	if a.file != nil {
		return a.file.Close()
	}

	return nil
}

// checkOpen returns ErrClosed once Close was called.
func (a *Archive) checkOpen() error {
	if a == nil || a.ra == nil {
		return ErrNilReader
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// parse reads and validates header, entry table and names table.
func (a *Archive) parse() error {
	hdr, err := parseHeader(a.ra, a.startPos, a.size)
	if err != nil {
		return err
	}

	tableLen := int64(hdr.entryCount) * entrySize
	total := headerSize + tableLen + int64(hdr.namesLength)
	if total > a.size {
		return fmt.Errorf("%w: table exceeds container size", ErrInvalidEntryTable)
	}

	buf := make([]byte, tableLen+int64(hdr.namesLength))
	if _, err := a.ra.ReadAt(buf, a.startPos+headerSize); err != nil {
		return fmt.Errorf("read entry table: %w", err)
	}

	entries, err := decodeEntries(buf[:tableLen], buf[tableLen:])
	if err != nil {
		return err
	}

	if err := linkEntries(entries); err != nil {
		return err
	}

	for _, e := range entries {
		if !e.IsFile() || e.StoredSize == 0 {
			continue
		}

		end := int64(e.BlockOffset)*BlockSize + int64(e.StoredSize)
		if int64(e.BlockOffset)*BlockSize < headerSize+tableLen || end > a.size {
			return fmt.Errorf("%w: entry %s payload out of container bounds", ErrInvalidEntryOffset, e.Name)
		}
	}

	a.hdr = hdr
	a.entries = entries
	a.root = entries[0]
	a.root.assignPaths(a.name)
	return nil
}

// parseHeader reads and validates the fixed header at base.
func parseHeader(ra io.ReaderAt, base int64, size int64) (header, error) {
	var raw [headerSize]byte
	if size < headerSize {
		return header{}, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}

	if _, err := ra.ReadAt(raw[:], base); err != nil {
		if err == io.EOF {
			return header{}, fmt.Errorf("%w: short header", ErrInvalidHeader)
		}

		return header{}, fmt.Errorf("read header: %w", err)
	}

	hdr := header{
		magic:       binary.LittleEndian.Uint32(raw[0:4]),
		entryCount:  binary.LittleEndian.Uint32(raw[4:8]),
		namesLength: binary.LittleEndian.Uint32(raw[8:12]),
		encryption:  Encryption(binary.LittleEndian.Uint32(raw[12:16])),
	}

	if hdr.magic != magicRPF7 {
		return header{}, ErrInvalidHeader
	}
	if hdr.entryCount == 0 {
		return header{}, fmt.Errorf("%w: no root entry", ErrInvalidEntryTable)
	}
	if hdr.entryCount > maxEntries {
		return header{}, fmt.Errorf("%w: %d", ErrTooManyEntries, hdr.entryCount)
	}
	if !hdr.encryption.Valid() {
		return header{}, fmt.Errorf("%w: %s", ErrUnsupportedEncryption, hdr.encryption)
	}

	return hdr, nil
}

// decodeEntries decodes raw entry records and resolves names.
func decodeEntries(table []byte, names []byte) ([]*Entry, error) {
	count := len(table) / entrySize
	entries := make([]*Entry, count)
	for i := 0; i < count; i++ {
		rec := table[i*entrySize : (i+1)*entrySize]
		nameOffset := binary.LittleEndian.Uint32(rec[0:4])
		name, err := readName(names, nameOffset)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		e := &Entry{
			Name:             name,
			Kind:             EntryKind(rec[4]),
			Encrypted:        rec[5]&flagEncrypt != 0,
			Compressed:       rec[5]&flagCompact != 0,
			UncompressedSize: binary.LittleEndian.Uint32(rec[16:20]),
			ResourceVersion:  binary.LittleEndian.Uint32(rec[20:24]),
			NameHash:         binary.LittleEndian.Uint32(rec[24:28]),
			ShortNameHash:    binary.LittleEndian.Uint32(rec[28:32]),
			index:            i,
		}

		switch e.Kind {
		case KindDirectory:
			// Children range is linked after all records are decoded.
			e.BlockOffset = binary.LittleEndian.Uint32(rec[8:12])
			e.StoredSize = binary.LittleEndian.Uint32(rec[12:16])
		case KindBinary, KindResource:
			e.BlockOffset = binary.LittleEndian.Uint32(rec[8:12])
			e.StoredSize = binary.LittleEndian.Uint32(rec[12:16])
			if len(name) > maxNameLen {
				return nil, ErrFileNameTooLong
			}
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown kind %d", ErrInvalidEntryTable, i, rec[4])
		}

		entries[i] = e
	}

	return entries, nil
}

// linkEntries resolves directory child ranges into a tree rooted at entry 0.
func linkEntries(entries []*Entry) error {
	if len(entries) == 0 || !entries[0].IsDir() {
		return fmt.Errorf("%w: root is not a directory", ErrInvalidEntryTable)
	}

	linked := make([]bool, len(entries))
	linked[0] = true
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}

		first := int64(dir.BlockOffset)
		count := int64(dir.StoredSize)
		dir.BlockOffset, dir.StoredSize = 0, 0
		if count == 0 {
			continue
		}
		if first <= 0 || first+count > int64(len(entries)) {
			return fmt.Errorf("%w: directory %q child range out of table", ErrInvalidEntryTable, dir.Name)
		}

		dir.Children = make([]*Entry, 0, count)
		for i := first; i < first+count; i++ {
			child := entries[i]
			if linked[i] {
				return fmt.Errorf("%w: entry %d linked twice", ErrInvalidEntryTable, i)
			}

			linked[i] = true
			child.Parent = dir
			dir.Children = append(dir.Children, child)
		}
	}

	reached := 0
	entries[0].Walk(func(*Entry) bool {
		reached++
		return true
	})
	if reached != len(entries) {
		return fmt.Errorf("%w: %d entries are not reachable from root", ErrInvalidEntryTable, len(entries)-reached)
	}

	return nil
}

// readName reads a NUL-terminated name at offset inside names table.
func readName(names []byte, offset uint32) (string, error) {
	if int64(offset) >= int64(len(names)) {
		if offset == 0 && len(names) == 0 {
			return "", nil
		}

		return "", fmt.Errorf("%w: name offset %d out of names table", ErrInvalidEntryTable, offset)
	}

	rest := names[offset:]
	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		return "", fmt.Errorf("%w: unterminated name at %d", ErrInvalidEntryTable, offset)
	}

	return string(rest[:idx]), nil
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

var (
	// zeroBlockPool reuses zero padding blocks between payload writes.
	zeroBlockPool = sync.Pool{
		New: func() any {
			return new([BlockSize]byte)
		},
	}
)

// tableLayout is a serialized header, entry table and names table.
type tableLayout struct {
	order []*Entry
	data  []byte
	hdr   header
}

// Create creates an empty container at path with the given encryption.
func Create(path string, enc Encryption) (*Archive, error) {
	return CreateWithOptions(path, enc, Options{})
}

// CreateWithOptions creates an empty container at path using explicit codec options.
func CreateWithOptions(path string, enc Encryption, opts Options) (*Archive, error) {
	if !enc.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncryption, enc)
	}

	if opts.Name == "" {
		opts.Name = containerNameFromPath(path)
	}

	opts.applyDefaults()
	codec, err := newEntryCodec(opts)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create RPF file: %w", err)
	}

	root := &Entry{Kind: KindDirectory}
	a := &Archive{
		ra:      f,
		file:    f,
		codec:   codec,
		root:    root,
		path:    path,
		name:    opts.Name,
		entries: []*Entry{root},
		opts:    opts,
		hdr:     header{magic: magicRPF7, encryption: enc},
	}
	root.assignPaths(a.name)

	if err := a.writeTable(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return a, nil
}

// dataStart returns the first payload byte offset implied by the current table.
func (a *Archive) dataStart() int64 {
	return alignBlock(headerSize + int64(a.hdr.entryCount)*entrySize + int64(a.hdr.namesLength))
}

// layoutTable serializes the tree breadth-first so every directory's children are contiguous.
func (a *Archive) layoutTable() (tableLayout, error) {
	order := []*Entry{a.root}
	firsts := make([]int, 0, len(a.entries))
	for i := 0; i < len(order); i++ {
		e := order[i]
		firsts = append(firsts, len(order))
		if e.IsDir() {
			e.sortChildren()
			order = append(order, e.Children...)
		}

		if len(order) > maxEntries {
			return tableLayout{}, fmt.Errorf("%w: %d", ErrTooManyEntries, len(order))
		}
	}

	var names bytes.Buffer
	nameOffsets := make([]uint32, len(order))
	for i, e := range order {
		nameOffsets[i] = uint32(names.Len()) //nolint:gosec // bounded by maxEntries * maxNameLen
		names.WriteString(e.Name)
		names.WriteByte(0)
	}

	namesLen := (names.Len() + namesAlign - 1) / namesAlign * namesAlign
	hdr := header{
		magic:       magicRPF7,
		entryCount:  uint32(len(order)), //nolint:gosec // bounded by maxEntries
		namesLength: uint32(namesLen),   //nolint:gosec // bounded by maxEntries * maxNameLen
		encryption:  a.hdr.encryption,
	}

	data := make([]byte, headerSize+len(order)*entrySize+namesLen)
	binary.LittleEndian.PutUint32(data[0:4], hdr.magic)
	binary.LittleEndian.PutUint32(data[4:8], hdr.entryCount)
	binary.LittleEndian.PutUint32(data[8:12], hdr.namesLength)
	binary.LittleEndian.PutUint32(data[12:16], uint32(hdr.encryption))

	for i, e := range order {
		rec := data[headerSize+i*entrySize : headerSize+(i+1)*entrySize]
		binary.LittleEndian.PutUint32(rec[0:4], nameOffsets[i])
		rec[4] = byte(e.Kind)
		if e.Encrypted {
			rec[5] |= flagEncrypt
		}
		if e.Compressed {
			rec[5] |= flagCompact
		}

		if e.IsDir() {
			if len(e.Children) > 0 {
				binary.LittleEndian.PutUint32(rec[8:12], uint32(firsts[i]))       //nolint:gosec // bounded by maxEntries
				binary.LittleEndian.PutUint32(rec[12:16], uint32(len(e.Children))) //nolint:gosec // bounded by maxEntries
			}
		} else {
			binary.LittleEndian.PutUint32(rec[8:12], e.BlockOffset)
			binary.LittleEndian.PutUint32(rec[12:16], e.StoredSize)
		}

		binary.LittleEndian.PutUint32(rec[16:20], e.UncompressedSize)
		binary.LittleEndian.PutUint32(rec[20:24], e.ResourceVersion)
		binary.LittleEndian.PutUint32(rec[24:28], e.NameHash)
		binary.LittleEndian.PutUint32(rec[28:32], e.ShortNameHash)
	}

	copy(data[headerSize+len(order)*entrySize:], names.Bytes())
	return tableLayout{order: order, data: data, hdr: hdr}, nil
}

// writeTable persists header, entry table and names table.
// Payloads overlapping a grown table are relocated to the end of the container first.
func (a *Archive) writeTable() error {
	layout, err := a.layoutTable()
	if err != nil {
		return err
	}

	start := alignBlock(int64(len(layout.data)))
	moved, err := a.relocateBelow(start)
	if err != nil {
		return err
	}

	if moved {
		layout, err = a.layoutTable()
		if err != nil {
			return err
		}
	}

	if _, err := a.file.WriteAt(layout.data, a.startPos); err != nil {
		return fmt.Errorf("write entry table: %w", err)
	}

	if pad := start - int64(len(layout.data)); pad > 0 {
		if _, err := a.file.WriteAt(make([]byte, pad), a.startPos+int64(len(layout.data))); err != nil {
			return fmt.Errorf("pad entry table: %w", err)
		}
	}

	if a.size < start {
		a.size = start
	}

	for i, e := range layout.order {
		e.index = i
	}

	a.entries = layout.order
	a.hdr = layout.hdr
	a.root.assignPaths(a.name)
	return nil
}

// relocateBelow moves payloads starting before limit to the end of the container.
func (a *Archive) relocateBelow(limit int64) (bool, error) {
	var (
		moved bool
		err   error
	)

	a.root.Walk(func(e *Entry) bool {
		if err != nil {
			return false
		}
		if !e.IsFile() || e.StoredSize == 0 || int64(e.BlockOffset)*BlockSize >= limit {
			return true
		}

		var payload []byte
		payload, err = a.readPayload(e)
		if err != nil {
			return false
		}

		off := a.appendOffset(limit)
		if err = a.writePayload(off, payload); err != nil {
			return false
		}

		e.BlockOffset = uint32(off / BlockSize) //nolint:gosec // checked by writePayload
		moved = true
		return true
	})

	return moved, err
}

// readPayload reads stored payload bytes without ownership or close checks.
func (a *Archive) readPayload(e *Entry) ([]byte, error) {
	buf := make([]byte, e.StoredSize)
	if len(buf) == 0 {
		return buf, nil
	}

	sr := io.NewSectionReader(a.ra, a.payloadOffset(e), int64(e.StoredSize))
	if _, err := io.ReadFull(sr, buf); err != nil {
		return nil, fmt.Errorf("read payload %s: %w", e.Path, err)
	}

	return buf, nil
}

// appendOffset returns the block-aligned end of the container, at least minStart.
func (a *Archive) appendOffset(minStart int64) int64 {
	end := alignBlock(a.size)
	if end < minStart {
		return minStart
	}

	return end
}

// writePayload writes data at relative offset off and pads it to a block boundary.
func (a *Archive) writePayload(off int64, data []byte) error {
	if off%BlockSize != 0 || off/BlockSize > math.MaxUint32 {
		return fmt.Errorf("%w: payload offset %d", ErrSizeOverflow, off)
	}

	if err := writePadded(a.file, a.startPos+off, data); err != nil {
		return err
	}

	if end := off + alignBlock(int64(len(data))); end > a.size {
		a.size = end
	}

	return nil
}

// writePadded writes data at off followed by zero padding up to a block boundary.
func writePadded(w io.WriterAt, off int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if _, err := w.WriteAt(data, off); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	pad := alignBlock(int64(len(data))) - int64(len(data))
	if pad == 0 {
		return nil
	}

	zero := zeroBlockPool.Get().(*[BlockSize]byte) //nolint:forcetypeassert // pool contains only zero blocks
	defer zeroBlockPool.Put(zero)

	if _, err := w.WriteAt(zero[:pad], off+int64(len(data))); err != nil {
		return fmt.Errorf("pad payload: %w", err)
	}

	return nil
}

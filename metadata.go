// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"fmt"
	"os"
)

// Info is header-level container metadata.
type Info struct {
	// Name is the container file name.
	Name string `json:"name" yaml:"name"`
	// Encryption is the header encryption tag.
	Encryption Encryption `json:"encryption" yaml:"encryption"`
	// Size is the container size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Version is the header magic.
	Version uint32 `json:"version" yaml:"version"`
	// EntryCount is the number of table records.
	EntryCount uint32 `json:"entry_count" yaml:"entry_count"`
	// NamesLength is the padded names table length.
	NamesLength uint32 `json:"names_length" yaml:"names_length"`
}

// ReadInfo opens a container and returns only its header fields without parsing entries.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open RPF: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat: %w", err)
	}

	hdr, err := parseHeader(f, 0, fi.Size())
	if err != nil {
		return Info{}, err
	}

	return Info{
		Name:        containerNameFromPath(path),
		Encryption:  hdr.encryption,
		Size:        fi.Size(),
		Version:     hdr.magic,
		EntryCount:  hdr.entryCount,
		NamesLength: hdr.namesLength,
	}, nil
}

// Info returns header-level metadata of an opened archive.
func (a *Archive) Info() Info {
	return Info{
		Name:        a.name,
		Encryption:  a.hdr.encryption,
		Size:        a.size,
		Version:     a.hdr.magic,
		EntryCount:  a.hdr.entryCount,
		NamesLength: a.hdr.namesLength,
	}
}

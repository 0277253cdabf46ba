// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

/*
Package rpf provides read, extract, create, update and defragment operations for
RPF game-asset containers. A container is a block-aligned (512 bytes) file holding a
tree of directories, binary files and resource files; a file entry whose name ends in
".rpf" is itself a nested container.

The container reuses the "RPF7" magic but not the game's table layout: entries are
32-byte records with a plain names table. Archives shipped with the game use 16-byte
records and encrypted tables; they are rejected as invalid, never partially read.

Opening reads only the header, entry table and names table. Payloads are read on
demand and nested containers are never scanned implicitly.

Payload encoding (summary):
  - resource entries are selected by Options.Resources rules and stored deflated;
  - binary entries selected by Options.Compress rules and size bounds are stored
    LZSS-compressed when that is smaller;
  - in AES and NG containers binary entries are encrypted with AES-CTR, which keeps
    the stored length unchanged;
  - nested containers are stored raw so they can be viewed and defragmented in place.

# Reading

	a, err := rpf.Open("update.rpf")
	if err != nil {
	    return err
	}
	defer a.Close()
	e := a.Find(`common\data\handling.meta`)
	data, err := a.ExtractFile(e)

For header-only scans:

	info, err := rpf.ReadInfo("update.rpf")

# Writing

	a, err := rpf.Create("mod.rpf", rpf.EncryptionOpen)
	if err != nil {
	    return err
	}
	defer a.Close()
	dir, err := a.CreateDirectory(a.Root(), "data")
	if err != nil {
	    return err
	}
	if _, err := a.CreateFile(dir, "handling.meta", payload, true); err != nil {
	    return err
	}

# Defragmenting

In-place overwrites that do not fit the old blocks leave slack. Defragment rewrites
the container tightly packed, keeping a backup until the new file is installed:

	before := a.FileSize()
	after, _ := a.DefragmentedSize(true)
	err := a.Defragment(ctx, func(msg string, p float64) {
	    fmt.Printf("%.1f%% - %s\n", p*100, msg)
	}, true)
*/
package rpf

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package testutil builds container fixtures for package tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/rpf"
)

// WriteContainer creates a container at path holding files keyed by "a/b/c.txt" style paths.
func WriteContainer(tb testing.TB, path string, enc rpf.Encryption, files map[string][]byte) {
	tb.Helper()

	a, err := rpf.CreateWithOptions(path, enc, rpf.Options{})
	require.NoError(tb, err)

	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, entryPath := range keys {
		segments := rpf.SplitPath(entryPath)
		require.NotEmpty(tb, segments, "entry path %q", entryPath)

		dir := a.Root()
		for _, seg := range segments[:len(segments)-1] {
			dir, err = a.CreateDirectory(dir, seg)
			require.NoError(tb, err)
		}

		_, err = a.CreateFile(dir, segments[len(segments)-1], files[entryPath], true)
		require.NoError(tb, err)
	}

	require.NoError(tb, a.Close())
}

// ContainerBytes returns the serialized bytes of an OPEN container holding files.
func ContainerBytes(tb testing.TB, files map[string][]byte) []byte {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "fixture.rpf")
	WriteContainer(tb, path, rpf.EncryptionOpen, files)

	data, err := os.ReadFile(path)
	require.NoError(tb, err)
	return data
}

// Scenario writes v.rpf with common/data/handling.meta and a nested sub.rpf holding x.txt
// and a second-level deep.rpf holding y.txt. It returns the container path.
func Scenario(tb testing.TB, dir string) string {
	tb.Helper()

	deep := ContainerBytes(tb, map[string][]byte{"y.txt": []byte("deep-y")})
	sub := ContainerBytes(tb, map[string][]byte{
		"x.txt":          []byte("nested-x"),
		"inner/deep.rpf": deep,
	})

	path := filepath.Join(dir, "v.rpf")
	WriteContainer(tb, path, rpf.EncryptionOpen, map[string][]byte{
		"common/data/handling.meta": HandlingMeta,
		"sub.rpf":                   sub,
		"textures/car.ytd":          Texture,
	})

	return path
}

var (
	// HandlingMeta is a small metadata payload used by fixtures.
	HandlingMeta = []byte(`<?xml version="1.0" encoding="UTF-8"?>
<CHandlingDataMgr>
  <HandlingData>
    <Item type="CHandlingData">
      <handlingName>ADDER</handlingName>
      <fMass value="1800.000000" />
    </Item>
  </HandlingData>
</CHandlingDataMgr>
`)

	// Texture is a resource payload with an RSC7 header (version 13).
	Texture = append([]byte{'R', 'S', 'C', '7', 13, 0, 0, 0}, make([]byte, 1500)...)
)

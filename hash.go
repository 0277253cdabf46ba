// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"path"
	"strings"
)

// JenkHash returns the Jenkins one-at-a-time hash of the lowercased input.
func JenkHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}

		h += uint32(c)
		h += h << 10
		h ^= h >> 6
	}

	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// NameHashes returns the name hash and the hash of the name without extension.
func NameHashes(name string) (uint32, uint32) {
	short := strings.TrimSuffix(name, path.Ext(name))
	return JenkHash(name), JenkHash(short)
}

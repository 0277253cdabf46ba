// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Separator is the native entry path separator.
const Separator = `\`

// NormalizePath converts an archive/internal path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// SplitPath splits a virtual path on "\" or "/" and drops empty segments.
// "." and ".." are kept as literal names and never match an entry.
func SplitPath(raw string) []string {
	segments := strings.FieldsFunc(strings.TrimSpace(raw), isSeparator)
	if len(segments) == 0 {
		return nil
	}

	return segments
}

func isSeparator(r rune) bool {
	return r == '\\' || r == '/'
}

// JoinPath joins segments with the native separator.
func JoinPath(segments ...string) string {
	return strings.Join(segments, Separator)
}

// IsContainerName reports whether name ends with the container suffix (case-insensitive).
func IsContainerName(name string) bool {
	return len(name) > len(Suffix) && strings.EqualFold(name[len(name)-len(Suffix):], Suffix)
}

// EnsureSuffix appends the container suffix when name lacks it.
func EnsureSuffix(name string) string {
	if IsContainerName(name) {
		return name
	}

	return name + Suffix
}

// TrimSuffix removes the container suffix from name when present.
func TrimSuffix(name string) string {
	if !IsContainerName(name) {
		return name
	}

	return name[:len(name)-len(Suffix)]
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, `\`, `/`)
	path = strings.TrimPrefix(path, "./")
	return path
}

// validateEntryName checks one entry name for table storage.
func validateEntryName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}
	if strings.ContainsAny(name, "\\/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrFileNameTooLong, name)
	}

	return nil
}

// containerNameFromPath derives container name from a physical path.
func containerNameFromPath(physical string) string {
	return filepath.Base(physical)
}

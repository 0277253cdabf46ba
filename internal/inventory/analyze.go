// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package inventory collects container statistics and listings.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/vfs"
)

// Entry categories used in FileTypes and KnownHash.Category.
const (
	CategoryBinary   = "binary"
	CategoryResource = "resource"
)

// KnownHash is the hash pair stored on one file entry.
type KnownHash struct {
	Name          string `json:"name"`
	Path          string `json:"path,omitempty"`
	Category      string `json:"category"`
	NameHash      uint32 `json:"name_hash"`
	ShortNameHash uint32 `json:"short_name_hash"`
}

// Statistics aggregates one container tree, including nested containers when requested.
type Statistics struct {
	Extensions            map[string]int `json:"extensions"`
	FileTypes             map[string]int `json:"file_types"`
	KnownHashes           []KnownHash    `json:"known_hashes"`
	FileSize              int64          `json:"file_size"`
	TotalUncompressedSize int64          `json:"total_uncompressed_size"`
	CompressionRatio      float64        `json:"compression_ratio"`
	BinaryFiles           int            `json:"binary_files"`
	ResourceFiles         int            `json:"resource_files"`
	Directories           int            `json:"directories"`
	NestedContainers      int            `json:"nested_containers"`
	Version               uint32         `json:"version"`
	EntryCount            uint32         `json:"entry_count"`
	NamesLength           uint32         `json:"names_length"`
	Encryption            uint32         `json:"encryption"`
}

// Analyzer walks container trees and aggregates Statistics.
type Analyzer struct {
	// Resolver materializes nested containers. Nil means a default resolver.
	Resolver *vfs.Resolver

	// Logger receives nested container progress. Nil means slog.Default().
	Logger *slog.Logger

	// MaxDepth bounds nested container recursion. Zero means vfs.DefaultMaxDepth.
	MaxDepth int
}

// Analyze collects statistics of a. With recursive, nested containers are materialized
// and folded into the same counters. Header fields always describe a itself.
func (an *Analyzer) Analyze(ctx context.Context, a *rpf.Archive, recursive bool) (Statistics, error) {
	st := Statistics{
		Extensions:  map[string]int{},
		FileTypes:   map[string]int{},
		KnownHashes: []KnownHash{},
		FileSize:    a.FileSize(),
		Version:     a.Version(),
		EntryCount:  a.EntryCount(),
		NamesLength: a.NamesLength(),
		Encryption:  uint32(a.Encryption()),
	}

	if err := an.collect(ctx, a, "", recursive, 0, &st); err != nil {
		return st, err
	}

	st.CompressionRatio = CompressionRatio(st.FileSize, st.TotalUncompressedSize)
	return st, nil
}

// CompressionRatio returns physical/uncompressed, or 1.0 when uncompressed is zero.
func CompressionRatio(physical int64, uncompressed int64) float64 {
	if uncompressed <= 0 {
		return 1.0
	}

	return float64(physical) / float64(uncompressed)
}

// collect folds every entry of a into st. prefix is the virtual path of a's parent container.
func (an *Analyzer) collect(ctx context.Context, a *rpf.Archive, prefix string, recursive bool, depth int, st *Statistics) error {
	var nested []*rpf.Entry
	a.Root().Walk(func(e *rpf.Entry) bool {
		if e == a.Root() {
			return true
		}

		if e.IsDir() {
			st.Directories++
			return true
		}

		category := CategoryBinary
		if e.Kind == rpf.KindResource {
			category = CategoryResource
			st.ResourceFiles++
		} else {
			st.BinaryFiles++
		}

		st.FileTypes[category]++
		st.TotalUncompressedSize += int64(e.UncompressedSize)
		if ext := e.Extension(); ext != "" {
			st.Extensions[ext]++
		}

		st.KnownHashes = append(st.KnownHashes, KnownHash{
			Name:          e.Name,
			Path:          joinVirtual(prefix, e.RelPath()),
			Category:      category,
			NameHash:      e.NameHash,
			ShortNameHash: e.ShortNameHash,
		})

		if recursive && e.IsContainer() && e.UncompressedSize > 0 {
			nested = append(nested, e)
		}

		return true
	})

	for _, e := range nested {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth+1 > an.maxDepth() {
			return fmt.Errorf("%w: %s at depth %d", vfs.ErrDepthExceeded, e.Path, depth+1)
		}

		if err := an.collectNested(ctx, a, e, prefix, depth+1, st); err != nil {
			return err
		}
	}

	return nil
}

// collectNested materializes e, folds its tree into st and releases the temp file.
func (an *Analyzer) collectNested(ctx context.Context, a *rpf.Archive, e *rpf.Entry, prefix string, depth int, st *Statistics) error {
	inner, release, err := an.resolver().Materialize(a, e)
	if err != nil {
		return err
	}
	defer release()

	st.NestedContainers++
	an.logger().Debug("analyze nested container", "entry", e.Path, "depth", depth)
	return an.collect(ctx, inner, joinVirtual(prefix, e.RelPath()), true, depth, st)
}

func joinVirtual(prefix string, rel string) string {
	if prefix == "" {
		return rel
	}

	return rpf.JoinPath(prefix, rel)
}

func (an *Analyzer) resolver() *vfs.Resolver {
	if an.Resolver == nil {
		return vfs.NewResolver(an.Logger)
	}

	return an.Resolver
}

func (an *Analyzer) maxDepth() int {
	if an.MaxDepth <= 0 {
		return vfs.DefaultMaxDepth
	}

	return an.MaxDepth
}

func (an *Analyzer) logger() *slog.Logger {
	if an.Logger == nil {
		return slog.Default()
	}

	return an.Logger
}

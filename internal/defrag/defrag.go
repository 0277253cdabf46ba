// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package defrag drives container defragmentation and reports its progress.
package defrag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/woozymasta/rpf"
)

// Result holds container sizes around one defragmentation.
type Result struct {
	// Before is the container size before the run.
	Before int64 `json:"before_size"`
	// Projected is the size the codec expects after the run.
	Projected int64 `json:"projected_size"`
	// After is the size read back from disk once the run finished.
	After int64 `json:"after_size"`
}

// Saved returns the projected number of reclaimed bytes.
func (r Result) Saved() int64 {
	return r.Before - r.Projected
}

// RunOptions control one Driver.Run call.
type RunOptions struct {
	// OnPlan receives Before and Projected before any byte is moved.
	OnPlan func(Result)

	// OnProgress receives progress at most once per integer percent.
	OnProgress rpf.ProgressFunc

	// Recursive lets the codec defragment raw nested containers first.
	Recursive bool
}

// Driver runs defragmentation on opened containers.
type Driver struct {
	// Logger receives run summaries. Nil means slog.Default().
	Logger *slog.Logger
}

// Plan returns the current and projected sizes of a without modifying it.
func (d *Driver) Plan(a *rpf.Archive, recursive bool) (Result, error) {
	projected, err := a.DefragmentedSize(recursive)
	if err != nil {
		return Result{}, fmt.Errorf("project defragmented size: %w", err)
	}

	return Result{Before: a.FileSize(), Projected: projected}, nil
}

// Run defragments a in place and confirms the new size by re-reading the header
// from the physical path. Entries of a obtained before Run are invalid afterwards.
func (d *Driver) Run(ctx context.Context, a *rpf.Archive, opts RunOptions) (Result, error) {
	if !a.Writable() || a.StartPos() != 0 {
		return Result{}, rpf.ErrReadOnly
	}

	res, err := d.Plan(a, opts.Recursive)
	if err != nil {
		return res, err
	}

	if opts.OnPlan != nil {
		opts.OnPlan(res)
	}

	d.logger().Info("defragment",
		"archive", a.Name(),
		"before", res.Before,
		"projected", res.Projected,
		"recursive", opts.Recursive,
	)

	buckets := NewBuckets(opts.OnProgress)
	if err := a.Defragment(ctx, buckets.Report, opts.Recursive); err != nil {
		return res, fmt.Errorf("defragment %s: %w", a.Name(), err)
	}

	info, err := rpf.ReadInfo(a.PhysicalPath())
	if err != nil {
		return res, fmt.Errorf("reopen %s: %w", a.PhysicalPath(), err)
	}

	res.After = info.Size
	d.logger().Info("defragmented", "archive", a.Name(), "after", res.After, "saved", res.Before-res.After)
	return res, nil
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}

	return d.Logger
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package defrag

import (
	"fmt"
	"math"
	"sync"

	"github.com/woozymasta/rpf"
)

// Buckets forwards progress updates only when the integer percent grows.
type Buckets struct {
	fn   rpf.ProgressFunc
	last int
	mu   sync.Mutex
}

// NewBuckets wraps fn. A nil fn drops every update.
func NewBuckets(fn rpf.ProgressFunc) *Buckets {
	return &Buckets{fn: fn, last: -1}
}

// Report forwards message and progress when progress lands in a new, higher percent bucket.
func (b *Buckets) Report(message string, progress float64) {
	pct := Bucket(progress)

	b.mu.Lock()
	if pct <= b.last {
		b.mu.Unlock()
		return
	}
	b.last = pct
	b.mu.Unlock()

	if b.fn != nil {
		b.fn(message, progress)
	}
}

// Bucket maps progress in [0,1] to an integer percent, rounding down.
// Out-of-range and NaN values are clamped.
func Bucket(progress float64) int {
	switch {
	case math.IsNaN(progress) || progress <= 0:
		return 0
	case progress >= 1:
		return 100
	default:
		return int(math.Floor(progress * 100))
	}
}

// FormatPlan renders the pre-run size line.
func FormatPlan(r Result) string {
	return fmt.Sprintf("Current: %d bytes; After defrag: %d bytes; Save: %d bytes", r.Before, r.Projected, r.Saved())
}

// FormatProgress renders one progress line.
func FormatProgress(message string, progress float64) string {
	return fmt.Sprintf("%.1f%% - %s", progress*100, message)
}

// FormatDone renders the final line.
func FormatDone(r Result) string {
	return fmt.Sprintf("Done. New size: %d bytes", r.After)
}

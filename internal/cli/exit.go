// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/export"
	"github.com/woozymasta/rpf/internal/vfs"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitNotFound    = 3
	ExitExtract     = 4
	ExitUnsupported = 5
)

var (
	// ErrUsage marks missing or malformed command-line arguments.
	ErrUsage = errors.New("invalid arguments")
	// ErrOpen marks a container that exists but could not be opened.
	ErrOpen = errors.New("failed to open RPF file")
)

// usagef returns an ErrUsage error with a formatted message.
func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case vfs.IsNotFound(err):
		return ExitNotFound
	case errors.Is(err, ErrOpen), errors.Is(err, export.ErrExtract), errors.Is(err, rpf.ErrDecode):
		return ExitExtract
	case errors.Is(err, export.ErrUnsupported), errors.Is(err, rpf.ErrNotFile), vfs.IsFormatError(err):
		return ExitUnsupported
	default:
		return ExitError
	}
}

// reportedError wraps an error already written to the output, so Execute does not print it again.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected argument %q for %q", args[0], cmd.CommandPath())
	}

	return nil
}

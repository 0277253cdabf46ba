// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf/internal/server"
)

// runJSON runs fn and writes its result or error as an indented envelope to stdout.
func runJSON(cmd *cobra.Command, fn func() (any, error)) error {
	data, err := fn()

	env := server.Envelope{Success: err == nil, Data: data}
	if err != nil {
		env.Data = nil
		env.Error = err.Error()
	}

	out, mErr := json.MarshalIndent(env, "", "  ")
	if mErr != nil {
		return fmt.Errorf("encode result: %w", mErr)
	}

	outln(cmd, string(out))
	if err != nil {
		return reportedError{err: err}
	}

	return nil
}

// outln writes a line to the command's stdout.
func outln(cmd *cobra.Command, a ...any) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), a...)
}

// outf writes a formatted line to the command's stdout.
func outf(cmd *cobra.Command, format string, a ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format+"\n", a...)
}

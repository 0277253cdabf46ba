// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Command rpftool inspects, extracts, packs and defragments RPF containers.
package main

import (
	"context"
	"os"

	"github.com/woozymasta/rpf/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

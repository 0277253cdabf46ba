package rpf

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/pathrules"
)

// createTestRPF builds a container from "a/b/c.txt" style paths.
func createTestRPF(t *testing.T, path string, files map[string][]byte, enc Encryption, opts Options) *Archive {
	t.Helper()

	a, err := CreateWithOptions(path, enc, opts)
	if err != nil {
		t.Fatalf("CreateWithOptions: %v", err)
	}

	for entryPath, data := range files {
		segments := SplitPath(entryPath)
		dir := a.Root()
		for _, seg := range segments[:len(segments)-1] {
			dir, err = a.CreateDirectory(dir, seg)
			if err != nil {
				t.Fatalf("CreateDirectory %s: %v", seg, err)
			}
		}

		if _, err := a.CreateFile(dir, segments[len(segments)-1], data, true); err != nil {
			t.Fatalf("CreateFile %s: %v", entryPath, err)
		}
	}

	return a
}

// includeRules returns include-only rules for patterns.
func includeRules(patterns ...string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}

	return rules
}

// mustExtract extracts entryPath or fails the test.
func mustExtract(t *testing.T, a *Archive, entryPath string) []byte {
	t.Helper()

	data, err := a.ExtractPath(entryPath)
	if err != nil {
		t.Fatalf("ExtractPath %s: %v", entryPath, err)
	}

	return data
}

// testPayload returns compressible deterministic payload of n bytes.
func testPayload(seed string, n int) []byte {
	return bytes.Repeat([]byte(seed), n/len(seed)+1)[:n]
}

// tempRPF returns a container path inside a per-test temp dir.
func tempRPF(t *testing.T, name string) string {
	t.Helper()

	if !strings.HasSuffix(name, Suffix) {
		name += Suffix
	}

	return filepath.Join(t.TempDir(), name)
}

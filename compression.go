// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/flate"
	"github.com/woozymasta/lzss"
	"github.com/woozymasta/pathrules"
)

// resourceMagic marks compiled resources ("RSC7") carrying a version field.
const resourceMagic = 0x37435352

// ruleMatcher holds compiled path rules.
type ruleMatcher struct {
	matcher *pathrules.Matcher
}

// newRuleMatcher compiles path rules; empty rule set yields nil matcher.
func newRuleMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*ruleMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidCompressPattern, err)
	}

	return &ruleMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is included by the rules.
func (m *ruleMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return false
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// entryCodec encodes payloads for storage and decodes them back.
type entryCodec struct {
	compress  *ruleMatcher
	resources *ruleMatcher
	keys      *keyring
	opts      Options
}

// encodedPayload is one payload ready for storage with its table fields.
type encodedPayload struct {
	data         []byte
	kind         EntryKind
	uncompressed uint32
	version      uint32
	compressed   bool
	encrypted    bool
}

// newEntryCodec compiles classification rules for opts.
func newEntryCodec(opts Options) (*entryCodec, error) {
	compress, err := newRuleMatcher(opts.Compress, opts.MatcherOptions)
	if err != nil {
		return nil, fmt.Errorf("compile compress rules: %w", err)
	}

	resources, err := newRuleMatcher(opts.Resources, opts.MatcherOptions)
	if err != nil {
		return nil, fmt.Errorf("compile resource rules: %w", err)
	}

	return &entryCodec{
		compress:  compress,
		resources: resources,
		keys:      newKeyring(opts.Passphrase, opts.KDFIterations),
		opts:      opts,
	}, nil
}

// encode prepares data for storage under relPath in a container with encryption enc.
func (c *entryCodec) encode(relPath string, name string, data []byte, enc Encryption) (encodedPayload, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return encodedPayload{}, fmt.Errorf("%w: entry %s size %d", ErrSizeOverflow, relPath, len(data))
	}

	out := encodedPayload{
		data:         data,
		kind:         KindBinary,
		uncompressed: uint32(len(data)), //nolint:gosec // bounded above
	}

	if !IsContainerName(name) && c.resources.Match(relPath) {
		packed, err := compressFlate(data)
		if err != nil {
			return encodedPayload{}, fmt.Errorf("compress resource %s: %w", relPath, err)
		}

		out.kind = KindResource
		out.version = resourceVersion(data)
		out.data = packed
		out.compressed = true
		return out, nil
	}

	if IsContainerName(name) {
		return out, nil
	}

	if c.shouldCompress(relPath, out.uncompressed) {
		packed, err := compressLZSS(data)
		if err != nil {
			return encodedPayload{}, fmt.Errorf("compress %s: %w", relPath, err)
		}

		if len(packed) < len(data) {
			out.data = packed
			out.compressed = true
		}
	}

	if enc != EncryptionOpen {
		sealed, err := c.keys.xor(enc, JenkHash(name), out.uncompressed, out.data)
		if err != nil {
			return encodedPayload{}, fmt.Errorf("encrypt %s: %w", relPath, err)
		}

		out.data = sealed
		out.encrypted = true
	}

	return out, nil
}

// decode restores entry payload bytes read from storage.
func (c *entryCodec) decode(e *Entry, stored []byte, enc Encryption) ([]byte, error) {
	data := stored
	if e.Encrypted {
		mode := enc
		if mode == EncryptionOpen {
			mode = EncryptionAES
		}

		plain, err := c.keys.xor(mode, e.NameHash, e.UncompressedSize, data)
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt %s: %w", ErrDecode, e.Path, err)
		}

		data = plain
	}

	if !e.Compressed {
		return data, nil
	}

	outLen, err := checkedUint32ToInt(e.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("resolve output size for %s: %w", e.Path, err)
	}

	var out []byte
	switch e.Kind {
	case KindResource:
		out, err = decompressFlate(data, outLen)
	default:
		out, err = decompressLZSS(data, outLen)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %w", ErrDecode, e.Path, err)
	}

	return out, nil
}

// shouldCompress returns true if path and size pass compression policy.
func (c *entryCodec) shouldCompress(relPath string, size uint32) bool {
	if size > c.opts.MaxCompressSize || size < c.opts.MinCompressSize {
		return false
	}

	return c.compress.Match(relPath)
}

// resourceVersion returns the RSC7 version field when data carries a resource header.
func resourceVersion(data []byte) uint32 {
	if len(data) < 8 || binary.LittleEndian.Uint32(data[0:4]) != resourceMagic {
		return 0
	}

	return binary.LittleEndian.Uint32(data[4:8])
}

// compressLZSS compresses the data using LZSS.
func compressLZSS(data []byte) ([]byte, error) {
	return lzss.Compress(data, lzss.DefaultCompressOptions())
}

// decompressLZSS expands LZSS data into exactly outLen bytes.
func decompressLZSS(data []byte, outLen int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(outLen)
	if _, err := lzss.DecompressToWriter(&buf, bytes.NewReader(data), outLen, nil); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// compressFlate deflates resource data.
func compressFlate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressFlate inflates resource data and checks the declared size.
func decompressFlate(data []byte, outLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = r.Close() }()

	out := make([]byte, 0, outLen)
	buf := bytes.NewBuffer(out)
	n, err := io.Copy(buf, io.LimitReader(r, int64(outLen)+1))
	if err != nil {
		return nil, err
	}
	if n != int64(outLen) {
		return nil, fmt.Errorf("inflated %d bytes, want %d", n, outLen)
	}

	return buf.Bytes(), nil
}

// checkedUint32ToInt converts uint32 to int with platform-safe overflow check.
func checkedUint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, ErrSizeOverflow
	}

	return int(v), nil
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	headerSize  = 16      // fixed RPF header size in bytes
	entrySize   = 32      // one entry table record
	namesAlign  = 16      // names table padding
	maxNameLen  = 255     // max entry filename length
	maxEntries  = 1 << 20 // max entry count accepted by parser
	magicRPF7   = 0x52504637
	flagEncrypt = 1 << 0
	flagCompact = 1 << 1
)

// BlockSize is the payload alignment unit; entry offsets are stored in blocks.
const BlockSize = 512

// Suffix is the file suffix of RPF containers.
const Suffix = ".rpf"

// Default codec tuning values.
const (
	DefaultMinCompressSize = 64
	DefaultMaxCompressSize = 16 * 1024 * 1024
	DefaultKDFIterations   = 4096
	DefaultPassphrase      = "rpf"
)

// Encryption is the container-level encryption tag stored in the header.
type Encryption uint32

// Supported encryption tags.
const (
	// EncryptionOpen stores payloads in clear.
	EncryptionOpen Encryption = 0x4E45504F
	// EncryptionAES encrypts binary payloads with AES-CTR.
	EncryptionAES Encryption = 0x0FFFFFF9
	// EncryptionNG encrypts binary payloads with AES-CTR using the NG key salt.
	EncryptionNG Encryption = 0x0FEFFFFF
)

// String returns the CLI name of the encryption tag.
func (e Encryption) String() string {
	switch e {
	case EncryptionOpen:
		return "OPEN"
	case EncryptionAES:
		return "AES"
	case EncryptionNG:
		return "NG"
	default:
		return fmt.Sprintf("0x%08X", uint32(e))
	}
}

// Valid reports whether e is a known encryption tag.
func (e Encryption) Valid() bool {
	return e == EncryptionOpen || e == EncryptionAES || e == EncryptionNG
}

// ParseEncryption parses OPEN, AES or NG (case-insensitive). Empty means OPEN.
func ParseEncryption(raw string) (Encryption, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "OPEN", "NONE":
		return EncryptionOpen, nil
	case "AES":
		return EncryptionAES, nil
	case "NG":
		return EncryptionNG, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncryption, raw)
	}
}

// EntryKind identifies the entry record type.
type EntryKind uint8

// Entry kinds as stored in the entry table.
const (
	KindDirectory EntryKind = iota
	KindBinary
	KindResource
)

// String returns a lowercase kind name.
func (k EntryKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindBinary:
		return "binary"
	case KindResource:
		return "resource"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ProgressFunc receives a human-readable message and progress in [0,1].
type ProgressFunc func(message string, progress float64)

// Options configures codec behavior for opened and created archives.
type Options struct {
	// Name overrides the container name derived from the file path.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Passphrase feeds the payload key derivation for AES and NG containers.
	Passphrase string `json:"-" yaml:"-"`
	// Compress defines ordered path rules selecting binary entries for LZSS compression.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// Resources defines ordered path rules selecting entries stored as resources.
	Resources []pathrules.Rule `json:"resources,omitempty" yaml:"resources,omitempty"`
	// MatcherOptions control rule matching for Compress and Resources.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// MinCompressSize disables compression for binary entries smaller than this size.
	MinCompressSize uint32 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// MaxCompressSize disables compression for binary entries larger than this size.
	MaxCompressSize uint32 `json:"max_compress_size,omitempty" yaml:"max_compress_size,omitempty"`
	// BackupKeep controls how many backup generations defragmentation keeps.
	// 0 removes the backup, 1 keeps `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	// KDFIterations is the pbkdf2 iteration count for payload keys.
	KDFIterations int `json:"kdf_iterations,omitempty" yaml:"kdf_iterations,omitempty"`
}

// DefaultCompressRules compress every binary entry except nested containers.
func DefaultCompressRules() []pathrules.Rule {
	return []pathrules.Rule{
		{Action: pathrules.ActionInclude, Pattern: "*"},
		{Action: pathrules.ActionExclude, Pattern: "*" + Suffix},
	}
}

// DefaultResourceRules select compiled game resource extensions.
func DefaultResourceRules() []pathrules.Rule {
	exts := []string{"ydr", "ydd", "yft", "ytd", "ybn", "ymap", "ytyp", "ycd", "ynv", "ypt"}
	rules := make([]pathrules.Rule, 0, len(exts))
	for _, ext := range exts {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: "*." + ext})
	}

	return rules
}

// applyDefaults fills zero-valued options with defaults.
func (opts *Options) applyDefaults() {
	if opts.Compress == nil {
		opts.Compress = DefaultCompressRules()
	}

	if opts.Resources == nil {
		opts.Resources = DefaultResourceRules()
	}

	if opts.MinCompressSize == 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.MaxCompressSize == 0 || opts.MaxCompressSize <= opts.MinCompressSize {
		opts.MaxCompressSize = DefaultMaxCompressSize
	}

	if opts.MatcherOptions == (pathrules.MatcherOptions{}) {
		opts.MatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.MatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.MatcherOptions.DefaultAction = pathrules.ActionExclude
	}

	if opts.Passphrase == "" {
		opts.Passphrase = DefaultPassphrase
	}

	if opts.KDFIterations <= 0 {
		opts.KDFIterations = DefaultKDFIterations
	}

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}

// header is the fixed 16-byte container header.
type header struct {
	magic       uint32
	entryCount  uint32
	namesLength uint32
	encryption  Encryption
}

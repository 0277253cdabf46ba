// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package export converts container entries to text metadata files.
package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"slices"
	"strings"
)

// ErrUnsupported is returned when no transcoder accepts an entry.
var ErrUnsupported = errors.New("unsupported file type for XML export")

// Transcoder converts one decoded entry payload to text.
type Transcoder interface {
	// Transcode returns the output file name and text for name, or ErrUnsupported.
	Transcode(name string, data []byte) (outName string, text []byte, err error)
}

// TranscoderFunc adapts a function to Transcoder.
type TranscoderFunc func(name string, data []byte) (string, []byte, error)

// Transcode calls f.
func (f TranscoderFunc) Transcode(name string, data []byte) (string, []byte, error) {
	return f(name, data)
}

// DefaultTextExtensions are extensions whose payload may already be XML text.
var DefaultTextExtensions = []string{".meta", ".ymt", ".dat"}

// PassthroughXML exports payloads that are already XML documents.
// ".xml" entries keep their name; other accepted entries get ".xml" appended.
type PassthroughXML struct {
	// Extensions lists accepted extensions besides ".xml". Nil means DefaultTextExtensions.
	Extensions []string
}

// Transcode implements Transcoder.
func (p PassthroughXML) Transcode(name string, data []byte) (string, []byte, error) {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".xml" {
		return name, data, nil
	}

	exts := p.Extensions
	if exts == nil {
		exts = DefaultTextExtensions
	}
	if !slices.Contains(exts, ext) || !isXML(data) {
		return "", nil, ErrUnsupported
	}

	return name + ".xml", data, nil
}

// isXML reports whether data parses as a well-formed XML document with a root element.
func isXML(data []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return sawElement
		}
		if err != nil {
			return false
		}

		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
}

// Chain tries transcoders in order and returns the first non-ErrUnsupported result.
type Chain []Transcoder

// Transcode implements Transcoder.
func (c Chain) Transcode(name string, data []byte) (string, []byte, error) {
	for _, t := range c {
		outName, text, err := t.Transcode(name, data)
		if errors.Is(err, ErrUnsupported) {
			continue
		}

		return outName, text, err
	}

	return "", nil, ErrUnsupported
}

// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pypimeta parses PyPI core metadata (METADATA/PKG-INFO), and the
// wheel and sdist archive formats that carry it.
package pypimeta

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"pyresolve.dev/pyresolve/pep508"
)

// Metadata holds the fields of a distribution's core metadata
// (https://packaging.python.org/specifications/core-metadata/) relevant to
// resolution.
type Metadata struct {
	Name    string
	Version string

	Summary     string
	Homepage    string
	License     string
	Classifiers []string

	// RequiresDist is the list of raw PEP 508 requirement strings, as they
	// appear under the "Requires-Dist" header.
	RequiresDist []string
	// RequiresPython is the raw "Requires-Python" specifier, if any.
	RequiresPython string
}

// ParsedRequirements parses every RequiresDist entry as a PEP 508
// requirement, stopping at the first malformed entry.
func (m Metadata) ParsedRequirements() ([]pep508.Requirement, error) {
	out := make([]pep508.Requirement, 0, len(m.RequiresDist))
	for _, raw := range m.RequiresDist {
		req, err := pep508.ParseRequirement(raw)
		if err != nil {
			return nil, fmt.Errorf("pypimeta: parsing Requires-Dist %q: %w", raw, err)
		}
		out = append(out, req)
	}
	return out, nil
}

// ParseMetadata reads a METADATA or PKG-INFO file's RFC 822-style header
// block (and possible message body, ignored here) into a Metadata value.
// logger may be nil, in which case diagnostics are discarded.
func ParseMetadata(ctx context.Context, data string, logger *log.Logger) (Metadata, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if !utf8.ValidString(data) {
		return Metadata{}, fmt.Errorf("pypimeta: invalid UTF-8 in metadata")
	}
	buf := bytes.NewBufferString(data)
	buf.WriteByte('\n')
	msg, err := mail.ReadMessage(buf)
	if err != nil {
		return Metadata{}, fmt.Errorf("pypimeta: parsing metadata headers: %w", err)
	}

	header := func(name string) string {
		vs := msg.Header[name]
		if len(vs) > 1 {
			logger.Warn("header set multiple times", "name", name, "values", vs)
		}
		if len(vs) == 1 && vs[0] != "UNKNOWN" {
			return vs[0]
		}
		return ""
	}
	multiHeader := func(name string) (values []string) {
		for _, v := range msg.Header[name] {
			if v != "UNKNOWN" {
				values = append(values, v)
			}
		}
		return
	}

	md := Metadata{
		Name:           header("Name"),
		Version:        header("Version"),
		Summary:        header("Summary"),
		Homepage:       header("Home-Page"),
		License:        header("License"),
		Classifiers:    multiHeader("Classifier"),
		RequiresDist:   multiHeader("Requires-Dist"),
		RequiresPython: header("Requires-Python"),
	}
	// Drain the body; core metadata may carry a long description there but
	// resolution never needs it.
	if _, err := io.Copy(io.Discard, msg.Body); err != nil {
		return Metadata{}, fmt.Errorf("pypimeta: reading metadata body: %w", err)
	}
	return md, nil
}

// UnsupportedError indicates metadata this package cannot yet extract, e.g.
// dependency information declared only in a legacy setup.py/setup.cfg.
type UnsupportedError struct {
	Kind string // "wheel" or "sdist"
	Msg  string
}

func (e UnsupportedError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

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

package pypimeta

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
)

// WheelInfo holds the components encoded into a wheel's filename, per the
// naming convention in PEP 427.
type WheelInfo struct {
	Name     string
	Version  string
	BuildNum int
	BuildTag string
	Tags     []PlatformTag
}

// PlatformTag is a single compatibility tag as defined by PEP 425.
type PlatformTag struct {
	Python   string
	ABI      string
	Platform string
}

// ParseWheelFilename extracts the components of a wheel filename.
func ParseWheelFilename(name string) (WheelInfo, error) {
	if !strings.HasSuffix(name, ".whl") {
		return WheelInfo{}, fmt.Errorf("pypimeta: not a wheel filename: %q", name)
	}
	trimmed := name[:len(name)-len(".whl")]
	parts := strings.Split(trimmed, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return WheelInfo{}, fmt.Errorf("pypimeta: wheel name %q has %d dash-separated parts, want 5 or 6", name, len(parts))
	}
	info := WheelInfo{Name: parts[0], Version: parts[1]}
	if len(parts) == 6 {
		buildTag := parts[2]
		split := strings.IndexFunc(buildTag, func(r rune) bool { return !unicode.IsDigit(r) })
		if split == 0 {
			return WheelInfo{}, fmt.Errorf("pypimeta: wheel name %q: build tag %q must start with a digit", name, buildTag)
		}
		if split == -1 {
			split = len(buildTag)
		}
		num, err := strconv.Atoi(buildTag[:split])
		if err != nil {
			return WheelInfo{}, fmt.Errorf("pypimeta: wheel name %q: %w", name, err)
		}
		info.BuildNum = num
		info.BuildTag = buildTag[split:]
	}
	tag := PlatformTag{
		Python:   parts[len(parts)-3],
		ABI:      parts[len(parts)-2],
		Platform: parts[len(parts)-1],
	}
	info.Tags = expandCompressedTag(tag)
	return info, nil
}

// expandCompressedTag expands a wheel filename's dotted compressed tag set
// into every individual (python, abi, platform) tuple it represents, per
// PEP 425's compressed tag set rule.
func expandCompressedTag(tag PlatformTag) []PlatformTag {
	var out []PlatformTag
	for _, py := range strings.Split(tag.Python, ".") {
		for _, abi := range strings.Split(tag.ABI, ".") {
			for _, plat := range strings.Split(tag.Platform, ".") {
				out = append(out, PlatformTag{Python: py, ABI: abi, Platform: plat})
			}
		}
	}
	return out
}

// WheelMetadata extracts core metadata from a wheel, which per PEP 427
// always stores it at "<name>-<version>.dist-info/METADATA" — the tier-2
// (PEP 658-style) source of `requires_dist` when a registry doesn't expose
// per-file metadata directly and a wheel has to be range-read instead.
func WheelMetadata(ctx context.Context, r io.ReaderAt, size int64, logger *log.Logger) (Metadata, error) {
	var meta *Metadata
	err := walkZipFiles(r, size, func(name string, r io.Reader) error {
		dir, base, ok := strings.Cut(name, "/")
		if !ok || !strings.HasSuffix(dir, ".dist-info") || base != "METADATA" {
			return nil
		}
		if meta != nil {
			return UnsupportedError{Kind: "wheel", Msg: "multiple METADATA files"}
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		md, err := ParseMetadata(ctx, string(b), logger)
		if err != nil {
			return err
		}
		meta = &md
		return nil
	})
	if err != nil {
		return Metadata{}, err
	}
	if meta == nil {
		return Metadata{}, UnsupportedError{Kind: "wheel", Msg: "no METADATA file found"}
	}
	return *meta, nil
}

func walkZipFiles(r io.ReaderAt, size int64, callback func(string, io.Reader) error) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := callback(f.Name, rc); err != nil {
			rc.Close()
			return err
		}
		if err := rc.Close(); err != nil {
			return err
		}
	}
	return nil
}

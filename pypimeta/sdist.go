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
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"pyresolve.dev/pyresolve/pep508"
)

// SdistNameVersion extracts the name and version from an sdist filename,
// which is not itself standardized but is conventionally "<name>-<version>".
// It disambiguates by finding the split point whose left side canonicalizes
// to canonName.
func SdistNameVersion(canonName, filename string) (name, version string, err error) {
	nameVersion := strings.TrimSuffix(filename, ".zip")
	nameVersion = strings.TrimSuffix(nameVersion, ".tar.gz")
	nameVersion = strings.TrimSuffix(nameVersion, ".tgz")
	for i, r := range nameVersion {
		if r != '-' {
			continue
		}
		if pep508.CanonicalName(nameVersion[:i]) == canonName {
			return nameVersion[:i], nameVersion[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("pypimeta: cannot split sdist filename %q for package %q", filename, canonName)
}

var installRequiresPattern = regexp.MustCompile(`install_requires[ \t]*=`)

// SdistMetadata extracts core metadata from an unpacked-in-memory sdist
// archive (tar.gz/tgz or zip). This is the last-resort tier: PKG-INFO in an
// sdist frequently omits requires_dist entirely, in which case the caller
// must fall back to actually invoking the PEP 517 build backend. If
// dependency information appears to live only in setup.py/setup.cfg,
// SdistMetadata returns an UnsupportedError alongside the partial metadata
// it did extract.
func SdistMetadata(ctx context.Context, filename string, r io.Reader, logger *log.Logger) (Metadata, error) {
	var meta Metadata
	sawSetupPy, sawSetupCfg := false, false

	walkFn := func(name string, r io.Reader) error {
		_, base, ok := strings.Cut(name, "/")
		if !ok {
			return nil
		}
		switch {
		case base == "setup.py" && !sawSetupPy:
			sawSetupPy = installRequiresPattern.MatchReader(bufio.NewReader(r))
			return nil
		case base == "setup.cfg" && !sawSetupCfg:
			sawSetupCfg = installRequiresPattern.MatchReader(bufio.NewReader(r))
			return nil
		case base != "PKG-INFO":
			return nil
		}
		if meta.Name != "" {
			return UnsupportedError{Kind: "sdist", Msg: "multiple top-level PKG-INFO files"}
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		md, err := ParseMetadata(ctx, string(b), logger)
		if err != nil {
			return err
		}
		meta = md
		return nil
	}

	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return Metadata{}, err
		}
		defer gz.Close()
		if err := walkTarFiles(gz, walkFn); err != nil {
			return Metadata{}, err
		}
	case strings.HasSuffix(filename, ".zip"):
		contents, err := io.ReadAll(r)
		if err != nil {
			return Metadata{}, err
		}
		if err := walkZipFiles(bytes.NewReader(contents), int64(len(contents)), walkFn); err != nil {
			return Metadata{}, err
		}
	default:
		return Metadata{}, UnsupportedError{Kind: "sdist", Msg: fmt.Sprintf("unrecognized archive format: %s", filename)}
	}

	if meta.Name == "" {
		return Metadata{}, UnsupportedError{Kind: "sdist", Msg: "no PKG-INFO found"}
	}
	if len(meta.RequiresDist) == 0 {
		switch {
		case sawSetupCfg:
			return meta, UnsupportedError{Kind: "sdist", Msg: "dependencies declared in setup.cfg, not PKG-INFO"}
		case sawSetupPy:
			return meta, UnsupportedError{Kind: "sdist", Msg: "dependencies declared in setup.py, not PKG-INFO"}
		}
	}
	return meta, nil
}

func walkTarFiles(r io.Reader, f func(string, io.Reader) error) error {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		if err := f(h.Name, tr); err != nil {
			return err
		}
	}
}

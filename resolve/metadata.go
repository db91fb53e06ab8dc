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

package resolve

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"pyresolve.dev/pyresolve/buildbackend"
	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pypimeta"
	"pyresolve.dev/pyresolve/registry"
)

// metadataProvider implements the three-tier fetch: registry release JSON,
// then PEP 658/range-read per-file metadata, then a full PEP 517 sdist
// build. Tiers are tried in order and the first to yield usable
// requires_dist wins; the whole fetch is singleflight-deduplicated per
// name@version so concurrent resolver rounds asking about the same
// package/version never duplicate the expensive tiers.
type metadataProvider struct {
	reg     registry.Registry
	vi      *versionIndex
	builder buildbackend.Runner
	logger  *log.Logger

	sf singleflight.Group

	// buildSem bounds concurrent PEP 517 builds independently of how many
	// Fetch calls are in flight overall — builds shell out to a Python
	// interpreter and are far heavier than a metadata HTTP fetch.
	buildSem chan struct{}

	mu    sync.Mutex
	cache map[string]pypimeta.Metadata // "name@version"
}

func newMetadataProvider(reg registry.Registry, vi *versionIndex, builder buildbackend.Runner, logger *log.Logger) *metadataProvider {
	return &metadataProvider{
		reg:     reg,
		vi:      vi,
		builder: builder,
		logger:  logger,
		cache:   make(map[string]pypimeta.Metadata),
	}
}

// Fetch returns the core metadata for name@version, trying each tier in
// order.
func (p *metadataProvider) Fetch(ctx context.Context, name PackageName, version pep440.Version) (pypimeta.Metadata, error) {
	key := string(name) + "@" + version.String()

	p.mu.Lock()
	if md, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return md, nil
	}
	p.mu.Unlock()

	v, err, _ := p.sf.Do(key, func() (any, error) {
		md, err := p.fetchUncached(ctx, name, version)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[key] = md
		p.mu.Unlock()
		return md, nil
	})
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	return v.(pypimeta.Metadata), nil
}

func (p *metadataProvider) fetchUncached(ctx context.Context, name PackageName, version pep440.Version) (pypimeta.Metadata, error) {
	var tried []string

	// Tier 1: registry release JSON.
	tier1, ok, err := p.reg.FetchReleaseMetadata(ctx, string(name), version)
	tried = append(tried, "release-json")
	if err != nil {
		p.logger.Debug("release metadata fetch failed", "name", name, "version", version, "err", err)
	}
	if ok && len(tier1.RequiresDist) > 0 {
		return tier1, nil
	}

	files, err := p.vi.Files(ctx, name, version)
	if err != nil {
		return pypimeta.Metadata{}, fmt.Errorf("resolve: listing files for %s %s: %w", name, version, err)
	}

	// Tier 2: per-file metadata, wheels only (PEP 658 or range-read).
	tried = append(tried, "per-file-metadata")
	for _, f := range files {
		if !f.IsWheel || f.Yanked {
			continue
		}
		md, err := p.reg.FetchFileMetadata(ctx, string(name), version, f)
		if err != nil {
			p.logger.Debug("per-file metadata fetch failed", "name", name, "version", version, "file", f.Filename, "err", err)
			continue
		}
		if ok && tier1.Name != "" && !sameRequiresDist(tier1.RequiresDist, md.RequiresDist) {
			p.logger.Warn("release JSON and wheel metadata disagree on requires_dist",
				"name", name, "version", version, "file", f.Filename)
		}
		p.logger.Debug("resolved requires_dist from per-file metadata", "name", name, "version", version, "tier", 2, "file", f.Filename)
		return md, nil
	}

	// Tier 3: build the sdist's metadata via its PEP 517 backend.
	tried = append(tried, "sdist-build")
	for _, f := range files {
		if !f.IsSdist || f.Yanked {
			continue
		}
		md, err := p.buildSdistMetadata(ctx, name, version, f)
		if err != nil {
			p.logger.Debug("sdist metadata build failed", "name", name, "version", version, "file", f.Filename, "err", err)
			continue
		}
		return md, nil
	}

	if ok {
		// The registry had metadata, it was just empty — a dependency-free
		// release is legitimate, not a failure.
		return tier1, nil
	}
	return pypimeta.Metadata{}, &MetadataUnavailableError{Name: name, Version: version, Tried: tried}
}

func sameRequiresDist(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// buildSdistMetadata first tries the cheap path — PKG-INFO already carries
// requires_dist for newer metadata versions — and only shells out to the
// project's PEP 517 backend when that comes up empty.
func (p *metadataProvider) buildSdistMetadata(ctx context.Context, name PackageName, version pep440.Version, f registry.File) (pypimeta.Metadata, error) {
	rc, err := p.reg.OpenFile(ctx, f)
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return pypimeta.Metadata{}, err
	}

	md, err := pypimeta.SdistMetadata(ctx, f.Filename, bytes.NewReader(content), p.logger)
	if err == nil && len(md.RequiresDist) > 0 {
		return md, nil
	}

	if p.builder == nil {
		if err != nil {
			return pypimeta.Metadata{}, err
		}
		return md, nil
	}

	sourceDir, cleanup, extractErr := extractArchive(f.Filename, bytes.NewReader(content))
	if extractErr != nil {
		return pypimeta.Metadata{}, extractErr
	}
	defer cleanup()

	if p.buildSem != nil {
		select {
		case p.buildSem <- struct{}{}:
			defer func() { <-p.buildSem }()
		case <-ctx.Done():
			return pypimeta.Metadata{}, ctx.Err()
		}
	}

	built, buildErr := p.builder.PrepareMetadata(ctx, sourceDir)
	if buildErr != nil {
		return pypimeta.Metadata{}, &BuildFailedError{Name: name, Version: version, Err: buildErr}
	}
	return built, nil
}

// extractArchive unpacks an sdist (tar.gz/tgz or zip) into a fresh temp
// directory so a PEP 517 backend can be invoked against it; the backend
// hooks require a real source tree on disk, not an in-memory archive.
func extractArchive(filename string, r io.Reader) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "pyresolve-sdist-")
	if err != nil {
		return "", nil, err
	}
	cleanup = func() { os.RemoveAll(dir) }

	writeFile := func(name string, r io.Reader) error {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("resolve: archive entry %q escapes extraction root", name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, r)
		return err
	}

	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			cleanup()
			return "", nil, err
		}
		defer gz.Close()
		tr := tar.NewReader(gz)
		for {
			h, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				cleanup()
				return "", nil, err
			}
			if h.Typeflag != tar.TypeReg {
				continue
			}
			if err := writeFile(h.Name, tr); err != nil {
				cleanup()
				return "", nil, err
			}
		}
	case strings.HasSuffix(filename, ".zip"):
		content, err := io.ReadAll(r)
		if err != nil {
			cleanup()
			return "", nil, err
		}
		zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			cleanup()
			return "", nil, err
		}
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				cleanup()
				return "", nil, err
			}
			err = writeFile(f.Name, rc)
			rc.Close()
			if err != nil {
				cleanup()
				return "", nil, err
			}
		}
	default:
		cleanup()
		return "", nil, fmt.Errorf("resolve: unrecognized sdist archive format: %s", filename)
	}
	return dir, cleanup, nil
}

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

// Package resolvetest provides an in-memory registry.Registry fixture for
// exercising the resolver without a network, in the spirit of the fake
// universes the teacher's own resolver tests build up by hand.
package resolvetest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/pypimeta"
	"pyresolve.dev/pyresolve/registry"
)

// Release describes one fake published version of a package.
type Release struct {
	Version        string
	RequiresDist   []string
	RequiresPython string
	Yanked         bool
	// NoReleaseJSON simulates a registry whose release JSON is missing or
	// empty, forcing the metadata provider down to tier 2.
	NoReleaseJSON bool
	// FileRequiresDist, if non-nil, overrides RequiresDist for tier-2
	// per-file metadata (FetchFileMetadata), simulating a PEP 658/wheel
	// METADATA that diverges from what the release JSON (RequiresDist)
	// reports.
	FileRequiresDist []string
}

// Universe is a small, hand-built fake package index.
type Universe struct {
	packages map[string][]Release
}

// New returns an empty Universe.
func New() *Universe {
	return &Universe{packages: make(map[string][]Release)}
}

// Add registers one release of a package, canonicalizing its name.
func (u *Universe) Add(name string, r Release) *Universe {
	name = pep508.CanonicalName(name)
	u.packages[name] = append(u.packages[name], r)
	return u
}

var _ registry.Registry = (*Universe)(nil)

func (u *Universe) ListVersions(ctx context.Context, name string) ([]pep440.Version, error) {
	name = pep508.CanonicalName(name)
	releases, ok := u.packages[name]
	if !ok {
		return nil, fmt.Errorf("resolvetest: unknown package %q", name)
	}
	out := make([]pep440.Version, 0, len(releases))
	for _, r := range releases {
		v, err := pep440.Parse(r.Version)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (u *Universe) findRelease(name string, version pep440.Version) (Release, bool) {
	name = pep508.CanonicalName(name)
	for _, r := range u.packages[name] {
		v, err := pep440.Parse(r.Version)
		if err == nil && v.Equal(version) {
			return r, true
		}
	}
	return Release{}, false
}

func (u *Universe) ListFiles(ctx context.Context, name string, version pep440.Version) ([]registry.File, error) {
	r, ok := u.findRelease(name, version)
	if !ok {
		return nil, fmt.Errorf("resolvetest: unknown release %s %s", name, version)
	}
	filename := fmt.Sprintf("%s-%s-py3-none-any.whl", strings.ReplaceAll(name, "-", "_"), version)
	return []registry.File{{
		Filename:       filename,
		URL:            "fake://" + filename,
		Yanked:         r.Yanked,
		RequiresPython: r.RequiresPython,
		IsWheel:        true,
	}}, nil
}

func (u *Universe) FetchReleaseMetadata(ctx context.Context, name string, version pep440.Version) (pypimeta.Metadata, bool, error) {
	r, ok := u.findRelease(name, version)
	if !ok || r.NoReleaseJSON {
		return pypimeta.Metadata{}, false, nil
	}
	return pypimeta.Metadata{
		Name:           pep508.CanonicalName(name),
		Version:        version.String(),
		RequiresDist:   r.RequiresDist,
		RequiresPython: r.RequiresPython,
	}, true, nil
}

func (u *Universe) FetchFileMetadata(ctx context.Context, name string, version pep440.Version, f registry.File) (pypimeta.Metadata, error) {
	r, ok := u.findRelease(name, version)
	if !ok {
		return pypimeta.Metadata{}, fmt.Errorf("resolvetest: unknown release %s %s", name, version)
	}
	requiresDist := r.RequiresDist
	if r.FileRequiresDist != nil {
		requiresDist = r.FileRequiresDist
	}
	return pypimeta.Metadata{
		Name:           pep508.CanonicalName(name),
		Version:        version.String(),
		RequiresDist:   requiresDist,
		RequiresPython: r.RequiresPython,
	}, nil
}

func (u *Universe) OpenFile(ctx context.Context, f registry.File) (io.ReadCloser, error) {
	return nil, fmt.Errorf("resolvetest: OpenFile not supported by the fake universe (%s)", f.Filename)
}

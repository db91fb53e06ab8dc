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
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/registry"
)

// versionIndex memoizes registry.Registry's version and file listings for
// the lifetime of one resolution, deduplicating concurrent lookups for the
// same package even when the underlying Registry implementation (e.g. a
// test fake) does no caching of its own.
type versionIndex struct {
	reg registry.Registry
	sf  singleflight.Group

	mu       sync.Mutex
	versions map[PackageName][]pep440.Version
	files    map[string][]registry.File // keyed by "name@version"
}

func newVersionIndex(reg registry.Registry) *versionIndex {
	return &versionIndex{
		reg:      reg,
		versions: make(map[PackageName][]pep440.Version),
		files:    make(map[string][]registry.File),
	}
}

// Versions returns every known version of name, sorted ascending by PEP 440
// order.
func (vi *versionIndex) Versions(ctx context.Context, name PackageName) ([]pep440.Version, error) {
	vi.mu.Lock()
	if v, ok := vi.versions[name]; ok {
		vi.mu.Unlock()
		return v, nil
	}
	vi.mu.Unlock()

	v, err, _ := vi.sf.Do("versions:"+string(name), func() (any, error) {
		versions, err := vi.reg.ListVersions(ctx, string(name))
		if err != nil {
			return nil, err
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })
		vi.mu.Lock()
		vi.versions[name] = versions
		vi.mu.Unlock()
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]pep440.Version), nil
}

// Files returns the release files published for one version of name.
func (vi *versionIndex) Files(ctx context.Context, name PackageName, version pep440.Version) ([]registry.File, error) {
	key := string(name) + "@" + version.String()
	vi.mu.Lock()
	if f, ok := vi.files[key]; ok {
		vi.mu.Unlock()
		return f, nil
	}
	vi.mu.Unlock()

	v, err, _ := vi.sf.Do("files:"+key, func() (any, error) {
		files, err := vi.reg.ListFiles(ctx, string(name), version)
		if err != nil {
			return nil, err
		}
		vi.mu.Lock()
		vi.files[key] = files
		vi.mu.Unlock()
		return files, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]registry.File), nil
}

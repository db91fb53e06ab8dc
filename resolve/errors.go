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
	"fmt"

	"pyresolve.dev/pyresolve/pep440"
)

// VersionConflictError means the specifiers accumulated onto a package from
// every requirer that needs it intersect to nothing a published version can
// satisfy. Tried lists the versions that satisfied the specifier set but
// were still rejected (yanked, or no usable file); it is empty when no
// version matched, including when the conflict was obvious from the
// specifiers alone
// (e.g. two requirers pinning distinct exact versions), without needing to
// consult the registry at all.
type VersionConflictError struct {
	Name       PackageName
	Specifiers pep440.Specifiers
	Tried      []string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("resolve: no version of %s satisfies %s (tried: %v)", e.Name, e.Specifiers, e.Tried)
}

// NoCompatibleVersionError means every published version satisfying a
// package's specifiers was excluded because none of its files declared a
// requires_python compatible with every target environment that needs it.
type NoCompatibleVersionError struct {
	Name          PackageName
	Specifiers    pep440.Specifiers
	PythonReasons []string
}

func (e *NoCompatibleVersionError) Error() string {
	return fmt.Sprintf("resolve: no version of %s satisfying %s has a requires_python compatible with every target environment: %v",
		e.Name, e.Specifiers, e.PythonReasons)
}

// MetadataUnavailableError means every tier failed to produce usable
// dependency metadata for a specific package/version.
type MetadataUnavailableError struct {
	Name    PackageName
	Version pep440.Version
	Tried   []string
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("resolve: no metadata source succeeded for %s %s (tried: %v)", e.Name, e.Version, e.Tried)
}

// BuildFailedError wraps a tier-3 PEP 517 build failure with the resolver
// context it occurred in.
type BuildFailedError struct {
	Name    PackageName
	Version pep440.Version
	Err     error
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("resolve: building sdist metadata for %s %s: %v", e.Name, e.Version, e.Err)
}
func (e *BuildFailedError) Unwrap() error { return e.Err }

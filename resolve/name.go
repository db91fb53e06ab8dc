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

// Package resolve implements the tiered, single-assignment PyPI dependency
// resolver: normalizing requirements, evaluating environment markers across
// several target platforms at once, selecting PEP 440-ordered versions and
// building the resulting solution graph.
package resolve

import "pyresolve.dev/pyresolve/pep508"

// PackageName is a PEP 503 canonicalized distribution name.
type PackageName string

// Extra is a PEP 503 canonicalized extra name.
type Extra string

// CanonicalName canonicalizes a raw distribution name.
func CanonicalName(name string) PackageName { return PackageName(pep508.CanonicalName(name)) }

// CanonicalExtra canonicalizes a raw extra name.
func CanonicalExtra(name string) Extra { return Extra(pep508.CanonicalName(name)) }

// rootPackage is the synthetic node from which every root requirement
// hangs, so root requirements and transitive ones share the same graph
// machinery.
const rootPackage PackageName = ""

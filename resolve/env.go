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

import "pyresolve.dev/pyresolve/pep508"

// TargetEnvironment names one platform/interpreter combination the
// resolution is being computed for. ID is only used for diagnostics; it does
// not need to be unique, but it should be.
type TargetEnvironment struct {
	ID  string
	Env pep508.Environment
}

// Applicability is re-exported from pep508 so callers of this package never
// need to import it directly.
type Applicability = pep508.Applicability

const (
	ApplicableNone  = pep508.None
	ApplicableAll   = pep508.All
	ApplicableMixed = pep508.Mixed
)

// subset is a bitset over the target environment list, indicating which
// environments actually need a given requirement or package.
type subset []bool

func fullSubset(n int) subset {
	s := make(subset, n)
	for i := range s {
		s[i] = true
	}
	return s
}

func emptySubset(n int) subset { return make(subset, n) }

// and intersects two subsets of equal length.
func (s subset) and(other subset) subset {
	out := make(subset, len(s))
	for i := range s {
		out[i] = s[i] && other[i]
	}
	return out
}

// or unions two subsets of equal length, mutating and returning s.
func (s subset) or(other subset) subset {
	for i := range s {
		if other[i] {
			s[i] = true
		}
	}
	return s
}

func (s subset) any() bool {
	for _, v := range s {
		if v {
			return true
		}
	}
	return false
}

func (s subset) all() bool {
	for _, v := range s {
		if !v {
			return false
		}
	}
	return true
}

func (s subset) applicability() Applicability {
	switch {
	case !s.any():
		return ApplicableNone
	case s.all():
		return ApplicableAll
	default:
		return ApplicableMixed
	}
}

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

package pep440

import (
	"strings"
)

// Specifiers is a comma-separated set of Specifier clauses, ANDed together,
// as they appear after a package name in a PEP 508 requirement.
type Specifiers []Specifier

// ParseSpecifiers parses a comma-separated specifier set. An empty string
// parses to an empty (always-matching) Specifiers.
func ParseSpecifiers(s string) (Specifiers, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make(Specifiers, 0, len(parts))
	for _, p := range parts {
		spec, err := ParseSpecifier(p)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func (ss Specifiers) String() string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// allowsPrereleaseDirectly reports whether any clause in ss pins a
// pre-release or dev version, which opts the whole set into admitting
// prereleases per PEP 440 even without an explicit allow-prerelease flag.
func (ss Specifiers) allowsPrereleaseDirectly() bool {
	for _, s := range ss {
		if s.AllowsPrerelease() {
			return true
		}
	}
	return false
}

// IsPrereleaseOnly reports whether every clause in a non-empty Specifiers
// names a prerelease version. Final releases may still satisfy such a set
// (">=1.0a1" admits 1.0).
func (ss Specifiers) IsPrereleaseOnly() bool {
	if len(ss) == 0 {
		return false
	}
	for _, s := range ss {
		if !s.AllowsPrerelease() {
			return false
		}
	}
	return true
}

// Matches reports whether v satisfies every clause in ss, applying PEP 440's
// prerelease admission rule: a prerelease version is rejected unless
// allowPrerelease is set or the specifier set itself pins a prerelease.
func (ss Specifiers) Matches(v Version, allowPrerelease bool) bool {
	if v.IsPrerelease() && !allowPrerelease && !ss.allowsPrereleaseDirectly() {
		return false
	}
	for _, s := range ss {
		if !s.Matches(v) {
			return false
		}
	}
	return true
}

// Intersect returns the union of clauses from ss and other: a version must
// satisfy both sets to satisfy the result, matching how multiple
// requirements on the same package accumulate constraints. Clauses already
// present (by their textual form) are not duplicated, so repeatedly
// intersecting the same clause onto a set already containing it — as
// happens every round a dependency cycle re-merges the same requirement —
// leaves the set unchanged instead of growing without bound.
func (ss Specifiers) Intersect(other Specifiers) Specifiers {
	out := make(Specifiers, 0, len(ss)+len(other))
	seen := make(map[string]bool, len(ss)+len(other))
	for _, s := range ss {
		key := s.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, s := range other {
		key := s.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Conflicting reports whether ss can be seen to admit no version at all
// without consulting a registry: currently this only recognizes two "=="
// clauses pinning different versions (wildcard "==X.*" clauses are not
// pins), the shape produced when two requirers pin the same package to
// incompatible exact versions.
func (ss Specifiers) Conflicting() bool {
	var pinned *Version
	for _, s := range ss {
		if s.Op != OpEqual || s.wildcard {
			continue
		}
		if pinned != nil && !pinned.Equal(s.Version) {
			return true
		}
		v := s.Version
		pinned = &v
	}
	return false
}

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
	"strings"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/pypimeta"
	"pyresolve.dev/pyresolve/registry"
)

// selectionFailure explains, for diagnostics, why selectVersion rejected
// every version it looked at.
type selectionFailure struct {
	// Tried lists the versions that matched the specifier set but were
	// rejected anyway (yanked with nothing pinning them, or excluded by
	// PythonReasons below).
	Tried []string
	// PythonReasons is non-empty when at least one otherwise-matching
	// version was rejected because none of its files had a requires_python
	// satisfied by every target environment.
	PythonReasons []string
}

// selectVersion scans versions (ascending PEP 440 order) top-down for the
// highest one that both satisfies specs and has a file every target
// environment can use, fetching each candidate's file list lazily via
// filesOf so versions below the eventual winner never cost a network call.
//
// allowPrerelease is the root "allow-pre" policy (spec.md §6/§4.6); even
// when it's false a prerelease version is still admitted when specs itself
// pins a prerelease directly (handled inside Specifiers.Matches), when
// every clause reaching this package names a prerelease
// (Specifiers.IsPrereleaseOnly), or when every version this package has
// ever published is itself a prerelease, leaving no final release to prefer
// in the first place — the two fallbacks original_source/resolve_prototype/
// resolve.py's get_allowed_prereleases and update_single_package implement
// ("iirc pip added this behaviour for black").
//
// This never backtracks: it is called exactly once per package, the first
// time enough information (available versions plus every specifier merged
// onto the queue entry so far) is on hand, and — unless a later requirement
// narrows specs enough to invalidate that choice, at which point the
// resolution driver calls it again with the updated specs — its result is
// not revisited.
func selectVersion(versions []pep440.Version, specs pep440.Specifiers, envs []pep508.Environment, allowPrerelease bool, filesOf func(pep440.Version) ([]registry.File, error)) (pep440.Version, registry.File, *selectionFailure, error) {
	pinned := exactPin(specs)
	effectiveAllowPre := allowPrerelease || specs.IsPrereleaseOnly() || allVersionsArePrerelease(versions)
	var failure selectionFailure
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if !specs.Matches(v, effectiveAllowPre) {
			continue
		}
		files, err := filesOf(v)
		if err != nil {
			return pep440.Version{}, registry.File{}, nil, err
		}
		failure.Tried = append(failure.Tried, v.String())

		installable := installableFiles(files, v, pinned)
		if len(installable) == 0 {
			continue
		}
		usable := usableEverywhere(installable, envs)
		if len(usable) == 0 {
			failure.PythonReasons = append(failure.PythonReasons,
				fmt.Sprintf("%s: no file's requires_python is satisfied by every target environment", v))
			continue
		}
		return v, preferredFile(usable), nil, nil
	}
	return pep440.Version{}, registry.File{}, &failure, nil
}

// allVersionsArePrerelease reports whether every version a package has ever
// published is itself a prerelease, meaning there is no final release to
// prefer over a prerelease in the first place.
func allVersionsArePrerelease(versions []pep440.Version) bool {
	if len(versions) == 0 {
		return false
	}
	for _, v := range versions {
		if !v.IsPrerelease() {
			return false
		}
	}
	return true
}

// installableFiles drops yanked files, unless v is pinned exactly — pip
// treats yanked releases as invisible to open-ended resolution but still
// installable when named directly.
func installableFiles(files []registry.File, v pep440.Version, pinned *pep440.Version) []registry.File {
	if pinned != nil && v.Equal(*pinned) {
		return files
	}
	out := make([]registry.File, 0, len(files))
	for _, f := range files {
		if !f.Yanked {
			out = append(out, f)
		}
	}
	return out
}

// usableEverywhere keeps only the files whose own requires_python (if any)
// is satisfied by every one of envs — the ReleaseFile invariant that a
// selected file must work for every target environment, not just some.
func usableEverywhere(files []registry.File, envs []pep508.Environment) []registry.File {
	out := make([]registry.File, 0, len(files))
	for _, f := range files {
		if fileUsableEverywhere(f, envs) {
			out = append(out, f)
		}
	}
	return out
}

func fileUsableEverywhere(f registry.File, envs []pep508.Environment) bool {
	if f.RequiresPython == "" {
		return true
	}
	specs, err := pep440.ParseSpecifiers(f.RequiresPython)
	if err != nil {
		return true
	}
	for _, env := range envs {
		v, err := pep440.Parse(env.PythonVersion)
		if err != nil {
			continue
		}
		if !specs.Matches(v, true) {
			return false
		}
	}
	return true
}

// preferredFile picks the file the resolver would report as the selected
// distribution: a wheel over a sdist, and among wheels one carrying a
// PEP 425 "any"-platform, "none"-ABI tag over a platform-specific one. Ties
// break on filename so the choice doesn't depend on ListFiles' order. This
// resolver never installs a wheel (see Non-goals), so the preference exists
// purely to report a stable, sensible choice.
func preferredFile(files []registry.File) registry.File {
	best := files[0]
	for _, f := range files[1:] {
		bs, fs := fileScore(best), fileScore(f)
		if fs > bs || (fs == bs && f.Filename < best.Filename) {
			best = f
		}
	}
	return best
}

// fileScore ranks f by real PEP 425 tag compatibility (via
// pypimeta.ParseWheelFilename) rather than a filename substring guess: an
// "any"-platform, "none"-ABI wheel scores highest, any other wheel scores
// above a sdist, and a wheel whose name doesn't even parse falls back to
// the plain-wheel score rather than erroring, since fileScore only orders a
// preference among already-selectable files.
func fileScore(f registry.File) int {
	if !f.IsWheel {
		return 0
	}
	info, err := pypimeta.ParseWheelFilename(f.Filename)
	if err != nil {
		return 1
	}
	for _, tag := range info.Tags {
		if tag.ABI == "none" && tag.Platform == "any" {
			return 2
		}
	}
	return 1
}

// exactPin returns the version specs pins via a bare "==" clause (no
// wildcard), if any.
func exactPin(specs pep440.Specifiers) *pep440.Version {
	for _, s := range specs {
		if s.Op == pep440.OpEqual && !strings.HasSuffix(strings.TrimSpace(s.String()), ".*") {
			v := s.Version
			return &v
		}
	}
	return nil
}

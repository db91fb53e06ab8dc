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
	"testing"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/registry"
)

func mustVersion(t *testing.T, s string) pep440.Version {
	t.Helper()
	v, err := pep440.Parse(s)
	if err != nil {
		t.Fatalf("pep440.Parse(%q): %v", s, err)
	}
	return v
}

func mustSpecs(t *testing.T, s string) pep440.Specifiers {
	t.Helper()
	if s == "" {
		return nil
	}
	specs, err := pep440.ParseSpecifiers(s)
	if err != nil {
		t.Fatalf("pep440.ParseSpecifiers(%q): %v", s, err)
	}
	return specs
}

func versionsOf(t *testing.T, ss ...string) []pep440.Version {
	t.Helper()
	out := make([]pep440.Version, len(ss))
	for i, s := range ss {
		out[i] = mustVersion(t, s)
	}
	return out
}

func wheelFile(name string) registry.File {
	return registry.File{Filename: name + "-1.0.0-py3-none-any.whl", IsWheel: true}
}

func noEnvs() []pep508.Environment { return nil }

func filesOf(m map[string][]registry.File) func(pep440.Version) ([]registry.File, error) {
	return func(v pep440.Version) ([]registry.File, error) {
		return m[v.String()], nil
	}
}

func TestSelectVersionPicksHighestMatching(t *testing.T) {
	versions := versionsOf(t, "1.0.0", "1.5.0", "2.0.0")
	files := map[string][]registry.File{
		"1.0.0": {wheelFile("a")},
		"1.5.0": {wheelFile("a")},
		"2.0.0": {wheelFile("a")},
	}
	v, _, failure, err := selectVersion(versions, mustSpecs(t, "<2.0"), noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil {
		t.Fatalf("selectVersion failure = %+v, want a match", failure)
	}
	if v.String() != "1.5.0" {
		t.Errorf("selectVersion = %v, want 1.5.0", v)
	}
}

func TestSelectVersionSkipsFullyYankedUnlessPinned(t *testing.T) {
	versions := versionsOf(t, "1.0.0", "2.0.0")
	files := map[string][]registry.File{
		"1.0.0": {wheelFile("a")},
		"2.0.0": {{Filename: "a-2.0.0-py3-none-any.whl", IsWheel: true, Yanked: true}},
	}

	v, _, failure, err := selectVersion(versions, nil, noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil || v.String() != "1.0.0" {
		t.Errorf("unconstrained selectVersion = (%v, %+v), want (1.0.0, nil) skipping the yanked release", v, failure)
	}

	v, _, failure, err = selectVersion(versions, mustSpecs(t, "==2.0.0"), noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil || v.String() != "2.0.0" {
		t.Errorf("pinned selectVersion = (%v, %+v), want (2.0.0, nil) despite the yank", v, failure)
	}
}

func TestSelectVersionNoneMatch(t *testing.T) {
	versions := versionsOf(t, "1.0.0")
	files := map[string][]registry.File{"1.0.0": {wheelFile("a")}}
	_, _, failure, err := selectVersion(versions, mustSpecs(t, ">=2.0"), noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure == nil {
		t.Fatal("selectVersion should report a failure when nothing satisfies the specifiers")
	}
	if len(failure.Tried) != 0 {
		t.Errorf("failure.Tried = %v, want empty (1.0.0 never matches >=2.0)", failure.Tried)
	}
}

func TestSelectVersionExcludedByRequiresPython(t *testing.T) {
	versions := versionsOf(t, "1.0.0")
	files := map[string][]registry.File{
		"1.0.0": {{Filename: "a-1.0.0-py3-none-any.whl", IsWheel: true, RequiresPython: ">=3.13"}},
	}
	envs := []pep508.Environment{pep508.CPythonLinux64("3.12", "3.12.1")}

	_, _, failure, err := selectVersion(versions, nil, envs, false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure == nil || len(failure.PythonReasons) == 0 {
		t.Fatalf("selectVersion failure = %+v, want a non-empty PythonReasons", failure)
	}
}

func TestSelectVersionAllowPrereleaseFlag(t *testing.T) {
	versions := versionsOf(t, "0.9.0", "1.0.0a1", "1.0.0a2")
	files := map[string][]registry.File{
		"0.9.0":   {wheelFile("a")},
		"1.0.0a1": {wheelFile("a")},
		"1.0.0a2": {wheelFile("a")},
	}

	v, _, failure, err := selectVersion(versions, nil, noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil || v.String() != "0.9.0" {
		t.Fatalf("selectVersion with allowPrerelease=false = (%v, %+v), want (0.9.0, nil): bare pre-releases skipped while a final release exists", v, failure)
	}

	v, _, failure, err = selectVersion(versions, nil, noEnvs(), true, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil || v.String() != "1.0.0a2" {
		t.Errorf("selectVersion with allowPrerelease=true = (%v, %+v), want (1.0.0a2, nil)", v, failure)
	}
}

func TestSelectVersionAllVersionsPrereleaseFallback(t *testing.T) {
	versions := versionsOf(t, "1.0.0a1")
	files := map[string][]registry.File{"1.0.0a1": {wheelFile("a")}}

	// No specifier pins a pre-release and allowPrerelease is false, but
	// every published version is itself a pre-release, so one must still
	// be admitted.
	v, _, failure, err := selectVersion(versions, nil, noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil || v.String() != "1.0.0a1" {
		t.Errorf("selectVersion = (%v, %+v), want (1.0.0a1, nil)", v, failure)
	}
}

func TestSelectVersionPrereleaseOnlyFallback(t *testing.T) {
	versions := versionsOf(t, "1.0.0a1", "1.0.0a2")
	files := map[string][]registry.File{
		"1.0.0a1": {wheelFile("a")},
		"1.0.0a2": {wheelFile("a")},
	}

	// Every clause of specs names a pre-release, so even with
	// allowPrerelease=false a pre-release is still admitted.
	v, _, failure, err := selectVersion(versions, mustSpecs(t, ">=1.0.0a1"), noEnvs(), false, filesOf(files))
	if err != nil {
		t.Fatalf("selectVersion: %v", err)
	}
	if failure != nil || v.String() != "1.0.0a2" {
		t.Errorf("selectVersion with a pre-release-only specifier = (%v, %+v), want (1.0.0a2, nil)", v, failure)
	}
}

func TestPreferredFilePicksAnyWheelOverSdist(t *testing.T) {
	sdist := registry.File{Filename: "a-1.0.0.tar.gz"}
	wheel := wheelFile("a")
	if got := preferredFile([]registry.File{sdist, wheel}); got.Filename != wheel.Filename {
		t.Errorf("preferredFile = %v, want the any-platform wheel", got.Filename)
	}
}

func TestPreferredFileBreaksTiesByFilename(t *testing.T) {
	a := registry.File{Filename: "a-1.0.0-py3-none-any.whl", IsWheel: true}
	b := registry.File{Filename: "b-1.0.0-py3-none-any.whl", IsWheel: true}
	if got := preferredFile([]registry.File{b, a}); got.Filename != a.Filename {
		t.Errorf("preferredFile = %v, want the lexicographically first of two equally-scored wheels", got.Filename)
	}
}

func TestExactPin(t *testing.T) {
	if p := exactPin(mustSpecs(t, ">=1.0,<2.0")); p != nil {
		t.Errorf("exactPin of a range should be nil, got %v", p)
	}
	p := exactPin(mustSpecs(t, "==1.5.0"))
	if p == nil || p.String() != "1.5.0" {
		t.Errorf("exactPin of ==1.5.0 = %v, want 1.5.0", p)
	}
}

func TestSpecifiersConflicting(t *testing.T) {
	if mustSpecs(t, ">=1.0,<2.0").Conflicting() {
		t.Error("a range should not be Conflicting")
	}
	if !mustSpecs(t, "==1.0,==2.0").Conflicting() {
		t.Error("two distinct exact pins should be Conflicting")
	}
	if mustSpecs(t, "==1.0,==1.0").Conflicting() {
		t.Error("two identical exact pins should not be Conflicting")
	}
}

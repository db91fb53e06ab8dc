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
	"testing"
	"time"

	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/resolve/internal/resolvetest"
)

func mustReq(t *testing.T, s string) pep508.Requirement {
	t.Helper()
	r, err := pep508.ParseRequirement(s)
	if err != nil {
		t.Fatalf("ParseRequirement(%q): %v", s, err)
	}
	return r
}

func lockMap(g *Graph) map[string]string {
	out := make(map[string]string)
	for _, e := range g.ToLockfileView() {
		out[e.Name] = e.Version
	}
	return out
}

func TestResolveSimpleChain(t *testing.T) {
	u := resolvetest.New().
		Add("app-dep", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib>=1.0"}}).
		Add("lib", resolvetest.Release{Version: "1.0.0"}).
		Add("lib", resolvetest.Release{Version: "2.0.0"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux-cpython312", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app-dep")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := lockMap(g)
	if got["app-dep"] != "1.0.0" {
		t.Errorf("app-dep = %q, want 1.0.0", got["app-dep"])
	}
	if got["lib"] != "2.0.0" {
		t.Errorf("lib = %q, want 2.0.0 (highest satisfying >=1.0)", got["lib"])
	}
}

func TestResolveMarkerAppliesToSubsetOfEnvironments(t *testing.T) {
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{
			`windows-only ; sys_platform == "win32"`,
			`linux-only ; sys_platform == "linux"`,
		}}).
		Add("windows-only", resolvetest.Release{Version: "1.0.0"}).
		Add("linux-only", resolvetest.Release{Version: "1.0.0"})

	linux := pep508.CPythonLinux64("3.11", "3.11.4")
	windows := linux
	windows.SysPlatform = "win32"

	d := NewDriver(Config{
		Registry: u,
		Environments: []TargetEnvironment{
			{ID: "linux", Env: linux},
			{ID: "windows", Env: windows},
		},
	})

	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := lockMap(g)
	if _, ok := got["windows-only"]; !ok {
		t.Errorf("expected windows-only to be resolved (needed by the windows target)")
	}
	if _, ok := got["linux-only"]; !ok {
		t.Errorf("expected linux-only to be resolved (needed by the linux target)")
	}
}

func TestResolveExtraActivatesConditionalDependency(t *testing.T) {
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{
			`extra-dep ; extra == "speedups"`,
		}}).
		Add("extra-dep", resolvetest.Release{Version: "1.0.0"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app[speedups]")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := lockMap(g)
	if _, ok := got["extra-dep"]; !ok {
		t.Errorf("expected extra-dep to be pulled in by the speedups extra")
	}
}

func TestResolveVersionConflictWhenNothingSatisfiesSpecifiers(t *testing.T) {
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib>=3.0"}}).
		Add("lib", resolvetest.Release{Version: "1.0.0"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	_, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if _, ok := err.(*VersionConflictError); !ok {
		t.Fatalf("expected a VersionConflictError, got %v (%T)", err, err)
	}
}

func TestResolveConflictingSiblingConstraintsIsUnsatisfiable(t *testing.T) {
	// b and c both depend on lib with mutually exclusive constraints,
	// discovered in the same round (both are direct children of app), so
	// they merge onto lib's queue entry before any version is chosen: the
	// result is an ordinary "nothing satisfies the intersected specifier
	// set" failure.
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"b", "c"}}).
		Add("b", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib<2.0"}}).
		Add("c", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib>=2.0"}}).
		Add("lib", resolvetest.Release{Version: "1.0.0"}).
		Add("lib", resolvetest.Release{Version: "2.0.0"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	_, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if _, ok := err.(*VersionConflictError); !ok {
		t.Fatalf("expected a VersionConflictError, got %v (%T)", err, err)
	}
}

func TestResolveReSelectsWhenLaterConstraintExcludesPinnedVersion(t *testing.T) {
	// app roots pin pkg into [>=1.0,<2.0), which first resolves to the
	// highest matching release, 1.9.0. app also depends on narrower, whose
	// own dependency on pkg<1.5 only surfaces one round later (after
	// narrower's own metadata is fetched) and excludes the already-chosen
	// 1.9.0. The driver must re-select pkg downward to 1.4.0, the highest
	// version still matching the now-widened specifier set, rather than
	// failing outright.
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"pkg>=1.0,<2.0", "narrower"}}).
		Add("narrower", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"pkg<1.5"}}).
		Add("pkg", resolvetest.Release{Version: "1.0.0"}).
		Add("pkg", resolvetest.Release{Version: "1.4.0"}).
		Add("pkg", resolvetest.Release{Version: "1.9.0"}).
		Add("pkg", resolvetest.Release{Version: "2.0.0"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := lockMap(g)["pkg"]; got != "1.4.0" {
		t.Errorf("pkg = %q, want 1.4.0 (re-selected downward once narrower's constraint arrived)", got)
	}
}

func TestResolveHardConflictWhenReSelectionExhaustsCandidates(t *testing.T) {
	// app depends directly on lib (unconstrained) and on d; lib is pinned
	// to 2.0.0 before d's own metadata — one round deeper — reveals a
	// constraint of lib<1.0. Re-selection kicks in but no published
	// version of lib satisfies both the original specifiers and the new
	// one, so this is still a hard failure.
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib", "d"}}).
		Add("d", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib<1.0"}}).
		Add("lib", resolvetest.Release{Version: "1.0.0"}).
		Add("lib", resolvetest.Release{Version: "2.0.0"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	_, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
	if err == nil {
		t.Fatal("expected a hard conflict error, got nil")
	}
	if _, ok := err.(*VersionConflictError); !ok {
		t.Fatalf("expected a VersionConflictError, got %v (%T)", err, err)
	}
}

func TestResolveCyclicDependencyTerminates(t *testing.T) {
	// app -> a -> b -> a: b re-merges the same "a>=1.0" specifier onto a's
	// already-dirty queue entry every round the cycle is revisited. Without
	// deduplication in Specifiers.Intersect, that clause would be
	// re-appended forever, keeping a's entry perpetually dirty and the
	// round loop in Resolve from ever reaching a fixed point.
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"a>=1.0"}}).
		Add("a", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"b>=1.0"}}).
		Add("b", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"a>=1.0"}})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	done := make(chan struct{})
	var g *Graph
	var err error
	go func() {
		g, err = d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Resolve did not terminate on a cyclic dependency graph")
	}
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := lockMap(g)
	if got["a"] != "1.0.0" || got["b"] != "1.0.0" {
		t.Errorf("lockMap = %v, want a and b both resolved to 1.0.0", got)
	}
}

func TestResolveNoCompatibleVersionExcludedByRequiresPython(t *testing.T) {
	u := resolvetest.New().
		Add("app", resolvetest.Release{Version: "1.0.0", RequiresDist: []string{"lib"}}).
		Add("lib", resolvetest.Release{Version: "1.0.0", RequiresPython: ">=3.13"})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	_, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "app")})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if _, ok := err.(*NoCompatibleVersionError); !ok {
		t.Fatalf("expected a NoCompatibleVersionError, got %v (%T)", err, err)
	}
}

func TestResolveYankedVersionSkippedUnlessPinned(t *testing.T) {
	u := resolvetest.New().
		Add("lib", resolvetest.Release{Version: "1.0.0"}).
		Add("lib", resolvetest.Release{Version: "2.0.0", Yanked: true})

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
	})

	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := lockMap(g)["lib"]; got != "1.0.0" {
		t.Errorf("lib = %q, want 1.0.0 (2.0.0 is yanked and not pinned)", got)
	}

	g, err = d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib==2.0.0")})
	if err != nil {
		t.Fatalf("Resolve with exact pin on yanked version: %v", err)
	}
	if got := lockMap(g)["lib"]; got != "2.0.0" {
		t.Errorf("lib = %q, want 2.0.0 (explicitly pinned, yanked or not)", got)
	}
}

func TestResolveAllowPrereleaseFlag(t *testing.T) {
	u := resolvetest.New().
		Add("lib", resolvetest.Release{Version: "1.0.0"}).
		Add("lib", resolvetest.Release{Version: "2.0.0a1"})

	envs := []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}}

	d := NewDriver(Config{Registry: u, Environments: envs})
	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib")})
	if err != nil {
		t.Fatalf("Resolve without AllowPrerelease: %v", err)
	}
	if got := lockMap(g)["lib"]; got != "1.0.0" {
		t.Errorf("lib = %q, want 1.0.0 (the newer 2.0.0a1 pre-release should be skipped)", got)
	}

	d = NewDriver(Config{Registry: u, Environments: envs, AllowPrerelease: true})
	g, err = d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib")})
	if err != nil {
		t.Fatalf("Resolve with AllowPrerelease: %v", err)
	}
	if got := lockMap(g)["lib"]; got != "2.0.0a1" {
		t.Errorf("lib = %q, want 2.0.0a1", got)
	}
}

func TestResolveAllVersionsPrereleaseFallback(t *testing.T) {
	// lib has only ever published pre-releases, so there is no final
	// release to prefer: pip (and original_source/resolve_prototype's
	// update_single_package) allow a pre-release here even without the
	// root allow-pre flag.
	u := resolvetest.New().
		Add("lib", resolvetest.Release{Version: "1.0.0a1"})

	envs := []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}}

	d := NewDriver(Config{Registry: u, Environments: envs})
	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := lockMap(g)["lib"]; got != "1.0.0a1" {
		t.Errorf("lib = %q, want 1.0.0a1 (its only published version is a pre-release)", got)
	}
}

func TestResolveRootRequiresPythonPrunesEnvironments(t *testing.T) {
	u := resolvetest.New().
		Add("lib", resolvetest.Release{Version: "1.0.0"})

	envs := []TargetEnvironment{
		{ID: "linux-37", Env: pep508.CPythonLinux64("3.7", "3.7.9")},
		{ID: "linux-312", Env: pep508.CPythonLinux64("3.12", "3.12.1")},
	}

	d := NewDriver(Config{Registry: u, Environments: envs, RequiresPython: ">=3.10"})
	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := lockMap(g)["lib"]; got != "1.0.0" {
		t.Errorf("lib = %q, want 1.0.0 resolved against the surviving 3.12 environment", got)
	}

	d = NewDriver(Config{Registry: u, Environments: envs, RequiresPython: ">=4.0"})
	if _, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "lib")}); err == nil {
		t.Fatal("expected requires-python >=4.0 to exclude every target environment, got nil error")
	}
}

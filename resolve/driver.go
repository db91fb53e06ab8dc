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
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"pyresolve.dev/pyresolve/buildbackend"
	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/registry"
)

// Config configures a Driver.
type Config struct {
	Registry registry.Registry
	// Builder runs PEP 517 hooks for sdists whose PKG-INFO doesn't already
	// carry requires_dist. Leave nil to skip the PEP 517 build: the sdist
	// tier then uses whatever the sdist's own PKG-INFO says, even when that
	// carries no requires_dist.
	Builder buildbackend.Runner
	// Environments is the set of target platforms to resolve for
	// simultaneously; must be non-empty.
	Environments []TargetEnvironment
	// RequiresPython, if set, is the root project's own requires-python
	// constraint (spec.md §9's supplemented requires-python pruning). It is
	// checked against every environment in Environments before resolution
	// starts; environments it excludes are dropped from the run entirely,
	// rather than merely narrowed per-dependency the way an individual
	// package's own requires_python is (see pruneByRequiresPython).
	RequiresPython string
	// AllowPrerelease is the root "allow-pre" policy (spec.md §6/§4.6): when
	// false, a package's candidate versions still admit pre-releases if its
	// merged specifier pins one directly, if every specifier reaching it
	// names a pre-release, or if every version it has published is a
	// pre-release (see selectVersion), but not otherwise.
	AllowPrerelease bool
	// MaxFetchConcurrency bounds concurrent version/file-listing/metadata
	// network calls. Zero means 8.
	MaxFetchConcurrency int
	// MaxBuildConcurrency bounds concurrent PEP 517 sdist builds, which are
	// far heavier (they shell out to a Python interpreter) than a metadata
	// fetch and so get their own, usually much lower, cap. Zero means 2.
	MaxBuildConcurrency int
	Logger              *log.Logger
}

func (c *Config) setDefaults() {
	if c.MaxFetchConcurrency <= 0 {
		c.MaxFetchConcurrency = 8
	}
	if c.MaxBuildConcurrency <= 0 {
		c.MaxBuildConcurrency = 2
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
}

// Driver runs the round-based resolution loop: a fixed point over a
// requirement queue, single-assignment and first-fit, with no backtracking.
// A specifier that later excludes an already-pinned package triggers
// forward re-selection of that package's own pin, never a search over
// other packages' assignments; if re-selection itself finds nothing left
// to pick, that's a hard failure.
type Driver struct {
	cfg      Config
	vi       *versionIndex
	metadata *metadataProvider
}

// NewDriver constructs a Driver from cfg.
func NewDriver(cfg Config) *Driver {
	cfg.setDefaults()
	vi := newVersionIndex(cfg.Registry)
	mp := newMetadataProvider(cfg.Registry, vi, cfg.Builder, cfg.Logger)
	mp.buildSem = make(chan struct{}, cfg.MaxBuildConcurrency)
	return &Driver{cfg: cfg, vi: vi, metadata: mp}
}

// Resolve computes a solution graph satisfying every root requirement
// across every configured target environment.
func (d *Driver) Resolve(ctx context.Context, roots []pep508.Requirement) (*Graph, error) {
	if len(d.cfg.Environments) == 0 {
		return nil, fmt.Errorf("resolve: at least one target environment is required")
	}
	targets, err := d.pruneTargetsByRequiresPython(d.cfg.Environments)
	if err != nil {
		return nil, err
	}
	numEnvs := len(targets)
	envs := make([]pep508.Environment, numEnvs)
	for i, e := range targets {
		envs[i] = e.Env
	}

	q := newRequirementQueue(numEnvs)
	g := newGraph()
	g.Nodes[rootPackage] = Node{Name: rootPackage}

	for _, root := range roots {
		if err := d.mergeRequirement(q, rootPackage, root, envs, fullSubset(numEnvs), nil); err != nil {
			return nil, err
		}
	}

	for {
		dirty := q.dirty()
		if len(dirty) == 0 {
			break
		}
		for _, e := range dirty {
			e.Dirty = false
		}

		if err := d.fetchVersions(ctx, dirty); err != nil {
			return nil, err
		}

		for _, e := range dirty {
			if e.SourceURL != "" {
				e.Resolved = true
				g.Nodes[e.Name] = Node{Name: e.Name, SourceURL: e.SourceURL, Extras: extrasOf(e), Applicability: e.EnvSubset.applicability()}
				g.Edges[e.Name] = e.Edges
				continue
			}
			if !e.Resolved || !e.Specifiers.Matches(e.Version, true) {
				if e.Resolved {
					// A specifier merged onto e since it was pinned now
					// excludes that pin: re-select forward from the
					// widened specifier set rather than failing outright,
					// and drop the stale metadata so expand refetches and
					// re-expands whatever the new version actually needs.
					e.Resolved = false
					e.MetadataFetched = false
					e.ParsedReqs = nil
					e.RequiresPython = ""
				}
				v, f, err := d.chooseVersion(ctx, e, envs)
				if err != nil {
					return nil, err
				}
				e.Version = v
				e.Resolved = true
				g.Nodes[e.Name] = Node{Name: e.Name, Version: v, Extras: extrasOf(e), SelectedFile: f, Applicability: e.EnvSubset.applicability()}
			} else {
				node := g.Nodes[e.Name]
				node.Extras = extrasOf(e)
				node.Applicability = e.EnvSubset.applicability()
				g.Nodes[e.Name] = node
			}
			g.Edges[e.Name] = e.Edges
		}

		toExpand := make([]*queueEntry, 0, len(dirty))
		for _, e := range dirty {
			if e.SourceURL != "" {
				continue
			}
			toExpand = append(toExpand, e)
		}
		if err := d.expand(ctx, q, toExpand, envs); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func extrasOf(e *queueEntry) []Extra {
	out := make([]Extra, 0, len(e.Extras))
	for x := range e.Extras {
		out = append(out, x)
	}
	return out
}

// fetchVersions ensures every dirty, not-yet-resolved, non-URL entry has its
// version list cached, in parallel up to MaxFetchConcurrency.
func (d *Driver) fetchVersions(ctx context.Context, dirty []*queueEntry) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxFetchConcurrency)
	for _, e := range dirty {
		e := e
		if e.SourceURL != "" || e.Resolved {
			continue
		}
		g.Go(func() error {
			_, err := d.vi.Versions(ctx, e.Name)
			return err
		})
	}
	return g.Wait()
}

// chooseVersion implements C6: the first (highest) version satisfying
// everything merged onto e so far, with a file usable by every environment
// in envs, wins. If e's specifiers are already self-evidently unsatisfiable
// (e.g. two distinct exact pins), that's reported without consulting the
// registry at all, matching how S2 expects tried=[].
func (d *Driver) chooseVersion(ctx context.Context, e *queueEntry, envs []pep508.Environment) (pep440.Version, registry.File, error) {
	if e.Specifiers.Conflicting() {
		return pep440.Version{}, registry.File{}, &VersionConflictError{Name: e.Name, Specifiers: e.Specifiers}
	}
	versions, err := d.vi.Versions(ctx, e.Name)
	if err != nil {
		return pep440.Version{}, registry.File{}, fmt.Errorf("resolve: listing versions of %s: %w", e.Name, err)
	}
	v, f, failure, err := selectVersion(versions, e.Specifiers, envs, d.cfg.AllowPrerelease, func(v pep440.Version) ([]registry.File, error) {
		return d.vi.Files(ctx, e.Name, v)
	})
	if err != nil {
		return pep440.Version{}, registry.File{}, fmt.Errorf("resolve: listing files of %s: %w", e.Name, err)
	}
	if failure != nil {
		if len(failure.PythonReasons) > 0 {
			return pep440.Version{}, registry.File{}, &NoCompatibleVersionError{
				Name:          e.Name,
				Specifiers:    e.Specifiers,
				PythonReasons: failure.PythonReasons,
			}
		}
		return pep440.Version{}, registry.File{}, &VersionConflictError{
			Name:       e.Name,
			Specifiers: e.Specifiers,
			Tried:      failure.Tried,
		}
	}
	return v, f, nil
}

// expand implements C4+C2: fetch metadata (once) for every newly resolved
// entry, then merge its dependencies into the queue re-evaluated against
// its current extras and environment subset. Re-running the merge on every
// round an already-fetched entry is dirty (rather than only once) is what
// lets an extra activated late by some other requirer still pull in that
// extra's conditional dependencies.
func (d *Driver) expand(ctx context.Context, q *requirementQueue, entries []*queueEntry, envs []pep508.Environment) error {
	toFetch := make([]*queueEntry, 0, len(entries))
	for _, e := range entries {
		if !e.MetadataFetched {
			toFetch = append(toFetch, e)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxFetchConcurrency)
	for _, e := range toFetch {
		e := e
		g.Go(func() error {
			md, err := d.metadata.Fetch(gctx, e.Name, e.Version)
			if err != nil {
				return err
			}
			reqs, err := md.ParsedRequirements()
			if err != nil {
				return fmt.Errorf("resolve: parsing requires_dist of %s %s: %w", e.Name, e.Version, err)
			}
			e.ParsedReqs = reqs
			e.RequiresPython = md.RequiresPython
			e.MetadataFetched = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, e := range entries {
		envSubset := pruneByRequiresPython(e.EnvSubset, envs, e.RequiresPython, d.cfg.Logger, e.Name)
		if e.EnvSubset.any() && !envSubset.any() {
			return &NoCompatibleVersionError{
				Name:          e.Name,
				Specifiers:    e.Specifiers,
				PythonReasons: []string{fmt.Sprintf("%s: requires_python %q excludes every target environment that needs it", e.Version, e.RequiresPython)},
			}
		}
		if !envSubset.any() {
			continue
		}
		activeExtras := make(map[string]bool, len(e.Extras))
		for x := range e.Extras {
			activeExtras[string(x)] = true
		}
		for _, req := range e.ParsedReqs {
			if err := d.mergeRequirement(q, e.Name, req, envs, envSubset, activeExtras); err != nil {
				return err
			}
		}
	}
	return nil
}

// pruneTargetsByRequiresPython implements the root requires-python
// supplemented feature: before resolution starts, drop every target
// environment the root project itself cannot run under, the same way
// original_source/resolve_prototype/resolve.py's resolve() is handed an
// already-filtered python_versions list. Unlike pruneByRequiresPython
// (which narrows a single already-resolved dependency's applicable
// environment subset using that dependency's own requires_python), this
// operates on Config.RequiresPython — the root's own constraint — and
// removes environments from the run entirely rather than merely marking a
// package inapplicable to them.
func (d *Driver) pruneTargetsByRequiresPython(targets []TargetEnvironment) ([]TargetEnvironment, error) {
	if d.cfg.RequiresPython == "" {
		return targets, nil
	}
	specs, err := pep440.ParseSpecifiers(d.cfg.RequiresPython)
	if err != nil {
		return nil, fmt.Errorf("resolve: invalid requires-python %q: %w", d.cfg.RequiresPython, err)
	}
	out := make([]TargetEnvironment, 0, len(targets))
	for _, te := range targets {
		v, err := pep440.Parse(te.Env.PythonVersion)
		if err != nil {
			out = append(out, te)
			continue
		}
		if !specs.Matches(v, true) {
			d.cfg.Logger.Warn("target environment excluded by the project's own requires-python before resolution started",
				"environment", te.ID, "requires_python", d.cfg.RequiresPython, "python_version", te.Env.PythonVersion)
			continue
		}
		out = append(out, te)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolve: requires-python %q excludes every target environment", d.cfg.RequiresPython)
	}
	return out, nil
}

// pruneByRequiresPython narrows subset to the target environments whose
// python_version actually satisfies requiresPython, logging when a package
// turns out to be unusable on an environment that asked for it. Malformed
// or absent requires_python leaves subset untouched.
func pruneByRequiresPython(envSubset subset, envs []pep508.Environment, requiresPython string, logger *log.Logger, name PackageName) subset {
	if requiresPython == "" {
		return envSubset
	}
	specs, err := pep440.ParseSpecifiers(requiresPython)
	if err != nil {
		return envSubset
	}
	out := make(subset, len(envSubset))
	copy(out, envSubset)
	for i, env := range envs {
		if !out[i] {
			continue
		}
		v, err := pep440.Parse(env.PythonVersion)
		if err != nil {
			continue
		}
		if !specs.Matches(v, true) {
			out[i] = false
			logger.Warn("package requires a Python version this target environment doesn't have",
				"name", name, "requires_python", requiresPython, "environment", env.PythonVersion)
		}
	}
	return out
}

// mergeRequirement implements C1+C2+C5: canonicalize req's name, evaluate
// its marker across envs (restricted to availableSubset and the extras
// active on the requiring package), and fold the surviving portion into the
// queue.
func (d *Driver) mergeRequirement(q *requirementQueue, from PackageName, req pep508.Requirement, envs []pep508.Environment, availableSubset subset, activeExtras map[string]bool) error {
	applicability, matches := req.EvalAcrossEnvironments(envs, activeExtras)
	if applicability == pep508.None {
		return nil
	}
	reqSubset := subset(matches).and(availableSubset)
	if !reqSubset.any() {
		return nil
	}
	name := CanonicalName(req.Name)
	extras := make([]Extra, len(req.Extras))
	for i, x := range req.Extras {
		extras[i] = CanonicalExtra(x)
	}
	q.merge(name, req.Specifiers, req.SourceURL, extras, requirementEdge{From: from}, reqSubset)
	return nil
}

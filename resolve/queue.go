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
	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
)

// requirementEdge records which package required another one; the
// activated extra, if any, is tracked on the target entry's Extras set
// instead, since a single edge can request several extras at once.
type requirementEdge struct {
	From PackageName
}

// queueEntry accumulates everything known about one package across every
// requirement discovered on it so far. Merging is monotonic: extras only
// ever get added, specifiers only ever get more restrictive, and the
// environment subset only ever grows — nothing is ever retracted, which is
// what makes the single-assignment, no-backtracking model work.
type queueEntry struct {
	Name PackageName

	Extras     map[Extra]bool
	Specifiers pep440.Specifiers
	// SourceURL, if set, is a direct-reference requirement's URL; version
	// selection is skipped entirely for such a package.
	SourceURL string
	EnvSubset subset
	Edges     []requirementEdge

	Dirty    bool
	Resolved bool
	Version  pep440.Version

	// MetadataFetched, ParsedReqs and RequiresPython cache the one-time,
	// network-bound part of expansion (C4). Re-running expansion after a
	// later round activates a new extra on an already-resolved package
	// costs nothing but a re-evaluation of these already-parsed
	// requirements against the current extras/environment subset.
	MetadataFetched bool
	ParsedReqs      []pep508.Requirement
	RequiresPython  string
}

// requirementQueue is driven exclusively from the resolution driver's main
// goroutine; nothing here needs its own locking.
type requirementQueue struct {
	entries map[PackageName]*queueEntry
	order   []PackageName
	numEnvs int
}

func newRequirementQueue(numEnvs int) *requirementQueue {
	return &requirementQueue{entries: make(map[PackageName]*queueEntry), numEnvs: numEnvs}
}

// merge folds one requirement discovered on `from` (the empty PackageName
// for a root requirement) into the queue, creating the entry if needed, and
// returns the entry. It marks the entry Dirty when the merge changed
// anything that requires re-processing.
func (q *requirementQueue) merge(name PackageName, specifiers pep440.Specifiers, sourceURL string, extras []Extra, edge requirementEdge, envs subset) *queueEntry {
	e, ok := q.entries[name]
	if !ok {
		e = &queueEntry{
			Name:       name,
			Extras:     make(map[Extra]bool),
			SourceURL:  sourceURL,
			EnvSubset:  emptySubset(q.numEnvs),
			Specifiers: nil,
		}
		q.entries[name] = e
		q.order = append(q.order, name)
	}

	changed := false
	if !hasEdge(e.Edges, edge) {
		e.Edges = append(e.Edges, edge)
		changed = true
	}
	for _, x := range extras {
		if !e.Extras[x] {
			e.Extras[x] = true
			changed = true
		}
	}
	if len(specifiers) > 0 {
		before := len(e.Specifiers)
		e.Specifiers = e.Specifiers.Intersect(specifiers)
		if len(e.Specifiers) != before {
			changed = true
		}
	}
	if sourceURL != "" && e.SourceURL == "" {
		e.SourceURL = sourceURL
		changed = true
	}
	for i, want := range envs {
		if want && !e.EnvSubset[i] {
			e.EnvSubset[i] = true
			changed = true
		}
	}
	if changed {
		e.Dirty = true
	}
	return e
}

func hasEdge(edges []requirementEdge, e requirementEdge) bool {
	for _, existing := range edges {
		if existing == e {
			return true
		}
	}
	return false
}

// dirty returns entries needing (re)processing this round, in deterministic
// insertion order.
func (q *requirementQueue) dirty() []*queueEntry {
	var out []*queueEntry
	for _, name := range q.order {
		if e := q.entries[name]; e.Dirty {
			out = append(out, e)
		}
	}
	return out
}

func (q *requirementQueue) get(name PackageName) (*queueEntry, bool) {
	e, ok := q.entries[name]
	return e, ok
}

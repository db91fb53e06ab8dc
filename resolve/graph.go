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
	"sort"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/registry"
)

// Node is one resolved package in the solution graph.
type Node struct {
	Name    PackageName
	Version pep440.Version
	Extras  []Extra
	// SourceURL is set instead of Version for direct-reference requirements.
	SourceURL string
	// SelectedFile is the release file version selection settled on for
	// this node — a wheel over a sdist, "any"-platform over a
	// platform-specific one — unset for a direct-URL node.
	SelectedFile registry.File
	// Applicability records whether this node is needed in every target
	// environment, none (meaning it shouldn't be in the graph at all), or
	// only a mixed subset of them — e.g. a marker like
	// `sys_platform == "win32"` pulled in on Linux-and-Windows resolution.
	Applicability Applicability
}

// Graph is the solved dependency graph: one Node per resolved package, plus
// the edges that led to each one.
type Graph struct {
	Nodes map[PackageName]Node
	Edges map[PackageName][]requirementEdge
}

func newGraph() *Graph {
	return &Graph{Nodes: make(map[PackageName]Node), Edges: make(map[PackageName][]requirementEdge)}
}

// LockEntry is one line of a resolved, installable set: a package pinned to
// exactly one version (or direct URL), independent of how many requirers
// led to it.
type LockEntry struct {
	Name      string
	Version   string
	SourceURL string
	// Filename is the selected release file's name, unset for a
	// direct-URL entry.
	Filename string
	Extras   []string
	// RequiredBy lists, for diagnostics, every package that depends on this
	// entry (or "" for a root requirement).
	RequiredBy []string
	// Applicability is "all", "none", or "mixed" — see Node.Applicability.
	Applicability string
}

// ToLockfileView projects the solution graph into a stable, sorted list
// suitable for writing out as a lockfile — the resolver's actual visitation
// order depends on network timing, so nothing downstream should depend on
// it.
func (g *Graph) ToLockfileView() []LockEntry {
	names := make([]PackageName, 0, len(g.Nodes))
	for n := range g.Nodes {
		if n == rootPackage {
			continue
		}
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	out := make([]LockEntry, 0, len(names))
	for _, n := range names {
		node := g.Nodes[n]
		entry := LockEntry{Name: string(n), SourceURL: node.SourceURL, Applicability: node.Applicability.String()}
		if node.SourceURL == "" {
			entry.Version = node.Version.String()
			entry.Filename = node.SelectedFile.Filename
		}
		for _, x := range node.Extras {
			entry.Extras = append(entry.Extras, string(x))
		}
		sort.Strings(entry.Extras)

		seen := make(map[string]bool)
		for _, e := range g.Edges[n] {
			from := string(e.From)
			if !seen[from] {
				seen[from] = true
				entry.RequiredBy = append(entry.RequiredBy, from)
			}
		}
		sort.Strings(entry.RequiredBy)
		out = append(out, entry)
	}
	return out
}

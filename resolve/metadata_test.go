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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/resolve/internal/resolvetest"
)

// TestResolveTierFallbackToPerFileMetadata exercises spec.md's S4 scenario:
// the registry's release JSON carries no requires_dist (simulated here via
// Release.NoReleaseJSON, "missing or empty"), so the provider falls
// through to tier 2 (PEP 658/wheel METADATA), which does carry one. "bar"
// must end up in the resolved graph, and the fallback must be visible in
// the diagnostic log.
func TestResolveTierFallbackToPerFileMetadata(t *testing.T) {
	u := resolvetest.New().
		Add("pkg", resolvetest.Release{
			Version:          "1.2.3",
			NoReleaseJSON:    true,
			FileRequiresDist: []string{"bar>=1"},
		}).
		Add("bar", resolvetest.Release{Version: "1.0.0"})

	var logBuf bytes.Buffer
	logger := log.New(&logBuf)
	logger.SetLevel(log.DebugLevel)

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
		Logger:       logger,
	})

	g, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "pkg")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := lockMap(g)
	if got["pkg"] != "1.2.3" {
		t.Errorf("pkg = %q, want 1.2.3", got["pkg"])
	}
	if _, ok := got["bar"]; !ok {
		t.Errorf("lockMap = %v, want bar present (pulled in by pkg's tier-2 requires_dist)", got)
	}
	if !strings.Contains(logBuf.String(), "tier") {
		t.Errorf("expected the diagnostic log to mark pkg as resolved via a fallback tier, got:\n%s", logBuf.String())
	}
}

// TestResolveMetadataDivergenceWarning covers the reconciliation check
// grounded on original_source/resolve_prototype/resolve.py's
// query_wheel_metadata: when release JSON exists but reports no
// requires_dist and the wheel's own METADATA (tier 2) reports some, that
// disagreement is logged.
func TestResolveMetadataDivergenceWarning(t *testing.T) {
	u := resolvetest.New().
		Add("pkg", resolvetest.Release{
			Version:          "1.2.3",
			FileRequiresDist: []string{"bar>=1"},
		}).
		Add("bar", resolvetest.Release{Version: "1.0.0"})

	var logBuf bytes.Buffer
	logger := log.New(&logBuf)
	logger.SetLevel(log.DebugLevel)

	d := NewDriver(Config{
		Registry:     u,
		Environments: []TargetEnvironment{{ID: "linux", Env: pep508.CPythonLinux64("3.12", "3.12.1")}},
		Logger:       logger,
	})

	if _, err := d.Resolve(context.Background(), []pep508.Requirement{mustReq(t, "pkg")}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(logBuf.String(), "disagree") {
		t.Errorf("expected the diagnostic log to warn about release JSON/wheel metadata disagreement, got:\n%s", logBuf.String())
	}
}

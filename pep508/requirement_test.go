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

package pep508

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRequirementBasic(t *testing.T) {
	tests := []struct {
		in         string
		name       string
		extras     []string
		numSpecs   int
		hasMarker  bool
		sourceURL  string
	}{
		{in: "requests", name: "requests"},
		{in: "Requests[Socks]>=2.20,<3", name: "requests", extras: []string{"socks"}, numSpecs: 2},
		{in: `requests ; python_version >= "3.7"`, name: "requests", hasMarker: true},
		{in: "requests @ https://example.org/requests-2.0.tar.gz", name: "requests", sourceURL: "https://example.org/requests-2.0.tar.gz"},
	}
	for _, tt := range tests {
		req, err := ParseRequirement(tt.in)
		if err != nil {
			t.Errorf("ParseRequirement(%q): %v", tt.in, err)
			continue
		}
		if req.Name != tt.name {
			t.Errorf("ParseRequirement(%q).Name = %q, want %q", tt.in, req.Name, tt.name)
		}
		if diff := cmp.Diff(tt.extras, req.Extras); diff != "" {
			t.Errorf("ParseRequirement(%q).Extras mismatch (-want +got):\n%s", tt.in, diff)
		}
		if len(req.Specifiers) != tt.numSpecs {
			t.Errorf("ParseRequirement(%q).Specifiers has %d entries, want %d", tt.in, len(req.Specifiers), tt.numSpecs)
		}
		if (req.Marker != nil) != tt.hasMarker {
			t.Errorf("ParseRequirement(%q) marker present = %v, want %v", tt.in, req.Marker != nil, tt.hasMarker)
		}
		if req.SourceURL != tt.sourceURL {
			t.Errorf("ParseRequirement(%q).SourceURL = %q, want %q", tt.in, req.SourceURL, tt.sourceURL)
		}
	}
}

func TestParseRequirementRejectsEmpty(t *testing.T) {
	if _, err := ParseRequirement("   "); err == nil {
		t.Error("ParseRequirement(\"   \") = nil error, want an error")
	}
}

func TestEvalAcrossEnvironmentsNilMarkerIsAll(t *testing.T) {
	req, err := ParseRequirement("requests")
	if err != nil {
		t.Fatal(err)
	}
	envs := []Environment{CPythonLinux64("3.12", "3.12.1"), CPythonWindows64("3.12", "3.12.1")}
	applicability, matches := req.EvalAcrossEnvironments(envs, nil)
	if applicability != All {
		t.Errorf("applicability = %v, want All", applicability)
	}
	for i, m := range matches {
		if !m {
			t.Errorf("matches[%d] = false, want true", i)
		}
	}
}

func TestEvalAcrossEnvironmentsMixed(t *testing.T) {
	req, err := ParseRequirement(`requests ; sys_platform == "win32"`)
	if err != nil {
		t.Fatal(err)
	}
	linux := CPythonLinux64("3.12", "3.12.1")
	windows := CPythonWindows64("3.12", "3.12.1")
	applicability, matches := req.EvalAcrossEnvironments([]Environment{linux, windows}, nil)
	if applicability != Mixed {
		t.Errorf("applicability = %v, want Mixed", applicability)
	}
	if diff := cmp.Diff([]bool{false, true}, matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestEvalAcrossEnvironmentsExtra(t *testing.T) {
	req, err := ParseRequirement(`requests ; extra == "speedups"`)
	if err != nil {
		t.Fatal(err)
	}
	env := CPythonLinux64("3.12", "3.12.1")

	if applicability, _ := req.EvalAcrossEnvironments([]Environment{env}, nil); applicability != None {
		t.Errorf("without the extra active, applicability = %v, want None", applicability)
	}
	if applicability, _ := req.EvalAcrossEnvironments([]Environment{env}, map[string]bool{"speedups": true}); applicability != All {
		t.Errorf("with the extra active, applicability = %v, want All", applicability)
	}
}

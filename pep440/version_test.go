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

import "testing"

func TestParseAndString(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1.0", "1.0"},
		{"1.0.0", "1.0.0"},
		{"v1.0", "1.0"},
		{"1!1.0", "1!1.0"},
		{"1.0a1", "1.0a1"},
		{"1.0alpha1", "1.0a1"},
		{"1.0b2", "1.0b2"},
		{"1.0rc1", "1.0rc1"},
		{"1.0c1", "1.0rc1"},
		{"1.0.post1", "1.0.post1"},
		{"1.0-1", "1.0.post1"},
		{"1.0.dev1", "1.0.dev1"},
		{"1.0+abc.1", "1.0+abc.1"},
		{"1.0+abc-1", "1.0+abc.1"},
	}
	for _, tt := range tests {
		v, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tt.in, err)
			continue
		}
		if got := v.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1..0", "1.0+", "1.0+_"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	// Ascending order, per PEP 440 example ordering.
	order := []string{
		"1.0.dev0",
		"1.0a1",
		"1.0a1.post1.dev0",
		"1.0a1.post1",
		"1.0b1.dev0",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0+abc",
		"1.0.post1",
		"1.1.dev1",
	}
	var vs []Version
	for _, s := range order {
		vs = append(vs, MustParse(s))
	}
	for i := 1; i < len(vs); i++ {
		if !vs[i-1].Less(vs[i]) {
			t.Errorf("expected %s < %s", order[i-1], order[i])
		}
	}
}

func TestCompareLocalVersionOrdering(t *testing.T) {
	a := MustParse("1.0+abc")
	b := MustParse("1.0+abc.1")
	c := MustParse("1.0+2")
	if !a.Less(b) {
		t.Errorf("expected 1.0+abc < 1.0+abc.1")
	}
	if !b.Less(c) {
		t.Errorf("expected numeric local segments to outrank alphanumeric ones")
	}
}

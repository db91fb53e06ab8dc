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

// Package pep440 implements version parsing, canonicalization and
// comparison for the versioning scheme described by PEP 440.
package pep440

import (
	"fmt"
	"strconv"
	"strings"
)

// preReleaseKind orders the three prerelease spellings PEP 440 recognizes.
type preReleaseKind string

const (
	preAlpha preReleaseKind = "a"
	preBeta  preReleaseKind = "b"
	preRC    preReleaseKind = "rc"
)

// preRelease is the "aN"/"bN"/"rcN" segment of a version.
type preRelease struct {
	kind preReleaseKind
	num  int
}

// Version is a single parsed PEP 440 version.
//
// The zero Version is not meaningful; construct one with Parse.
type Version struct {
	epoch   int
	release []int
	pre     *preRelease
	postNum int
	hasPost bool
	devNum  int
	hasDev  bool
	local   []string // dot-separated local segments, already lower-cased
	orig    string
}

// preStrings maps every spelling PEP 440 allows for a prerelease segment to
// its canonical letter. Longer prefixes are matched first.
var preStrings = []struct {
	text string
	kind preReleaseKind
}{
	{"alpha", preAlpha},
	{"a", preAlpha},
	{"beta", preBeta},
	{"b", preBeta},
	{"preview", preRC},
	{"pre", preRC},
	{"rc", preRC},
	{"c", preRC},
}

var postStrings = []string{"post", "rev", "r"}

// Parse parses a PEP 440 version identifier.
func Parse(s string) (Version, error) {
	v := Version{orig: s}
	input := strings.ToLower(strings.TrimSpace(s))
	input = strings.TrimPrefix(input, "v")

	if bang := strings.IndexByte(input, '!'); bang > 0 {
		e, err := strconv.Atoi(input[:bang])
		if err != nil {
			return Version{}, fmt.Errorf("pep440: invalid epoch in %q: %w", s, err)
		}
		v.epoch = e
		input = input[bang+1:]
	}

	i := 0
	for i < len(input) && (isDigit(input[i]) || (input[i] == '.' && i+1 < len(input) && isDigit(input[i+1]))) {
		i++
	}
	relPart := input[:i]
	input = input[i:]
	if relPart == "" {
		return Version{}, fmt.Errorf("pep440: no release segment in %q", s)
	}
	for _, seg := range strings.Split(relPart, ".") {
		if seg == "" {
			return Version{}, fmt.Errorf("pep440: empty release segment in %q", s)
		}
		n, err := strconv.Atoi(seg)
		if err != nil {
			return Version{}, fmt.Errorf("pep440: invalid release segment in %q: %w", s, err)
		}
		v.release = append(v.release, n)
	}

	var err error
	input, err = v.parsePre(input, s)
	if err != nil {
		return Version{}, err
	}
	input, err = v.parsePost(input, s)
	if err != nil {
		return Version{}, err
	}
	input, err = v.parseDev(input, s)
	if err != nil {
		return Version{}, err
	}
	input, err = v.parseLocal(input, s)
	if err != nil {
		return Version{}, err
	}
	if input != "" {
		return Version{}, fmt.Errorf("pep440: trailing garbage %q in %q", input, s)
	}
	return v, nil
}

// MustParse is Parse for tests and constants; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func trimSeparator(s string) string {
	if len(s) > 0 && (s[0] == '.' || s[0] == '-' || s[0] == '_') {
		return s[1:]
	}
	return s
}

func takeNumber(s string) (int, string) {
	s = trimSeparator(s)
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	n, _ := strconv.Atoi(s[:i])
	return n, s[i:]
}

func (v *Version) parsePre(input, orig string) (string, error) {
	if input == "" {
		return input, nil
	}
	trimmed := trimSeparator(input)
	for _, s := range preStrings {
		if strings.HasPrefix(trimmed, s.text) {
			rest := trimmed[len(s.text):]
			num, rest := takeNumber(rest)
			v.pre = &preRelease{kind: s.kind, num: num}
			return rest, nil
		}
	}
	return input, nil
}

func (v *Version) parsePost(input, orig string) (string, error) {
	if input == "" {
		return input, nil
	}
	dashForm := input[0] == '-'
	trimmed := trimSeparator(input)
	matched := 0
	for _, p := range postStrings {
		if strings.HasPrefix(trimmed, p) {
			matched = len(p)
			break
		}
	}
	if matched == 0 {
		// "-N" is shorthand for ".postN".
		if !dashForm || trimmed == "" || !isDigit(trimmed[0]) {
			return input, nil
		}
		num, rest := takeNumber(input) // input[0] == '-', consumed by trimSeparator inside
		v.hasPost = true
		v.postNum = num
		return rest, nil
	}
	num, rest := takeNumber(trimmed[matched:])
	v.hasPost = true
	v.postNum = num
	return rest, nil
}

func (v *Version) parseDev(input, orig string) (string, error) {
	if input == "" {
		return input, nil
	}
	trimmed := trimSeparator(input)
	if !strings.HasPrefix(trimmed, "dev") {
		return input, nil
	}
	num, rest := takeNumber(trimmed[3:])
	v.hasDev = true
	v.devNum = num
	return rest, nil
}

func (v *Version) parseLocal(input, orig string) (string, error) {
	if input == "" {
		return input, nil
	}
	if input[0] != '+' || len(input) < 2 {
		return input, fmt.Errorf("pep440: invalid trailing text in %q", orig)
	}
	local := input[1:]
	local = strings.NewReplacer("-", ".", "_", ".").Replace(local)
	segments := strings.Split(local, ".")
	for _, seg := range segments {
		if seg == "" || !isAlphanumeric(seg) {
			return input, fmt.Errorf("pep440: invalid local version identifier in %q", orig)
		}
	}
	v.local = segments
	return "", nil
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isDigit(c) && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// String renders the canonical PEP 440 form of v.
func (v Version) String() string {
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	for i, n := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", n)
	}
	if v.pre != nil {
		fmt.Fprintf(&b, "%s%d", v.pre.kind, v.pre.num)
	}
	if v.hasPost {
		fmt.Fprintf(&b, ".post%d", v.postNum)
	}
	if v.hasDev {
		fmt.Fprintf(&b, ".dev%d", v.devNum)
	}
	if len(v.local) > 0 {
		fmt.Fprintf(&b, "+%s", strings.Join(v.local, "."))
	}
	return b.String()
}

// Original returns the exact string Parse was called with.
func (v Version) Original() string { return v.orig }

// Release returns the numeric release segments (e.g. [1, 2, 3] for "1.2.3").
func (v Version) Release() []int {
	out := make([]int, len(v.release))
	copy(out, v.release)
	return out
}

// IsPrerelease reports whether v carries a pre-release or dev segment, the
// two segment kinds pip treats as "prerelease" for admission purposes.
func (v Version) IsPrerelease() bool { return v.pre != nil || v.hasDev }

// IsDevRelease reports whether v carries a .devN segment.
func (v Version) IsDevRelease() bool { return v.hasDev }

// IsPostRelease reports whether v carries a .postN segment.
func (v Version) IsPostRelease() bool { return v.hasPost }

// IsLocal reports whether v carries a local version segment ("+...").
func (v Version) IsLocal() bool { return len(v.local) > 0 }

// releaseAt returns the i'th release component, or 0 if v's release is
// shorter than i, so releases of unequal length compare correctly.
func releaseAt(rel []int, i int) int {
	if i < len(rel) {
		return rel[i]
	}
	return 0
}

func sgn(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func kindRank(k preReleaseKind) int {
	switch k {
	case preAlpha:
		return 0
	case preBeta:
		return 1
	case preRC:
		return 2
	}
	return 0
}

// comparePre compares the pre-release segment using the same three-way
// sentinel PEP 440's reference comparator uses: a dev-only release (no pre,
// no post) sorts below every real pre-release, while every other pre-less
// release (including one with a post segment) sorts above every real
// pre-release.
func comparePre(v, other Version) int {
	vCat, oCat := preCategory(v), preCategory(other)
	if vCat != oCat {
		return sgn(vCat, oCat)
	}
	if vCat != 1 {
		return 0
	}
	if v.pre.kind != other.pre.kind {
		return sgn(kindRank(v.pre.kind), kindRank(other.pre.kind))
	}
	return sgn(v.pre.num, other.pre.num)
}

func preCategory(v Version) int {
	switch {
	case v.pre != nil:
		return 1
	case !v.hasPost && v.hasDev:
		return 0
	default:
		return 2
	}
}

// comparePost compares the post-release segment: absence sorts below any
// postN, since "1.0" < "1.0.post1".
func comparePost(v, other Version) int {
	switch {
	case v.hasPost && other.hasPost:
		return sgn(v.postNum, other.postNum)
	case v.hasPost != other.hasPost:
		if v.hasPost {
			return 1
		}
		return -1
	default:
		return 0
	}
}

// compareDev compares the dev-release segment: presence sorts below
// absence, since "1.0.dev1" < "1.0".
func compareDev(v, other Version) int {
	switch {
	case v.hasDev && other.hasDev:
		return sgn(v.devNum, other.devNum)
	case v.hasDev != other.hasDev:
		if v.hasDev {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// compareLocalSegment compares the local-version segment: absence sorts
// below any local segment, since a public version precedes its own local
// builds.
func compareLocalSegment(v, other Version) int {
	switch {
	case len(v.local) == 0 && len(other.local) == 0:
		return 0
	case len(v.local) == 0:
		return -1
	case len(other.local) == 0:
		return 1
	default:
		return compareLocal(v.local, other.local)
	}
}

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than
// other, following PEP 440's ordering. Release, pre-release, post-release,
// dev-release and local segments are independent comparison keys — a
// version may carry several of them at once (e.g. "1.0a1.post1.dev1"), so
// each is compared on its own rather than picking one mutually-exclusive
// category.
func (v Version) Compare(other Version) int {
	if s := sgn(v.epoch, other.epoch); s != 0 {
		return s
	}
	n := len(v.release)
	if len(other.release) > n {
		n = len(other.release)
	}
	for i := 0; i < n; i++ {
		if s := sgn(releaseAt(v.release, i), releaseAt(other.release, i)); s != 0 {
			return s
		}
	}
	if s := comparePre(v, other); s != 0 {
		return s
	}
	if s := comparePost(v, other); s != 0 {
		return s
	}
	if s := compareDev(v, other); s != 0 {
		return s
	}
	return compareLocalSegment(v, other)
}

// compareLocal implements PEP 440's local-version comparison: absence of a
// local segment sorts lowest, and shared segments compare elementwise with
// numeric segments always outranking alphanumeric ones.
func compareLocal(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return -1
	}
	if len(b) == 0 {
		return 1
	}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var ea, eb string
		if i < len(a) {
			ea = a[i]
		}
		if i < len(b) {
			eb = b[i]
		}
		if ea == eb {
			continue
		}
		aNum, aIsNum := asNumber(ea)
		bNum, bIsNum := asNumber(eb)
		switch {
		case aIsNum && bIsNum:
			if s := sgn(aNum, bNum); s != 0 {
				return s
			}
		case aIsNum != bIsNum:
			if aIsNum {
				return 1
			}
			return -1
		default:
			if ea < eb {
				return -1
			}
			return 1
		}
	}
	return sgn(len(a), len(b))
}

func asNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
	}
	n, _ := strconv.Atoi(s)
	return n, true
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other compare equal under PEP 440 ordering.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

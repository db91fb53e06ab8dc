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

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
)

// simpleIndexResponse is the PEP 691 JSON simple-index response for one
// project.
type simpleIndexResponse struct {
	Meta struct {
		APIVersion string `json:"api-version"`
	} `json:"meta"`
	Name  string             `json:"name"`
	Files []simpleIndexEntry `json:"files"`
}

type simpleIndexEntry struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Yanked         yankedField       `json:"yanked"`
	RequiresPython string            `json:"requires-python"`
	CoreMetadata   json.RawMessage   `json:"core-metadata"`
	DataDistInfo   json.RawMessage   `json:"data-dist-info-metadata"`
	Hashes         map[string]string `json:"hashes"`
}

// yankedField decodes PEP 691's "yanked" field, which is either false or a
// non-empty reason string.
type yankedField struct {
	Yanked bool
	Reason string
}

func (y *yankedField) UnmarshalJSON(b []byte) error {
	var asBool bool
	if err := json.Unmarshal(b, &asBool); err == nil {
		y.Yanked = asBool
		return nil
	}
	var asString string
	if err := json.Unmarshal(b, &asString); err != nil {
		return err
	}
	y.Yanked = true
	y.Reason = asString
	return nil
}

// MarshalJSON writes y back in PEP 691 form: false, the reason string, or
// true for a yanked file with no reason.
func (y yankedField) MarshalJSON() ([]byte, error) {
	if !y.Yanked {
		return []byte("false"), nil
	}
	if y.Reason == "" {
		return []byte("true"), nil
	}
	return json.Marshal(y.Reason)
}

func hasMetadataFlag(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	// A non-boolean value (an object of hash-algorithm -> digest) also
	// means "yes, metadata is available".
	return string(raw) != "null"
}

// fetchIndex retrieves and parses the simple-index page for name, single
// flighted so concurrent requesters of the same package share one fetch.
func (h *HTTPRegistry) fetchIndex(ctx context.Context, name string) (simpleIndexResponse, error) {
	canon := pep508.CanonicalName(name)
	v, err, _ := h.sf.Do("index:"+canon, func() (any, error) {
		url := h.opts.BaseURL + canon + "/"
		resp, err := h.get(ctx, url, map[string]string{
			"accept": "application/vnd.pypi.simple.v1+json",
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return simpleIndexResponse{}, fmt.Errorf("registry: package %q not found", canon)
		}
		if resp.StatusCode != http.StatusOK {
			closeAndDiscard(resp.Body)
			return nil, fmt.Errorf("registry: unexpected status %d for %s", resp.StatusCode, url)
		}
		var parsed simpleIndexResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("registry: decoding simple index for %q: %w", canon, err)
		}
		return parsed, nil
	})
	if err != nil {
		return simpleIndexResponse{}, err
	}
	return v.(simpleIndexResponse), nil
}

func toFile(e simpleIndexEntry) File {
	f := File{
		Filename:       e.Filename,
		URL:            e.URL,
		Yanked:         e.Yanked.Yanked,
		YankedReason:   e.Yanked.Reason,
		RequiresPython: e.RequiresPython,
		IsWheel:        strings.HasSuffix(e.Filename, ".whl"),
	}
	f.IsSdist = !f.IsWheel && (strings.HasSuffix(e.Filename, ".tar.gz") ||
		strings.HasSuffix(e.Filename, ".zip") || strings.HasSuffix(e.Filename, ".tgz"))
	if hasMetadataFlag(e.CoreMetadata) || hasMetadataFlag(e.DataDistInfo) {
		f.MetadataURL = e.URL + ".metadata"
	}
	return f
}

// ListVersions implements Registry.
func (h *HTTPRegistry) ListVersions(ctx context.Context, name string) ([]pep440.Version, error) {
	canon := pep508.CanonicalName(name)
	if vs, ok := h.versionCache.Get(canon); ok {
		return vs, nil
	}
	idx, err := h.fetchIndex(ctx, canon)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var versions []pep440.Version
	byVersion := map[string][]File{}
	for _, e := range idx.Files {
		// A yanked file is still a real, listable version — PEP 592 makes
		// it invisible to open-ended resolution, not to the index. Dropping
		// it here would make File.Yanked unreachable and defeat the
		// selector's pinned-yank exemption (selector.go's installableFiles).
		nv, ver, err := versionFromFilename(canon, e.Filename)
		if err != nil {
			h.opts.Logger.Debug("ignoring file with unrecognized name", "filename", e.Filename, "err", err)
			continue
		}
		_ = nv
		v, err := pep440.Parse(ver)
		if err != nil {
			h.opts.Logger.Debug("ignoring file with invalid version", "filename", e.Filename, "version", ver)
			continue
		}
		key := v.String()
		if !seen[key] {
			seen[key] = true
			versions = append(versions, v)
		}
		byVersion[key] = append(byVersion[key], toFile(e))
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })
	h.versionCache.Put(canon, versions)
	for k, files := range byVersion {
		h.filesCache.Put(canon+"@"+k, files)
	}
	return versions, nil
}

// ListFiles implements Registry.
func (h *HTTPRegistry) ListFiles(ctx context.Context, name string, version pep440.Version) ([]File, error) {
	canon := pep508.CanonicalName(name)
	key := canon + "@" + version.String()
	if files, ok := h.filesCache.Get(key); ok {
		return files, nil
	}
	// Populating the version cache also populates the per-version file
	// cache, so fetch the index if we haven't yet.
	if _, err := h.ListVersions(ctx, canon); err != nil {
		return nil, err
	}
	files, _ := h.filesCache.Get(key)
	return files, nil
}

// versionFromFilename extracts the version portion of a release filename,
// working for both wheels (structured name-version-...-tags.whl) and
// sdists (name-version.tar.gz, format not standardized).
func versionFromFilename(canonName, filename string) (name, version string, err error) {
	if strings.HasSuffix(filename, ".whl") {
		parts := strings.Split(strings.TrimSuffix(filename, ".whl"), "-")
		if len(parts) < 2 {
			return "", "", fmt.Errorf("registry: malformed wheel filename %q", filename)
		}
		return parts[0], parts[1], nil
	}
	nameVersion := strings.TrimSuffix(filename, ".zip")
	nameVersion = strings.TrimSuffix(nameVersion, ".tar.gz")
	nameVersion = strings.TrimSuffix(nameVersion, ".tgz")
	for i, r := range nameVersion {
		if r != '-' {
			continue
		}
		if pep508.CanonicalName(nameVersion[:i]) == canonName {
			return nameVersion[:i], nameVersion[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("registry: cannot split filename %q for package %q", filename, canonName)
}

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

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/pypimeta"
)

// releaseJSONResponse is the subset of PyPI's per-release JSON API
// (`/pypi/<name>/<version>/json`) the resolver reads.
type releaseJSONResponse struct {
	Info struct {
		Name            string   `json:"name"`
		Version         string   `json:"version"`
		Summary         string   `json:"summary"`
		HomePage        string   `json:"home_page"`
		License         string   `json:"license"`
		Classifiers     []string `json:"classifiers"`
		RequiresDist    []string `json:"requires_dist"`
		RequiresPython  string   `json:"requires_python"`
		ProjectURLs     map[string]string `json:"project_urls"`
	} `json:"info"`
}

// FetchReleaseMetadata implements Registry (tier 1).
func (h *HTTPRegistry) FetchReleaseMetadata(ctx context.Context, name string, version pep440.Version) (pypimeta.Metadata, bool, error) {
	canon := pep508.CanonicalName(name)
	key := fmt.Sprintf("releasejson:%s@%s", canon, version.String())
	v, err, _ := h.sf.Do(key, func() (any, error) {
		url := fmt.Sprintf("%s%s/%s/json", h.opts.JSONBaseURL, canon, version.String())
		resp, err := h.get(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return pypimeta.Metadata{}, nil
		}
		if resp.StatusCode != http.StatusOK {
			closeAndDiscard(resp.Body)
			return nil, fmt.Errorf("registry: unexpected status %d fetching release json for %s %s", resp.StatusCode, canon, version)
		}
		var parsed releaseJSONResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("registry: decoding release json for %s %s: %w", canon, version, err)
		}
		return pypimeta.Metadata{
			Name:           parsed.Info.Name,
			Version:        parsed.Info.Version,
			Summary:        parsed.Info.Summary,
			Homepage:       parsed.Info.HomePage,
			License:        parsed.Info.License,
			Classifiers:    parsed.Info.Classifiers,
			RequiresDist:   parsed.Info.RequiresDist,
			RequiresPython: parsed.Info.RequiresPython,
		}, nil
	})
	if err != nil {
		return pypimeta.Metadata{}, false, err
	}
	md := v.(pypimeta.Metadata)
	return md, md.Name != "", nil
}

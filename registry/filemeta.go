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
	"fmt"
	"io"
	"net/http"

	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pypimeta"
)

// FetchFileMetadata implements Registry (tier 2). It prefers PEP 658's
// dedicated ".metadata" file when the index advertised one, and otherwise
// range-reads the wheel's own METADATA member — sdists have no equivalent
// shortcut, so callers should not route sdist Files here.
func (h *HTTPRegistry) FetchFileMetadata(ctx context.Context, name string, version pep440.Version, f File) (pypimeta.Metadata, error) {
	key := "filemeta:" + f.URL
	v, err, _ := h.sf.Do(key, func() (any, error) {
		if f.MetadataURL != "" {
			md, err := h.fetchPEP658Metadata(ctx, f.MetadataURL)
			if err == nil {
				return md, nil
			}
			h.opts.Logger.Warn("PEP 658 metadata fetch failed, falling back to range-read", "url", f.MetadataURL, "err", err)
		}
		if !f.IsWheel {
			return nil, fmt.Errorf("registry: no per-file metadata source for non-wheel %q", f.Filename)
		}
		return h.fetchWheelMetadataByRangeRead(ctx, f)
	})
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	return v.(pypimeta.Metadata), nil
}

func (h *HTTPRegistry) fetchPEP658Metadata(ctx context.Context, url string) (pypimeta.Metadata, error) {
	resp, err := h.get(ctx, url, nil)
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		closeAndDiscard(resp.Body)
		return pypimeta.Metadata{}, fmt.Errorf("registry: GET %s: status %d", url, resp.StatusCode)
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	return pypimeta.ParseMetadata(ctx, string(buf), h.opts.Logger)
}

func (h *HTTPRegistry) fetchWheelMetadataByRangeRead(ctx context.Context, f File) (pypimeta.Metadata, error) {
	rf, err := newRemoteFile(ctx, h.opts.HTTPClient, h.opts.UserAgent, f.URL)
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	return pypimeta.WheelMetadata(ctx, rf, rf.size, h.opts.Logger)
}

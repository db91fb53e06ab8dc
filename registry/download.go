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
)

// OpenFile implements Registry, downloading the full contents of f. It is
// used for the tier-3 sdist-build fallback, where nothing short of the
// whole archive will do.
func (h *HTTPRegistry) OpenFile(ctx context.Context, f File) (io.ReadCloser, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := h.get(ctx, f.URL, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		closeAndDiscard(resp.Body)
		return nil, fmt.Errorf("registry: GET %s: status %d", f.URL, resp.StatusCode)
	}
	return resp.Body, nil
}

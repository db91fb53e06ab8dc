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
	"time"
)

// get performs a rate-limited, retried GET request. It retries on network
// errors and 5xx/429 responses up to opts.MaxRetries times with exponential
// backoff starting at opts.RetryBaseDelay, and treats 404 as a plain, final
// "not found" the caller distinguishes explicitly.
func (h *HTTPRegistry) get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= h.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := h.opts.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			h.opts.Logger.Debug("retrying request", "url", url, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if err := h.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("user-agent", h.opts.UserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := h.opts.HTTPClient.Do(req)
		if err != nil {
			lastErr = &TransientError{Err: err}
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &TransientError{Err: fmt.Errorf("registry: %s: status %d", url, resp.StatusCode)}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// closeAndDiscard drains and closes r, returning an error only if reading
// failed; used so retried requests don't leak connections.
func closeAndDiscard(r io.ReadCloser) error {
	_, err := io.Copy(io.Discard, r)
	cerr := r.Close()
	if err != nil {
		return err
	}
	return cerr
}

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
	"strconv"
)

// remoteFile implements io.ReaderAt by issuing HTTP range requests, letting
// archive/zip read a wheel's central directory and a single METADATA member
// without downloading the whole file. This mirrors what pip itself does
// against range-request-capable indices: most wheels are read almost
// entirely because METADATA lives near the end of the archive, but nothing
// guarantees that, so this is strictly best-effort against the actual
// remote size.
type remoteFile struct {
	ctx    context.Context
	client *http.Client
	url    string
	userAgent string
	size   int64
}

// newRemoteFile issues a HEAD request to learn the file's size and confirm
// range support.
func newRemoteFile(ctx context.Context, client *http.Client, userAgent, url string) (*remoteFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("user-agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: HEAD %s: status %d", url, resp.StatusCode)
	}
	if resp.Header.Get("accept-ranges") != "bytes" {
		return nil, fmt.Errorf("registry: %s does not advertise range-request support", url)
	}
	size, err := strconv.ParseInt(resp.Header.Get("content-length"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: invalid content-length: %w", url, err)
	}
	return &remoteFile{ctx: ctx, client: client, url: url, userAgent: userAgent, size: size}, nil
}

// ReadAt implements io.ReaderAt with a single ranged GET per call.
func (f *remoteFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	if end >= f.size {
		end = f.size - 1
	}
	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("user-agent", f.userAgent)
	req.Header.Set("range", fmt.Sprintf("bytes=%d-%d", off, end))
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("registry: ranged GET %s: status %d", f.url, resp.StatusCode)
	}
	n, err := io.ReadFull(resp.Body, p[:end-off+1])
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}

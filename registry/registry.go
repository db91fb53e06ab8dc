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

// Package registry talks to a PEP 503/691 "simple" PyPI index and its
// associated JSON APIs, providing the tiered metadata sources the resolver
// consumes: release JSON, PEP 658 per-file METADATA, and raw sdist/wheel
// bytes for a last-resort build.
package registry

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"pyresolve.dev/pyresolve/internal/lru"
	"pyresolve.dev/pyresolve/pep440"
	"pyresolve.dev/pyresolve/pypimeta"
)

// File describes one distribution file (wheel or sdist) listed for a
// release, as exposed by the PEP 503/691 simple index.
type File struct {
	Filename       string
	URL            string
	Yanked         bool
	YankedReason   string
	RequiresPython string
	// MetadataURL is set when the index advertises PEP 658 per-file
	// metadata (a "data-dist-info-metadata" / "core-metadata" attribute);
	// empty otherwise.
	MetadataURL string
	IsWheel     bool
	IsSdist     bool
}

// Registry is the external collaborator the resolver drives to fetch
// version lists, per-release/per-file metadata, and distribution archives.
// All methods must be safe for concurrent use, since the resolution driver
// calls them from a bounded worker pool.
type Registry interface {
	// ListVersions returns every published version known for name,
	// including yanked ones (File.Yanked reports which); ascending order
	// not guaranteed.
	ListVersions(ctx context.Context, name string) ([]pep440.Version, error)
	// ListFiles returns the release files (wheels and sdists) published
	// for one version of name.
	ListFiles(ctx context.Context, name string, version pep440.Version) ([]File, error)
	// FetchReleaseMetadata is tier 1: the registry's own release JSON,
	// which on PyPI itself is derived from the most recently uploaded
	// file's metadata and can be absent or partial.
	FetchReleaseMetadata(ctx context.Context, name string, version pep440.Version) (pypimeta.Metadata, bool, error)
	// FetchFileMetadata is tier 2: metadata for one specific file, using
	// PEP 658's per-file ".metadata" endpoint when advertised and falling
	// back to a range-read of the wheel's own METADATA member otherwise.
	FetchFileMetadata(ctx context.Context, name string, version pep440.Version, f File) (pypimeta.Metadata, error)
	// OpenFile returns the full contents of a release file, used for the
	// tier-3 sdist build fallback.
	OpenFile(ctx context.Context, f File) (io.ReadCloser, error)
}

// TransientError wraps an error the caller should retry (network failures,
// 5xx responses, 429 responses).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Options configures an HTTPRegistry.
type Options struct {
	// BaseURL is the root of a PEP 503 simple index, e.g.
	// "https://pypi.org/simple/". Must end in "/".
	BaseURL string
	// JSONBaseURL is the root of the release-JSON API, e.g.
	// "https://pypi.org/pypi/". Must end in "/".
	JSONBaseURL string
	HTTPClient  *http.Client
	// RequestsPerSecond bounds the steady-state request rate; Burst
	// bounds how many requests can fire before the limiter engages.
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	Logger            *log.Logger
	UserAgent         string
}

func (o *Options) setDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.UserAgent == "" {
		o.UserAgent = "pyresolve/1"
	}
}

// HTTPRegistry is the production Registry implementation, backed by a
// PEP 503/691 simple index and PyPI's release-JSON API.
type HTTPRegistry struct {
	opts    Options
	limiter *rate.Limiter
	sf      singleflight.Group

	versionCache *lru.Cache[string, []pep440.Version]
	filesCache   *lru.Cache[string, []File]
}

// New constructs an HTTPRegistry.
func New(opts Options) *HTTPRegistry {
	opts.setDefaults()
	return &HTTPRegistry{
		opts:         opts,
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		versionCache: lru.New[string, []pep440.Version](512),
		filesCache:   lru.New[string, []File](2048),
	}
}

var _ Registry = (*HTTPRegistry)(nil)

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

// Package buildbackend invokes the PEP 517 build-backend hooks needed to
// extract metadata from an sdist that ships no usable METADATA: the last,
// most expensive tier of the metadata provider.
package buildbackend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"

	"pyresolve.dev/pyresolve/pypimeta"
)

// Runner invokes PEP 517 build-backend hooks against an already-unpacked
// source distribution directory.
type Runner interface {
	// PrepareMetadata runs the "prepare_metadata_for_build_wheel" hook (or
	// falls back to a full "build_wheel" if the backend doesn't implement
	// the metadata-only hook) and returns the resulting core metadata.
	PrepareMetadata(ctx context.Context, sourceDir string) (pypimeta.Metadata, error)
}

// BuildFailure reports a failed hook invocation, keeping the backend's
// stdout/stderr for diagnostics.
type BuildFailure struct {
	SourceDir string
	Stdout    string
	Stderr    string
	Err       error
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("buildbackend: build failed in %s: %v\n--- stdout ---\n%s\n--- stderr ---\n%s",
		e.SourceDir, e.Err, e.Stdout, e.Stderr)
}
func (e *BuildFailure) Unwrap() error { return e.Err }

// SubprocessRunner invokes PEP 517 hooks by shelling out to a Python
// interpreter that has the source directory's declared build backend (from
// pyproject.toml's [build-system], defaulting to setuptools) importable.
// This is inherently a process boundary — there is no way to run PEP 517
// hooks except by executing the Python they're written in.
type SubprocessRunner struct {
	// PythonExecutable is the interpreter to invoke, e.g. "python3".
	PythonExecutable string
	// Logger receives parse diagnostics for the extracted METADATA file.
	// Nil discards them.
	Logger *log.Logger
}

var _ Runner = (*SubprocessRunner)(nil)

// prepareMetadataScript is a minimal PEP 517 driver: it loads the backend
// named in pyproject.toml (default setuptools.build_meta) and calls
// prepare_metadata_for_build_wheel, or, when the backend lacks that hook,
// build_wheel followed by extracting the wheel's .dist-info/METADATA,
// printing the resulting .dist-info directory path on the last line of
// stdout.
const prepareMetadataScript = `
import sys, os
sys.path.insert(0, os.getcwd())
try:
    import tomllib
except ImportError:
    import tomli as tomllib

backend_name = "setuptools.build_meta"
backend_path = None
pyproject = os.path.join(sys.argv[1], "pyproject.toml")
if os.path.isfile(pyproject):
    with open(pyproject, "rb") as f:
        data = tomllib.load(f)
    build_system = data.get("build-system", {})
    backend_name = build_system.get("build-backend", backend_name)

import importlib
backend = importlib.import_module(backend_name)
out_dir = sys.argv[2]
os.chdir(sys.argv[1])
prepare = getattr(backend, "prepare_metadata_for_build_wheel", None)
if prepare is not None:
    dist_info = prepare(out_dir)
else:
    import zipfile
    wheel_name = backend.build_wheel(out_dir)
    with zipfile.ZipFile(os.path.join(out_dir, wheel_name)) as zf:
        metadata = [n for n in zf.namelist() if n.count("/") == 1 and n.endswith(".dist-info/METADATA")]
        zf.extract(metadata[0], out_dir)
    dist_info = metadata[0].split("/")[0]
print(dist_info)
`

// PrepareMetadata implements Runner.
func (r *SubprocessRunner) PrepareMetadata(ctx context.Context, sourceDir string) (pypimeta.Metadata, error) {
	python := r.PythonExecutable
	if python == "" {
		python = "python3"
	}
	outDir, err := os.MkdirTemp("", "pyresolve-metadata-")
	if err != nil {
		return pypimeta.Metadata{}, err
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, python, "-c", prepareMetadataScript, sourceDir, outDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return pypimeta.Metadata{}, &BuildFailure{SourceDir: sourceDir, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}

	distInfoRel := lastNonEmptyLine(stdout.String())
	if distInfoRel == "" {
		return pypimeta.Metadata{}, &BuildFailure{SourceDir: sourceDir, Stdout: stdout.String(), Stderr: stderr.String(), Err: fmt.Errorf("build backend did not report a .dist-info directory")}
	}
	metadataPath := filepath.Join(outDir, distInfoRel, "METADATA")
	contents, err := os.ReadFile(metadataPath)
	if err != nil {
		return pypimeta.Metadata{}, fmt.Errorf("buildbackend: reading %s: %w", metadataPath, err)
	}
	return pypimeta.ParseMetadata(ctx, string(contents), r.Logger)
}

func lastNonEmptyLine(s string) string {
	last := ""
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if line != "" {
				last = line
			}
			start = i + 1
		}
	}
	return last
}

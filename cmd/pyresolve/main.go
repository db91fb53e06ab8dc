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

// Command pyresolve resolves a set of PyPI requirements against one or more
// target environments and prints the resulting lockfile view.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pyresolve.dev/pyresolve/buildbackend"
	"pyresolve.dev/pyresolve/pep508"
	"pyresolve.dev/pyresolve/registry"
	"pyresolve.dev/pyresolve/resolve"
)

var v = viper.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pyresolve <requirement>...",
		Short: "Resolve PyPI requirements across one or more target environments",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResolve,
	}
	flags := cmd.Flags()
	flags.String("index-url", "https://pypi.org/simple/", "PEP 503/691 simple index base URL")
	flags.String("json-url", "https://pypi.org/pypi/", "release-JSON API base URL")
	flags.StringSlice("python-version", []string{"3.12.1"}, "target CPython full version(s) to resolve for, one environment per value")
	flags.String("platform", "linux", "target platform for every environment: linux, macos or windows")
	flags.String("python-executable", "", "interpreter used for PEP 517 sdist builds; empty disables the build tier")
	flags.Int("max-fetch-concurrency", 8, "bound on concurrent metadata/version fetches")
	flags.Int("max-build-concurrency", 2, "bound on concurrent PEP 517 sdist builds")
	flags.Float64("requests-per-second", 10, "steady-state request rate against the index")
	flags.Bool("json", false, "print the lockfile view as JSON instead of a table")
	flags.Bool("verbose", false, "log resolver diagnostics to stderr")
	flags.Bool("pre", false, "allow pre-release versions even when a package's specifiers don't pin one directly")
	flags.String("requires-python", "", "the root project's own requires-python constraint; target environments it excludes are dropped before resolution starts")
	v.BindPFlags(flags)

	v.SetEnvPrefix("PYRESOLVE")
	v.AutomaticEnv()
	v.SetConfigName("pyresolve")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "pyresolve: reading config: %v\n", err)
		}
	}

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	if v.GetBool("verbose") {
		logger.SetLevel(log.DebugLevel)
	}

	envs, err := targetEnvironments(v.GetString("platform"), v.GetStringSlice("python-version"))
	if err != nil {
		return err
	}

	roots := make([]pep508.Requirement, 0, len(args))
	for _, a := range args {
		req, err := pep508.ParseRequirement(a)
		if err != nil {
			return fmt.Errorf("parsing requirement %q: %w", a, err)
		}
		roots = append(roots, req)
	}

	reg := registry.New(registry.Options{
		BaseURL:           v.GetString("index-url"),
		JSONBaseURL:       v.GetString("json-url"),
		RequestsPerSecond: v.GetFloat64("requests-per-second"),
		Logger:            logger,
	})

	var builder buildbackend.Runner
	if exe := v.GetString("python-executable"); exe != "" {
		builder = &buildbackend.SubprocessRunner{PythonExecutable: exe, Logger: logger}
	}

	driver := resolve.NewDriver(resolve.Config{
		Registry:            reg,
		Builder:             builder,
		Environments:        envs,
		MaxFetchConcurrency: v.GetInt("max-fetch-concurrency"),
		MaxBuildConcurrency: v.GetInt("max-build-concurrency"),
		Logger:              logger,
		AllowPrerelease:     v.GetBool("pre"),
		RequiresPython:      v.GetString("requires-python"),
	})

	g, err := driver.Resolve(context.Background(), roots)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}

	entries := g.ToLockfileView()
	if v.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return printTable(entries)
}

func printTable(entries []resolve.LockEntry) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tVERSION\tFILE\tEXTRAS\tREQUIRED BY\tAPPLICABILITY")
	for _, e := range entries {
		version := e.Version
		if e.SourceURL != "" {
			version = e.SourceURL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Name, version, e.Filename, strings.Join(e.Extras, ","), strings.Join(e.RequiredBy, ","), e.Applicability)
	}
	return tw.Flush()
}

// targetEnvironments builds one resolve.TargetEnvironment per requested
// Python version, all sharing the same platform.
func targetEnvironments(platform string, pythonVersions []string) ([]resolve.TargetEnvironment, error) {
	var base func(full string) pep508.Environment
	switch platform {
	case "linux":
		base = func(full string) pep508.Environment { return pep508.CPythonLinux64(minorOf(full), full) }
	case "macos":
		base = func(full string) pep508.Environment { return pep508.CPythonMacOSARM64(minorOf(full), full) }
	case "windows":
		base = func(full string) pep508.Environment { return pep508.CPythonWindows64(minorOf(full), full) }
	default:
		return nil, fmt.Errorf("unknown platform %q: want linux, macos or windows", platform)
	}

	out := make([]resolve.TargetEnvironment, 0, len(pythonVersions))
	for _, full := range pythonVersions {
		out = append(out, resolve.TargetEnvironment{
			ID:  platform + "-cpython" + full,
			Env: base(full),
		})
	}
	return out, nil
}

// minorOf trims a full Python version like "3.12.1" down to "3.12", which
// is what python_version markers compare against.
func minorOf(full string) string {
	parts := strings.SplitN(full, ".", 3)
	if len(parts) < 2 {
		return full
	}
	return parts[0] + "." + parts[1]
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/deptree/internal/cache"
	"github.com/phobologic/deptree/internal/deptree"
	"github.com/phobologic/deptree/internal/output"
	"github.com/phobologic/deptree/internal/scan"
	"github.com/phobologic/deptree/internal/symtab"
	"github.com/phobologic/deptree/internal/toon"
)

func (a *app) newExtractCmd() *cobra.Command {
	var rootDir string

	cmd := &cobra.Command{
		Use:   "extract [flags] REF...",
		Short: "Build dependency trees for one or more functions",
		Long: `Build the dependency tree of each REF and print it.

A REF names a function, class or method:
  path/to/file.py:Class.method   file relative to --root, then qualified name
  package.module.function        dotted Python module path
  example.com/mod/pkg.Type.Method Go import path

One REF prints a single tree; several print a list.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, refs []string) error {
			if err := a.bindFlags(cmd, map[string]string{
				"depth":      "extract.max_depth",
				"format":     "extract.format",
				"lang":       "languages",
				"cache":      "cache.dir",
				"skip-tests": "index.skip_tests",
			}); err != nil {
				return err
			}
			return a.extract(cmd.Context(), rootDir, refs)
		},
	}

	f := cmd.Flags()
	f.StringVar(&rootDir, "root", ".", "project root")
	f.IntP("depth", "d", deptree.DefaultMaxDepth, "maximum call depth below the entry")
	f.StringP("format", "f", string(output.JSON), "output format: json, yaml or toon")
	f.StringSliceP("lang", "l", nil, "languages to index (default: all)")
	f.String("cache", "", "output cache directory, relative to --root")
	f.Bool("skip-tests", false, "do not index test files")
	return cmd
}

func (a *app) extract(ctx context.Context, rootDir string, refs []string) error {
	p, err := a.loadProject(ctx, rootDir)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(p.cfg.Extract.Format)
	if err != nil {
		return err
	}

	store, key := a.openCache(p, refs, format)
	if store != nil {
		defer store.Close()
		data, ok, err := store.Get(key)
		if err != nil {
			a.logger.Warn("cache read failed", slog.String("error", err.Error()))
		}
		if ok {
			a.logger.Debug("cache hit", slog.String("key", key))
			_, err := a.stdout.Write(data)
			return err
		}
	}

	ix, err := a.buildIndex(ctx, p)
	if err != nil {
		return err
	}

	entries := make([]*symtab.Symbol, len(refs))
	for i, ref := range refs {
		if entries[i], err = ix.Lookup(ref); err != nil {
			return err
		}
	}

	scanner, err := scan.NewScanner(p.cfg.Scan.CacheSize)
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}
	b, err := deptree.New(deptree.WithLogger(a.logger), deptree.WithScanner(scanner))
	if err != nil {
		return err
	}
	records, err := b.BuildAll(ctx, entries, p.cfg.Extract.MaxDepth)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := output.Encode(&buf, format, records); err != nil {
		return err
	}

	if store != nil {
		if err := store.Put(key, buf.Bytes()); err != nil {
			a.logger.Warn("cache write failed", slog.String("error", err.Error()))
		}
	}

	_, err = a.stdout.Write(buf.Bytes())
	return err
}

// openCache opens the configured output cache and derives the request key.
// Failures disable caching for this run.
func (a *app) openCache(p *project, refs []string, format output.Format) (*cache.Cache, string) {
	if p.cfg.Cache.Dir == "" {
		return nil, ""
	}

	fingerprint, err := cache.Fingerprint(p.root, p.files)
	if err != nil {
		a.logger.Warn("cache disabled", slog.String("error", err.Error()))
		return nil, ""
	}

	dir := p.cfg.Cache.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.root, dir)
	}
	store, err := cache.Open(dir, cache.WithTTL(p.cfg.Cache.TTL), cache.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("cache disabled", slog.String("error", err.Error()))
		return nil, ""
	}

	key := cache.Key(cache.Request{
		Version:     buildID(),
		Refs:        refs,
		Depth:       p.cfg.Extract.MaxDepth,
		Format:      string(format),
		Languages:   p.cfg.Languages,
		MaxFileSize: p.cfg.Index.MaxFileSize,
		SkipTests:   p.cfg.Index.SkipTests,
	}, fingerprint)
	return store, key
}

// buildID identifies the running binary in cache keys. Dev builds share
// the version string, so the executable's size and mtime stand in for it.
func buildID() string {
	if version != "dev" {
		return version
	}
	exe, err := os.Executable()
	if err != nil {
		return version
	}
	info, err := os.Stat(exe)
	if err != nil {
		return version
	}
	return fmt.Sprintf("%s-%d-%d", version, info.Size(), info.ModTime().UnixNano())
}

func (a *app) newSymbolsCmd() *cobra.Command {
	var rootDir string

	cmd := &cobra.Command{
		Use:   "symbols [flags]",
		Short: "List the functions that can be used as entries",
		Long: `List every function, class and method in the project with the REF that
selects it in "deptree extract", in TOON format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.bindFlags(cmd, map[string]string{
				"lang":       "languages",
				"skip-tests": "index.skip_tests",
			}); err != nil {
				return err
			}

			p, err := a.loadProject(cmd.Context(), rootDir)
			if err != nil {
				return err
			}
			ix, err := a.buildIndex(cmd.Context(), p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, toon.EncodeSymbols(filepath.Base(p.root), ix.Callables()))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&rootDir, "root", ".", "project root")
	f.StringSliceP("lang", "l", nil, "languages to index (default: all)")
	f.Bool("skip-tests", false, "do not index test files")
	return cmd
}

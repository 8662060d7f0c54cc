// Package discover lists the source files of a project that deptree can
// index.
package discover

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/deptree/internal/lang"
)

const gitTimeout = 10 * time.Second

// FileEntry is one indexable file.
type FileEntry struct {
	Path     string // slash-separated, relative to the project root
	Language string
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"venv":          {},
	"env":           {},
	"build":         {},
	"dist":          {},
	"site-packages": {},
	"vendor":        {},
	"testdata":      {},
}

type options struct {
	languages map[string]struct{}
	skipTests bool
	logger    *slog.Logger
}

// Option configures Files.
type Option func(*options)

// WithLanguages keeps only files of the named languages. No names means
// every registered language.
func WithLanguages(names ...string) Option {
	return func(o *options) {
		if len(names) == 0 {
			o.languages = nil
			return
		}
		o.languages = make(map[string]struct{}, len(names))
		for _, n := range names {
			o.languages[n] = struct{}{}
		}
	}
}

// WithSkipTests drops files for which IsTestFile reports true.
func WithSkipTests(skip bool) Option {
	return func(o *options) { o.skipTests = skip }
}

// WithLogger sets the logger for skipped paths and git fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Files walks root and returns its indexable files sorted by path. Inside a
// git checkout only tracked and untracked-but-not-ignored files count;
// elsewhere the root .gitignore is honored. Hidden entries, symlinks and
// the usual dependency and build directories are skipped.
func Files(ctx context.Context, root string, opts ...Option) ([]FileEntry, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	keep := versioned(ctx, root, o.logger)

	var results []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			o.logger.Debug("skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(name, ".") {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(name))
		if langName == "" {
			return nil
		}
		if o.languages != nil {
			if _, ok := o.languages[langName]; !ok {
				return nil
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !keep(rel) || (o.skipTests && IsTestFile(rel)) {
			return nil
		}
		results = append(results, FileEntry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b FileEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return results, nil
}

func skipDir(name string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".egg-info")
}

// versioned returns the filter for files the project keeps: the git file
// list when root is a checkout, else everything its .gitignore allows.
func versioned(ctx context.Context, root string, logger *slog.Logger) func(rel string) bool {
	if info, err := os.Stat(filepath.Join(root, ".git")); err == nil && info.IsDir() {
		files, err := gitFiles(ctx, root)
		if err == nil {
			return func(rel string) bool {
				_, ok := files[rel]
				return ok
			}
		}
		logger.Debug("git ls-files failed, falling back to .gitignore",
			slog.String("root", root),
			slog.String("error", err.Error()))
	}

	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return func(string) bool { return true }
	}
	return func(rel string) bool { return !gi.MatchesPath(rel) }
}

func gitFiles(ctx context.Context, root string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	files := make(map[string]struct{})
	for _, name := range bytes.Split(out, []byte{0}) {
		if len(name) > 0 {
			files[string(name)] = struct{}{}
		}
	}
	return files, nil
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"spec":      {},
	"__tests__": {},
}

// IsTestFile reports whether a repo-relative path looks like test code: a
// file under a test directory or a file named like a test.
func IsTestFile(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[dir]; ok {
			return true
		}
	}

	name := parts[len(parts)-1]
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	switch {
	case strings.HasSuffix(stem, "_test"), strings.HasSuffix(stem, "_spec"):
		return true
	case ext == ".py" && strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	}
	return false
}

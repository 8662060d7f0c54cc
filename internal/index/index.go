// Package index parses a project's source files into static symbol tables:
// one scope per Python module and per Go package, with imports linked across
// files. The tree builder resolves call targets against these tables instead
// of inspecting live objects.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/deptree/internal/discover"
	"github.com/phobologic/deptree/internal/lang"
	"github.com/phobologic/deptree/internal/symtab"
)

// ErrUnknownSymbol is returned by Lookup for references that name nothing in
// the index.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Index is the symbol registry of one project. It is read-only once Build
// returns and may be shared between goroutines.
type Index struct {
	Root string

	// files maps a root-relative slash path to its Python module or Go
	// package symbol.
	files map[string]*symtab.Symbol
	// modules maps a dotted Python module name or a Go import path to its
	// symbol.
	modules   map[string]*symtab.Symbol
	callables []*symtab.Symbol
}

type options struct {
	logger      *slog.Logger
	maxFileSize int64
	workers     int
}

// Option configures Build.
type Option func(*options)

// WithLogger sets the logger used for skipped files.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxFileSize skips files larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(o *options) {
		o.maxFileSize = n
	}
}

// WithWorkers sets the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// unit is the per-file result of the concurrent parse phase.
type unit struct {
	py *pyModule
	gof *goFile
}

// Build parses files (paths relative to root) and links them into an Index.
// Files that cannot be read or parsed are logged and skipped.
func Build(ctx context.Context, root string, files []discover.FileEntry, opts ...Option) (*Index, error) {
	o := options{logger: slog.Default(), workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}

	units := make([]*unit, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := parseFile(root, f, o.maxFileSize)
			if err != nil {
				o.logger.Warn("skipping file",
					slog.String("file", f.Path),
					slog.String("error", err.Error()))
				return nil
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix := &Index{
		Root:    root,
		files:   make(map[string]*symtab.Symbol),
		modules: make(map[string]*symtab.Symbol),
	}

	var pyMods []*pyModule
	var goFiles []*goFile
	for _, u := range units {
		switch {
		case u == nil:
		case u.py != nil:
			pyMods = append(pyMods, u.py)
		case u.gof != nil:
			goFiles = append(goFiles, u.gof)
		}
	}

	ix.addPython(pyMods)
	ix.linkPython(pyMods)
	ix.addGo(goFiles, readModulePath(root))
	ix.linkGo(goFiles)

	sort.Slice(ix.callables, func(i, j int) bool {
		return ix.callables[i].Key() < ix.callables[j].Key()
	})

	o.logger.Debug("index built",
		slog.Int("files", len(ix.files)),
		slog.Int("callables", len(ix.callables)))
	return ix, nil
}

func parseFile(root string, f discover.FileEntry, maxSize int64) (*unit, error) {
	l := lang.Languages[f.Language]
	if l == nil {
		return nil, fmt.Errorf("unsupported language %q", f.Language)
	}

	absPath := filepath.Join(root, f.Path)
	if maxSize > 0 {
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, err
		}
		if info.Size() > maxSize {
			return nil, fmt.Errorf("larger than %d bytes", maxSize)
		}
	}

	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	tree, err := l.NewParser().ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	path := filepath.ToSlash(f.Path)
	switch f.Language {
	case "python":
		return &unit{py: extractPython(l, path, source, tree.RootNode())}, nil
	case "go":
		return &unit{gof: extractGo(l, path, source, tree.RootNode())}, nil
	}
	return nil, fmt.Errorf("no extractor for %q", f.Language)
}

// readModulePath returns the module path declared in root/go.mod, or "".
func readModulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

// Lookup finds a symbol by reference. Accepted forms:
//
//	path/to/file.py:Class.method   file-relative qualified name
//	pkg.module.function            dotted Python module name + qualified name
//	example.com/mod/pkg.Type.Method Go import path + qualified name
func (ix *Index) Lookup(ref string) (*symtab.Symbol, error) {
	if i := strings.LastIndex(ref, ":"); i > 0 {
		file := ref[:i]
		if filepath.IsAbs(file) {
			if rel, err := filepath.Rel(ix.Root, file); err == nil {
				file = rel
			}
		}
		file = filepath.ToSlash(filepath.Clean(file))
		if container, ok := ix.files[file]; ok {
			if sym, ok := walkQual(container, ref[i+1:]); ok {
				return sym, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, ref)
	}

	for i := len(ref) - 1; i > 0; i-- {
		if ref[i] != '.' {
			continue
		}
		if container, ok := ix.modules[ref[:i]]; ok {
			if sym, ok := walkQual(container, ref[i+1:]); ok {
				return sym, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, ref)
}

// walkQual follows a qualified name through members and, for nested
// functions, through locals.
func walkQual(container *symtab.Symbol, qual string) (*symtab.Symbol, bool) {
	if qual == "" {
		return nil, false
	}
	cur := container
	for _, part := range strings.Split(qual, ".") {
		next, ok := cur.Members.Lookup(part)
		if !ok {
			next, ok = cur.Locals.Lookup(part)
		}
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Module returns the symbol of a Python module or Go package.
func (ix *Index) Module(name string) (*symtab.Symbol, bool) {
	sym, ok := ix.modules[name]
	return sym, ok
}

// Callables returns every callable definition, sorted by key.
func (ix *Index) Callables() []*symtab.Symbol {
	return append([]*symtab.Symbol(nil), ix.callables...)
}

// Files returns the number of indexed files.
func (ix *Index) Files() int {
	return len(ix.files)
}

// Package deptree builds bounded-depth dependency trees: a function record
// whose dependencies are the records of every function it statically calls,
// recursively.
package deptree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/record"
	"github.com/phobologic/deptree/internal/scan"
	"github.com/phobologic/deptree/internal/symtab"
)

// DefaultMaxDepth is the recursion limit used when none is configured.
const DefaultMaxDepth = 2

var (
	// ErrNotCallable is returned when the entry symbol cannot be called.
	ErrNotCallable = errors.New("entry is not callable")
	// ErrNegativeDepth is returned for a negative depth limit.
	ErrNegativeDepth = errors.New("max depth must not be negative")
)

// Builder builds dependency trees. A Builder holds no per-build state and
// may be shared between goroutines.
type Builder struct {
	scanner *scan.Scanner
	logger  *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for skipped dependencies.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithScanner sets the call scanner, allowing its cache to be shared.
func WithScanner(s *scan.Scanner) Option {
	return func(b *Builder) {
		b.scanner = s
	}
}

// New creates a Builder.
func New(opts ...Option) (*Builder, error) {
	b := &Builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.scanner == nil {
		s, err := scan.NewScanner(scan.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		b.scanner = s
	}
	return b, nil
}

// Build returns the dependency tree rooted at entry. No record in the tree is
// more than maxDepth edges from the root, and a function already expanded
// earlier in this build is not expanded again.
func (b *Builder) Build(entry *symtab.Symbol, maxDepth int) (*model.FunctionRecord, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeDepth, maxDepth)
	}
	if !entry.Callable() {
		return nil, fmt.Errorf("%w: %s", ErrNotCallable, describe(entry))
	}

	visited := make(map[string]struct{})
	rec, err := b.build(entry, maxDepth, 0, visited)
	if err != nil {
		b.logger.Warn("could not analyze entry, returning it without dependencies",
			slog.String("function", entry.Key()),
			slog.String("error", err.Error()))
	}
	return rec, nil
}

// build always returns a record. The error reports that entry's own calls
// could not be analyzed, so its record carries no dependencies.
func (b *Builder) build(entry *symtab.Symbol, maxDepth, depth int, visited map[string]struct{}) (*model.FunctionRecord, error) {
	rec := record.New(entry)

	key := entry.Key()
	if _, seen := visited[key]; seen {
		return rec, nil
	}
	visited[key] = struct{}{}

	if depth >= maxDepth {
		return rec, nil
	}

	calls, err := b.scanner.Scan(entry)
	if err != nil {
		return rec, fmt.Errorf("scanning %s: %w", key, err)
	}

	scope := entry.ResolutionScope()
	for _, name := range calls {
		target, ok := symtab.Resolve(name, scope)
		if !ok || !target.Callable() {
			continue
		}
		dep, err := b.build(target, maxDepth, depth+1, visited)
		if err != nil {
			b.logger.Debug("skipping dependency",
				slog.String("caller", key),
				slog.String("call", name),
				slog.String("error", err.Error()))
			continue
		}
		rec.Dependencies = append(rec.Dependencies, dep)
	}
	return rec, nil
}

// BuildAll builds one tree per entry concurrently. Every entry gets its own
// visited set. Results are in entry order.
func (b *Builder) BuildAll(ctx context.Context, entries []*symtab.Symbol, maxDepth int) ([]*model.FunctionRecord, error) {
	results := make([]*model.FunctionRecord, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, entry := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := b.Build(entry, maxDepth)
			if err != nil {
				return err
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func describe(sym *symtab.Symbol) string {
	if sym == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s)", sym.Key(), sym.Kind)
}

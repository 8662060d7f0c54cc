// Package scan discovers the call targets in a single function's source text.
package scan

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lithammer/dedent"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/deptree/internal/lang"
	"github.com/phobologic/deptree/internal/symtab"
)

// DefaultCacheSize is the number of scan results a Scanner keeps.
const DefaultCacheSize = 4096

// ErrSyntax is returned when source text does not parse cleanly.
var ErrSyntax = errors.New("source does not parse cleanly")

// Calls parses source as a standalone snippet of language l and returns the
// call targets it contains, unique and in order of first appearance. Only
// name() and name.attr() calls are recognized; anonymous function bodies are
// not entered. Empty source yields no targets and no error.
func Calls(l *lang.Language, source []byte) ([]string, error) {
	if len(bytes.TrimSpace(source)) == 0 {
		return nil, nil
	}
	if l.Dedent {
		source = []byte(dedent.Dedent(string(source)))
	}

	parser := l.NewParser()
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s source: %w", l.Name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrSyntax
	}
	return collect(l, root, source), nil
}

// collect walks the tree in source order. An explicit stack keeps deeply
// nested expressions from growing the goroutine stack.
func collect(l *lang.Language, root *sitter.Node, source []byte) []string {
	seen := make(map[string]struct{})
	var calls []string

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if l.IsOpaque(node.Type()) {
			continue
		}
		if node.Type() == l.CallNode {
			if target := l.CallTarget(node, source); target != "" {
				if _, dup := seen[target]; !dup {
					seen[target] = struct{}{}
					calls = append(calls, target)
				}
			}
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			if child := node.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return calls
}

// Scanner scans symbols and memoizes the results by source content.
// It is safe for concurrent use.
type Scanner struct {
	cache *lru.Cache[string, []string]
}

// NewScanner creates a Scanner that caches up to size results.
func NewScanner(size int) (*Scanner, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("creating scan cache: %w", err)
	}
	return &Scanner{cache: cache}, nil
}

// Scan returns the call targets in sym's source. Symbols without source or
// in an unregistered language have no targets.
func (s *Scanner) Scan(sym *symtab.Symbol) ([]string, error) {
	if sym == nil || len(sym.Source) == 0 {
		return nil, nil
	}
	l := lang.Languages[sym.Language]
	if l == nil {
		return nil, nil
	}

	key := cacheKey(l.Name, sym.Source)
	if calls, ok := s.cache.Get(key); ok {
		return slices.Clone(calls), nil
	}

	calls, err := Calls(l, sym.Source)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, calls)
	return slices.Clone(calls), nil
}

// Len returns the number of cached results.
func (s *Scanner) Len() int {
	return s.cache.Len()
}

func cacheKey(language string, source []byte) string {
	sum := sha256.Sum256(source)
	return language + ":" + hex.EncodeToString(sum[:])
}

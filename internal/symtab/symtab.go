// Package symtab holds the static symbol tables the dependency tree builder
// resolves call targets against: one Scope per namespace, one Symbol per
// definition or binding.
package symtab

import (
	"iter"

	"github.com/phobologic/deptree/internal/model"
)

// Symbol is a named definition or binding discovered in analyzed source.
type Symbol struct {
	Name     string
	QualName string
	Kind     model.SymbolKind
	Language string

	Doc    string
	HasDoc bool

	// Source is the definition's text; nil when it is not available.
	Source []byte
	File   string
	Line   int

	// Scope is the namespace the symbol was defined in.
	Scope *Scope
	// Members holds the symbol's attributes: class attributes and methods,
	// or the bindings of a module or package.
	Members *Scope
	// Locals holds a function's nested definitions and its self or receiver
	// binding. Its parent is Scope.
	Locals *Scope
}

// Callable reports whether the symbol can be the target of a call that the
// tree builder follows.
func (s *Symbol) Callable() bool {
	if s == nil {
		return false
	}
	switch s.Kind {
	case model.Function, model.Method, model.Class:
		return true
	}
	return false
}

// Key identifies the symbol within one analysis pass: source_file:QualName,
// or the bare QualName for symbols without a file.
func (s *Symbol) Key() string {
	if s.File == "" {
		return s.QualName
	}
	return s.File + ":" + s.QualName
}

// ResolutionScope returns the scope call targets inside the symbol's body are
// resolved against.
func (s *Symbol) ResolutionScope() *Scope {
	if s.Locals != nil {
		return s.Locals
	}
	return s.Scope
}

// Attr returns the attribute name of s.
func (s *Symbol) Attr(name string) (*Symbol, bool) {
	if s == nil {
		return nil, false
	}
	return s.Members.Lookup(name)
}

// Scope is an ordered set of bindings with an optional lexical parent.
type Scope struct {
	Name   string
	Parent *Scope

	names    []string
	bindings map[string]*Symbol
}

// NewScope creates an empty scope.
func NewScope(name string, parent *Scope) *Scope {
	return &Scope{
		Name:     name,
		Parent:   parent,
		bindings: make(map[string]*Symbol),
	}
}

// Bind binds name to sym. Rebinding an existing name keeps its original
// position in the binding order.
func (s *Scope) Bind(name string, sym *Symbol) {
	if _, ok := s.bindings[name]; !ok {
		s.names = append(s.names, name)
	}
	s.bindings[name] = sym
}

// Lookup returns the symbol bound to name in this scope only.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	if s == nil {
		return nil, false
	}
	sym, ok := s.bindings[name]
	return sym, ok
}

// Len returns the number of bindings.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// All iterates the bindings in binding order.
func (s *Scope) All() iter.Seq2[string, *Symbol] {
	return func(yield func(string, *Symbol) bool) {
		if s == nil {
			return
		}
		for _, name := range s.names {
			if !yield(name, s.bindings[name]) {
				return
			}
		}
	}
}

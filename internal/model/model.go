// Package model defines core data structures for deptree.
package model

// SymbolKind indicates the syntactic kind of a symbol.
type SymbolKind string

const (
	Class    SymbolKind = "class"
	Function SymbolKind = "function"
	Method   SymbolKind = "method"
	Type     SymbolKind = "type"
	Module   SymbolKind = "module"
	Package  SymbolKind = "package"
	Variable SymbolKind = "variable"
)

// FunctionRecord describes one callable discovered during analysis.
// Optional fields are nil when the metadata could not be obtained.
type FunctionRecord struct {
	Name         string            `json:"name" yaml:"name"`
	Docstring    *string           `json:"docstring" yaml:"docstring"`
	Source       *string           `json:"source" yaml:"source"`
	SourceFile   *string           `json:"source_file" yaml:"source_file"`
	LineNumber   *int              `json:"line_number" yaml:"line_number"`
	Dependencies []*FunctionRecord `json:"dependencies" yaml:"dependencies"`

	// Key identifies the analyzed symbol (source_file:qualified_name).
	// It is not part of the serialized form.
	Key string `json:"-" yaml:"-"`
}

// ToMap converts the record and its dependencies into a plain mapping with
// the keys name, docstring, source, source_file, line_number and
// dependencies. Absent fields map to nil.
func (r *FunctionRecord) ToMap() map[string]any {
	deps := make([]any, 0, len(r.Dependencies))
	for _, d := range r.Dependencies {
		deps = append(deps, d.ToMap())
	}
	return map[string]any{
		"name":         r.Name,
		"docstring":    derefString(r.Docstring),
		"source":       derefString(r.Source),
		"source_file":  derefString(r.SourceFile),
		"line_number":  derefInt(r.LineNumber),
		"dependencies": deps,
	}
}

// Walk visits r and every record below it in depth-first pre-order.
// fn receives the record, its parent (nil for the root) and its depth.
func (r *FunctionRecord) Walk(fn func(rec, parent *FunctionRecord, depth int)) {
	var walk func(rec, parent *FunctionRecord, depth int)
	walk = func(rec, parent *FunctionRecord, depth int) {
		fn(rec, parent, depth)
		for _, d := range rec.Dependencies {
			walk(d, rec, depth+1)
		}
	}
	walk(r, nil, 0)
}

// Height returns the number of edges on the longest root-to-leaf path.
func (r *FunctionRecord) Height() int {
	h := 0
	for _, d := range r.Dependencies {
		if dh := d.Height() + 1; dh > h {
			h = dh
		}
	}
	return h
}

// CallEdge represents a caller → callee relationship between two analyzed
// functions, identified by their record keys.
type CallEdge struct {
	Caller string
	Callee string
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

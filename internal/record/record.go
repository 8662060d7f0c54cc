// Package record captures the descriptive metadata of a single symbol.
//
// Every primitive is best-effort: metadata that cannot be obtained is
// reported as absent, never as an error.
package record

import (
	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/symtab"
)

// Docstring returns the symbol's documentation.
func Docstring(sym *symtab.Symbol) (string, bool) {
	if sym == nil || !sym.HasDoc {
		return "", false
	}
	return sym.Doc, true
}

// Source returns the exact source text of the symbol's definition.
func Source(sym *symtab.Symbol) (string, bool) {
	if sym == nil || sym.Source == nil {
		return "", false
	}
	return string(sym.Source), true
}

// SourceFile returns the path of the file defining the symbol.
func SourceFile(sym *symtab.Symbol) (string, bool) {
	if sym == nil || sym.File == "" || sym.Source == nil {
		return "", false
	}
	return sym.File, true
}

// LineNumber returns the 1-based line the definition starts on.
func LineNumber(sym *symtab.Symbol) (int, bool) {
	if sym == nil || sym.Line <= 0 || sym.Source == nil {
		return 0, false
	}
	return sym.Line, true
}

// New builds the record for sym. Dependencies start empty; filling them is
// the tree builder's job.
func New(sym *symtab.Symbol) *model.FunctionRecord {
	rec := &model.FunctionRecord{
		Name:         sym.Name,
		Key:          sym.Key(),
		Dependencies: []*model.FunctionRecord{},
	}
	if doc, ok := Docstring(sym); ok {
		rec.Docstring = &doc
	}
	if src, ok := Source(sym); ok {
		rec.Source = &src
	}
	if file, ok := SourceFile(sym); ok {
		rec.SourceFile = &file
	}
	if line, ok := LineNumber(sym); ok {
		rec.LineNumber = &line
	}
	return rec
}

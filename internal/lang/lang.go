// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and the per-language hooks the scanner and the index
// need to read call expressions and doc comments.
package lang

import (
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// CallNode is the node type of a call expression.
	CallNode string

	// Opaque lists node types whose subtrees are never scanned for calls
	// (anonymous function bodies).
	Opaque map[string]struct{}

	// Dedent reports whether a function's source text must be de-indented
	// before it can be parsed on its own.
	Dedent bool

	// CallTarget returns the textual target of a call node: a bare name
	// ("foo") or a two-part dotted name ("obj.method"). Returns "" for any
	// other call shape.
	CallTarget func(call *sitter.Node, source []byte) string

	// DocComment returns the documentation attached to a definition node.
	DocComment func(def *sitter.Node, source []byte) (string, bool)
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// IsOpaque reports whether nodes of the given type hide their subtree from
// call scanning.
func (l *Language) IsOpaque(nodeType string) bool {
	_, ok := l.Opaque[nodeType]
	return ok
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// Names returns the registered language names in a stable order.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// LineStart returns the byte offset of the first byte of the line containing
// offset. Definitions are cut from the line start so that nested definitions
// keep a consistent indentation on every line.
func LineStart(source []byte, offset uint32) uint32 {
	i := int(offset)
	for i > 0 && source[i-1] != '\n' {
		i--
	}
	return uint32(i)
}

// trimLines drops leading and trailing blank lines.
func trimLines(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

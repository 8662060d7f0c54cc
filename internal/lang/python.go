package lang

import (
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		lang:       python.GetLanguage(),
		CallNode:   "call",
		Opaque:     map[string]struct{}{"lambda": {}},
		Dedent:     true,
		CallTarget: pythonCallTarget,
		DocComment: pythonDocstring,
	}
}

// pythonCallTarget recognizes name() and name.attr() calls.
func pythonCallTarget(call *sitter.Node, source []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return NodeText(fn, source)
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" {
			return ""
		}
		return NodeText(obj, source) + "." + NodeText(attr, source)
	}
	return ""
}

// pythonDocstring returns the cleaned docstring of a function_definition or
// class_definition: the first statement of its body when that statement is a
// plain string literal.
func pythonDocstring(def *sitter.Node, source []byte) (string, bool) {
	body := def.ChildByFieldName("body")
	if body == nil {
		return "", false
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
			return "", false
		}
		expr := stmt.NamedChild(0)
		if expr.Type() != "string" {
			return "", false
		}
		return CleanDoc(unquotePython(NodeText(expr, source))), true
	}
	return "", false
}

// unquotePython strips the prefix and quotes of a Python string literal and
// decodes its escape sequences unless the literal is raw.
func unquotePython(raw string) string {
	body := strings.TrimLeft(raw, "rRbBuUfF")
	isRaw := strings.ContainsAny(raw[:len(raw)-len(body)], "rR")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			body = body[len(q) : len(body)-len(q)]
			if !isRaw {
				body = decodePythonEscapes(body)
			}
			return body
		}
	}
	return body
}

var pythonEscapes = map[byte]string{
	'\\': "\\",
	'\'': "'",
	'"':  "\"",
	'a':  "\a",
	'b':  "\b",
	'f':  "\f",
	'n':  "\n",
	'r':  "\r",
	't':  "\t",
	'v':  "\v",
	'\n': "",
}

var hexEscapeWidth = map[byte]int{'x': 2, 'u': 4, 'U': 8}

// decodePythonEscapes interprets backslash escapes the way Python does for
// str literals. Unknown escapes and \N{...} are left as written.
func decodePythonEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		if rep, ok := pythonEscapes[next]; ok {
			b.WriteString(rep)
			i++
			continue
		}
		if next >= '0' && next <= '7' {
			j := i + 1
			for j < len(s) && j < i+4 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i+1:j], 8, 32)
			b.WriteRune(rune(v))
			i = j - 1
			continue
		}
		if width, ok := hexEscapeWidth[next]; ok && i+2+width <= len(s) {
			end := i + 2 + width
			if v, err := strconv.ParseUint(s[i+2:end], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
				b.WriteRune(rune(v))
				i = end - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CleanDoc normalizes docstring indentation: the first line loses its leading
// whitespace, the common margin of the remaining lines is removed, and
// leading and trailing blank lines are dropped.
func CleanDoc(doc string) string {
	lines := strings.Split(expandTabs(doc), "\n")

	margin := -1
	for _, line := range lines[1:] {
		content := strings.TrimLeft(line, " ")
		if content == "" {
			continue
		}
		if indent := len(line) - len(content); margin < 0 || indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}

	return strings.Join(trimLines(lines), "\n")
}

// expandTabs replaces tabs with spaces up to the next multiple of eight
// columns. Columns restart after each line break.
func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := 8 - col%8
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

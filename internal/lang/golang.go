package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func init() {
	Languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		CallNode:   "call_expression",
		Opaque:     map[string]struct{}{"func_literal": {}},
		CallTarget: goCallTarget,
		DocComment: goDocComment,
	}
}

// goCallTarget recognizes name() and operand.field() calls. Package-qualified
// calls (fmt.Println) have the same shape as method calls on a variable.
func goCallTarget(call *sitter.Node, source []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return NodeText(fn, source)
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if operand == nil || field == nil || operand.Type() != "identifier" {
			return ""
		}
		return NodeText(operand, source) + "." + NodeText(field, source)
	}
	return ""
}

// goDocComment collects the comment block that ends on the line directly
// above the declaration. Compiler directives (//go:..., //nolint) are dropped.
func goDocComment(def *sitter.Node, source []byte) (string, bool) {
	var blocks []string
	wantRow := int(def.StartPoint().Row) - 1
	for prev := def.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if int(prev.EndPoint().Row) != wantRow {
			break
		}
		blocks = append([]string{NodeText(prev, source)}, blocks...)
		wantRow = int(prev.StartPoint().Row) - 1
	}
	if len(blocks) == 0 {
		return "", false
	}

	var lines []string
	for _, block := range blocks {
		lines = append(lines, commentLines(block)...)
	}
	lines = trimLines(lines)
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func commentLines(comment string) []string {
	if strings.HasPrefix(comment, "/*") {
		body := strings.TrimSuffix(strings.TrimPrefix(comment, "/*"), "*/")
		var lines []string
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
			lines = append(lines, line)
		}
		return lines
	}

	text := strings.TrimPrefix(comment, "//")
	if strings.HasPrefix(text, "go:") || strings.HasPrefix(text, "nolint") {
		return nil
	}
	return []string{strings.TrimPrefix(text, " ")}
}

// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/deptree/internal/graph"
	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/symtab"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode renders dependency trees as TOON. Functions are listed in
// depth-first order with their parent row, so the tree can be rebuilt from
// the functions table alone; calls and docs follow as separate tables.
func Encode(roots ...*model.FunctionRecord) string {
	ranks := graph.Rank(roots...)

	var fnRows, docRows [][]string
	id := 0
	for _, root := range roots {
		ids := make(map[*model.FunctionRecord]int)
		root.Walk(func(rec, parent *model.FunctionRecord, depth int) {
			id++
			ids[rec] = id
			parentID := ""
			if parent != nil {
				parentID = strconv.Itoa(ids[parent])
			}
			fnRows = append(fnRows, []string{
				strconv.Itoa(id),
				parentID,
				strconv.Itoa(depth),
				rec.Name,
				deref(rec.SourceFile),
				lineOf(rec.LineNumber),
				fmt.Sprintf("%.4f", ranks[graph.NodeID(rec)]),
			})
			if rec.Docstring != nil && *rec.Docstring != "" {
				docRows = append(docRows, []string{strconv.Itoa(id), *rec.Docstring})
			}
		})
	}

	var callRows [][]string
	for _, e := range graph.CallEdges(roots...) {
		callRows = append(callRows, []string{e.Caller, e.Callee})
	}

	parts := []string{
		formatTabular("functions", []string{"id", "parent", "depth", "name", "file", "line", "rank"}, fnRows),
		formatTabular("calls", []string{"caller", "callee"}, callRows),
	}
	if len(docRows) > 0 {
		parts = append(parts, formatTabular("docs", []string{"id", "docstring"}, docRows))
	}
	return strings.Join(parts, "\n")
}

// EncodeSymbols renders a symbol listing: one row per callable with the
// reference that selects it and the first line of its documentation.
func EncodeSymbols(root string, syms []*symtab.Symbol) string {
	var rows [][]string
	for _, sym := range syms {
		doc, _, _ := strings.Cut(sym.Doc, "\n")
		rows = append(rows, []string{
			sym.Key(),
			string(sym.Kind),
			strconv.Itoa(sym.Line),
			doc,
		})
	}
	return strings.Join([]string{
		fmt.Sprintf("root: %s", encodeValue(root)),
		formatTabular("symbols", []string{"ref", "kind", "line", "doc"}, rows),
	}, "\n")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func lineOf(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

package index

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/deptree/internal/lang"
	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/symtab"
)

// pyModule is one parsed Python file.
type pyModule struct {
	path  string
	name  string // dotted module name
	isPkg bool   // an __init__.py

	sym       *symtab.Symbol
	imports   []*pyImport
	callables []*symtab.Symbol
}

// pyImport is an import binding waiting to be linked to its target.
type pyImport struct {
	scope  *symtab.Scope
	alias  string
	module string // module text without the leading dots
	level  int    // number of leading dots
	name   string // imported name for from-imports; "" for plain imports
	from   bool
	star   bool

	placeholder *symtab.Symbol
	done        bool
}

type pyExtractor struct {
	lang   *lang.Language
	source []byte
	mod    *pyModule
}

func extractPython(l *lang.Language, path string, source []byte, root *sitter.Node) *pyModule {
	name, isPkg := pythonModuleName(path)
	mod := &pyModule{path: path, name: name, isPkg: isPkg}

	scope := symtab.NewScope(name, nil)
	mod.sym = &symtab.Symbol{
		Name:     name,
		QualName: name,
		Kind:     model.Module,
		Language: l.Name,
		File:     path,
		Line:     1,
		Members:  scope,
	}

	e := &pyExtractor{lang: l, source: source, mod: mod}
	e.walkBlock(root, scope, scope, "", nil)
	return mod
}

// pythonModuleName maps a slash path to a dotted module name. Package
// initializers name their package.
func pythonModuleName(path string) (string, bool) {
	p := strings.TrimSuffix(path, ".py")
	isPkg := false
	if p == "__init__" || strings.HasSuffix(p, "/__init__") {
		isPkg = true
		p = strings.TrimSuffix(strings.TrimSuffix(p, "__init__"), "/")
	}
	return strings.ReplaceAll(p, "/", "."), isPkg
}

// walkBlock indexes the statements of a module, class or function body.
// scope receives the bindings; lexical is the scope nested functions chain
// to; class is the enclosing class for method bodies.
func (e *pyExtractor) walkBlock(block *sitter.Node, scope, lexical *symtab.Scope, prefix string, class *symtab.Symbol) {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		e.statement(block.NamedChild(i), scope, lexical, prefix, class)
	}
}

func (e *pyExtractor) statement(node *sitter.Node, scope, lexical *symtab.Scope, prefix string, class *symtab.Symbol) {
	switch node.Type() {
	case "function_definition":
		e.function(node, node, false, scope, lexical, prefix, class)
	case "class_definition":
		e.class(node, node, scope, lexical, prefix)
	case "decorated_definition":
		def := node.ChildByFieldName("definition")
		if def == nil {
			return
		}
		switch def.Type() {
		case "function_definition":
			e.function(def, node, e.isStatic(node), scope, lexical, prefix, class)
		case "class_definition":
			e.class(def, node, scope, lexical, prefix)
		}
	case "import_statement":
		e.importStatement(node, scope)
	case "import_from_statement":
		e.fromImport(node, scope)
	case "expression_statement":
		e.assignment(node, scope, prefix)
	case "if_statement", "try_statement", "with_statement", "for_statement", "while_statement":
		e.compound(node, scope, lexical, prefix, class)
	}
}

// compound indexes definitions nested in the blocks and clauses of a
// compound statement. They bind into the enclosing scope.
func (e *pyExtractor) compound(node *sitter.Node, scope, lexical *symtab.Scope, prefix string, class *symtab.Symbol) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch {
		case child.Type() == "block":
			e.walkBlock(child, scope, lexical, prefix, class)
		case strings.HasSuffix(child.Type(), "_clause"):
			e.compound(child, scope, lexical, prefix, class)
		}
	}
}

// define creates the symbol of a function or class. outer is the decorated
// definition when there is one, so that the source includes the decorators.
func (e *pyExtractor) define(def, outer *sitter.Node, name, qual string, kind model.SymbolKind, lexical *symtab.Scope) *symtab.Symbol {
	start := lang.LineStart(e.source, outer.StartByte())
	end := outer.EndByte()
	sym := &symtab.Symbol{
		Name:     name,
		QualName: qual,
		Kind:     kind,
		Language: e.lang.Name,
		Source:   e.source[start:end:end],
		File:     e.mod.path,
		Line:     int(outer.StartPoint().Row) + 1,
		Scope:    lexical,
	}
	sym.Doc, sym.HasDoc = e.lang.DocComment(def, e.source)
	return sym
}

func (e *pyExtractor) function(def, outer *sitter.Node, static bool, scope, lexical *symtab.Scope, prefix string, class *symtab.Symbol) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, e.source)
	qual := qualify(prefix, name)

	kind := model.Function
	if class != nil {
		kind = model.Method
	}
	sym := e.define(def, outer, name, qual, kind, lexical)
	sym.Locals = symtab.NewScope(qual, lexical)
	if class != nil && !static {
		if self := firstParam(def.ChildByFieldName("parameters"), e.source); self != "" {
			sym.Locals.Bind(self, class)
		}
	}

	scope.Bind(name, sym)
	e.mod.callables = append(e.mod.callables, sym)

	if body := def.ChildByFieldName("body"); body != nil {
		e.walkBlock(body, sym.Locals, sym.Locals, qual, nil)
	}
}

func (e *pyExtractor) class(def, outer *sitter.Node, scope, lexical *symtab.Scope, prefix string) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, e.source)
	qual := qualify(prefix, name)

	sym := e.define(def, outer, name, qual, model.Class, lexical)
	sym.Members = symtab.NewScope(qual, nil)

	scope.Bind(name, sym)
	e.mod.callables = append(e.mod.callables, sym)

	// Class bodies are not an enclosing scope for their methods.
	if body := def.ChildByFieldName("body"); body != nil {
		e.walkBlock(body, sym.Members, lexical, qual, sym)
	}
}

func (e *pyExtractor) isStatic(decorated *sitter.Node) bool {
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		child := decorated.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(lang.NodeText(child, e.source), "@"))
		if text == "staticmethod" || strings.HasSuffix(text, ".staticmethod") {
			return true
		}
	}
	return false
}

// firstParam returns the name of the first positional parameter, or "".
func firstParam(params *sitter.Node, source []byte) string {
	if params == nil {
		return ""
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "comment":
			continue
		case "identifier":
			return lang.NodeText(p, source)
		case "typed_parameter":
			if id := p.NamedChild(0); id != nil && id.Type() == "identifier" {
				return lang.NodeText(id, source)
			}
		case "default_parameter", "typed_default_parameter":
			if id := p.ChildByFieldName("name"); id != nil {
				return lang.NodeText(id, source)
			}
		}
		return ""
	}
	return ""
}

// assignment binds the names on the left of a plain assignment as variables.
func (e *pyExtractor) assignment(stmt *sitter.Node, scope *symtab.Scope, prefix string) {
	if stmt.NamedChildCount() == 0 {
		return
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil {
		return
	}

	var targets []*sitter.Node
	switch left.Type() {
	case "identifier":
		targets = append(targets, left)
	case "pattern_list", "tuple_pattern":
		for i := 0; i < int(left.NamedChildCount()); i++ {
			if c := left.NamedChild(i); c.Type() == "identifier" {
				targets = append(targets, c)
			}
		}
	}

	for _, t := range targets {
		name := lang.NodeText(t, e.source)
		if len(targets) == 1 && e.wrapsSelf(assign.ChildByFieldName("right"), name, scope) {
			continue
		}
		scope.Bind(name, &symtab.Symbol{
			Name:     name,
			QualName: qualify(prefix, name),
			Kind:     model.Variable,
			Language: e.lang.Name,
			File:     e.mod.path,
			Line:     int(t.StartPoint().Row) + 1,
		})
	}
}

// wrapsSelf reports whether value is a call that passes name, already bound
// to a callable in scope, as an argument: "helper = deco(helper)". The
// wrapper is assumed to stay callable, so the definition keeps its binding.
func (e *pyExtractor) wrapsSelf(value *sitter.Node, name string, scope *symtab.Scope) bool {
	if value == nil || value.Type() != "call" {
		return false
	}
	if sym, ok := scope.Lookup(name); !ok || !sym.Callable() {
		return false
	}
	args := value.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if arg := args.NamedChild(i); arg.Type() == "identifier" && lang.NodeText(arg, e.source) == name {
			return true
		}
	}
	return false
}

// importStatement records "import a.b" (binding a) and "import a.b as c".
func (e *pyExtractor) importStatement(node *sitter.Node, scope *symtab.Scope) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var imp *pyImport
		switch child.Type() {
		case "dotted_name":
			top, _, _ := strings.Cut(lang.NodeText(child, e.source), ".")
			imp = &pyImport{alias: top, module: top}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			imp = &pyImport{
				alias:  lang.NodeText(alias, e.source),
				module: lang.NodeText(name, e.source),
			}
		default:
			continue
		}
		e.bindImport(imp, scope, model.Module)
	}
}

// fromImport records "from m import a, b as c" and "from m import *",
// including relative forms.
func (e *pyExtractor) fromImport(node *sitter.Node, scope *symtab.Scope) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	text := lang.NodeText(moduleNode, e.source)
	module := strings.TrimLeft(text, ".")
	level := len(text) - len(module)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() {
			continue
		}
		imp := &pyImport{module: module, level: level, from: true}
		switch child.Type() {
		case "dotted_name":
			imp.name = lang.NodeText(child, e.source)
			imp.alias = imp.name
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			imp.name = lang.NodeText(name, e.source)
			imp.alias = lang.NodeText(alias, e.source)
		case "wildcard_import":
			imp.star = true
			imp.scope = scope
			e.mod.imports = append(e.mod.imports, imp)
			continue
		default:
			continue
		}
		e.bindImport(imp, scope, model.Variable)
	}
}

// bindImport binds a placeholder for the imported name. Linking replaces it
// when the target is part of the index.
func (e *pyExtractor) bindImport(imp *pyImport, scope *symtab.Scope, kind model.SymbolKind) {
	imp.scope = scope
	imp.placeholder = &symtab.Symbol{
		Name:     imp.alias,
		QualName: qualify(imp.module, imp.name),
		Kind:     kind,
		Language: e.lang.Name,
	}
	scope.Bind(imp.alias, imp.placeholder)
	e.mod.imports = append(e.mod.imports, imp)
}

func (ix *Index) addPython(mods []*pyModule) {
	for _, mod := range mods {
		ix.files[mod.path] = mod.sym
		if mod.name != "" {
			ix.modules[mod.name] = mod.sym
		}
		ix.callables = append(ix.callables, mod.callables...)
	}
	// src layout: src/pkg/mod.py is importable as pkg.mod.
	for _, mod := range mods {
		if alias, ok := strings.CutPrefix(mod.name, "src."); ok {
			if _, taken := ix.modules[alias]; !taken {
				ix.modules[alias] = mod.sym
			}
		}
	}
}

// linkPython replaces import placeholders with the symbols they name. Plain
// and from-imports are linked until no more progress is made, so chains of
// re-exports settle regardless of file order. Star imports run last.
func (ix *Index) linkPython(mods []*pyModule) {
	placeholders := make(map[*symtab.Symbol]*pyImport)
	for _, mod := range mods {
		for _, imp := range mod.imports {
			if imp.placeholder != nil {
				placeholders[imp.placeholder] = imp
			}
		}
	}

	for progress := true; progress; {
		progress = false
		for _, mod := range mods {
			for _, imp := range mod.imports {
				if imp.done || imp.star {
					continue
				}
				if ix.linkImport(mod, imp, placeholders) {
					imp.done = true
					progress = true
				}
			}
		}
	}

	for progress := true; progress; {
		progress = false
		for _, mod := range mods {
			for _, imp := range mod.imports {
				if imp.star && ix.linkStar(mod, imp) {
					progress = true
				}
			}
		}
	}
}

func (ix *Index) linkImport(mod *pyModule, imp *pyImport, placeholders map[*symtab.Symbol]*pyImport) bool {
	target := absoluteModule(mod, imp)

	if !imp.from {
		m, ok := ix.modules[target]
		if !ok {
			return false
		}
		rebind(imp, m)
		return true
	}

	if m, ok := ix.modules[target]; ok {
		if sym, ok := m.Members.Lookup(imp.name); ok {
			if dep, isPlaceholder := placeholders[sym]; isPlaceholder && !dep.done {
				return false
			}
			rebind(imp, sym)
			return true
		}
	}
	if sub, ok := ix.modules[qualify(target, imp.name)]; ok {
		rebind(imp, sub)
		return true
	}
	return false
}

// linkStar copies the public bindings of the target module into the
// importing scope without overriding local names. It reports whether any
// binding was added.
func (ix *Index) linkStar(mod *pyModule, imp *pyImport) bool {
	m, ok := ix.modules[absoluteModule(mod, imp)]
	if !ok || m == mod.sym {
		return false
	}
	added := false
	for name, sym := range m.Members.All() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, bound := imp.scope.Lookup(name); !bound {
			imp.scope.Bind(name, sym)
			added = true
		}
	}
	return added
}

// rebind replaces the placeholder unless the name was rebound after the
// import.
func rebind(imp *pyImport, sym *symtab.Symbol) {
	if cur, ok := imp.scope.Lookup(imp.alias); ok && cur == imp.placeholder {
		imp.scope.Bind(imp.alias, sym)
	}
}

// absoluteModule resolves the dotted module an import refers to.
func absoluteModule(mod *pyModule, imp *pyImport) string {
	if imp.level == 0 {
		return imp.module
	}
	pkg := mod.name
	if !mod.isPkg {
		pkg = parentModule(pkg)
	}
	for i := 1; i < imp.level; i++ {
		pkg = parentModule(pkg)
	}
	return qualify(pkg, imp.module)
}

func parentModule(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return ""
}

// qualify joins two dotted name parts, either of which may be empty.
func qualify(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "." + name
}

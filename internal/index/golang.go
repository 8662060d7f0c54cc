package index

import (
	"path"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/deptree/internal/lang"
	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/symtab"
)

// goFile is one parsed Go file. Declarations are merged into their package
// scope after all files are parsed.
type goFile struct {
	path    string
	dir     string
	pkgName string

	imports []goImport
	funcs   []goFunc
	types   []*symtab.Symbol
	values  []*symtab.Symbol

	importPath string
	scope      *symtab.Scope // file scope, set by addGo
}

type goImport struct {
	alias string // "", "_", "." or an explicit name
	path  string
}

type goFunc struct {
	sym      *symtab.Symbol
	recvType string
	recvName string
}

type goExtractor struct {
	lang   *lang.Language
	source []byte
	file   *goFile
}

func extractGo(l *lang.Language, filePath string, source []byte, root *sitter.Node) *goFile {
	f := &goFile{path: filePath, dir: path.Dir(filePath)}
	e := &goExtractor{lang: l, source: source, file: f}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_clause":
			if id := node.NamedChild(0); id != nil {
				f.pkgName = lang.NodeText(id, source)
			}
		case "import_declaration":
			e.imports(node)
		case "function_declaration":
			e.function(node, "", "")
		case "method_declaration":
			recvName, recvType := receiver(node.ChildByFieldName("receiver"), source)
			if recvType != "" {
				e.function(node, recvType, recvName)
			}
		case "type_declaration":
			e.typeDecl(node)
		case "var_declaration", "const_declaration":
			e.values(node)
		}
	}
	return f
}

func (e *goExtractor) imports(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			e.importSpec(child)
		case "import_spec_list":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if spec := child.NamedChild(j); spec.Type() == "import_spec" {
					e.importSpec(spec)
				}
			}
		}
	}
}

func (e *goExtractor) importSpec(spec *sitter.Node) {
	pathNode := spec.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	imp := goImport{path: strings.Trim(lang.NodeText(pathNode, e.source), "\"`")}
	if name := spec.ChildByFieldName("name"); name != nil {
		imp.alias = lang.NodeText(name, e.source)
	}
	e.file.imports = append(e.file.imports, imp)
}

// symbol takes its source and line from node and its doc comment from
// docNode.
func (e *goExtractor) symbol(node, docNode *sitter.Node, name, qual string, kind model.SymbolKind) *symtab.Symbol {
	start := lang.LineStart(e.source, node.StartByte())
	end := node.EndByte()
	sym := &symtab.Symbol{
		Name:     name,
		QualName: qual,
		Kind:     kind,
		Language: e.lang.Name,
		Source:   e.source[start:end:end],
		File:     e.file.path,
		Line:     int(node.StartPoint().Row) + 1,
	}
	sym.Doc, sym.HasDoc = e.lang.DocComment(docNode, e.source)
	return sym
}

func (e *goExtractor) function(node *sitter.Node, recvType, recvName string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, e.source)
	kind, qual := model.Function, name
	if recvType != "" {
		kind, qual = model.Method, recvType+"."+name
	}
	e.file.funcs = append(e.file.funcs, goFunc{
		sym:      e.symbol(node, node, name, qual, kind),
		recvType: recvType,
		recvName: recvName,
	})
}

// typeDecl records each spec of a type declaration. A grouped spec carries
// its own source, line and doc; a lone spec in a group falls back to the
// group's doc comment.
func (e *goExtractor) typeDecl(node *sitter.Node) {
	grouped := false
	specs := 0
	for i := 0; i < int(node.ChildCount()); i++ {
		switch node.Child(i).Type() {
		case "(":
			grouped = true
		case "type_spec", "type_alias":
			specs++
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := lang.NodeText(nameNode, e.source)
		var sym *symtab.Symbol
		if grouped {
			sym = e.symbol(spec, spec, name, name, model.Type)
			if !sym.HasDoc && specs == 1 {
				sym.Doc, sym.HasDoc = e.lang.DocComment(node, e.source)
			}
		} else {
			sym = e.symbol(node, node, name, name, model.Type)
		}
		sym.Members = symtab.NewScope(name, nil)
		e.file.types = append(e.file.types, sym)
	}
}

func (e *goExtractor) values(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		switch spec.Type() {
		case "var_spec", "const_spec":
			e.valueSpec(spec)
		case "var_spec_list":
			e.values(spec)
		}
	}
}

func (e *goExtractor) valueSpec(spec *sitter.Node) {
	for i := 0; i < int(spec.NamedChildCount()); i++ {
		id := spec.NamedChild(i)
		if id.Type() != "identifier" {
			// Names come first; the type and values follow.
			return
		}
		name := lang.NodeText(id, e.source)
		e.file.values = append(e.file.values, &symtab.Symbol{
			Name:     name,
			QualName: name,
			Kind:     model.Variable,
			Language: e.lang.Name,
			File:     e.file.path,
			Line:     int(id.StartPoint().Row) + 1,
		})
	}
}

// receiver returns the receiver name and base type name of a method.
func receiver(params *sitter.Node, source []byte) (string, string) {
	if params == nil {
		return "", ""
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		var name string
		if n := p.ChildByFieldName("name"); n != nil {
			name = lang.NodeText(n, source)
		}
		return name, baseTypeName(p.ChildByFieldName("type"), source)
	}
	return "", ""
}

// baseTypeName strips pointers and type arguments from a receiver type.
func baseTypeName(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier":
		return lang.NodeText(n, source)
	case "generic_type":
		if t := n.ChildByFieldName("type"); t != nil {
			return baseTypeName(t, source)
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if name := baseTypeName(n.NamedChild(i), source); name != "" {
			return name
		}
	}
	return ""
}

// goPackage collects the files of one package directory.
type goPackage struct {
	sym   *symtab.Symbol
	types map[string]*symtab.Symbol
}

// typeSym returns the type symbol for name, creating a bare one when
// methods are seen before the declaration.
func (p *goPackage) typeSym(name string) *symtab.Symbol {
	if t, ok := p.types[name]; ok {
		return t
	}
	t := &symtab.Symbol{
		Name:     name,
		QualName: name,
		Kind:     model.Type,
		Language: p.sym.Language,
		Members:  symtab.NewScope(name, nil),
	}
	p.types[name] = t
	p.sym.Members.Bind(name, t)
	return t
}

func (ix *Index) addGo(files []*goFile, modulePath string) {
	packages := make(map[string]*goPackage)

	for _, f := range files {
		importPath := goImportPath(modulePath, f.dir)
		if strings.HasSuffix(f.pkgName, "_test") {
			importPath += "_test"
		}
		f.importPath = importPath
		pkg, ok := packages[importPath]
		if !ok {
			pkg = &goPackage{
				sym: &symtab.Symbol{
					Name:     f.pkgName,
					QualName: importPath,
					Kind:     model.Package,
					Language: "go",
					Members:  symtab.NewScope(importPath, nil),
				},
				types: make(map[string]*symtab.Symbol),
			}
			packages[importPath] = pkg
			ix.modules[importPath] = pkg.sym
		}
		ix.files[f.path] = pkg.sym
		f.scope = symtab.NewScope(f.path, pkg.sym.Members)

		for _, t := range f.types {
			existing := pkg.typeSym(t.Name)
			existing.Doc, existing.HasDoc = t.Doc, t.HasDoc
			existing.Source, existing.File, existing.Line = t.Source, t.File, t.Line
			existing.Scope = f.scope
		}
		for _, v := range f.values {
			v.Scope = f.scope
			pkg.sym.Members.Bind(v.Name, v)
		}
	}

	// Methods attach once every type of the package is known.
	for _, f := range files {
		pkg := packages[f.importPath]
		for _, fn := range f.funcs {
			sym := fn.sym
			sym.Scope = f.scope
			sym.Locals = symtab.NewScope(sym.QualName, f.scope)
			switch {
			case fn.recvType != "":
				t := pkg.typeSym(fn.recvType)
				t.Members.Bind(sym.Name, sym)
				if fn.recvName != "" && fn.recvName != "_" {
					sym.Locals.Bind(fn.recvName, t)
				}
			case sym.Name == "init":
				// init cannot be referenced, so it is never an entry.
				continue
			default:
				pkg.sym.Members.Bind(sym.Name, sym)
			}
			ix.callables = append(ix.callables, sym)
		}
	}
}

// linkGo binds each file's imports into its file scope. Packages outside the
// index are bound as opaque symbols.
func (ix *Index) linkGo(files []*goFile) {
	for _, f := range files {
		for _, imp := range f.imports {
			if imp.alias == "_" {
				continue
			}
			target, indexed := ix.modules[imp.path]
			if imp.alias == "." {
				if indexed {
					for name, sym := range target.Members.All() {
						if _, ok := f.scope.Lookup(name); !ok {
							f.scope.Bind(name, sym)
						}
					}
				}
				continue
			}
			if !indexed {
				target = &symtab.Symbol{
					Name:     importBase(imp.path),
					QualName: imp.path,
					Kind:     model.Package,
					Language: "go",
				}
			}
			alias := imp.alias
			if alias == "" {
				alias = target.Name
			}
			f.scope.Bind(alias, target)
		}
	}
}

func goImportPath(modulePath, dir string) string {
	switch {
	case modulePath == "":
		return dir
	case dir == ".":
		return modulePath
	}
	return modulePath + "/" + dir
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// importBase guesses the package name of an import path outside the index.
func importBase(importPath string) string {
	base := path.Base(importPath)
	if majorVersion.MatchString(base) {
		base = path.Base(path.Dir(importPath))
	}
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.TrimPrefix(base, "go-")
}

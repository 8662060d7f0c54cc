package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/deptree/internal/discover"
	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/symtab"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func buildIndex(t *testing.T, files map[string]string) *Index {
	t.Helper()
	root := writeFiles(t, files)
	entries, err := discover.Files(context.Background(), root)
	require.NoError(t, err)
	ix, err := Build(context.Background(), root, entries)
	require.NoError(t, err)
	return ix
}

func lookup(t *testing.T, ix *Index, ref string) *symtab.Symbol {
	t.Helper()
	sym, err := ix.Lookup(ref)
	require.NoError(t, err, ref)
	return sym
}

func resolve(t *testing.T, from *symtab.Symbol, name string) *symtab.Symbol {
	t.Helper()
	sym, ok := symtab.Resolve(name, from.ResolutionScope())
	require.True(t, ok, "resolve %q from %s", name, from.Key())
	return sym
}

func TestPythonDefinitions(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"shapes.py": `"""Shapes."""

LIMIT = 10


def area(w, h):
    """Area of a rectangle."""
    return w * h


class Box:
    """A box."""

    def __init__(self, w, h):
        self.w = w
        self.h = h

    @staticmethod
    def unit():
        return Box(1, 1)

    def volume(self, d):
        def inner():
            return d
        return area(self.w, self.h) * inner()
`,
	})

	area := lookup(t, ix, "shapes.py:area")
	assert.Equal(t, model.Function, area.Kind)
	assert.Equal(t, 6, area.Line)
	assert.True(t, area.HasDoc)
	assert.Equal(t, "Area of a rectangle.", area.Doc)
	assert.Contains(t, string(area.Source), "def area(w, h):")

	box := lookup(t, ix, "shapes.py:Box")
	assert.Equal(t, model.Class, box.Kind)
	assert.Equal(t, "A box.", box.Doc)

	volume := lookup(t, ix, "shapes.py:Box.volume")
	assert.Equal(t, model.Method, volume.Kind)
	assert.Equal(t, "Box.volume", volume.QualName)
	assert.Equal(t, "shapes.py:Box.volume", volume.Key())

	// self is bound to the class, nested functions and module names resolve
	// through the lexical chain.
	assert.Same(t, box, resolve(t, volume, "self"))
	assert.Same(t, area, resolve(t, volume, "area"))
	assert.Equal(t, "Box.volume.inner", resolve(t, volume, "inner").QualName)
	assert.Equal(t, "Box.__init__", resolve(t, volume, "self.__init__").QualName)

	// Methods are not visible as bare names.
	unit := lookup(t, ix, "shapes.py:Box.unit")
	_, ok := symtab.Resolve("volume", unit.ResolutionScope())
	assert.False(t, ok)

	limit := lookup(t, ix, "shapes.py:LIMIT")
	assert.Equal(t, model.Variable, limit.Kind)
	assert.False(t, limit.Callable())

	// Dotted module form.
	assert.Same(t, area, lookup(t, ix, "shapes.area"))
}

func TestPythonDecoratedSourceIncludesDecorators(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"app.py": "import functools\n\n\n@functools.lru_cache\ndef cached():\n    return 1\n",
	})

	sym := lookup(t, ix, "app.py:cached")
	assert.Equal(t, 4, sym.Line)
	assert.Equal(t, "@functools.lru_cache\ndef cached():\n    return 1", strings.TrimSpace(string(sym.Source)))
}

func TestPythonConditionalDefinitions(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"compat.py": `try:
    import fast
    def speedy():
        return fast.run()
except ImportError:
    def speedy():
        return 0

if True:
    def flagged():
        pass
`,
	})

	speedy := lookup(t, ix, "compat.py:speedy")
	assert.Equal(t, 6, speedy.Line, "the later definition wins")
	lookup(t, ix, "compat.py:flagged")
}

func TestPythonWrappedRebinding(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"wrap.py": `import functools


def helper():
    return 1


helper = functools.lru_cache(helper)
other = functools.lru_cache(helper)
count = 0
count = len(str(count))


def main():
    return helper() + other()
`,
	})

	main := lookup(t, ix, "wrap.py:main")
	helper := resolve(t, main, "helper")
	assert.Equal(t, model.Function, helper.Kind, "a wrapped definition stays callable")
	assert.Equal(t, 4, helper.Line)

	assert.Equal(t, model.Variable, resolve(t, main, "other").Kind)
	assert.Equal(t, model.Variable, resolve(t, main, "count").Kind)
}

func TestPythonImports(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"pkg/__init__.py": "from .core import run\n",
		"pkg/core.py":     "from . import util\nfrom .util import helper as h\n\n\ndef run():\n    return h() + util.other()\n",
		"pkg/util.py":     "import os\n\n\ndef helper():\n    return os.getcwd()\n\n\ndef other():\n    pass\n\n\ndef _private():\n    pass\n",
		"main.py":         "import pkg\nimport pkg.util as u\nfrom pkg import run\nfrom pkg.util import *\nfrom missing import thing\n\n\ndef main():\n    run()\n    pkg.run()\n    u.helper()\n    other()\n    thing()\n",
	})

	run := lookup(t, ix, "pkg/core.py:run")
	helper := lookup(t, ix, "pkg/util.py:helper")
	other := lookup(t, ix, "pkg/util.py:other")

	assert.Same(t, helper, resolve(t, run, "h"))
	assert.Same(t, other, resolve(t, run, "util.other"))

	main := lookup(t, ix, "main.py:main")
	assert.Same(t, run, resolve(t, main, "run"), "re-exported through the package")
	assert.Same(t, run, resolve(t, main, "pkg.run"))
	assert.Same(t, helper, resolve(t, main, "u.helper"))
	assert.Same(t, other, resolve(t, main, "other"), "star import")

	_, ok := symtab.Resolve("_private", main.ResolutionScope())
	assert.False(t, ok, "star imports skip private names")

	thing := resolve(t, main, "thing")
	assert.False(t, thing.Callable(), "unindexed imports stay opaque")

	getcwd, ok := symtab.Resolve("os.getcwd", helper.ResolutionScope())
	assert.False(t, ok && getcwd.Callable())

	mod, ok := ix.Module("pkg")
	require.True(t, ok)
	assert.Equal(t, model.Module, mod.Kind)
	assert.Equal(t, "pkg/__init__.py", mod.File)
}

func TestPythonSrcLayout(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"src/lib/ops.py": "def add(a, b):\n    return a + b\n",
		"app.py":         "from lib.ops import add\n\n\ndef main():\n    return add(1, 2)\n",
	})

	main := lookup(t, ix, "app.py:main")
	assert.Same(t, lookup(t, ix, "src/lib/ops.py:add"), resolve(t, main, "add"))
}

func TestGoPackages(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"go.mod": "module example.com/shop\n\ngo 1.22\n",
		"cart/cart.go": `package cart

import (
	"fmt"
	str "strings"

	"example.com/shop/price"
)

// Cart holds items.
type Cart struct {
	items []string
}

// Total sums the cart.
func (c *Cart) Total() int {
	fmt.Println(str.Join(c.items, ","))
	return price.Sum(c.items) + c.count()
}

func New() *Cart {
	return &Cart{}
}
`,
		"cart/count.go": `package cart

func (c Cart) count() int {
	return len(c.items)
}
`,
		"price/price.go": `package price

const Unit = 1

// Sum prices items.
//
//go:noinline
func Sum(items []string) int {
	return len(items) * Unit
}
`,
	})

	total := lookup(t, ix, "cart/cart.go:Cart.Total")
	assert.Equal(t, model.Method, total.Kind)
	assert.Equal(t, "Total sums the cart.", total.Doc)
	assert.Equal(t, 16, total.Line)

	sum := lookup(t, ix, "price/price.go:Sum")
	assert.Equal(t, "Sum prices items.", sum.Doc)

	count := lookup(t, ix, "cart/count.go:Cart.count")

	assert.Same(t, sum, resolve(t, total, "price.Sum"))
	assert.Same(t, count, resolve(t, total, "c.count"), "methods from other files of the package")
	assert.Same(t, lookup(t, ix, "cart/cart.go:New"), resolve(t, count, "New"))

	fmtPkg := resolve(t, total, "fmt")
	assert.Equal(t, model.Package, fmtPkg.Kind)
	_, ok := symtab.Resolve("str.Join", total.ResolutionScope())
	assert.False(t, ok, "unindexed packages have no members")

	cart := lookup(t, ix, "cart/cart.go:Cart")
	assert.Equal(t, model.Type, cart.Kind)
	assert.False(t, cart.Callable())
	assert.Equal(t, "Cart holds items.", cart.Doc)

	// Import-path form.
	assert.Same(t, total, lookup(t, ix, "example.com/shop/cart.Cart.Total"))
	assert.Same(t, sum, lookup(t, ix, "example.com/shop/price.Sum"))
}

func TestGoGroupedTypes(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"shapes.go": `package shapes

// Shapes of the plane.
type (
	// Point is a location.
	Point struct{ X, Y int }

	Line struct{ A, B Point }
)

// Lonely is alone.
type (
	Lonely int
)

// Single is declared on its own.
type Single struct{}
`,
	})

	point := lookup(t, ix, "shapes.go:Point")
	assert.Equal(t, 6, point.Line)
	assert.Equal(t, "Point struct{ X, Y int }", strings.TrimSpace(string(point.Source)))
	assert.Equal(t, "Point is a location.", point.Doc)

	line := lookup(t, ix, "shapes.go:Line")
	assert.Equal(t, 8, line.Line)
	assert.Equal(t, "Line struct{ A, B Point }", strings.TrimSpace(string(line.Source)))
	assert.False(t, line.HasDoc, "the group comment belongs to no single spec")

	assert.Equal(t, "Lonely is alone.", lookup(t, ix, "shapes.go:Lonely").Doc)

	single := lookup(t, ix, "shapes.go:Single")
	assert.Equal(t, 17, single.Line)
	assert.Equal(t, "type Single struct{}", strings.TrimSpace(string(single.Source)))
	assert.Equal(t, "Single is declared on its own.", single.Doc)
}

func TestGoInitNotCallable(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"a.go": "package a\n\nfunc init() {\n\tsetup()\n}\n\nfunc setup() {}\n",
	})

	var keys []string
	for _, sym := range ix.Callables() {
		keys = append(keys, sym.Key())
	}
	assert.Equal(t, []string{"a.go:setup"}, keys)

	_, err := ix.Lookup("a.go:init")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	for _, ref := range []string{"a.py:g", "b.py:f", "a.py:", "a.g", "nothing"} {
		_, err := ix.Lookup(ref)
		assert.ErrorIs(t, err, ErrUnknownSymbol, ref)
	}

	sym, err := ix.Lookup(filepath.Join(ix.Root, "a.py") + ":f")
	require.NoError(t, err)
	assert.Equal(t, "a.py:f", sym.Key())
}

func TestCallablesSorted(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, map[string]string{
		"b.py": "def z():\n    pass\n\n\ndef a():\n    pass\n",
		"a.py": "class K:\n    def m(self):\n        pass\n",
	})

	var keys []string
	for _, sym := range ix.Callables() {
		keys = append(keys, sym.Key())
	}
	assert.Equal(t, []string{"a.py:K", "a.py:K.m", "b.py:a", "b.py:z"}, keys)
	assert.Equal(t, 2, ix.Files())
}

func TestMaxFileSize(t *testing.T) {
	t.Parallel()

	root := writeFiles(t, map[string]string{
		"big.py":   "def big():\n    return '" + strings.Repeat("x", 40) + "'\n",
		"small.py": "def s():\n    pass\n",
	})
	entries := []discover.FileEntry{
		{Path: "big.py", Language: "python"},
		{Path: "small.py", Language: "python"},
		{Path: "gone.py", Language: "python"},
	}
	ix, err := Build(context.Background(), root, entries, WithMaxFileSize(30), WithWorkers(1))
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Files())
	_, err = ix.Lookup("big.py:big")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestBuildCancelled(t *testing.T) {
	t.Parallel()

	root := writeFiles(t, map[string]string{"a.py": "def f():\n    pass\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, root, []discover.FileEntry{{Path: "a.py", Language: "python"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"fmt", "fmt"},
		{"net/http", "http"},
		{"github.com/dgraph-io/badger/v4", "badger"},
		{"github.com/sabhiram/go-gitignore", "gitignore"},
		{"gopkg.in/yaml.v3", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, importBase(tt.path))
		})
	}
}

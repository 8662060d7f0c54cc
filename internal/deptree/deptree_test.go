package deptree

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/symtab"
)

// pyFunc defines a Python function in scope whose body calls each of calls.
func pyFunc(scope *symtab.Scope, file, name string, calls ...string) *symtab.Symbol {
	var body strings.Builder
	fmt.Fprintf(&body, "def %s():\n", name)
	if len(calls) == 0 {
		body.WriteString("    pass\n")
	}
	for _, c := range calls {
		fmt.Fprintf(&body, "    %s()\n", c)
	}
	sym := &symtab.Symbol{
		Name:     name,
		QualName: name,
		Kind:     model.Function,
		Language: "python",
		Source:   []byte(body.String()),
		File:     file,
		Line:     1,
		Scope:    scope,
	}
	scope.Bind(name, sym)
	return sym
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := New()
	require.NoError(t, err)
	return b
}

func names(recs []*model.FunctionRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func TestDepthBound(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	a := pyFunc(scope, "m.py", "a", "b")
	pyFunc(scope, "m.py", "b", "c")
	pyFunc(scope, "m.py", "c", "d")
	pyFunc(scope, "m.py", "d", "e")
	pyFunc(scope, "m.py", "e")

	b := newBuilder(t)
	for depth := 0; depth <= 5; depth++ {
		rec, err := b.Build(a, depth)
		require.NoError(t, err)
		want := depth
		if want > 4 {
			want = 4
		}
		assert.Equal(t, want, rec.Height(), "max depth %d", depth)
		rec.Walk(func(_, _ *model.FunctionRecord, d int) {
			assert.LessOrEqual(t, d, depth)
		})
	}
}

func TestDefaultDepth(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	a := pyFunc(scope, "m.py", "a", "b")
	pyFunc(scope, "m.py", "b", "c")
	pyFunc(scope, "m.py", "c", "d")
	pyFunc(scope, "m.py", "d")

	rec, err := newBuilder(t).Build(a, DefaultMaxDepth)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Height())
}

func TestCycleSafety(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	a := pyFunc(scope, "m.py", "a", "b")
	pyFunc(scope, "m.py", "b", "a")

	rec, err := newBuilder(t).Build(a, 3)
	require.NoError(t, err)

	require.Len(t, rec.Dependencies, 1)
	bRec := rec.Dependencies[0]
	assert.Equal(t, "b", bRec.Name)
	require.Len(t, bRec.Dependencies, 1)
	again := bRec.Dependencies[0]
	assert.Equal(t, "a", again.Name)
	assert.Empty(t, again.Dependencies)
}

func TestSelfCallSafety(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	f := pyFunc(scope, "m.py", "f", "f")

	for _, depth := range []int{1, 2, 10} {
		rec, err := newBuilder(t).Build(f, depth)
		require.NoError(t, err)
		require.Len(t, rec.Dependencies, 1)
		assert.Equal(t, "f", rec.Dependencies[0].Name)
		assert.Empty(t, rec.Dependencies[0].Dependencies)
	}
}

func TestBestEffortMetadata(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	f := pyFunc(scope, "m.py", "f", "generated")
	scope.Bind("generated", &symtab.Symbol{
		Name:     "generated",
		QualName: "generated",
		Kind:     model.Function,
		Language: "python",
		Scope:    scope,
	})

	rec, err := newBuilder(t).Build(f, 2)
	require.NoError(t, err)
	assert.Nil(t, rec.Docstring)
	assert.NotNil(t, rec.Source)
	assert.NotNil(t, rec.SourceFile)
	assert.NotNil(t, rec.LineNumber)

	require.Len(t, rec.Dependencies, 1)
	gen := rec.Dependencies[0]
	assert.Equal(t, "generated", gen.Name)
	assert.Nil(t, gen.Source)
	assert.Nil(t, gen.SourceFile)
	assert.Nil(t, gen.LineNumber)
	assert.Empty(t, gen.Dependencies)
}

func TestUnresolvedTargetsAreDropped(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	f := pyFunc(scope, "m.py", "f", "g", "missing", "obj.method", "CONFIG")
	pyFunc(scope, "m.py", "g")
	scope.Bind("CONFIG", &symtab.Symbol{Name: "CONFIG", QualName: "CONFIG", Kind: model.Variable})

	rec, err := newBuilder(t).Build(f, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, names(rec.Dependencies))
}

func TestRecursiveMultiplyScenario(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("ops", nil)
	add := &symtab.Symbol{
		Name: "add", QualName: "add", Kind: model.Function, Language: "python",
		File: "ops.py", Line: 1, Scope: scope,
		Source: []byte(`def add(a: int, b: int) -> int:
    while b != 0:
        carry = a & b
        a = a ^ b
        b = carry << 1
    return a
`),
	}
	scope.Bind("add", add)
	mul := &symtab.Symbol{
		Name: "recursive_multiply", QualName: "recursive_multiply", Kind: model.Function, Language: "python",
		File: "ops.py", Line: 9, Scope: scope, Doc: "Multiplies a by b.", HasDoc: true,
		Source: []byte(`def recursive_multiply(a: int, b: int) -> int:
    """Multiplies a by b."""
    if b == 0:
        return 0
    elif b < 0:
        return -recursive_multiply(a, -b)
    elif b == 1:
        return a
    half = recursive_multiply(a, b // 2)
    if b % 2 == 0:
        return add(half, half)
    return add(add(half, half), a)
`),
	}
	scope.Bind("recursive_multiply", mul)

	rec, err := newBuilder(t).Build(mul, 2)
	require.NoError(t, err)
	assert.Equal(t, "recursive_multiply", rec.Name)

	var addRec *model.FunctionRecord
	for _, d := range rec.Dependencies {
		if d.Name == "add" {
			addRec = d
		}
	}
	require.NotNil(t, addRec, "add must be a dependency")
	assert.Empty(t, addRec.Dependencies)
	for _, d := range rec.Dependencies {
		assert.Empty(t, d.Dependencies, d.Name)
	}
}

func TestQualifiedKeysKeepSameNamesApart(t *testing.T) {
	t.Parallel()

	other := symtab.NewScope("b", nil)
	pyFunc(other, "b.py", "helper", "leaf_b")
	pyFunc(other, "b.py", "leaf_b")

	scope := symtab.NewScope("a", nil)
	scope.Bind("b", &symtab.Symbol{Name: "b", QualName: "b", Kind: model.Module, Members: other})
	f := pyFunc(scope, "a.py", "f", "helper", "b.helper")
	pyFunc(scope, "a.py", "helper", "leaf_a")
	pyFunc(scope, "a.py", "leaf_a")

	rec, err := newBuilder(t).Build(f, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"helper", "helper"}, names(rec.Dependencies))
	assert.Equal(t, []string{"leaf_a"}, names(rec.Dependencies[0].Dependencies))
	assert.Equal(t, []string{"leaf_b"}, names(rec.Dependencies[1].Dependencies))
}

func TestSharedDependencyAcrossSiblings(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	f := pyFunc(scope, "m.py", "f", "g", "h")
	pyFunc(scope, "m.py", "g", "k")
	pyFunc(scope, "m.py", "h", "k")
	pyFunc(scope, "m.py", "k", "leaf")
	pyFunc(scope, "m.py", "leaf")

	rec, err := newBuilder(t).Build(f, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"g", "h"}, names(rec.Dependencies))

	g, h := rec.Dependencies[0], rec.Dependencies[1]
	require.Equal(t, []string{"k"}, names(g.Dependencies))
	assert.Equal(t, []string{"leaf"}, names(g.Dependencies[0].Dependencies))

	require.Equal(t, []string{"k"}, names(h.Dependencies), "the stub is still listed")
	assert.Empty(t, h.Dependencies[0].Dependencies)
}

func TestUnparseableDependencyIsSkipped(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	f := pyFunc(scope, "m.py", "f", "broken", "fine")
	pyFunc(scope, "m.py", "fine")
	scope.Bind("broken", &symtab.Symbol{
		Name: "broken", QualName: "broken", Kind: model.Function, Language: "python",
		File: "m.py", Line: 10, Scope: scope,
		Source: []byte("def broken(:\n    g(\n"),
	})

	rec, err := newBuilder(t).Build(f, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, names(rec.Dependencies))
}

func TestUnparseableRootHasNoDependencies(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	pyFunc(scope, "m.py", "g")
	root := &symtab.Symbol{
		Name: "root", QualName: "root", Kind: model.Function, Language: "python",
		File: "m.py", Line: 1, Scope: scope,
		Source: []byte("def root(:\n    g()\n"),
	}

	rec, err := newBuilder(t).Build(root, 2)
	require.NoError(t, err)
	assert.Equal(t, "root", rec.Name)
	assert.Empty(t, rec.Dependencies)
}

func TestContractViolations(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	f := pyFunc(scope, "m.py", "f")
	b := newBuilder(t)

	_, err := b.Build(f, -1)
	require.ErrorIs(t, err, ErrNegativeDepth)

	_, err = b.Build(&symtab.Symbol{Name: "x", QualName: "x", Kind: model.Variable}, 2)
	require.ErrorIs(t, err, ErrNotCallable)

	_, err = b.Build(nil, 2)
	require.ErrorIs(t, err, ErrNotCallable)
}

func TestBuildAllUsesFreshVisitedSets(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	a := pyFunc(scope, "m.py", "a", "shared")
	b := pyFunc(scope, "m.py", "b", "shared")
	pyFunc(scope, "m.py", "shared", "leaf")
	pyFunc(scope, "m.py", "leaf")

	recs, err := newBuilder(t).BuildAll(context.Background(), []*symtab.Symbol{a, b}, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names(recs))
	for _, rec := range recs {
		require.Equal(t, []string{"shared"}, names(rec.Dependencies))
		assert.Equal(t, []string{"leaf"}, names(rec.Dependencies[0].Dependencies))
	}
}

func TestBuildAllPropagatesContractErrors(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	a := pyFunc(scope, "m.py", "a")
	v := &symtab.Symbol{Name: "v", QualName: "v", Kind: model.Variable}

	_, err := newBuilder(t).BuildAll(context.Background(), []*symtab.Symbol{a, v}, 2)
	require.ErrorIs(t, err, ErrNotCallable)
}

func TestBuildAllCancelled(t *testing.T) {
	t.Parallel()

	scope := symtab.NewScope("m", nil)
	a := pyFunc(scope, "m.py", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBuilder(t).BuildAll(ctx, []*symtab.Symbol{a}, 2)
	require.ErrorIs(t, err, context.Canceled)
}

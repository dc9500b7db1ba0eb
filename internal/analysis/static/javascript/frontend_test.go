package javascript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
	"github.com/xkilldash9x/jsonguard/internal/analysis/sanitizer"
)

func lower(t *testing.T, code string) *Program {
	t.Helper()
	prog, err := NewFrontend(zaptest.NewLogger(t)).Parse(context.Background(), "test.js", []byte(code))
	require.NoError(t, err)
	for _, fn := range prog.Funcs {
		require.NoError(t, fn.Validate(), "func %s", fn.Name)
	}
	return prog
}

func comments(fn *ir.Func) []string {
	out := make([]string, len(fn.Blocks))
	for i, b := range fn.Blocks {
		out[i] = b.Comment
	}
	return out
}

func edges(fn *ir.Func) []string {
	var out []string
	for _, b := range fn.Blocks {
		for _, e := range b.Succs {
			out = append(out, fmt.Sprintf("b%d->b%d %s", e.From.Index, e.To.Index, e.Kind))
		}
	}
	return out
}

func funcNames(prog *Program) []string {
	out := make([]string, len(prog.Funcs))
	for i, fn := range prog.Funcs {
		out[i] = fn.Name
	}
	return out
}

// stmtAt returns the point of the first statement on the given line.
func stmtAt(t *testing.T, fn *ir.Func, line int) ir.Point {
	t.Helper()
	for _, b := range fn.Blocks {
		for i, s := range b.Stmts {
			if s.Pos().Line == line {
				return ir.Point{Block: b.Index, Index: i}
			}
		}
	}
	t.Fatalf("no statement on line %d", line)
	return ir.Point{}
}

func TestFrontend_IfElse(t *testing.T) {
	t.Parallel()
	prog := lower(t, "const x = JSON.parse(s);\nif (x.p) {\n  use(x.p);\n} else {\n  use(1);\n}\nuse(x);\n")
	require.Len(t, prog.Funcs, 1)
	fn := prog.Funcs[0]

	assert.Equal(t, ProgramFunc, fn.Name)
	assert.Equal(t, []string{"entry", "if.then", "if.else", "if.join"}, comments(fn))
	assert.Equal(t, []string{
		"b0->b1 true",
		"b0->b2 false",
		"b1->b3 unconditional",
		"b2->b3 unconditional",
	}, edges(fn))

	entry := fn.Entry()
	require.Len(t, entry.Stmts, 1)
	assign, ok := entry.Stmts[0].(*ir.Assign)
	require.True(t, ok)
	assert.Equal(t, "x", assign.Target)
	assert.Equal(t, "JSON.parse(s)", ir.Format(assign.Value))

	br, ok := entry.Control.(*ir.Branch)
	require.True(t, ok)
	assert.Equal(t, "x.p", ir.Format(br.Cond))
	assert.Equal(t, ir.Pos{Line: 2, Column: 1}, br.At)
}

func TestFrontend_IfWithoutElse(t *testing.T) {
	t.Parallel()
	fn := lower(t, "if (a) b();\nc();\n").Funcs[0]
	assert.Equal(t, []string{"entry", "if.then", "if.join"}, comments(fn))
	assert.Equal(t, []string{"b0->b1 true", "b0->b2 false", "b1->b2 unconditional"}, edges(fn))
}

func TestFrontend_WhileLoop(t *testing.T) {
	t.Parallel()
	fn := lower(t, "while (x.p) {\n  x = x.next;\n}\n").Funcs[0]

	assert.Equal(t, []string{"entry", "while.header", "while.body", "while.after"}, comments(fn))
	assert.Equal(t, []string{
		"b0->b1 unconditional",
		"b1->b2 loop-body",
		"b1->b3 loop-exit",
		"b2->b1 unconditional",
	}, edges(fn))
	require.Len(t, fn.Blocks[2].Stmts, 1)
	assign := fn.Blocks[2].Stmts[0].(*ir.Assign)
	assert.Equal(t, "x", assign.Target)
	assert.Equal(t, "x.next", ir.Format(assign.Value))
}

func TestFrontend_DoWhileAndFor(t *testing.T) {
	t.Parallel()
	fn := lower(t, "do { a(); } while (b);\nfor (let i = 0; i < n; i++) { c(i); }\nfor (;;) { break; }\n").Funcs[0]

	var loops int
	for _, b := range fn.Blocks {
		if br, ok := b.Control.(*ir.Branch); ok {
			loops++
			kinds := map[ir.EdgeKind]bool{}
			for _, e := range b.Succs {
				kinds[e.Kind] = true
			}
			assert.True(t, kinds[ir.EdgeLoopBody] && kinds[ir.EdgeLoopExit], "loop test %s", ir.Format(br.Cond))
		}
	}
	assert.Equal(t, 2, loops, "the condition-less for has no test")
}

func TestFrontend_ForInAndForOf(t *testing.T) {
	t.Parallel()
	fn := lower(t, "for (const k in obj) { use(k); }\nfor (const v of list.items) { use(v); }\nfor (const [a, b] of pairs) { use(a); }\n").Funcs[0]

	var loops []*ir.ForIn
	for _, b := range fn.Blocks {
		if c, ok := b.Control.(*ir.ForIn); ok {
			loops = append(loops, c)
		}
	}
	require.Len(t, loops, 3)
	assert.Equal(t, "k", loops[0].Key)
	assert.False(t, loops[0].Of)
	assert.Equal(t, "obj", ir.Format(loops[0].Object))
	assert.Equal(t, "v", loops[1].Key)
	assert.True(t, loops[1].Of)
	assert.Equal(t, "list.items", ir.Format(loops[1].Object))
	assert.Equal(t, "", loops[2].Key, "patterns bind through statements")

	var bound []string
	for _, b := range fn.Blocks {
		for _, s := range b.Stmts {
			if a, ok := s.(*ir.Assign); ok {
				if op, ok := a.Value.(*ir.Opaque); ok && op.Kind == "element" {
					bound = append(bound, a.Target)
				}
			}
		}
	}
	assert.Equal(t, []string{"a", "b"}, bound)
}

func TestFrontend_Functions(t *testing.T) {
	t.Parallel()
	prog := lower(t, `function outer(a, b = {}) {
  const inner = function () { return a; };
  return inner;
}
const arrow = (s) => JSON.parse(s).x;
obj.handler = function () {};
class Widget { render() {} }
const o = { run() {}, go: () => 1 };
`)
	assert.Equal(t, []string{
		ProgramFunc, "outer", "arrow", "obj.handler", "Widget.render", "run", "go", "inner",
	}, funcNames(prog))

	outer := prog.Funcs[1]
	assert.Equal(t, []string{"a", "b"}, outer.Params)
	first := outer.Entry().Stmts[0].(*ir.Assign)
	assert.Equal(t, "b", first.Target)
	assert.Equal(t, "(b ?? <object>)", ir.Format(first.Value))

	arrow := prog.Funcs[2]
	assert.Equal(t, []string{"s"}, arrow.Params)
	require.Len(t, arrow.Entry().Stmts, 1)
	assert.Equal(t, "JSON.parse(s).x", ir.Format(arrow.Entry().Stmts[0].(*ir.Eval).X))

	top := prog.Funcs[0]
	assert.Nil(t, top.Outer)
	for _, fn := range prog.Funcs[1:7] {
		assert.Same(t, top, fn.Outer, fn.Name)
	}
	assert.Same(t, outer, prog.Funcs[7].Outer, "inner is defined in outer")
}

func TestFrontend_TryCatch(t *testing.T) {
	t.Parallel()
	fn := lower(t, "try {\n  a();\n  b();\n} catch (e) {\n  c(e);\n}\nd();\n").Funcs[0]

	assert.Equal(t, []string{"entry", "try.body", "try.body", "catch", "try.after"}, comments(fn))
	assert.Equal(t, []string{
		"b0->b1 unconditional",
		"b0->b3 unconditional",
		"b1->b2 unconditional",
		"b1->b3 unconditional",
		"b2->b3 unconditional",
		"b2->b4 unconditional",
		"b3->b4 unconditional",
	}, edges(fn))

	catch := fn.Blocks[3]
	param := catch.Stmts[0].(*ir.Assign)
	assert.Equal(t, "e", param.Target)
}

func TestFrontend_TryFinally(t *testing.T) {
	t.Parallel()
	fn := lower(t, "try {\n  a();\n} finally {\n  b();\n}\n").Funcs[0]
	assert.Equal(t, []string{"entry", "try.body", "try.after", "finally"}, comments(fn))

	fin := fn.Blocks[3]
	var from []int
	for _, e := range fin.Preds {
		from = append(from, e.From.Index)
	}
	assert.ElementsMatch(t, []int{0, 1, 1}, from, "normal completion and throws both reach finally")
}

func TestFrontend_Switch(t *testing.T) {
	t.Parallel()
	fn := lower(t, "switch (k) {\ncase 1:\n  a();\ncase 2:\n  b();\n  break;\ndefault:\n  c();\n}\nd();\n").Funcs[0]

	var tests []string
	for _, b := range fn.Blocks {
		if br, ok := b.Control.(*ir.Branch); ok {
			tests = append(tests, ir.Format(br.Cond))
		}
	}
	assert.Equal(t, []string{"(k === 1)", "(k === 2)"}, tests)

	// case 1 falls through into case 2.
	case1, case2 := fn.Blocks[2], fn.Blocks[3]
	require.Len(t, case1.Succs, 1)
	assert.Equal(t, case2, case1.Succs[0].To)

	exit := fn.Blocks[1]
	assert.Equal(t, "switch.after", exit.Comment)
	var from []int
	for _, e := range exit.Preds {
		from = append(from, e.From.Index)
	}
	assert.ElementsMatch(t, []int{3, 4}, from)
}

func TestFrontend_LabeledJumps(t *testing.T) {
	t.Parallel()
	fn := lower(t, `outer: for (const a of xs) {
  for (const b of ys) {
    if (b) continue outer;
    break outer;
  }
}
done();
`).Funcs[0]

	outerHeader := fn.Blocks[1]
	_, ok := outerHeader.Control.(*ir.ForIn)
	require.True(t, ok)
	assert.Len(t, outerHeader.Preds, 3, "entry, continue outer and the end of the outer body")

	var exit *ir.Block
	for _, e := range outerHeader.Succs {
		if e.Kind == ir.EdgeLoopExit {
			exit = e.To
		}
	}
	require.NotNil(t, exit)
	assert.Len(t, exit.Preds, 2, "loop exit and break outer")
	require.Len(t, exit.Stmts, 1)
	assert.Equal(t, "done()", ir.Format(exit.Stmts[0].(*ir.Eval).X))
}

func TestFrontend_HoistsNestedAssignments(t *testing.T) {
	t.Parallel()
	fn := lower(t, "let x;\nif ((x = JSON.parse(s)) && x.ok) { use(x.ok); }\n").Funcs[0]

	entry := fn.Entry()
	require.Len(t, entry.Stmts, 1)
	assert.Equal(t, "x", entry.Stmts[0].(*ir.Assign).Target)
	assert.Equal(t, "(x && x.ok)", ir.Format(entry.Control.(*ir.Branch).Cond))
}

func TestFrontend_Destructuring(t *testing.T) {
	t.Parallel()
	fn := lower(t, "const { a, b: { c }, d = 1 } = JSON.parse(s);\nconst [first] = list;\n").Funcs[0]

	var got []string
	for _, s := range fn.Entry().Stmts {
		a := s.(*ir.Assign)
		got = append(got, a.Target+" = "+ir.Format(a.Value))
	}
	assert.Equal(t, []string{
		"JSON.parse(s) = JSON.parse(s)",
		"a = JSON.parse(s).a",
		"c = JSON.parse(s).b.c",
		"d = (JSON.parse(s).d ?? 1)",
		"first = list[0]",
	}, got)
}

func TestFrontend_StoresAndUpdates(t *testing.T) {
	t.Parallel()
	fn := lower(t, "o.a = 1;\no['b'] += 2;\no.c++;\nn++;\n").Funcs[0]

	var got []string
	for _, s := range fn.Entry().Stmts {
		switch s := s.(type) {
		case *ir.Store:
			got = append(got, "store "+ir.Format(s.Target))
		case *ir.Assign:
			got = append(got, "assign "+s.Target)
		}
	}
	assert.Equal(t, []string{"store o.a", "store o.b", "store o.c", "assign n"}, got)
}

func TestFrontend_SyntaxErrors(t *testing.T) {
	t.Parallel()
	prog, err := NewFrontend(zaptest.NewLogger(t)).Parse(context.Background(), "broken.js", []byte("const x = JSON.parse(s);\nif (x. {\n"))
	require.NoError(t, err)
	assert.True(t, prog.SyntaxErrors)
	require.NotEmpty(t, prog.Funcs)
}

func TestFrontend_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFrontend(zaptest.NewLogger(t)).Parse(ctx, "c.js", []byte("a();"))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestFrontend_SanitizedPaths runs the solver over a lowered fixture and
// checks which paths are proven at each read.
func TestFrontend_SanitizedPaths(t *testing.T) {
	t.Parallel()
	src, err := os.ReadFile(filepath.Join("testdata", "sanitized.js"))
	require.NoError(t, err)
	prog, err := NewFrontend(zaptest.NewLogger(t)).Parse(context.Background(), "sanitized.js", src)
	require.NoError(t, err)

	solver, err := sanitizer.NewSolver(sanitizer.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	fn := prog.Funcs[0]
	res, err := solver.Solve(context.Background(), fn)
	require.NoError(t, err)

	tests := []struct {
		line int
		path string
		want bool
	}{
		{15, "x", true},
		{15, "x.p", true},
		{16, "x.p", true},
		{17, "x.c", false},
		{19, "x.p", false},
		{21, "x.k", false},
		{24, "x.c", true},
		{28, "x.k", true},
		{29, "x.w", false},
		{33, "x.w", true},
		{35, "x.w", false},
		{37, "x.q", false},
		{40, "x.q", true},
	}
	for _, tt := range tests {
		pt := stmtAt(t, fn, tt.line)
		assert.Equal(t, tt.want, res.IsSanitized(sanitizer.ParsePath(tt.path), pt), "line %d: %s", tt.line, tt.path)
		assert.True(t, res.IsTainted(sanitizer.ParsePath(tt.path), pt), "line %d: %s", tt.line, tt.path)
	}
}

package nullcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
	"github.com/xkilldash9x/jsonguard/internal/analysis/sanitizer"
)

func newTestRule(t *testing.T, cfg sanitizer.Config) *Rule {
	t.Helper()
	s, err := sanitizer.NewSolver(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return NewRule(s)
}

func check(t *testing.T, cfg sanitizer.Config, fn *ir.Func) []Violation {
	t.Helper()
	vs, err := newTestRule(t, cfg).Check(context.Background(), fn)
	require.NoError(t, err)
	return vs
}

func parsed(name string) ir.Stmt {
	return ir.Let(name, ir.CallTo("JSON.parse", ir.Name("input")))
}

func use(args ...ir.Expr) ir.Stmt { return ir.Do(ir.CallTo("use", args...)) }

func straight(stmts ...ir.Stmt) *ir.Func {
	fn := ir.NewFunc("straight", ir.Pos{})
	fn.Entry().Add(stmts...)
	return fn
}

type flagged struct {
	point   ir.Point
	message string
}

func summarize(vs []Violation) []flagged {
	out := make([]flagged, len(vs))
	for i, v := range vs {
		out[i] = flagged{v.Point, v.Message}
	}
	return out
}

func TestRule_ReadSanitizesLaterReads(t *testing.T) {
	t.Parallel()
	fn := straight(parsed("x"), use(ir.Dotted("x.a")), use(ir.Dotted("x.b")))

	vs := check(t, sanitizer.DefaultConfig(), fn)
	require.Len(t, vs, 1)
	assert.Equal(t, "x could be null or undefined", vs[0].Message)
	assert.Equal(t, ir.Point{Block: 0, Index: 1}, vs[0].Point)
	assert.Equal(t, "x", vs[0].Path.String())
	assert.Equal(t, "straight", vs[0].Func)
	assert.Equal(t, "a", vs[0].Expr.Property)
}

func TestRule_WithoutDereferenceFacts(t *testing.T) {
	t.Parallel()
	cfg := sanitizer.DefaultConfig()
	cfg.DereferenceImpliesNonNull = false

	fn := straight(parsed("x"), use(ir.Dotted("x.a")), use(ir.Dotted("x.b"), ir.Dotted("x.c")))
	vs := check(t, cfg, fn)
	assert.Equal(t, []flagged{
		{ir.Point{Block: 0, Index: 1}, "x could be null or undefined"},
		{ir.Point{Block: 0, Index: 2}, "x could be null or undefined"},
	}, summarize(vs))
}

func TestRule_OneFindingPerBasePerStatement(t *testing.T) {
	t.Parallel()
	// use(x.a.p, x.a.q, x.b)
	fn := straight(parsed("x"), use(ir.Dotted("x.a.p"), ir.Dotted("x.a.q"), ir.Dotted("x.b")))

	vs := check(t, sanitizer.DefaultConfig(), fn)
	assert.Equal(t, []flagged{
		{ir.Point{Block: 0, Index: 1}, "x could be null or undefined"},
		{ir.Point{Block: 0, Index: 1}, "x.a could be null or undefined"},
	}, summarize(vs))
}

func TestRule_BranchGuards(t *testing.T) {
	t.Parallel()
	// x = JSON.parse(input); if (x) { use(x.p) } else { use(x.p) }
	fn := ir.NewFunc("guard", ir.Pos{})
	entry := fn.Entry().Add(parsed("x"))
	entry.Control = &ir.Branch{Cond: ir.Name("x")}
	then := fn.NewBlock("then").Add(use(ir.Dotted("x.p")))
	els := fn.NewBlock("else").Add(use(ir.Dotted("x.p")))
	fn.Connect(entry, then, ir.EdgeTrue)
	fn.Connect(entry, els, ir.EdgeFalse)

	vs := check(t, sanitizer.DefaultConfig(), fn)
	assert.Equal(t, []flagged{{ir.Point{Block: els.Index, Index: 0}, "x could be null or undefined"}}, summarize(vs))
}

func TestRule_ShortCircuitGuards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr ir.Expr
		want []string
	}{
		{"and", ir.And(ir.Name("x"), ir.Dotted("x.p")), nil},
		{"negated or", ir.Or(ir.Not(ir.Name("x")), ir.Dotted("x.p")), nil},
		{"ternary", &ir.Conditional{Test: ir.Name("x"), Then: ir.Dotted("x.p"), Else: ir.Str("")}, nil},
		{"unrelated guard", ir.And(ir.Name("c"), ir.Dotted("x.p")), []string{"x could be null or undefined"}},
		{"wrong arm", &ir.Conditional{Test: ir.Name("x"), Then: ir.Str(""), Else: ir.Dotted("x.p")}, []string{"x could be null or undefined"}},
		{"nested guard", ir.And(ir.Dotted("x.a"), ir.Dotted("x.a.p")), []string{"x could be null or undefined"}},
		{"optional chain", &ir.Member{Object: ir.Name("x"), Property: "p", Optional: true}, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			vs := check(t, sanitizer.DefaultConfig(), straight(parsed("x"), use(tt.expr)))
			var got []string
			for _, v := range vs {
				got = append(got, v.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_ConditionalReadDoesNotSanitize(t *testing.T) {
	t.Parallel()
	// use(c && x.a); use(c && x.a, x.b); use(x.c)
	fn := straight(
		parsed("x"),
		use(ir.And(ir.Name("c"), ir.Dotted("x.a"))),
		use(ir.And(ir.Name("c"), ir.Dotted("x.a")), ir.Dotted("x.b")),
		use(ir.Dotted("x.c")),
	)
	vs := check(t, sanitizer.DefaultConfig(), fn)
	assert.Equal(t, []flagged{
		{ir.Point{Block: 0, Index: 1}, "x could be null or undefined"},
		{ir.Point{Block: 0, Index: 2}, "x could be null or undefined"},
	}, summarize(vs))
}

func TestRule_UntaintedValuesAreIgnored(t *testing.T) {
	t.Parallel()
	fn := straight(
		ir.Let("y", ir.CallTo("load")),
		use(ir.Dotted("y.p.q")),
		use(ir.Dotted("window.location.hash")),
	)
	assert.Empty(t, check(t, sanitizer.DefaultConfig(), fn))
}

func TestRule_ComputedBaseIsReported(t *testing.T) {
	t.Parallel()
	// x = JSON.parse(input); if (isGood(x)) use(x[k].p)
	fn := ir.NewFunc("computed", ir.Pos{})
	entry := fn.Entry().Add(parsed("x"))
	entry.Control = &ir.Branch{Cond: ir.CallTo("isGood", ir.Name("x"))}
	then := fn.NewBlock("then").Add(use(&ir.Member{Object: ir.Index(ir.Name("x"), ir.Name("k")), Property: "p"}))
	fn.Connect(entry, then, ir.EdgeTrue)
	fn.Connect(entry, fn.NewBlock("after"), ir.EdgeFalse)

	vs := check(t, sanitizer.DefaultConfig(), fn)
	require.Len(t, vs, 1)
	assert.Equal(t, "x[k] could be null or undefined", vs[0].Message)
	assert.Equal(t, then.Index, vs[0].Point.Block)
}

func TestRule_ControlExpression(t *testing.T) {
	t.Parallel()
	// x = JSON.parse(input); while (x.p) { use(x.p.q) }
	fn := ir.NewFunc("loop", ir.Pos{})
	entry := fn.Entry().Add(parsed("x"))
	header := fn.NewBlock("while.header")
	header.Control = &ir.Branch{Cond: ir.Dotted("x.p")}
	body := fn.NewBlock("while.body").Add(use(ir.Dotted("x.p.q")))
	after := fn.NewBlock("while.after")
	fn.Connect(entry, header, ir.EdgeUnconditional)
	fn.Connect(header, body, ir.EdgeLoopBody)
	fn.Connect(header, after, ir.EdgeLoopExit)
	fn.Connect(body, header, ir.EdgeUnconditional)

	vs := check(t, sanitizer.DefaultConfig(), fn)
	assert.Equal(t, []flagged{{ir.Point{Block: header.Index, Index: 0}, "x could be null or undefined"}}, summarize(vs))
}

func TestRule_UnreachableBlocksAreSkipped(t *testing.T) {
	t.Parallel()
	fn := straight(parsed("x"))
	fn.NewBlock("unreachable").Add(use(ir.Dotted("x.p")))
	assert.Empty(t, check(t, sanitizer.DefaultConfig(), fn))
}

func TestRule_IncompleteAnalysis(t *testing.T) {
	t.Parallel()
	cfg := sanitizer.DefaultConfig()
	cfg.MaxIterations = 1

	fn := ir.NewFunc("loop", ir.Pos{})
	entry := fn.Entry().Add(parsed("x"))
	header := fn.NewBlock("while.header")
	header.Control = &ir.Branch{Cond: ir.Dotted("x.p")}
	body := fn.NewBlock("while.body").Add(use(ir.Dotted("x.p.q")))
	fn.Connect(entry, header, ir.EdgeUnconditional)
	fn.Connect(header, body, ir.EdgeLoopBody)
	fn.Connect(header, fn.NewBlock("while.after"), ir.EdgeLoopExit)
	fn.Connect(body, header, ir.EdgeUnconditional)

	vs, err := newTestRule(t, cfg).Check(context.Background(), fn)
	require.Error(t, err)
	assert.Nil(t, vs)
	var incomplete *sanitizer.IncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.ErrorIs(t, err, sanitizer.ErrBudgetExceeded)
	assert.Equal(t, "loop", incomplete.Func)
}

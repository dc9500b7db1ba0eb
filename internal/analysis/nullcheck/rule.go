// Package nullcheck reports property reads on values parsed from JSON that
// are not proven non-null at the point of the read.
package nullcheck

import (
	"context"
	"sort"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
	"github.com/xkilldash9x/jsonguard/internal/analysis/sanitizer"
)

// Violation is an unguarded read through a possibly nullish value.
type Violation struct {
	Func string
	// Path is the base being read through, as written at the read.
	Path  sanitizer.AccessPath
	Pos   ir.Pos
	Point ir.Point
	// Expr is the member expression performing the read.
	Expr    *ir.Member
	Message string
}

// Rule checks functions for unguarded reads.
type Rule struct {
	solver *sanitizer.Solver
}

// NewRule creates a rule backed by solver. The solver's configuration decides
// what counts as a source, a predicate and an assertion.
func NewRule(solver *sanitizer.Solver) *Rule {
	return &Rule{solver: solver}
}

// Check solves fn and returns its violations. When the solver gives up, the
// error is returned together with no violations, since partial states would
// produce both false positives and false negatives.
func (r *Rule) Check(ctx context.Context, fn *ir.Func) ([]Violation, error) {
	violations, _, err := r.CheckFrom(ctx, fn, nil)
	return violations, err
}

// CheckFrom is Check with captured variables tainted at fn's entry. The
// result is returned so that closures defined in fn can be seeded from it.
func (r *Rule) CheckFrom(ctx context.Context, fn *ir.Func, captured []string) ([]Violation, *sanitizer.Result, error) {
	res, err := r.solver.SolveFrom(ctx, fn, captured)
	if err != nil {
		return nil, nil, err
	}
	return r.Violations(res), res, nil
}

// Violations walks a converged result.
func (r *Rule) Violations(res *sanitizer.Result) []Violation {
	fn := res.Func()
	var out []Violation
	for _, b := range fn.Blocks {
		if !res.Reachable(b.Index) {
			continue
		}
		for i, stmt := range b.Stmts {
			pt := ir.Point{Block: b.Index, Index: i}
			out = append(out, r.check(res, fn.Name, pt, sanitizer.StatementExprs(stmt))...)
		}
		if e := sanitizer.ControlExpr(b.Control); e != nil {
			pt := ir.Point{Block: b.Index, Index: len(b.Stmts)}
			out = append(out, r.check(res, fn.Name, pt, []ir.Expr{e})...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pos.Line != out[j].Pos.Line {
			return out[i].Pos.Line < out[j].Pos.Line
		}
		return out[i].Pos.Column < out[j].Pos.Column
	})
	return out
}

// check evaluates the expressions of one statement in order. running starts
// as the solved state at pt and learns from the unconditional reads already
// evaluated, so `x.a + x.b` reports x once.
func (r *Rule) check(res *sanitizer.Result, fnName string, pt ir.Point, exprs []ir.Expr) []Violation {
	st := res.StateAt(pt)
	if st == nil {
		return nil
	}
	interp := r.solver.Interpreter()
	learn := interp.Classifier().Config().DereferenceImpliesNonNull
	running := st.Clone()
	reported := make(map[string]bool)

	var out []Violation
	for _, e := range exprs {
		interp.VisitDereferences(e, func(d sanitizer.Deref, guard []sanitizer.AccessPath) {
			key := running.Canonical(d.Base).Key()
			if reported[key] || !running.IsTainted(d.Base) {
				return
			}
			view := running
			if len(guard) > 0 {
				view = running.With(guard...)
			}
			if !view.IsSanitized(d.Base) {
				reported[key] = true
				out = append(out, Violation{
					Func:    fnName,
					Path:    d.Base,
					Pos:     d.Pos(),
					Point:   pt,
					Expr:    d.Expr,
					Message: ir.Format(d.Expr.Object) + " could be null or undefined",
				})
			}
			if learn && !d.Conditional {
				running = running.With(d.Base)
			}
		})
	}
	return out
}

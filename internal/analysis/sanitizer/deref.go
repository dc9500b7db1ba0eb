package sanitizer

import (
	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// Deref is a place where evaluation reads a property of Base, which throws
// when Base is null or undefined.
type Deref struct {
	Base AccessPath
	// Expr is the member expression performing the read.
	Expr *ir.Member
	// Conditional marks reads that only run on some evaluations of the
	// enclosing expression (right operand of && || ??, ternary arms, reads
	// behind an optional chain).
	Conditional bool
}

// Pos is the position of the read.
func (d Deref) Pos() ir.Pos { return d.Expr.At }

// DerefVisitor receives each dereference in evaluation order together with
// the paths known non-null from the short-circuit context it runs in.
type DerefVisitor func(d Deref, guard []AccessPath)

// VisitDereferences walks e in evaluation order and reports every read whose
// base is an access path. Reads on non-path bases (call results, literals)
// are not reported.
func (in *Interpreter) VisitDereferences(e ir.Expr, visit DerefVisitor) {
	w := derefWalker{in: in, visit: visit}
	w.walk(e, nil, false)
}

// Dereferences returns the bases e unconditionally dereferences.
func (in *Interpreter) Dereferences(e ir.Expr) []AccessPath {
	var out []AccessPath
	in.VisitDereferences(e, func(d Deref, _ []AccessPath) {
		if !d.Conditional && !containsPath(out, d.Base) {
			out = append(out, d.Base)
		}
	})
	return out
}

// StatementDereferences returns the bases a statement unconditionally
// dereferences, including the object of a property store.
func (in *Interpreter) StatementDereferences(stmt ir.Stmt) []AccessPath {
	var out []AccessPath
	add := func(ps []AccessPath) {
		for _, p := range ps {
			if !containsPath(out, p) {
				out = append(out, p)
			}
		}
	}
	for _, e := range StatementExprs(stmt) {
		add(in.Dereferences(e))
	}
	return out
}

// StatementExprs lists the expressions a statement evaluates, in order. For a
// store, the target member comes first: its object is evaluated and
// dereferenced before the value.
func StatementExprs(stmt ir.Stmt) []ir.Expr {
	switch s := stmt.(type) {
	case *ir.Assign:
		if s.Value == nil {
			return nil
		}
		return []ir.Expr{s.Value}
	case *ir.Store:
		return []ir.Expr{s.Target, s.Value}
	case *ir.Eval:
		return []ir.Expr{s.X}
	}
	return nil
}

// ControlExpr returns the expression a block's control evaluates.
func ControlExpr(c ir.Control) ir.Expr {
	switch c := c.(type) {
	case *ir.Branch:
		return c.Cond
	case *ir.ForIn:
		return c.Object
	}
	return nil
}

type derefWalker struct {
	in    *Interpreter
	visit DerefVisitor
}

func (w derefWalker) walk(e ir.Expr, guard []AccessPath, conditional bool) {
	switch e := e.(type) {
	case *ir.Member:
		w.walk(e.Object, guard, conditional)
		if e.Key != nil {
			w.walk(e.Key, guard, conditional)
		}
		if e.Optional {
			return
		}
		if base, ok := PathOf(e.Object); ok {
			w.visit(Deref{Base: base, Expr: e, Conditional: conditional || behindOptional(e.Object)}, guard)
		}
	case *ir.Call:
		w.walk(e.Callee, guard, conditional)
		for _, a := range e.Args {
			w.walk(a, guard, conditional)
		}
	case *ir.Unary:
		w.walk(e.X, guard, conditional)
	case *ir.Binary:
		w.walk(e.X, guard, conditional)
		w.walk(e.Y, guard, conditional)
	case *ir.Logical:
		w.walk(e.X, guard, conditional)
		t, f := w.in.interpret(e.X)
		switch e.Op {
		case "&&":
			w.walk(e.Y, union(guard, t), true)
		case "||":
			w.walk(e.Y, union(guard, f), true)
		default:
			w.walk(e.Y, guard, true)
		}
	case *ir.Conditional:
		w.walk(e.Test, guard, conditional)
		t, f := w.in.interpret(e.Test)
		w.walk(e.Then, union(guard, t), true)
		w.walk(e.Else, union(guard, f), true)
	case *ir.Opaque:
		for _, c := range e.Children {
			w.walk(c, guard, conditional)
		}
	}
}

// behindOptional reports whether a member chain contains an optional link, in
// which case the whole chain may be skipped.
func behindOptional(e ir.Expr) bool {
	for {
		switch x := e.(type) {
		case *ir.Member:
			if x.Optional {
				return true
			}
			e = x.Object
		case *ir.Call:
			if x.Optional {
				return true
			}
			e = x.Callee
		default:
			return false
		}
	}
}

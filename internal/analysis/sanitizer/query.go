package sanitizer

import (
	"sort"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// Result is the converged analysis of one function. It is immutable and safe
// for concurrent readers.
type Result struct {
	fn *ir.Func
	// points[b][i] is the state before statement i of block b;
	// points[b][len(stmts)] is the state before the control expression.
	// A nil row marks an unreachable block.
	points     [][]*State
	exits      []*State
	iterations int
}

// Func returns the analyzed function.
func (r *Result) Func() *ir.Func { return r.fn }

// Iterations returns the number of worklist steps the solver took.
func (r *Result) Iterations() int { return r.iterations }

// Reachable reports whether the solver found a path from the entry to block b.
func (r *Result) Reachable(b int) bool {
	return b >= 0 && b < len(r.points) && r.points[b] != nil
}

// StateAt returns the frozen state at a program point, or nil when the point
// does not exist or is unreachable.
func (r *Result) StateAt(pt ir.Point) *State {
	if !r.Reachable(pt.Block) {
		return nil
	}
	row := r.points[pt.Block]
	if pt.Index < 0 || pt.Index >= len(row) {
		return nil
	}
	return row[pt.Index]
}

// ExitState returns the state after block b's control expression has been
// evaluated, before any edge facts.
func (r *Result) ExitState(b int) *State {
	if !r.Reachable(b) {
		return nil
	}
	return r.exits[b]
}

// IsSanitized reports whether p is proven non-null at the point. Unreachable
// points prove nothing.
func (r *Result) IsSanitized(p AccessPath, pt ir.Point) bool {
	st := r.StateAt(pt)
	return st != nil && st.IsSanitized(p)
}

// IsTainted reports whether p derives from a taint source at the point.
func (r *Result) IsTainted(p AccessPath, pt ir.Point) bool {
	st := r.StateAt(pt)
	return st != nil && st.IsTainted(p)
}

// TaintedRoots returns the variables tainted at any reachable point of the
// function, sorted.
func (r *Result) TaintedRoots() []string {
	seen := make(map[string]bool)
	add := func(st *State) {
		if st == nil {
			return
		}
		for root := range st.tainted {
			seen[root] = true
		}
	}
	for _, row := range r.points {
		for _, st := range row {
			add(st)
		}
	}
	for _, st := range r.exits {
		add(st)
	}
	out := make([]string, 0, len(seen))
	for root := range seen {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

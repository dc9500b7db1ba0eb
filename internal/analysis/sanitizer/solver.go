// Filename: sanitizer/solver.go
package sanitizer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// Solver runs the forward must-analysis to a fixed point. A Solver holds no
// per-run state: one instance can solve many functions concurrently.
type Solver struct {
	cfg    Config
	interp *Interpreter
	logger *zap.Logger
}

// NewSolver validates the configuration and builds a solver.
func NewSolver(cfg Config, logger *zap.Logger) (*Solver, error) {
	classifier, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		cfg:    cfg,
		interp: NewInterpreter(classifier),
		logger: logger.Named("sanitizer"),
	}, nil
}

// Interpreter returns the interpreter the solver derives facts with.
func (s *Solver) Interpreter() *Interpreter { return s.interp }

// Solve computes the state at every program point of fn. It fails with an
// *IncompleteError when the iteration budget runs out or ctx is done.
func (s *Solver) Solve(ctx context.Context, fn *ir.Func) (*Result, error) {
	return s.SolveFrom(ctx, fn, nil)
}

// SolveFrom is Solve with the given variables tainted at fn's entry. It is
// used for closures, which read the enclosing function's variables.
func (s *Solver) SolveFrom(ctx context.Context, fn *ir.Func, tainted []string) (*Result, error) {
	if err := fn.Validate(); err != nil {
		return nil, fmt.Errorf("cannot solve %s: %w", fn.Name, err)
	}
	seed := NewState()
	for _, root := range tainted {
		seed.tainted[root] = true
	}

	n := len(fn.Blocks)
	in := make([]*State, n)
	out := make([]*State, n)
	budget := s.cfg.iterationBudget(n)

	queued := make([]bool, n)
	worklist := []int{0}
	queued[0] = true
	iterations := 0

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, &IncompleteError{Func: fn.Name, Iterations: iterations, Budget: budget, Err: err}
		}
		if iterations >= budget {
			s.logger.Warn("Worklist did not converge",
				zap.String("func", fn.Name),
				zap.Int("blocks", n),
				zap.Int("budget", budget))
			return nil, &IncompleteError{Func: fn.Name, Iterations: iterations, Budget: budget, Err: ErrBudgetExceeded}
		}
		iterations++

		b := worklist[0]
		worklist = worklist[1:]
		queued[b] = false
		block := fn.Blocks[b]

		entry := s.blockEntry(block, out, seed)
		if entry == nil {
			continue
		}
		in[b] = entry
		exit := s.transferBlock(block, entry.Clone(), nil)
		if exit.Equal(out[b]) {
			continue
		}
		out[b] = exit
		for _, e := range block.Succs {
			if !queued[e.To.Index] {
				queued[e.To.Index] = true
				worklist = append(worklist, e.To.Index)
			}
		}
	}

	res := &Result{fn: fn, points: make([][]*State, n), exits: out, iterations: iterations}
	for b, block := range fn.Blocks {
		if in[b] == nil {
			continue
		}
		row := make([]*State, 0, len(block.Stmts)+1)
		s.transferBlock(block, in[b].Clone(), func(st *State) { row = append(row, st.Clone()) })
		res.points[b] = row
	}

	s.logger.Debug("Solved function",
		zap.String("func", fn.Name),
		zap.Int("blocks", n),
		zap.Int("iterations", iterations))
	return res, nil
}

// blockEntry merges the states flowing into block along its incoming edges.
// The entry block additionally receives seed. Returns nil while no
// predecessor has been reached.
func (s *Solver) blockEntry(block *ir.Block, out []*State, seed *State) *State {
	states := make([]*State, 0, len(block.Preds)+1)
	if block.Index == 0 {
		states = append(states, seed)
	}
	for _, e := range block.Preds {
		if st := out[e.From.Index]; st != nil {
			states = append(states, s.applyEdge(st, e))
		}
	}
	return Merge(states...)
}

// applyEdge returns the state along e, given the exit state of its source.
func (s *Solver) applyEdge(exit *State, e *ir.Edge) *State {
	switch c := e.From.Control.(type) {
	case *ir.Branch:
		var facts []Fact
		switch e.Kind {
		case ir.EdgeTrue, ir.EdgeLoopBody:
			facts = s.interp.Interpret(c.Cond).True
		case ir.EdgeFalse:
			facts = s.interp.Interpret(c.Cond).False
		}
		if len(facts) == 0 {
			return exit
		}
		st := exit.Clone()
		applyFacts(st, facts)
		return st
	case *ir.ForIn:
		if e.Kind != ir.EdgeLoopBody {
			return exit
		}
		st := exit.Clone()
		applyFacts(st, s.interp.LoopFacts(c))
		if c.Key != "" {
			elementTainted := false
			if c.Of {
				if p, ok := PathOf(c.Object); ok {
					elementTainted = st.IsTainted(p)
				}
			}
			st.invalidate(c.Key)
			if elementTainted {
				st.tainted[c.Key] = true
			}
		}
		return st
	}
	return exit
}

func applyFacts(st *State, facts []Fact) {
	for _, f := range facts {
		st.sanitize(st.Canonical(f.Path))
	}
}

// transferBlock runs the block's statements and control expression over st.
// When snap is non-nil it is called with the state before each statement and
// before the control expression.
func (s *Solver) transferBlock(block *ir.Block, st *State, snap func(*State)) *State {
	for _, stmt := range block.Stmts {
		if snap != nil {
			snap(st)
		}
		s.transferStmt(stmt, st)
	}
	if snap != nil {
		snap(st)
	}
	if e := ControlExpr(block.Control); e != nil {
		s.applyDereferences(st, e)
		if loop, ok := block.Control.(*ir.ForIn); ok && loop.Of && s.cfg.DereferenceImpliesNonNull {
			// Iterating a nullish value throws.
			if p, ok := PathOf(loop.Object); ok {
				st.sanitize(st.Canonical(p))
			}
		}
	}
	return st
}

func (s *Solver) transferStmt(stmt ir.Stmt, st *State) {
	for _, e := range StatementExprs(stmt) {
		s.applyDereferences(st, e)
	}
	switch stmt := stmt.(type) {
	case *ir.Assign:
		s.transferAssign(stmt, st)
	case *ir.Store:
		p, ok := PathOf(stmt.Target)
		if !ok {
			return
		}
		p = st.Canonical(p)
		st.store(p)
		if nonNullish(stmt.Value) {
			st.sanitize(p)
		}
	case *ir.Eval:
		applyFacts(st, s.interp.StatementFacts(stmt))
	}
}

func (s *Solver) transferAssign(a *ir.Assign, st *State) {
	if a.Value == nil {
		st.invalidate(a.Target)
		return
	}
	source := s.interp.classifier.IsSource(a.Value)
	from, fromOK := PathOf(a.Value)
	if fromOK {
		from = st.Canonical(from)
	}
	derived := !fromOK && s.mayYieldTainted(a.Value, st)
	st.assign(a.Target, source || derived, from, fromOK)
	if defaulted(a.Value) {
		// `y = v || {}` is non-null whatever v was.
		st.sanitize(Root(a.Target))
	}
}

// applyDereferences records that the bases e unconditionally reads through
// are non-null once e has been evaluated.
func (s *Solver) applyDereferences(st *State, e ir.Expr) {
	if !s.cfg.DereferenceImpliesNonNull {
		return
	}
	for _, p := range s.interp.Dereferences(e) {
		st.sanitize(st.Canonical(p))
	}
}

// mayYieldTainted reports whether the value of e may be a tainted value
// itself (not merely computed from one).
func (s *Solver) mayYieldTainted(e ir.Expr, st *State) bool {
	switch e := e.(type) {
	case *ir.Ident, *ir.Member:
		p, ok := PathOf(e)
		return ok && st.IsTainted(p)
	case *ir.Call:
		return s.interp.classifier.IsSource(e)
	case *ir.Logical:
		return s.mayYieldTainted(e.X, st) || s.mayYieldTainted(e.Y, st)
	case *ir.Conditional:
		return s.mayYieldTainted(e.Then, st) || s.mayYieldTainted(e.Else, st)
	}
	return false
}

// defaulted matches `v || d` and `v ?? d` where d cannot be nullish.
func defaulted(e ir.Expr) bool {
	l, ok := e.(*ir.Logical)
	return ok && (l.Op == "||" || l.Op == "??") && nonNullish(l.Y)
}

// nonNullish reports whether e can never evaluate to null or undefined.
func nonNullish(e ir.Expr) bool {
	switch e := e.(type) {
	case *ir.Literal:
		return e.Kind == ir.LitString || e.Kind == ir.LitNumber || e.Kind == ir.LitBool
	case *ir.Opaque:
		switch e.Kind {
		case "object", "array", "function", "class", "template", "regex":
			return true
		}
	case *ir.Call:
		return e.New
	}
	return false
}

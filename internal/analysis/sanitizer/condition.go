package sanitizer

import (
	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// Polarity says along which edge a fact holds.
type Polarity int

const (
	OnTrue Polarity = iota
	OnFalse
	// OnFallthrough is the edge following a statement (assertions, dereferences).
	OnFallthrough
	// OnLoopBody is the structural entry edge of a for-in body.
	OnLoopBody
)

func (p Polarity) String() string {
	switch p {
	case OnTrue:
		return "true"
	case OnFalse:
		return "false"
	case OnFallthrough:
		return "fallthrough"
	case OnLoopBody:
		return "loop-body"
	default:
		return "unknown"
	}
}

// FactKind separates facts scoped to the region a condition controls from
// facts that hold for the rest of the enclosing scope.
type FactKind int

const (
	Transient FactKind = iota
	Persistent
)

func (k FactKind) String() string {
	if k == Persistent {
		return "persistent"
	}
	return "transient"
}

// Fact states that Path is non-null along the edge named by On.
type Fact struct {
	Path AccessPath
	On   Polarity
	Kind FactKind
}

// EdgeFacts holds the facts a condition produces for each of its edges.
type EdgeFacts struct {
	True  []Fact
	False []Fact
}

// Empty reports whether the condition proved nothing.
func (f EdgeFacts) Empty() bool { return len(f.True) == 0 && len(f.False) == 0 }

// Interpreter turns conditions, loops and assertion calls into facts. It
// reasons on syntax only; callers canonicalize paths against their state.
type Interpreter struct {
	classifier *Classifier
}

// NewInterpreter returns an interpreter over the classifier's signatures.
func NewInterpreter(c *Classifier) *Interpreter {
	return &Interpreter{classifier: c}
}

// Classifier returns the underlying classifier.
func (in *Interpreter) Classifier() *Classifier { return in.classifier }

// Interpret derives the facts a branch condition establishes on its true and
// false edges. Unrecognized shapes yield no facts.
func (in *Interpreter) Interpret(cond ir.Expr) EdgeFacts {
	t, f := in.interpret(cond)
	return EdgeFacts{True: toFacts(t, OnTrue), False: toFacts(f, OnFalse)}
}

// LoopFacts returns the structural facts of a for-in header: inside the body
// the iterated object is non-null.
func (in *Interpreter) LoopFacts(loop *ir.ForIn) []Fact {
	if loop.Of {
		return nil
	}
	p, ok := PathOf(loop.Object)
	if !ok {
		return nil
	}
	return []Fact{{Path: p, On: OnLoopBody, Kind: Transient}}
}

// StatementFacts returns the persistent facts a statement establishes on its
// fall-through edge: the paths referenced by the subject of an assertion call.
func (in *Interpreter) StatementFacts(stmt ir.Stmt) []Fact {
	ev, ok := stmt.(*ir.Eval)
	if !ok {
		return nil
	}
	cl := in.classifier.Classify(ev.X)
	if cl.Class != ClassSanitizingCall || cl.Kind != KindAssertion {
		return nil
	}
	var facts []Fact
	seen := make(map[string]bool)
	for _, p := range referencedPaths(cl.Subject) {
		if p.IsRoot() {
			p = p.Whole()
		}
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		facts = append(facts, Fact{Path: p, On: OnFallthrough, Kind: Persistent})
	}
	return facts
}

func toFacts(paths []AccessPath, on Polarity) []Fact {
	if len(paths) == 0 {
		return nil
	}
	facts := make([]Fact, len(paths))
	for i, p := range paths {
		facts[i] = Fact{Path: p, On: on, Kind: Transient}
	}
	return facts
}

// interpret returns the paths proven on the true and false edges.
func (in *Interpreter) interpret(cond ir.Expr) (t, f []AccessPath) {
	switch e := cond.(type) {
	case *ir.Unary:
		if e.Op == "!" {
			t, f = in.interpret(e.X)
			return f, t
		}
	case *ir.Logical:
		xt, xf := in.interpret(e.X)
		yt, yf := in.interpret(e.Y)
		switch e.Op {
		case "&&":
			// false: X was false, or X was true and Y false.
			return union(xt, yt), intersect(xf, union(xt, yf))
		case "||":
			// true: X was true, or X was false and Y true.
			return intersect(xt, union(xf, yt)), union(xf, yf)
		}
	case *ir.Binary:
		return in.interpretBinary(e)
	case *ir.Call:
		return in.interpretCall(e), nil
	case *ir.Ident, *ir.Member:
		if p, ok := PathOf(e); ok {
			return []AccessPath{p}, nil
		}
	}
	return nil, nil
}

func (in *Interpreter) interpretBinary(e *ir.Binary) (t, f []AccessPath) {
	switch e.Op {
	case "!=", "!==", "==", "===":
		subject, null, undefined, ok := comparedAgainstNullish(e)
		if !ok {
			return nil, nil
		}
		strict := e.Op == "!==" || e.Op == "==="
		// `p !== null` leaves undefined possible; the loose forms and
		// comparisons with undefined prove the value present.
		if strict && null && !undefined {
			return nil, nil
		}
		if e.Op == "!=" || e.Op == "!==" {
			return []AccessPath{subject}, nil
		}
		return nil, []AccessPath{subject}
	case "in":
		cl := in.classifier.Classify(e)
		if cl.Kind != KindMembership {
			return nil, nil
		}
		p, ok := PathOf(cl.Subject)
		if !ok {
			return nil, nil
		}
		return []AccessPath{p.Property(cl.Key), p}, nil
	case "instanceof":
		if p, ok := PathOf(e.X); ok {
			return []AccessPath{p}, nil
		}
	}
	return nil, nil
}

// comparedAgainstNullish matches `p OP null|undefined`, either operand order,
// and `typeof p OP 'undefined'`.
func comparedAgainstNullish(e *ir.Binary) (subject AccessPath, null, undefined, ok bool) {
	for _, pair := range [2][2]ir.Expr{{e.X, e.Y}, {e.Y, e.X}} {
		operand, other := pair[0], pair[1]
		if n, u := isNullish(other); n || u {
			if p, ok := PathOf(operand); ok {
				return p, n, u, true
			}
		}
		if s, isStr := stringLiteral(other); isStr && s == "undefined" {
			if tu, isUnary := operand.(*ir.Unary); isUnary && tu.Op == "typeof" {
				if p, ok := PathOf(tu.X); ok {
					return p, false, true, true
				}
			}
		}
	}
	return AccessPath{}, false, false, false
}

func (in *Interpreter) interpretCall(call *ir.Call) []AccessPath {
	cl := in.classifier.Classify(call)
	if cl.Class != ClassSanitizingCall {
		return nil
	}
	p, ok := PathOf(cl.Subject)
	if !ok {
		return nil
	}
	switch cl.Kind {
	case KindOwnProperty:
		return []AccessPath{p.Property(cl.Key)}
	case KindPredicate:
		if p.IsRoot() {
			return []AccessPath{p.Whole()}
		}
		return []AccessPath{p}
	}
	return nil
}

// referencedPaths collects the maximal access paths an expression reads,
// looking through operators and call arguments. Computed steps are cut off
// since the part before them is what the read proves.
func referencedPaths(e ir.Expr) []AccessPath {
	var out []AccessPath
	var walk func(ir.Expr)
	walk = func(e ir.Expr) {
		switch e := e.(type) {
		case *ir.Ident:
			out = append(out, Root(e.Name))
		case *ir.Member:
			if p, ok := PathOf(e); ok {
				out = append(out, p.ResolvablePrefix())
				if e.Key != nil {
					walk(e.Key)
				}
				return
			}
			walk(e.Object)
			if e.Key != nil {
				walk(e.Key)
			}
		case *ir.Call:
			if m, ok := e.Callee.(*ir.Member); ok {
				walk(m.Object)
			}
			for _, a := range e.Args {
				walk(a)
			}
		case *ir.Unary:
			walk(e.X)
		case *ir.Binary:
			walk(e.X)
			walk(e.Y)
		case *ir.Logical:
			walk(e.X)
			walk(e.Y)
		case *ir.Conditional:
			walk(e.Test)
			walk(e.Then)
			walk(e.Else)
		case *ir.Opaque:
			for _, c := range e.Children {
				walk(c)
			}
		}
	}
	walk(e)
	return out
}

func union(a, b []AccessPath) []AccessPath {
	if len(a) == 0 {
		return b
	}
	out := append([]AccessPath(nil), a...)
	for _, p := range b {
		if !containsPath(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func intersect(a, b []AccessPath) []AccessPath {
	var out []AccessPath
	for _, p := range a {
		if containsPath(b, p) && !containsPath(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func containsPath(ps []AccessPath, p AccessPath) bool {
	for _, q := range ps {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

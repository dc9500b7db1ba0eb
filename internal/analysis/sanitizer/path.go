// Filename: sanitizer/path.go
// Access paths name the values derived from a variable by property reads.
package sanitizer

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// StepKind distinguishes the steps of an access path.
type StepKind int

const (
	// StepProperty is a literal property name (`.p` or `['p']`).
	StepProperty StepKind = iota
	// StepComputed is a dynamic key (`[e]`); Name holds the key expression text.
	StepComputed
	// StepWhole stands for every path below its prefix. Only the last step can be whole.
	StepWhole
)

// Step is one element of an access path.
type Step struct {
	Kind StepKind
	Name string
}

// AccessPath is a root variable followed by a sequence of steps. Values are
// immutable: every method returns a new path.
type AccessPath struct {
	root  string
	steps []Step
}

// Root returns the path consisting of the variable alone.
func Root(name string) AccessPath {
	return AccessPath{root: name}
}

// ParsePath builds a path from dotted notation ("x.u.p"). A trailing "*"
// component yields a whole-value path. It is meant for configuration and tests.
func ParsePath(dotted string) AccessPath {
	parts := strings.Split(dotted, ".")
	p := Root(parts[0])
	for _, part := range parts[1:] {
		if part == "*" {
			return p.Whole()
		}
		p = p.Property(part)
	}
	return p
}

func (p AccessPath) extend(s Step) AccessPath {
	if p.IsWhole() {
		return p
	}
	steps := make([]Step, len(p.steps), len(p.steps)+1)
	copy(steps, p.steps)
	return AccessPath{root: p.root, steps: append(steps, s)}
}

// Property appends a literal property step.
func (p AccessPath) Property(name string) AccessPath {
	return p.extend(Step{Kind: StepProperty, Name: name})
}

// Computed appends a dynamic key step.
func (p AccessPath) Computed(key string) AccessPath {
	return p.extend(Step{Kind: StepComputed, Name: key})
}

// Whole appends the whole-value step.
func (p AccessPath) Whole() AccessPath {
	return p.extend(Step{Kind: StepWhole})
}

// RootName returns the root variable.
func (p AccessPath) RootName() string { return p.root }

// Steps returns a copy of the steps.
func (p AccessPath) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Len is the number of steps.
func (p AccessPath) Len() int { return len(p.steps) }

// IsZero reports whether p is the zero value (no root).
func (p AccessPath) IsZero() bool { return p.root == "" }

// IsRoot reports whether p is a bare variable.
func (p AccessPath) IsRoot() bool { return p.root != "" && len(p.steps) == 0 }

// IsWhole reports whether p ends with the whole-value step.
func (p AccessPath) IsWhole() bool {
	return len(p.steps) > 0 && p.steps[len(p.steps)-1].Kind == StepWhole
}

// Resolvable reports whether p has no computed step. Unresolvable paths can
// never be proven sanitized.
func (p AccessPath) Resolvable() bool {
	for _, s := range p.steps {
		if s.Kind == StepComputed {
			return false
		}
	}
	return true
}

// Prefix returns the path made of the root and the first n steps.
func (p AccessPath) Prefix(n int) AccessPath {
	if n >= len(p.steps) {
		return p
	}
	if n < 0 {
		n = 0
	}
	return AccessPath{root: p.root, steps: p.steps[:n:n]}
}

// Base strips a trailing whole-value step.
func (p AccessPath) Base() AccessPath {
	if p.IsWhole() {
		return p.Prefix(len(p.steps) - 1)
	}
	return p
}

// ResolvablePrefix returns the longest prefix of p without computed steps.
func (p AccessPath) ResolvablePrefix() AccessPath {
	for i, s := range p.steps {
		if s.Kind == StepComputed {
			return p.Prefix(i)
		}
	}
	return p
}

// HasPrefix reports whether q is a prefix of p (a path is a prefix of itself).
func (p AccessPath) HasPrefix(q AccessPath) bool {
	if p.root != q.root || len(q.steps) > len(p.steps) {
		return false
	}
	for i, s := range q.steps {
		if p.steps[i] != s {
			return false
		}
	}
	return true
}

// Rebase replaces p's root with the path onto: if p is y.q and onto is x.p,
// the result is x.p.q.
func (p AccessPath) Rebase(onto AccessPath) AccessPath {
	out := onto
	for _, s := range p.steps {
		out = out.extend(s)
	}
	return out
}

// Equal reports whether two paths have the same root and identical steps.
func (p AccessPath) Equal(q AccessPath) bool {
	if p.root != q.root || len(p.steps) != len(q.steps) {
		return false
	}
	for i := range p.steps {
		if p.steps[i] != q.steps[i] {
			return false
		}
	}
	return true
}

// Key returns an encoding of p that is equal for two paths exactly when Equal
// holds. Every name is length-prefixed and every step carries its kind.
func (p AccessPath) Key() string {
	var sb strings.Builder
	writeName := func(name string) {
		sb.WriteString(strconv.Itoa(len(name)))
		sb.WriteByte(':')
		sb.WriteString(name)
	}
	writeName(p.root)
	for _, s := range p.steps {
		switch s.Kind {
		case StepProperty:
			sb.WriteByte('p')
			writeName(s.Name)
		case StepComputed:
			sb.WriteByte('c')
			writeName(s.Name)
		case StepWhole:
			sb.WriteByte('w')
		}
	}
	return sb.String()
}

// String renders p for humans: x.u.p, x["a.b"], x[e], x.*. It is not a key;
// use Key for that.
func (p AccessPath) String() string {
	var sb strings.Builder
	sb.WriteString(p.root)
	for _, s := range p.steps {
		switch s.Kind {
		case StepProperty:
			if !plainName(s.Name) {
				sb.WriteByte('[')
				sb.WriteString(strconv.Quote(s.Name))
				sb.WriteByte(']')
				continue
			}
			sb.WriteByte('.')
			sb.WriteString(s.Name)
		case StepComputed:
			sb.WriteByte('[')
			sb.WriteString(s.Name)
			sb.WriteByte(']')
		case StepWhole:
			sb.WriteString(".*")
		}
	}
	return sb.String()
}

// plainName reports whether a property can be printed after a dot without
// being mistaken for another path.
func plainName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r > 0x7f:
		default:
			return false
		}
	}
	return true
}

// PathOf returns the access path an expression reads, if it is a chain of
// property reads rooted at a variable. Optional reads keep their path: `a?.b`
// names the same value as `a.b` when it is defined.
func PathOf(e ir.Expr) (AccessPath, bool) {
	switch e := e.(type) {
	case *ir.Ident:
		if e.Name == "" {
			return AccessPath{}, false
		}
		return Root(e.Name), true
	case *ir.Member:
		base, ok := PathOf(e.Object)
		if !ok {
			return AccessPath{}, false
		}
		if e.Key == nil {
			return base.Property(e.Property), true
		}
		if lit, ok := e.Key.(*ir.Literal); ok && (lit.Kind == ir.LitString || lit.Kind == ir.LitNumber) {
			return base.Property(lit.Value), true
		}
		return base.Computed(ir.Format(e.Key)), true
	default:
		return AccessPath{}, false
	}
}

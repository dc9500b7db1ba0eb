// Filename: sanitizer/lattice.go
// The abstract state tracked per program point: which access paths are known
// non-null, which variables hold untrusted values, and which variables are
// plain copies of an access path.
package sanitizer

import (
	"sort"
)

// State is one element of the sanitizer lattice. A path is Sanitized when the
// state covers it and Unsanitized otherwise. The zero set is bottom.
//
// States handed out by a Result are frozen; the exported methods only read.
type State struct {
	// sanitized holds canonical paths by Key; a whole-value entry covers
	// every extension of its base.
	sanitized map[string]AccessPath
	// tainted holds roots assigned from a taint source (may-information).
	tainted map[string]bool
	// aliases maps a variable to the canonical path it was copied from
	// (must-information).
	aliases map[string]AccessPath
}

// NewState returns bottom: nothing sanitized, nothing tainted.
func NewState() *State {
	return &State{
		sanitized: make(map[string]AccessPath),
		tainted:   make(map[string]bool),
		aliases:   make(map[string]AccessPath),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{
		sanitized: make(map[string]AccessPath, len(s.sanitized)),
		tainted:   make(map[string]bool, len(s.tainted)),
		aliases:   make(map[string]AccessPath, len(s.aliases)),
	}
	for k, v := range s.sanitized {
		c.sanitized[k] = v
	}
	for k, v := range s.tainted {
		c.tainted[k] = v
	}
	for k, v := range s.aliases {
		c.aliases[k] = v
	}
	return c
}

// With returns a copy of s in which the given paths are sanitized. It is how
// consumers layer short-circuit facts over a frozen state.
func (s *State) With(paths ...AccessPath) *State {
	c := s.Clone()
	for _, p := range paths {
		c.sanitize(c.Canonical(p))
	}
	return c
}

// Canonical rewrites p through the alias of its root, if any.
func (s *State) Canonical(p AccessPath) AccessPath {
	if target, ok := s.aliases[p.RootName()]; ok {
		return p.Rebase(target)
	}
	return p
}

// IsSanitized reports whether p is known non-null.
func (s *State) IsSanitized(p AccessPath) bool {
	return s.covers(s.Canonical(p))
}

// IsTainted reports whether p is derived from a taint source.
func (s *State) IsTainted(p AccessPath) bool {
	return s.tainted[s.Canonical(p).RootName()]
}

// Paths returns the sanitized canonical paths, sorted.
func (s *State) Paths() []AccessPath {
	out := make([]AccessPath, 0, len(s.sanitized))
	for _, p := range s.sanitized {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if a, b := out[i].String(), out[j].String(); a != b {
			return a < b
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// TaintedRoots returns the tainted variables, sorted.
func (s *State) TaintedRoots() []string {
	out := make([]string, 0, len(s.tainted))
	for r := range s.tainted {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Alias returns the path a variable is a copy of.
func (s *State) Alias(name string) (AccessPath, bool) {
	p, ok := s.aliases[name]
	return p, ok
}

// Equal compares two states.
func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.sanitized) != len(o.sanitized) || len(s.tainted) != len(o.tainted) || len(s.aliases) != len(o.aliases) {
		return false
	}
	for k := range s.sanitized {
		if _, ok := o.sanitized[k]; !ok {
			return false
		}
	}
	for k := range s.tainted {
		if !o.tainted[k] {
			return false
		}
	}
	for k, v := range s.aliases {
		if w, ok := o.aliases[k]; !ok || !w.Equal(v) {
			return false
		}
	}
	return true
}

// covers reports whether canonical path p is in the denoted set: present
// itself, or below a whole-value entry.
func (s *State) covers(p AccessPath) bool {
	if p.IsZero() || !p.Resolvable() {
		return false
	}
	if _, ok := s.sanitized[p.Key()]; ok {
		return true
	}
	base := p.Base()
	for i := 0; i <= base.Len(); i++ {
		if _, ok := s.sanitized[base.Prefix(i).Whole().Key()]; ok {
			return true
		}
	}
	return false
}

// sanitize adds canonical path p, keeping the set free of redundant entries.
func (s *State) sanitize(p AccessPath) {
	if p.IsZero() || !p.Resolvable() || s.covers(p) {
		return
	}
	if p.IsWhole() {
		base := p.Base()
		for k, q := range s.sanitized {
			if q.HasPrefix(base) {
				delete(s.sanitized, k)
			}
		}
	}
	s.sanitized[p.Key()] = p
}

// assign models `target = <value>` after the value has been evaluated. source
// is true when the value comes from a taint source; from is the canonical
// path the value was read from, if any (computed before the assignment).
func (s *State) assign(target string, source bool, from AccessPath, fromOK bool) {
	inheritsTaint := fromOK && s.tainted[from.RootName()]
	s.invalidate(target)
	switch {
	case source:
		s.tainted[target] = true
	case fromOK && from.RootName() != target && from.Resolvable():
		s.aliases[target] = from
	case inheritsTaint:
		s.tainted[target] = true
	}
}

// invalidate forgets everything known about the current value of root.
func (s *State) invalidate(root string) {
	for k, p := range s.sanitized {
		if p.RootName() == root {
			delete(s.sanitized, k)
		}
	}
	for y, target := range s.aliases {
		if target.RootName() == root {
			delete(s.aliases, y)
			if s.tainted[root] {
				// y still holds the old value.
				s.tainted[y] = true
			}
		}
	}
	delete(s.aliases, root)
	delete(s.tainted, root)
}

// store models a write to canonical path p: p and everything below it may
// now hold anything.
func (s *State) store(p AccessPath) {
	if p.IsZero() {
		return
	}
	target := p.ResolvablePrefix()
	for k, q := range s.sanitized {
		switch {
		case q.IsWhole() && target.HasPrefix(q.Base()):
			// The whole-value entry no longer holds below target; keep what
			// is still known about the base itself.
			delete(s.sanitized, k)
			s.sanitized[q.Base().Key()] = q.Base()
		case q.HasPrefix(target):
			delete(s.sanitized, k)
		}
	}
	for y, a := range s.aliases {
		if a.HasPrefix(target) {
			delete(s.aliases, y)
			if s.tainted[a.RootName()] {
				s.tainted[y] = true
			}
		}
	}
}

// Merge joins the states flowing into a block. A path is sanitized in the
// result only if every input covers it; taint is the union; aliases survive
// when every input agrees. Nil inputs are unreached predecessors and are
// skipped; the result is nil when every input is nil.
func Merge(states ...*State) *State {
	var out *State
	for _, st := range states {
		if st == nil {
			continue
		}
		if out == nil {
			out = st.Clone()
			continue
		}
		out = merge2(out, st)
	}
	return out
}

func merge2(a, b *State) *State {
	out := NewState()
	for _, p := range a.sanitized {
		if b.covers(p) {
			out.sanitize(p)
		}
	}
	for _, p := range b.sanitized {
		if a.covers(p) {
			out.sanitize(p)
		}
	}
	for r := range a.tainted {
		out.tainted[r] = true
	}
	for r := range b.tainted {
		out.tainted[r] = true
	}
	for y, p := range a.aliases {
		if q, ok := b.aliases[y]; ok && q.Equal(p) {
			out.aliases[y] = p
		} else if a.tainted[p.RootName()] {
			// y may hold a tainted value without a single canonical name.
			out.tainted[y] = true
		}
	}
	for y, p := range b.aliases {
		if _, ok := out.aliases[y]; !ok && b.tainted[p.RootName()] {
			out.tainted[y] = true
		}
	}
	return out
}

// File: internal/analysis/ir/ast.go
// Package ir is the contract between a front end and the sanitizer analysis.
// It defines a closed expression/statement model and a control-flow graph of
// basic blocks with typed edges. Front ends build it, the analysis only reads it.
package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Pos is a 1-indexed source position.
type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Expr is implemented by every expression node. The set is closed: only the
// types in this file implement it.
type Expr interface {
	Pos() Pos
	expr()
}

// Ident is a reference to a variable (or `this`).
type Ident struct {
	At   Pos
	Name string
}

// LitKind classifies literals.
type LitKind int

const (
	LitOther LitKind = iota
	LitString
	LitNumber
	LitBool
	LitNull
	LitUndefined
)

// Literal is a constant. For strings, Value holds the unquoted text.
type Literal struct {
	At    Pos
	Kind  LitKind
	Value string
}

// Member is a property read. When Key is nil the property is the literal name
// in Property (this covers both `o.p` and `o['p']`). When Key is non-nil the
// access is computed (`o[k]`).
type Member struct {
	At       Pos
	Object   Expr
	Property string
	Key      Expr
	// Optional marks `o?.p`: the read does not throw when Object is nullish.
	Optional bool
}

// Computed reports whether the property is a dynamic key.
func (m *Member) Computed() bool { return m.Key != nil }

// Call is a function call or, when New is set, a constructor call.
type Call struct {
	At       Pos
	Callee   Expr
	Args     []Expr
	New      bool
	Optional bool
}

// Unary covers prefix operators: !, typeof, void, delete, -, +, ~.
type Unary struct {
	At Pos
	Op string
	X  Expr
}

// Binary covers arithmetic, comparison, `in` and `instanceof`.
type Binary struct {
	At Pos
	Op string
	X  Expr
	Y  Expr
}

// Logical covers the short-circuit operators &&, || and ??.
type Logical struct {
	At Pos
	Op string
	X  Expr
	Y  Expr
}

// Conditional is the ternary operator.
type Conditional struct {
	At   Pos
	Test Expr
	Then Expr
	Else Expr
}

// Opaque stands for any expression the analysis has no rule for (functions,
// object and array literals, templates, await, ...). Children are the
// subexpressions evaluated when the opaque node is evaluated, in order.
type Opaque struct {
	At       Pos
	Kind     string
	Children []Expr
}

func (e *Ident) Pos() Pos       { return e.At }
func (e *Literal) Pos() Pos     { return e.At }
func (e *Member) Pos() Pos      { return e.At }
func (e *Call) Pos() Pos        { return e.At }
func (e *Unary) Pos() Pos       { return e.At }
func (e *Binary) Pos() Pos      { return e.At }
func (e *Logical) Pos() Pos     { return e.At }
func (e *Conditional) Pos() Pos { return e.At }
func (e *Opaque) Pos() Pos      { return e.At }

func (*Ident) expr()       {}
func (*Literal) expr()     {}
func (*Member) expr()      {}
func (*Call) expr()        {}
func (*Unary) expr()       {}
func (*Binary) expr()      {}
func (*Logical) expr()     {}
func (*Conditional) expr() {}
func (*Opaque) expr()      {}

// Stmt is implemented by the straight-line statements a block holds.
type Stmt interface {
	Pos() Pos
	stmt()
}

// Assign writes Value to the local variable Target. Declarations with an
// initializer lower to Assign as well.
type Assign struct {
	At     Pos
	Target string
	Value  Expr
}

// Store writes Value to a property (`o.p = v`, `o[k] = v`).
type Store struct {
	At     Pos
	Target *Member
	Value  Expr
}

// Eval evaluates an expression for its effects (expression statements, the
// operand of return and throw, switch tests).
type Eval struct {
	At Pos
	X  Expr
}

func (s *Assign) Pos() Pos { return s.At }
func (s *Store) Pos() Pos  { return s.At }
func (s *Eval) Pos() Pos   { return s.At }

func (*Assign) stmt() {}
func (*Store) stmt()  {}
func (*Eval) stmt()   {}

// Control is the expression a block ends with when it has more than one
// outgoing edge kind.
type Control interface {
	Pos() Pos
	control()
}

// Branch ends a block whose successors are selected by Cond: an if statement
// (True/False edges) or a loop header (LoopBody/LoopExit edges).
type Branch struct {
	At   Pos
	Cond Expr
}

// ForIn ends the header block of `for (Key in Object)` and, with Of set,
// `for (Key of Object)`. Key is empty when the loop binds a pattern.
type ForIn struct {
	At     Pos
	Key    string
	Object Expr
	Of     bool
}

func (c *Branch) Pos() Pos { return c.At }
func (c *ForIn) Pos() Pos  { return c.At }

func (*Branch) control() {}
func (*ForIn) control()  {}

// Format renders an expression as compact JavaScript-like text. The output is
// stable and is used to name computed keys.
func Format(e Expr) string {
	var sb strings.Builder
	format(&sb, e)
	return sb.String()
}

func format(sb *strings.Builder, e Expr) {
	switch e := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *Ident:
		sb.WriteString(e.Name)
	case *Literal:
		switch e.Kind {
		case LitString:
			sb.WriteString(strconv.Quote(e.Value))
		case LitNull:
			sb.WriteString("null")
		case LitUndefined:
			sb.WriteString("undefined")
		default:
			sb.WriteString(e.Value)
		}
	case *Member:
		format(sb, e.Object)
		if e.Optional {
			sb.WriteString("?.")
		}
		if e.Key != nil {
			sb.WriteByte('[')
			format(sb, e.Key)
			sb.WriteByte(']')
			return
		}
		if !e.Optional {
			sb.WriteByte('.')
		}
		sb.WriteString(e.Property)
	case *Call:
		if e.New {
			sb.WriteString("new ")
		}
		format(sb, e.Callee)
		sb.WriteByte('(')
		for i, a := range e.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, a)
		}
		sb.WriteByte(')')
	case *Unary:
		sb.WriteString(e.Op)
		if len(e.Op) > 1 {
			sb.WriteByte(' ')
		}
		format(sb, e.X)
	case *Binary:
		sb.WriteByte('(')
		format(sb, e.X)
		sb.WriteString(" " + e.Op + " ")
		format(sb, e.Y)
		sb.WriteByte(')')
	case *Logical:
		sb.WriteByte('(')
		format(sb, e.X)
		sb.WriteString(" " + e.Op + " ")
		format(sb, e.Y)
		sb.WriteByte(')')
	case *Conditional:
		sb.WriteByte('(')
		format(sb, e.Test)
		sb.WriteString(" ? ")
		format(sb, e.Then)
		sb.WriteString(" : ")
		format(sb, e.Else)
		sb.WriteByte(')')
	case *Opaque:
		sb.WriteString("<" + e.Kind + ">")
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}

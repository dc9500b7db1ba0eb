package ir

import "strings"

// Helpers for building expressions by hand. Front ends that do not track
// positions, and tests, use these; every node gets the zero Pos.

// Name returns an identifier.
func Name(name string) *Ident { return &Ident{Name: name} }

// Dotted builds `root.p1.p2...` from a dotted string such as "x.u.p".
func Dotted(path string) Expr {
	parts := strings.Split(path, ".")
	var e Expr = Name(parts[0])
	for _, p := range parts[1:] {
		e = &Member{Object: e, Property: p}
	}
	return e
}

// Index builds `obj[key]`. A string literal key is normalized to a plain
// property read, the way front ends lower `obj['p']`.
func Index(obj Expr, key Expr) *Member {
	if lit, ok := key.(*Literal); ok && lit.Kind == LitString {
		return &Member{Object: obj, Property: lit.Value}
	}
	return &Member{Object: obj, Key: key}
}

// Str returns a string literal.
func Str(s string) *Literal { return &Literal{Kind: LitString, Value: s} }

// Num returns a number literal.
func Num(s string) *Literal { return &Literal{Kind: LitNumber, Value: s} }

// Null returns the null literal.
func Null() *Literal { return &Literal{Kind: LitNull, Value: "null"} }

// Undefined returns the undefined literal.
func Undefined() *Literal { return &Literal{Kind: LitUndefined, Value: "undefined"} }

// CallTo builds a call to a dotted callee, e.g. CallTo("JSON.parse", arg).
func CallTo(callee string, args ...Expr) *Call {
	return &Call{Callee: Dotted(callee), Args: args}
}

// MethodCall builds `recv.method(args...)`.
func MethodCall(recv Expr, method string, args ...Expr) *Call {
	return &Call{Callee: &Member{Object: recv, Property: method}, Args: args}
}

// Not builds `!x`.
func Not(x Expr) *Unary { return &Unary{Op: "!", X: x} }

// Cmp builds a binary expression.
func Cmp(op string, x, y Expr) *Binary { return &Binary{Op: op, X: x, Y: y} }

// And builds `x && y`.
func And(x, y Expr) *Logical { return &Logical{Op: "&&", X: x, Y: y} }

// Or builds `x || y`.
func Or(x, y Expr) *Logical { return &Logical{Op: "||", X: x, Y: y} }

// Let builds an assignment statement.
func Let(target string, value Expr) *Assign { return &Assign{Target: target, Value: value} }

// Do builds an expression statement.
func Do(x Expr) *Eval { return &Eval{X: x} }

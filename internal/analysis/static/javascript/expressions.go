package javascript

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// expr lowers an expression. Assignments nested in it are emitted as
// statements ahead of the statement that contains them, and nested functions
// are queued for lowering.
func (l *lowering) expr(n *sitter.Node) ir.Expr {
	if n == nil {
		return &ir.Opaque{Kind: "missing"}
	}
	at := posOf(n)

	switch n.Type() {
	case "parenthesized_expression":
		if inner := firstNamed(n); inner != nil {
			return l.expr(inner)
		}
		return &ir.Opaque{At: at, Kind: "missing"}

	case "identifier":
		name := NodeContent(n, l.src)
		if name == "undefined" {
			return &ir.Literal{At: at, Kind: ir.LitUndefined, Value: name}
		}
		return &ir.Ident{At: at, Name: name}
	case "this", "super", "shorthand_property_identifier":
		return &ir.Ident{At: at, Name: NodeContent(n, l.src)}
	case "undefined":
		return &ir.Literal{At: at, Kind: ir.LitUndefined, Value: "undefined"}
	case "null":
		return &ir.Literal{At: at, Kind: ir.LitNull, Value: "null"}
	case "true", "false":
		return &ir.Literal{At: at, Kind: ir.LitBool, Value: n.Type()}
	case "number":
		return &ir.Literal{At: at, Kind: ir.LitNumber, Value: NodeContent(n, l.src)}
	case "string":
		return &ir.Literal{At: at, Kind: ir.LitString, Value: unquote(NodeContent(n, l.src))}
	case "template_string":
		var kids []ir.Expr
		for _, c := range namedChildren(n) {
			if c.Type() == "template_substitution" {
				kids = append(kids, l.expr(firstNamed(c)))
			}
		}
		return &ir.Opaque{At: at, Kind: "template", Children: kids}
	case "regex":
		return &ir.Opaque{At: at, Kind: "regex"}

	case "member_expression":
		obj := l.expr(n.ChildByFieldName("object"))
		return &ir.Member{
			At:       at,
			Object:   obj,
			Property: NodeContent(n.ChildByFieldName("property"), l.src),
			Optional: hasOptionalChain(n),
		}
	case "subscript_expression":
		obj := l.expr(n.ChildByFieldName("object"))
		key := l.expr(n.ChildByFieldName("index"))
		m := &ir.Member{At: at, Object: obj, Optional: hasOptionalChain(n)}
		if lit, ok := key.(*ir.Literal); ok && lit.Kind == ir.LitString {
			m.Property = lit.Value
		} else {
			m.Key = key
		}
		return m

	case "call_expression":
		callee := l.expr(n.ChildByFieldName("function"))
		return &ir.Call{At: at, Callee: callee, Args: l.args(n.ChildByFieldName("arguments")), Optional: hasOptionalChain(n)}
	case "new_expression":
		callee := l.expr(n.ChildByFieldName("constructor"))
		return &ir.Call{At: at, Callee: callee, Args: l.args(n.ChildByFieldName("arguments")), New: true}

	case "unary_expression":
		return &ir.Unary{At: at, Op: NodeContent(n.ChildByFieldName("operator"), l.src), X: l.expr(n.ChildByFieldName("argument"))}
	case "binary_expression":
		op := NodeContent(n.ChildByFieldName("operator"), l.src)
		x := l.expr(n.ChildByFieldName("left"))
		y := l.expr(n.ChildByFieldName("right"))
		switch op {
		case "&&", "||", "??":
			return &ir.Logical{At: at, Op: op, X: x, Y: y}
		}
		return &ir.Binary{At: at, Op: op, X: x, Y: y}
	case "ternary_expression":
		return &ir.Conditional{
			At:   at,
			Test: l.expr(n.ChildByFieldName("condition")),
			Then: l.expr(n.ChildByFieldName("consequence")),
			Else: l.expr(n.ChildByFieldName("alternative")),
		}

	case "assignment_expression":
		return l.assignment(n)
	case "augmented_assignment_expression":
		return l.augmented(n)
	case "update_expression":
		return l.update(n)
	case "sequence_expression":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return &ir.Opaque{At: at, Kind: "missing"}
		}
		for _, k := range kids[:len(kids)-1] {
			l.exprStmt(k)
		}
		return l.expr(kids[len(kids)-1])

	case "function", "function_expression", "arrow_function", "generator_function":
		l.queue = append(l.queue, funcJob{node: n, name: l.funcName(n), outer: l.fn})
		return &ir.Opaque{At: at, Kind: "function"}
	case "class":
		l.classMembers(n, NodeContent(n.ChildByFieldName("name"), l.src))
		return &ir.Opaque{At: at, Kind: "class"}
	case "object":
		return l.object(n)
	case "array":
		var kids []ir.Expr
		for _, c := range namedChildren(n) {
			kids = append(kids, l.expr(c))
		}
		return &ir.Opaque{At: at, Kind: "array", Children: kids}
	case "spread_element", "await_expression", "yield_expression":
		var kids []ir.Expr
		if c := firstNamed(n); c != nil {
			kids = []ir.Expr{l.expr(c)}
		}
		return &ir.Opaque{At: at, Kind: strings.TrimSuffix(strings.TrimSuffix(n.Type(), "_expression"), "_element"), Children: kids}
	}
	return &ir.Opaque{At: at, Kind: n.Type()}
}

func (l *lowering) args(n *sitter.Node) []ir.Expr {
	if n == nil {
		return nil
	}
	if n.Type() == "template_string" {
		// Tagged template: the template is the only argument.
		return []ir.Expr{l.expr(n)}
	}
	kids := namedChildren(n)
	args := make([]ir.Expr, 0, len(kids))
	for _, c := range kids {
		args = append(args, l.expr(c))
	}
	return args
}

func (l *lowering) object(n *sitter.Node) ir.Expr {
	var kids []ir.Expr
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "pair":
			if key := c.ChildByFieldName("key"); key != nil && key.Type() == "computed_property_name" {
				kids = append(kids, l.expr(firstNamed(key)))
			}
			kids = append(kids, l.expr(c.ChildByFieldName("value")))
		case "method_definition":
			l.queue = append(l.queue, funcJob{node: c, name: NodeContent(c.ChildByFieldName("name"), l.src), outer: l.fn})
		default:
			kids = append(kids, l.expr(c))
		}
	}
	return &ir.Opaque{At: posOf(n), Kind: "object", Children: kids}
}

func (l *lowering) assignment(n *sitter.Node) ir.Expr {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	at := posOf(n)
	if left == nil {
		return l.expr(right)
	}
	for left.Type() == "parenthesized_expression" && firstNamed(left) != nil {
		left = firstNamed(left)
	}

	switch left.Type() {
	case "identifier":
		name := NodeContent(left, l.src)
		l.emit(&ir.Assign{At: at, Target: name, Value: l.expr(right)})
		return &ir.Ident{At: posOf(left), Name: name}
	case "member_expression", "subscript_expression":
		// The target object is evaluated before the value.
		target := l.expr(left)
		value := l.expr(right)
		if m, ok := target.(*ir.Member); ok {
			l.emit(&ir.Store{At: at, Target: m, Value: value})
			return m
		}
		return value
	case "object_pattern", "array_pattern":
		value := l.expr(right)
		l.destructure(left, value, at)
		return value
	}
	return l.expr(right)
}

func (l *lowering) augmented(n *sitter.Node) ir.Expr {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	op := strings.TrimSuffix(NodeContent(n.ChildByFieldName("operator"), l.src), "=")
	at := posOf(n)
	if left == nil {
		return l.expr(right)
	}

	combine := func(cur ir.Expr) ir.Expr {
		y := l.expr(right)
		switch op {
		case "&&", "||", "??":
			return &ir.Logical{At: at, Op: op, X: cur, Y: y}
		}
		return &ir.Binary{At: at, Op: op, X: cur, Y: y}
	}

	switch left.Type() {
	case "identifier":
		name := NodeContent(left, l.src)
		l.emit(&ir.Assign{At: at, Target: name, Value: combine(&ir.Ident{At: posOf(left), Name: name})})
		return &ir.Ident{At: posOf(left), Name: name}
	case "member_expression", "subscript_expression":
		if m, ok := l.expr(left).(*ir.Member); ok {
			l.emit(&ir.Store{At: at, Target: m, Value: combine(m)})
			return m
		}
	}
	return l.expr(right)
}

func (l *lowering) update(n *sitter.Node) ir.Expr {
	arg := n.ChildByFieldName("argument")
	at := posOf(n)
	if arg == nil {
		return &ir.Opaque{At: at, Kind: "update"}
	}
	switch arg.Type() {
	case "identifier":
		name := NodeContent(arg, l.src)
		cur := &ir.Ident{At: posOf(arg), Name: name}
		l.emit(&ir.Assign{At: at, Target: name, Value: &ir.Opaque{At: at, Kind: "update", Children: []ir.Expr{cur}}})
		return cur
	case "member_expression", "subscript_expression":
		if m, ok := l.expr(arg).(*ir.Member); ok {
			l.emit(&ir.Store{At: at, Target: m, Value: &ir.Opaque{At: at, Kind: "update", Children: []ir.Expr{m}}})
			return m
		}
	}
	return &ir.Opaque{At: at, Kind: "update"}
}

// destructure binds the names of a pattern to the matching parts of value.
// A value that is not an access path is first assigned to a variable named
// after its text, so the bindings stay paths of a tracked root.
func (l *lowering) destructure(pattern *sitter.Node, value ir.Expr, at ir.Pos) {
	base := value
	if !isAccessPath(value) {
		tmp := ir.Format(value)
		l.emit(&ir.Assign{At: at, Target: tmp, Value: value})
		base = &ir.Ident{At: at, Name: tmp}
	}
	l.bindPattern(pattern, base)
}

func (l *lowering) bindPattern(p *sitter.Node, value ir.Expr) {
	if p == nil {
		return
	}
	at := posOf(p)
	switch p.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		l.emit(&ir.Assign{At: at, Target: NodeContent(p, l.src), Value: value})

	case "member_expression", "subscript_expression":
		if m, ok := l.expr(p).(*ir.Member); ok {
			l.emit(&ir.Store{At: at, Target: m, Value: value})
		}

	case "assignment_pattern", "object_assignment_pattern":
		// A default applies when the value is undefined.
		left, right := p.ChildByFieldName("left"), p.ChildByFieldName("right")
		if left == nil {
			return
		}
		if left.Type() == "shorthand_property_identifier_pattern" {
			name := NodeContent(left, l.src)
			value = &ir.Member{At: posOf(left), Object: value, Property: name}
		}
		l.bindPattern(left, &ir.Logical{At: at, Op: "??", X: value, Y: l.expr(right)})

	case "object_pattern":
		for _, c := range namedChildren(p) {
			switch c.Type() {
			case "shorthand_property_identifier_pattern":
				name := NodeContent(c, l.src)
				l.bindPattern(c, &ir.Member{At: posOf(c), Object: value, Property: name})
			case "pair_pattern":
				l.bindPattern(c.ChildByFieldName("value"), l.propertyOf(value, c.ChildByFieldName("key")))
			case "object_assignment_pattern":
				l.bindPattern(c, value)
			case "rest_pattern":
				for _, name := range patternNames(c, l.src) {
					l.emit(&ir.Assign{At: posOf(c), Target: name, Value: &ir.Opaque{At: posOf(c), Kind: "rest"}})
				}
			}
		}

	case "array_pattern":
		for i, c := range namedChildren(p) {
			if c.Type() == "rest_pattern" {
				for _, name := range patternNames(c, l.src) {
					l.emit(&ir.Assign{At: posOf(c), Target: name, Value: &ir.Opaque{At: posOf(c), Kind: "rest"}})
				}
				continue
			}
			elem := &ir.Member{At: posOf(c), Object: value, Key: &ir.Literal{At: posOf(c), Kind: ir.LitNumber, Value: strconv.Itoa(i)}}
			l.bindPattern(c, elem)
		}
	}
}

func (l *lowering) propertyOf(obj ir.Expr, key *sitter.Node) ir.Expr {
	if key == nil {
		return &ir.Opaque{Kind: "missing"}
	}
	at := posOf(key)
	switch key.Type() {
	case "property_identifier", "identifier":
		return &ir.Member{At: at, Object: obj, Property: NodeContent(key, l.src)}
	case "string":
		return &ir.Member{At: at, Object: obj, Property: unquote(NodeContent(key, l.src))}
	case "number":
		return &ir.Member{At: at, Object: obj, Key: &ir.Literal{At: at, Kind: ir.LitNumber, Value: NodeContent(key, l.src)}}
	case "computed_property_name":
		return &ir.Member{At: at, Object: obj, Key: l.expr(firstNamed(key))}
	}
	return &ir.Member{At: at, Object: obj, Key: &ir.Opaque{At: at, Kind: key.Type()}}
}

// patternNames lists the variables a binding pattern declares.
func patternNames(p *sitter.Node, src []byte) []string {
	if p == nil {
		return nil
	}
	switch p.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{NodeContent(p, src)}
	case "pair_pattern":
		return patternNames(p.ChildByFieldName("value"), src)
	case "assignment_pattern", "object_assignment_pattern":
		return patternNames(p.ChildByFieldName("left"), src)
	case "object_pattern", "array_pattern", "rest_pattern", "rest_parameter":
		var names []string
		for _, c := range namedChildren(p) {
			names = append(names, patternNames(c, src)...)
		}
		return names
	}
	return nil
}

func hasOptionalChain(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && (c.Type() == "optional_chain" || c.Type() == "?.") {
			return true
		}
	}
	return false
}

// isAccessPath reports whether e is a variable or a property chain rooted at one.
func isAccessPath(e ir.Expr) bool {
	for {
		switch x := e.(type) {
		case *ir.Ident:
			return true
		case *ir.Member:
			e = x.Object
		default:
			return false
		}
	}
}

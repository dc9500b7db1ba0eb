// Filename: javascript/frontend.go
// Lowers tree-sitter JavaScript syntax trees into the control-flow graphs the
// sanitizer analysis consumes. Every function body, and the top level of the
// script, becomes its own ir.Func.
package javascript

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.uber.org/zap"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// ProgramFunc is the name of the Func holding a script's top-level code.
const ProgramFunc = "<program>"

// Program is a lowered source file.
type Program struct {
	File   string
	Source []byte
	// Funcs holds the top level first, then function bodies in discovery order.
	Funcs []*ir.Func
	// SyntaxErrors is set when tree-sitter had to recover from errors; the
	// lowering covers whatever the parser recovered.
	SyntaxErrors bool
}

// Frontend parses JavaScript with tree-sitter and builds ir control-flow graphs.
type Frontend struct {
	logger *zap.Logger
}

// NewFrontend creates a front end.
func NewFrontend(logger *zap.Logger) *Frontend {
	return &Frontend{
		logger: logger.Named("js_frontend"),
	}
}

// Parse lowers a source file. A parser is created per call, so Parse is safe
// for concurrent use.
func (f *Frontend) Parse(ctx context.Context, filename string, source []byte) (*Program, error) {
	f.logger.Debug("Parsing JavaScript file", zap.String("filename", filename), zap.Int("size_bytes", len(source)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Cancellation surfaces from tree-sitter as an operation limit.
			return nil, ctxErr
		}
		return nil, fmt.Errorf("tree-sitter failed to parse %s: %w", filename, err)
	}
	defer tree.Close()

	prog := &Program{File: filename, Source: source}
	root := tree.RootNode()
	if root.HasError() {
		prog.SyntaxErrors = true
		f.logger.Warn("Tree-sitter detected syntax errors; analysis may be incomplete", zap.String("file", filename))
	}

	l := &lowering{src: source, logger: f.logger}
	l.queue = append(l.queue, funcJob{node: root, name: ProgramFunc})
	for len(l.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		job := l.queue[0]
		l.queue = l.queue[1:]
		prog.Funcs = append(prog.Funcs, l.lowerFunc(job))
	}

	f.logger.Debug("Lowered JavaScript file", zap.String("filename", filename), zap.Int("funcs", len(prog.Funcs)))
	return prog, nil
}

type funcJob struct {
	node  *sitter.Node
	name  string
	outer *ir.Func
}

// jumpTarget is an enclosing statement break or continue can leave through.
type jumpTarget struct {
	label      string
	breakTo    *ir.Block
	continueTo *ir.Block
	// implicit is set for loops and switches, which an unlabeled break exits.
	implicit bool
}

// lowering holds the state of one file's lowering. The per-function fields
// are reset by lowerFunc.
type lowering struct {
	src    []byte
	logger *zap.Logger
	queue  []funcJob

	fn       *ir.Func
	cur      *ir.Block // nil after return, throw, break and continue
	targets  []jumpTarget
	label    string // label waiting for the loop it names
	tryDepth int
}

func (l *lowering) lowerFunc(job funcJob) *ir.Func {
	l.fn = ir.NewFunc(job.name, posOf(job.node))
	l.fn.Outer = job.outer
	l.cur = l.fn.Entry()
	l.targets = nil
	l.label = ""
	l.tryDepth = 0

	if job.node.Type() == "program" {
		l.statements(job.node)
		return l.fn
	}

	l.bindParams(job.node)
	body := job.node.ChildByFieldName("body")
	switch {
	case body == nil:
	case body.Type() == "statement_block":
		l.statements(body)
	default:
		// Arrow function with an expression body.
		l.emit(&ir.Eval{At: posOf(body), X: l.expr(body)})
	}
	return l.fn
}

func (l *lowering) bindParams(fn *sitter.Node) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		if p := fn.ChildByFieldName("parameter"); p != nil {
			l.fn.Params = append(l.fn.Params, NodeContent(p, l.src))
		}
		return
	}
	for _, p := range namedChildren(params) {
		switch p.Type() {
		case "identifier":
			l.fn.Params = append(l.fn.Params, NodeContent(p, l.src))
		case "assignment_pattern":
			left, right := p.ChildByFieldName("left"), p.ChildByFieldName("right")
			if left != nil && left.Type() == "identifier" && right != nil {
				name := NodeContent(left, l.src)
				l.fn.Params = append(l.fn.Params, name)
				// f(opts = {}) behaves like opts = opts ?? {}.
				l.emit(&ir.Assign{At: posOf(p), Target: name, Value: &ir.Logical{
					At: posOf(p), Op: "??", X: &ir.Ident{At: posOf(left), Name: name}, Y: l.expr(right),
				}})
				continue
			}
			l.fn.Params = append(l.fn.Params, patternNames(p, l.src)...)
		default:
			l.fn.Params = append(l.fn.Params, patternNames(p, l.src)...)
		}
	}
}

// block returns the current block, opening an unreachable one after a jump.
func (l *lowering) block() *ir.Block {
	if l.cur == nil {
		l.cur = l.fn.NewBlock("unreachable")
	}
	return l.cur
}

// emit appends a statement. Inside a try block every statement gets its own
// block so that the handler sees the state between any two statements.
func (l *lowering) emit(s ir.Stmt) {
	b := l.block()
	if l.tryDepth > 0 && len(b.Stmts) > 0 {
		next := l.fn.NewBlock(b.Comment)
		l.fn.Connect(b, next, ir.EdgeUnconditional)
		l.cur = next
		b = next
	}
	b.Add(s)
}

// branch ends the current block with a control expression and returns it.
func (l *lowering) branch(c ir.Control) *ir.Block {
	b := l.block()
	if l.tryDepth > 0 && len(b.Stmts) > 0 {
		next := l.fn.NewBlock(b.Comment)
		l.fn.Connect(b, next, ir.EdgeUnconditional)
		b = next
	}
	b.Control = c
	l.cur = nil
	return b
}

// jumpTo falls through from the current block, if any, to the given block.
func (l *lowering) jumpTo(to *ir.Block) {
	if l.cur != nil {
		l.fn.Connect(l.cur, to, ir.EdgeUnconditional)
	}
}

func (l *lowering) withTarget(t jumpTarget, body func()) {
	t.label, l.label = l.label, ""
	l.targets = append(l.targets, t)
	body()
	l.targets = l.targets[:len(l.targets)-1]
}

func (l *lowering) statements(n *sitter.Node) {
	for _, c := range namedChildren(n) {
		l.stmt(c)
	}
}

func (l *lowering) stmt(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment", "empty_statement", "debugger_statement", "import_statement", "hash_bang_line":
	case "expression_statement":
		l.exprStmt(firstNamed(n))
	case "variable_declaration", "lexical_declaration":
		l.declaration(n)
	case "statement_block", "ERROR":
		l.statements(n)
	case "else_clause":
		l.stmt(firstNamed(n))
	case "if_statement":
		l.ifStmt(n)
	case "while_statement":
		l.whileStmt(n)
	case "do_statement":
		l.doStmt(n)
	case "for_statement":
		l.forStmt(n)
	case "for_in_statement":
		l.forInStmt(n)
	case "switch_statement":
		l.switchStmt(n)
	case "try_statement":
		l.tryStmt(n)
	case "labeled_statement":
		l.labeledStmt(n)
	case "break_statement":
		l.jump(n, false)
	case "continue_statement":
		l.jump(n, true)
	case "return_statement", "throw_statement":
		if x := firstNamed(n); x != nil {
			l.emit(&ir.Eval{At: posOf(n), X: l.expr(x)})
		}
		l.cur = nil
	case "function_declaration", "generator_function_declaration":
		l.queue = append(l.queue, funcJob{node: n, name: l.funcName(n), outer: l.fn})
	case "class_declaration":
		l.classMembers(n, NodeContent(n.ChildByFieldName("name"), l.src))
	case "export_statement":
		if d := n.ChildByFieldName("declaration"); d != nil {
			l.stmt(d)
		} else if v := n.ChildByFieldName("value"); v != nil {
			l.emit(&ir.Eval{At: posOf(v), X: l.expr(v)})
		}
	default:
		l.logger.Debug("Skipping unsupported statement", zap.String("type", n.Type()), zap.Stringer("pos", posOf(n)))
	}
}

// exprStmt lowers an expression evaluated for its effects.
func (l *lowering) exprStmt(e *sitter.Node) {
	if e == nil {
		return
	}
	switch e.Type() {
	case "assignment_expression", "augmented_assignment_expression", "update_expression":
		l.expr(e)
	case "sequence_expression":
		for _, c := range namedChildren(e) {
			l.exprStmt(c)
		}
	case "parenthesized_expression":
		l.exprStmt(firstNamed(e))
	default:
		l.emit(&ir.Eval{At: posOf(e), X: l.expr(e)})
	}
}

func (l *lowering) declaration(n *sitter.Node) {
	for _, d := range namedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		name, value := d.ChildByFieldName("name"), d.ChildByFieldName("value")
		if name == nil || value == nil {
			// `let x;` leaves x undefined, which nothing tracks.
			continue
		}
		if name.Type() == "identifier" {
			l.emit(&ir.Assign{At: posOf(d), Target: NodeContent(name, l.src), Value: l.expr(value)})
			continue
		}
		l.destructure(name, l.expr(value), posOf(d))
	}
}

func (l *lowering) ifStmt(n *sitter.Node) {
	cond := l.expr(n.ChildByFieldName("condition"))
	head := l.branch(&ir.Branch{At: posOf(n), Cond: cond})

	then := l.fn.NewBlock("if.then")
	l.fn.Connect(head, then, ir.EdgeTrue)
	l.cur = then
	l.stmt(n.ChildByFieldName("consequence"))
	thenEnd := l.cur

	var elseEnd *ir.Block
	alt := n.ChildByFieldName("alternative")
	if alt != nil {
		els := l.fn.NewBlock("if.else")
		l.fn.Connect(head, els, ir.EdgeFalse)
		l.cur = els
		l.stmt(alt)
		elseEnd = l.cur
	}

	join := l.fn.NewBlock("if.join")
	if alt == nil {
		l.fn.Connect(head, join, ir.EdgeFalse)
	}
	for _, end := range []*ir.Block{thenEnd, elseEnd} {
		if end != nil {
			l.fn.Connect(end, join, ir.EdgeUnconditional)
		}
	}
	l.cur = join
}

func (l *lowering) whileStmt(n *sitter.Node) {
	header := l.fn.NewBlock("while.header")
	l.jumpTo(header)
	l.cur = header
	cond := l.expr(n.ChildByFieldName("condition"))
	test := l.branch(&ir.Branch{At: posOf(n), Cond: cond})

	body := l.fn.NewBlock("while.body")
	exit := l.fn.NewBlock("while.after")
	l.fn.Connect(test, body, ir.EdgeLoopBody)
	l.fn.Connect(test, exit, ir.EdgeLoopExit)

	l.withTarget(jumpTarget{breakTo: exit, continueTo: header, implicit: true}, func() {
		l.cur = body
		l.stmt(n.ChildByFieldName("body"))
		l.jumpTo(header)
	})
	l.cur = exit
}

func (l *lowering) doStmt(n *sitter.Node) {
	body := l.fn.NewBlock("do.body")
	l.jumpTo(body)
	cond := l.fn.NewBlock("do.cond")
	exit := l.fn.NewBlock("do.after")

	l.withTarget(jumpTarget{breakTo: exit, continueTo: cond, implicit: true}, func() {
		l.cur = body
		l.stmt(n.ChildByFieldName("body"))
		l.jumpTo(cond)
	})

	l.cur = cond
	test := l.branch(&ir.Branch{At: posOf(n), Cond: l.expr(n.ChildByFieldName("condition"))})
	l.fn.Connect(test, body, ir.EdgeLoopBody)
	l.fn.Connect(test, exit, ir.EdgeLoopExit)
	l.cur = exit
}

func (l *lowering) forStmt(n *sitter.Node) {
	if init := n.ChildByFieldName("initializer"); init != nil {
		switch init.Type() {
		case "lexical_declaration", "variable_declaration":
			l.declaration(init)
		case "expression_statement":
			l.exprStmt(firstNamed(init))
		case "empty_statement":
		default:
			l.exprStmt(init)
		}
	}

	header := l.fn.NewBlock("for.header")
	l.jumpTo(header)
	l.cur = header

	body := l.fn.NewBlock("for.body")
	update := l.fn.NewBlock("for.update")
	exit := l.fn.NewBlock("for.after")

	condNode := n.ChildByFieldName("condition")
	if condNode != nil && condNode.Type() == "expression_statement" {
		condNode = firstNamed(condNode)
	}
	if condNode != nil && condNode.Type() != "empty_statement" {
		test := l.branch(&ir.Branch{At: posOf(condNode), Cond: l.expr(condNode)})
		l.fn.Connect(test, body, ir.EdgeLoopBody)
		l.fn.Connect(test, exit, ir.EdgeLoopExit)
	} else {
		l.jumpTo(body)
	}

	l.withTarget(jumpTarget{breakTo: exit, continueTo: update, implicit: true}, func() {
		l.cur = body
		l.stmt(n.ChildByFieldName("body"))
		l.jumpTo(update)
	})

	l.cur = update
	if inc := n.ChildByFieldName("increment"); inc != nil {
		l.exprStmt(inc)
	}
	l.jumpTo(header)
	l.cur = exit
}

func (l *lowering) forInStmt(n *sitter.Node) {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	of := false
	if op := n.ChildByFieldName("operator"); op != nil {
		of = NodeContent(op, l.src) == "of"
	} else {
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil && !c.IsNamed() && c.Type() == "of" {
				of = true
			}
		}
	}

	obj := l.expr(right)
	key := ""
	if left != nil && left.Type() == "identifier" {
		key = NodeContent(left, l.src)
	}

	header := l.fn.NewBlock("for.header")
	l.jumpTo(header)
	l.cur = header
	test := l.branch(&ir.ForIn{At: posOf(n), Key: key, Object: obj, Of: of})

	body := l.fn.NewBlock("for.body")
	exit := l.fn.NewBlock("for.after")
	l.fn.Connect(test, body, ir.EdgeLoopBody)
	l.fn.Connect(test, exit, ir.EdgeLoopExit)

	l.withTarget(jumpTarget{breakTo: exit, continueTo: header, implicit: true}, func() {
		l.cur = body
		if key == "" && left != nil {
			switch left.Type() {
			case "member_expression", "subscript_expression":
				if m, ok := l.expr(left).(*ir.Member); ok {
					l.emit(&ir.Store{At: posOf(left), Target: m, Value: &ir.Opaque{At: posOf(left), Kind: "element"}})
				}
			default:
				for _, name := range patternNames(left, l.src) {
					l.emit(&ir.Assign{At: posOf(left), Target: name, Value: &ir.Opaque{At: posOf(left), Kind: "element"}})
				}
			}
		}
		l.stmt(n.ChildByFieldName("body"))
		l.jumpTo(header)
	})
	l.cur = exit
}

func (l *lowering) switchStmt(n *sitter.Node) {
	valueNode := n.ChildByFieldName("value")
	disc := l.expr(valueNode)
	l.emit(&ir.Eval{At: posOf(valueNode), X: disc})

	var cases []*sitter.Node
	if body := n.ChildByFieldName("body"); body != nil {
		for _, c := range namedChildren(body) {
			if c.Type() == "switch_case" || c.Type() == "switch_default" {
				cases = append(cases, c)
			}
		}
	}

	exit := l.fn.NewBlock("switch.after")
	blocks := make([]*ir.Block, len(cases))
	for i := range cases {
		blocks[i] = l.fn.NewBlock("switch.case")
	}

	// Case tests run in order; the default body is entered when all fail.
	def := -1
	for i, c := range cases {
		if c.Type() == "switch_default" {
			def = i
			continue
		}
		v := l.expr(c.ChildByFieldName("value"))
		test := l.branch(&ir.Branch{At: posOf(c), Cond: &ir.Binary{At: posOf(c), Op: "===", X: disc, Y: v}})
		l.fn.Connect(test, blocks[i], ir.EdgeTrue)
		next := l.fn.NewBlock("switch.test")
		l.fn.Connect(test, next, ir.EdgeFalse)
		l.cur = next
	}
	if def >= 0 {
		l.jumpTo(blocks[def])
	} else {
		l.jumpTo(exit)
	}

	l.cur = nil
	l.withTarget(jumpTarget{breakTo: exit, implicit: true}, func() {
		for i, c := range cases {
			l.jumpTo(blocks[i]) // fall through from the previous case
			l.cur = blocks[i]
			value := c.ChildByFieldName("value")
			for _, s := range namedChildren(c) {
				if value != nil && sameNode(s, value) {
					continue
				}
				l.stmt(s)
			}
		}
		l.jumpTo(exit)
	})
	l.cur = exit
}

func (l *lowering) tryStmt(n *sitter.Node) {
	pre := l.block()
	start := len(l.fn.Blocks)
	body := l.fn.NewBlock("try.body")
	l.fn.Connect(pre, body, ir.EdgeUnconditional)
	l.cur = body

	l.tryDepth++
	l.stmt(n.ChildByFieldName("body"))
	l.tryDepth--
	region := l.fn.Blocks[start:]

	var ends []*ir.Block
	if l.cur != nil {
		ends = append(ends, l.cur)
	}

	// throwsTo links every point of the try block that may throw to target.
	throwsTo := func(target *ir.Block) {
		l.fn.Connect(pre, target, ir.EdgeUnconditional)
		for _, b := range region {
			if b.Control == nil {
				l.fn.Connect(b, target, ir.EdgeUnconditional)
			}
		}
	}

	handler := n.ChildByFieldName("handler")
	if handler != nil {
		catch := l.fn.NewBlock("catch")
		throwsTo(catch)
		l.cur = catch
		if param := handler.ChildByFieldName("parameter"); param != nil {
			for _, name := range patternNames(param, l.src) {
				l.emit(&ir.Assign{At: posOf(param), Target: name, Value: &ir.Opaque{At: posOf(param), Kind: "exception"}})
			}
		}
		l.stmt(handler.ChildByFieldName("body"))
		if l.cur != nil {
			ends = append(ends, l.cur)
		}
	}

	after := l.fn.NewBlock("try.after")
	finalizer := n.ChildByFieldName("finalizer")
	if finalizer == nil {
		for _, end := range ends {
			l.fn.Connect(end, after, ir.EdgeUnconditional)
		}
		l.cur = after
		return
	}

	fin := l.fn.NewBlock("finally")
	for _, end := range ends {
		l.fn.Connect(end, fin, ir.EdgeUnconditional)
	}
	if handler == nil {
		throwsTo(fin)
	}
	l.cur = fin
	l.stmt(finalizer.ChildByFieldName("body"))
	l.jumpTo(after)
	l.cur = after
}

func (l *lowering) labeledStmt(n *sitter.Node) {
	label := NodeContent(n.ChildByFieldName("label"), l.src)
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	switch body.Type() {
	case "for_statement", "for_in_statement", "while_statement", "do_statement":
		l.label = label
		l.stmt(body)
	default:
		exit := l.fn.NewBlock("label.after")
		l.label = label
		l.withTarget(jumpTarget{breakTo: exit}, func() {
			l.stmt(body)
			l.jumpTo(exit)
		})
		l.cur = exit
	}
}

func (l *lowering) jump(n *sitter.Node, isContinue bool) {
	label := NodeContent(n.ChildByFieldName("label"), l.src)
	for i := len(l.targets) - 1; i >= 0; i-- {
		t := l.targets[i]
		if label != "" && t.label != label {
			continue
		}
		if label == "" && !t.implicit {
			continue
		}
		if isContinue {
			if t.continueTo == nil {
				if label != "" {
					break
				}
				continue
			}
			l.jumpTo(t.continueTo)
		} else {
			l.jumpTo(t.breakTo)
		}
		break
	}
	l.cur = nil
}

// funcName names a function after its declaration or the binding it is
// assigned to.
func (l *lowering) funcName(n *sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return NodeContent(name, l.src)
	}
	if p := n.Parent(); p != nil {
		switch p.Type() {
		case "variable_declarator":
			if name := p.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				return NodeContent(name, l.src)
			}
		case "assignment_expression":
			if parts := flattenPropertyAccess(p.ChildByFieldName("left"), l.src); parts != nil {
				return strings.Join(parts, ".")
			}
		case "pair":
			if key := p.ChildByFieldName("key"); key != nil {
				return unquote(NodeContent(key, l.src))
			}
		}
	}
	pos := posOf(n)
	return fmt.Sprintf("<anonymous@%d:%d>", pos.Line, pos.Column)
}

func (l *lowering) classMembers(n *sitter.Node, className string) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for _, m := range namedChildren(body) {
		if m.Type() != "method_definition" {
			continue
		}
		name := NodeContent(m.ChildByFieldName("name"), l.src)
		if className != "" {
			name = className + "." + name
		}
		l.queue = append(l.queue, funcJob{node: m, name: name, outer: l.fn})
	}
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func firstNamed(n *sitter.Node) *sitter.Node {
	kids := namedChildren(n)
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

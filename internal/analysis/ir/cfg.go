package ir

import (
	"errors"
	"fmt"
)

// EdgeKind tags a CFG edge with the way control leaves its source block.
type EdgeKind int

const (
	EdgeUnconditional EdgeKind = iota
	EdgeTrue
	EdgeFalse
	EdgeLoopBody
	EdgeLoopExit
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeUnconditional:
		return "unconditional"
	case EdgeTrue:
		return "true"
	case EdgeFalse:
		return "false"
	case EdgeLoopBody:
		return "loop-body"
	case EdgeLoopExit:
		return "loop-exit"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// Edge connects two blocks.
type Edge struct {
	From *Block
	To   *Block
	Kind EdgeKind
}

// Block is a basic block: straight-line statements followed by an optional
// control expression.
type Block struct {
	// Index is the block's position in Func.Blocks and its identity.
	Index   int
	Comment string
	Stmts   []Stmt
	Control Control
	Succs   []*Edge
	Preds   []*Edge
}

// Func is the CFG of one function body (or of a script's top level).
// Blocks[0] is the entry block.
type Func struct {
	Name   string
	At     Pos
	Params []string
	Blocks []*Block
	// Outer is the function whose body defines this one; nil at the top level.
	Outer *Func
}

// NewFunc returns a Func with an empty entry block.
func NewFunc(name string, at Pos) *Func {
	fn := &Func{Name: name, At: at}
	fn.NewBlock("entry")
	return fn
}

// Entry returns the entry block.
func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends an empty block.
func (f *Func) NewBlock(comment string) *Block {
	b := &Block{Index: len(f.Blocks), Comment: comment}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Connect adds an edge from -> to.
func (f *Func) Connect(from, to *Block, kind EdgeKind) *Edge {
	e := &Edge{From: from, To: to, Kind: kind}
	from.Succs = append(from.Succs, e)
	to.Preds = append(to.Preds, e)
	return e
}

// Add appends statements to the block.
func (b *Block) Add(stmts ...Stmt) *Block {
	b.Stmts = append(b.Stmts, stmts...)
	return b
}

// Point names the program point just before statement Index of block Block.
// Index == len(Stmts) names the block's control expression (or its end).
type Point struct {
	Block int
	Index int
}

func (p Point) String() string {
	return fmt.Sprintf("b%d:%d", p.Block, p.Index)
}

// ErrMalformedCFG is wrapped by the errors Validate returns.
var ErrMalformedCFG = errors.New("malformed cfg")

// Validate checks the structural invariants the analysis relies on: block
// indices match positions, edges are registered on both ends, and the edge
// kinds leaving a block agree with its control expression.
func (f *Func) Validate() error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("%w: %s has no blocks", ErrMalformedCFG, f.Name)
	}
	for i, b := range f.Blocks {
		if b.Index != i {
			return fmt.Errorf("%w: block at position %d has index %d", ErrMalformedCFG, i, b.Index)
		}
		for _, e := range b.Succs {
			if e.From != b {
				return fmt.Errorf("%w: b%d successor edge has wrong source", ErrMalformedCFG, i)
			}
			if !containsEdge(e.To.Preds, e) {
				return fmt.Errorf("%w: edge b%d->b%d missing from predecessor list", ErrMalformedCFG, i, e.To.Index)
			}
			if err := checkEdgeKind(b, e.Kind); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkEdgeKind(b *Block, kind EdgeKind) error {
	switch b.Control.(type) {
	case nil:
		if kind != EdgeUnconditional {
			return fmt.Errorf("%w: b%d has no control expression but a %s edge", ErrMalformedCFG, b.Index, kind)
		}
	case *Branch:
		if kind == EdgeUnconditional {
			return fmt.Errorf("%w: branch block b%d has an unconditional edge", ErrMalformedCFG, b.Index)
		}
	case *ForIn:
		if kind != EdgeLoopBody && kind != EdgeLoopExit {
			return fmt.Errorf("%w: for-in block b%d has a %s edge", ErrMalformedCFG, b.Index, kind)
		}
	}
	return nil
}

func containsEdge(edges []*Edge, e *Edge) bool {
	for _, x := range edges {
		if x == e {
			return true
		}
	}
	return false
}

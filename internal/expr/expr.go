// Package expr implements the flat postfix expression representation that
// the batched interpreter walks: an arena of Nodes with cached subtree
// lengths, no pointers, addressed purely by index arithmetic.
package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// NodeType is the closed set of tags a Node may carry.
type NodeType uint8

const (
	Add NodeType = iota
	Sub
	Mul
	Div
	Log
	Exp
	Sin
	Cos
	Tan
	Sqrt
	Cbrt
	Square
	Constant
	Variable
)

func (t NodeType) String() string {
	switch t {
	case Add:
		return "Add"
	case Sub:
		return "Sub"
	case Mul:
		return "Mul"
	case Div:
		return "Div"
	case Log:
		return "Log"
	case Exp:
		return "Exp"
	case Sin:
		return "Sin"
	case Cos:
		return "Cos"
	case Tan:
		return "Tan"
	case Sqrt:
		return "Sqrt"
	case Cbrt:
		return "Cbrt"
	case Square:
		return "Square"
	case Constant:
		return "Constant"
	case Variable:
		return "Variable"
	default:
		return fmt.Sprintf("NodeType(%d)", uint8(t))
	}
}

// IsBinary reports whether t consumes exactly two operands.
func (t NodeType) IsBinary() bool {
	switch t {
	case Add, Sub, Mul, Div:
		return true
	default:
		return false
	}
}

// IsUnary reports whether t consumes exactly one operand.
func (t NodeType) IsUnary() bool {
	switch t {
	case Log, Exp, Sin, Cos, Tan, Sqrt, Cbrt, Square:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether t is a leaf (Constant or Variable).
func (t NodeType) IsTerminal() bool {
	return t == Constant || t == Variable
}

func arityOf(t NodeType) int {
	switch {
	case t.IsBinary():
		return 2
	case t.IsUnary():
		return 1
	default:
		return 0
	}
}

// Node is one entry of the postfix arena: a tagged value with its subtree
// length cached, so binary operand addresses are O(1) index arithmetic
// rather than a traversal.
type Node struct {
	Type   NodeType
	Arity  int
	Length int // nodes in the subtree rooted here, excluding itself; leaf = 0
	Depth  int
	Value  float64 // literal coefficient (Constant) or weight multiplier (Variable)
	HashValue uint64 // Variable only: identifies the dataset column
}

var (
	// ErrEmptyTree is returned by NewTree for a zero-length node slice.
	ErrEmptyTree = errors.New("expr: empty tree")
	// ErrArity is returned when a binary operator node does not have Arity 2.
	ErrArity = errors.New("expr: binary operator requires arity 2")
	// ErrLength is returned when the structural Length invariant is violated.
	ErrLength = errors.New("expr: malformed subtree length")
)

// Tree is an ordered, immutable (modulo coefficient write-back) sequence of
// Nodes in postfix order: every operator follows its operands, root last.
type Tree struct {
	nodes []Node

	varBitsOnce sync.Once
	varBits     *bitset.BitSet
}

// NewTree validates and wraps nodes as a Tree. Per the fixed design decision
// that higher-arity variadic binary nodes are rejected outright (rather than
// folded via left-to-right reduction), any {Add,Sub,Mul,Div} node whose
// Arity is not exactly 2 is an error, as is any node whose Length would walk
// past the start of the arena.
func NewTree(nodes []Node) (*Tree, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyTree
	}
	for i, n := range nodes {
		if n.Type.IsBinary() && n.Arity != 2 {
			return nil, fmt.Errorf("%w: node %d (%s) has arity %d", ErrArity, i, n.Type, n.Arity)
		}
		if n.Length < 0 || n.Length > i {
			return nil, fmt.Errorf("%w: node %d has length %d", ErrLength, i, n.Length)
		}
	}
	if nodes[len(nodes)-1].Length != len(nodes)-1 {
		return nil, fmt.Errorf("%w: root length %d does not span arena of size %d",
			ErrLength, nodes[len(nodes)-1].Length, len(nodes))
	}
	return &Tree{nodes: nodes}, nil
}

// Nodes returns the underlying postfix arena. Callers must not mutate the
// Type, Arity, Length, Depth, or HashValue fields of the returned slice;
// only Value may be changed in place, and only through SetCoefficients.
func (t *Tree) Nodes() []Node {
	return t.nodes
}

// Len is the number of nodes in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// FirstOperand returns the index of the operand immediately preceding a
// binary or unary node at i.
func FirstOperand(nodes []Node, i int) int {
	return i - 1
}

// SecondOperand returns the index of the second operand of a binary node at
// i: found by walking past the entire subtree of the first operand.
func SecondOperand(nodes []Node, i int) int {
	first := FirstOperand(nodes, i)
	return first - nodes[first].Length - 1
}

// GetCoefficients extracts the ordered parameter vector: one entry per
// Constant node (its literal Value) and one per Variable node (its weight
// Value), in node order. This is the parameter space the optimizer searches.
func (t *Tree) GetCoefficients() []float64 {
	coeffs := make([]float64, 0, len(t.nodes))
	for _, n := range t.nodes {
		if n.Type.IsTerminal() {
			coeffs = append(coeffs, n.Value)
		}
	}
	return coeffs
}

// SetCoefficients writes vals back into the tree's Constant/Variable nodes
// in the same traversal order GetCoefficients used to extract them.
// Round-trip invariant: SetCoefficients(GetCoefficients(t)) changes
// nothing observable about subsequent Evaluate calls.
func (t *Tree) SetCoefficients(vals []float64) error {
	want := 0
	for _, n := range t.nodes {
		if n.Type.IsTerminal() {
			want++
		}
	}
	if len(vals) != want {
		return fmt.Errorf("expr: SetCoefficients got %d values, tree has %d coefficients", len(vals), want)
	}
	idx := 0
	for i := range t.nodes {
		if t.nodes[i].Type.IsTerminal() {
			t.nodes[i].Value = vals[idx]
			idx++
		}
	}
	return nil
}

// VariableBits returns a bitset with bit i set iff nodes[i] is a Variable,
// computed once and cached; used by the interpreter's setup pass to test
// node type without a full switch when only the terminal kind matters.
func (t *Tree) VariableBits() *bitset.BitSet {
	t.varBitsOnce.Do(func() {
		bs := bitset.New(uint(len(t.nodes)))
		for i, n := range t.nodes {
			if n.Type == Variable {
				bs.Set(uint(i))
			}
		}
		t.varBits = bs
	})
	return t.varBits
}

// Desc describes a node in ordinary "operator applied to its operands"
// order (first operand, second operand, ...), the natural shape to build a
// tree from. Build serializes it into the arena's postfix order.
type Desc struct {
	Type      NodeType
	Value     float64
	HashValue uint64
	Children  []*Desc
}

// NewConstant returns a Constant leaf description.
func NewConstant(value float64) *Desc {
	return &Desc{Type: Constant, Value: value}
}

// NewVariable returns a Variable leaf description with the given column
// hash and weight.
func NewVariable(hash uint64, weight float64) *Desc {
	return &Desc{Type: Variable, Value: weight, HashValue: hash}
}

// NewUnary returns a unary node description over child.
func NewUnary(t NodeType, child *Desc) *Desc {
	return &Desc{Type: t, Children: []*Desc{child}}
}

// NewBinary returns a binary node description: first is the conceptual
// first operand, second the conceptual second operand, matching the
// argument order a reader would expect from e.g. Sub(x, y) meaning x−y.
func NewBinary(t NodeType, first, second *Desc) *Desc {
	return &Desc{Type: t, Children: []*Desc{first, second}}
}

// Build serializes a Desc tree into a Tree's postfix arena.
//
// For a binary node, the interpreter locates its first operand at i−1 and
// its second operand by walking past the first operand's entire subtree
// (i−1−Length(i−1)−1). For that addressing to land on the conceptually
// correct operands, the SECOND operand's subtree must be emitted before the
// FIRST operand's subtree — the reverse of naive left-to-right postfix
// serialization, where operands are normally emitted in argument order.
// Build performs that reversal so callers can describe trees in natural
// first/second argument order.
func Build(root *Desc) (*Tree, error) {
	var nodes []Node
	if err := build(root, 0, &nodes); err != nil {
		return nil, err
	}
	return NewTree(nodes)
}

func build(d *Desc, depth int, nodes *[]Node) error {
	if d == nil {
		return errors.New("expr: nil node description")
	}
	switch {
	case d.Type.IsTerminal():
		if len(d.Children) != 0 {
			return fmt.Errorf("expr: terminal node %s must have no children", d.Type)
		}
		*nodes = append(*nodes, Node{Type: d.Type, Arity: 0, Length: 0, Depth: depth, Value: d.Value, HashValue: d.HashValue})
		return nil
	case d.Type.IsUnary():
		if len(d.Children) != 1 {
			return fmt.Errorf("expr: unary node %s requires exactly 1 child, got %d", d.Type, len(d.Children))
		}
		start := len(*nodes)
		if err := build(d.Children[0], depth+1, nodes); err != nil {
			return err
		}
		length := len(*nodes) - start
		*nodes = append(*nodes, Node{Type: d.Type, Arity: 1, Length: length, Depth: depth})
		return nil
	case d.Type.IsBinary():
		if len(d.Children) != 2 {
			return fmt.Errorf("%w: %s requires exactly 2 children, got %d", ErrArity, d.Type, len(d.Children))
		}
		start := len(*nodes)
		// second operand's subtree is serialized first; see Build's doc comment.
		if err := build(d.Children[1], depth+1, nodes); err != nil {
			return err
		}
		if err := build(d.Children[0], depth+1, nodes); err != nil {
			return err
		}
		length := len(*nodes) - start
		*nodes = append(*nodes, Node{Type: d.Type, Arity: 2, Length: length, Depth: depth})
		return nil
	default:
		return fmt.Errorf("expr: unknown node type %s", d.Type)
	}
}

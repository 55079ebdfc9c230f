// Package exprio is a minimal human-readable text format for expression
// trees, used by the demo command line to load and save trees without
// pulling in a full grammar/parser for the outer evolutionary loop (which
// owns tree construction and is out of scope here).
//
// Grammar: Add/Sub/Mul/Div/Log/Exp/Sin/Cos/Tan/Sqrt/Cbrt/Square take their
// operands as a parenthesized, comma-separated argument list in natural
// first/second order; Constant(value) and Variable(hash,weight) are
// leaves. Example: Add(Constant(2),Mul(Variable(7,3),Constant(1))).
package exprio

import (
	"fmt"
	"strconv"
	"strings"

	"symreg/internal/expr"
)

var names = map[string]expr.NodeType{
	"Add": expr.Add, "Sub": expr.Sub, "Mul": expr.Mul, "Div": expr.Div,
	"Log": expr.Log, "Exp": expr.Exp, "Sin": expr.Sin, "Cos": expr.Cos,
	"Tan": expr.Tan, "Sqrt": expr.Sqrt, "Cbrt": expr.Cbrt, "Square": expr.Square,
	"Constant": expr.Constant, "Variable": expr.Variable,
}

// Parse reads a tree in exprio's text format and builds it.
func Parse(s string) (*expr.Tree, error) {
	p := &parser{input: s}
	desc, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("exprio: unexpected trailing input at %d: %q", p.pos, p.input[p.pos:])
	}
	return expr.Build(desc)
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isIdentByte(p.input[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", fmt.Errorf("exprio: expected identifier at %d", start)
	}
	return p.input[start:p.pos], nil
}

func isIdentByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func (p *parser) expect(b byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != b {
		return fmt.Errorf("exprio: expected %q at %d", b, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isNumberByte(p.input[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("exprio: expected number at %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}

func isNumberByte(b byte) bool {
	return b >= '0' && b <= '9' || b == '.' || b == '-' || b == '+' || b == 'e' || b == 'E'
}

func (p *parser) parseUint(base int) (uint64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("exprio: expected integer at %d", start)
	}
	return strconv.ParseUint(p.input[start:p.pos], base, 64)
}

func (p *parser) parseNode() (*expr.Desc, error) {
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	t, ok := names[name]
	if !ok {
		return nil, fmt.Errorf("exprio: unknown node type %q", name)
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	var desc *expr.Desc
	switch {
	case t == expr.Constant:
		v, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		desc = expr.NewConstant(v)
	case t == expr.Variable:
		hash, err := p.parseUint(10)
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		weight, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		desc = expr.NewVariable(hash, weight)
	case t.IsUnary():
		child, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		desc = expr.NewUnary(t, child)
	case t.IsBinary():
		first, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		second, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		desc = expr.NewBinary(t, first, second)
	default:
		return nil, fmt.Errorf("exprio: unhandled node type %q", name)
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return desc, nil
}

// Format renders a Tree back into exprio's text format, reconstructing
// conceptual first/second operand order from the postfix arena's cached
// subtree lengths.
func Format(tree *expr.Tree) string {
	var sb strings.Builder
	writeNode(tree.Nodes(), tree.Len()-1, &sb)
	return sb.String()
}

func writeNode(nodes []expr.Node, i int, sb *strings.Builder) {
	n := nodes[i]
	switch {
	case n.Type == expr.Constant:
		fmt.Fprintf(sb, "Constant(%s)", strconv.FormatFloat(n.Value, 'g', -1, 64))
	case n.Type == expr.Variable:
		fmt.Fprintf(sb, "Variable(%d,%s)", n.HashValue, strconv.FormatFloat(n.Value, 'g', -1, 64))
	case n.Type.IsUnary():
		sb.WriteString(n.Type.String())
		sb.WriteByte('(')
		writeNode(nodes, expr.FirstOperand(nodes, i), sb)
		sb.WriteByte(')')
	case n.Type.IsBinary():
		sb.WriteString(n.Type.String())
		sb.WriteByte('(')
		writeNode(nodes, expr.FirstOperand(nodes, i), sb)
		sb.WriteByte(',')
		writeNode(nodes, expr.SecondOperand(nodes, i), sb)
		sb.WriteByte(')')
	}
}

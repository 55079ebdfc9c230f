package expr

import "testing"

func TestBuildSimpleAdd(t *testing.T) {
	// tree = Add(Constant(1), Constant(2))
	tr, err := Build(NewBinary(Add, NewConstant(1), NewConstant(2)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	nodes := tr.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("len(nodes) = %d, want 3", len(nodes))
	}
	root := len(nodes) - 1
	if nodes[root].Type != Add {
		t.Fatalf("root type = %v, want Add", nodes[root].Type)
	}
	first := FirstOperand(nodes, root)
	second := SecondOperand(nodes, root)
	if nodes[first].Value != 1 {
		t.Errorf("first operand value = %v, want 1", nodes[first].Value)
	}
	if nodes[second].Value != 2 {
		t.Errorf("second operand value = %v, want 2", nodes[second].Value)
	}
}

func TestBuildSubOperandOrder(t *testing.T) {
	// tree = Sub(Variable(x,1), Variable(y,1)) — scenario 3 from the
	// evaluation properties: x−y, not y−x.
	x := NewVariable(1, 1)
	y := NewVariable(2, 1)
	tr, err := Build(NewBinary(Sub, x, y))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	nodes := tr.Nodes()
	root := len(nodes) - 1
	first := FirstOperand(nodes, root)
	second := SecondOperand(nodes, root)
	if nodes[first].HashValue != 1 {
		t.Errorf("first operand hash = %d, want 1 (x)", nodes[first].HashValue)
	}
	if nodes[second].HashValue != 2 {
		t.Errorf("second operand hash = %d, want 2 (y)", nodes[second].HashValue)
	}
}

func TestBuildNestedLengths(t *testing.T) {
	// tree = Mul(Add(Constant(1), Constant(2)), Constant(3))
	desc := NewBinary(Mul, NewBinary(Add, NewConstant(1), NewConstant(2)), NewConstant(3))
	tr, err := Build(desc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	nodes := tr.Nodes()
	root := len(nodes) - 1
	if nodes[root].Length != len(nodes)-1 {
		t.Errorf("root length = %d, want %d", nodes[root].Length, len(nodes)-1)
	}
	first := FirstOperand(nodes, root)
	if nodes[first].Type != Add {
		t.Fatalf("first operand of Mul = %v, want Add", nodes[first].Type)
	}
	second := SecondOperand(nodes, root)
	if nodes[second].Type != Constant || nodes[second].Value != 3 {
		t.Errorf("second operand of Mul = %v/%v, want Constant(3)", nodes[second].Type, nodes[second].Value)
	}
}

func TestNewTreeRejectsHigherArity(t *testing.T) {
	_, err := NewTree([]Node{
		{Type: Constant, Value: 1},
		{Type: Constant, Value: 2},
		{Type: Constant, Value: 3},
		{Type: Add, Arity: 3, Length: 3},
	})
	if err == nil {
		t.Fatal("expected error for arity-3 Add node")
	}
}

func TestCoefficientRoundTrip(t *testing.T) {
	desc := NewBinary(Add, NewConstant(1), NewVariable(7, 2))
	tr, err := Build(desc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	coeffs := tr.GetCoefficients()
	if len(coeffs) != 2 {
		t.Fatalf("len(coeffs) = %d, want 2", len(coeffs))
	}
	// Build emits Add's second operand (the Variable) first, so node order
	// puts its weight ahead of the Constant.
	if coeffs[0] != 2 || coeffs[1] != 1 {
		t.Errorf("coeffs = %v, want [2 1]", coeffs)
	}
	if err := tr.SetCoefficients(coeffs); err != nil {
		t.Fatalf("SetCoefficients: %v", err)
	}
	after := tr.GetCoefficients()
	if after[0] != coeffs[0] || after[1] != coeffs[1] {
		t.Errorf("round-trip changed coefficients: %v != %v", after, coeffs)
	}
}

func TestSetCoefficientsWrongLength(t *testing.T) {
	tr, err := Build(NewConstant(1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := tr.SetCoefficients([]float64{1, 2}); err == nil {
		t.Fatal("expected error for mismatched coefficient count")
	}
}

func TestVariableBits(t *testing.T) {
	desc := NewBinary(Mul, NewVariable(1, 2), NewConstant(3))
	tr, err := Build(desc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	bits := tr.VariableBits()
	nodes := tr.Nodes()
	for i, n := range nodes {
		if bits.Test(uint(i)) != (n.Type == Variable) {
			t.Errorf("bit %d = %v, node type %v", i, bits.Test(uint(i)), n.Type)
		}
	}
}

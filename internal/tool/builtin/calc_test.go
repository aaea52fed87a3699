package builtin

import (
	"context"
	"testing"
)

func TestCalcExecute(t *testing.T) {
	c := NewCalcTool()
	cases := []struct {
		op   string
		a, b any
		want string
	}{
		{"add", 2, 3, "5"},
		{"sub", 10.5, 0.5, "10"},
		{"mul", 4, 2.5, "10"},
		{"div", 9, 2, "4.5"},
	}
	for _, tc := range cases {
		got, err := c.Execute(context.Background(), map[string]any{"op": tc.op, "a": tc.a, "b": tc.b})
		if err != nil {
			t.Fatalf("%s failed: %v", tc.op, err)
		}
		if got != tc.want {
			t.Errorf("%s(%v, %v) = %s, want %s", tc.op, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCalcDivideByZero(t *testing.T) {
	c := NewCalcTool()
	if _, err := c.Execute(context.Background(), map[string]any{"op": "div", "a": 1, "b": 0}); err == nil {
		t.Error("expected error for division by zero")
	}
}

func TestCalcRejectsNonNumeric(t *testing.T) {
	c := NewCalcTool()
	if _, err := c.Execute(context.Background(), map[string]any{"op": "add", "a": "x", "b": 1}); err == nil {
		t.Error("expected error for non-numeric operand")
	}
}

func TestCalcUnknownOp(t *testing.T) {
	c := NewCalcTool()
	if _, err := c.Execute(context.Background(), map[string]any{"op": "pow", "a": 2, "b": 3}); err == nil {
		t.Error("expected error for unsupported op")
	}
}

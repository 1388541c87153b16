package query

import "testing"

func TestExprString(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"equals string", Eq("ownerId", "U-alice"), "ownerId = 'U-alice'"},
		{"equals bool", Eq("isDeleted", false), "isDeleted = false"},
		{"quote escaped", Eq("name", "it's"), `name = 'it\'s'`},
		{"in", In("recordType", []string{"link", "object"}, false), "recordType IN ['link', 'object']"},
		{"not exists", Missing("objectType"), "objectType NOT EXISTS"},
		{"and", And(Eq("a", "1"), Eq("b", "2")), "(a = '1' AND b = '2')"},
		{"or", Or(Eq("a", "1"), Eq("b", "2")), "(a = '1' OR b = '2')"},
		{"empty and", And(), ""},
		{"empty or", Or(), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.expr); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIn_EmptyValues(t *testing.T) {
	if e := In("objectType", nil, false); e != nil {
		t.Errorf("non-strict empty In = %v, want nil", e)
	}
	e := In("objectType", []string{}, true)
	if _, ok := e.(NotExists); !ok {
		t.Fatalf("strict empty In = %T, want NotExists", e)
	}
	if got := String(e); got != "objectType NOT EXISTS" {
		t.Errorf("String() = %q", got)
	}
}

func TestIn_CopiesValues(t *testing.T) {
	values := []string{"a", "b"}
	e := In("x", values, false)
	values[0] = "changed"
	if got := String(e); got != "x IN ['a', 'b']" {
		t.Errorf("String() = %q, want values copied", got)
	}
}

func TestJoin_ElidesEmptyOperands(t *testing.T) {
	e := And(nil, Or(), Eq("a", "1"), And(nil, In("b", nil, false)))
	if got := String(e); got != "(a = '1')" {
		t.Errorf("String() = %q, want %q", got, "(a = '1')")
	}

	if e := Or(And(), Or(nil)); !IsEmpty(e) {
		t.Errorf("Or of empty operands = %v, want empty", e)
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty(nil) {
		t.Error("nil should be empty")
	}
	if !IsEmpty(Join{Op: OpAnd}) {
		t.Error("operand-less Join should be empty")
	}
	if IsEmpty(Eq("a", "b")) {
		t.Error("Equals should not be empty")
	}
	if IsEmpty(Missing("a")) {
		t.Error("NotExists should not be empty")
	}
}

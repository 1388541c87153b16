// Package query builds engine-independent filter expressions over record
// attributes. The tree is compiled to a concrete engine query only at the
// store boundary; String renders the canonical textual filter syntax.
package query

import (
	"fmt"
	"strings"
)

// Expr is a node of a filter expression tree. A nil Expr is the empty
// filter: it places no constraint and is elided from any parent.
type Expr interface {
	String() string
	expr()
}

// Equals matches records whose attribute equals Value. Value is a string or a bool.
type Equals struct {
	Attr  string
	Value any
}

// InSet matches records whose attribute equals any of Values.
type InSet struct {
	Attr   string
	Values []string
}

// NotExists matches records without a value for the attribute.
type NotExists struct {
	Attr string
}

// Op joins the operands of a Join.
type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
)

// Join combines non-empty operands with a boolean operator.
type Join struct {
	Op       Op
	Operands []Expr
}

func (Equals) expr()    {}
func (InSet) expr()     {}
func (NotExists) expr() {}
func (Join) expr()      {}

func (e Equals) String() string {
	return fmt.Sprintf("%s = %s", e.Attr, literal(e.Value))
}

func (e InSet) String() string {
	values := make([]string, len(e.Values))
	for i, v := range e.Values {
		values[i] = literal(v)
	}
	return fmt.Sprintf("%s IN [%s]", e.Attr, strings.Join(values, ", "))
}

func (e NotExists) String() string {
	return e.Attr + " NOT EXISTS"
}

func (e Join) String() string {
	parts := make([]string, len(e.Operands))
	for i, o := range e.Operands {
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, " "+string(e.Op)+" ") + ")"
}

// Eq returns an equality predicate.
func Eq(attr string, value any) Expr {
	return Equals{Attr: attr, Value: value}
}

// In returns a set-membership predicate. An empty value set vanishes, unless
// strict is set, in which case it means "none of these categories" and
// becomes NotExists(attr).
func In(attr string, values []string, strict bool) Expr {
	if len(values) == 0 {
		if strict {
			return NotExists{Attr: attr}
		}
		return nil
	}
	return InSet{Attr: attr, Values: append([]string(nil), values...)}
}

// Missing returns a NotExists predicate.
func Missing(attr string) Expr {
	return NotExists{Attr: attr}
}

// And joins operands with AND.
func And(operands ...Expr) Expr {
	return join(OpAnd, operands)
}

// Or joins operands with OR.
func Or(operands ...Expr) Expr {
	return join(OpOr, operands)
}

// join drops empty operands. No operands left is the empty filter.
func join(op Op, operands []Expr) Expr {
	var kept []Expr
	for _, o := range operands {
		if IsEmpty(o) {
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) == 0 {
		return nil
	}
	return Join{Op: op, Operands: kept}
}

// IsEmpty reports whether e places no constraint.
func IsEmpty(e Expr) bool {
	if e == nil {
		return true
	}
	if j, ok := e.(Join); ok {
		return len(j.Operands) == 0
	}
	return false
}

// String renders e, or "" for the empty filter.
func String(e Expr) string {
	if IsEmpty(e) {
		return ""
	}
	return e.String()
}

func literal(v any) string {
	switch v := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	default:
		return fmt.Sprint(v)
	}
}

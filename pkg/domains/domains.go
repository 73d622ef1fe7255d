/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package domains implements the predicate tree used to filter records.
//
// A domain is a tree of conditions. Leaves are (field path, operator, value)
// triples; inner nodes are AND, OR and NOT. The wire form is the classic
// prefix notation: logical operators precede their operands, adjacent
// operands without an explicit operator are AND-ed.
package domains

import (
	"fmt"
	"sort"
	"strings"
)

// Expr is a node of a domain tree.
type Expr interface {
	fmt.Stringer
	isExpr()
}

// Condition is a domain leaf: Path op Value.
//
// Path may traverse relational fields with dots ("partner_id.country_id.code").
// For OpAny and OpNotAny the Value is a sub-Domain evaluated against the
// related entity.
type Condition struct {
	Path  string
	Op    Operator
	Value any
}

// AndExpr is the conjunction of its operands.
type AndExpr struct{ Exprs []Expr }

// OrExpr is the disjunction of its operands.
type OrExpr struct{ Exprs []Expr }

// NotExpr negates its operand.
type NotExpr struct{ Expr Expr }

// trueExpr and falseExpr are the constant domains.
type trueExpr struct{}
type falseExpr struct{}

func (Condition) isExpr() {}
func (AndExpr) isExpr()   {}
func (OrExpr) isExpr()    {}
func (NotExpr) isExpr()   {}
func (trueExpr) isExpr()  {}
func (falseExpr) isExpr() {}

// TRUE matches every record; it is the empty domain.
var TRUE Expr = trueExpr{}

// FALSE matches no record.
var FALSE Expr = falseExpr{}

// Leaf makes a condition leaf.
func Leaf(path string, op Operator, value any) Condition {
	return Condition{Path: path, Op: op, Value: value}
}

// And conjoins the given expressions, flattening nested conjunctions and
// dropping constant TRUE operands.
func And(exprs ...Expr) Expr {
	flat := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		switch t := e.(type) {
		case trueExpr:
		case falseExpr:
			return FALSE
		case AndExpr:
			flat = append(flat, t.Exprs...)
		default:
			flat = append(flat, e)
		}
	}
	switch len(flat) {
	case 0:
		return TRUE
	case 1:
		return flat[0]
	}
	return AndExpr{Exprs: flat}
}

// Or disjoins the given expressions, flattening nested disjunctions and
// dropping constant FALSE operands.
func Or(exprs ...Expr) Expr {
	flat := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		switch t := e.(type) {
		case falseExpr:
		case trueExpr:
			return TRUE
		case OrExpr:
			flat = append(flat, t.Exprs...)
		default:
			flat = append(flat, e)
		}
	}
	switch len(flat) {
	case 0:
		return FALSE
	case 1:
		return flat[0]
	}
	return OrExpr{Exprs: flat}
}

// Not negates e. Constants are folded immediately.
func Not(e Expr) Expr {
	switch t := e.(type) {
	case trueExpr:
		return FALSE
	case falseExpr:
		return TRUE
	case NotExpr:
		return t.Expr
	}
	return NotExpr{Expr: e}
}

// Normalize rewrites e into a canonical form:
//   - NOT is pushed inward by De Morgan, flipping leaf operators where the
//     operator has a negation;
//   - nested AND/OR chains are flattened;
//   - constants are folded.
//
// The result contains NOT nodes only in front of leaves whose operator has
// no complement (child_of, parent_of, pattern matches).
func Normalize(e Expr) Expr {
	return normalize(e, false)
}

func normalize(e Expr, negate bool) Expr {
	switch t := e.(type) {
	case trueExpr:
		if negate {
			return FALSE
		}
		return TRUE
	case falseExpr:
		if negate {
			return TRUE
		}
		return FALSE
	case NotExpr:
		return normalize(t.Expr, !negate)
	case AndExpr:
		out := make([]Expr, len(t.Exprs))
		for i, sub := range t.Exprs {
			out[i] = normalize(sub, negate)
		}
		if negate {
			return Or(out...)
		}
		return And(out...)
	case OrExpr:
		out := make([]Expr, len(t.Exprs))
		for i, sub := range t.Exprs {
			out[i] = normalize(sub, negate)
		}
		if negate {
			return And(out...)
		}
		return Or(out...)
	case Condition:
		if !negate {
			return t
		}
		// Negation is not pushed through dotted paths: NOT over a
		// traversal is existential and must stay at the leaf.
		if neg, ok := negations[t.Op]; ok && !strings.Contains(t.Path, ".") {
			return Condition{Path: t.Path, Op: neg, Value: t.Value}
		}
		return NotExpr{Expr: t}
	}
	return e
}

// String renders the prefix form, stable for use as a cache key.
func (c Condition) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Path, c.Op, renderValue(c.Value))
}

func (a AndExpr) String() string { return renderPrefix("&", a.Exprs) }
func (o OrExpr) String() string  { return renderPrefix("|", o.Exprs) }

func (n NotExpr) String() string { return "! " + n.Expr.String() }
func (trueExpr) String() string  { return "TRUE" }
func (falseExpr) String() string { return "FALSE" }

func renderPrefix(op string, exprs []Expr) string {
	var b strings.Builder
	for i := 1; i < len(exprs); i++ {
		b.WriteString(op)
		b.WriteByte(' ')
	}
	for i, e := range exprs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	case Expr:
		return "[" + t.String() + "]"
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []int64:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = fmt.Sprint(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = fmt.Sprintf("%q", item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

// Fields returns the sorted set of root field names referenced by e
// (the first segment of every leaf path). Sub-domains of any/not any leaves
// reference the related entity, not this one, and are not descended into.
func Fields(e Expr) []string {
	seen := map[string]bool{}
	var visit func(Expr)
	visit = func(e Expr) {
		switch t := e.(type) {
		case Condition:
			name, _, _ := strings.Cut(t.Path, ".")
			seen[name] = true
		case AndExpr:
			for _, sub := range t.Exprs {
				visit(sub)
			}
		case OrExpr:
			for _, sub := range t.Exprs {
				visit(sub)
			}
		case NotExpr:
			visit(t.Expr)
		}
	}
	visit(e)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Walk visits every leaf of e in order, including leaves of any/not any
// sub-domains.
func Walk(e Expr, visit func(Condition)) {
	switch t := e.(type) {
	case Condition:
		visit(t)
		if sub, ok := t.Value.(Expr); ok {
			Walk(sub, visit)
		}
	case AndExpr:
		for _, sub := range t.Exprs {
			Walk(sub, visit)
		}
	case OrExpr:
		for _, sub := range t.Exprs {
			Walk(sub, visit)
		}
	case NotExpr:
		Walk(t.Expr, visit)
	}
}

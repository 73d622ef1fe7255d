/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package domains

// Operator is a comparison operator of a domain leaf.
type Operator string

const (
	OpEq       Operator = "="
	OpNotEq    Operator = "!="
	OpLess     Operator = "<"
	OpLessEq   Operator = "<="
	OpGreater  Operator = ">"
	OpGreatEq  Operator = ">="
	OpIn       Operator = "in"
	OpNotIn    Operator = "not in"
	OpLike     Operator = "like"
	OpILike    Operator = "ilike"
	OpEqLike   Operator = "=like"
	OpEqILike  Operator = "=ilike"
	OpChildOf  Operator = "child_of"
	OpParentOf Operator = "parent_of"
	OpAny      Operator = "any"
	OpNotAny   Operator = "not any"
)

// negations maps every operator to its negation. Operators missing here
// (child_of, parent_of) have no direct negation and keep an explicit NOT node.
var negations = map[Operator]Operator{
	OpEq:      OpNotEq,
	OpNotEq:   OpEq,
	OpLess:    OpGreatEq,
	OpLessEq:  OpGreater,
	OpGreater: OpLessEq,
	OpGreatEq: OpLess,
	OpIn:      OpNotIn,
	OpNotIn:   OpIn,
	OpAny:     OpNotAny,
	OpNotAny:  OpAny,
}

// Valid returns true for known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNotEq, OpLess, OpLessEq, OpGreater, OpGreatEq,
		OpIn, OpNotIn, OpLike, OpILike, OpEqLike, OpEqILike,
		OpChildOf, OpParentOf, OpAny, OpNotAny:
		return true
	}
	return false
}

// Negative returns true for operators whose match set is a complement
// (they must match records with a NULL left-hand side as well).
func (op Operator) Negative() bool {
	return op == OpNotEq || op == OpNotIn || op == OpNotAny
}

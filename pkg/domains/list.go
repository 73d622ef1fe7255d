/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package domains

// FromList decodes the prefix-list wire form of a domain.
//
// Elements are either one of the prefix operators "&", "|", "!" or a leaf
// []any{path, operator, value}. Adjacent operands without an explicit
// operator are AND-ed. "&" and "|" are binary, "!" is unary. An empty list
// is the TRUE domain.
func FromList(items []any) (Expr, error) {
	if len(items) == 0 {
		return TRUE, nil
	}
	pos := 0
	var parse func() (Expr, error)
	parse = func() (Expr, error) {
		if pos >= len(items) {
			return nil, errInvalid("missing operand at position %d", pos)
		}
		item := items[pos]
		pos++
		switch t := item.(type) {
		case string:
			switch t {
			case "&":
				left, err := parse()
				if err != nil {
					return nil, err
				}
				right, err := parse()
				if err != nil {
					return nil, err
				}
				return And(left, right), nil
			case "|":
				left, err := parse()
				if err != nil {
					return nil, err
				}
				right, err := parse()
				if err != nil {
					return nil, err
				}
				return Or(left, right), nil
			case "!":
				sub, err := parse()
				if err != nil {
					return nil, err
				}
				return Not(sub), nil
			}
			return nil, errInvalid("unexpected element %q", t)
		case []any:
			return leafFromList(t)
		case Expr:
			return t, nil
		}
		return nil, errInvalid("unexpected element %v", item)
	}

	parts := make([]Expr, 0, len(items))
	for pos < len(items) {
		e, err := parse()
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}
	return And(parts...), nil
}

func leafFromList(item []any) (Expr, error) {
	if len(item) != 3 {
		return nil, errInvalid("leaf must have 3 elements, got %d", len(item))
	}
	path, ok := item[0].(string)
	if !ok || path == "" {
		return nil, errInvalid("leaf path must be a non-empty string")
	}
	opStr, ok := item[1].(string)
	if !ok {
		return nil, errInvalid("leaf operator must be a string")
	}
	op := Operator(opStr)
	if !op.Valid() {
		return nil, errInvalid("unknown operator %q", opStr)
	}
	value := item[2]
	if op == OpAny || op == OpNotAny {
		switch sub := value.(type) {
		case Expr:
			// already a tree
		case []any:
			subExpr, err := FromList(sub)
			if err != nil {
				return nil, err
			}
			value = subExpr
		default:
			return nil, errInvalid("%s operator needs a sub-domain, got %T", op, value)
		}
	}
	return Condition{Path: path, Op: op, Value: value}, nil
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package queries

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsearchableField reports a search or order on a non-stored
	// computed field without a search translator.
	ErrUnsearchableField = errors.New("field is not searchable")

	// ErrNotHierarchical reports child_of/parent_of on an entity without a
	// declared parent field.
	ErrNotHierarchical = errors.New("entity is not hierarchical")

	// ErrBadOperator reports an operator a field kind cannot compile.
	ErrBadOperator = errors.New("operator not supported for field")
)

func errUnsearchable(entity, field string) error {
	return fmt.Errorf("%w: «%s» on entity «%s»", ErrUnsearchableField, field, entity)
}

func errBadOperator(entity, field string, op any) error {
	return fmt.Errorf("%w: operator «%v» on «%s.%s»", ErrBadOperator, op, entity, field)
}

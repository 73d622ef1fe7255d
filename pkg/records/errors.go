/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"errors"
	"fmt"
)

var (
	// ErrSingleton reports a one-record operation on a set of another size.
	ErrSingleton = errors.New("expected singleton recordset")

	// ErrMissingRecord reports an operation touching an id that is not in
	// the database.
	ErrMissingRecord = errors.New("record does not exist")

	// ErrInvalidValue reports a value that does not fit its field.
	ErrInvalidValue = errors.New("invalid field value")

	// ErrMissingRequired reports a create without a required field.
	ErrMissingRequired = errors.New("required field is not set")

	// ErrConstraintViolation reports a declared constraint rejecting a write.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrCyclicRecompute reports computed fields that keep invalidating each
	// other past the recompute pass limit.
	ErrCyclicRecompute = errors.New("cyclic recompute")

	// ErrReadonlyField reports a write into a system or readonly field.
	ErrReadonlyField = errors.New("field is readonly")

	// ErrDraft reports a database operation on a draft (negative id) record.
	ErrDraft = errors.New("operation not available on draft records")
)

func errInvalidValue(entity, field string, v any) error {
	return fmt.Errorf("%w: %v for «%s.%s»", ErrInvalidValue, v, entity, field)
}

func errMissingRequired(entity, field string) error {
	return fmt.Errorf("%w: «%s.%s»", ErrMissingRequired, entity, field)
}

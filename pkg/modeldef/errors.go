/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity reports a lookup of an entity the registry does not hold.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrFieldResolution reports a reference to a field that does not exist
	// or a dotted path that cannot be walked.
	ErrFieldResolution = errors.New("cannot resolve field")

	// ErrInheritanceCycle reports a cycle in the mixin or delegation graph.
	ErrInheritanceCycle = errors.New("inheritance cycle")

	// ErrInvalidDeclaration reports a malformed model declaration.
	ErrInvalidDeclaration = errors.New("invalid declaration")
)

func errUnknownEntity(name string) error {
	return fmt.Errorf("%w «%s»", ErrUnknownEntity, name)
}

func errFieldResolution(entity, field string) error {
	return fmt.Errorf("%w «%s» on entity «%s»", ErrFieldResolution, field, entity)
}

func errDeclaration(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDeclaration, fmt.Sprintf(msg, args...))
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package istorage

import "errors"

var (
	// ErrSerialization is a transaction serialization failure; callers may
	// retry the whole operation.
	ErrSerialization = errors.New("serialization failure")

	// ErrDeadlock is a storage-detected deadlock; callers may retry.
	ErrDeadlock = errors.New("deadlock detected")

	// ErrIntegrity is a violated SQL constraint (unique, foreign key, check).
	ErrIntegrity = errors.New("integrity constraint violation")

	// ErrClosed reports use of a finished cursor.
	ErrClosed = errors.New("cursor is closed")
)

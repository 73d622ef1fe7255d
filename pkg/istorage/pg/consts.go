/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package pg

// PostgreSQL error codes of interest.
const (
	codeSerialization = "40001"
	codeDeadlock      = "40P01"
	classIntegrity    = "23"
)

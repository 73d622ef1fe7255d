/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package sqlite

// SQLite primary result codes of interest.
const (
	codeBusy       = 5
	codeLocked     = 6
	codeConstraint = 19
)

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package accessctl

import (
	"errors"
	"fmt"
)

// ErrAccess reports a denied operation. The message carries the entity and
// mode, never the rule contents.
var ErrAccess = errors.New("access denied")

// ErrAccessDenied wraps ErrAccess with the failing entity and mode.
func ErrAccessDenied(entity string, mode Mode) error {
	return fmt.Errorf("%w: operation «%s» on entity «%s»", ErrAccess, mode, entity)
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package domains

import (
	"errors"
	"fmt"
)

var ErrInvalidDomain = errors.New("invalid domain")

func errInvalid(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDomain, fmt.Sprintf(msg, args...))
}

package app

import (
	"fmt"

	"github.com/d9rick/GeoPledge/internal/store"
)

// ErrPledgeNotFound is returned when a pledge does not exist or belongs to another user.
var ErrPledgeNotFound = store.ErrPledgeNotFound

// ValidationError reports a malformed pledge field. Nothing is persisted when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

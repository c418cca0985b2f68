package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyName     = errors.New("catalog: empty event name")
	ErrUnknownEvent  = errors.New("catalog: unknown event")
	ErrUnknownSource = errors.New("catalog: unknown source id")
	ErrRevoked       = errors.New("catalog: grant revoked")
)

// MissingIdentityError reports a record that lacks a field the catalog needs
// to deduplicate it safely. Callers treat it as "skip this source".
type MissingIdentityError struct {
	Kind  string // "photometry" | "spectrum" | "source"
	Event string
	Field string // "filename" | "id" | "name"
}

func (e *MissingIdentityError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("%s: %s not found", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s for %s: %s not found", e.Kind, e.Event, e.Field)
}

func unknownEvent(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// Package schema validates downstream updates before they leave the process.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"conversation-transcriber/internal/models"
)

// ErrInvalidUpdate wraps every validation failure.
var ErrInvalidUpdate = errors.New("invalid update")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the structural rules consumers rely on: partials replace
// per speaker, finals are append-only and carry a turn ID.
func (v *Validator) Validate(u models.Update) error {
	switch {
	case u.SessionID == "":
		return fmt.Errorf("%w: missing sessionId", ErrInvalidUpdate)
	case !u.Speaker.Valid():
		return fmt.Errorf("%w: unknown speaker %q", ErrInvalidUpdate, u.Speaker)
	case strings.TrimSpace(u.Text) == "":
		return fmt.Errorf("%w: empty text", ErrInvalidUpdate)
	}

	switch u.EventType {
	case models.EventTypePartial:
		if !u.IsPartial {
			return fmt.Errorf("%w: partial event without isPartial", ErrInvalidUpdate)
		}
	case models.EventTypeFinal:
		if u.IsPartial {
			return fmt.Errorf("%w: final event marked partial", ErrInvalidUpdate)
		}
		if u.TurnID == "" {
			return fmt.Errorf("%w: final event without turnId", ErrInvalidUpdate)
		}
	default:
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidUpdate, u.EventType)
	}
	return nil
}

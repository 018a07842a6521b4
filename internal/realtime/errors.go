package realtime

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed or missing fields in an event payload or
// delivery draft. It is always sent back to the originating connection only.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// NotFoundError reports referenced entities that do not exist. Missing holds
// every offending field so callers see both a bad sender and a bad receiver
// in one error.
type NotFoundError struct {
	Resource string
	Missing  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, strings.Join(e.Missing, ", "))
}

// DeliveryError wraps a broadcast or transport failure after successful
// persistence. It is logged, never surfaced to callers.
type DeliveryError struct {
	Event string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Event, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

package domain

import "errors"

var (
	// ErrNotFound indicates that a referenced task, board, user or notification does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates that the entity collides with an existing one.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// DeliveryResult reports the outcome of pushing a payload to a real-time channel.
type DeliveryResult struct {
	Err error
}

func (r DeliveryResult) OK() bool { return r.Err == nil }

func (r DeliveryResult) Failed() bool { return r.Err != nil }

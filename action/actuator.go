// Package action drives a single actuator toward a target position with a
// feedback controller.
//
// An action is created per move and driven by an external scheduler: Init once,
// then Step (combined form, [PIDFAction]) or Loop (decoupled form,
// [PIDFActionEx]) on every control tick until the actuator has arrived within
// the tolerance band of the target. Nothing in this package blocks, spawns
// goroutines or retries; every call completes before returning.
package action

import "context"

// Actuator is the device driver an action moves. Positions are encoder ticks
// and power is a fraction in [-1, 1].
//
// Implementations are expected to answer quickly; the action calls them inline
// on every step.
type Actuator interface {
	Position(ctx context.Context) (int, error)
	SetPower(ctx context.Context, power float64) error
}

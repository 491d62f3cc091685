package action

import "context"

// Arrived reports whether position lies in the closed band
// [target-tolerance, target+tolerance].
func Arrived(position, target, tolerance int) bool {
	return position >= target-tolerance && position <= target+tolerance
}

// Condition is a completion check evaluated by a scheduler, independently of
// stepping the controller.
type Condition interface {
	Arrived(ctx context.Context) (bool, error)
}

// ConditionFunc adapts a function to a Condition.
type ConditionFunc func(ctx context.Context) (bool, error)

// Arrived calls f.
func (f ConditionFunc) Arrived(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Targeter exposes a target position that may change over time.
type Targeter interface {
	Target() int
}

// FixedTarget is a Targeter that never changes.
type FixedTarget int

// Target returns t.
func (t FixedTarget) Target() int {
	return int(t)
}

// arrival reads the target through a Targeter on every evaluation so a
// retargeted action is never judged against its old setpoint.
type arrival struct {
	actuator  Actuator
	target    Targeter
	tolerance int
}

// HasArrived returns a Condition that is true while the actuator position is
// within tolerance of target.Target() at the moment it is evaluated.
func HasArrived(actuator Actuator, target Targeter, tolerance int) Condition {
	return &arrival{actuator: actuator, target: target, tolerance: tolerance}
}

func (a *arrival) Arrived(ctx context.Context) (bool, error) {
	position, err := a.actuator.Position(ctx)
	if err != nil {
		return false, err
	}
	return Arrived(position, a.target.Target(), a.tolerance), nil
}

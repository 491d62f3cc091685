package action

import "context"

var (
	_ LoopAction = (*PIDFAction)(nil)
	_ CondAction = (*PIDFActionEx)(nil)
)

// PIDFAction moves an actuator to a target and reports its own completion.
type PIDFAction struct {
	pidfCore
}

// NewPIDFAction returns an action driving actuator with an injected controller.
// The controller is used exclusively by the action for its lifetime.
func NewPIDFAction(actuator Actuator, target int, controller Controller, opts ...Option) *PIDFAction {
	return &PIDFAction{pidfCore: newPIDFCore(actuator, target, controller, buildOptions(opts))}
}

// NewPIDFActionFromCoefficients returns an action that owns a PIDFController
// built from coeffs.
func NewPIDFActionFromCoefficients(actuator Actuator, target int, coeffs PIDFCoefficients, opts ...Option) *PIDFAction {
	o := buildOptions(opts)
	return &PIDFAction{pidfCore: newPIDFCore(actuator, target, NewPIDFController(coeffs, o.pidfOptions...), o)}
}

// Step drives the actuator once and returns true while it has not yet arrived.
func (a *PIDFAction) Step(ctx context.Context, sink Sink) (bool, error) {
	position, err := a.drive(ctx, sink)
	if err != nil {
		return false, err
	}
	return !Arrived(position, a.target, a.tolerance), nil
}

// PIDFActionEx moves an actuator to a target and leaves completion to a
// Condition the scheduler evaluates on its own cadence.
type PIDFActionEx struct {
	pidfCore
	cond Condition
}

// NewPIDFActionEx returns a decoupled action driving actuator with an injected controller.
func NewPIDFActionEx(actuator Actuator, target int, controller Controller, opts ...Option) *PIDFActionEx {
	a := &PIDFActionEx{pidfCore: newPIDFCore(actuator, target, controller, buildOptions(opts))}
	a.cond = HasArrived(actuator, a, a.tolerance)
	return a
}

// NewPIDFActionExFromCoefficients returns a decoupled action that owns a
// PIDFController built from coeffs.
func NewPIDFActionExFromCoefficients(actuator Actuator, target int, coeffs PIDFCoefficients, opts ...Option) *PIDFActionEx {
	o := buildOptions(opts)
	a := &PIDFActionEx{pidfCore: newPIDFCore(actuator, target, NewPIDFController(coeffs, o.pidfOptions...), o)}
	a.cond = HasArrived(actuator, a, a.tolerance)
	return a
}

// Loop drives the actuator once.
func (a *PIDFActionEx) Loop(ctx context.Context, sink Sink) error {
	_, err := a.drive(ctx, sink)
	return err
}

// Condition reports arrival against the action's current target, including
// targets set after the condition was obtained.
func (a *PIDFActionEx) Condition() Condition {
	return a.cond
}

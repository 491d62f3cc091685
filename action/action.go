package action

import (
	"context"

	"github.com/pkg/errors"
)

// DefaultTolerance is the arrival band half-width, in ticks, used when none is given.
const DefaultTolerance = 50

// ErrNotInitialized is returned by Step and Loop when Init has not been called.
var ErrNotInitialized = errors.New("action: step before init")

// Action is the lifecycle shared by both action forms. Init programs the
// controller setpoint and must be called before the first step. Calling it
// again is harmless.
type Action interface {
	Init()
}

// LoopAction decides its own completion: Step drives the actuator once and
// returns false once the actuator has arrived. The boolean is meaningless when
// err is non-nil.
type LoopAction interface {
	Action
	Step(ctx context.Context, sink Sink) (bool, error)
}

// CondAction leaves completion to the scheduler: Loop drives the actuator once
// and Condition reports arrival, independently of Loop.
type CondAction interface {
	Action
	Loop(ctx context.Context, sink Sink) error
	Condition() Condition
}

// Option configures an action.
type Option func(*options)

type options struct {
	tolerance   int
	label       string
	pidfOptions []PIDFOption
}

// WithTolerance sets the arrival band half-width in ticks.
func WithTolerance(tolerance int) Option {
	return func(o *options) {
		o.tolerance = tolerance
	}
}

// WithLabel sets the label of emitted telemetry records.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithPIDFOptions configures the controller built by the FromCoefficients
// constructors. It has no effect on an injected controller.
func WithPIDFOptions(opts ...PIDFOption) Option {
	return func(o *options) {
		o.pidfOptions = append(o.pidfOptions, opts...)
	}
}

func buildOptions(opts []Option) options {
	o := options{tolerance: DefaultTolerance, label: DefaultLabel}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// pidfCore is the read, update, drive, report cycle both forms share.
//
// target is only ever written through SetTarget, which reprograms the
// controller in the same call.
type pidfCore struct {
	actuator   Actuator
	controller Controller
	target     int
	tolerance  int
	label      string

	initialized bool
}

func newPIDFCore(actuator Actuator, target int, controller Controller, o options) pidfCore {
	c := pidfCore{
		actuator:   actuator,
		controller: controller,
		target:     target,
		tolerance:  o.tolerance,
		label:      o.label,
	}
	c.controller.SetTarget(float64(target))
	return c
}

// Init programs the controller setpoint to the current target.
func (c *pidfCore) Init() {
	c.controller.SetTarget(float64(c.target))
	c.initialized = true
}

// Target returns the current target in ticks.
func (c *pidfCore) Target() int {
	return c.target
}

// SetTarget changes the target and the controller setpoint together. It may be
// called between steps without calling Init again.
func (c *pidfCore) SetTarget(target int) {
	c.controller.SetTarget(float64(target))
	c.target = target
}

// Tolerance returns the arrival band half-width in ticks.
func (c *pidfCore) Tolerance() int {
	return c.tolerance
}

// drive runs one control cycle and returns the position it was computed for.
// The order read, update, write, report must not change: the record describes
// the command actually issued for that measurement.
func (c *pidfCore) drive(ctx context.Context, sink Sink) (int, error) {
	if !c.initialized {
		return 0, ErrNotInitialized
	}

	position, err := c.actuator.Position(ctx)
	if err != nil {
		return 0, err
	}

	power := c.controller.Update(float64(position))

	if err := c.actuator.SetPower(ctx, power); err != nil {
		return position, err
	}

	if sink != nil {
		sink.Put(Record{
			Label:  c.label,
			Target: c.target,
			Error:  c.target - position,
			Power:  power,
		})
	}
	return position, nil
}

package action

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/motor"
)

// Controller is a feedback controller holding a programmable setpoint.
//
// Update must depend only on the controller's own accumulated state and the
// measurement it is given, so that calling it at a steady cadence converges.
type Controller interface {
	SetTarget(target float64)
	Update(measured float64) float64
}

// RetargetPolicy decides what a PIDFController does with its accumulated
// integral and derivative history when its setpoint changes.
type RetargetPolicy int

const (
	// RetainOnRetarget keeps accumulated state across setpoint changes.
	RetainOnRetarget RetargetPolicy = iota
	// ResetOnRetarget clears accumulated state whenever the setpoint changes
	// to a different value.
	ResetOnRetarget
)

func (p RetargetPolicy) String() string {
	switch p {
	case RetainOnRetarget:
		return "retain"
	case ResetOnRetarget:
		return "reset"
	default:
		return "unknown"
	}
}

// PIDFCoefficients are the gains of a PIDFController. Kf scales the target as
// a feedforward term.
type PIDFCoefficients struct {
	Kp float64
	Ki float64
	Kd float64
	Kf float64
}

// Validate rejects coefficient sets that cannot produce feedback.
func (c PIDFCoefficients) Validate() error {
	for name, v := range map[string]float64{"kp": c.Kp, "ki": c.Ki, "kd": c.Kd, "kf": c.Kf} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("pidf: %s must be finite, got %v", name, v)
		}
	}
	if c.Kp == 0 && c.Ki == 0 && c.Kd == 0 {
		return errors.New("pidf: at least one of kp, ki or kd must be non-zero")
	}
	return nil
}

// PIDFController is a PID controller with target feedforward. Its output is
// clamped to the motor power range.
//
// Elapsed time between updates is read from a clock; the first update after
// construction or Reset has no integral or derivative contribution.
type PIDFController struct {
	coeffs PIDFCoefficients
	policy RetargetPolicy
	clk    clock.Clock

	target   float64
	integral float64
	prevErr  float64
	prevT    time.Time
	first    bool
}

// PIDFOption configures a PIDFController.
type PIDFOption func(*PIDFController)

// WithClock sets the clock used to measure time between updates.
func WithClock(clk clock.Clock) PIDFOption {
	return func(p *PIDFController) {
		p.clk = clk
	}
}

// WithRetargetPolicy sets what happens to accumulated state on a setpoint change.
func WithRetargetPolicy(policy RetargetPolicy) PIDFOption {
	return func(p *PIDFController) {
		p.policy = policy
	}
}

// NewPIDFController returns a controller with the given gains and a zero setpoint.
func NewPIDFController(coeffs PIDFCoefficients, opts ...PIDFOption) *PIDFController {
	p := &PIDFController{
		coeffs: coeffs,
		clk:    clock.New(),
		first:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTarget programs the setpoint. Accumulated state is kept unless the
// controller was built with ResetOnRetarget and the value actually changes.
func (p *PIDFController) SetTarget(target float64) {
	if p.policy == ResetOnRetarget && target != p.target {
		p.Reset()
	}
	p.target = target
}

// Target returns the programmed setpoint.
func (p *PIDFController) Target() float64 {
	return p.target
}

// Reset clears integral and derivative state.
func (p *PIDFController) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.prevT = time.Time{}
	p.first = true
}

// Update returns the drive command for the measured position.
func (p *PIDFController) Update(measured float64) float64 {
	now := p.clk.Now()
	e := p.target - measured
	ff := p.coeffs.Kf * p.target

	if p.first {
		p.first = false
		p.prevErr = e
		p.prevT = now
		return motor.ClampPower(p.coeffs.Kp*e + ff)
	}

	dt := now.Sub(p.prevT).Seconds()
	if dt <= 0 {
		return motor.ClampPower(p.coeffs.Kp*e + p.coeffs.Ki*p.integral + ff)
	}

	p.integral += e * dt
	derivative := (e - p.prevErr) / dt
	p.prevErr = e
	p.prevT = now

	return motor.ClampPower(p.coeffs.Kp*e + p.coeffs.Ki*p.integral + p.coeffs.Kd*derivative + ff)
}

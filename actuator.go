package pidaction

import (
	"context"
	"math"
	"sync"

	"go.viam.com/rdk/components/motor"

	"pidaction/action"
)

// DefaultSimulatedGain is how many ticks the simulated plant moves per command at full power.
const DefaultSimulatedGain = 100.0

var (
	_ action.Actuator = (*motorActuator)(nil)
	_ action.Actuator = (*SimulatedActuator)(nil)
)

// motorActuator wraps a Viam motor, converting its position in revolutions to encoder ticks
type motorActuator struct {
	motor            motor.Motor
	ticksPerRotation float64
}

func newMotorActuator(m motor.Motor, ticksPerRotation float64) *motorActuator {
	if ticksPerRotation <= 0 {
		ticksPerRotation = 1
	}
	return &motorActuator{motor: m, ticksPerRotation: ticksPerRotation}
}

func (a *motorActuator) Position(ctx context.Context) (int, error) {
	revs, err := a.motor.Position(ctx, nil)
	if err != nil {
		return 0, err
	}
	return int(math.Round(revs * a.ticksPerRotation)), nil
}

func (a *motorActuator) SetPower(ctx context.Context, power float64) error {
	return a.motor.SetPower(ctx, motor.ClampPower(power), nil)
}

// SimulatedActuator is an integrating plant: every SetPower call moves the
// position by power*gain ticks. It needs no hardware and no clock, so a
// scheduler stepping it is fully deterministic.
type SimulatedActuator struct {
	mu       sync.Mutex
	position float64
	gain     float64
	power    float64
	commands int
}

func NewSimulatedActuator(start int, gain float64) *SimulatedActuator {
	if gain <= 0 {
		gain = DefaultSimulatedGain
	}
	return &SimulatedActuator{position: float64(start), gain: gain}
}

func (s *SimulatedActuator) Position(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(math.Round(s.position)), nil
}

func (s *SimulatedActuator) SetPower(ctx context.Context, power float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = motor.ClampPower(power)
	s.position += s.power * s.gain
	s.commands++
	return nil
}

// SetPosition moves the plant directly, e.g. to simulate a disturbance.
func (s *SimulatedActuator) SetPosition(position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = float64(position)
}

// Power returns the last commanded power.
func (s *SimulatedActuator) Power() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// Commands returns how many times SetPower has been called.
func (s *SimulatedActuator) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

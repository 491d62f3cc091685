// Package simulate steps a position action against the simulated plant on a
// mock clock, for checking gains before they go on hardware.
package simulate

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"pidaction"
	"pidaction/action"
)

type Result struct {
	Records   []action.Record
	Positions []float64
	Targets   []float64
	Steps     int
	Arrived   bool
	Final     int
}

// stepper hides which action form is being run.
type stepper interface {
	SetTarget(target int)
	step(ctx context.Context, sink action.Sink) (bool, error)
}

type inlineStepper struct{ *action.PIDFAction }

func (s inlineStepper) step(ctx context.Context, sink action.Sink) (bool, error) {
	cont, err := s.Step(ctx, sink)
	return !cont, err
}

type conditionStepper struct{ *action.PIDFActionEx }

func (s conditionStepper) step(ctx context.Context, sink action.Sink) (bool, error) {
	if err := s.Loop(ctx, sink); err != nil {
		return false, err
	}
	return s.Condition().Arrived(ctx)
}

// Run drives a fresh simulated plant until the action arrives or MaxSteps is
// reached. sink, if non-nil, sees every record as it is emitted.
func Run(ctx context.Context, cfg *Config, sink action.Sink) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mock := clock.NewMock()
	plant := pidaction.NewSimulatedActuator(cfg.Start, cfg.PlantGain)
	policy := action.RetainOnRetarget
	if cfg.ResetOnRetarget {
		policy = action.ResetOnRetarget
	}
	opts := []action.Option{
		action.WithTolerance(cfg.Tolerance),
		action.WithPIDFOptions(action.WithClock(mock), action.WithRetargetPolicy(policy)),
	}

	var s stepper
	if cfg.Completion == CompletionCondition {
		a := action.NewPIDFActionExFromCoefficients(plant, cfg.Target, cfg.Coefficients(), opts...)
		a.Init()
		s = conditionStepper{a}
	} else {
		a := action.NewPIDFActionFromCoefficients(plant, cfg.Target, cfg.Coefficients(), opts...)
		a.Init()
		s = inlineStepper{a}
	}

	var packet action.Packet
	tee := action.Tee(&packet, sink)
	dt := time.Duration(cfg.Dt * float64(time.Second))

	result := &Result{}
	for i := 0; i < cfg.MaxSteps; i++ {
		select {
		case <-ctx.Done():
			return result, result.collect(ctx, &packet, plant, ctx.Err())
		default:
		}

		if cfg.Retarget != nil && cfg.Retarget.AtStep == i {
			s.SetTarget(cfg.Retarget.Target)
		}

		mock.Add(dt)
		arrived, err := s.step(ctx, tee)
		if err != nil {
			return result, result.collect(ctx, &packet, plant, err)
		}
		result.Steps++
		if arrived {
			result.Arrived = true
			break
		}
	}
	return result, result.collect(ctx, &packet, plant, nil)
}

// collect fills the traces and final position from what the run produced so
// far, so a run cut short still returns everything it recorded. It returns
// runErr unless reading the plant fails.
func (r *Result) collect(ctx context.Context, packet *action.Packet, plant *pidaction.SimulatedActuator, runErr error) error {
	r.Records = packet.Records()
	r.Positions = make([]float64, 0, len(r.Records))
	r.Targets = make([]float64, 0, len(r.Records))
	for _, rec := range r.Records {
		r.Positions = append(r.Positions, float64(rec.Target-rec.Error))
		r.Targets = append(r.Targets, float64(rec.Target))
	}

	final, err := plant.Position(ctx)
	if err != nil {
		return err
	}
	r.Final = final
	return runErr
}

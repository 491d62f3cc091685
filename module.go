package pidaction

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
	"go.viam.com/utils"

	"pidaction/action"
)

var PositionController = resource.NewModel("viamdemo", "pid-action", "position-controller")

func init() {
	resource.RegisterService(generic.API, PositionController,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newPositionController,
		},
	)
}

const (
	completionInline    = "inline"
	completionCondition = "condition"

	defaultLoopFrequencyHz      = 50
	maxLoopFrequencyHz          = 1000
	defaultMaxConsecutiveErrors = 10
	manualStepping              = -1
)

type Config struct {
	Motor                string  `json:"motor"`                         // REQUIRED unless use_simulated_motor
	UseSimulatedMotor    bool    `json:"use_simulated_motor,omitempty"` // drive an in-process plant instead of hardware
	TicksPerRotation     float64 `json:"ticks_per_rotation,omitempty"`  // encoder ticks per revolution (default: 1)
	Kp                   float64 `json:"kp,omitempty"`
	Ki                   float64 `json:"ki,omitempty"`
	Kd                   float64 `json:"kd,omitempty"`
	Kf                   float64 `json:"kf,omitempty"`
	Tolerance            *int    `json:"tolerance,omitempty"`              // arrival band half-width in ticks (default: 50)
	LoopFrequencyHz      int     `json:"loop_frequency_hz,omitempty"`      // default: 50, -1 steps only on the "step" command
	Completion           string  `json:"completion,omitempty"`             // "inline" (default) or "condition"
	ResetOnRetarget      bool    `json:"reset_on_retarget,omitempty"`      // clear integral/derivative history on set_target
	BrakeOnArrival       bool    `json:"brake_on_arrival,omitempty"`       // zero power once arrived
	TelemetryLabel       string  `json:"telemetry_label,omitempty"`        // default: "Motor Info"
	MaxConsecutiveErrors int     `json:"max_consecutive_errors,omitempty"` // failed steps before a move is aborted (default: 10)
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	var err error
	if cfg.Motor == "" && !cfg.UseSimulatedMotor {
		err = multierr.Append(err, fmt.Errorf("%s: motor is required unless use_simulated_motor is set", path))
	}
	if cerr := cfg.coefficients().Validate(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", path, cerr))
	}
	if cfg.Tolerance != nil && *cfg.Tolerance < 0 {
		err = multierr.Append(err, fmt.Errorf("%s: tolerance must be >= 0, got %d", path, *cfg.Tolerance))
	}
	if cfg.TicksPerRotation < 0 {
		err = multierr.Append(err, fmt.Errorf("%s: ticks_per_rotation must be positive, got %v", path, cfg.TicksPerRotation))
	}
	if cfg.LoopFrequencyHz < manualStepping || cfg.LoopFrequencyHz > maxLoopFrequencyHz {
		err = multierr.Append(err, fmt.Errorf("%s: loop_frequency_hz must be in [1, %d] or -1, got %d",
			path, maxLoopFrequencyHz, cfg.LoopFrequencyHz))
	}
	if cfg.MaxConsecutiveErrors < 0 {
		err = multierr.Append(err, fmt.Errorf("%s: max_consecutive_errors must be >= 0, got %d", path, cfg.MaxConsecutiveErrors))
	}
	switch cfg.Completion {
	case "", completionInline, completionCondition:
	default:
		err = multierr.Append(err, fmt.Errorf("%s: completion must be %q or %q, got %q",
			path, completionInline, completionCondition, cfg.Completion))
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.Motor == "" {
		return nil, nil, nil
	}
	return []string{cfg.Motor}, nil, nil
}

func (cfg *Config) coefficients() action.PIDFCoefficients {
	return action.PIDFCoefficients{Kp: cfg.Kp, Ki: cfg.Ki, Kd: cfg.Kd, Kf: cfg.Kf}
}

func (cfg *Config) tolerance() int {
	if cfg.Tolerance == nil {
		return action.DefaultTolerance
	}
	return *cfg.Tolerance
}

func (cfg *Config) label() string {
	if cfg.TelemetryLabel == "" {
		return action.DefaultLabel
	}
	return cfg.TelemetryLabel
}

func (cfg *Config) retargetPolicy() action.RetargetPolicy {
	if cfg.ResetOnRetarget {
		return action.ResetOnRetarget
	}
	return action.RetainOnRetarget
}

// loopPeriod is zero when moves only advance through the "step" command.
func (cfg *Config) loopPeriod() time.Duration {
	switch {
	case cfg.LoopFrequencyHz == manualStepping:
		return 0
	case cfg.LoopFrequencyHz <= 0:
		return time.Second / defaultLoopFrequencyHz
	case cfg.LoopFrequencyHz > maxLoopFrequencyHz:
		return time.Second / maxLoopFrequencyHz
	default:
		return time.Second / time.Duration(cfg.LoopFrequencyHz)
	}
}

func (cfg *Config) maxConsecutiveErrors() int {
	if cfg.MaxConsecutiveErrors <= 0 {
		return defaultMaxConsecutiveErrors
	}
	return cfg.MaxConsecutiveErrors
}

type moveState string

const (
	stateIdle    moveState = "idle"
	stateMoving  moveState = "moving"
	stateArrived moveState = "arrived"
	stateFailed  moveState = "failed"
	stateStopped moveState = "stopped"
)

// movingAction is what both action forms offer the scheduler besides stepping.
type movingAction interface {
	action.Action
	Target() int
	SetTarget(target int)
}

// move is one go_to: the action, the completion check judged against its live
// target, and the ticker driving it.
type move struct {
	act       movingAction
	condition action.Condition
	workers   *utils.StoppableWorkers
	startedAt time.Time

	steps             int
	consecutiveErrors int
}

func (m *move) stopWorkers() {
	if m.workers != nil {
		m.workers.Stop()
	}
}

type positionController struct {
	resource.AlwaysRebuild

	name     resource.Name
	logger   logging.Logger
	cfg      *Config
	actuator action.Actuator
	clk      clock.Clock
	sink     action.Sink

	// mu serializes stepping, retargeting and status so only one caller drives
	// the action at a time.
	mu         sync.Mutex
	state      moveState
	move       *move
	moveCount  int
	lastRecord *action.Record
	lastErr    error
}

func newPositionController(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewController(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewController(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	var act action.Actuator
	if conf.UseSimulatedMotor {
		act = NewSimulatedActuator(0, DefaultSimulatedGain)
		logger.Infof("position-controller using simulated motor (use_simulated_motor=true)")
	} else {
		m, err := motor.FromDependencies(deps, conf.Motor)
		if err != nil {
			return nil, fmt.Errorf("getting motor: %w", err)
		}
		props, err := m.Properties(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("getting motor properties: %w", err)
		}
		if !props.PositionReporting {
			return nil, fmt.Errorf("motor %q does not report position", conf.Motor)
		}
		act = newMotorActuator(m, conf.TicksPerRotation)
		logger.Infof("position-controller driving motor %q (ticks_per_rotation: %v)", conf.Motor, conf.TicksPerRotation)
	}

	c := &positionController{
		name:     name,
		logger:   logger,
		cfg:      conf,
		actuator: act,
		clk:      clock.New(),
		state:    stateIdle,
	}
	c.sink = action.Tee(action.LoggerSink(logger), action.SinkFunc(c.recordLocked))
	return c, nil
}

func (c *positionController) Name() resource.Name {
	return c.name
}

func (c *positionController) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "go_to":
		return c.handleGoTo(cmd)
	case "set_target":
		return c.handleSetTarget(cmd)
	case "step":
		return c.handleStep(ctx)
	case "stop":
		return c.handleStop(ctx)
	case "status":
		return c.GetState(), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (c *positionController) newMove(target int) *move {
	opts := []action.Option{
		action.WithTolerance(c.cfg.tolerance()),
		action.WithLabel(c.cfg.label()),
		action.WithPIDFOptions(
			action.WithClock(c.clk),
			action.WithRetargetPolicy(c.cfg.retargetPolicy()),
		),
	}

	m := &move{startedAt: c.clk.Now()}
	if c.cfg.Completion == completionCondition {
		a := action.NewPIDFActionExFromCoefficients(c.actuator, target, c.cfg.coefficients(), opts...)
		m.act = a
		m.condition = a.Condition()
	} else {
		a := action.NewPIDFActionFromCoefficients(c.actuator, target, c.cfg.coefficients(), opts...)
		m.act = a
		m.condition = action.HasArrived(c.actuator, a, c.cfg.tolerance())
	}
	return m
}

func (c *positionController) handleGoTo(cmd map[string]interface{}) (map[string]interface{}, error) {
	target, err := targetFromCommand(cmd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state == stateMoving {
		current := c.move.act.Target()
		c.mu.Unlock()
		return nil, fmt.Errorf("move to %d already in progress", current)
	}

	prev := c.move
	m := c.newMove(target)
	m.act.Init()
	if period := c.cfg.loopPeriod(); period > 0 {
		m.workers = utils.NewStoppableWorkerWithTicker(period, func(ctx context.Context) {
			c.tick(ctx, m)
		})
	}
	c.move = m
	c.state = stateMoving
	c.moveCount++
	c.lastRecord = nil
	c.lastErr = nil
	moveCount := c.moveCount
	c.mu.Unlock()

	// An arrived move keeps its ticker until it is replaced.
	if prev != nil {
		prev.stopWorkers()
	}

	c.logger.Infof("move %d started: target %d (tolerance %d, completion %s)",
		moveCount, target, c.cfg.tolerance(), c.completion())
	return map[string]interface{}{
		"status":     "moving",
		"target":     target,
		"move_count": moveCount,
	}, nil
}

func (c *positionController) handleSetTarget(cmd map[string]interface{}) (map[string]interface{}, error) {
	target, err := targetFromCommand(cmd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.move == nil || (c.state != stateMoving && c.state != stateArrived) {
		return nil, fmt.Errorf("no move in progress")
	}

	prev := c.move.act.Target()
	c.move.act.SetTarget(target)
	c.state = stateMoving
	c.logger.Infof("retargeted from %d to %d", prev, target)

	return map[string]interface{}{
		"status":          "moving",
		"target":          target,
		"previous_target": prev,
	}, nil
}

func (c *positionController) handleStep(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	m := c.move
	if m == nil || c.state != stateMoving {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("no move in progress (state: %s)", state)
	}
	aborted := c.stepLocked(ctx)
	result := c.stateLocked()
	c.mu.Unlock()

	if aborted {
		m.stopWorkers()
	}
	return result, nil
}

func (c *positionController) handleStop(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	m := c.move
	if m == nil || (c.state != stateMoving && c.state != stateArrived) {
		c.mu.Unlock()
		return nil, fmt.Errorf("no move in progress")
	}
	c.state = stateStopped
	target := m.act.Target()
	steps := m.steps
	c.mu.Unlock()

	m.stopWorkers()
	if err := c.actuator.SetPower(ctx, 0); err != nil {
		return nil, fmt.Errorf("zeroing power: %w", err)
	}

	c.logger.Infof("move to %d stopped after %d steps", target, steps)
	return map[string]interface{}{
		"status": "stopped",
		"target": target,
		"steps":  steps,
	}, nil
}

func (c *positionController) tick(ctx context.Context, m *move) {
	c.mu.Lock()
	if c.move != m || c.state != stateMoving {
		c.mu.Unlock()
		return
	}
	aborted := c.stepLocked(ctx)
	c.mu.Unlock()

	// Stop waits for this tick to return, so it cannot run on the ticker goroutine.
	if aborted {
		utils.PanicCapturingGo(m.stopWorkers)
	}
}

// stepLocked runs one scheduler tick of the active move. Recovery policy lives
// here, not in the action: failures are counted and the move is aborted once
// too many happen in a row. It reports whether the move was aborted; the
// caller stops its ticker after releasing mu.
func (c *positionController) stepLocked(ctx context.Context) bool {
	m := c.move
	arrived, err := c.advance(ctx, m)
	m.steps++

	if err != nil {
		m.consecutiveErrors++
		c.lastErr = err
		c.logger.Warnf("step %d toward %d failed: %v", m.steps, m.act.Target(), err)
		if m.consecutiveErrors >= c.cfg.maxConsecutiveErrors() {
			c.state = stateFailed
			c.logger.Errorf("move to %d aborted after %d consecutive failed steps", m.act.Target(), m.consecutiveErrors)
			c.zeroPowerLocked(ctx)
			return true
		}
		return false
	}
	m.consecutiveErrors = 0

	if arrived {
		c.state = stateArrived
		c.logger.Infof("arrived at %d after %d steps (%v)", m.act.Target(), m.steps, c.clk.Since(m.startedAt))
		if c.cfg.BrakeOnArrival {
			c.zeroPowerLocked(ctx)
		}
	}
	return false
}

func (c *positionController) advance(ctx context.Context, m *move) (bool, error) {
	switch a := m.act.(type) {
	case action.LoopAction:
		cont, err := a.Step(ctx, c.sink)
		if err != nil {
			return false, err
		}
		return !cont, nil
	case action.CondAction:
		if err := a.Loop(ctx, c.sink); err != nil {
			return false, err
		}
		return a.Condition().Arrived(ctx)
	default:
		return false, fmt.Errorf("unsupported action type %T", m.act)
	}
}

func (c *positionController) zeroPowerLocked(ctx context.Context) {
	if err := c.actuator.SetPower(ctx, 0); err != nil {
		c.logger.Warnf("failed to zero power: %v", err)
	}
}

// recordLocked is the telemetry sink of every move; actions only emit while
// the controller holds mu.
func (c *positionController) recordLocked(r action.Record) {
	c.lastRecord = &r
}

func (c *positionController) completion() string {
	if c.cfg.Completion == "" {
		return completionInline
	}
	return c.cfg.Completion
}

// Condition returns a completion check that follows whichever move is active
// when it is evaluated. It reports false while there is no move.
func (c *positionController) Condition() action.Condition {
	return action.ConditionFunc(func(ctx context.Context) (bool, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.move == nil {
			return false, nil
		}
		return c.move.condition.Arrived(ctx)
	})
}

func (c *positionController) GetState() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *positionController) stateLocked() map[string]interface{} {
	state := map[string]interface{}{
		"state":      string(c.state),
		"move_count": c.moveCount,
		"completion": c.completion(),
		"tolerance":  c.cfg.tolerance(),
	}
	if c.lastRecord != nil {
		for k, v := range c.lastRecord.Map() {
			state[k] = v
		}
	}
	// The live target wins over the one recorded before a retarget.
	if c.move != nil {
		state["target"] = c.move.act.Target()
		state["steps"] = c.move.steps
	}
	if c.lastErr != nil {
		state["last_error"] = c.lastErr.Error()
	}
	return state
}

func (c *positionController) Close(ctx context.Context) error {
	c.mu.Lock()
	m := c.move
	moving := c.state == stateMoving
	if moving {
		c.state = stateStopped
	}
	c.mu.Unlock()

	if m != nil {
		m.stopWorkers()
	}
	if moving {
		return c.actuator.SetPower(ctx, 0)
	}
	return nil
}

// targetFromCommand accepts JSON numbers (float64) as well as Go ints from
// in-process callers. Targets are limited to the int32 range so the tick
// arithmetic never overflows on any platform.
func targetFromCommand(cmd map[string]interface{}) (int, error) {
	switch v := cmd["target"].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("target must be finite, got %v", v)
		}
		r := math.Round(v)
		if r < math.MinInt32 || r > math.MaxInt32 {
			return 0, fmt.Errorf("target out of range, got %v", v)
		}
		return int(r), nil
	case int:
		if int64(v) < math.MinInt32 || int64(v) > math.MaxInt32 {
			return 0, fmt.Errorf("target out of range, got %v", v)
		}
		return v, nil
	case int64:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, fmt.Errorf("target out of range, got %v", v)
		}
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("missing 'target' field")
	default:
		return 0, fmt.Errorf("target must be a number, got %T", v)
	}
}

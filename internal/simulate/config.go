package simulate

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"pidaction"
	"pidaction/action"
)

const (
	CompletionInline    = "inline"
	CompletionCondition = "condition"

	DefaultKp       = 0.002
	DefaultTarget   = 1000
	DefaultDt       = 0.02
	DefaultMaxSteps = 1000
)

type Config struct {
	Kp              float64         `yaml:"kp"`
	Ki              float64         `yaml:"ki"`
	Kd              float64         `yaml:"kd"`
	Kf              float64         `yaml:"kf"`
	Tolerance       int             `yaml:"tolerance"`
	Start           int             `yaml:"start"`
	Target          int             `yaml:"target"`
	PlantGain       float64         `yaml:"plant_gain"`
	Dt              float64         `yaml:"dt"`
	MaxSteps        int             `yaml:"max_steps"`
	Completion      string          `yaml:"completion"`
	ResetOnRetarget bool            `yaml:"reset_on_retarget"`
	Retarget        *RetargetConfig `yaml:"retarget,omitempty"`
}

// RetargetConfig changes the target before the given step runs.
type RetargetConfig struct {
	AtStep int `yaml:"at_step"`
	Target int `yaml:"target"`
}

func DefaultConfig() *Config {
	return &Config{
		Kp:         DefaultKp,
		Tolerance:  action.DefaultTolerance,
		Target:     DefaultTarget,
		PlantGain:  pidaction.DefaultSimulatedGain,
		Dt:         DefaultDt,
		MaxSteps:   DefaultMaxSteps,
		Completion: CompletionInline,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Coefficients() action.PIDFCoefficients {
	return action.PIDFCoefficients{Kp: c.Kp, Ki: c.Ki, Kd: c.Kd, Kf: c.Kf}
}

func (c *Config) Validate() error {
	var err error
	if cerr := c.Coefficients().Validate(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if c.Tolerance < 0 {
		err = multierr.Append(err, fmt.Errorf("tolerance must be >= 0, got %d", c.Tolerance))
	}
	if c.PlantGain <= 0 {
		err = multierr.Append(err, fmt.Errorf("plant_gain must be positive, got %v", c.PlantGain))
	}
	if c.Dt <= 0 {
		err = multierr.Append(err, fmt.Errorf("dt must be positive, got %v", c.Dt))
	}
	if c.MaxSteps <= 0 {
		err = multierr.Append(err, fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps))
	}
	switch c.Completion {
	case CompletionInline, CompletionCondition:
	default:
		err = multierr.Append(err, fmt.Errorf("completion must be %q or %q, got %q",
			CompletionInline, CompletionCondition, c.Completion))
	}
	if c.Retarget != nil && c.Retarget.AtStep < 0 {
		err = multierr.Append(err, fmt.Errorf("retarget.at_step must be >= 0, got %d", c.Retarget.AtStep))
	}
	return err
}

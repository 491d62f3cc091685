package pidaction

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"pidaction/action"
)

var ArrivalSensor = resource.NewModel("viamdemo", "pid-action", "arrival-sensor")

func init() {
	resource.RegisterComponent(sensor.API, ArrivalSensor,
		resource.Registration[sensor.Sensor, *ArrivalSensorConfig]{
			Constructor: newArrivalSensor,
		},
	)
}

type ArrivalSensorConfig struct {
	Controller string `json:"controller"`
}

func (cfg *ArrivalSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Controller == "" {
		return nil, nil, fmt.Errorf("%s: controller is required", path)
	}
	dep := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), cfg.Controller)
	return []string{dep.String()}, nil, nil
}

type conditionProvider interface {
	stateProvider
	Condition() action.Condition
}

// arrivalSensor evaluates the controller's completion check on every read,
// without stepping the controller, so other machines can wait on the move.
type arrivalSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	controller stateProvider
	condition  action.Condition
}

func newArrivalSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*ArrivalSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	provider, err := controllerFromDependencies[conditionProvider](deps, conf.Controller)
	if err != nil {
		return nil, err
	}

	return &arrivalSensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		controller: provider,
		condition:  provider.Condition(),
	}, nil
}

func (s *arrivalSensor) Name() resource.Name {
	return s.name
}

func (s *arrivalSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	arrived, err := s.condition.Arrived(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating arrival: %w", err)
	}

	state := s.controller.GetState()
	readings := map[string]interface{}{
		"arrived": arrived,
		"state":   state["state"],
	}
	if target, ok := state["target"]; ok {
		readings["target"] = target
	}
	return readings, nil
}

func (s *arrivalSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on arrival-sensor")
}

func (s *arrivalSensor) Close(context.Context) error {
	return nil
}

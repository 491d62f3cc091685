package pidaction

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var TelemetrySensor = resource.NewModel("viamdemo", "pid-action", "telemetry-sensor")

func init() {
	resource.RegisterComponent(sensor.API, TelemetrySensor,
		resource.Registration[sensor.Sensor, *TelemetrySensorConfig]{
			Constructor: newTelemetrySensor,
		},
	)
}

type TelemetrySensorConfig struct {
	Controller string `json:"controller"`
}

func (cfg *TelemetrySensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Controller == "" {
		return nil, nil, fmt.Errorf("%s: controller is required", path)
	}
	// Return full resource name so Viam knows this is a generic service dependency
	dep := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), cfg.Controller)
	return []string{dep.String()}, nil, nil
}

type stateProvider interface {
	GetState() map[string]interface{}
}

// controllerFromDependencies looks up a position-controller service and checks
// that it offers what the sensor needs.
func controllerFromDependencies[T any](deps resource.Dependencies, name string) (T, error) {
	var zero T
	controllerName := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), name)
	ctrl, ok := deps[controllerName]
	if !ok {
		return zero, fmt.Errorf("controller %q not found in dependencies", name)
	}

	provider, ok := ctrl.(T)
	if !ok {
		return zero, fmt.Errorf("controller %q is not a position-controller", name)
	}
	return provider, nil
}

// telemetrySensor exposes the controller's latest telemetry record and move state as readings
type telemetrySensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	controller stateProvider
}

func newTelemetrySensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*TelemetrySensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	provider, err := controllerFromDependencies[stateProvider](deps, conf.Controller)
	if err != nil {
		return nil, err
	}

	return &telemetrySensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		controller: provider,
	}, nil
}

func (s *telemetrySensor) Name() resource.Name {
	return s.name
}

func (s *telemetrySensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	return s.controller.GetState(), nil
}

func (s *telemetrySensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on telemetry-sensor")
}

func (s *telemetrySensor) Close(context.Context) error {
	return nil
}

package hardware

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/ilievs/panelagent/core"
)

// SensorTemperature reads temperature sensors through gopsutil.
type SensorTemperature struct{}

func (SensorTemperature) Temperature(ctx context.Context, sensor string) (float64, error) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return 0, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	for _, t := range temps {
		if sensor == "" || t.SensorKey == sensor {
			return t.Temperature, nil
		}
	}
	return 0, fmt.Errorf("%w: no temperature sensor %q", core.ErrUnavailable, sensor)
}

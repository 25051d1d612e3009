package hardware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ilievs/panelagent/core"
)

func TestSensorTemperatureUnknownSensor(t *testing.T) {
	_, err := SensorTemperature{}.Temperature(context.Background(), "no_such_sensor_input")
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferencesConversions(t *testing.T) {
	p := NewPreferences(map[string]any{
		"Battery-Enabled":    "true",
		"motion-fps":         "5",
		"motion-granularity": 12.0,
		"motion-item":        "  Panel_Motion ",
		"motion-leniency":    "lots",
		"temperature-item":   nil,
	})

	assert.True(t, p.GetBool("battery-enabled", false))
	assert.Equal(t, 5, p.GetInt("motion-fps", 0))
	assert.Equal(t, 12, p.GetInt("motion-granularity", 0))
	assert.Equal(t, "Panel_Motion", p.GetString("motion-item", ""))
	assert.Equal(t, 20, p.GetInt("motion-leniency", 20))
	assert.Equal(t, "fallback", p.GetString("temperature-item", "fallback"))
	assert.False(t, p.GetBool("missing", false))
	assert.True(t, p.GetBool("motion-leniency", true))
}

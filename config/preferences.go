package config

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/ilievs/panelagent/command"
	"github.com/ilievs/panelagent/monitor"
)

// Preferences is an immutable snapshot of the monitor preferences. Values of the
// wrong type read as the default.
type Preferences struct {
	values map[string]any
}

func NewPreferences(values map[string]any) Preferences {
	p := Preferences{values: make(map[string]any, len(values))}
	for k, v := range values {
		p.values[strings.ToLower(k)] = v
	}
	return p
}

func (p Preferences) lookup(key string) (any, bool) {
	v, ok := p.values[strings.ToLower(key)]
	return v, ok && v != nil
}

func (p Preferences) GetBool(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func (p Preferences) GetString(key string, def string) string {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return strings.TrimSpace(s)
}

func (p Preferences) GetInt(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// DefaultPreferences has every facet disabled and unbound.
func DefaultPreferences() map[string]any {
	return map[string]any{
		monitor.PrefBatteryEnabled:      false,
		monitor.PrefBatteryLowItem:      "",
		monitor.PrefBatteryChargingItem: "",
		monitor.PrefBatteryLevelItem:    "",

		monitor.PrefMotionEnabled:     false,
		monitor.PrefMotionItem:        "",
		monitor.PrefMotionGranularity: monitor.DefaultMotionGranularity,
		monitor.PrefMotionLeniency:    monitor.DefaultMotionLeniency,
		monitor.PrefMotionFPS:         monitor.DefaultMotionFPS,

		monitor.PrefTemperatureEnabled:  false,
		monitor.PrefTemperatureItem:     "",
		monitor.PrefTemperatureSensor:   "",
		monitor.PrefTemperatureInterval: monitor.DefaultTemperatureInterval,

		command.PrefCommandEnabled: false,
		command.PrefCommandItem:    "",
	}
}

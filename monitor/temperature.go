package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ilievs/panelagent/core"
)

const (
	PrefTemperatureEnabled  = "temperature-enabled"
	PrefTemperatureItem     = "temperature-item"
	PrefTemperatureSensor   = "temperature-sensor"
	PrefTemperatureInterval = "temperature-interval"

	TemperatureStatusKey = "Temperature"

	DefaultTemperatureInterval = 60
)

// TemperatureSource reads a temperature in degrees Celsius. An empty sensor key
// selects the first sensor available.
type TemperatureSource interface {
	Temperature(ctx context.Context, sensor string) (float64, error)
}

type temperatureBinding struct {
	item   string
	sensor string
}

// TemperatureMonitor pushes a temperature reading to one item at a fixed interval.
type TemperatureMonitor struct {
	conn   core.ServerConnection
	source TemperatureSource
	logger *slog.Logger

	mu       sync.Mutex
	enabled  bool
	binding  atomic.Pointer[temperatureBinding]
	interval atomic.Int64
	poller   atomic.Pointer[Poller]

	valMu      sync.Mutex
	value      float64
	hasValue   bool
	lastPushed string
	itemState  string
}

func NewTemperatureMonitor(conn core.ServerConnection, source TemperatureSource, logger *slog.Logger) *TemperatureMonitor {
	m := &TemperatureMonitor{
		conn:   conn,
		source: source,
		logger: logger.With("monitor", "temperature"),
	}
	m.binding.Store(&temperatureBinding{})
	m.interval.Store(int64(DefaultTemperatureInterval * time.Second))
	return m
}

func (m *TemperatureMonitor) UpdateFromPreferences(prefs core.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = prefs.GetBool(PrefTemperatureEnabled, false)

	seconds := prefs.GetInt(PrefTemperatureInterval, DefaultTemperatureInterval)
	if seconds <= 0 {
		seconds = DefaultTemperatureInterval
	}
	m.interval.Store(int64(time.Duration(seconds) * time.Second))

	b := temperatureBinding{
		item:   prefs.GetString(PrefTemperatureItem, ""),
		sensor: prefs.GetString(PrefTemperatureSensor, ""),
	}
	if old := m.binding.Swap(&b); old.item != b.item {
		m.valMu.Lock()
		m.itemState = ""
		m.lastPushed = ""
		m.valMu.Unlock()
	}

	if !m.enabled || b.item == "" {
		m.stopPoller()
		m.conn.SubscribeItems(m)
		return
	}

	m.conn.SubscribeItems(m, b.item)
	if p := m.poller.Load(); p != nil {
		p.PollNow()
	} else {
		m.poller.Store(StartPoller("temperature", m.poll, m.pollInterval, m.logger))
	}
}

func (m *TemperatureMonitor) ItemUpdated(name string, value string) {
	if name == "" || name != m.binding.Load().item {
		return
	}
	m.valMu.Lock()
	m.itemState = value
	m.valMu.Unlock()
}

func (m *TemperatureMonitor) ReportStatus(sink core.StatusSink) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled {
		sink.Set(TemperatureStatusKey, StatusDisabled)
		return
	}

	b := m.binding.Load()
	if b.item == "" {
		sink.Set(TemperatureStatusKey, StatusEnabled)
		return
	}

	m.valMu.Lock()
	value := "unknown"
	if m.hasValue {
		value = formatCelsius(m.value) + " °C"
	}
	state := m.itemState
	m.valMu.Unlock()

	sink.Set(TemperatureStatusKey, fmt.Sprintf("%s\nTemperature: %s (%s: %s)",
		StatusEnabled, value, b.item, orUnknown(state)))
}

func (m *TemperatureMonitor) PollNow() {
	if p := m.poller.Load(); p != nil {
		p.PollNow()
	}
}

func (m *TemperatureMonitor) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopPoller()
	m.enabled = false
	m.conn.SubscribeItems(m)
}

func (m *TemperatureMonitor) stopPoller() {
	if p := m.poller.Swap(nil); p != nil {
		p.Stop()
	}
}

func (m *TemperatureMonitor) pollInterval() time.Duration {
	return time.Duration(m.interval.Load())
}

func (m *TemperatureMonitor) poll(ctx context.Context, full bool) {
	b := m.binding.Load()
	celsius, err := m.source.Temperature(ctx, b.sensor)
	if err != nil {
		m.logger.Debug("temperature unavailable", "sensor", b.sensor, "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	value := formatCelsius(celsius)
	m.valMu.Lock()
	m.value = celsius
	m.hasValue = true
	changed := full || value != m.lastPushed
	m.lastPushed = value
	m.valMu.Unlock()

	if changed {
		m.conn.UpdateState(b.item, value)
	}
}

func formatCelsius(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

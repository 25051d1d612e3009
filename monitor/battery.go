// Package monitor contains the device monitors that report panel hardware state
// to the home automation server.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ilievs/panelagent/core"
)

const (
	PrefBatteryEnabled      = "battery-enabled"
	PrefBatteryLowItem      = "battery-low-item"
	PrefBatteryChargingItem = "battery-charging-item"
	PrefBatteryLevelItem    = "battery-level-item"

	BatteryStatusKey = "Battery"

	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"

	// Battery level (percent) below which the battery counts as low.
	LowBatteryThreshold = 16

	DefaultChargingPollInterval = 5 * time.Second
	DefaultIdlePollInterval     = 5 * time.Minute
)

type BatteryStatus int

// Values follow the platform battery manager constants.
const (
	BatteryStatusUnknown     BatteryStatus = 1
	BatteryStatusCharging    BatteryStatus = 2
	BatteryStatusDischarging BatteryStatus = 3
	BatteryStatusNotCharging BatteryStatus = 4
	BatteryStatusFull        BatteryStatus = 5
)

type BatterySnapshot struct {
	Level  int
	Scale  int
	Status BatteryStatus
}

// Percent returns round(level/scale*100). ok is false for unusable readings.
func (s BatterySnapshot) Percent() (int, bool) {
	if s.Scale <= 0 || s.Level < 0 {
		return 0, false
	}
	return int(math.Round(float64(s.Level) / float64(s.Scale) * 100)), true
}

func (s BatterySnapshot) Charging() bool {
	return s.Status == BatteryStatusCharging || s.Status == BatteryStatusFull
}

// BatterySource reads the current battery state. It returns core.ErrUnavailable
// when no reading can be obtained.
type BatterySource interface {
	Snapshot(ctx context.Context) (BatterySnapshot, error)
}

type PowerEvent int

const (
	PowerConnected PowerEvent = iota
	PowerDisconnected
	BatteryLow
	BatteryOkay
)

func (e PowerEvent) String() string {
	switch e {
	case PowerConnected:
		return "power-connected"
	case PowerDisconnected:
		return "power-disconnected"
	case BatteryLow:
		return "battery-low"
	case BatteryOkay:
		return "battery-okay"
	default:
		return fmt.Sprintf("power-event(%d)", int(e))
	}
}

// PowerEventSource delivers power events asynchronously. Unregister returns
// core.ErrNotRegistered when no handler is registered, and must not return while
// the handler is still running.
type PowerEventSource interface {
	Register(handler func(PowerEvent)) error
	Unregister() error
}

type batteryBindings struct {
	low      string
	charging string
	level    string
}

func (b batteryBindings) any() bool {
	return b.low != "" || b.charging != "" || b.level != ""
}

type BatteryOption func(*BatteryMonitor)

func WithPollIntervals(charging, idle time.Duration) BatteryOption {
	return func(m *BatteryMonitor) {
		m.chargingInterval = charging
		m.idleInterval = idle
	}
}

// BatteryMonitor reports battery low, charging and level to three server items.
//
// mu guards configuration and is held while the poller is started or stopped.
// Poll cycles and power events only take valMu, so stopping the poller under mu
// cannot deadlock against a running cycle.
type BatteryMonitor struct {
	conn   core.ServerConnection
	source BatterySource
	events PowerEventSource
	logger *slog.Logger

	chargingInterval time.Duration
	idleInterval     time.Duration

	mu       sync.Mutex
	enabled  bool
	bindings atomic.Pointer[batteryBindings]
	poller   atomic.Pointer[Poller]

	valMu         sync.Mutex
	low           bool
	charging      bool
	level         int
	hasLevel      bool
	lowState      string
	chargingState string
	levelState    string
	pushed        map[string]string
}

// NewBatteryMonitor creates a disabled monitor. events may be nil on platforms
// without power notifications; polling still works.
func NewBatteryMonitor(conn core.ServerConnection, source BatterySource, events PowerEventSource,
	logger *slog.Logger, opts ...BatteryOption) *BatteryMonitor {

	m := &BatteryMonitor{
		conn:             conn,
		source:           source,
		events:           events,
		logger:           logger.With("monitor", "battery"),
		chargingInterval: DefaultChargingPollInterval,
		idleInterval:     DefaultIdlePollInterval,
		pushed:           make(map[string]string),
	}
	m.bindings.Store(&batteryBindings{})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *BatteryMonitor) UpdateFromPreferences(prefs core.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()

	enabled := prefs.GetBool(PrefBatteryEnabled, false)
	if enabled != m.enabled {
		m.enabled = enabled
		if enabled {
			m.register()
		} else {
			m.unregister()
		}
	}

	if !enabled {
		m.stopPoller()
	}

	b := batteryBindings{
		low:      prefs.GetString(PrefBatteryLowItem, ""),
		charging: prefs.GetString(PrefBatteryChargingItem, ""),
		level:    prefs.GetString(PrefBatteryLevelItem, ""),
	}
	m.rebind(b)

	if !enabled {
		m.conn.SubscribeItems(m)
		return
	}
	m.conn.SubscribeItems(m, b.low, b.charging, b.level)

	switch p := m.poller.Load(); {
	case !b.any():
		m.stopPoller()
	case p != nil:
		p.PollNow()
	default:
		m.poller.Store(StartPoller("battery", m.poll, m.pollInterval, m.logger))
	}
}

// rebind stores the new bindings and forgets server values of items that changed.
func (m *BatteryMonitor) rebind(b batteryBindings) {
	old := m.bindings.Swap(&b)

	m.valMu.Lock()
	defer m.valMu.Unlock()
	if old.low != b.low {
		m.lowState = ""
	}
	if old.charging != b.charging {
		m.chargingState = ""
	}
	if old.level != b.level {
		m.levelState = ""
	}
	clear(m.pushed)
}

func (m *BatteryMonitor) ItemUpdated(name string, value string) {
	if name == "" {
		return
	}
	b := m.bindings.Load()

	m.valMu.Lock()
	defer m.valMu.Unlock()
	switch name {
	case b.charging:
		m.chargingState = value
	case b.level:
		m.levelState = value
	case b.low:
		m.lowState = value
	}
}

func (m *BatteryMonitor) ReportStatus(sink core.StatusSink) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled {
		sink.Set(BatteryStatusKey, StatusDisabled)
		return
	}

	b := m.bindings.Load()
	lines := []string{StatusEnabled}

	m.valMu.Lock()
	if b.low != "" {
		lines = append(lines, fmt.Sprintf("Battery low: %t (%s: %s)", m.low, b.low, orUnknown(m.lowState)))
	}
	if b.charging != "" {
		lines = append(lines, fmt.Sprintf("Charging: %t (%s: %s)", m.charging, b.charging, orUnknown(m.chargingState)))
	}
	if b.level != "" {
		level := "unknown"
		if m.hasLevel {
			level = fmt.Sprintf("%d%%", m.level)
		}
		lines = append(lines, fmt.Sprintf("Level: %s (%s: %s)", level, b.level, orUnknown(m.levelState)))
	}
	m.valMu.Unlock()

	sink.Set(BatteryStatusKey, strings.Join(lines, "\n"))
}

func (m *BatteryMonitor) PollNow() {
	if p := m.poller.Load(); p != nil {
		p.PollNow()
	}
}

func (m *BatteryMonitor) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unregister()
	m.stopPoller()
	m.enabled = false
	m.conn.SubscribeItems(m)
}

func (m *BatteryMonitor) register() {
	if m.events == nil {
		return
	}
	m.logger.Debug("registering power event receiver")
	if err := m.events.Register(m.onPowerEvent); err != nil {
		m.logger.Warn("failed to register power event receiver", "error", err)
	}
}

func (m *BatteryMonitor) unregister() {
	if m.events == nil {
		return
	}
	m.logger.Debug("unregistering power event receiver")
	if err := m.events.Unregister(); err != nil && !errors.Is(err, core.ErrNotRegistered) {
		m.logger.Warn("failed to unregister power event receiver", "error", err)
	}
}

func (m *BatteryMonitor) stopPoller() {
	if p := m.poller.Swap(nil); p != nil {
		p.Stop()
	}
}

func (m *BatteryMonitor) onPowerEvent(ev PowerEvent) {
	b := m.bindings.Load()
	m.logger.Debug("power event", "event", ev)

	var item, value string
	m.valMu.Lock()
	switch ev {
	case BatteryLow, BatteryOkay:
		m.low = ev == BatteryLow
		item, value = b.low, core.BoolState(m.low)
	case PowerConnected, PowerDisconnected:
		m.charging = ev == PowerConnected
		item, value = b.charging, core.BoolState(m.charging)
	}
	if item != "" {
		m.pushed[item] = value
	}
	m.valMu.Unlock()

	if item != "" {
		m.conn.UpdateState(item, value)
	}

	// charging changes the poll interval
	if ev == PowerConnected || ev == PowerDisconnected {
		m.PollNow()
	}
}

type itemUpdate struct {
	item  string
	value string
}

func (m *BatteryMonitor) poll(ctx context.Context, full bool) {
	b := m.bindings.Load()
	if !full && b.level == "" && b.low == "" {
		return
	}

	snap, err := m.source.Snapshot(ctx)
	if err != nil {
		m.logger.Debug("battery state unavailable", "error", err)
		return
	}
	pct, ok := snap.Percent()
	if !ok {
		m.logger.Debug("ignoring battery reading", "level", snap.Level, "scale", snap.Scale)
		return
	}
	if ctx.Err() != nil {
		return
	}

	m.valMu.Lock()
	m.level = pct
	m.hasLevel = true
	m.low = pct < LowBatteryThreshold
	m.charging = snap.Charging()

	var updates []itemUpdate
	for _, u := range []itemUpdate{
		{b.level, fmt.Sprintf("%d", pct)},
		{b.charging, core.BoolState(m.charging)},
		{b.low, core.BoolState(m.low)},
	} {
		if u.item == "" {
			continue
		}
		if last, seen := m.pushed[u.item]; full || !seen || last != u.value {
			m.pushed[u.item] = u.value
			updates = append(updates, u)
		}
	}
	m.valMu.Unlock()

	for _, u := range updates {
		if ctx.Err() != nil {
			return
		}
		m.conn.UpdateState(u.item, u.value)
	}
}

// pollInterval is short while the charging item reports CLOSED. Without a bound
// charging item the locally observed charging state is used instead.
func (m *BatteryMonitor) pollInterval() time.Duration {
	b := m.bindings.Load()

	var charging bool
	if b.charging != "" {
		charging = m.conn.GetState(b.charging) == core.StateClosed
	} else {
		m.valMu.Lock()
		charging = m.charging
		m.valMu.Unlock()
	}

	if charging {
		return m.chargingInterval
	}
	return m.idleInterval
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

package core

import (
	"slices"
	"sync"
)

// BasicMonitorManager keeps monitors in registration order so that status reports
// list facets in a stable order.
type BasicMonitorManager struct {
	monitorsByName map[string]Monitor
	order          []string
	monitorsMutex  sync.RWMutex
}

func NewBasicMonitorManager() *BasicMonitorManager {
	return &BasicMonitorManager{
		monitorsByName: make(map[string]Monitor),
	}
}

func (m *BasicMonitorManager) AddMonitor(name string, mon Monitor) {
	m.monitorsMutex.Lock()
	defer m.monitorsMutex.Unlock()
	if _, ok := m.monitorsByName[name]; !ok {
		m.order = append(m.order, name)
	}
	m.monitorsByName[name] = mon
}

func (m *BasicMonitorManager) ListMonitors() []string {
	m.monitorsMutex.RLock()
	defer m.monitorsMutex.RUnlock()
	return slices.Clone(m.order)
}

// RemoveMonitor terminates and forgets the named monitor.
func (m *BasicMonitorManager) RemoveMonitor(name string) {
	m.monitorsMutex.Lock()
	mon, ok := m.monitorsByName[name]
	delete(m.monitorsByName, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	m.monitorsMutex.Unlock()

	if ok {
		mon.Terminate()
	}
}

func (m *BasicMonitorManager) UpdateFromPreferences(prefs Preferences) {
	for _, mon := range m.snapshot() {
		mon.UpdateFromPreferences(prefs)
	}
}

func (m *BasicMonitorManager) ReportStatus(sink StatusSink) {
	for _, mon := range m.snapshot() {
		mon.ReportStatus(sink)
	}
}

// PollNow wakes every monitor that polls its hardware.
func (m *BasicMonitorManager) PollNow() {
	for _, mon := range m.snapshot() {
		if p, ok := mon.(PollingMonitor); ok {
			p.PollNow()
		}
	}
}

func (m *BasicMonitorManager) Terminate() {
	for _, mon := range m.snapshot() {
		mon.Terminate()
	}
}

// snapshot copies the monitor list so monitors are never called with the lock held.
func (m *BasicMonitorManager) snapshot() []Monitor {
	m.monitorsMutex.RLock()
	defer m.monitorsMutex.RUnlock()
	monitors := make([]Monitor, 0, len(m.order))
	for _, name := range m.order {
		monitors = append(monitors, m.monitorsByName[name])
	}
	return monitors
}

package core

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMonitor struct {
	name        string
	prefsCalls  atomic.Int32
	polls       atomic.Int32
	terminated  atomic.Int32
	lastEnabled atomic.Bool
}

func newCountingMonitor(name string) *countingMonitor {
	return &countingMonitor{name: name}
}

func (m *countingMonitor) UpdateFromPreferences(prefs Preferences) {
	m.prefsCalls.Add(1)
	m.lastEnabled.Store(prefs.GetBool(m.name+"-enabled", false))
}

func (m *countingMonitor) ItemUpdated(name string, value string) {}

func (m *countingMonitor) ReportStatus(sink StatusSink) {
	sink.Set(m.name, strconv.FormatBool(m.lastEnabled.Load()))
}

func (m *countingMonitor) Terminate() {
	m.terminated.Add(1)
}

type pollingCountingMonitor struct {
	*countingMonitor
}

func (m pollingCountingMonitor) PollNow() {
	m.polls.Add(1)
}

type mapPrefs map[string]any

func (p mapPrefs) GetBool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (p mapPrefs) GetString(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func (p mapPrefs) GetInt(key string, def int) int {
	if v, ok := p[key].(int); ok {
		return v
	}
	return def
}

func TestAddMonitor(t *testing.T) {
	var wg sync.WaitGroup
	manager := NewBasicMonitorManager()
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				name := strconv.Itoa(int(rand.Int64()))
				manager.AddMonitor(name, newCountingMonitor(name))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, manager.ListMonitors(), 30)
}

func TestAddMonitorReplacesSameName(t *testing.T) {
	manager := NewBasicMonitorManager()
	first := newCountingMonitor("battery")
	second := newCountingMonitor("battery")

	manager.AddMonitor("battery", first)
	manager.AddMonitor("battery", second)
	manager.UpdateFromPreferences(mapPrefs{})

	assert.Equal(t, []string{"battery"}, manager.ListMonitors())
	assert.Equal(t, int32(0), first.prefsCalls.Load())
	assert.Equal(t, int32(1), second.prefsCalls.Load())
}

func TestRemoveMonitorTerminates(t *testing.T) {
	manager := NewBasicMonitorManager()
	mon := newCountingMonitor("motion")
	manager.AddMonitor("motion", mon)
	manager.AddMonitor("battery", newCountingMonitor("battery"))

	manager.RemoveMonitor("motion")
	manager.RemoveMonitor("unknown")

	assert.Equal(t, []string{"battery"}, manager.ListMonitors())
	assert.Equal(t, int32(1), mon.terminated.Load())
}

func TestReportStatusKeepsRegistrationOrder(t *testing.T) {
	manager := NewBasicMonitorManager()
	for _, name := range []string{"battery", "motion", "temperature"} {
		manager.AddMonitor(name, newCountingMonitor(name))
	}
	manager.UpdateFromPreferences(mapPrefs{"motion-enabled": true})

	status := NewApplicationStatus()
	manager.ReportStatus(status)

	entries := status.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, StatusEntry{Name: "battery", Text: "false"}, entries[0])
	assert.Equal(t, StatusEntry{Name: "motion", Text: "true"}, entries[1])
	assert.Equal(t, StatusEntry{Name: "temperature", Text: "false"}, entries[2])
}

func TestPollNowOnlyReachesPollingMonitors(t *testing.T) {
	manager := NewBasicMonitorManager()
	polling := pollingCountingMonitor{newCountingMonitor("battery")}
	plain := newCountingMonitor("motion")
	manager.AddMonitor("battery", polling)
	manager.AddMonitor("motion", plain)

	manager.PollNow()
	manager.PollNow()

	assert.Equal(t, int32(2), polling.polls.Load())
	assert.Equal(t, int32(0), plain.polls.Load())
}

func TestTerminateAll(t *testing.T) {
	manager := NewBasicMonitorManager()
	a := newCountingMonitor("a")
	b := newCountingMonitor("b")
	manager.AddMonitor("a", a)
	manager.AddMonitor("b", b)

	manager.Terminate()

	assert.Equal(t, int32(1), a.terminated.Load())
	assert.Equal(t, int32(1), b.terminated.Load())
}

func TestApplicationStatusSetOverwrites(t *testing.T) {
	status := NewApplicationStatus()
	status.Set("battery", "enabled")
	status.Set("battery", "disabled")

	text, ok := status.Get("battery")
	require.True(t, ok)
	assert.Equal(t, "disabled", text)
	assert.Len(t, status.Entries(), 1)

	_, ok = status.Get("motion")
	assert.False(t, ok)
}

func TestBoolState(t *testing.T) {
	assert.Equal(t, "CLOSED", BoolState(true))
	assert.Equal(t, "OPEN", BoolState(false))
}

package core

import "errors"

var (
	// ErrUnavailable is returned by hardware sources that cannot deliver a reading right now.
	ErrUnavailable = errors.New("hardware unavailable")
	// ErrNotRegistered is returned when unregistering a receiver that was never registered.
	ErrNotRegistered = errors.New("receiver not registered")
)

// Two-state encoding used for boolean items on the server.
const (
	StateClosed = "CLOSED"
	StateOpen   = "OPEN"
)

// BoolState encodes a boolean facet value, true being CLOSED.
func BoolState(b bool) string {
	if b {
		return StateClosed
	}
	return StateOpen
}

type Preferences interface {
	GetBool(key string, def bool) bool
	GetString(key string, def string) string
	GetInt(key string, def int) int
}

type StatusSink interface {
	Set(key string, text string)
}

// StateListener receives the server-side value of subscribed items.
type StateListener interface {
	ItemUpdated(name string, value string)
}

// ServerConnection is the transport to the home automation server. Implementations
// must be safe for concurrent use by several monitors.
type ServerConnection interface {
	UpdateState(item string, value string)
	// SubscribeItems replaces the item set the listener is subscribed to. Empty
	// names are ignored.
	SubscribeItems(listener StateListener, items ...string)
	GetState(item string) string
}

// Monitor is one monitored device facet.
type Monitor interface {
	StateListener
	UpdateFromPreferences(prefs Preferences)
	ReportStatus(sink StatusSink)
	Terminate()
}

// PollingMonitor is a monitor that can be asked to refresh all of its values at once.
type PollingMonitor interface {
	Monitor
	PollNow()
}

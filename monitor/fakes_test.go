package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ilievs/panelagent/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type update struct {
	item  string
	value string
}

type fakeConnection struct {
	mu      sync.Mutex
	updates []update
	states  map[string]string
	subs    map[core.StateListener][]string
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		states: make(map[string]string),
		subs:   make(map[core.StateListener][]string),
	}
}

func (c *fakeConnection) UpdateState(item string, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update{item, value})
}

func (c *fakeConnection) SubscribeItems(listener core.StateListener, items ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, item := range items {
		if item != "" {
			names = append(names, item)
		}
	}
	if len(names) == 0 {
		delete(c.subs, listener)
		return
	}
	c.subs[listener] = names
}

func (c *fakeConnection) GetState(item string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[item]
}

func (c *fakeConnection) setState(item, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[item] = value
}

func (c *fakeConnection) all() []update {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]update, len(c.updates))
	copy(out, c.updates)
	return out
}

// last returns the most recent value pushed to item.
func (c *fakeConnection) last(item string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.updates) - 1; i >= 0; i-- {
		if c.updates[i].item == item {
			return c.updates[i].value, true
		}
	}
	return "", false
}

func (c *fakeConnection) subscribed(listener core.StateListener) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[listener]
}

type fakeBatterySource struct {
	mu    sync.Mutex
	snap  BatterySnapshot
	err   error
	reads int
	// block, when set, is waited on inside Snapshot; entered is signalled first.
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeBatterySource) Snapshot(ctx context.Context) (BatterySnapshot, error) {
	s.mu.Lock()
	s.reads++
	block, entered := s.block, s.entered
	snap, err := s.snap, s.err
	s.mu.Unlock()

	if block != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-block
	}
	return snap, err
}

func (s *fakeBatterySource) set(snap BatterySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func (s *fakeBatterySource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakePowerEvents struct {
	mu              sync.Mutex
	handler         func(PowerEvent)
	registerCalls   int
	unregisterCalls int
}

func (e *fakePowerEvents) Register(handler func(PowerEvent)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerCalls++
	e.handler = handler
	return nil
}

func (e *fakePowerEvents) Unregister() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handler == nil {
		return core.ErrNotRegistered
	}
	e.unregisterCalls++
	e.handler = nil
	return nil
}

func (e *fakePowerEvents) registered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler != nil
}

func (e *fakePowerEvents) fire(ev PowerEvent) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type prefs map[string]any

func (p prefs) GetBool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (p prefs) GetString(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func (p prefs) GetInt(key string, def int) int {
	if v, ok := p[key].(int); ok {
		return v
	}
	return def
}

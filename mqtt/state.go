package mqtt

import (
	"sync"

	"github.com/ilievs/panelagent/core"
)

// itemStates caches the last server state of every item seen and fans updates
// out to the listeners subscribed to that item.
type itemStates struct {
	mu        sync.RWMutex
	states    map[string]string
	listeners map[core.StateListener]map[string]struct{}
}

func newItemStates() *itemStates {
	return &itemStates{
		states:    make(map[string]string),
		listeners: make(map[core.StateListener]map[string]struct{}),
	}
}

func (s *itemStates) subscribe(listener core.StateListener, items ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item != "" {
			set[item] = struct{}{}
		}
	}
	if len(set) == 0 {
		delete(s.listeners, listener)
		return
	}
	s.listeners[listener] = set
}

func (s *itemStates) get(item string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[item]
}

func (s *itemStates) update(item string, value string) {
	s.mu.Lock()
	s.states[item] = value
	var targets []core.StateListener
	for listener, items := range s.listeners {
		if _, ok := items[item]; ok {
			targets = append(targets, listener)
		}
	}
	s.mu.Unlock()

	for _, listener := range targets {
		listener.ItemUpdated(item, value)
	}
}

package command

import (
	"sync"

	"github.com/google/uuid"
)

// Poster runs functions on the display loop.
type Poster interface {
	Post(fn func()) bool
}

type Listener interface {
	LogChanged()
}

// Log is an append-only list of commands. Listeners are notified on the display
// loop after every change.
type Log struct {
	poster     Poster
	maxEntries int

	mu        sync.Mutex
	commands  []*Command
	listeners map[int]Listener
	nextID    int
}

// NewLog creates a log keeping at most maxEntries commands, oldest dropped
// first. Zero means unbounded.
func NewLog(poster Poster, maxEntries int) *Log {
	return &Log{
		poster:     poster,
		maxEntries: maxEntries,
		listeners:  make(map[int]Listener),
	}
}

func (l *Log) Append(cmd *Command) {
	l.mu.Lock()
	l.commands = append(l.commands, cmd)
	if l.maxEntries > 0 && len(l.commands) > l.maxEntries {
		l.commands = l.commands[len(l.commands)-l.maxEntries:]
	}
	l.mu.Unlock()

	l.notify()
}

// Clear discards all commands. An already empty log does not notify.
func (l *Log) Clear() {
	l.mu.Lock()
	n := len(l.commands)
	l.commands = nil
	l.mu.Unlock()

	if n > 0 {
		l.notify()
	}
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

func (l *Log) Commands() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]Entry, 0, len(l.commands))
	for _, c := range l.commands {
		entries = append(entries, Entry{
			ID:          c.id.String(),
			Command:     c.text,
			Time:        c.time,
			Status:      c.status.String(),
			Details:     c.details,
			ShowDetails: c.showDetails,
		})
	}
	return entries
}

// ToggleDetails flips the details visibility of a command. It reports whether the
// command was found.
func (l *Log) ToggleDetails(id uuid.UUID) bool {
	l.mu.Lock()
	found := false
	for _, c := range l.commands {
		if c.id == id {
			c.showDetails = !c.showDetails
			found = true
			break
		}
	}
	l.mu.Unlock()

	if found {
		l.notify()
	}
	return found
}

// AddListener registers a listener and returns the function that removes it.
func (l *Log) AddListener(listener Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = listener
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *Log) notify() {
	l.mu.Lock()
	listeners := make([]Listener, 0, len(l.listeners))
	for _, listener := range l.listeners {
		listeners = append(listeners, listener)
	}
	l.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	l.poster.Post(func() {
		for _, listener := range listeners {
			listener.LogChanged()
		}
	})
}

// Package command executes commands received from the server and keeps a log of
// them for display.
package command

import (
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	StatusPending Status = iota
	StatusExecuted
	StatusFailed
	StatusUnhandled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuted:
		return "executed"
	case StatusFailed:
		return "failed"
	case StatusUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// Color is the display color of the status as an ANSI 256 color code.
func (s Status) Color() string {
	switch s {
	case StatusExecuted:
		return "10"
	case StatusFailed:
		return "9"
	case StatusUnhandled:
		return "11"
	default:
		return "7"
	}
}

// Command is one executed command. Everything but the details visibility is
// fixed at creation.
type Command struct {
	id      uuid.UUID
	text    string
	time    time.Time
	status  Status
	details string

	showDetails bool
}

func New(text string, issued time.Time, status Status, details string) *Command {
	return &Command{
		id:      uuid.New(),
		text:    text,
		time:    issued,
		status:  status,
		details: details,
	}
}

func (c *Command) ID() uuid.UUID   { return c.id }
func (c *Command) Text() string    { return c.text }
func (c *Command) Time() time.Time { return c.time }
func (c *Command) Status() Status  { return c.status }
func (c *Command) Details() string { return c.details }

// Entry is a read-only copy of a logged command.
type Entry struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	Time        time.Time `json:"time"`
	Status      string    `json:"status"`
	Details     string    `json:"details,omitempty"`
	ShowDetails bool      `json:"showDetails"`
}

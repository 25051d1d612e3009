package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ilievs/panelagent/core"
)

const (
	PrefCommandEnabled = "command-enabled"
	PrefCommandItem    = "command-item"

	StatusKey = "Command Queue"

	queueSize = 32
)

// Handler executes a command. handled is false when the command is not meant for
// this handler.
type Handler interface {
	Handle(ctx context.Context, cmd string) (handled bool, err error)
}

// Queue executes the values received on the command item one at a time and logs
// the outcome.
type Queue struct {
	conn     core.ServerConnection
	log      *Log
	logger   *slog.Logger
	handlers []Handler
	now      func() time.Time

	mu      sync.Mutex
	enabled bool
	item    atomic.Pointer[string]
	cancel  context.CancelFunc
	done    chan struct{}

	// pending belongs to the current worker run; nil while stopped.
	pending      atomic.Pointer[chan string]
	lastCommand  atomic.Pointer[string]
	lastReceived atomic.Pointer[string]
}

func NewQueue(conn core.ServerConnection, log *Log, logger *slog.Logger, handlers ...Handler) *Queue {
	q := &Queue{
		conn:     conn,
		log:      log,
		logger:   logger.With("monitor", "command-queue"),
		handlers: handlers,
		now:      time.Now,
	}
	empty := ""
	q.item.Store(&empty)
	q.lastCommand.Store(&empty)
	q.lastReceived.Store(&empty)
	return q
}

func (q *Queue) UpdateFromPreferences(prefs core.Preferences) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.enabled = prefs.GetBool(PrefCommandEnabled, false)
	item := prefs.GetString(PrefCommandItem, "")
	if old := q.item.Swap(&item); *old != item {
		empty := ""
		q.lastReceived.Store(&empty)
	}

	if !q.enabled || item == "" {
		q.stop()
		q.conn.SubscribeItems(q)
		return
	}

	q.start()
	q.conn.SubscribeItems(q, item)
}

func (q *Queue) start() {
	if q.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	pending := make(chan string, queueSize)
	q.pending.Store(&pending)
	go q.work(ctx, pending, q.done)
}

func (q *Queue) stop() {
	if q.cancel == nil {
		return
	}
	// commands still queued are dropped with their channel
	q.pending.Store(nil)
	q.cancel()
	<-q.done
	q.cancel, q.done = nil, nil
}

func (q *Queue) ItemUpdated(name string, value string) {
	if name == "" || name != *q.item.Load() {
		return
	}
	q.lastReceived.Store(&value)
	value = strings.TrimSpace(value)
	pending := q.pending.Load()
	if value == "" || pending == nil {
		return
	}

	select {
	case *pending <- value:
	default:
		q.logger.Warn("command queue full, dropping command", "command", value)
	}
}

func (q *Queue) work(ctx context.Context, pending <-chan string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-pending:
			if ctx.Err() != nil {
				return
			}
			q.execute(ctx, cmd)
		}
	}
}

func (q *Queue) execute(ctx context.Context, text string) {
	issued := q.now()
	status, details := StatusUnhandled, ""

	for _, h := range q.handlers {
		handled, err := h.Handle(ctx, text)
		if err != nil {
			status, details = StatusFailed, err.Error()
			break
		}
		if handled {
			status = StatusExecuted
			break
		}
	}

	last := text + " " + status.String()
	q.lastCommand.Store(&last)
	q.logger.Info("command processed", "command", text, "status", status)
	q.log.Append(New(text, issued, status, details))
}

func (q *Queue) ReportStatus(sink core.StatusSink) {
	q.mu.Lock()
	enabled := q.enabled
	q.mu.Unlock()

	if !enabled {
		sink.Set(StatusKey, "disabled")
		return
	}

	item := *q.item.Load()
	if item == "" {
		sink.Set(StatusKey, "enabled")
		return
	}
	sink.Set(StatusKey, fmt.Sprintf("enabled\nLast command: %s (%s: %s)",
		orUnknown(*q.lastCommand.Load()), item, orUnknown(*q.lastReceived.Load())))
}

func (q *Queue) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stop()
	q.enabled = false
	q.conn.SubscribeItems(q)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

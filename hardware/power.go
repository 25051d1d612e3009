package hardware

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ilievs/panelagent/core"
	"github.com/ilievs/panelagent/monitor"
)

const DefaultPowerWatchInterval = 10 * time.Second

var ErrAlreadyRegistered = errors.New("power event handler already registered")

// PowerWatcher turns periodic battery snapshots into power events. sysfs has no
// change notification, so transitions are detected by comparing readings.
type PowerWatcher struct {
	source   monitor.BatterySource
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPowerWatcher(source monitor.BatterySource, interval time.Duration, logger *slog.Logger) *PowerWatcher {
	if interval <= 0 {
		interval = DefaultPowerWatchInterval
	}
	return &PowerWatcher{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "power-watcher"),
	}
}

func (w *PowerWatcher) Register(handler func(monitor.PowerEvent)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrAlreadyRegistered
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.watch(ctx, handler, w.done)
	return nil
}

func (w *PowerWatcher) Unregister() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return core.ErrNotRegistered
	}
	cancel()
	<-done
	return nil
}

type powerState struct {
	charging bool
	low      bool
}

func (w *PowerWatcher) watch(ctx context.Context, handler func(monitor.PowerEvent), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last *powerState
	for {
		if state, ok := w.read(ctx); ok {
			if last != nil && ctx.Err() == nil {
				for _, ev := range transitions(*last, state) {
					handler(ev)
				}
			}
			last = &state
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *PowerWatcher) read(ctx context.Context) (powerState, bool) {
	snap, err := w.source.Snapshot(ctx)
	if err != nil {
		w.logger.Debug("battery snapshot failed", "error", err)
		return powerState{}, false
	}
	pct, ok := snap.Percent()
	if !ok {
		return powerState{}, false
	}
	return powerState{
		charging: snap.Charging(),
		low:      pct < monitor.LowBatteryThreshold,
	}, true
}

func transitions(prev, cur powerState) []monitor.PowerEvent {
	var events []monitor.PowerEvent
	if prev.charging != cur.charging {
		if cur.charging {
			events = append(events, monitor.PowerConnected)
		} else {
			events = append(events, monitor.PowerDisconnected)
		}
	}
	if prev.low != cur.low {
		if cur.low {
			events = append(events, monitor.BatteryLow)
		} else {
			events = append(events, monitor.BatteryOkay)
		}
	}
	return events
}

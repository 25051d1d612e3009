package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type PollerState int32

const (
	PollerRunning PollerState = iota
	PollerStopping
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerRunning:
		return "running"
	case PollerStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// PollFunc performs one poll cycle. full is set on the first cycle and after
// every PollNow. Implementations must check ctx before pushing values.
type PollFunc func(ctx context.Context, full bool)

// Poller runs a PollFunc on its own goroutine, sleeping for the duration
// returned by interval between cycles.
type Poller struct {
	name     string
	poll     PollFunc
	interval func() time.Duration
	logger   *slog.Logger

	wake     chan struct{}
	pollAll  atomic.Bool
	state    atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func StartPoller(name string, poll PollFunc, interval func() time.Duration, logger *slog.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		name:     name,
		poll:     poll,
		interval: interval,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.pollAll.Store(true)
	p.state.Store(int32(PollerRunning))

	go p.run(ctx)
	return p
}

func (p *Poller) run(ctx context.Context) {
	defer func() {
		p.state.Store(int32(PollerStopped))
		close(p.done)
	}()

	p.logger.Debug("poller started", "poller", p.name)
	for {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, p.pollAll.Swap(false))

		timer := time.NewTimer(p.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// PollNow wakes the poller and forces a full refresh on the next cycle.
func (p *Poller) PollNow() {
	p.pollAll.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop cancels the poller and waits for its goroutine to exit. A cycle already in
// progress is allowed to finish; no new cycle starts.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.state.CompareAndSwap(int32(PollerRunning), int32(PollerStopping))
		p.cancel()
	})
	<-p.done
	p.logger.Debug("poller stopped", "poller", p.name)
}

func (p *Poller) State() PollerState {
	return PollerState(p.state.Load())
}

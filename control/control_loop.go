package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/swerve/logging"
)

// MinPeriod is the shortest supported loop period (200Hz).
const MinPeriod = 5 * time.Millisecond

// StepFunc is one cycle of work. It must not block past the loop period.
type StepFunc func(ctx context.Context, now time.Time)

// Loop calls a StepFunc at a fixed period on a single goroutine, so steps never overlap.
type Loop struct {
	clk    clock.Clock
	period time.Duration
	step   StepFunc
	logger logging.Logger

	mu                      sync.Mutex
	running                 bool
	ticker                  *clock.Ticker
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup

	ticks    atomic.Int64
	overruns atomic.Int64
}

// NewLoop constructs a loop that is not yet running. A nil clock uses the wall clock.
func NewLoop(logger logging.Logger, clk clock.Clock, period time.Duration, step StepFunc) (*Loop, error) {
	if period < MinPeriod {
		return nil, errors.Errorf("loop period %v is shorter than %v", period, MinPeriod)
	}
	if step == nil {
		return nil, errors.New("loop needs a step function")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{clk: clk, period: period, step: step, logger: logger}, nil
}

// Period returns the loop period.
func (l *Loop) Period() time.Duration {
	return l.period
}

// Start starts the loop. The ticker is armed before Start returns.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("loop already running")
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.ticker = l.clk.Ticker(l.period)
	ticker := l.ticker
	l.logger.Infof("running loop every %v", l.period)

	l.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		for {
			select {
			case <-cancelCtx.Done():
				return
			case now := <-ticker.C:
				l.runStep(cancelCtx, now)
			}
		}
	}, l.activeBackgroundWorkers.Done)
	l.running = true
	return nil
}

func (l *Loop) runStep(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	start := l.clk.Now()
	l.step(ctx, now)
	l.ticks.Inc()
	if took := l.clk.Since(start); took > l.period {
		l.overruns.Inc()
		l.logger.Debugw("loop step overran its period", "took", took, "period", l.period)
	}
}

// Stop stops the loop and waits for an in-flight step to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.logger.Debug("closing loop")
	l.ticker.Stop()
	l.cancel()
	l.activeBackgroundWorkers.Wait()
	l.running = false
}

// Ticks returns how many steps have completed.
func (l *Loop) Ticks() int64 {
	return l.ticks.Load()
}

// Overruns returns how many steps took longer than the period.
func (l *Loop) Overruns() int64 {
	return l.overruns.Load()
}

package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// HoldState is the state of a HoldAction.
type HoldState int

// The HoldAction states. Both stopped states are terminal.
const (
	HoldRunning HoldState = iota
	HoldStoppedNormal
	HoldStoppedForceStop
)

func (s HoldState) String() string {
	switch s {
	case HoldRunning:
		return "running"
	case HoldStoppedNormal:
		return "stopped"
	case HoldStoppedForceStop:
		return "force_stopped"
	}
	return fmt.Sprintf("hold_state(%d)", int(s))
}

// HoldAction drives an actuator at a fixed output until it either times out or draws more than a
// current limit, which is how a mechanism finds a hard stop. Cancel may be called from any goroutine
// and takes effect on the next Poll.
type HoldAction struct {
	clk          clock.Clock
	output       float64
	timeout      time.Duration
	currentLimit float64

	mu      sync.Mutex
	started time.Time
	state   HoldState

	cancel atomic.Bool
}

// NewHoldAction returns a running action that applies output until timeout elapses or the measured
// current exceeds currentLimit. A zero timeout never times out.
func NewHoldAction(clk clock.Clock, output float64, timeout time.Duration, currentLimit float64) (*HoldAction, error) {
	if clk == nil {
		clk = clock.New()
	}
	if timeout < 0 {
		return nil, errors.Errorf("timeout must not be negative, got %v", timeout)
	}
	if !(currentLimit > 0) {
		return nil, errors.Errorf("current limit must be positive, got %v", currentLimit)
	}
	return &HoldAction{
		clk:          clk,
		output:       output,
		timeout:      timeout,
		currentLimit: currentLimit,
		started:      clk.Now(),
	}, nil
}

// Poll advances the state machine with the latest current reading and returns the state and the
// output to apply. Once stopped, the output is zero.
func (h *HoldAction) Poll(current float64) (HoldState, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != HoldRunning {
		return h.state, 0
	}
	switch {
	case h.cancel.Load():
		h.state = HoldStoppedForceStop
	case current > h.currentLimit:
		h.state = HoldStoppedNormal
	case h.timeout > 0 && h.clk.Since(h.started) >= h.timeout:
		h.state = HoldStoppedNormal
	default:
		return HoldRunning, h.output
	}
	return h.state, 0
}

// Cancel requests a force stop.
func (h *HoldAction) Cancel() {
	h.cancel.Store(true)
}

// State returns the current state without advancing it.
func (h *HoldAction) State() HoldState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

package control

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/swerve/logging"
)

func waitStep(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case now := <-ch:
		return now
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for loop step")
	}
	return time.Time{}
}

func TestNewLoopValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewLoop(logger, nil, time.Millisecond, func(context.Context, time.Time) {})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "shorter than")

	_, err = NewLoop(logger, nil, 20*time.Millisecond, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoopTicks(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mock := clock.NewMock()
	steps := make(chan time.Time, 1)
	loop, err := NewLoop(logger, mock, 20*time.Millisecond, func(_ context.Context, now time.Time) {
		steps <- now
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loop.Period(), test.ShouldEqual, 20*time.Millisecond)
	test.That(t, loop.Start(context.Background()), test.ShouldBeNil)
	test.That(t, loop.Start(context.Background()), test.ShouldNotBeNil)

	start := mock.Now()
	for i := 1; i <= 5; i++ {
		mock.Add(20 * time.Millisecond)
		now := waitStep(t, steps)
		test.That(t, now.Sub(start), test.ShouldEqual, time.Duration(i)*20*time.Millisecond)
	}
	loop.Stop()
	test.That(t, loop.Ticks(), test.ShouldEqual, 5)
	test.That(t, loop.Overruns(), test.ShouldEqual, 0)

	// stopped loops ignore the clock
	mock.Add(time.Second)
	test.That(t, loop.Ticks(), test.ShouldEqual, 5)
	loop.Stop()
}

func TestLoopCountsOverruns(t *testing.T) {
	logger := logging.NewTestLogger(t)
	steps := make(chan time.Time, 1)
	first := true
	loop, err := NewLoop(logger, clock.New(), MinPeriod, func(_ context.Context, now time.Time) {
		if first {
			first = false
			time.Sleep(3 * MinPeriod)
		}
		select {
		case steps <- now:
		default:
		}
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loop.Start(context.Background()), test.ShouldBeNil)
	defer loop.Stop()

	waitStep(t, steps)
	waitStep(t, steps)
	test.That(t, loop.Overruns(), test.ShouldBeGreaterThanOrEqualTo, 1)
	test.That(t, loop.Overruns(), test.ShouldBeLessThan, loop.Ticks())
}

func TestLoopStopsWithContext(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	loop, err := NewLoop(logger, mock, 20*time.Millisecond, func(context.Context, time.Time) {})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loop.Start(ctx), test.ShouldBeNil)
	cancel()
	loop.Stop()
	test.That(t, loop.Ticks(), test.ShouldEqual, 0)
}

package estimator

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/swerve/spatialmath"
)

func TestHistorySample(t *testing.T) {
	t0 := time.Unix(100, 0)
	h := newHistory(time.Second)

	_, ok := h.sample(t0)
	test.That(t, ok, test.ShouldBeFalse)

	h.push(t0, spatialmath.NewPose2D(0, 0, 0))
	h.push(t0.Add(100*time.Millisecond), spatialmath.NewPose2D(1, 2, math.Pi/2))

	p, ok := h.sample(t0.Add(50 * time.Millisecond))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.AlmostEqual(spatialmath.NewPose2D(0.5, 1, math.Pi/4), 1e-9), test.ShouldBeTrue)

	p, ok = h.sample(t0.Add(time.Second))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.AlmostEqual(spatialmath.NewPose2D(1, 2, math.Pi/2), 1e-9), test.ShouldBeTrue)

	_, ok = h.sample(t0.Add(-time.Millisecond))
	test.That(t, ok, test.ShouldBeFalse)
}

func TestHistoryWindowAndOrder(t *testing.T) {
	t0 := time.Unix(100, 0)
	h := newHistory(50 * time.Millisecond)
	for i := 0; i < 10; i++ {
		h.push(t0.Add(time.Duration(i)*20*time.Millisecond), spatialmath.NewPose2D(float64(i), 0, 0))
	}
	test.That(t, h.len(), test.ShouldEqual, 3)
	_, ok := h.sample(t0)
	test.That(t, ok, test.ShouldBeFalse)

	// a snapshot that does not move time forward replaces everything from its time on
	h.push(t0.Add(160*time.Millisecond), spatialmath.NewPose2D(-1, 0, 0))
	test.That(t, h.len(), test.ShouldEqual, 2)
	p, ok := h.sample(t0.Add(time.Second))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X(), test.ShouldAlmostEqual, -1)

	h.clear()
	test.That(t, h.len(), test.ShouldEqual, 0)
}

func TestHistoryRebase(t *testing.T) {
	t0 := time.Unix(100, 0)
	h := newHistory(time.Second)
	for i := 0; i < 3; i++ {
		h.push(t0.Add(time.Duration(i)*20*time.Millisecond), spatialmath.NewPose2D(float64(i), 0, 0))
	}

	t1 := t0.Add(20 * time.Millisecond)
	h.rebase(t1, spatialmath.NewPose2D(1, 0, 0), spatialmath.NewPose2D(1, 1, math.Pi/2))

	expected := []spatialmath.Pose2D{
		spatialmath.NewPose2D(0, 0, 0),
		spatialmath.NewPose2D(1, 1, math.Pi/2),
		spatialmath.NewPose2D(1, 2, math.Pi/2),
	}
	for i, want := range expected {
		got := h.entries[i].pose
		test.That(t, got.AlmostEqual(want, 1e-9), test.ShouldBeTrue)
	}

	// past the newest snapshot only the newest one moves
	h.rebase(t0.Add(time.Second), spatialmath.NewPose2D(1, 2, math.Pi/2), spatialmath.NewPose2D(0, 2, math.Pi/2))
	test.That(t, h.entries[2].pose.AlmostEqual(spatialmath.NewPose2D(0, 2, math.Pi/2), 1e-9), test.ShouldBeTrue)
	test.That(t, h.entries[1].pose.AlmostEqual(expected[1], 1e-9), test.ShouldBeTrue)
}

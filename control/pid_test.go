package control

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestPIDConfig(t *testing.T) {
	_, err := NewPID(PIDConfig{})
	test.That(t, err.Error(), test.ShouldContainSubstring, "at least one")
	_, err = NewPID(PIDConfig{Kp: 1, OutputLimit: -1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPIDProportional(t *testing.T) {
	pid, err := NewPID(PIDConfig{Kp: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pid.Next(3, 1, 10*time.Millisecond), test.ShouldAlmostEqual, 4)
	test.That(t, pid.Next(1, 3, 10*time.Millisecond), test.ShouldAlmostEqual, -4)
	test.That(t, pid.Next(math.NaN(), 3, 10*time.Millisecond), test.ShouldEqual, 0)
}

func TestPIDIntegralAndLimits(t *testing.T) {
	pid, err := NewPID(PIDConfig{Ki: 10, IntegralLimit: 0.5, OutputLimit: 0.4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pid.Next(1, 0, 10*time.Millisecond), test.ShouldAlmostEqual, 0.1)
	test.That(t, pid.Next(1, 0, 10*time.Millisecond), test.ShouldAlmostEqual, 0.2)
	for i := 0; i < 100; i++ {
		pid.Next(1, 0, 10*time.Millisecond)
	}
	test.That(t, pid.Next(1, 0, 10*time.Millisecond), test.ShouldAlmostEqual, 0.4)
	pid.Reset()
	test.That(t, pid.Next(1, 0, 10*time.Millisecond), test.ShouldAlmostEqual, 0.1)
}

func TestPIDDerivative(t *testing.T) {
	pid, err := NewPID(PIDConfig{Kd: 0.1})
	test.That(t, err, test.ShouldBeNil)
	// no derivative kick on the first sample
	test.That(t, pid.Next(1, 0, 10*time.Millisecond), test.ShouldEqual, 0)
	test.That(t, pid.Next(1, 0.5, 10*time.Millisecond), test.ShouldAlmostEqual, -5)
}

func TestPIDContinuous(t *testing.T) {
	pid, err := NewPID(PIDConfig{Kp: 1, Continuous: true})
	test.That(t, err, test.ShouldBeNil)
	// from just below pi to just above -pi is a short positive step
	test.That(t, pid.Next(-math.Pi+0.1, math.Pi-0.1, 10*time.Millisecond), test.ShouldAlmostEqual, 0.2)
}

package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestNormalizeAngle(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi stays pi", math.Pi, math.Pi},
		{"minus pi maps to pi", -math.Pi, math.Pi},
		{"three pi", 3 * math.Pi, math.Pi},
		{"just past pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"many turns", 10*math.Pi + 0.5, 0.5},
		{"negative", -1.5 * math.Pi, 0.5 * math.Pi},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, NormalizeAngle(tc.in), test.ShouldAlmostEqual, tc.want, 1e-12)
		})
	}
	test.That(t, math.IsNaN(NormalizeAngle(math.NaN())), test.ShouldBeTrue)
}

func TestPoseConstructionNormalizes(t *testing.T) {
	p := NewPose2D(1, 2, 3*math.Pi/2)
	test.That(t, p.Theta(), test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, p.HeadingDeg(), test.ShouldAlmostEqual, -90)
	test.That(t, p.WithTheta(2*math.Pi).Theta(), test.ShouldAlmostEqual, 0)
	test.That(t, p.String(), test.ShouldEqual, "(1.000, 2.000, -90.00°)")
}

func TestCompose(t *testing.T) {
	base := NewPose2D(1, 1, math.Pi/2)
	step := NewPose2D(1, 0, math.Pi/2)
	got := base.Compose(step)
	test.That(t, got.X(), test.ShouldAlmostEqual, 1)
	test.That(t, got.Y(), test.ShouldAlmostEqual, 2)
	test.That(t, got.Theta(), test.ShouldAlmostEqual, math.Pi)

	// composing past pi wraps
	got = got.Compose(NewPose2D(0, 0, math.Pi/2))
	test.That(t, got.Theta(), test.ShouldAlmostEqual, -math.Pi/2)
}

func TestInverseAndRelative(t *testing.T) {
	p := NewPose2D(3, -2, 0.7)
	identity := p.Compose(p.Inverse())
	test.That(t, identity.AlmostEqual(Pose2D{}, 1e-12), test.ShouldBeTrue)

	base := NewPose2D(1, 2, -0.4)
	rel := p.RelativeTo(base)
	test.That(t, base.Compose(rel).AlmostEqual(p, 1e-12), test.ShouldBeTrue)
}

func TestExp(t *testing.T) {
	t.Run("straight", func(t *testing.T) {
		p := NewPose2D(0, 0, math.Pi/2).Exp(Twist2D{DX: 1})
		test.That(t, p.AlmostEqual(NewPose2D(0, 1, math.Pi/2), 1e-12), test.ShouldBeTrue)
	})
	t.Run("quarter circle", func(t *testing.T) {
		// arc of radius 1, length pi/2
		p := Pose2D{}.Exp(Twist2D{DX: math.Pi / 2, DTheta: math.Pi / 2})
		test.That(t, p.AlmostEqual(NewPose2D(1, 1, math.Pi/2), 1e-9), test.ShouldBeTrue)
	})
	t.Run("spin in place", func(t *testing.T) {
		p := NewPose2D(2, 3, 0).Exp(Twist2D{DTheta: 1})
		test.That(t, p.AlmostEqual(NewPose2D(2, 3, 1), 1e-12), test.ShouldBeTrue)
	})
	t.Run("tiny rotation uses series", func(t *testing.T) {
		p := Pose2D{}.Exp(Twist2D{DX: 1, DTheta: 1e-12})
		test.That(t, p.X(), test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, p.Y(), test.ShouldAlmostEqual, 0, 1e-9)
	})
}

func TestInterpolate(t *testing.T) {
	a := NewPose2D(0, 0, math.Pi-0.1)
	b := NewPose2D(2, 4, -math.Pi+0.1)
	mid := Interpolate(a, b, 0.5)
	test.That(t, mid.X(), test.ShouldAlmostEqual, 1)
	test.That(t, mid.Y(), test.ShouldAlmostEqual, 2)
	// shortest arc crosses pi rather than sweeping through zero
	test.That(t, math.Abs(mid.Theta()), test.ShouldAlmostEqual, math.Pi, 1e-12)

	test.That(t, Interpolate(a, b, -1).AlmostEqual(a, 1e-12), test.ShouldBeTrue)
	test.That(t, Interpolate(a, b, 2).AlmostEqual(b, 1e-12), test.ShouldBeTrue)
}

func TestRotate(t *testing.T) {
	v := Rotate(r2.Point{X: 1}, math.Pi/2)
	test.That(t, v.X, test.ShouldAlmostEqual, 0)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1)
}

func TestFieldRelative(t *testing.T) {
	// robot facing +y on the field; a field-forward (+x) command is a robot-right (-y) command
	v := FieldRelative(ChassisVelocity{VX: 1, Omega: 0.5}, math.Pi/2)
	test.That(t, v.VX, test.ShouldAlmostEqual, 0)
	test.That(t, v.VY, test.ShouldAlmostEqual, -1)
	test.That(t, v.Omega, test.ShouldEqual, 0.5)
}

func TestChassisVelocityHelpers(t *testing.T) {
	v := ChassisVelocity{VX: 1, VY: -2, Omega: 0.5}
	test.That(t, v.IsZero(), test.ShouldBeFalse)
	test.That(t, ChassisVelocity{}.IsZero(), test.ShouldBeTrue)
	test.That(t, v.IsFinite(), test.ShouldBeTrue)
	test.That(t, ChassisVelocity{VX: math.Inf(1)}.IsFinite(), test.ShouldBeFalse)
	test.That(t, v.Scale(2), test.ShouldResemble, ChassisVelocity{VX: 2, VY: -4, Omega: 1})
	test.That(t, v.Twist(0.02), test.ShouldResemble, Twist2D{DX: 0.02, DY: -0.04, DTheta: 0.01})
}

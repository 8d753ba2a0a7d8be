package swerve

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.viam.com/test"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// 21.5in square wheelbase.
const testWheelbase = 0.5461

func testKinematics(t *testing.T) *Kinematics {
	t.Helper()
	kin, err := NewKinematics(RectangularLayout(testWheelbase, testWheelbase, 0.0508, 3))
	test.That(t, err, test.ShouldBeNil)
	return kin
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestVelocityToModuleState(t *testing.T) {
	g := ModuleGeometry{Offset: r2.Point{X: 1, Y: 1}, MaxSpeed: 3}

	t.Run("translation", func(t *testing.T) {
		s := VelocityToModuleState(spatialmath.ChassisVelocity{VX: 1, VY: 1}, g)
		test.That(t, s.Speed, test.ShouldAlmostEqual, math.Sqrt2)
		test.That(t, s.Angle, test.ShouldAlmostEqual, math.Pi/4)
	})
	t.Run("rotation is perpendicular to offset", func(t *testing.T) {
		s := VelocityToModuleState(spatialmath.ChassisVelocity{Omega: 1}, g)
		test.That(t, s.Speed, test.ShouldAlmostEqual, math.Sqrt2)
		test.That(t, s.Angle, test.ShouldAlmostEqual, 3*math.Pi/4)
	})
	t.Run("zero", func(t *testing.T) {
		test.That(t, VelocityToModuleState(spatialmath.ChassisVelocity{}, g), test.ShouldResemble, ModuleState{})
	})
}

func TestModuleStatesHoldAngleAtZero(t *testing.T) {
	kin := testKinematics(t)
	current := [NumModules]float64{0.3, -1.2, 2.5, 4 * math.Pi}
	states := kin.ModuleStates(spatialmath.ChassisVelocity{}, current)
	for i, s := range states {
		test.That(t, s.Speed, test.ShouldEqual, 0)
		test.That(t, s.Angle, test.ShouldAlmostEqual, spatialmath.NormalizeAngle(current[i]))
	}
}

func TestChassisVelocityRoundTrip(t *testing.T) {
	kin := testKinematics(t)
	for _, v := range []spatialmath.ChassisVelocity{
		{VX: 1},
		{VY: -2},
		{Omega: 3},
		{VX: 1.2, VY: -0.4, Omega: 2.1},
		{VX: -2.5, VY: 1.5, Omega: -0.7},
	} {
		t.Run(v.String(), func(t *testing.T) {
			states := kin.ModuleStates(v, [NumModules]float64{})
			got := kin.ChassisVelocity(states)
			test.That(t, cmp.Diff(v, got, approx), test.ShouldBeEmpty)
		})
	}
}

func TestChassisVelocityLeastSquares(t *testing.T) {
	kin := testKinematics(t)
	// one wheel disagrees; the solution averages rather than following any single module
	states := [NumModules]ModuleState{{Speed: 1}, {Speed: 1}, {Speed: 1}, {Speed: 2}}
	got := kin.ChassisVelocity(states)
	test.That(t, got.VX, test.ShouldAlmostEqual, 1.25)
	test.That(t, got.VY, test.ShouldAlmostEqual, 0)
}

func TestTwist(t *testing.T) {
	kin := testKinematics(t)
	tw := kin.Twist([NumModules]ModulePosition{
		{Distance: 0.1, Angle: math.Pi / 2},
		{Distance: 0.1, Angle: math.Pi / 2},
		{Distance: 0.1, Angle: math.Pi / 2},
		{Distance: 0.1, Angle: math.Pi / 2},
	})
	test.That(t, tw.DX, test.ShouldAlmostEqual, 0)
	test.That(t, tw.DY, test.ShouldAlmostEqual, 0.1)
	test.That(t, tw.DTheta, test.ShouldAlmostEqual, 0)
}

func TestDegenerateLayout(t *testing.T) {
	var geoms [NumModules]ModuleGeometry
	for i := range geoms {
		geoms[i] = ModuleGeometry{Offset: r2.Point{X: 0.2, Y: 0.2}, MaxSpeed: 1}
	}
	_, err := NewKinematics(geoms)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "degenerate")

	geoms = RectangularLayout(1, 1, 0.05, 1)
	geoms[BackLeft].Offset.X = math.NaN()
	_, err = NewKinematics(geoms)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "back_left")
}

func TestXLockStates(t *testing.T) {
	kin := testKinematics(t)
	states := kin.XLockStates()
	want := [NumModules]float64{45, -45, 135, -135}
	for i, s := range states {
		test.That(t, s.Speed, test.ShouldEqual, 0)
		test.That(t, utils.RadToDeg(s.Angle), test.ShouldAlmostEqual, want[i])
	}
}

func TestCornerString(t *testing.T) {
	test.That(t, FrontRight.String(), test.ShouldEqual, "front_right")
	test.That(t, Corner(7).String(), test.ShouldEqual, "corner(7)")
}

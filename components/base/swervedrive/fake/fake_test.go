package fake

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics/swerve"
	"go.viam.com/swerve/spatialmath"
)

var steer = control.PIDConfig{Kp: 8, OutputLimit: 30, Continuous: true}

func newTestRobot(t *testing.T) (*Robot, *clock.Mock) {
	t.Helper()
	kin, err := swerve.NewKinematics(swerve.RectangularLayout(0.5, 0.5, 0.05, 3))
	test.That(t, err, test.ShouldBeNil)
	clk := clock.NewMock()
	r, err := NewRobot(kin, 3, steer, clk)
	test.That(t, err, test.ShouldBeNil)
	return r, clk
}

func TestNewRobotErrors(t *testing.T) {
	_, err := NewRobot(nil, 3, steer, nil)
	test.That(t, err, test.ShouldNotBeNil)

	kin, err := swerve.NewKinematics(swerve.RectangularLayout(0.5, 0.5, 0.05, 3))
	test.That(t, err, test.ShouldBeNil)
	_, err = NewRobot(kin, 3, control.PIDConfig{}, nil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "front_left")
}

func TestModuleSteersAndDrives(t *testing.T) {
	ctx := context.Background()
	r, clk := newTestRobot(t)
	m := r.Modules()[swerve.FrontLeft]
	test.That(t, m.SetState(ctx, swerve.ModuleState{Speed: 5, Angle: math.Pi / 2}), test.ShouldBeNil)
	test.That(t, m.Target().Speed, test.ShouldEqual, 5)

	for i := 0; i < 100; i++ {
		clk.Add(20 * time.Millisecond)
		r.Step(20 * time.Millisecond)
	}
	st, err := m.State(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.Angle, test.ShouldAlmostEqual, math.Pi/2, 1e-6)
	// clamped to the module's top speed
	test.That(t, st.Speed, test.ShouldEqual, 3)
	pos, err := m.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos.Distance, test.ShouldAlmostEqual, 6, 1e-9)

	m.ResetEncoder()
	pos, err = m.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos.Distance, test.ShouldEqual, 0)

	m.Fail(errors.New("brownout"))
	_, err = m.Position(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.State(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m.SetState(ctx, swerve.ModuleState{}), test.ShouldNotBeNil)
}

func TestChassisFollowsWheels(t *testing.T) {
	r, clk := newTestRobot(t)
	for _, m := range r.Modules() {
		test.That(t, m.SetState(context.Background(), swerve.ModuleState{Speed: 1}), test.ShouldBeNil)
	}
	r.SetSlip(0.5)
	for i := 0; i < 10; i++ {
		clk.Add(100 * time.Millisecond)
		r.Step(100 * time.Millisecond)
	}
	test.That(t, r.Truth().X(), test.ShouldAlmostEqual, 0.5, 1e-9)

	past, ok := r.TruthAt(clk.Now().Add(-250 * time.Millisecond))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, past.X(), test.ShouldAlmostEqual, 0.375, 1e-9)

	_, ok = r.TruthAt(clk.Now().Add(-2 * time.Second))
	test.That(t, ok, test.ShouldBeFalse)
}

func TestGyroDrift(t *testing.T) {
	r, clk := newTestRobot(t)
	r.SetTruth(spatialmath.NewPose2D(0, 0, 1))
	r.Gyro().SetDrift(0.1)
	clk.Add(time.Second)
	r.Step(time.Second)

	yaw, err := r.Gyro().Yaw(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, yaw, test.ShouldAlmostEqual, 1.1, 1e-9)

	r.Gyro().Fail(errors.New("unplugged"))
	_, err = r.Gyro().Yaw(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCameraDetection(t *testing.T) {
	ctx := context.Background()
	r, clk := newTestRobot(t)
	cam := r.AddCamera(CameraConfig{Name: "front", Offset: r2.Point{X: -0.2}, Latency: 40 * time.Millisecond, TagCount: 2})
	test.That(t, cam.Name(), test.ShouldEqual, "front")
	test.That(t, r.Ports().Cameras, test.ShouldHaveLength, 1)

	r.SetTruth(spatialmath.NewPose2D(3, 2, math.Pi/2))
	// nothing recorded before the teleport
	det, err := cam.Detection(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.HasTarget, test.ShouldBeFalse)

	clk.Add(100 * time.Millisecond)
	r.Step(100 * time.Millisecond)
	det, err = cam.Detection(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.HasTarget, test.ShouldBeTrue)
	test.That(t, det.Source, test.ShouldEqual, "front")
	test.That(t, det.Latency, test.ShouldEqual, 40*time.Millisecond)
	test.That(t, det.TagCount, test.ShouldEqual, 2)
	test.That(t, det.Received.Equal(clk.Now()), test.ShouldBeTrue)
	// the camera sits 0.2m ahead of the center, which faces +y
	test.That(t, det.Pose.AlmostEqual(spatialmath.NewPose2D(3, 2.2, math.Pi/2), 1e-9), test.ShouldBeTrue)
	test.That(t, det.Pose.Compose(spatialmath.NewPose2DFromPoint(r2.Point{X: -0.2}, 0)).AlmostEqual(r.Truth(), 1e-9),
		test.ShouldBeTrue)

	cam.SetVisible(false)
	det, err = cam.Detection(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.HasTarget, test.ShouldBeFalse)

	cam.Fail(errors.New("usb reset"))
	_, err = cam.Detection(ctx)
	test.That(t, err, test.ShouldNotBeNil)
}

// Package fake implements simulated swerve hardware: four steerable modules, a gyro and any number of
// fiducial cameras, all driven by one simulated chassis.
package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/swerve/components/base/swervedrive"
	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics/swerve"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
	"go.viam.com/swerve/vision/landmark"
)

// trailLength is how much ground-truth history cameras can look back into.
const trailLength = time.Second

// Module is a simulated module. The drive wheel follows the commanded speed immediately, the
// steering follows the commanded angle through a PID.
type Module struct {
	mu       sync.Mutex
	steer    *control.PID
	maxSpeed float64
	target   swerve.ModuleState
	angle    float64
	speed    float64
	distance float64
	err      error
}

// SetState commands the module.
func (m *Module) SetState(ctx context.Context, s swerve.ModuleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.target = s
	return nil
}

// Position returns the accumulated wheel distance and the steering angle.
func (m *Module) Position(ctx context.Context) (swerve.ModulePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return swerve.ModulePosition{}, m.err
	}
	return swerve.ModulePosition{Distance: m.distance, Angle: m.angle}, nil
}

// State returns the measured wheel speed and steering angle.
func (m *Module) State(ctx context.Context) (swerve.ModuleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return swerve.ModuleState{}, m.err
	}
	return swerve.ModuleState{Speed: m.speed, Angle: m.angle}, nil
}

// Target returns the last commanded state.
func (m *Module) Target() swerve.ModuleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Fail makes every port call return err until Fail(nil).
func (m *Module) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ResetEncoder zeroes the distance counter, as a motor controller reboot would.
func (m *Module) ResetEncoder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distance = 0
}

func (m *Module) step(dt time.Duration) swerve.ModulePosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	rate := m.steer.Next(m.target.Angle, m.angle, dt)
	m.angle = spatialmath.NormalizeAngle(m.angle + rate*dt.Seconds())
	m.speed = utils.Clamp(m.target.Speed, -m.maxSpeed, m.maxSpeed)
	delta := m.speed * dt.Seconds()
	m.distance += delta
	return swerve.ModulePosition{Distance: delta, Angle: m.angle}
}

// Gyro is a simulated yaw sensor. It reads the true heading plus an accumulated drift.
type Gyro struct {
	mu    sync.Mutex
	yaw   float64
	bias  float64
	drift float64
	err   error
}

// Yaw returns the heading in radians, counter-clockwise positive.
func (g *Gyro) Yaw(ctx context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return 0, g.err
	}
	return g.yaw, nil
}

// SetDrift sets the drift rate in rad/s.
func (g *Gyro) SetDrift(radPerSec float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drift = radPerSec
}

// Fail makes Yaw return err until Fail(nil).
func (g *Gyro) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *Gyro) update(heading float64, dt time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bias += g.drift * dt.Seconds()
	g.yaw = spatialmath.NormalizeAngle(heading + g.bias)
}

// CameraConfig describes a simulated camera.
type CameraConfig struct {
	Name string
	// Offset is where the robot center is as seen from the camera, in the robot frame. It must match
	// the source offset configured for the landmark model.
	Offset   r2.Point
	Latency  time.Duration
	NoiseStd float64
	TagCount int
}

// Camera is a simulated fiducial camera that solves the robot pose from the ground truth at the
// moment of capture.
type Camera struct {
	cfg   CameraConfig
	robot *Robot
	noise distuv.Normal

	mu      sync.Mutex
	visible bool
	err     error
}

// Name returns the camera name.
func (c *Camera) Name() string {
	return c.cfg.Name
}

// SetVisible controls whether any tag is in view.
func (c *Camera) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
}

// Fail makes Detection return err until Fail(nil).
func (c *Camera) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Detection returns the latest frame.
func (c *Camera) Detection(ctx context.Context) (landmark.Detection, error) {
	c.mu.Lock()
	visible, err := c.visible, c.err
	c.mu.Unlock()
	if err != nil {
		return landmark.Detection{}, err
	}
	now := c.robot.clk.Now()
	det := landmark.Detection{Source: c.cfg.Name, Received: now, Latency: c.cfg.Latency}
	if !visible {
		return det, nil
	}
	truth, ok := c.robot.TruthAt(now.Add(-c.cfg.Latency))
	if !ok {
		return det, nil
	}
	pose := truth.Compose(spatialmath.NewPose2DFromPoint(c.cfg.Offset.Mul(-1), 0))
	if c.cfg.NoiseStd > 0 {
		pose = spatialmath.NewPose2D(pose.X()+c.noise.Rand(), pose.Y()+c.noise.Rand(), pose.Theta())
	}
	det.HasTarget = true
	det.Pose = pose
	det.TagCount = c.cfg.TagCount
	return det, nil
}

type stamped struct {
	t    time.Time
	pose spatialmath.Pose2D
}

// Robot is the simulated chassis. Step advances the physics; the caller owns the clock.
type Robot struct {
	clk     clock.Clock
	kin     *swerve.Kinematics
	modules [swerve.NumModules]*Module
	gyro    *Gyro

	mu      sync.Mutex
	cameras []*Camera
	truth   spatialmath.Pose2D
	trail   []stamped
	slip    float64
}

// NewRobot returns a robot at the origin with all modules pointing forward.
func NewRobot(kin *swerve.Kinematics, maxSpeed float64, steer control.PIDConfig, clk clock.Clock) (*Robot, error) {
	if kin == nil {
		return nil, errors.New("fake robot needs kinematics")
	}
	if clk == nil {
		clk = clock.New()
	}
	r := &Robot{clk: clk, kin: kin, gyro: &Gyro{}}
	for i := range r.modules {
		pid, err := control.NewPID(steer)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot build steering for %v", swerve.Corner(i))
		}
		r.modules[i] = &Module{steer: pid, maxSpeed: maxSpeed}
	}
	r.trail = append(r.trail, stamped{t: clk.Now(), pose: r.truth})
	return r, nil
}

// Modules returns the modules in canonical order.
func (r *Robot) Modules() [swerve.NumModules]*Module {
	return r.modules
}

// Gyro returns the gyro.
func (r *Robot) Gyro() *Gyro {
	return r.gyro
}

// AddCamera mounts a camera. It starts with a tag in view.
func (r *Robot) AddCamera(cfg CameraConfig) *Camera {
	c := &Camera{
		cfg:     cfg,
		robot:   r,
		noise:   distuv.Normal{Mu: 0, Sigma: cfg.NoiseStd},
		visible: true,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = append(r.cameras, c)
	return c
}

// Cameras returns the mounted cameras.
func (r *Robot) Cameras() []*Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Camera(nil), r.cameras...)
}

// Ports returns the robot's hardware as drivetrain ports.
func (r *Robot) Ports() swervedrive.Ports {
	var ports swervedrive.Ports
	for i, m := range r.modules {
		ports.Modules[i] = m
	}
	ports.Gyro = r.gyro
	for _, c := range r.Cameras() {
		ports.Cameras = append(ports.Cameras, c)
	}
	return ports
}

// SetSlip makes the chassis cover (1 - fraction) of the distance the wheels report.
func (r *Robot) SetSlip(fraction float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slip = utils.Clamp(fraction, 0, 1)
}

// Truth returns the actual chassis pose.
func (r *Robot) Truth() spatialmath.Pose2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.truth
}

// SetTruth teleports the chassis.
func (r *Robot) SetTruth(p spatialmath.Pose2D) {
	r.mu.Lock()
	r.truth = p
	r.trail = append(r.trail[:0], stamped{t: r.clk.Now(), pose: p})
	r.mu.Unlock()
	r.gyro.update(p.Theta(), 0)
}

// TruthAt returns the actual pose at t, interpolated from the recorded trail. It reports false when
// t is older than the trail.
func (r *Robot) TruthAt(t time.Time) (spatialmath.Pose2D, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.trail)
	if n == 0 || t.Before(r.trail[0].t) {
		return spatialmath.Pose2D{}, false
	}
	i := sort.Search(n, func(i int) bool { return r.trail[i].t.After(t) })
	if i == n {
		return r.trail[n-1].pose, true
	}
	a, b := r.trail[i-1], r.trail[i]
	return spatialmath.Interpolate(a.pose, b.pose, float64(t.Sub(a.t))/float64(b.t.Sub(a.t))), true
}

// Step advances the modules and the chassis by dt and records the resulting pose at the clock's
// current time.
func (r *Robot) Step(dt time.Duration) {
	var deltas [swerve.NumModules]swerve.ModulePosition
	for i, m := range r.modules {
		deltas[i] = m.step(dt)
	}
	twist := r.kin.Twist(deltas)

	r.mu.Lock()
	twist.DX *= 1 - r.slip
	twist.DY *= 1 - r.slip
	r.truth = r.truth.Exp(twist)
	now := r.clk.Now()
	if n := len(r.trail); n > 0 && !r.trail[n-1].t.Before(now) {
		r.trail = r.trail[:n-1]
	}
	r.trail = append(r.trail, stamped{t: now, pose: r.truth})
	cutoff := now.Add(-trailLength)
	drop := sort.Search(len(r.trail), func(i int) bool { return !r.trail[i].t.Before(cutoff) })
	r.trail = append(r.trail[:0], r.trail[drop:]...)
	heading := r.truth.Theta()
	r.mu.Unlock()

	r.gyro.update(heading, dt)
}

// Package swervedrive binds the swerve kinematics and the pose estimator to module, gyro and camera
// ports, and runs them once per control cycle.
package swervedrive

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/swerve/config"
	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/kinematics/swerve"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
	"go.viam.com/swerve/vision/landmark"
)

// rawMaxSpeed is the desaturation limit in raw mode, where module speeds are duty cycles.
const rawMaxSpeed = 1.0

// Stats aggregates the counters of every stage.
type Stats struct {
	Estimator       estimator.Stats
	Landmarks       landmark.Stats
	InvalidCommands int64
	PortErrors      int64
}

// Drivetrain is a four-module swerve drive with pose estimation.
type Drivetrain struct {
	logger        logging.Logger
	clk           clock.Clock
	ports         Ports
	kin           *swerve.Kinematics
	resolver      *swerve.Resolver
	rawResolver   *swerve.Resolver
	model         *landmark.Model
	engine        *estimator.Engine
	fieldRelative bool

	mu       sync.Mutex
	measured [swerve.NumModules]swerve.ModuleState
	targets  [swerve.NumModules]swerve.ModuleState

	portErrors atomic.Int64
}

// New returns a drivetrain for cfg bound to ports. The pose estimate starts at the origin.
func New(cfg *config.Config, ports Ports, clk clock.Clock, logger logging.Logger) (*Drivetrain, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if err := ports.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	maxSpeed := cfg.Drivetrain.MaxSpeedMPS
	kin, err := swerve.NewKinematics(cfg.Drivetrain.Geometries())
	if err != nil {
		return nil, err
	}
	resolver, err := swerve.NewResolver(kin, maxSpeed, logger.Sublogger("resolver"))
	if err != nil {
		return nil, err
	}
	rawResolver, err := swerve.NewResolver(kin, rawMaxSpeed, logger.Sublogger("resolver"))
	if err != nil {
		return nil, err
	}
	model, err := landmark.NewModel(cfg.Vision.LandmarkConfig(), logger.Sublogger("landmark"))
	if err != nil {
		return nil, err
	}
	engine, err := estimator.NewEngine(cfg.Estimator.EstimatorConfig(), kin, maxSpeed, clk, logger.Sublogger("estimator"))
	if err != nil {
		return nil, err
	}

	offsets := model.Config().SourceOffsets
	for _, c := range ports.Cameras {
		if _, ok := offsets[c.Name()]; !ok {
			logger.Infow("camera has no configured mounting offset, using its poses as is", "camera", c.Name())
		}
	}

	return &Drivetrain{
		logger:        logger,
		clk:           clk,
		ports:         ports,
		kin:           kin,
		resolver:      resolver,
		rawResolver:   rawResolver,
		model:         model,
		engine:        engine,
		fieldRelative: cfg.Drivetrain.FieldRelative,
	}, nil
}

// Kinematics returns the drive kinematics.
func (d *Drivetrain) Kinematics() *swerve.Kinematics {
	return d.kin
}

// Drive commands a chassis velocity in the robot frame, or in the field frame when the drivetrain is
// configured field relative.
func (d *Drivetrain) Drive(ctx context.Context, v spatialmath.ChassisVelocity) error {
	if d.fieldRelative {
		return d.DriveFieldRelative(ctx, v)
	}
	return d.DriveRobotRelative(ctx, v)
}

// DriveRobotRelative commands a chassis velocity in the robot frame.
func (d *Drivetrain) DriveRobotRelative(ctx context.Context, v spatialmath.ChassisVelocity) error {
	return d.apply(ctx, d.resolver.Resolve(v, d.currentAngles()))
}

// DriveFieldRelative commands a chassis velocity in the field frame, rotated into the robot frame by
// the estimated heading.
func (d *Drivetrain) DriveFieldRelative(ctx context.Context, v spatialmath.ChassisVelocity) error {
	heading := d.engine.Estimate().Pose.Theta()
	return d.DriveRobotRelative(ctx, spatialmath.FieldRelative(v, heading))
}

// DriveRaw commands the modules in duty-cycle units: v is scaled so no wheel exceeds ±1.
func (d *Drivetrain) DriveRaw(ctx context.Context, v spatialmath.ChassisVelocity) error {
	return d.apply(ctx, d.rawResolver.Resolve(v, d.currentAngles()))
}

// XLock stops the wheels and turns them into an X so the robot resists being pushed.
func (d *Drivetrain) XLock(ctx context.Context) error {
	current := d.currentAngles()
	states := d.kin.XLockStates()
	for i := range states {
		states[i] = swerve.Optimize(states[i], current[i])
	}
	return d.apply(ctx, states)
}

// Stop zeroes every wheel speed and leaves the steering where it is.
func (d *Drivetrain) Stop(ctx context.Context) error {
	var states [swerve.NumModules]swerve.ModuleState
	for i, a := range d.currentAngles() {
		states[i] = swerve.ModuleState{Angle: a}
	}
	return d.apply(ctx, states)
}

func (d *Drivetrain) currentAngles() [swerve.NumModules]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var angles [swerve.NumModules]float64
	for i, s := range d.measured {
		angles[i] = s.Angle
	}
	return angles
}

func (d *Drivetrain) apply(ctx context.Context, states [swerve.NumModules]swerve.ModuleState) error {
	d.mu.Lock()
	d.targets = states
	d.mu.Unlock()
	err := utils.ForEachParallel(ctx, swerve.NumModules, func(ctx context.Context, i int) error {
		return errors.Wrapf(d.ports.Modules[i].SetState(ctx, states[i]), "cannot command %v", swerve.Corner(i))
	})
	d.countPortErrors(err)
	return err
}

// Periodic runs one control cycle: it reads the modules and gyro, advances the estimate, folds in
// camera detections and updates staleness. Port errors are returned, but the cycle always
// completes: a failed odometry read skips the prediction and a failed camera is left out.
func (d *Drivetrain) Periodic(ctx context.Context) error {
	now := d.clk.Now()

	var positions [swerve.NumModules]swerve.ModulePosition
	var states [swerve.NumModules]swerve.ModuleState
	moduleErr := utils.ForEachParallel(ctx, swerve.NumModules, func(ctx context.Context, i int) error {
		pos, err := d.ports.Modules[i].Position(ctx)
		if err != nil {
			return errors.Wrapf(err, "cannot read %v position", swerve.Corner(i))
		}
		st, err := d.ports.Modules[i].State(ctx)
		if err != nil {
			return errors.Wrapf(err, "cannot read %v state", swerve.Corner(i))
		}
		positions[i], states[i] = pos, st
		return nil
	})
	yaw, gyroErr := d.ports.Gyro.Yaw(ctx)
	gyroErr = errors.Wrap(gyroErr, "cannot read gyro")

	if moduleErr == nil && gyroErr == nil {
		d.mu.Lock()
		d.measured = states
		d.mu.Unlock()

		sample := swerve.OdometrySample{Gyro: yaw, Timestamp: now}
		for i, p := range positions {
			sample.Distances[i] = p.Distance
			sample.Angles[i] = p.Angle
		}
		d.engine.PredictStep(sample)
	}

	detections, cameraErr := d.readCameras(ctx, now)
	if n := d.engine.CorrectStep(d.model.ObserveAll(detections)); n > 0 {
		d.logger.Debugw("applied vision corrections", "count", n)
	}
	d.engine.CheckStale()

	err := multierr.Combine(moduleErr, gyroErr, cameraErr)
	d.countPortErrors(err)
	return err
}

func (d *Drivetrain) readCameras(ctx context.Context, now time.Time) ([]landmark.Detection, error) {
	cameras := d.ports.Cameras
	detections := make([]landmark.Detection, len(cameras))
	read := make([]bool, len(cameras))
	err := utils.ForEachParallel(ctx, len(cameras), func(ctx context.Context, i int) error {
		det, err := cameras[i].Detection(ctx)
		if err != nil {
			return errors.Wrapf(err, "cannot read camera %q", cameras[i].Name())
		}
		if det.Source == "" {
			det.Source = cameras[i].Name()
		}
		if det.Received.IsZero() {
			det.Received = now
		}
		detections[i], read[i] = det, true
		return nil
	})
	return lo.Filter(detections, func(_ landmark.Detection, i int) bool { return read[i] }), err
}

func (d *Drivetrain) countPortErrors(err error) {
	if n := len(multierr.Errors(err)); n > 0 {
		d.portErrors.Add(int64(n))
	}
}

// ResetPose moves the estimate to pose, for example at the start of a match.
func (d *Drivetrain) ResetPose(pose spatialmath.Pose2D) {
	d.engine.ResetPose(pose)
}

// Estimate returns the fused pose.
func (d *Drivetrain) Estimate() estimator.Estimate {
	return d.engine.Estimate()
}

// OdometryPose returns the pose from wheel odometry alone.
func (d *Drivetrain) OdometryPose() spatialmath.Pose2D {
	return d.engine.OdometryPose()
}

// HasTarget reports whether the last cycle applied any vision correction.
func (d *Drivetrain) HasTarget() bool {
	return d.engine.Estimate().HasTarget
}

// ModuleStates returns the module states measured in the last successful cycle.
func (d *Drivetrain) ModuleStates() [swerve.NumModules]swerve.ModuleState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measured
}

// TargetStates returns the last commanded module states.
func (d *Drivetrain) TargetStates() [swerve.NumModules]swerve.ModuleState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targets
}

// ChassisVelocity returns the robot-frame velocity implied by the measured module states.
func (d *Drivetrain) ChassisVelocity() spatialmath.ChassisVelocity {
	return d.kin.ChassisVelocity(d.ModuleStates())
}

// Stats returns the counters of every stage.
func (d *Drivetrain) Stats() Stats {
	return Stats{
		Estimator:       d.engine.Stats(),
		Landmarks:       d.model.Stats(),
		InvalidCommands: d.resolver.InvalidCommands() + d.rawResolver.InvalidCommands(),
		PortErrors:      d.portErrors.Load(),
	}
}

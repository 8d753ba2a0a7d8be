package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"

	"go.viam.com/swerve/components/base/swervedrive"
	"go.viam.com/swerve/components/base/swervedrive/fake"
	"go.viam.com/swerve/config"
	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics/swerve"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("swervesim")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if !c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path)
}

// CheckConfigAction validates the configuration and prints it back with defaults applied.
func CheckConfigAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "cannot print config")
	}
	_, err = c.App.Writer.Write(out)
	return err
}

// RunAction drives simulated hardware with a constant command for the requested duration and prints
// how the estimate compares to the simulated ground truth.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	clk := clock.New()

	kin, err := swerve.NewKinematics(cfg.Drivetrain.Geometries())
	if err != nil {
		return err
	}
	robot, err := fake.NewRobot(kin, cfg.Drivetrain.MaxSpeedMPS, cfg.Drivetrain.SteerPID, clk)
	if err != nil {
		return err
	}
	for _, cam := range cfg.Vision.Cameras {
		robot.AddCamera(fake.CameraConfig{
			Name:     cam.Name,
			Offset:   r2.Point{X: cam.OffsetX, Y: cam.OffsetY},
			Latency:  c.Duration(runFlagCameraLatency),
			NoiseStd: c.Float64(runFlagCameraNoise),
			TagCount: 1,
		})
	}
	robot.SetSlip(c.Float64(runFlagSlip))
	robot.Gyro().SetDrift(utils.DegToRad(c.Float64(runFlagGyroDrift)))

	start := spatialmath.NewPose2D(c.Float64(runFlagStartX), c.Float64(runFlagStartY), utils.DegToRad(c.Float64(runFlagStartDeg)))
	robot.SetTruth(start)

	drive, err := swervedrive.New(cfg, robot.Ports(), clk, logger.Sublogger("drivetrain"))
	if err != nil {
		return err
	}
	drive.ResetPose(start)

	cmd := spatialmath.ChassisVelocity{
		VX:    c.Float64(runFlagVX),
		VY:    c.Float64(runFlagVY),
		Omega: utils.DegToRad(c.Float64(runFlagOmegaDeg)),
	}
	printEvery := int64(c.Int(runFlagPrintEvery))

	var cycles atomic.Int64
	var path trajectory
	last := clk.Now()
	loop, err := control.NewLoop(logger.Sublogger("loop"), clk, cfg.Loop.Period(), func(ctx context.Context, now time.Time) {
		robot.Step(now.Sub(last))
		last = now
		if err := drive.Drive(ctx, cmd); err != nil {
			logger.Warnw("cannot command modules", "error", err)
		}
		if err := drive.Periodic(ctx); err != nil {
			logger.Warnw("control cycle had port errors", "error", err)
		}
		path.record(robot.Truth(), drive.Estimate().Pose, drive.OdometryPose())
		if n := cycles.Inc(); printEvery > 0 && n%printEvery == 0 {
			printEstimate(c.App.Writer, n, drive, robot)
		}
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration(runFlagDuration))
	defer cancel()
	if err := loop.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	loop.Stop()

	if c.Bool(runFlagXLock) {
		if err := drive.XLock(context.Background()); err != nil {
			return err
		}
	} else if err := drive.Stop(context.Background()); err != nil {
		return err
	}

	printSummary(c.App.Writer, loop, drive, robot)
	if out := c.String(runFlagPlot); out != "" {
		if err := path.save(out); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "path plot    %s\n", out)
	}
	return nil
}

func printEstimate(w io.Writer, cycle int64, drive *swervedrive.Drivetrain, robot *fake.Robot) {
	est := drive.Estimate()
	fmt.Fprintf(w, "cycle %5d  estimate %v  truth %v  target %v  stale %v\n",
		cycle, est.Pose, robot.Truth(), est.HasTarget, est.Stale)
}

func printSummary(w io.Writer, loop *control.Loop, drive *swervedrive.Drivetrain, robot *fake.Robot) {
	est := drive.Estimate()
	truth := robot.Truth()
	odometry := drive.OdometryPose()
	stats := drive.Stats()

	fmt.Fprintf(w, "session      %v\n", est.Session)
	fmt.Fprintf(w, "cycles       %d (%d overran %v)\n", loop.Ticks(), loop.Overruns(), loop.Period())
	fmt.Fprintf(w, "truth        %v\n", truth)
	fmt.Fprintf(w, "estimate     %v  error %.3fm\n", est.Pose, est.Pose.Point.Sub(truth.Point).Norm())
	fmt.Fprintf(w, "odometry     %v  error %.3fm\n", odometry, odometry.Point.Sub(truth.Point).Norm())
	fmt.Fprintf(w, "covariance   %.4f %.4f %.4f\n", est.Covariance[0], est.Covariance[1], est.Covariance[2])
	fmt.Fprintf(w, "corrections  %d applied, %d accepted, %d no target, %d rejected\n",
		stats.Estimator.Corrections, stats.Landmarks.Accepted, stats.Landmarks.NoTarget, stats.Landmarks.Rejected())
	fmt.Fprintf(w, "odometry     %d predictions, %d discontinuities, %d invalid samples\n",
		stats.Estimator.Predictions, stats.Estimator.Discontinuities, stats.Estimator.InvalidSamples)
	fmt.Fprintf(w, "faults       %d port errors, %d invalid commands, %d stale events\n",
		stats.PortErrors, stats.InvalidCommands, stats.Estimator.StaleEvents)
	for i, s := range drive.TargetStates() {
		fmt.Fprintf(w, "%-12v %v\n", swerve.Corner(i), s)
	}
}

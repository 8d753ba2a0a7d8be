package swervedrive

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/swerve/kinematics/swerve"
	"go.viam.com/swerve/vision/landmark"
)

// ModuleIO is one module's motor controllers.
type ModuleIO interface {
	// SetState commands wheel speed (m/s, or duty cycle in raw mode) and steering angle (radians).
	SetState(ctx context.Context, s swerve.ModuleState) error
	// Position returns the cumulative wheel distance in meters and the steering angle.
	Position(ctx context.Context) (swerve.ModulePosition, error)
	// State returns the measured wheel speed and steering angle.
	State(ctx context.Context) (swerve.ModuleState, error)
}

// Gyro reports the chassis heading.
type Gyro interface {
	// Yaw is in radians, counter-clockwise positive.
	Yaw(ctx context.Context) (float64, error)
}

// Camera is a fiducial pipeline.
type Camera interface {
	Name() string
	// Detection returns the most recent frame. A zero Received time is replaced by the time it was read.
	Detection(ctx context.Context) (landmark.Detection, error)
}

// Ports is the hardware the drivetrain is bound to.
type Ports struct {
	Modules [swerve.NumModules]ModuleIO
	Gyro    Gyro
	Cameras []Camera
}

// Validate ensures every required port is present.
func (p Ports) Validate() error {
	for i, m := range p.Modules {
		if m == nil {
			return errors.Errorf("missing module port for %v", swerve.Corner(i))
		}
	}
	if p.Gyro == nil {
		return errors.New("missing gyro port")
	}
	for i, c := range p.Cameras {
		if c == nil {
			return errors.Errorf("camera port %d is nil", i)
		}
	}
	return nil
}

package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r2"

	"go.viam.com/swerve/utils"
)

// ChassisVelocity is a whole-robot velocity command: linear m/s along x (forward) and y (left),
// and angular rad/s counter-clockwise.
type ChassisVelocity struct {
	VX    float64
	VY    float64
	Omega float64
}

// IsZero reports whether every component is exactly zero.
func (v ChassisVelocity) IsZero() bool {
	return v.VX == 0 && v.VY == 0 && v.Omega == 0
}

// IsFinite reports whether every component is finite.
func (v ChassisVelocity) IsFinite() bool {
	return utils.IsFinite(v.VX, v.VY, v.Omega)
}

// Linear returns the translational part as a vector.
func (v ChassisVelocity) Linear() r2.Point {
	return r2.Point{X: v.VX, Y: v.VY}
}

// Scale multiplies every component by k.
func (v ChassisVelocity) Scale(k float64) ChassisVelocity {
	return ChassisVelocity{VX: v.VX * k, VY: v.VY * k, Omega: v.Omega * k}
}

// Twist returns the pose change produced by holding v for dt seconds.
func (v ChassisVelocity) Twist(dt float64) Twist2D {
	return Twist2D{DX: v.VX * dt, DY: v.VY * dt, DTheta: v.Omega * dt}
}

func (v ChassisVelocity) String() string {
	return fmt.Sprintf("vx=%.3f vy=%.3f omega=%.3f", v.VX, v.VY, v.Omega)
}

// FieldRelative converts a command expressed in the field frame into the robot frame, given the
// robot's heading on the field in radians.
func FieldRelative(v ChassisVelocity, heading float64) ChassisVelocity {
	linear := Rotate(v.Linear(), -heading)
	return ChassisVelocity{VX: linear.X, VY: linear.Y, Omega: v.Omega}
}

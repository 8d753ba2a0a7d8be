// Package swerve implements the kinematics of a four-module independently steered drive:
// chassis velocity to per-module (speed, angle) targets and back, the command resolver that
// desaturates and minimizes steering travel, and the wheel/gyro odometry integrator.
package swerve

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// NumModules is the number of swerve modules on the chassis.
const NumModules = 4

// Corner identifies a module position. The canonical order FrontLeft, FrontRight, BackLeft,
// BackRight is used by every array in this package.
type Corner int

// Module corners, in canonical order.
const (
	FrontLeft Corner = iota
	FrontRight
	BackLeft
	BackRight
)

// Corners lists every corner in canonical order.
var Corners = [NumModules]Corner{FrontLeft, FrontRight, BackLeft, BackRight}

func (c Corner) String() string {
	switch c {
	case FrontLeft:
		return "front_left"
	case FrontRight:
		return "front_right"
	case BackLeft:
		return "back_left"
	case BackRight:
		return "back_right"
	}
	return fmt.Sprintf("corner(%d)", int(c))
}

// ModuleGeometry is the static description of one module.
type ModuleGeometry struct {
	// Offset of the steering axis from the robot center, meters, x forward and y left.
	Offset r2.Point
	// WheelRadius in meters.
	WheelRadius float64
	// MaxSpeed is the fastest the wheel surface can move, m/s.
	MaxSpeed float64
}

// ModuleState is a drive speed and steering angle for one module. Angle is in radians, (-pi, pi].
type ModuleState struct {
	Speed float64
	Angle float64
}

func (s ModuleState) String() string {
	return fmt.Sprintf("%.3fm/s@%.1f°", s.Speed, utils.RadToDeg(s.Angle))
}

// ModulePosition is a cumulative drive distance in meters and the current steering angle in radians.
type ModulePosition struct {
	Distance float64
	Angle    float64
}

// RectangularLayout returns module geometries for a chassis whose modules sit at the corners of a
// length × width rectangle centered on the robot.
func RectangularLayout(length, width, wheelRadius, maxSpeed float64) [NumModules]ModuleGeometry {
	hl, hw := length/2, width/2
	offsets := [NumModules]r2.Point{
		FrontLeft:  {X: hl, Y: hw},
		FrontRight: {X: hl, Y: -hw},
		BackLeft:   {X: -hl, Y: hw},
		BackRight:  {X: -hl, Y: -hw},
	}
	var geoms [NumModules]ModuleGeometry
	for i, off := range offsets {
		geoms[i] = ModuleGeometry{Offset: off, WheelRadius: wheelRadius, MaxSpeed: maxSpeed}
	}
	return geoms
}

// VelocityToModuleState returns the speed and heading the module at g must have for the chassis to
// move at v. The module's ground velocity is v + omega × offset. A zero result has angle 0; callers
// that must not re-steer a stopped wheel use Kinematics.ModuleStates, which holds the current angle.
func VelocityToModuleState(v spatialmath.ChassisVelocity, g ModuleGeometry) ModuleState {
	vx := v.VX - v.Omega*g.Offset.Y
	vy := v.VY + v.Omega*g.Offset.X
	speed := math.Hypot(vx, vy)
	if speed == 0 {
		return ModuleState{}
	}
	return ModuleState{Speed: speed, Angle: math.Atan2(vy, vx)}
}

// Optimize returns the representation of target that needs the least steering travel from current.
// When the target heading is more than 90° away, the heading is flipped by 180° and the speed negated;
// both describe the same ground velocity.
func Optimize(target ModuleState, current float64) ModuleState {
	delta := spatialmath.AngleDiff(target.Angle, current)
	if math.Abs(delta) > math.Pi/2 {
		return ModuleState{Speed: -target.Speed, Angle: spatialmath.NormalizeAngle(target.Angle + math.Pi)}
	}
	return ModuleState{Speed: target.Speed, Angle: spatialmath.NormalizeAngle(target.Angle)}
}

// Desaturate scales every speed by the same factor so that none exceeds maxSpeed in magnitude.
// Relative wheel speeds, and therefore the path curvature, are preserved. A set with a non-finite
// speed has no meaningful ratios and is zeroed.
func Desaturate(states []ModuleState, maxSpeed float64) {
	largest := 0.0
	for _, s := range states {
		if !utils.IsFinite(s.Speed) {
			for i := range states {
				states[i].Speed = 0
			}
			return
		}
		largest = math.Max(largest, math.Abs(s.Speed))
	}
	if largest <= maxSpeed || largest == 0 {
		return
	}
	k := maxSpeed / largest
	for i := range states {
		states[i].Speed *= k
	}
}

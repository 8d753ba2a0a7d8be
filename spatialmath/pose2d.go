// Package spatialmath defines the planar geometry used by the drive: poses, twists and
// chassis velocities on the field plane.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/swerve/utils"
)

// smallAngle is the threshold below which Exp uses the Taylor expansion of sin(x)/x.
const smallAngle = 1e-9

// NormalizeAngle wraps theta (radians) into (-pi, pi]. Non-finite input is returned unchanged.
func NormalizeAngle(theta float64) float64 {
	if !utils.IsFinite(theta) {
		return theta
	}
	a := math.Remainder(theta, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// AngleDiff returns the signed shortest rotation from `from` to `to`, in (-pi, pi].
func AngleDiff(to, from float64) float64 {
	return NormalizeAngle(to - from)
}

// Rotate rotates v counter-clockwise by theta radians.
func Rotate(v r2.Point, theta float64) r2.Point {
	sin, cos := math.Sincos(theta)
	return r2.Point{X: v.X*cos - v.Y*sin, Y: v.X*sin + v.Y*cos}
}

// Pose2D is a position on the field plane plus a heading. The heading is always kept in
// (-pi, pi]; every constructor and every operation returning a Pose2D normalizes it.
type Pose2D struct {
	Point r2.Point
	theta float64
}

// NewPose2D returns a pose at (x, y) meters with heading theta radians.
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{Point: r2.Point{X: x, Y: y}, theta: NormalizeAngle(theta)}
}

// NewPose2DFromPoint returns a pose at p with heading theta radians.
func NewPose2DFromPoint(p r2.Point, theta float64) Pose2D {
	return Pose2D{Point: p, theta: NormalizeAngle(theta)}
}

// X returns the x coordinate in meters.
func (p Pose2D) X() float64 { return p.Point.X }

// Y returns the y coordinate in meters.
func (p Pose2D) Y() float64 { return p.Point.Y }

// Theta returns the heading in radians, in (-pi, pi].
func (p Pose2D) Theta() float64 { return p.theta }

// HeadingDeg returns the heading in degrees, in (-180, 180].
func (p Pose2D) HeadingDeg() float64 { return utils.RadToDeg(p.theta) }

// WithTheta returns a copy of the pose with its heading replaced.
func (p Pose2D) WithTheta(theta float64) Pose2D {
	return NewPose2DFromPoint(p.Point, theta)
}

// Compose returns p ⊕ other, where other is expressed in p's frame.
func (p Pose2D) Compose(other Pose2D) Pose2D {
	return NewPose2DFromPoint(p.Point.Add(Rotate(other.Point, p.theta)), p.theta+other.theta)
}

// Inverse returns the pose q such that p.Compose(q) is the identity.
func (p Pose2D) Inverse() Pose2D {
	return NewPose2DFromPoint(Rotate(p.Point.Mul(-1), -p.theta), -p.theta)
}

// RelativeTo expresses p in the frame of base.
func (p Pose2D) RelativeTo(base Pose2D) Pose2D {
	return base.Inverse().Compose(p)
}

// Exp integrates a constant-curvature twist, expressed in p's frame, starting at p.
func (p Pose2D) Exp(tw Twist2D) Pose2D {
	sin, cos := math.Sincos(tw.DTheta)
	var s, c float64
	if math.Abs(tw.DTheta) < smallAngle {
		s = 1 - tw.DTheta*tw.DTheta/6
		c = 0.5 * tw.DTheta
	} else {
		s = sin / tw.DTheta
		c = (1 - cos) / tw.DTheta
	}
	step := NewPose2D(tw.DX*s-tw.DY*c, tw.DX*c+tw.DY*s, tw.DTheta)
	return p.Compose(step)
}

// Interpolate returns the pose a fraction t of the way from a to b. Translation is linear and the
// heading follows the shortest arc. t is clamped to [0, 1].
func Interpolate(a, b Pose2D, t float64) Pose2D {
	t = utils.Clamp(t, 0, 1)
	point := a.Point.Add(b.Point.Sub(a.Point).Mul(t))
	return NewPose2DFromPoint(point, a.theta+AngleDiff(b.theta, a.theta)*t)
}

// AlmostEqual reports whether the poses agree within tol in each coordinate, comparing
// headings on the circle.
func (p Pose2D) AlmostEqual(other Pose2D, tol float64) bool {
	return utils.Float64AlmostEqual(p.Point.X, other.Point.X, tol) &&
		utils.Float64AlmostEqual(p.Point.Y, other.Point.Y, tol) &&
		math.Abs(AngleDiff(p.theta, other.theta)) <= tol
}

// IsFinite reports whether every component of the pose is finite.
func (p Pose2D) IsFinite() bool {
	return utils.IsFinite(p.Point.X, p.Point.Y, p.theta)
}

func (p Pose2D) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.2f°)", p.Point.X, p.Point.Y, p.HeadingDeg())
}

// Twist2D is a pose change in the robot's own frame: forward, left and counter-clockwise rotation.
type Twist2D struct {
	DX     float64
	DY     float64
	DTheta float64
}

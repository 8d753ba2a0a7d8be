package swerve

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// discontinuitySlack is added to the largest physically possible per-cycle wheel travel before a
// distance jump is treated as an encoder reset.
const discontinuitySlack = 0.05

// OdometrySample is one full read of the drive hardware. Distances are cumulative meters, angles are
// radians in any range and Gyro is the heading in radians, any range.
type OdometrySample struct {
	Distances [NumModules]float64
	Angles    [NumModules]float64
	Gyro      float64
	Timestamp time.Time
}

func (s OdometrySample) isFinite() bool {
	return utils.IsFinite(s.Distances[:]...) && utils.IsFinite(s.Angles[:]...) && utils.IsFinite(s.Gyro)
}

// Odometry dead-reckons the robot pose from wheel distances and the gyro. Wheels are trusted for
// translation and the gyro for rotation.
//
// The integrator starts uninitialized; the first sample after construction or Reset only becomes the
// reference and produces no motion.
type Odometry struct {
	kin      *Kinematics
	maxSpeed float64

	running    bool
	last       OdometrySample
	pose       spatialmath.Pose2D
	gyroOffset float64

	discontinuities int
	invalidSamples  int
}

// NewOdometry returns an integrator at the origin. maxSpeed bounds the travel a wheel can plausibly
// make in one cycle and is used to detect encoder resets.
func NewOdometry(kin *Kinematics, maxSpeed float64) (*Odometry, error) {
	if kin == nil {
		return nil, errors.New("odometry needs kinematics")
	}
	if !(maxSpeed > 0) {
		return nil, errors.Errorf("max speed must be positive, got %v", maxSpeed)
	}
	return &Odometry{kin: kin, maxSpeed: maxSpeed}, nil
}

// Reset places the robot at pose and drops the distance and gyro references. The next sample is
// taken as the new reference.
func (o *Odometry) Reset(pose spatialmath.Pose2D) {
	o.running = false
	o.pose = pose
	o.last = OdometrySample{}
}

// Running reports whether a reference sample has been taken.
func (o *Odometry) Running() bool {
	return o.running
}

// Pose returns the dead-reckoned pose.
func (o *Odometry) Pose() spatialmath.Pose2D {
	return o.pose
}

// LastTimestamp returns the timestamp of the last integrated sample.
func (o *Odometry) LastTimestamp() time.Time {
	return o.last.Timestamp
}

// Discontinuities returns how many encoder resets have been detected.
func (o *Odometry) Discontinuities() int {
	return o.discontinuities
}

// InvalidSamples returns how many samples were ignored for non-finite readings.
func (o *Odometry) InvalidSamples() int {
	return o.invalidSamples
}

// Update integrates s and returns the robot-frame twist since the previous sample. The boolean is
// false when nothing was integrated: the reference sample, a non-increasing timestamp, or a
// non-finite reading.
func (o *Odometry) Update(s OdometrySample) (spatialmath.Twist2D, bool) {
	if !s.isFinite() {
		o.invalidSamples++
		return spatialmath.Twist2D{}, false
	}
	if !o.running {
		o.last = s
		o.gyroOffset = o.pose.Theta() - s.Gyro
		o.running = true
		return spatialmath.Twist2D{}, false
	}
	dt := s.Timestamp.Sub(o.last.Timestamp).Seconds()
	if dt <= 0 {
		return spatialmath.Twist2D{}, false
	}

	var deltas [NumModules]ModulePosition
	limit := 2*o.maxSpeed*dt + discontinuitySlack
	jumped := false
	for i := range deltas {
		d := s.Distances[i] - o.last.Distances[i]
		if math.Abs(d) > limit {
			jumped = true
		}
		deltas[i] = ModulePosition{Distance: d, Angle: s.Angles[i]}
	}

	twist := spatialmath.Twist2D{DTheta: spatialmath.AngleDiff(s.Gyro, o.last.Gyro)}
	if jumped {
		o.discontinuities++
	} else {
		wheels := o.kin.Twist(deltas)
		twist.DX, twist.DY = wheels.DX, wheels.DY
	}

	o.pose = o.pose.Exp(twist).WithTheta(s.Gyro + o.gyroOffset)
	o.last = s
	return twist, true
}

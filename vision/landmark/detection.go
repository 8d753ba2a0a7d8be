// Package landmark turns raw per-camera fiducial detections into validated robot pose candidates.
package landmark

import (
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// Reasons a detection is rejected. Rejections are expected in normal operation and are counted, not raised.
var (
	ErrNoTarget     = errors.New("no target in view")
	ErrMalformed    = errors.New("malformed detection")
	ErrOutsideField = errors.New("pose outside field boundary")
	ErrStale        = errors.New("detection older than latency cutoff")
)

// Detection is what a camera pipeline reports in one frame: the robot pose it solved for from the
// tags in view, how long processing took, and when the result arrived.
type Detection struct {
	Source    string
	HasTarget bool
	// Pose is the camera's estimate of its own pose on the field.
	Pose     spatialmath.Pose2D
	Latency  time.Duration
	Received time.Time
	// TagCount is the number of tags used in the solve. Zero is treated as one.
	TagCount int
}

// CaptureTime is when the frame behind the detection was exposed.
func (d Detection) CaptureTime() time.Time {
	return d.Received.Add(-d.Latency)
}

// Observation is a validated robot pose candidate.
type Observation struct {
	Source      string
	Pose        spatialmath.Pose2D
	CaptureTime time.Time
	Latency     time.Duration
	// Confidence is in (0, 1]; the estimator widens the measurement noise of low-confidence observations.
	Confidence float64
}

func (o Observation) String() string {
	return fmt.Sprintf("%s %v at %s (latency %v, confidence %.2f)",
		o.Source, o.Pose, o.CaptureTime.Format(time.RFC3339Nano), o.Latency, o.Confidence)
}

// Check returns a non-nil error wrapping one of the rejection reasons when d must not be used.
type Check func(d Detection) error

// NewTargetCheck rejects frames that saw no tag.
func NewTargetCheck() Check {
	return func(d Detection) error {
		if !d.HasTarget {
			return ErrNoTarget
		}
		return nil
	}
}

// NewFiniteCheck rejects detections with non-finite poses or negative latency.
func NewFiniteCheck() Check {
	return func(d Detection) error {
		if !d.Pose.IsFinite() {
			return errors.Wrapf(ErrMalformed, "pose %v", d.Pose)
		}
		if d.Latency < 0 {
			return errors.Wrapf(ErrMalformed, "negative latency %v", d.Latency)
		}
		return nil
	}
}

// NewFieldCheck rejects detections whose position is outside field. The boundary is inclusive.
func NewFieldCheck(field r2.Rect) Check {
	return func(d Detection) error {
		if !field.ContainsPoint(d.Pose.Point) {
			return errors.Wrapf(ErrOutsideField, "(%.2f, %.2f)", d.Pose.X(), d.Pose.Y())
		}
		return nil
	}
}

// NewLatencyCheck rejects detections whose latency is not strictly below cutoff.
func NewLatencyCheck(cutoff time.Duration) Check {
	return func(d Detection) error {
		if d.Latency >= cutoff {
			return errors.Wrapf(ErrStale, "latency %v", d.Latency)
		}
		return nil
	}
}

// confidence falls off linearly with latency and rises with the number of tags in the solve.
func confidence(d Detection, cutoff time.Duration) float64 {
	c := 1.0
	if cutoff > 0 {
		c = 1 - 0.5*float64(d.Latency)/float64(cutoff)
	}
	if d.TagCount > 1 {
		c = 1 - (1-c)/float64(d.TagCount)
	}
	return utils.Clamp(c, 0.5, 1)
}

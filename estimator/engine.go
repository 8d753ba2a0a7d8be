// Package estimator fuses wheel/gyro odometry with delayed landmark observations into a single
// field pose estimate.
package estimator

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics/swerve"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
	"go.viam.com/swerve/vision/landmark"
)

// Config holds the fusion weights and timing.
type Config struct {
	// StateStdDevs is the trust in odometry: x and y in meters, heading in radians.
	StateStdDevs [3]float64
	// VisionStdDevs is the trust in a full-confidence landmark observation, same units.
	VisionStdDevs [3]float64
	// HistoryWindow is how far back observations can be aligned. Older ones are dropped.
	HistoryWindow time.Duration
	// StaleAfter is how long without an odometry sample before the estimate is flagged stale.
	StaleAfter time.Duration
	// UseVisionHeading lets observations correct the heading. When false only translation is
	// corrected and the gyro alone determines heading.
	UseVisionHeading bool
}

// DefaultConfig returns the standard weights: odometry (5cm, 5cm, 5°), vision (80cm, 80cm, 20°).
func DefaultConfig() Config {
	return Config{
		StateStdDevs:     [3]float64{0.05, 0.05, utils.DegToRad(5)},
		VisionStdDevs:    [3]float64{0.8, 0.8, utils.DegToRad(20)},
		HistoryWindow:    1500 * time.Millisecond,
		StaleAfter:       100 * time.Millisecond,
		UseVisionHeading: true,
	}
}

// Validate returns an error describing the first invalid field.
func (cfg Config) Validate() error {
	for i := 0; i < 3; i++ {
		if !(cfg.StateStdDevs[i] > 0) || !utils.IsFinite(cfg.StateStdDevs[i]) {
			return errors.Errorf("state std dev %d must be positive, got %v", i, cfg.StateStdDevs[i])
		}
		if !(cfg.VisionStdDevs[i] > 0) || !utils.IsFinite(cfg.VisionStdDevs[i]) {
			return errors.Errorf("vision std dev %d must be positive, got %v", i, cfg.VisionStdDevs[i])
		}
	}
	if cfg.HistoryWindow <= 0 {
		return errors.Errorf("history window must be positive, got %v", cfg.HistoryWindow)
	}
	if cfg.StaleAfter <= 0 {
		return errors.Errorf("stale timeout must be positive, got %v", cfg.StaleAfter)
	}
	return nil
}

// Estimate is the fused pose as seen by consumers.
type Estimate struct {
	Pose spatialmath.Pose2D
	// Covariance is the variance of x, y (m²) and heading (rad²).
	Covariance [3]float64
	// Timestamp is the time of the last integrated odometry sample.
	Timestamp time.Time
	// Stale is set when odometry has not been integrated for longer than the stale timeout.
	Stale bool
	// Session changes every time the pose is reset.
	Session uuid.UUID
	// HasTarget is set when the last correction step applied at least one observation.
	HasTarget bool
}

// Stats counts engine activity.
type Stats struct {
	Predictions     int64
	Corrections     int64
	DroppedTooOld   int64
	DroppedNoPose   int64
	Discontinuities int64
	InvalidSamples  int64
	StaleEvents     int64
}

// Engine owns the fused pose. PredictStep and CorrectStep are meant to be called from a single
// control loop; Estimate may be called from anywhere.
type Engine struct {
	cfg    Config
	clk    clock.Clock
	logger logging.Logger

	mu         sync.Mutex
	odometry   *swerve.Odometry
	filter     *control.KalmanFilter
	pose       spatialmath.Pose2D
	history    *history
	session    uuid.UUID
	lastSample time.Time
	lastUpdate time.Time
	stale      bool
	hasTarget  bool
	stats      Stats
}

// NewEngine returns an engine at the origin. maxSpeed is the drive's top wheel speed, used to tell
// encoder resets from real motion.
func NewEngine(
	cfg Config,
	kin *swerve.Kinematics,
	maxSpeed float64,
	clk clock.Clock,
	logger logging.Logger,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	odometry, err := swerve.NewOdometry(kin, maxSpeed)
	if err != nil {
		return nil, err
	}
	filter, err := control.NewKalmanFilter(cfg.StateStdDevs[:])
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	e := &Engine{
		cfg:      cfg,
		clk:      clk,
		logger:   logger,
		odometry: odometry,
		filter:   filter,
		history:  newHistory(cfg.HistoryWindow),
	}
	e.ResetPose(spatialmath.Pose2D{})
	return e, nil
}

// ResetPose replaces the estimate with pose and drops the odometry reference, so the next sample
// becomes the new zero. A new session id is minted.
func (e *Engine) ResetPose(pose spatialmath.Pose2D) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.odometry.Reset(pose)
	e.filter.Reset()
	e.pose = pose
	e.history.clear()
	e.session = uuid.New()
	e.lastUpdate = e.clk.Now()
	e.lastSample = time.Time{}
	e.stale = false
	e.hasTarget = false
	e.logger.Infow("pose reset", "pose", pose.String(), "session", e.session.String())
}

// PredictStep advances the estimate with one odometry sample and returns the fused pose.
func (e *Engine) PredictStep(s swerve.OdometrySample) spatialmath.Pose2D {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasRunning := e.odometry.Running()
	invalidBefore := e.odometry.InvalidSamples()
	discontinuitiesBefore := e.odometry.Discontinuities()

	twist, ok := e.odometry.Update(s)

	e.stats.InvalidSamples += int64(e.odometry.InvalidSamples() - invalidBefore)
	if d := e.odometry.Discontinuities() - discontinuitiesBefore; d > 0 {
		e.stats.Discontinuities += int64(d)
		e.logger.Debugw("encoder discontinuity, integrating rotation only", "at", s.Timestamp)
	}

	switch {
	case ok:
		dt := s.Timestamp.Sub(e.lastSample).Seconds()
		e.filter.Predict(dt)
		e.pose = e.pose.Exp(twist)
		e.stats.Predictions++
	case !wasRunning && e.odometry.Running():
		// reference sample
	default:
		e.checkStaleLocked()
		return e.pose
	}
	e.lastSample = s.Timestamp
	e.lastUpdate = e.clk.Now()
	e.history.push(s.Timestamp, e.pose)
	e.checkStaleLocked()
	return e.pose
}

// CorrectStep applies observations one after another, each as of its capture time. Observations
// should already be validated and ordered by source. It returns how many were applied.
func (e *Engine) CorrectStep(observations []landmark.Observation) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := 0
	for _, obs := range observations {
		if e.correctLocked(obs) {
			applied++
		}
	}
	e.hasTarget = applied > 0
	return applied
}

func (e *Engine) correctLocked(obs landmark.Observation) bool {
	if !obs.Pose.IsFinite() {
		return false
	}
	if e.history.len() == 0 {
		e.stats.DroppedNoPose++
		return false
	}
	was, ok := e.history.sample(obs.CaptureTime)
	if !ok {
		e.stats.DroppedTooOld++
		e.logger.Debugw("observation older than history", "source", obs.Source, "captured", obs.CaptureTime)
		return false
	}

	observed := obs.Pose
	if !e.cfg.UseVisionHeading {
		observed = observed.WithTheta(was.Theta())
	}
	residual := []float64{
		observed.X() - was.X(),
		observed.Y() - was.Y(),
		spatialmath.AngleDiff(observed.Theta(), was.Theta()),
	}
	confidence := obs.Confidence
	if !(confidence > 0) || confidence > 1 {
		confidence = 1
	}
	measStd := make([]float64, 3)
	for i, s := range e.cfg.VisionStdDevs {
		measStd[i] = s / math.Sqrt(confidence)
	}

	dx, err := e.filter.Correct(residual, measStd)
	if err != nil {
		e.logger.Debugw("skipping correction", "source", obs.Source, "error", err)
		return false
	}
	corrected := spatialmath.NewPose2D(was.X()+dx[0], was.Y()+dx[1], was.Theta()+dx[2])

	e.pose = corrected.Compose(e.pose.RelativeTo(was))
	e.history.rebase(obs.CaptureTime, was, corrected)
	e.stats.Corrections++
	return true
}

// CheckStale re-evaluates odometry freshness against the clock. The drive calls it every cycle so
// that losing odometry is noticed even when no sample arrives.
func (e *Engine) CheckStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkStaleLocked()
}

func (e *Engine) checkStaleLocked() bool {
	since := e.clk.Since(e.lastUpdate)
	stale := since > e.cfg.StaleAfter
	switch {
	case stale && !e.stale:
		e.stats.StaleEvents++
		e.logger.Warnw("odometry lost, pose estimate is stale", "since_last_sample", since)
	case !stale && e.stale:
		e.logger.Info("odometry recovered")
	}
	e.stale = stale
	return stale
}

// Estimate returns the current fused estimate.
func (e *Engine) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	stale := e.checkStaleLocked()
	cov := e.filter.Covariance()
	return Estimate{
		Pose:       e.pose,
		Covariance: [3]float64{cov[0], cov[1], cov[2]},
		Timestamp:  e.lastSample,
		Stale:      stale,
		Session:    e.session,
		HasTarget:  e.hasTarget,
	}
}

// OdometryPose returns the dead-reckoned pose without vision corrections.
func (e *Engine) OdometryPose() spatialmath.Pose2D {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.odometry.Pose()
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

package landmark

import (
	"sort"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
)

// BlendMode selects how simultaneous observations are handed to the estimator.
type BlendMode string

const (
	// BlendPerSource hands every valid observation over individually, in source order.
	BlendPerSource BlendMode = "per_source"
	// BlendAveraged collapses all valid observations of a cycle into one synthetic observation.
	BlendAveraged BlendMode = "averaged"
)

// BlendedSource is the source name of an averaged observation.
const BlendedSource = "blended"

// DefaultLatencyCutoff is the age past which a detection is discarded.
const DefaultLatencyCutoff = 84 * time.Millisecond

// DefaultField is a 16.5 m × 8.1 m field with its origin at a corner.
func DefaultField() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: 0, Y: 0}, r2.Point{X: 16.5, Y: 8.1})
}

// Config parameterizes a Model.
type Config struct {
	Field         r2.Rect
	LatencyCutoff time.Duration
	// SourceOffsets is, per camera, the robot center expressed in the frame of the pose the camera reports.
	SourceOffsets map[string]r2.Point
	Mode          BlendMode
}

// DefaultConfig returns the standard field with the default cutoff and per-source blending.
func DefaultConfig() Config {
	return Config{Field: DefaultField(), LatencyCutoff: DefaultLatencyCutoff, Mode: BlendPerSource}
}

// Stats counts what happened to the detections seen so far.
type Stats struct {
	Accepted     int64
	NoTarget     int64
	Malformed    int64
	OutsideField int64
	Stale        int64
}

// Rejected is the total number of dropped detections that did see a target.
func (s Stats) Rejected() int64 {
	return s.Malformed + s.OutsideField + s.Stale
}

// Model validates detections and converts them to observations.
type Model struct {
	cfg    Config
	checks []Check
	logger logging.Logger

	accepted     atomic.Int64
	noTarget     atomic.Int64
	malformed    atomic.Int64
	outsideField atomic.Int64
	stale        atomic.Int64
}

// NewModel returns a Model for cfg.
func NewModel(cfg Config, logger logging.Logger) (*Model, error) {
	if cfg.Field.IsEmpty() || cfg.Field.Size().X <= 0 || cfg.Field.Size().Y <= 0 {
		return nil, errors.New("field boundary must have a positive area")
	}
	if cfg.LatencyCutoff <= 0 {
		return nil, errors.Errorf("latency cutoff must be positive, got %v", cfg.LatencyCutoff)
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = BlendPerSource
	case BlendPerSource, BlendAveraged:
	default:
		return nil, errors.Errorf("unknown blend mode %q", cfg.Mode)
	}
	return &Model{
		cfg: cfg,
		checks: []Check{
			NewTargetCheck(),
			NewFiniteCheck(),
			NewFieldCheck(cfg.Field),
			NewLatencyCheck(cfg.LatencyCutoff),
		},
		logger: logger,
	}, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config {
	return m.cfg
}

// Observe validates a single detection. The returned error wraps one of ErrNoTarget, ErrMalformed,
// ErrOutsideField or ErrStale.
func (m *Model) Observe(d Detection) (Observation, error) {
	if off, ok := m.cfg.SourceOffsets[d.Source]; ok {
		d.Pose = d.Pose.Compose(spatialmath.NewPose2DFromPoint(off, 0))
	}
	for _, check := range m.checks {
		if err := check(d); err != nil {
			m.count(err)
			return Observation{}, err
		}
	}
	m.accepted.Inc()
	return Observation{
		Source:      d.Source,
		Pose:        d.Pose,
		CaptureTime: d.CaptureTime(),
		Latency:     d.Latency,
		Confidence:  confidence(d, m.cfg.LatencyCutoff),
	}, nil
}

// ObserveAll validates a batch of detections and returns the usable observations ordered by source.
// In averaged mode the result holds at most one observation.
func (m *Model) ObserveAll(detections []Detection) []Observation {
	obs := make([]Observation, 0, len(detections))
	for _, d := range detections {
		o, err := m.Observe(d)
		if err != nil {
			if !errors.Is(err, ErrNoTarget) {
				m.logger.Debugw("dropping detection", "source", d.Source, "reason", err.Error())
			}
			continue
		}
		obs = append(obs, o)
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Source < obs[j].Source })

	if m.cfg.Mode == BlendAveraged {
		if blended, ok := Blend(obs); ok {
			return []Observation{blended}
		}
		return nil
	}
	return obs
}

// Blend averages observations into one: mean position, circular mean heading, mean capture time,
// worst latency and mean confidence. It reports false for an empty input.
func Blend(obs []Observation) (Observation, bool) {
	if len(obs) == 0 {
		return Observation{}, false
	}
	if len(obs) == 1 {
		return obs[0], true
	}
	n := float64(len(obs))
	xs := lo.Map(obs, func(o Observation, _ int) float64 { return o.Pose.X() })
	ys := lo.Map(obs, func(o Observation, _ int) float64 { return o.Pose.Y() })
	thetas := lo.Map(obs, func(o Observation, _ int) float64 { return o.Pose.Theta() })

	base := obs[0].CaptureTime
	offset := lo.SumBy(obs, func(o Observation) time.Duration { return o.CaptureTime.Sub(base) })
	latest := lo.MaxBy(obs, func(a, b Observation) bool { return a.Latency > b.Latency })

	return Observation{
		Source:      BlendedSource,
		Pose:        spatialmath.NewPose2D(stat.Mean(xs, nil), stat.Mean(ys, nil), stat.CircularMean(thetas, nil)),
		CaptureTime: base.Add(time.Duration(float64(offset) / n)),
		Latency:     latest.Latency,
		Confidence:  lo.SumBy(obs, func(o Observation) float64 { return o.Confidence }) / n,
	}, true
}

// Stats returns a snapshot of the counters.
func (m *Model) Stats() Stats {
	return Stats{
		Accepted:     m.accepted.Load(),
		NoTarget:     m.noTarget.Load(),
		Malformed:    m.malformed.Load(),
		OutsideField: m.outsideField.Load(),
		Stale:        m.stale.Load(),
	}
}

func (m *Model) count(err error) {
	switch {
	case errors.Is(err, ErrNoTarget):
		m.noTarget.Inc()
	case errors.Is(err, ErrOutsideField):
		m.outsideField.Inc()
	case errors.Is(err, ErrStale):
		m.stale.Inc()
	default:
		m.malformed.Inc()
	}
}

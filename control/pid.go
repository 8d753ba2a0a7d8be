package control

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// PIDConfig holds controller gains and limits.
type PIDConfig struct {
	Kp float64 `json:"kp" yaml:"kp" mapstructure:"kp"`
	Ki float64 `json:"ki" yaml:"ki" mapstructure:"ki"`
	Kd float64 `json:"kd" yaml:"kd" mapstructure:"kd"`
	// IntegralLimit clamps the integral term to ±IntegralLimit. Zero disables the clamp.
	IntegralLimit float64 `json:"integral_limit" yaml:"integral_limit" mapstructure:"integral_limit"`
	// OutputLimit clamps the output to ±OutputLimit. Zero disables the clamp.
	OutputLimit float64 `json:"output_limit" yaml:"output_limit" mapstructure:"output_limit"`
	// Continuous treats the error as an angle in radians and takes the short way around.
	Continuous bool `json:"continuous" yaml:"continuous" mapstructure:"continuous"`
}

// PID is the standard implementation of a PID controller.
type PID struct {
	mu    sync.Mutex
	cfg   PIDConfig
	int   float64
	error float64
	first bool
}

// NewPID returns a controller for cfg.
func NewPID(cfg PIDConfig) (*PID, error) {
	if cfg.Kp == 0 && cfg.Ki == 0 && cfg.Kd == 0 {
		return nil, errors.New("pid should have at least one of kp, ki or kd")
	}
	if cfg.IntegralLimit < 0 || cfg.OutputLimit < 0 {
		return nil, errors.New("pid limits must not be negative")
	}
	return &PID{cfg: cfg, first: true}, nil
}

// Next returns the discrete step of the PID controller. dt is the time between two subsequent calls;
// a non-positive dt only applies the proportional term.
func (p *PID) Next(setPoint, measured float64, dt time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := setPoint - measured
	if p.cfg.Continuous {
		err = spatialmath.AngleDiff(setPoint, measured)
	}
	if !utils.IsFinite(err) {
		return 0
	}
	dtS := dt.Seconds()
	var deriv float64
	if dtS > 0 {
		p.int += p.cfg.Ki * err * dtS
		if p.cfg.IntegralLimit > 0 {
			p.int = utils.Clamp(p.int, -p.cfg.IntegralLimit, p.cfg.IntegralLimit)
		}
		if !p.first {
			deriv = (err - p.error) / dtS
		}
		p.first = false
	}
	p.error = err
	out := p.cfg.Kp*err + p.int + p.cfg.Kd*deriv
	if p.cfg.OutputLimit > 0 {
		out = utils.Clamp(out, -p.cfg.OutputLimit, p.cfg.OutputLimit)
	}
	return out
}

// Reset clears the integral and derivative history.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.int = 0
	p.error = 0
	p.first = true
}

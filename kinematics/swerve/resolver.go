package swerve

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// Resolver turns a whole-chassis velocity command into four module targets. The result always has
// |speed| <= MaxSpeed and each angle within 90° of the module's current angle. Resolve never fails:
// a non-finite command, or one so large that a wheel speed overflows, is treated as a stop.
type Resolver struct {
	kin      *Kinematics
	maxSpeed float64
	logger   logging.Logger

	invalidCommands atomic.Int64
}

// NewResolver returns a resolver that desaturates to maxSpeed. For a duty-cycle drive, pass 1.
func NewResolver(kin *Kinematics, maxSpeed float64, logger logging.Logger) (*Resolver, error) {
	if kin == nil {
		return nil, errors.New("resolver needs kinematics")
	}
	if !(maxSpeed > 0) || !utils.IsFinite(maxSpeed) {
		return nil, errors.Errorf("max speed must be positive and finite, got %v", maxSpeed)
	}
	return &Resolver{kin: kin, maxSpeed: maxSpeed, logger: logger}, nil
}

// MaxSpeed returns the desaturation limit.
func (r *Resolver) MaxSpeed() float64 {
	return r.maxSpeed
}

// InvalidCommands returns how many non-finite or overflowing commands have been replaced by a stop.
func (r *Resolver) InvalidCommands() int64 {
	return r.invalidCommands.Load()
}

// Resolve computes the module targets for cmd given the modules' current steering angles.
func (r *Resolver) Resolve(cmd spatialmath.ChassisVelocity, current [NumModules]float64) [NumModules]ModuleState {
	if !cmd.IsFinite() {
		r.invalidCommands.Inc()
		r.logger.Debugw("non-finite chassis command treated as stop", "command", cmd.String())
		cmd = spatialmath.ChassisVelocity{}
	}
	for i, a := range current {
		if !utils.IsFinite(a) {
			current[i] = 0
		}
	}

	states := r.kin.ModuleStates(cmd, current)
	for _, s := range states {
		if !utils.IsFinite(s.Speed) {
			r.invalidCommands.Inc()
			r.logger.Debugw("chassis command overflows wheel speeds, treated as stop", "command", cmd.String())
			states = r.kin.ModuleStates(spatialmath.ChassisVelocity{}, current)
			break
		}
	}
	Desaturate(states[:], r.maxSpeed)
	for i := range states {
		states[i] = Optimize(states[i], current[i])
	}
	return states
}

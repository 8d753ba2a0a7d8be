package swerve

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// holdSpeedEpsilon is the module speed below which a module keeps its current steering angle.
const holdSpeedEpsilon = 1e-9

// Kinematics maps between chassis motion and the four module states for a fixed geometry.
type Kinematics struct {
	geometries [NumModules]ModuleGeometry
	// forward maps (vx, vy, omega) to the stacked module velocity components (8×3).
	forward *mat.Dense
	// inverse is the least-squares pseudo-inverse of forward (3×8).
	inverse *mat.Dense
}

// NewKinematics builds the forward and inverse maps for the given module layout. The layout must
// have at least two distinct module offsets, otherwise rotation cannot be recovered.
func NewKinematics(geometries [NumModules]ModuleGeometry) (*Kinematics, error) {
	forward := mat.NewDense(2*NumModules, 3, nil)
	for i, g := range geometries {
		if !utils.IsFinite(g.Offset.X, g.Offset.Y) {
			return nil, errors.Errorf("module %s has a non-finite offset", Corners[i])
		}
		forward.SetRow(2*i, []float64{1, 0, -g.Offset.Y})
		forward.SetRow(2*i+1, []float64{0, 1, g.Offset.X})
	}

	var normal mat.Dense
	normal.Mul(forward.T(), forward)
	var normalInv mat.Dense
	if err := normalInv.Inverse(&normal); err != nil {
		return nil, errors.Wrap(err, "module layout is degenerate")
	}
	inverse := mat.NewDense(3, 2*NumModules, nil)
	inverse.Mul(&normalInv, forward.T())

	return &Kinematics{geometries: geometries, forward: forward, inverse: inverse}, nil
}

// Geometries returns the module layout.
func (k *Kinematics) Geometries() [NumModules]ModuleGeometry {
	return k.geometries
}

// ModuleStates converts a chassis velocity into one raw state per module. Any module whose required
// speed is zero keeps its current angle instead of snapping to 0 rad.
func (k *Kinematics) ModuleStates(v spatialmath.ChassisVelocity, current [NumModules]float64) [NumModules]ModuleState {
	var states [NumModules]ModuleState
	for i, g := range k.geometries {
		s := VelocityToModuleState(v, g)
		if math.Abs(s.Speed) < holdSpeedEpsilon {
			s = ModuleState{Speed: 0, Angle: spatialmath.NormalizeAngle(current[i])}
		}
		states[i] = s
	}
	return states
}

// ChassisVelocity recovers the chassis velocity that best explains the given module states, in the
// least-squares sense.
func (k *Kinematics) ChassisVelocity(states [NumModules]ModuleState) spatialmath.ChassisVelocity {
	var polar [NumModules]ModulePosition
	for i, s := range states {
		polar[i] = ModulePosition{Distance: s.Speed, Angle: s.Angle}
	}
	x := k.solve(polar)
	return spatialmath.ChassisVelocity{VX: x[0], VY: x[1], Omega: x[2]}
}

// Twist recovers the robot-frame pose change that best explains the given per-module distance deltas.
func (k *Kinematics) Twist(deltas [NumModules]ModulePosition) spatialmath.Twist2D {
	x := k.solve(deltas)
	return spatialmath.Twist2D{DX: x[0], DY: x[1], DTheta: x[2]}
}

func (k *Kinematics) solve(polar [NumModules]ModulePosition) [3]float64 {
	b := mat.NewVecDense(2*NumModules, nil)
	for i, p := range polar {
		sin, cos := math.Sincos(p.Angle)
		b.SetVec(2*i, p.Distance*cos)
		b.SetVec(2*i+1, p.Distance*sin)
	}
	var x mat.VecDense
	x.MulVec(k.inverse, b)
	return [3]float64{x.AtVec(0), x.AtVec(1), x.AtVec(2)}
}

// XLockStates returns zero-speed states with each module turned along its own offset, so the
// wheels form an X and resist being pushed.
func (k *Kinematics) XLockStates() [NumModules]ModuleState {
	var states [NumModules]ModuleState
	for i, g := range k.geometries {
		states[i] = ModuleState{Speed: 0, Angle: math.Atan2(g.Offset.Y, g.Offset.X)}
	}
	return states
}

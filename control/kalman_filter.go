package control

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swerve/utils"
)

// maxVarianceScale bounds each covariance diagonal entry at this multiple of its initial variance.
const maxVarianceScale = 400

// KalmanFilter tracks the covariance of a state whose components are uncorrelated, and computes the
// gain used to pull the state toward a measurement of the full state. The state itself is owned by
// the caller so that components such as headings can be wrapped on their own terms.
type KalmanFilter struct {
	n      int
	p      *mat.Dense
	q      []float64
	maxVar []float64
}

// NewKalmanFilter returns a filter whose initial covariance is diag(stateStd²). The covariance grows
// by diag(stateStd²) per second of prediction.
func NewKalmanFilter(stateStd []float64) (*KalmanFilter, error) {
	if len(stateStd) == 0 {
		return nil, errors.New("kalman filter needs at least one state")
	}
	q := make([]float64, len(stateStd))
	maxVar := make([]float64, len(stateStd))
	for i, s := range stateStd {
		if !(s > 0) || !utils.IsFinite(s) {
			return nil, errors.Errorf("state std dev %d must be positive and finite, got %v", i, s)
		}
		q[i] = s * s
		maxVar[i] = maxVarianceScale * q[i]
	}
	kf := &KalmanFilter{n: len(stateStd), q: q, maxVar: maxVar}
	kf.Reset()
	return kf, nil
}

// Reset restores the initial covariance.
func (kf *KalmanFilter) Reset() {
	kf.p = mat.NewDense(kf.n, kf.n, nil)
	for i, v := range kf.q {
		kf.p.Set(i, i, v)
	}
}

// Predict grows the covariance for dt seconds of dead reckoning.
func (kf *KalmanFilter) Predict(dt float64) {
	if !(dt > 0) {
		return
	}
	for i, v := range kf.q {
		kf.p.Set(i, i, min(kf.p.At(i, i)+v*dt, kf.maxVar[i]))
	}
}

// Correct computes K = P(P+R)⁻¹ for a measurement with per-component std devs measStd, applies
// P = (I-K)P and returns K·residual.
func (kf *KalmanFilter) Correct(residual, measStd []float64) ([]float64, error) {
	if len(residual) != kf.n || len(measStd) != kf.n {
		return nil, errors.Errorf("expected %d components, got residual %d and std dev %d", kf.n, len(residual), len(measStd))
	}
	r := mat.NewDense(kf.n, kf.n, nil)
	for i, s := range measStd {
		r.Set(i, i, s*s)
	}
	var s mat.Dense
	s.Add(kf.p, r)
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return nil, errors.Wrap(err, "innovation covariance is singular")
	}
	var k mat.Dense
	k.Mul(kf.p, &sInv)

	var ik mat.Dense
	ik.Sub(identity(kf.n), &k)
	var p mat.Dense
	p.Mul(&ik, kf.p)
	kf.p = &p

	var dx mat.VecDense
	dx.MulVec(&k, mat.NewVecDense(kf.n, append([]float64(nil), residual...)))
	return dx.RawVector().Data, nil
}

// Covariance returns the diagonal of P.
func (kf *KalmanFilter) Covariance() []float64 {
	out := make([]float64, kf.n)
	for i := range out {
		out[i] = kf.p.At(i, i)
	}
	return out
}

func identity(n int) *mat.DiagDense {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return mat.NewDiagDense(n, ones)
}

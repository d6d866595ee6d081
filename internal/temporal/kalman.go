package temporal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Constant velocity model with one frame per step:
// F = [1  0  1  0]
//     [0  1  0  1]
//     [0  0  1  0]
//     [0  0  0  1]
var (
	transition = mat.NewDense(4, 4, []float64{
		1, 0, 1, 0,
		0, 1, 0, 1,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	observation = mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	identity4 = mat.NewDiagDense(4, []float64{1, 1, 1, 1})
)

// kalman is a 2D constant velocity filter over (x, y, vx, vy).
type kalman struct {
	x *mat.VecDense
	p *mat.Dense
	q *mat.Dense

	measurementNoise float64
	maxInnovation    float64
	maxVelocity      float64
}

func newKalman(cfg Config, x, y, visibility float64) *kalman {
	r := measurementVariance(cfg.MeasurementNoise, visibility)
	return &kalman{
		x: mat.NewVecDense(4, []float64{x, y, 0, 0}),
		p: mat.NewDense(4, 4, []float64{
			r, 0, 0, 0,
			0, r, 0, 0,
			0, 0, cfg.InitialVelocityVariance, 0,
			0, 0, 0, cfg.InitialVelocityVariance,
		}),
		q: mat.NewDense(4, 4, []float64{
			cfg.ProcessNoisePos, 0, 0, 0,
			0, cfg.ProcessNoisePos, 0, 0,
			0, 0, cfg.ProcessNoiseVel, 0,
			0, 0, 0, cfg.ProcessNoiseVel,
		}),
		measurementNoise: cfg.MeasurementNoise,
		maxInnovation:    cfg.MaxInnovation,
		maxVelocity:      cfg.MaxVelocity,
	}
}

// measurementVariance scales noise inversely with visibility.
func measurementVariance(noise, visibility float64) float64 {
	return noise / math.Max(visibility, 0.05)
}

func (k *kalman) position() (float64, float64) {
	return k.x.AtVec(0), k.x.AtVec(1)
}

func (k *kalman) velocity() (float64, float64) {
	return k.x.AtVec(2), k.x.AtVec(3)
}

// snapshot is a deep copy used to roll back a rejected prediction.
type snapshot struct {
	x *mat.VecDense
	p *mat.Dense
}

func (k *kalman) save() snapshot {
	return snapshot{x: mat.VecDenseCopyOf(k.x), p: mat.DenseCopyOf(k.p)}
}

func (k *kalman) restore(s snapshot) {
	k.x = s.x
	k.p = s.p
}

// predict propagates state and covariance: x' = F x, P' = F P F^T + Q.
// Returns false if the state became non-finite.
func (k *kalman) predict() bool {
	var x mat.VecDense
	x.MulVec(transition, k.x)

	var fp, p mat.Dense
	fp.Mul(transition, k.p)
	p.Mul(&fp, transition.T())
	p.Add(&p, k.q)

	k.x = &x
	k.p = &p

	k.clampVelocity()
	return k.finite()
}

// update folds in a measurement whose noise shrinks as visibility grows.
// The innovation is clamped per axis before it is applied.
func (k *kalman) update(zx, zy, visibility float64) bool {
	var hx mat.VecDense
	hx.MulVec(observation, k.x)

	y := mat.NewVecDense(2, []float64{
		clampAbs(zx-hx.AtVec(0), k.maxInnovation),
		clampAbs(zy-hx.AtVec(1), k.maxInnovation),
	})

	// S = H P H^T + R
	var pht, s mat.Dense
	pht.Mul(k.p, observation.T())
	s.Mul(observation, &pht)
	r := measurementVariance(k.measurementNoise, visibility)
	s.Set(0, 0, s.At(0, 0)+r)
	s.Set(1, 1, s.At(1, 1)+r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		// singular innovation covariance: skip the update
		return k.finite()
	}

	// K = P H^T S^-1
	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&gain, y)
	var x mat.VecDense
	x.AddVec(k.x, &ky)

	// P' = (I - K H) P
	var kh, ikh, p mat.Dense
	kh.Mul(&gain, observation)
	ikh.Sub(identity4, &kh)
	p.Mul(&ikh, k.p)

	k.x = &x
	k.p = &p

	k.clampVelocity()
	return k.finite()
}

// clampVelocity limits each velocity component to the configured maximum.
func (k *kalman) clampVelocity() {
	k.x.SetVec(2, clampAbs(k.x.AtVec(2), k.maxVelocity))
	k.x.SetVec(3, clampAbs(k.x.AtVec(3), k.maxVelocity))
}

// finite returns true if every state element and covariance diagonal entry
// is finite.
func (k *kalman) finite() bool {
	for i := 0; i < 4; i++ {
		if !isFinite(k.x.AtVec(i)) || !isFinite(k.p.At(i, i)) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampAbs(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

package psf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged is returned when the profile fit stops without meeting its
// convergence criteria.
var ErrNotConverged = errors.New("profile fit did not converge")

// Gaussian is an axis-aligned 2-D Gaussian profile.
type Gaussian struct {
	Amplitude float64
	X0        float64
	Y0        float64
	SigmaX    float64
	SigmaY    float64
}

// Eval returns the profile value at (x, y).
func (g Gaussian) Eval(x, y float64) float64 {
	dx := (x - g.X0) / g.SigmaX
	dy := (y - g.Y0) / g.SigmaY
	return g.Amplitude * math.Exp(-(dx*dx+dy*dy)/2)
}

func (g Gaussian) params() []float64 {
	return []float64{g.Amplitude, g.X0, g.Y0, g.SigmaX, g.SigmaY}
}

func gaussianFrom(p []float64) Gaussian {
	return Gaussian{Amplitude: p[0], X0: p[1], Y0: p[2], SigmaX: p[3], SigmaY: p[4]}
}

// gradient writes the partial derivatives of the profile at (x, y) into grad.
func (g Gaussian) gradient(x, y float64, grad []float64) {
	dx, dy := x-g.X0, y-g.Y0
	sx2, sy2 := g.SigmaX*g.SigmaX, g.SigmaY*g.SigmaY
	e := math.Exp(-(dx*dx/sx2 + dy*dy/sy2) / 2)
	ae := g.Amplitude * e

	grad[0] = e
	grad[1] = ae * dx / sx2
	grad[2] = ae * dy / sy2
	grad[3] = ae * dx * dx / (sx2 * g.SigmaX)
	grad[4] = ae * dy * dy / (sy2 * g.SigmaY)
}

// FitOptions bounds the Levenberg-Marquardt iteration.
type FitOptions struct {
	MaxIterations int
	Tolerance     float64
}

// FitResult is the outcome of a profile fit.
type FitResult struct {
	Gaussian   Gaussian
	Iterations int
	Cost       float64 // Sum of squared residuals
}

// FitGaussian fits an axis-aligned Gaussian to the samples z at (x, y) by
// damped least squares starting from seed. It returns ErrNotConverged, along
// with the last iterate, when the iteration cap is reached or the solution is
// not finite.
func FitGaussian(x, y, z []float64, seed Gaussian, opts FitOptions) (FitResult, error) {
	const n = 5
	m := len(z)
	if len(x) != m || len(y) != m {
		return FitResult{}, fmt.Errorf("length mismatch: x=%d y=%d z=%d", len(x), len(y), m)
	}
	if m < n {
		return FitResult{Gaussian: seed}, fmt.Errorf("%w: %d samples for %d parameters", ErrNotConverged, m, n)
	}

	p := seed.params()
	jac := mat.NewDense(m, n, nil)
	res := mat.NewVecDense(m, nil)
	grad := make([]float64, n)

	evaluate := func(p []float64, withJacobian bool) float64 {
		g := gaussianFrom(p)
		cost := 0.0
		for k := 0; k < m; k++ {
			r := g.Eval(x[k], y[k]) - z[k]
			res.SetVec(k, r)
			cost += r * r
			if withJacobian {
				g.gradient(x[k], y[k], grad)
				jac.SetRow(k, grad)
			}
		}
		return cost
	}

	cost := evaluate(p, true)
	lambda, nu := 1e-3, 2.0

	var (
		jtj  mat.SymDense
		jtr  mat.VecDense
		chol mat.Cholesky
		step mat.VecDense
	)
	trial := make([]float64, n)
	keepRes := mat.NewVecDense(m, nil)

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		jtj.Reset()
		jtj.SymOuterK(1, jac.T())
		jtr.MulVec(jac.T(), res)

		if mat.Norm(&jtr, 2) < opts.Tolerance*math.Max(cost, 1e-300) {
			return finish(p, iter, cost)
		}

		improved := false
		for !improved {
			a := mat.NewSymDense(n, nil)
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				if d <= 0 {
					d = 1
				}
				a.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}

			if !chol.Factorize(a) {
				lambda *= nu
				nu *= 2
				if lambda > 1e16 {
					return finish(p, iter, cost)
				}
				continue
			}
			if err := chol.SolveVecTo(&step, &jtr); err != nil {
				var cond mat.Condition
				if !errors.As(err, &cond) {
					return FitResult{Gaussian: gaussianFrom(p), Iterations: iter, Cost: cost},
						fmt.Errorf("%w: %v", ErrNotConverged, err)
				}
			}

			for i := range trial {
				trial[i] = p[i] - step.AtVec(i)
			}
			keepRes.CopyVec(res)
			trialCost := evaluate(trial, false)

			if trialCost < cost && !math.IsNaN(trialCost) {
				improvement := (cost - trialCost) / cost
				copy(p, trial)
				cost = evaluate(p, true)
				lambda = math.Max(lambda/3, 1e-15)
				nu = 2
				improved = true

				if improvement < opts.Tolerance {
					return finish(p, iter, cost)
				}
				continue
			}

			res.CopyVec(keepRes)
			lambda *= nu
			nu *= 2
			if lambda > 1e16 {
				// No downhill step exists: p is a minimum to working precision.
				return finish(p, iter, cost)
			}
		}
	}

	return FitResult{Gaussian: gaussianFrom(p), Iterations: opts.MaxIterations, Cost: cost},
		fmt.Errorf("%w: iteration cap %d reached", ErrNotConverged, opts.MaxIterations)
}

func finish(p []float64, iter int, cost float64) (FitResult, error) {
	g := gaussianFrom(p)
	g.SigmaX, g.SigmaY = math.Abs(g.SigmaX), math.Abs(g.SigmaY)

	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FitResult{Gaussian: g, Iterations: iter, Cost: cost},
				fmt.Errorf("%w: non-finite parameters", ErrNotConverged)
		}
	}
	if g.SigmaX == 0 || g.SigmaY == 0 {
		return FitResult{Gaussian: g, Iterations: iter, Cost: cost},
			fmt.Errorf("%w: collapsed width", ErrNotConverged)
	}
	return FitResult{Gaussian: g, Iterations: iter, Cost: cost}, nil
}

package calibration

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/aprep/backend/internal/models"
)

// Floor/ceiling for probabilities inside the log-likelihood, avoiding log(0).
const probEpsilon = 1e-10

type fitResult struct {
	A float64
	B float64
}

// fit2PL fits item parameters by maximizing the Bernoulli log-likelihood of
// the observed outcomes (1 = correct) under the 2PL model, warm-started from
// (startA, startB). The box constraints a ∈ [0.1, 3.0], b ∈ [-4, 4] are
// enforced by a sigmoid reparameterization so L-BFGS can run unconstrained.
//
// The fit is capped by maxIter major iterations and a wall-clock timeout.
// An early stop that improved on the warm start is accepted; a stop with no
// progress returns an error so the caller can retain the previous parameters.
func fit2PL(thetas, outcomes []float64, startA, startB float64, maxIter int, timeout time.Duration) (fitResult, error) {
	if len(thetas) == 0 || len(thetas) != len(outcomes) {
		return fitResult{}, fmt.Errorf("fit2PL: %d abilities vs %d outcomes", len(thetas), len(outcomes))
	}

	const (
		aMin   = models.MinDiscrimination
		aRange = models.MaxDiscrimination - models.MinDiscrimination
		bMin   = models.MinDifficulty
		bRange = models.MaxDifficulty - models.MinDifficulty
	)

	toParams := func(x []float64) (a, b float64) {
		return aMin + aRange*sigmoid(x[0]), bMin + bRange*sigmoid(x[1])
	}

	negLogLikelihood := func(x []float64) float64 {
		a, b := toParams(x)
		var ll float64
		for i, theta := range thetas {
			p := clip(Probability(theta, a, b), probEpsilon, 1.0-probEpsilon)
			ll += outcomes[i]*math.Log(p) + (1.0-outcomes[i])*math.Log(1.0-p)
		}
		return -ll
	}

	grad := func(g, x []float64) {
		a, b := toParams(x)
		var dA, dB float64
		for i, theta := range thetas {
			resid := outcomes[i] - Probability(theta, a, b)
			dA += resid * (theta - b)
			dB -= resid * a
		}
		// Chain rule through the sigmoid reparameterization, negated for
		// minimization.
		sa := sigmoid(x[0])
		sb := sigmoid(x[1])
		g[0] = -dA * aRange * sa * (1.0 - sa)
		g[1] = -dB * bRange * sb * (1.0 - sb)
	}

	problem := optimize.Problem{
		Func: negLogLikelihood,
		Grad: grad,
	}

	// Warm start, pulled slightly inside the box so the inverse transform
	// stays finite.
	x0 := []float64{
		logit(clip((startA-aMin)/aRange, 1e-3, 1.0-1e-3)),
		logit(clip((startB-bMin)/bRange, 1e-3, 1.0-1e-3)),
	}

	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Runtime:         timeout,
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if result == nil {
		return fitResult{}, fmt.Errorf("minimize: %w", err)
	}

	converged := false
	switch result.Status {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		converged = true
	}

	// A cleanly separable batch puts the likelihood maximum on the box
	// boundary, which the reparameterization maps to infinite x. The line
	// search aborts out there because the sigmoid gradient vanishes, but the
	// point it stopped at is the right answer. So an early stop is accepted
	// whenever the stopping point improves on the warm start; only stops
	// that made no progress count as non-convergence.
	if !converged && !(negLogLikelihood(result.X) < negLogLikelihood(x0)) {
		return fitResult{}, fmt.Errorf("optimizer stopped without converging: %v", result.Status)
	}

	a, b := toParams(result.X)
	if math.IsNaN(a) || math.IsNaN(b) {
		return fitResult{}, fmt.Errorf("optimizer produced non-finite parameters")
	}

	return fitResult{A: a, B: b}, nil
}

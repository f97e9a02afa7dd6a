package calibration

import "math"

// maxExponent bounds the logistic exponent so the 2PL curve never produces
// Inf/NaN and the returned probability stays strictly inside (0, 1).
const maxExponent = 35.0

// Probability returns the 2PL probability of a correct response:
//
//	P(correct | θ, a, b) = 1 / (1 + exp(-a(θ - b)))
//
// where θ is student ability, a is discrimination, and b is difficulty.
// Monotonically increasing in θ for a > 0, and exactly 0.5 at θ = b.
func Probability(theta, a, b float64) float64 {
	x := a * (theta - b)
	if x > maxExponent {
		x = maxExponent
	}
	if x < -maxExponent {
		x = -maxExponent
	}
	return 1.0 / (1.0 + math.Exp(-x))
}

// ProbabilityVec is the vectorized form of Probability: one probability per
// ability in thetas, same order.
func ProbabilityVec(thetas []float64, a, b float64) []float64 {
	probs := make([]float64, len(thetas))
	for i, theta := range thetas {
		probs[i] = Probability(theta, a, b)
	}
	return probs
}

// sigmoid is the standard logistic function with the same overflow clamp as
// Probability.
func sigmoid(x float64) float64 {
	return Probability(x, 1.0, 0.0)
}

// logit is the inverse of sigmoid. The argument must be strictly inside
// (0, 1).
func logit(p float64) float64 {
	return math.Log(p / (1.0 - p))
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

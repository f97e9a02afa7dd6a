package calibration

import (
	"math"
	"testing"
)

func TestProbabilityAtDifficulty(t *testing.T) {
	// P is exactly 0.5 at theta == b, for any positive discrimination.
	for _, a := range []float64{0.1, 0.5, 1.0, 2.5, 3.0} {
		for _, b := range []float64{-4.0, -1.3, 0.0, 2.7, 4.0} {
			if got := Probability(b, a, b); got != 0.5 {
				t.Errorf("Probability(%f, %f, %f) = %f, want exactly 0.5", b, a, b, got)
			}
		}
	}
}

func TestProbabilityMonotonicInTheta(t *testing.T) {
	prev := Probability(-6.0, 1.5, 0.5)
	for theta := -5.5; theta <= 6.0; theta += 0.5 {
		got := Probability(theta, 1.5, 0.5)
		if got <= prev {
			t.Errorf("Probability not strictly increasing at theta=%f: %f <= %f", theta, got, prev)
		}
		prev = got
	}
}

func TestProbabilityBounded(t *testing.T) {
	// Extreme inputs must clamp, never overflow to 0, 1, Inf, or NaN.
	tests := []struct {
		theta, a, b float64
	}{
		{1e9, 3.0, -4.0},
		{-1e9, 3.0, 4.0},
		{400.0, 2.0, 0.0},
		{-400.0, 2.0, 0.0},
		{0.0, 0.1, 4.0},
	}

	for _, tt := range tests {
		got := Probability(tt.theta, tt.a, tt.b)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("Probability(%g, %g, %g) = %f, want finite", tt.theta, tt.a, tt.b, got)
		}
		if got <= 0.0 || got >= 1.0 {
			t.Errorf("Probability(%g, %g, %g) = %v, want strictly inside (0, 1)", tt.theta, tt.a, tt.b, got)
		}
	}
}

func TestProbabilityKnownValues(t *testing.T) {
	// 1PL point: theta-b = 1, a = 1 → sigmoid(1) ≈ 0.7311
	got := Probability(1.0, 1.0, 0.0)
	if math.Abs(got-0.7311) > 0.001 {
		t.Errorf("Probability(1, 1, 0) = %f, want ~0.7311", got)
	}

	// Higher discrimination steepens the curve.
	shallow := Probability(1.0, 0.5, 0.0)
	steep := Probability(1.0, 2.5, 0.0)
	if steep <= shallow {
		t.Errorf("steeper curve should give higher p above b: %f <= %f", steep, shallow)
	}
}

func TestProbabilityVec(t *testing.T) {
	thetas := []float64{-2.0, -0.5, 0.0, 0.5, 2.0}
	probs := ProbabilityVec(thetas, 1.2, 0.3)

	if len(probs) != len(thetas) {
		t.Fatalf("ProbabilityVec returned %d values, want %d", len(probs), len(thetas))
	}
	for i, theta := range thetas {
		want := Probability(theta, 1.2, 0.3)
		if probs[i] != want {
			t.Errorf("ProbabilityVec[%d] = %f, want %f (scalar result)", i, probs[i], want)
		}
	}

	if got := ProbabilityVec(nil, 1.0, 0.0); len(got) != 0 {
		t.Errorf("ProbabilityVec(nil) returned %d values, want 0", len(got))
	}
}

func TestLogitSigmoidRoundTrip(t *testing.T) {
	for _, p := range []float64{0.05, 0.25, 0.5, 0.75, 0.95} {
		got := sigmoid(logit(p))
		if math.Abs(got-p) > 1e-12 {
			t.Errorf("sigmoid(logit(%f)) = %f, want %f", p, got, p)
		}
	}
}

package wbgt

import (
	"fmt"
	"math"
)

// Intensity is a labor intensity class; each class has its own
// exposure-response curve.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Intensities in reporting order.
var Intensities = []Intensity{IntensityLow, IntensityMedium, IntensityHigh}

// Exposure-response parameters: loss = 0.9 - 0.9 / (1 + (wbgt/alpha)^beta).
// The curve saturates at a 90% loss of work capacity.
var lossParams = map[Intensity]struct{ alpha, beta float64 }{
	IntensityLow:    {34.64, 22.72},
	IntensityMedium: {32.93, 17.81},
	IntensityHigh:   {30.94, 16.64},
}

// ProductivityLoss returns the fraction of work capacity lost at the given
// WBGT (degC) for a labor intensity class. NaN input propagates.
func ProductivityLoss(wbgtC float64, intensity Intensity) (float64, error) {
	p, ok := lossParams[intensity]
	if !ok {
		return 0, fmt.Errorf("wbgt: unknown labor intensity %q", intensity)
	}
	if math.IsNaN(wbgtC) {
		return math.NaN(), nil
	}
	if wbgtC <= 0 {
		return 0, nil
	}
	return 0.9 - 0.9/(1+math.Pow(wbgtC/p.alpha, p.beta)), nil
}

// UsesOutdoor reports whether the intensity class is evaluated against the
// outdoor WBGT. Low and medium intensity labor is assumed indoors.
func (i Intensity) UsesOutdoor() bool {
	return i == IntensityHigh
}

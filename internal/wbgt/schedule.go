package wbgt

// HourWeights splits a working day across the three daily WBGT metrics:
// Min covers the early hours near the daily minimum, Max the afternoon
// peak, Half the hours in between. Weights sum to 1.
type HourWeights struct {
	Min  float64
	Max  float64
	Half float64
}

// BaselineWeights is the unadjusted working day, with a quarter of the
// hours at each temperature extreme and half in between.
var BaselineWeights = HourWeights{Min: 0.25, Max: 0.25, Half: 0.5}

// ShiftedWeights returns the split for a working day that starts at the
// region's sunrise hour. An earlier sunrise moves hours off the afternoon
// peak and onto the cool morning; sunrise hours outside 4 through 7 keep
// the baseline split.
func ShiftedWeights(sunriseHour int) HourWeights {
	switch sunriseHour {
	case 4:
		return HourWeights{Min: 0.75, Max: 0, Half: 0.25}
	case 5:
		return HourWeights{Min: 0.625, Max: 0, Half: 0.375}
	case 6:
		return HourWeights{Min: 0.5, Max: 0, Half: 0.5}
	case 7:
		return HourWeights{Min: 0.375, Max: 0.125, Half: 0.5}
	default:
		return BaselineWeights
	}
}

// Combine collapses the per-metric losses into one working-day loss.
// NaN in any metric propagates, zero-weighted ones included.
func (w HourWeights) Combine(minLoss, maxLoss, halfLoss float64) float64 {
	return w.Min*minLoss + w.Max*maxLoss + w.Half*halfLoss
}

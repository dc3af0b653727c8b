// Package wbgt implements wet bulb globe temperature estimates and the
// heat exposure-response functions built on them. Indoor values follow the
// Stull (2011) wet bulb approximation; outdoor values follow Liljegren's
// physically based model.
package wbgt

import "math"

// WetBulb approximates the wet bulb temperature from air temperature (degC)
// and relative humidity (percent), per Stull (2011).
func WetBulb(tempC, rh float64) float64 {
	return tempC*math.Atan(0.151977*math.Sqrt(rh+8.313659)) +
		math.Atan(tempC+rh) -
		math.Atan(rh-1.676331) +
		0.00391838*math.Pow(rh, 1.5)*math.Atan(0.023101*rh) -
		4.686035
}

// Indoor holds the daily indoor WBGT estimates in degC.
type Indoor struct {
	Min  float64
	Max  float64
	Half float64
}

// IndoorWBGT derives indoor WBGT from daily mean and maximum temperature
// (degC) and relative humidity (percent). Indoors there is no radiant or
// wind term, so WBGT reduces to 0.7*WBT + 0.3*T.
func IndoorWBGT(tasC, tasmaxC, rh float64) Indoor {
	min := 0.7*WetBulb(tasC, rh) + 0.3*tasC
	max := 0.7*WetBulb(tasmaxC, rh) + 0.3*tasmaxC
	return Indoor{
		Min:  min,
		Max:  max,
		Half: (min + max) / 2,
	}
}

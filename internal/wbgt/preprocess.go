package wbgt

import (
	"math"

	"github.com/chenyuyou/shifting-work-hours/internal/grid"
)

// Preprocess sanitizes raw model output in place before any index is
// computed. Model files occasionally carry physically impossible values
// (negative wind, temperatures far outside the troposphere); these are
// clamped or voided so one bad cell cannot poison a year of indices.
//
// Rules per variable:
//
//	sfcWind, rsds  negative -> 0
//	tas, tasmax    outside 180..330 K -> NaN
//	hurs           outside 0..100 % -> NaN
//
// Infinities become NaN for every variable.
func Preprocess(d *grid.Dataset) {
	for vi := range d.Vars {
		v := &d.Vars[vi]
		for i, val := range v.Data {
			if math.IsInf(val, 0) {
				v.Data[i] = math.NaN()
				continue
			}
			switch v.Name {
			case "sfcWind", "rsds":
				if val < 0 {
					v.Data[i] = 0
				}
			case "tas", "tasmax":
				if val < 180 || val > 330 {
					v.Data[i] = math.NaN()
				}
			case "hurs":
				if val < 0 || val > 100 {
					v.Data[i] = math.NaN()
				}
			}
		}
	}
}

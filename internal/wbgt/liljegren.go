package wbgt

import "math"

// Physical constants and instrument geometry from Liljegren et al. (2008).
const (
	solarConst = 1367.0
	stefanB    = 5.6696e-8
	cp         = 1003.5
	mAir       = 28.97
	mH2O       = 18.015
	rGas       = 8314.34
	rAir       = rGas / mAir
	ratio      = cp * mAir / mH2O

	emisWick = 0.95
	albWick  = 0.4
	dWick    = 0.007
	lWick    = 0.0254

	emisGlobe = 0.95
	albGlobe  = 0.05
	dGlobe    = 0.0508

	emisSfc = 0.999
	albSfc  = 0.45

	czaMin       = 0.00873
	normsolarMax = 0.85
	minSpeed     = 0.13

	convergence = 0.1
	maxIter     = 10

	defaultPressure = 1010.0 // hPa
)

var prandtl = cp / (cp + 1.25*rAir)

// esat is the saturation vapor pressure (hPa) over liquid water, with the
// Buck correction factor.
func esat(tk float64) float64 {
	y := (tk - 273.15) / (tk - 32.18)
	return 1.004 * 6.1121 * math.Exp(17.502*y)
}

// dewPoint inverts esat: the temperature (K) at which e saturates.
func dewPoint(e float64) float64 {
	z := math.Log(e / (6.1121 * 1.004))
	return 273.15 + 240.97*z/(17.502-z)
}

// viscosity of air (kg/(m s)) by kinetic theory.
func viscosity(tair float64) float64 {
	const sigma = 3.617
	const epsKappa = 97.0
	tr := tair / epsKappa
	omega := (tr-2.9)/0.4*(-0.034) + 1.048
	return 2.6693e-6 * math.Sqrt(mAir*tair) / (sigma * sigma * omega)
}

func thermalCond(tair float64) float64 {
	return (cp + 1.25*rAir) * viscosity(tair)
}

// diffusivity of water vapor in air (m2/s).
func diffusivity(tair, pair float64) float64 {
	pcrit13 := math.Pow(36.4*218, 1.0/3.0)
	tcrit512 := math.Pow(132*647.3, 5.0/12.0)
	tcrit12 := math.Sqrt(132 * 647.3)
	mmix := math.Sqrt(1/mAir + 1/mH2O)
	patm := pair / 1013.25
	return 3.64e-4 * math.Pow(tair/tcrit12, 2.334) * pcrit13 * tcrit512 * mmix / patm * 1e-4
}

// evap is the latent heat of vaporization (J/kg).
func evap(tair float64) float64 {
	return (313.15-tair)/30.0*(-71100.0) + 2.4073e6
}

// emisAtm is the clear-sky atmospheric emissivity.
func emisAtm(tair, rh float64) float64 {
	e := rh * esat(tair)
	return 0.575 * math.Pow(e, 0.143)
}

// hCylinderInAir is the convective heat transfer coefficient for a
// cylinder (the wick) in crossflow.
func hCylinderInAir(diameter, tair, pair, speed float64) float64 {
	const a, b, c = 0.56, 0.281, 0.4
	density := pair * 100.0 / (rAir * tair)
	re := math.Max(speed, minSpeed) * density * diameter / viscosity(tair)
	nu := b * math.Pow(re, 1.0-c) * math.Pow(prandtl, 1.0-a)
	return nu * thermalCond(tair) / diameter
}

// hSphereInAir is the convective coefficient for the globe.
func hSphereInAir(diameter, tair, pair, speed float64) float64 {
	density := pair * 100.0 / (rAir * tair)
	re := math.Max(speed, minSpeed) * density * diameter / viscosity(tair)
	nu := 2.0 + 0.6*math.Sqrt(re)*math.Pow(prandtl, 0.3333)
	return nu * thermalCond(tair) / diameter
}

// naturalWetBulb iterates the wick energy balance to the natural wet bulb
// temperature (degC). Inputs: air temperature (K), relative humidity
// (fraction), pressure (hPa), wind speed (m/s), surface solar irradiance
// (W/m2), direct fraction, and cosine of the solar zenith angle.
func naturalWetBulb(tair, rh, pair, speed, solar, fdir, cza float64) float64 {
	const a = 0.56
	tsfc := tair
	sza := math.Acos(cza)
	eair := rh * esat(tair)
	prev := dewPoint(eair)

	for i := 0; i < maxIter; i++ {
		tref := 0.5 * (prev + tair)
		h := hCylinderInAir(dWick, tref, pair, speed)
		fatm := stefanB*emisWick*
			(0.5*(emisAtm(tair, rh)*math.Pow(tair, 4)+emisSfc*math.Pow(tsfc, 4))-math.Pow(prev, 4)) +
			(1.0-albWick)*solar*
				((1.0-fdir)*(1.0+0.25*dWick/lWick)+
					fdir*(math.Tan(sza)/math.Pi+0.25*dWick/lWick)+albSfc)
		ewick := esat(prev)
		density := pair * 100.0 / (rAir * tref)
		sc := viscosity(tref) / (density * diffusivity(tref, pair))
		next := tair - evap(tref)/ratio*(ewick-eair)/(pair-ewick)*
			math.Pow(prandtl/sc, a) + fatm/h

		if math.Abs(next-prev) < convergence {
			return math.Max(next-273.15, -100)
		}
		prev = 0.9*prev + 0.1*next
	}
	return math.Max(prev-273.15, -100)
}

// globeTemp iterates the globe energy balance to the black globe
// temperature (degC).
func globeTemp(tair, rh, pair, speed, solar, fdir, cza float64) float64 {
	tsfc := tair
	prev := tair

	for i := 0; i < maxIter; i++ {
		tref := 0.5 * (prev + tair)
		h := hSphereInAir(dGlobe, tref, pair, speed)
		next := math.Pow(
			0.5*(emisAtm(tair, rh)*math.Pow(tair, 4)+emisSfc*math.Pow(tsfc, 4))-
				h/(stefanB*emisGlobe)*(prev-tair)+
				solar/(2.0*stefanB*emisGlobe)*(1.0-albGlobe)*
					(fdir*(1.0/(2.0*cza)-1.0)+1.0+albSfc),
			0.25)

		if math.Abs(next-prev) < convergence {
			return math.Max(next-273.15, -100)
		}
		prev = 0.9*prev + 0.1*next
	}
	return math.Max(prev-273.15, -100)
}

// cosZenith estimates the cosine of the local-noon solar zenith angle from
// day of year and position, via the Spencer Fourier series for declination
// and the equation of time.
func cosZenith(dayOfYear int, latDeg, lonDeg float64) float64 {
	lat := latDeg * math.Pi / 180
	gamma := 2 * math.Pi * float64(dayOfYear-1) / 365

	decl := 0.006918 - 0.399912*math.Cos(gamma) + 0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) + 0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) + 0.001480*math.Sin(3*gamma)

	eqTime := 229.18 * (0.000075 + 0.001868*math.Cos(gamma) - 0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) - 0.040849*math.Sin(2*gamma))

	timeOffset := eqTime + 4*lonDeg
	hourAngle := timeOffset / 60 * 15 * math.Pi / 180

	cz := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(hourAngle)
	return math.Max(-1, math.Min(1, cz))
}

// solarParameters splits measured irradiance into the effective surface
// irradiance, cosine zenith, and direct-beam fraction used by the energy
// balances.
func solarParameters(dayOfYear int, latDeg, lonDeg, solar float64) (adjSolar, cza, fdir float64) {
	cza = cosZenith(dayOfYear, latDeg, lonDeg)

	toa := solarConst * math.Max(0, cza)
	if cza < czaMin {
		toa = 0
	}
	if toa <= 0 {
		return 0, cza, 0
	}

	normsolar := math.Min(solar/toa, normsolarMax)
	adjSolar = normsolar * toa
	if normsolar > 0 {
		fdir = math.Exp(3.0 - 1.34*normsolar - 1.65/normsolar)
		fdir = math.Max(0, math.Min(0.9, fdir))
	}
	return adjSolar, cza, fdir
}

// Outdoor holds the daily outdoor WBGT estimates (degC) and the wet bulb
// and globe components for the daily-mean temperature.
type Outdoor struct {
	Min  float64
	Max  float64
	Half float64
	Tnwb float64
	Tg   float64
}

// OutdoorWBGT computes outdoor WBGT from daily mean and maximum air
// temperature (K), relative humidity (percent), wind speed (m/s), and
// shortwave irradiance (W/m2), per Liljegren's model at standard pressure:
// WBGT = 0.7*Tnwb + 0.2*Tg + 0.1*Ta.
func OutdoorWBGT(tasK, tasmaxK, hurs, sfcWind, rsds float64, dayOfYear int, latDeg, lonDeg float64) Outdoor {
	solar, cza, fdir := solarParameters(dayOfYear, latDeg, lonDeg, rsds)
	rh := hurs / 100

	single := func(tk float64) (float64, float64, float64) {
		tnwb := naturalWetBulb(tk, rh, defaultPressure, sfcWind, solar, fdir, cza)
		tg := globeTemp(tk, rh, defaultPressure, sfcWind, solar, fdir, cza)
		return 0.7*tnwb + 0.2*tg + 0.1*(tk-273.15), tnwb, tg
	}

	min, tnwb, tg := single(tasK)
	max, _, _ := single(tasmaxK)
	return Outdoor{
		Min:  min,
		Max:  max,
		Half: (min + max) / 2,
		Tnwb: tnwb,
		Tg:   tg,
	}
}

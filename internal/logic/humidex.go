package logic

import "math"

// Magnus approximation constants for the dew point.
const (
	magnusA = 17.27
	magnusB = 237.7
)

const kelvinOffset = 273.15

// DewPoint returns the dew point in centigrade. Humidity is clamped to
// [0, 100]; at 0% the dew point is undefined and NaN is returned.
func DewPoint(tempC, humidityPct float64) float64 {
	h := clampHumidity(humidityPct)
	alpha := (magnusA*tempC)/(magnusB+tempC) + math.Log(h/100.0)
	return (magnusB * alpha) / (magnusA - alpha)
}

// Humidex returns the perceived temperature in centigrade for an air
// temperature and a relative humidity percentage.
//
// The result is never below tempC. At 0% humidity the humidex equals the air
// temperature. The dew point step is not guarded against its singularity;
// callers must check the result with math.IsNaN / math.IsInf.
func Humidex(tempC, humidityPct float64) float64 {
	h := clampHumidity(humidityPct)
	if h == 0 {
		return tempC
	}

	dewK := DewPoint(tempC, h) + kelvinOffset
	tempK := tempC + kelvinOffset

	vapor := 6.11 * math.Exp(5417.7530*((1/kelvinOffset)-(1/dewK)))
	humidex := tempK + (0.5555 * (vapor - 10.0)) - kelvinOffset

	if humidex < tempC {
		return tempC
	}
	return humidex
}

func clampHumidity(h float64) float64 {
	return math.Max(0, math.Min(h, 100))
}

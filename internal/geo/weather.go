package geo

import "math"

// DewPointF computes dew point in Fahrenheit from temperature (F) and
// relative humidity (0-100), via the Magnus formula (§4.5's weather
// decode requires this whenever both fields are present).
func DewPointF(tempF float64, humidity int) (float64, bool) {
	if humidity <= 0 || humidity > 100 {
		return 0, false
	}
	tempC := (tempF - 32) * 5.0 / 9.0
	const a, b = 17.27, 237.3
	alpha := (a*tempC)/(b+tempC) + math.Log(float64(humidity)/100.0)
	dewC := (b * alpha) / (a - alpha)
	return dewC*9.0/5.0 + 32, true
}

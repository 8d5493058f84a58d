package climate

import "math"

// NOAA heat index computation. Constants are the Rothfusz regression
// coefficients published by the National Weather Service; the regression
// works in Fahrenheit, so conversion happens at the edges.
const (
	regressionThresholdF = 80.0

	lowHumidityMax  = 13.0
	lowHumidityTMin = 80.0
	lowHumidityTMax = 112.0

	highHumidityMin  = 85.0
	highHumidityTMin = 80.0
	highHumidityTMax = 87.0
)

func celsiusToFahrenheit(c float64) float64 { return c*9.0/5.0 + 32.0 }
func fahrenheitToCelsius(f float64) float64 { return (f - 32.0) * 5.0 / 9.0 }

// ApparentTemperature computes the heat index for a temperature (°C) and
// relative humidity (%), returning °C.
//
// The simplified Steadman formula is averaged with the raw temperature
// first; only when that average reaches 80°F is the full Rothfusz
// regression applied, including the low-humidity and high-humidity
// adjustment terms in their published validity ranges.
func ApparentTemperature(tempC, humidity float64) float64 {
	t := celsiusToFahrenheit(tempC)
	rh := humidity

	simple := 0.5 * (t + 61.0 + (t-68.0)*1.2 + rh*0.094)
	hi := (simple + t) / 2.0

	if hi >= regressionThresholdF {
		hi = -42.379 +
			2.04901523*t +
			10.14333127*rh -
			0.22475541*t*rh -
			0.00683783*t*t -
			0.05481717*rh*rh +
			0.00122874*t*t*rh +
			0.00085282*t*rh*rh -
			0.00000199*t*t*rh*rh

		switch {
		case rh < lowHumidityMax && t >= lowHumidityTMin && t <= lowHumidityTMax:
			hi -= ((lowHumidityMax - rh) / 4.0) * math.Sqrt((17.0-math.Abs(t-95.0))/17.0)
		case rh > highHumidityMin && t >= highHumidityTMin && t <= highHumidityTMax:
			hi += ((rh - highHumidityMin) / 10.0) * ((highHumidityTMax - t) / 2.0)
		}
	}

	return fahrenheitToCelsius(hi)
}

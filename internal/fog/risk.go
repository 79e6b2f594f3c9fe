package fog

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/lox/fogwatch/internal/models"
)

// Magnus coefficients for saturation vapour pressure over water.
const (
	magnusA = 17.27
	magnusB = 237.7
)

var (
	ErrHumidityDomain = errors.New("relative humidity must be positive")
	ErrNonFinite      = errors.New("non-finite dew point")
)

// Risk is the discrete fog likelihood, 0 (none) to 3 (high).
type Risk int

const (
	RiskNone Risk = iota
	RiskLow
	RiskModerate
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskModerate:
		return "moderate"
	case RiskLow:
		return "low"
	default:
		return "none"
	}
}

// DewPoint returns the Magnus-form dew point in °C for temp (°C) and
// relative humidity (%). Humidity is not clamped.
func DewPoint(temp, humidity float64) (float64, error) {
	if math.IsNaN(humidity) || humidity <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrHumidityDomain, humidity)
	}
	alpha := (magnusA*temp)/(magnusB+temp) + math.Log(humidity/100)
	dp := (magnusB * alpha) / (magnusA - alpha)
	if math.IsNaN(dp) || math.IsInf(dp, 0) {
		return 0, fmt.Errorf("%w: temp=%v humidity=%v", ErrNonFinite, temp, humidity)
	}
	return dp, nil
}

// Classify maps temperature spread and humidity to a fog risk. Rules are
// checked in order and the first match wins; the low-risk rule has no
// humidity condition.
func Classify(spread, humidity float64) Risk {
	switch {
	case spread < 1.0 && humidity > 95:
		return RiskHigh
	case spread < 2.0 && humidity > 90:
		return RiskModerate
	case spread < 3.0:
		return RiskLow
	default:
		return RiskNone
	}
}

// Round2 rounds to two decimals from the exact binary value, so exact ties
// go to the even digit (0.125 gives 0.12, 0.375 gives 0.38).
func Round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// Evaluate derives the log row for one station's sample.
func Evaluate(station models.Station, sample models.Sample, snap models.Snapshot) (models.Observation, error) {
	dp, err := DewPoint(sample.TemperatureC, sample.RelativeHumidity)
	if err != nil {
		return models.Observation{}, fmt.Errorf("station %s: %w", station.Name, err)
	}
	spread := sample.TemperatureC - dp

	return models.Observation{
		StationName:      station.Name,
		WeatherTimestamp: snap.Timestamp,
		Humidity:         sample.RelativeHumidity,
		TempC:            sample.TemperatureC,
		DewPoint:         Round2(dp),
		TempSpread:       Round2(spread),
		FogRisk:          int(Classify(spread, sample.RelativeHumidity)),
	}, nil
}

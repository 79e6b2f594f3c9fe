package models

import "time"

// TimestampLayout is the hour-truncated local time written to weather_timestamp.
const TimestampLayout = "2006-01-02 15:00:00"

type Station struct {
	Name      string  `csv:"station_name"`
	Latitude  float64 `csv:"latitude"`
	Longitude float64 `csv:"longitude"`
}

// Sample is one station's forecast values for the snapshot hour.
type Sample struct {
	TemperatureC     float64
	RelativeHumidity float64
}

// Observation is one row of the weather log. Field order is the CSV column order.
type Observation struct {
	StationName      string  `csv:"station_name"`
	WeatherTimestamp string  `csv:"weather_timestamp"`
	Humidity         float64 `csv:"humidity"`
	TempC            float64 `csv:"temp_c"`
	DewPoint         float64 `csv:"dew_point"`
	TempSpread       float64 `csv:"temp_spread"`
	FogRisk          int     `csv:"fog_risk"`
}

// Snapshot pins the hour a run reports on. Every batch in a run shares one.
type Snapshot struct {
	At        time.Time
	HourIndex int
	Timestamp string
}

// NewSnapshot truncates now to the hour in loc.
func NewSnapshot(now time.Time, loc *time.Location) Snapshot {
	local := now.In(loc)
	hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	return Snapshot{
		At:        hour,
		HourIndex: hour.Hour(),
		Timestamp: hour.Format(TimestampLayout),
	}
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lox/fogwatch/internal/fog"
	"github.com/lox/fogwatch/internal/models"
)

func makeStations(n int) []models.Station {
	out := make([]models.Station, n)
	for i := range out {
		out[i] = models.Station{
			Name:      fmt.Sprintf("S%03d", i),
			Latitude:  20 + float64(i)/100,
			Longitude: 75 + float64(i)/100,
		}
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 50, nil},
		{"one", 1, 50, []int{1}},
		{"exact", 100, 50, []int{50, 50}},
		{"remainder", 120, 50, []int{50, 50, 20}},
		{"fifty one", 51, 50, []int{50, 1}},
		{"zero size uses default", 75, 0, []int{50, 25}},
		{"small size", 5, 2, []int{2, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := makeStations(tt.n)
			chunks := Partition(in, tt.size)
			if len(chunks) != len(tt.sizes) {
				t.Fatalf("chunks = %d, want %d", len(chunks), len(tt.sizes))
			}

			var flat []models.Station
			for i, c := range chunks {
				if len(c) != tt.sizes[i] {
					t.Errorf("chunk %d size = %d, want %d", i, len(c), tt.sizes[i])
				}
				flat = append(flat, c...)
			}
			for i := range in {
				if flat[i] != in[i] {
					t.Fatalf("order broken at %d: %v != %v", i, flat[i], in[i])
				}
			}
		})
	}
}

type fixedForecaster struct {
	locs []ForecastLocation
	err  error
}

func (f fixedForecaster) FetchHourly(ctx context.Context, stations []models.Station) ([]ForecastLocation, []byte, *FetchResult, error) {
	if f.err != nil {
		return nil, []byte("boom"), &FetchResult{HTTPStatus: 500}, f.err
	}
	return f.locs, []byte("[]"), &FetchResult{HTTPStatus: 200, RecordCount: len(f.locs)}, nil
}

func hourlyLocation(temp, hum float64) ForecastLocation {
	temps := make([]*float64, 24)
	hums := make([]*float64, 24)
	for i := range temps {
		temps[i] = &temp
		hums[i] = &hum
	}
	return ForecastLocation{Hourly: &Hourly{Temperature2m: temps, RelativeHumidity2m: hums}}
}

func TestProcessBatch_Rows(t *testing.T) {
	chunk := makeStations(2)
	snap := models.Snapshot{HourIndex: 6, Timestamp: "2026-01-15 06:00:00"}
	fc := fixedForecaster{locs: []ForecastLocation{hourlyLocation(10, 96), hourlyLocation(25, 80)}}

	res := ProcessBatch(context.Background(), fc, snap, 4, chunk)
	if !res.OK() {
		t.Fatalf("batch failed: %v", res.Err)
	}
	if res.Index != 4 {
		t.Errorf("Index = %d", res.Index)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}

	want := []models.Observation{
		{StationName: "S000", WeatherTimestamp: snap.Timestamp, Humidity: 96, TempC: 10, DewPoint: 9.39, TempSpread: 0.61, FogRisk: int(fog.RiskHigh)},
		{StationName: "S001", WeatherTimestamp: snap.Timestamp, Humidity: 80, TempC: 25, DewPoint: 21.3, TempSpread: 3.7, FogRisk: int(fog.RiskNone)},
	}
	for i := range want {
		if res.Rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, res.Rows[i], want[i])
		}
	}
}

func TestProcessBatch_DiscardsWholeBatch(t *testing.T) {
	snap := models.Snapshot{HourIndex: 6, Timestamp: "2026-01-15 06:00:00"}
	broken := hourlyLocation(10, 96)
	broken.Hourly.RelativeHumidity2m[6] = nil

	tests := []struct {
		name    string
		fc      Forecaster
		wantErr error
	}{
		{"fetch error", fixedForecaster{err: errors.New("connection reset")}, nil},
		{"count mismatch", fixedForecaster{locs: []ForecastLocation{hourlyLocation(10, 96)}}, ErrResponseShape},
		{"null value in second station", fixedForecaster{locs: []ForecastLocation{hourlyLocation(10, 96), broken}}, ErrMissingField},
		{"humidity zero", fixedForecaster{locs: []ForecastLocation{hourlyLocation(10, 96), hourlyLocation(10, 0)}}, fog.ErrHumidityDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ProcessBatch(context.Background(), tt.fc, snap, 0, makeStations(2))
			if res.OK() {
				t.Fatal("expected failure")
			}
			if len(res.Rows) != 0 {
				t.Errorf("rows = %d, want none on failure", len(res.Rows))
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name      string
		sample    models.Sample
		wantFlags []string
	}{
		{"normal", models.Sample{TemperatureC: 12, RelativeHumidity: 88}, nil},
		{"hot", models.Sample{TemperatureC: 61, RelativeHumidity: 40}, []string{FlagTempOutOfRange}},
		{"cold boundary", models.Sample{TemperatureC: -90, RelativeHumidity: 40}, nil},
		{"humidity over 100", models.Sample{TemperatureC: 10, RelativeHumidity: 101}, []string{FlagHumidityInvalid}},
		{"humidity zero", models.Sample{TemperatureC: 10, RelativeHumidity: 0}, []string{FlagHumidityInvalid}},
		{"both", models.Sample{TemperatureC: 99, RelativeHumidity: -1}, []string{FlagTempOutOfRange, FlagHumidityInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateSample(tt.sample)
			if len(got) != len(tt.wantFlags) {
				t.Fatalf("flags = %v, want %v", got, tt.wantFlags)
			}
			for i := range got {
				if got[i] != tt.wantFlags[i] {
					t.Errorf("flag %d = %q, want %q", i, got[i], tt.wantFlags[i])
				}
			}
		})
	}
}

func TestQualityFlagsToJSON(t *testing.T) {
	if got := QualityFlagsToJSON(nil); got != "" {
		t.Errorf("empty = %q, want \"\"", got)
	}
	got := QualityFlagsToJSON([]string{FlagTempOutOfRange, FlagHumidityInvalid, FlagTempOutOfRange})
	want := `["humidity_invalid","temp_out_of_range"]`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

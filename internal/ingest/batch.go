package ingest

import (
	"context"
	"fmt"

	"github.com/lox/fogwatch/internal/fog"
	"github.com/lox/fogwatch/internal/models"
)

const DefaultBatchSize = 50

// Forecaster fetches hourly forecasts for a batch of stations in one call.
type Forecaster interface {
	FetchHourly(ctx context.Context, stations []models.Station) ([]ForecastLocation, []byte, *FetchResult, error)
}

// Partition splits stations into consecutive chunks of at most size,
// preserving order. A size below 1 uses DefaultBatchSize.
func Partition(stations []models.Station, size int) [][]models.Station {
	if size < 1 {
		size = DefaultBatchSize
	}
	var chunks [][]models.Station
	for start := 0; start < len(stations); start += size {
		end := min(start+size, len(stations))
		chunks = append(chunks, stations[start:end])
	}
	return chunks
}

// BatchResult is the outcome of one batch: either rows for every station or
// an error, never both.
type BatchResult struct {
	Index    int
	Stations []models.Station
	Rows     []models.Observation
	Flags    []string
	Fetch    *FetchResult
	RawBody  []byte
	Err      error
}

func (b BatchResult) OK() bool {
	return b.Err == nil
}

// ProcessBatch fetches one chunk and derives a row per station. Any fetch,
// shape or numeric failure discards the whole chunk.
func ProcessBatch(ctx context.Context, fc Forecaster, snap models.Snapshot, index int, chunk []models.Station) BatchResult {
	res := BatchResult{Index: index, Stations: chunk}

	locs, body, fetch, err := fc.FetchHourly(ctx, chunk)
	res.Fetch = fetch
	res.RawBody = body
	if err != nil {
		res.Err = err
		return res
	}

	if len(locs) != len(chunk) {
		res.Err = fmt.Errorf("%w: %d locations for %d stations", ErrResponseShape, len(locs), len(chunk))
		return res
	}

	rows := make([]models.Observation, 0, len(chunk))
	var flags []string
	for i, loc := range locs {
		sample, err := loc.SampleAt(snap.HourIndex)
		if err != nil {
			res.Err = fmt.Errorf("station %s: %w", chunk[i].Name, err)
			return res
		}
		flags = append(flags, ValidateSample(sample)...)

		obs, err := fog.Evaluate(chunk[i], sample, snap)
		if err != nil {
			res.Err = err
			return res
		}
		rows = append(rows, obs)
	}

	res.Rows = rows
	res.Flags = flags
	return res
}

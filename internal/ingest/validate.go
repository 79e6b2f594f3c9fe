package ingest

import (
	"encoding/json"
	"sort"

	"github.com/lox/fogwatch/internal/models"
)

const (
	FlagTempOutOfRange  = "temp_out_of_range"
	FlagHumidityInvalid = "humidity_invalid"
)

// ValidateSample returns quality flags for implausible values. Flags are
// informational; they never discard a batch.
func ValidateSample(s models.Sample) []string {
	var flags []string

	if s.TemperatureC < -90 || s.TemperatureC > 60 {
		flags = append(flags, FlagTempOutOfRange)
	}

	if s.RelativeHumidity <= 0 || s.RelativeHumidity > 100 {
		flags = append(flags, FlagHumidityInvalid)
	}

	return flags
}

// QualityFlagsToJSON encodes the distinct flags of a batch, sorted.
func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(flags))
	var distinct []string
	for _, f := range flags {
		if !seen[f] {
			seen[f] = true
			distinct = append(distinct, f)
		}
	}
	sort.Strings(distinct)
	b, _ := json.Marshal(distinct)
	return string(b)
}

package models

import (
	"testing"
	"time"
)

func TestNewSnapshot(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	tests := []struct {
		name      string
		now       time.Time
		wantHour  int
		wantStamp string
	}{
		{
			name:      "utc converted to local",
			now:       time.Date(2026, 1, 15, 2, 45, 12, 0, time.UTC),
			wantHour:  8,
			wantStamp: "2026-01-15 08:00:00",
		},
		{
			name:      "crosses local midnight",
			now:       time.Date(2026, 1, 15, 19, 10, 0, 0, time.UTC),
			wantHour:  0,
			wantStamp: "2026-01-16 00:00:00",
		},
		{
			name:      "already on the hour",
			now:       time.Date(2026, 1, 15, 17, 0, 0, 0, ist),
			wantHour:  17,
			wantStamp: "2026-01-15 17:00:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewSnapshot(tt.now, ist)
			if snap.HourIndex != tt.wantHour {
				t.Errorf("HourIndex = %d, want %d", snap.HourIndex, tt.wantHour)
			}
			if snap.Timestamp != tt.wantStamp {
				t.Errorf("Timestamp = %q, want %q", snap.Timestamp, tt.wantStamp)
			}
			if snap.At.Minute() != 0 || snap.At.Second() != 0 {
				t.Errorf("At = %v, want truncated to the hour", snap.At)
			}
		})
	}
}

package store

import (
	"fmt"

	"github.com/lox/fogwatch/internal/models"
)

// InsertObservations mirrors log rows into the ledger. A station appears at
// most once per weather timestamp; repeats within the same hour are ignored.
// Returns the number of new rows.
func (s *Store) InsertObservations(runID string, rows []models.Observation) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (run_id, station_name, weather_timestamp, humidity, temp_c, dew_point, temp_spread, fog_risk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_name, weather_timestamp) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range rows {
		result, err := stmt.Exec(runID, o.StationName, o.WeatherTimestamp, o.Humidity, o.TempC, o.DewPoint, o.TempSpread, o.FogRisk)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", o.StationName, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetObservationsAt returns mirrored rows for one weather timestamp, ordered by station.
func (s *Store) GetObservationsAt(weatherTimestamp string) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT station_name, weather_timestamp, humidity, temp_c, dew_point, temp_spread, fog_risk
		FROM observations
		WHERE weather_timestamp = ?
		ORDER BY station_name
	`, weatherTimestamp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.StationName, &o.WeatherTimestamp, &o.Humidity, &o.TempC, &o.DewPoint, &o.TempSpread, &o.FogRisk); err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

// RiskCounts returns how many stations sat at each fog risk level for a timestamp.
func (s *Store) RiskCounts(weatherTimestamp string) (map[int]int, error) {
	rows, err := s.db.Query(`
		SELECT fog_risk, COUNT(*) FROM observations
		WHERE weather_timestamp = ?
		GROUP BY fog_risk
	`, weatherTimestamp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var risk, n int
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, err
		}
		counts[risk] = n
	}
	return counts, rows.Err()
}

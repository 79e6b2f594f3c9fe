package store

import (
	"database/sql"
	"time"
)

// Run is one invocation of the fog pipeline.
type Run struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       sql.NullTime
	WeatherTimestamp string
	StationSource    sql.NullString
	Stations         int
	BatchesOK        int
	BatchesFailed    int
	RowsWritten      int
	Success          bool
	ErrorMessage     sql.NullString
}

// BatchRecord is the audited outcome of one station batch.
type BatchRecord struct {
	ID                int64
	RunID             string
	BatchIndex        int
	StationCount      int
	Success           bool
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	QualityFlags      sql.NullString
	ErrorMessage      sql.NullString
	PayloadID         sql.NullInt64
	CreatedAt         time.Time
}

// StartRun inserts a run record and returns it.
func (s *Store) StartRun(runID, weatherTimestamp, stationSource string) (*Run, error) {
	run := &Run{
		ID:               runID,
		StartedAt:        time.Now().UTC(),
		WeatherTimestamp: weatherTimestamp,
	}
	if stationSource != "" {
		run.StationSource = sql.NullString{String: stationSource, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, started_at, weather_timestamp, station_source, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.ID, run.StartedAt, run.WeatherTimestamp, run.StationSource)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun updates the run with its results.
func (s *Store) CompleteRun(run *Run) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = ?,
			stations = ?,
			batches_ok = ?,
			batches_failed = ?,
			rows_written = ?,
			success = ?,
			error_message = ?
		WHERE run_id = ?
	`, run.FinishedAt, run.Stations, run.BatchesOK, run.BatchesFailed,
		run.RowsWritten, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecordBatch stores one batch outcome.
func (s *Store) RecordBatch(b *BatchRecord) error {
	b.CreatedAt = time.Now().UTC()
	result, err := s.db.Exec(`
		INSERT INTO batch_results (run_id, batch_index, station_count, success, http_status,
			response_size_bytes, records_parsed, quality_flags, error_message, payload_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.RunID, b.BatchIndex, b.StationCount, b.Success, b.HTTPStatus, b.ResponseSizeBytes,
		b.RecordsParsed, b.QualityFlags, b.ErrorMessage, b.PayloadID, b.CreatedAt)
	if err != nil {
		return err
	}
	b.ID, err = result.LastInsertId()
	return err
}

// GetRun returns a run by ID, or nil when absent.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, weather_timestamp, station_source,
			   COALESCE(stations, 0), COALESCE(batches_ok, 0), COALESCE(batches_failed, 0),
			   COALESCE(rows_written, 0), success, error_message
		FROM runs WHERE run_id = ?
	`, runID)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRecentRuns returns the newest runs first.
func (s *Store) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, started_at, finished_at, weather_timestamp, station_source,
			   COALESCE(stations, 0), COALESCE(batches_ok, 0), COALESCE(batches_failed, 0),
			   COALESCE(rows_written, 0), success, error_message
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.WeatherTimestamp, &r.StationSource,
		&r.Stations, &r.BatchesOK, &r.BatchesFailed, &r.RowsWritten, &r.Success, &r.ErrorMessage); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRunBatches returns the batch outcomes of a run in batch order.
func (s *Store) GetRunBatches(runID string) ([]BatchRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, batch_index, station_count, success, http_status, response_size_bytes,
			   records_parsed, quality_flags, error_message, payload_id, created_at
		FROM batch_results
		WHERE run_id = ?
		ORDER BY batch_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BatchRecord
	for rows.Next() {
		var b BatchRecord
		if err := rows.Scan(&b.ID, &b.RunID, &b.BatchIndex, &b.StationCount, &b.Success,
			&b.HTTPStatus, &b.ResponseSizeBytes, &b.RecordsParsed, &b.QualityFlags,
			&b.ErrorMessage, &b.PayloadID, &b.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// BatchHealthSummary aggregates batch outcomes per day.
type BatchHealthSummary struct {
	Date          string
	Runs          int
	TotalBatches  int
	FailedBatches int
	RecordsParsed int64
}

// GetBatchHealth returns daily batch summaries for the last N days.
func (s *Store) GetBatchHealth(days int) ([]BatchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(created_at, 1, 19)) as date,
			COUNT(DISTINCT run_id) as runs,
			COUNT(*) as total_batches,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_batches,
			COALESCE(SUM(records_parsed), 0) as records_parsed
		FROM batch_results
		WHERE SUBSTR(created_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date
		ORDER BY date DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BatchHealthSummary
	for rows.Next() {
		var h BatchHealthSummary
		if err := rows.Scan(&h.Date, &h.Runs, &h.TotalBatches, &h.FailedBatches, &h.RecordsParsed); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

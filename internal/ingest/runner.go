package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lox/fogwatch/internal/metrics"
	"github.com/lox/fogwatch/internal/models"
	"github.com/lox/fogwatch/internal/stations"
	"github.com/lox/fogwatch/internal/store"
)

// StationSource yields the station list for a run.
type StationSource interface {
	Load(ctx context.Context) ([]models.Station, error)
	Source() string
}

// Appender persists a run's rows.
type Appender interface {
	Append(rows []models.Observation) (int, error)
}

// RunReport summarizes one run.
type RunReport struct {
	RunID         string
	Snapshot      models.Snapshot
	NoInput       bool
	Stations      int
	BatchesOK     int
	BatchesFailed int
	RowsWritten   int
	Batches       []BatchResult
}

type Runner struct {
	stations         StationSource
	forecast         Forecaster
	log              Appender
	ledger           *store.Store
	loc              *time.Location
	batchSize        int
	payloadRetention int
	logger           *slog.Logger
}

type RunnerOption func(*Runner)

// WithLedger records runs, batches, payloads and observations in st.
func WithLedger(st *store.Store, payloadRetentionDays int) RunnerOption {
	return func(r *Runner) {
		r.ledger = st
		r.payloadRetention = payloadRetentionDays
	}
}

func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) { r.batchSize = n }
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(src StationSource, fc Forecaster, log Appender, loc *time.Location, opts ...RunnerOption) *Runner {
	r := &Runner{
		stations:  src,
		forecast:  fc,
		log:       log,
		loc:       loc,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass: load stations, process every batch in order with a
// snapshot fixed from now, then append all successful rows in one write.
// A missing station list returns a report with NoInput set and no error.
func (r *Runner) Run(ctx context.Context, now time.Time) (*RunReport, error) {
	snap := models.NewSnapshot(now, r.loc)
	report := &RunReport{RunID: uuid.NewString(), Snapshot: snap}
	logger := r.logger.With("run_id", report.RunID)

	list, err := r.stations.Load(ctx)
	if errors.Is(err, stations.ErrNoStations) {
		logger.Info("runner: no station list, nothing to do", "source", r.stations.Source())
		report.NoInput = true
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	report.Stations = len(list)

	run := r.startRun(logger, report)

	var rows []models.Observation
	for i, chunk := range Partition(list, r.batchSize) {
		if err := ctx.Err(); err != nil {
			r.finishRun(logger, run, report, err)
			return report, fmt.Errorf("run interrupted before batch %d: %w", i, err)
		}

		res := ProcessBatch(ctx, r.forecast, snap, i, chunk)
		report.Batches = append(report.Batches, res)

		if res.OK() {
			report.BatchesOK++
			rows = append(rows, res.Rows...)
			metrics.BatchesTotal.WithLabelValues("ok").Inc()
			logger.Debug("runner: batch ok", "batch", i, "stations", len(chunk))
			if len(res.Flags) > 0 {
				logger.Debug("runner: quality flags", "batch", i, "flags", QualityFlagsToJSON(res.Flags))
			}
		} else {
			report.BatchesFailed++
			metrics.BatchesTotal.WithLabelValues("failed").Inc()
			logger.Warn("runner: batch discarded", "batch", i, "stations", len(chunk), "err", res.Err)
		}
		r.recordBatch(logger, run, res)
	}
	if err := ctx.Err(); err != nil {
		r.finishRun(logger, run, report, err)
		return report, fmt.Errorf("run interrupted: %w", err)
	}

	n, err := r.log.Append(rows)
	if err != nil {
		r.finishRun(logger, run, report, err)
		return report, fmt.Errorf("append weather log: %w", err)
	}
	report.RowsWritten = n
	metrics.ObservationsWritten.Add(float64(n))
	setRiskGauge(rows)

	if r.ledger != nil && len(rows) > 0 {
		if _, err := r.ledger.InsertObservations(report.RunID, rows); err != nil {
			logger.Error("runner: mirror observations", "err", err)
		}
	}

	r.finishRun(logger, run, report, nil)
	metrics.LastRunTimestamp.SetToCurrentTime()

	logger.Info("runner: run complete",
		"weather_timestamp", snap.Timestamp,
		"stations", report.Stations,
		"batches_ok", report.BatchesOK,
		"batches_failed", report.BatchesFailed,
		"rows", report.RowsWritten,
	)
	return report, nil
}

func setRiskGauge(rows []models.Observation) {
	counts := make(map[int]int, 4)
	for _, o := range rows {
		counts[o.FogRisk]++
	}
	for risk := 0; risk <= 3; risk++ {
		metrics.FogRiskStations.WithLabelValues(strconv.Itoa(risk)).Set(float64(counts[risk]))
	}
}

// Ledger writes are best effort: a broken ledger never fails a run.

func (r *Runner) startRun(logger *slog.Logger, report *RunReport) *store.Run {
	if r.ledger == nil {
		return nil
	}
	run, err := r.ledger.StartRun(report.RunID, report.Snapshot.Timestamp, r.stations.Source())
	if err != nil {
		logger.Error("runner: start ledger run", "err", err)
		return nil
	}
	return run
}

func (r *Runner) recordBatch(logger *slog.Logger, run *store.Run, res BatchResult) {
	if run == nil {
		return
	}

	rec := &store.BatchRecord{
		RunID:        run.ID,
		BatchIndex:   res.Index,
		StationCount: len(res.Stations),
		Success:      res.OK(),
	}
	if res.Fetch != nil {
		rec.HTTPStatus = sql.NullInt64{Int64: int64(res.Fetch.HTTPStatus), Valid: res.Fetch.HTTPStatus > 0}
		rec.ResponseSizeBytes = sql.NullInt64{Int64: int64(res.Fetch.ResponseSize), Valid: res.Fetch.ResponseSize > 0}
		rec.RecordsParsed = sql.NullInt64{Int64: int64(res.Fetch.RecordCount), Valid: true}
	}
	if flags := QualityFlagsToJSON(res.Flags); flags != "" {
		rec.QualityFlags = sql.NullString{String: flags, Valid: true}
	}
	if res.Err != nil {
		rec.ErrorMessage = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	if len(res.RawBody) > 0 {
		id, err := r.ledger.StoreRawPayload(run.ID, res.Index, res.RawBody)
		if err != nil {
			logger.Error("runner: store raw payload", "batch", res.Index, "err", err)
		} else {
			rec.PayloadID = sql.NullInt64{Int64: id, Valid: true}
		}
	}

	if err := r.ledger.RecordBatch(rec); err != nil {
		logger.Error("runner: record batch", "batch", res.Index, "err", err)
	}
}

func (r *Runner) finishRun(logger *slog.Logger, run *store.Run, report *RunReport, runErr error) {
	if run == nil {
		return
	}

	run.Stations = report.Stations
	run.BatchesOK = report.BatchesOK
	run.BatchesFailed = report.BatchesFailed
	run.RowsWritten = report.RowsWritten
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}
	if err := r.ledger.CompleteRun(run); err != nil {
		logger.Error("runner: complete ledger run", "err", err)
	}

	if r.payloadRetention > 0 {
		if n, err := r.ledger.CleanupOldRawPayloads(r.payloadRetention); err != nil {
			logger.Error("runner: cleanup raw payloads", "err", err)
		} else if n > 0 {
			logger.Debug("runner: removed old raw payloads", "count", n)
		}
	}
}

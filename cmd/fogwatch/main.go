package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/fogwatch/internal/config"
	"github.com/lox/fogwatch/internal/httputil"
	"github.com/lox/fogwatch/internal/ingest"
	"github.com/lox/fogwatch/internal/logging"
	"github.com/lox/fogwatch/internal/metrics"
	"github.com/lox/fogwatch/internal/stations"
	"github.com/lox/fogwatch/internal/store"
	"github.com/lox/fogwatch/internal/weatherlog"
)

var version = "dev"

type CLI struct {
	config.Config `embed:""`

	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	Version kong.VersionFlag         `help:"Print version and exit."`

	Run    RunCmd    `cmd:"" default:"1" help:"Log the current hour's fog risk for every station and exit."`
	Serve  ServeCmd  `cmd:"" help:"Run on a schedule and serve /metrics and /healthz."`
	Status StatusCmd `cmd:"" help:"Show recent runs from the ledger."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("fogwatch"),
		kong.Description("Hourly fog risk logger backed by Open-Meteo forecasts."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	logger := logging.New(os.Stderr, cli.LogFormat, cli.Level(), version)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	kctx.BindTo(ctx, (*context.Context)(nil))

	err := kctx.Run(&cli.Config, logger)
	if err != nil {
		logger.Error("fogwatch: exiting", "err", err)
		os.Exit(1)
	}
}

type pipeline struct {
	runner *ingest.Runner
	ledger *store.Store
}

func (p *pipeline) Close() {
	if p.ledger != nil {
		p.ledger.Close()
	}
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	fc := ingest.NewForecastClient(cfg.Timezone,
		ingest.WithBaseURL(cfg.APIBaseURL),
		ingest.WithHTTPClient(httputil.NewClient(cfg.HTTPTimeout)),
		ingest.WithRetries(cfg.Retries, cfg.RetryInterval),
		ingest.WithBreaker(cfg.BreakerTrips),
	)

	opts := []ingest.RunnerOption{
		ingest.WithBatchSize(cfg.BatchSize),
		ingest.WithLogger(logger),
	}

	p := &pipeline{}
	if cfg.DB != "" {
		p.ledger, err = store.Open(cfg.DB, logger)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		opts = append(opts, ingest.WithLedger(p.ledger, cfg.RetentionDays))
	}

	p.runner = ingest.NewRunner(
		stations.NewLoader(cfg.Stations),
		fc,
		weatherlog.New(cfg.Output),
		loc,
		opts...,
	)
	return p, nil
}

func pushMetrics(cfg *config.Config, logger *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(cfg.PushgatewayURL); err != nil {
		logger.Warn("fogwatch: push metrics", "err", err)
	}
}

type RunCmd struct{}

func (r *RunCmd) Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	_, err = p.runner.Run(ctx, time.Now())
	pushMetrics(cfg, logger)
	return err
}

type ServeCmd struct {
	Schedule string `name:"schedule" env:"FOGWATCH_SCHEDULE" default:"0 * * * *" help:"Cron schedule, evaluated in --timezone."`
	Listen   string `name:"listen" env:"FOGWATCH_LISTEN" default:":9090" help:"Address for /metrics and /healthz."`
}

func (s *ServeCmd) Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	srv := &http.Server{
		Addr:              s.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fogwatch: listening", "addr", s.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sched := ingest.NewScheduler(p.runner, s.Schedule, loc, logger)
	sched.OnRun(func(*ingest.RunReport, error) { pushMetrics(cfg, logger) })

	schedCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case err := <-errCh:
			logger.Error("fogwatch: http server", "err", err)
			stop()
		case <-schedCtx.Done():
		}
	}()

	if err := sched.Run(schedCtx); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type StatusCmd struct {
	Limit int `name:"limit" default:"10" help:"Number of recent runs to show."`
	Days  int `name:"days" default:"7" help:"Days of batch health to summarise."`
}

func (s *StatusCmd) Run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.DB == "" {
		return errors.New("status needs a ledger: set --db")
	}
	st, err := store.Open(cfg.DB, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer st.Close()

	runs, err := st.GetRecentRuns(s.Limit)
	if err != nil {
		return fmt.Errorf("recent runs: %w", err)
	}
	health, err := st.GetBatchHealth(s.Days)
	if err != nil {
		return fmt.Errorf("batch health: %w", err)
	}
	return writeStatus(os.Stdout, runs, health)
}

func writeStatus(out io.Writer, runs []store.Run, health []store.BatchHealthSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "STARTED\tHOUR\tSTATIONS\tOK\tFAILED\tROWS\tRESULT")
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.ErrorMessage.Valid {
				result += ": " + r.ErrorMessage.String
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.WeatherTimestamp,
			r.Stations, r.BatchesOK, r.BatchesFailed, r.RowsWritten, result)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "DATE\tRUNS\tBATCHES\tFAILED\tRECORDS")
	for _, h := range health {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", h.Date, h.Runs, h.TotalBatches, h.FailedBatches, h.RecordsParsed)
	}
	return w.Flush()
}

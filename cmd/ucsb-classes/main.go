// Command ucsb-classes downloads every class of one quarter from the UCSB
// curriculum API and writes them to classes.json.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/internal/config"
	"github.com/Sternrassler/ucsb-curriculum-client/internal/profiling"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/client"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/metrics"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/pagination"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/sink"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const modeBoth = "both"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	secrets     string
	output      string
	quarter     string
	mode        string
	workers     int
	pageSize    int
	ordered     bool
	dedupe      bool
	retries     int
	profile     string
	cpuProfile  string
	metricsAddr string
	logLevel    string
	pretty      bool

	// set holds the names of flags given on the command line.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: map[string]bool{}}

	fs := flag.NewFlagSet("ucsb-classes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.secrets, "secrets", "", "secrets file (default: secrets.* in the working directory)")
	fs.StringVar(&opts.output, "output", "", "output file (default classes.json)")
	fs.StringVar(&opts.quarter, "quarter", "", "quarter code, e.g. 20202")
	fs.StringVar(&opts.mode, "mode", "serial", "aggregation mode: serial, parallel or both")
	fs.IntVar(&opts.workers, "workers", 0, "parallel batch width (default 8)")
	fs.IntVar(&opts.pageSize, "page-size", 0, "classes per page, 1..100 (default 100)")
	fs.BoolVar(&opts.ordered, "ordered", false, "keep server order in parallel mode")
	fs.BoolVar(&opts.dedupe, "dedupe", false, "drop repeated course ids before writing")
	fs.IntVar(&opts.retries, "retries", 0, "extra attempts per failed page (default 0)")
	fs.StringVar(&opts.profile, "profile", "", "timeline output (default flame-graph.html)")
	fs.StringVar(&opts.cpuProfile, "cpuprofile", "", "write a pprof CPU profile to this file")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	switch opts.mode {
	case string(pagination.ModeSerial), string(pagination.ModeParallel), modeBoth:
	default:
		return nil, fmt.Errorf("unknown mode %q (want serial, parallel or both)", opts.mode)
	}

	return opts, nil
}

// apply overrides configuration values with flags given on the command line.
func (o *options) apply(cfg *config.Config) {
	if o.set["output"] {
		cfg.Output = o.output
	}
	if o.set["quarter"] {
		cfg.Quarter = o.quarter
	}
	if o.set["workers"] {
		cfg.Workers = o.workers
	}
	if o.set["page-size"] {
		cfg.PageSize = o.pageSize
	}
	if o.set["retries"] {
		cfg.Retries = o.retries
	}
	if o.set["profile"] {
		cfg.Profile = o.profile
	}
	if o.set["metrics-addr"] {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
	if o.set["pretty"] {
		cfg.Log.Pretty = o.pretty
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "ucsb-classes: %v\n", err)
		return exitUsage
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: stderr,
	})

	// Configuration comes first: nothing touches the network without a key.
	cfg, err := config.Load(opts.secrets)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return exitUsage
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return exitUsage
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})

	runID := uuid.NewString()
	logger = logging.WithRun(logging.NewLogger("main"), runID, cfg.Quarter)
	logger.Info().
		Str("mode", opts.mode).
		Int("workers", cfg.Workers).
		Int("page_size", cfg.PageSize).
		Str("secrets", cfg.File).
		Msg("Configuration loaded")

	if opts.cpuProfile != "" {
		stopCPU, err := profiling.StartCPU(opts.cpuProfile)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to start CPU profile")
			return exitFailure
		}
		defer func() {
			if err := stopCPU(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close CPU profile")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
				logger.Warn().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			stopMetrics()
			<-done
		}()
	}

	recorder := profiling.NewRecorder()
	stopMain := recorder.Start("main")

	code := fetchAndStore(ctx, cfg, opts, runID, recorder, logger)

	stopMain()
	if code == exitOK && cfg.Profile != "" {
		if err := recorder.WriteFile(cfg.Profile); err != nil {
			logger.Error().Err(err).Msg("Failed to write profile")
			return exitFailure
		}
		logger.Info().Str("path", cfg.Profile).Msg("Profile written")
	}

	if code == exitOK {
		fmt.Fprintf(stdout, "run %s: wrote %s\n", runID, cfg.Output)
	}
	return code
}

func fetchAndStore(ctx context.Context, cfg *config.Config, opts *options, runID string, recorder *profiling.Recorder, logger zerolog.Logger) int {
	clientCfg := client.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.APIVersion = cfg.APIVersion
	clientCfg.Quarter = cfg.Quarter
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxInFlight = cfg.Workers
	clientCfg.Retry.MaxAttempts = cfg.Retries + 1

	c, err := client.New(clientCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create client")
		return exitUsage
	}

	// Sinks are opened before fetching so an unreachable store costs no
	// API calls.
	sinks, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open sinks")
		return exitFailure
	}
	defer closeSinks()

	agg := pagination.NewAggregator(c, pagination.Config{
		Workers:           cfg.Workers,
		PageSize:          cfg.PageSize,
		PreservePageOrder: opts.ordered,
	}).WithLogger(logging.WithRun(logging.NewLogger("pagination"), runID, cfg.Quarter)).
		WithTracer(recorder)

	courses, err := aggregate(ctx, agg, opts.mode, logger)
	if err != nil {
		logger.Error().Err(err).Str("error_class", string(client.ClassOf(err))).Msg("Fetch failed")
		return exitFailure
	}

	if opts.dedupe {
		before := len(courses)
		courses = curriculum.Dedupe(courses)
		if dropped := before - len(courses); dropped > 0 {
			logger.Info().Int("dropped", dropped).Msg("Dropped repeated course ids")
		}
	}

	catalog := sink.Catalog{
		Quarter:   cfg.Quarter,
		FetchedAt: time.Now().UTC(),
		RunID:     runID,
		Courses:   courses,
	}

	stopWrite := recorder.Start("serializing list of classes to json")
	err = sinks.Write(ctx, catalog)
	stopWrite()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write catalog")
		return exitFailure
	}

	logger.Info().
		Int("courses", len(courses)).
		Str("output", cfg.Output).
		Int("sinks", len(sinks)).
		Msg("Run complete")

	return exitOK
}

// aggregate runs the selected mode. "both" runs serial and then parallel,
// reports any difference and returns the serial result.
func aggregate(ctx context.Context, agg *pagination.Aggregator, mode string, logger zerolog.Logger) ([]curriculum.Course, error) {
	if mode != modeBoth {
		return agg.Fetch(ctx, pagination.Mode(mode))
	}

	serial, err := agg.Serial(ctx)
	if err != nil {
		return nil, err
	}
	serialStats := agg.LastStats()

	parallel, err := agg.Parallel(ctx)
	if err != nil {
		return nil, err
	}
	parallelStats := agg.LastStats()

	missing, extra := diffCourseIDs(serial, parallel)
	event := logger.Info()
	if len(missing) > 0 || len(extra) > 0 {
		event = logger.Warn()
	}
	event.
		Int("serial", len(serial)).
		Int("parallel", len(parallel)).
		Dur("serial_duration", serialStats.Duration).
		Dur("parallel_duration", parallelStats.Duration).
		Int("parallel_failed_pages", parallelStats.PagesFailed).
		Strs("missing_in_parallel", missing).
		Strs("extra_in_parallel", extra).
		Msg("Compared serial and parallel results")

	return serial, nil
}

// diffCourseIDs compares two results as multisets of course ids. missing
// lists ids that b holds fewer times than a, extra the reverse, each id
// repeated by the size of the difference.
func diffCourseIDs(a, b []curriculum.Course) (missing, extra []string) {
	counts := make(map[string]int, len(a))
	for i := range a {
		counts[a[i].CourseID]++
	}
	for i := range b {
		counts[b[i].CourseID]--
	}

	// Walk a and b so the output order is deterministic.
	seen := make(map[string]bool, len(counts))
	emit := func(courses []curriculum.Course) {
		for i := range courses {
			id := courses[i].CourseID
			if seen[id] {
				continue
			}
			seen[id] = true
			for n := counts[id]; n > 0; n-- {
				missing = append(missing, id)
			}
			for n := counts[id]; n < 0; n++ {
				extra = append(extra, id)
			}
		}
	}
	emit(a)
	emit(b)
	return missing, extra
}

// openSinks builds the file sink and every optional sink whose configuration
// section is present.
func openSinks(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sink.Multi, func(), error) {
	sinks := sink.Multi{sink.NewFileSink(cfg.Output)}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { redisClient.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		sinks = append(sinks, sink.NewRedisSink(redisClient))
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis sink enabled")
	}

	if cfg.S3.Enabled() {
		objectSink, err := sink.NewObjectSink(ctx, sink.ObjectConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, objectSink)
		logger.Info().Str("bucket", cfg.S3.Bucket).Msg("Object sink enabled")
	}

	if cfg.Postgres.Enabled() {
		pgSink, err := sink.NewPostgresSink(ctx, cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pgSink.Close)
		sinks = append(sinks, pgSink)
		logger.Info().Msg("Postgres sink enabled")
	}

	return sinks, closeAll, nil
}

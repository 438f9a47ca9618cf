package pagination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for page aggregation.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucsb_pages_fetched_total",
		Help: "Total pages fetched successfully by aggregation mode",
	}, []string{"mode"})

	pagesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucsb_pages_failed_total",
		Help: "Total page fetches that failed by aggregation mode",
	}, []string{"mode"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ucsb_batch_duration_seconds",
		Help:    "Wall time of one parallel batch from spawn to drain",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	coursesAggregated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ucsb_courses_aggregated",
		Help: "Courses returned by the last aggregation by mode",
	}, []string{"mode"})
)

// ErrPageLimit is returned by Serial when Config.MaxPages is reached without
// seeing an empty page.
var ErrPageLimit = errors.New("page limit reached before end of stream")

// Mode selects an aggregation strategy.
type Mode string

const (
	// ModeSerial walks pages one at a time.
	ModeSerial Mode = "serial"

	// ModeParallel fetches planned pages in worker batches.
	ModeParallel Mode = "parallel"
)

// ParseMode converts a mode name, case-sensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSerial, ModeParallel:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown aggregation mode %q (want serial or parallel)", s)
	}
}

// Config holds aggregator configuration.
type Config struct {
	// Workers is the batch width W of the parallel strategy.
	Workers int

	// PageSize is requested for every page (1..100).
	PageSize int

	// PreservePageOrder sorts each parallel batch by page number before
	// appending, making the parallel result match server order.
	PreservePageOrder bool

	// MaxPages stops Serial with ErrPageLimit after this many non-empty
	// pages. 0 means no limit.
	MaxPages int
}

// DefaultConfig returns the configuration used against the live API.
func DefaultConfig() Config {
	return Config{
		Workers:  8,
		PageSize: 100,
	}
}

// PageFetcher fetches a single page. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageNumber, pageSize int) (*curriculum.APIResponse, error)
}

// Tracer opens named timing spans and returns the function closing them.
// *profiling.Recorder implements it.
type Tracer interface {
	Start(name string) func()
}

type noopTracer struct{}

func (noopTracer) Start(string) func() { return func() {} }

// PageResult is the single message a parallel worker sends.
type PageResult struct {
	PageNumber int
	Courses    []curriculum.Course
	Err        error
}

// Stats describes the most recent aggregation run.
type Stats struct {
	Mode           Mode
	TotalReported  uint32
	PlannedPages   int
	PagesRequested int
	PagesFailed    int
	EmptyPages     int
	Batches        int
	Courses        int
	Duration       time.Duration
}

// Aggregator drives a PageFetcher over every page of the catalog.
type Aggregator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
	tracer  Tracer

	mu   sync.Mutex
	last Stats
}

// NewAggregator creates an aggregator. Non-positive settings fall back to
// DefaultConfig values.
func NewAggregator(fetcher PageFetcher, config Config) *Aggregator {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}

	return &Aggregator{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pagination"),
		tracer:  noopTracer{},
	}
}

// WithLogger replaces the aggregator's logger, e.g. with a run-tagged one.
func (a *Aggregator) WithLogger(logger zerolog.Logger) *Aggregator {
	a.logger = logger
	return a
}

// WithTracer records aggregation spans into tracer.
func (a *Aggregator) WithTracer(tracer Tracer) *Aggregator {
	if tracer == nil {
		tracer = noopTracer{}
	}
	a.tracer = tracer
	return a
}

// LastStats returns statistics of the most recent completed run.
func (a *Aggregator) LastStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Aggregator) setStats(s Stats) {
	a.mu.Lock()
	a.last = s
	a.mu.Unlock()
	coursesAggregated.WithLabelValues(string(s.Mode)).Set(float64(s.Courses))
}

// Fetch runs the strategy selected by mode.
func (a *Aggregator) Fetch(ctx context.Context, mode Mode) ([]curriculum.Course, error) {
	switch mode {
	case ModeSerial:
		return a.Serial(ctx)
	case ModeParallel:
		return a.Parallel(ctx)
	default:
		return nil, fmt.Errorf("unknown aggregation mode %q", mode)
	}
}

// TotalPages plans the parallel horizon for total courses: full pages, one
// more for a remainder, and one page of overshoot so the last batch reaches
// the empty end-of-stream page.
func TotalPages(total uint32, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages + 1
}

// Serial fetches pages 1, 2, 3, ... until a page with no classes and returns
// the concatenation in server order. The first fetch error is returned.
func (a *Aggregator) Serial(ctx context.Context) ([]curriculum.Course, error) {
	defer a.tracer.Start("retrieving all classes serially")()

	start := time.Now()
	stats := Stats{Mode: ModeSerial}
	courses := []curriculum.Course{}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("serial fetch cancelled before page %d: %w", page, err)
		}

		if a.config.MaxPages > 0 && page > a.config.MaxPages {
			return nil, fmt.Errorf("%w: %d pages", ErrPageLimit, a.config.MaxPages)
		}

		stats.PagesRequested++
		stopSpan := a.tracer.Start(fmt.Sprintf("getting page %d", page))
		resp, err := a.fetcher.FetchPage(ctx, page, a.config.PageSize)
		stopSpan()
		if err != nil {
			pagesFailedTotal.WithLabelValues(string(ModeSerial)).Inc()
			a.logger.Error().
				Err(err).
				Int("page", page).
				Int("fetched", len(courses)).
				Msg("Serial fetch failed")
			return nil, fmt.Errorf("serial fetch page %d: %w", page, err)
		}
		pagesFetchedTotal.WithLabelValues(string(ModeSerial)).Inc()
		stats.TotalReported = resp.Total

		if resp.Empty() {
			stats.EmptyPages++
			break
		}

		courses = append(courses, resp.Classes...)
	}

	stats.Courses = len(courses)
	stats.Duration = time.Since(start)
	a.setStats(stats)

	a.logger.Info().
		Int("pages", stats.PagesRequested).
		Int("courses", stats.Courses).
		Dur("duration", stats.Duration).
		Msg("Serial fetch complete")

	return courses, nil
}

// Parallel probes page 1 for the advisory total, plans the page horizon and
// drains it in batches of Config.Workers concurrent page fetches.
//
// Worker failures are absorbed as empty contributions. An error is returned
// only if the probe fails, in which case nothing can be planned, or if ctx is
// cancelled before the last batch is drained, in which case the courses
// gathered so far are returned alongside the error.
func (a *Aggregator) Parallel(ctx context.Context) ([]curriculum.Course, error) {
	defer a.tracer.Start("retrieving all classes with threads")()

	start := time.Now()
	workers := a.config.Workers
	pageSize := a.config.PageSize

	stopProbe := a.tracer.Start("probing page 1")
	probe, err := a.fetcher.FetchPage(ctx, 1, pageSize)
	stopProbe()
	if err != nil {
		pagesFailedTotal.WithLabelValues(string(ModeParallel)).Inc()
		return nil, fmt.Errorf("probe page 1: %w", err)
	}

	totalPages := TotalPages(probe.Total, pageSize)
	stats := Stats{
		Mode:           ModeParallel,
		TotalReported:  probe.Total,
		PlannedPages:   totalPages,
		PagesRequested: 1,
	}

	a.logger.Info().
		Uint32("total", probe.Total).
		Int("page_size", pageSize).
		Int("total_pages", totalPages).
		Int("workers", workers).
		Msg("Starting parallel page fetch")

	courses := []curriculum.Course{}
	// Buffered to the batch width: every worker completes its single send
	// before the driver starts draining.
	results := make(chan PageResult, workers)

	for curPage := 1; curPage <= totalPages; curPage += workers {
		if err := ctx.Err(); err != nil {
			stats.Courses = len(courses)
			stats.Duration = time.Since(start)
			a.setStats(stats)
			return courses, fmt.Errorf("parallel fetch cancelled at page %d of %d: %w", curPage, totalPages, err)
		}

		batchStart := time.Now()
		stats.Batches++
		stopBatch := a.tracer.Start(fmt.Sprintf("batch %d (pages %d-%d)", stats.Batches, curPage, curPage+workers-1))

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go a.worker(ctx, curPage+i, results, &wg, i)
		}
		wg.Wait()

		batch := make([]PageResult, 0, workers)
		for i := 0; i < workers; i++ {
			batch = append(batch, <-results)
		}

		if a.config.PreservePageOrder {
			sort.Slice(batch, func(i, j int) bool {
				return batch[i].PageNumber < batch[j].PageNumber
			})
		}

		for _, result := range batch {
			stats.PagesRequested++
			if result.Err != nil {
				stats.PagesFailed++
				pagesFailedTotal.WithLabelValues(string(ModeParallel)).Inc()
				continue
			}
			pagesFetchedTotal.WithLabelValues(string(ModeParallel)).Inc()
			if len(result.Courses) == 0 {
				stats.EmptyPages++
				continue
			}
			courses = append(courses, result.Courses...)
		}

		stopBatch()
		batchDuration.Observe(time.Since(batchStart).Seconds())
		a.logger.Debug().
			Int("batch", stats.Batches).
			Int("first_page", curPage).
			Int("last_page", curPage+workers-1).
			Int("courses", len(courses)).
			Msg("Batch complete")

		// Fetches cut short by cancellation were absorbed as failures above.
		if err := ctx.Err(); err != nil {
			stats.Courses = len(courses)
			stats.Duration = time.Since(start)
			a.setStats(stats)
			return courses, fmt.Errorf("parallel fetch cancelled during batch %d of %d pages: %w", stats.Batches, totalPages, err)
		}
	}

	stats.Courses = len(courses)
	stats.Duration = time.Since(start)
	a.setStats(stats)

	logEvent := a.logger.Info()
	if stats.PagesFailed > 0 {
		logEvent = a.logger.Warn()
	}
	logEvent.
		Int("pages", stats.PagesRequested).
		Int("failed", stats.PagesFailed).
		Int("batches", stats.Batches).
		Int("courses", stats.Courses).
		Dur("duration", stats.Duration).
		Msg("Parallel fetch complete")

	return courses, nil
}

// worker fetches one page and sends exactly one result.
func (a *Aggregator) worker(ctx context.Context, pageNum int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	stopSpan := a.tracer.Start(fmt.Sprintf("getting page %d", pageNum))
	resp, err := a.fetcher.FetchPage(ctx, pageNum, a.config.PageSize)
	stopSpan()
	if err != nil {
		a.logger.Warn().
			Err(err).
			Int("worker_id", workerID).
			Int("page", pageNum).
			Msg("Page fetch failed - contributing nothing")
		results <- PageResult{PageNumber: pageNum, Err: err}
		return
	}

	a.logger.Debug().
		Int("worker_id", workerID).
		Int("page", pageNum).
		Int("classes", len(resp.Classes)).
		Msg("Worker completed")

	results <- PageResult{PageNumber: pageNum, Courses: resp.Classes}
}

// Package pagination aggregates every page of the class-search endpoint into
// one course list.
//
// Two strategies share one PageFetcher:
//
//	agg := pagination.NewAggregator(apiClient, pagination.DefaultConfig())
//	courses, err := agg.Serial(ctx)   // pages 1, 2, ... until an empty page
//	courses, err = agg.Parallel(ctx)  // probe total, then batches of W workers
//
// Serial is the correctness reference: it stops at the first empty classes
// list, ignores the advisory total, and fails on the first page error.
//
// Parallel probes page 1 for total, plans total/pageSize pages plus one page
// of overshoot, and fetches them in fixed-width batches. Each worker fetches
// one page and sends exactly one result; the driver joins the batch and
// drains one message per worker before starting the next batch. A failed
// page contributes nothing and does not fail the run. Results of one batch
// arrive in completion order unless Config.PreservePageOrder is set; batch N
// always precedes batch N+1.
package pagination

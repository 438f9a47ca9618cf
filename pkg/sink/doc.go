// Package sink persists an aggregated course catalog.
//
// Every sink receives the same Catalog and stores it somewhere:
//
//   - FileSink writes classes.json, a JSON array of courses with camelCase keys
//   - RedisSink replaces a per-quarter hash keyed by course id
//   - ObjectSink uploads classes.json to an S3-compatible bucket (MinIO)
//   - PostgresSink upserts one row per course into ucsb_courses
//
// Multi fans one catalog out to several sinks.
//
// # Basic Usage
//
//	catalog := sink.NewCatalog("20202", courses)
//
//	file := sink.NewFileSink("classes.json")
//	if err := file.Write(ctx, catalog); err != nil {
//		return err
//	}
//
// # Redis
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	out := sink.Multi{file, sink.NewRedisSink(redisClient)}
//
// The Redis layout is:
//
//	ucsb:classes:<quarter>       hash  courseId -> course JSON
//	ucsb:classes:<quarter>:meta  hash  run_id, fetched_at, count
//
// Both keys are replaced in one MULTI/EXEC transaction, so readers never see
// a mix of two runs. The store holds results, it is never read back to answer
// API requests.
//
// # Metrics
//
//   - ucsb_sink_writes_total{sink} - Successful catalog writes
//   - ucsb_sink_errors_total{sink} - Failed catalog writes
//   - ucsb_sink_bytes{sink} - Encoded size of the last write
package sink

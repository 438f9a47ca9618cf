package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSink stores each quarter's catalog as a Redis hash.
type RedisSink struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisSink creates a Redis sink.
func NewRedisSink(redisClient *redis.Client) *RedisSink {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisSink{
		redis:  redisClient,
		logger: logging.NewLogger("sink"),
	}
}

// Name implements Sink.
func (r *RedisSink) Name() string {
	return "redis"
}

// Write implements Sink. The course hash and its meta hash are replaced in a
// single transaction.
func (r *RedisSink) Write(ctx context.Context, catalog Catalog) error {
	key := catalog.Key()

	fields := make(map[string]any, len(catalog.Courses))
	size := 0
	for i := range catalog.Courses {
		data, err := json.Marshal(&catalog.Courses[i])
		if err != nil {
			record(r.Name(), 0, err)
			return fmt.Errorf("marshal course %q: %w", catalog.Courses[i].CourseID, err)
		}
		fields[catalog.Courses[i].CourseID] = data
		size += len(data)
	}

	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, key.String(), key.Meta().String())
	if len(fields) > 0 {
		pipe.HSet(ctx, key.String(), fields)
	}
	pipe.HSet(ctx, key.Meta().String(),
		"run_id", catalog.RunID,
		"fetched_at", catalog.FetchedAt.UTC().Format(time.RFC3339),
		"count", len(catalog.Courses),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		record(r.Name(), 0, err)
		return fmt.Errorf("redis exec: %w", err)
	}
	record(r.Name(), size, nil)

	r.logger.Info().
		Str("key", key.String()).
		Int("courses", len(fields)).
		Msg("Catalog stored in redis")

	return nil
}

// Load reads a stored catalog back, sorted by course id. It returns an empty
// catalog when nothing is stored for quarter.
func (r *RedisSink) Load(ctx context.Context, quarter string) (Catalog, error) {
	key := Key{Quarter: quarter}

	meta, err := r.redis.HGetAll(ctx, key.Meta().String()).Result()
	if err != nil {
		return Catalog{}, fmt.Errorf("redis hgetall meta: %w", err)
	}

	raw, err := r.redis.HGetAll(ctx, key.String()).Result()
	if err != nil {
		return Catalog{}, fmt.Errorf("redis hgetall: %w", err)
	}

	catalog := Catalog{
		Quarter: quarter,
		RunID:   meta["run_id"],
		Courses: make([]curriculum.Course, 0, len(raw)),
	}
	if ts := meta["fetched_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			catalog.FetchedAt = t
		}
	}

	for id, data := range raw {
		var course curriculum.Course
		if err := json.Unmarshal([]byte(data), &course); err != nil {
			return Catalog{}, fmt.Errorf("unmarshal course %q: %w", id, err)
		}
		catalog.Courses = append(catalog.Courses, course)
	}
	curriculum.SortByCourseID(catalog.Courses)

	return catalog, nil
}

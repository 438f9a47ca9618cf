package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/google/uuid"
)

// DefaultFileName is the name of the catalog artifact.
const DefaultFileName = "classes.json"

// Sink stores a catalog.
type Sink interface {
	// Name is the metrics label of the sink.
	Name() string

	// Write stores catalog, replacing any previous catalog of the same quarter.
	Write(ctx context.Context, catalog Catalog) error
}

// Catalog is the result of one aggregation run.
type Catalog struct {
	Quarter   string
	FetchedAt time.Time
	RunID     string
	Courses   []curriculum.Course
}

// NewCatalog wraps courses with a fresh run id and the current time.
func NewCatalog(quarter string, courses []curriculum.Course) Catalog {
	return Catalog{
		Quarter:   quarter,
		FetchedAt: time.Now().UTC(),
		RunID:     uuid.NewString(),
		Courses:   courses,
	}
}

// Key returns the storage key of the catalog's quarter.
func (c Catalog) Key() Key {
	return Key{Quarter: c.Quarter}
}

// EncodeCourses renders courses as a JSON array. A nil slice encodes as [].
func EncodeCourses(courses []curriculum.Course) ([]byte, error) {
	if courses == nil {
		courses = []curriculum.Course{}
	}
	data, err := json.Marshal(courses)
	if err != nil {
		return nil, fmt.Errorf("encode courses: %w", err)
	}
	return data, nil
}

// Multi writes a catalog to every sink in order. All sinks are attempted;
// failures are joined.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string {
	return "multi"
}

// Write implements Sink.
func (m Multi) Write(ctx context.Context, catalog Catalog) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, catalog); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// record updates sink metrics for one write attempt.
func record(name string, size int, err error) {
	if err != nil {
		SinkErrors.WithLabelValues(name).Inc()
		return
	}
	SinkWrites.WithLabelValues(name).Inc()
	SinkBytes.WithLabelValues(name).Set(float64(size))
}

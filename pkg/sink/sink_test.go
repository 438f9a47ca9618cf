package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/ucsb-curriculum-client/internal/testutil"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog(t *testing.T) {
	courses := testutil.MakeCourses(3, "20202")
	catalog := NewCatalog("20202", courses)

	assert.Equal(t, "20202", catalog.Quarter)
	assert.Len(t, catalog.Courses, 3)
	assert.False(t, catalog.FetchedAt.IsZero())
	_, err := uuid.Parse(catalog.RunID)
	assert.NoError(t, err, "run id should be a uuid")

	other := NewCatalog("20202", courses)
	assert.NotEqual(t, catalog.RunID, other.RunID)
}

func TestEncodeCourses_Empty(t *testing.T) {
	for _, courses := range [][]curriculum.Course{nil, {}} {
		data, err := EncodeCourses(courses)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	}
}

func TestFileSink_WritesJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")
	courses := testutil.MakeCourses(5, "20202")

	err := NewFileSink(path).Write(context.Background(), NewCatalog("20202", courses))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []curriculum.Course
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, courses, decoded)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw[0], "courseId")
	assert.Contains(t, raw[0], "classSections")
}

func TestFileSink_EmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")

	require.NoError(t, NewFileSink(path).Write(context.Background(), NewCatalog("20202", nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestFileSink_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, NewFileSink(path).Write(context.Background(), NewCatalog("20202", nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be gone")
}

func TestFileSink_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "classes.json")

	err := NewFileSink(path).Write(context.Background(), NewCatalog("20202", nil))
	assert.Error(t, err)
}

func TestFileSink_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultFileName, NewFileSink("").Path())
}

type recordingSink struct {
	name    string
	err     error
	written []Catalog
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(_ context.Context, catalog Catalog) error {
	r.written = append(r.written, catalog)
	return r.err
}

func TestMulti_WritesAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("disk full")
	errC := errors.New("connection reset")
	a := &recordingSink{name: "a", err: errA}
	b := &recordingSink{name: "b"}
	c := &recordingSink{name: "c", err: errC}

	catalog := NewCatalog("20202", testutil.MakeCourses(2, "20202"))
	err := Multi{a, b, c}.Write(context.Background(), catalog)

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Contains(t, err.Error(), "a sink")
	for _, s := range []*recordingSink{a, b, c} {
		assert.Len(t, s.written, 1, "sink %s should be attempted", s.name)
	}
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Write(context.Background(), NewCatalog("20202", nil)))
}

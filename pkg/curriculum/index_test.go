package curriculum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	courses := []Course{
		{CourseID: "A", Title: "first"},
		{CourseID: "B"},
		{CourseID: "A", Title: "second"},
	}

	idx := Index(courses)
	assert.Len(t, idx, 2)
	assert.Equal(t, "first", idx["A"].Title)
	assert.Same(t, &courses[1], idx["B"])
}

func TestDedupe(t *testing.T) {
	courses := []Course{{CourseID: "B"}, {CourseID: "A"}, {CourseID: "B"}, {CourseID: "C"}}

	out := Dedupe(courses)
	assert.Equal(t, []Course{{CourseID: "B"}, {CourseID: "A"}, {CourseID: "C"}}, out)
	assert.NotNil(t, Dedupe(nil))
}

func TestSortByCourseID(t *testing.T) {
	courses := []Course{{CourseID: "C"}, {CourseID: "A", Title: "1"}, {CourseID: "B"}, {CourseID: "A", Title: "2"}}

	SortByCourseID(courses)
	assert.Equal(t, []Course{{CourseID: "A", Title: "1"}, {CourseID: "A", Title: "2"}, {CourseID: "B"}, {CourseID: "C"}}, courses)
}

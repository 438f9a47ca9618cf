package curriculum

import "sort"

// Index maps course ids to the courses of an aggregated catalog. When an id
// occurs more than once the first occurrence wins.
func Index(courses []Course) map[string]*Course {
	idx := make(map[string]*Course, len(courses))
	for i := range courses {
		id := courses[i].CourseID
		if _, ok := idx[id]; !ok {
			idx[id] = &courses[i]
		}
	}
	return idx
}

// Dedupe returns the courses with repeated course ids removed, keeping the
// first occurrence and the original order.
func Dedupe(courses []Course) []Course {
	seen := make(map[string]struct{}, len(courses))
	out := make([]Course, 0, len(courses))
	for _, c := range courses {
		if _, ok := seen[c.CourseID]; ok {
			continue
		}
		seen[c.CourseID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SortByCourseID sorts courses in place by course id. Equal ids keep their
// relative order.
func SortByCourseID(courses []Course) {
	sort.SliceStable(courses, func(i, j int) bool {
		return courses[i].CourseID < courses[j].CourseID
	})
}

package curriculum

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned when a decoded object lacks a required key.
var ErrMissingField = errors.New("missing required field")

// Required wire keys per object. Optional fields are pointers and absent here.
var (
	responseKeys = []string{"pageSize", "pageNumber", "total", "classes"}

	courseKeys = []string{
		"courseId", "title", "description", "college", "deptCode", "subjectArea",
		"quarter", "instructionType", "objLevelCode", "onLineCourse",
		"generalEducation", "classSections",
	}

	sectionKeys    = []string{"instructorApprovalRequired", "instructors", "timeLocations"}
	instructorKeys = []string{"functionCode", "instructor"}
	geKeys         = []string{"geCode", "geCollege"}
)

// requireKeys fails unless data is a JSON object holding every key.
func requireKeys(data []byte, object string, keys []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("%w: %s is null", ErrMissingField, object)
	}
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, object, key)
		}
	}
	return nil
}

// UnmarshalJSON decodes the envelope and rejects a page without its paging
// numbers or its classes array.
func (r *APIResponse) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "response", responseKeys); err != nil {
		return err
	}
	type plain APIResponse
	return json.Unmarshal(data, (*plain)(r))
}

// UnmarshalJSON decodes a course, requiring every non-optional key.
func (c *Course) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "course", courseKeys); err != nil {
		return err
	}
	type plain Course
	return json.Unmarshal(data, (*plain)(c))
}

// UnmarshalJSON decodes a section, requiring every non-optional key.
func (s *CourseSection) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "classSection", sectionKeys); err != nil {
		return err
	}
	type plain CourseSection
	return json.Unmarshal(data, (*plain)(s))
}

// UnmarshalJSON decodes an instructor, requiring both keys.
func (i *Instructor) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "instructor", instructorKeys); err != nil {
		return err
	}
	type plain Instructor
	return json.Unmarshal(data, (*plain)(i))
}

// UnmarshalJSON decodes a GE area, requiring both keys.
func (g *GeneralEducation) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "generalEducation", geKeys); err != nil {
		return err
	}
	type plain GeneralEducation
	return json.Unmarshal(data, (*plain)(g))
}

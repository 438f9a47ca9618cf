// Package curriculum defines the typed model of the UCSB curriculum
// class-search API: the paging envelope and the nested course entities.
//
// Go field names are the internal names. The json tags carry the camelCase
// keys used by the server, so decoding a server page and encoding the
// aggregated catalog both speak the same wire shape.
package curriculum

// Course is one class offering for a quarter.
type Course struct {
	CourseID          string             `json:"courseId" validate:"required"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	College           string             `json:"college"`
	DeptCode          string             `json:"deptCode"`
	SubjectArea       string             `json:"subjectArea"`
	Quarter           string             `json:"quarter" validate:"required"`
	InstructionType   string             `json:"instructionType"`
	ObjLevelCode      string             `json:"objLevelCode"`
	OnLineCourse      bool               `json:"onLineCourse"`
	ContactHours      *float32           `json:"contactHours,omitempty"`
	DelayedSectioning *string            `json:"delayedSectioning,omitempty"`
	GradingOption     *string            `json:"gradingOption,omitempty"`
	InProgressCourse  *string            `json:"inProgressCourse,omitempty"`
	UnitsFixed        *float32           `json:"unitsFixed,omitempty"`
	UnitsVariableLow  *float32           `json:"unitsVariableLow,omitempty"`
	UnitsVariableHigh *float32           `json:"unitsVariableHigh,omitempty"`
	GeneralEducation  []GeneralEducation `json:"generalEducation"`
	ClassSections     []CourseSection    `json:"classSections" validate:"dive"`
}

// CourseSection is a lecture or discussion section of a course.
//
// The server also reports concurrent courses per section. They are not
// modelled here; resolve them by course id through Index instead.
type CourseSection struct {
	ClassClosed                *string        `json:"classClosed,omitempty"`
	CourseCancelled            *string        `json:"courseCancelled,omitempty"`
	DepartmentApprovalRequired *bool          `json:"departmentApprovalRequired,omitempty"`
	EnrollCode                 *string        `json:"enrollCode,omitempty"`
	EnrolledTotal              *uint32        `json:"enrolledTotal,omitempty"`
	GradingOptionCode          *string        `json:"gradingOptionCode,omitempty"`
	InstructorApprovalRequired bool           `json:"instructorApprovalRequired"`
	Instructors                []Instructor   `json:"instructors"`
	MaxEnroll                  *uint32        `json:"maxEnroll,omitempty"`
	RestrictionLevel           *string        `json:"restrictionLevel,omitempty"`
	RestrictionMajor           *string        `json:"restrictionMajor,omitempty"`
	RestrictionMajorPass       *string        `json:"restrictionMajorPass,omitempty"`
	RestrictionMinor           *string        `json:"restrictionMinor,omitempty"`
	RestrictionMinorPass       *string        `json:"restrictionMinorPass,omitempty"`
	SecondaryStatus            *string        `json:"secondaryStatus,omitempty"`
	Section                    *string        `json:"section,omitempty"`
	Session                    *string        `json:"session,omitempty"`
	TimeLocations              []TimeLocation `json:"timeLocations"`
}

// Instructor assigned to a section.
type Instructor struct {
	FunctionCode string `json:"functionCode"`
	Instructor   string `json:"instructor"`
}

// TimeLocation is a scheduled meeting. Every field may be absent for
// sections without a meeting time.
type TimeLocation struct {
	BeginTime    *string `json:"beginTime,omitempty"`
	Building     *string `json:"building,omitempty"`
	Days         *string `json:"days,omitempty"`
	EndTime      *string `json:"endTime,omitempty"`
	Room         *string `json:"room,omitempty"`
	RoomCapacity *uint32 `json:"roomCapacity,omitempty"`
}

// GeneralEducation is a GE area satisfied by a course.
type GeneralEducation struct {
	GECode    string `json:"geCode"`
	GECollege string `json:"geCollege"`
}

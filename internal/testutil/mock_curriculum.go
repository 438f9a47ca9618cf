// Package testutil provides testing utilities for the curriculum client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
)

// MockCurriculum is a deterministic class-search server holding a fixed
// list of courses and serving them in pages.
type MockCurriculum struct {
	server *httptest.Server

	mu            sync.Mutex
	courses       []curriculum.Course
	totalOverride *uint32
	failures      map[int]int
	rawBodies     map[int]string
	delay         time.Duration

	// Tracking
	requestCount      int
	pageRequests      map[int]int
	inFlight          int
	peakInFlight      int
	lastRequestHeader http.Header
	lastQuery         map[string]string
}

// NewMockCurriculum starts a mock server holding courses.
func NewMockCurriculum(courses []curriculum.Course) *MockCurriculum {
	mock := &MockCurriculum{
		courses:      courses,
		failures:     make(map[int]int),
		rawBodies:    make(map[int]string),
		pageRequests: make(map[int]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL, usable as a client BaseURL.
func (m *MockCurriculum) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCurriculum) Close() {
	m.server.Close()
}

// SetTotal makes the server report total instead of the real course count.
func (m *MockCurriculum) SetTotal(total uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalOverride = &total
}

// SetCourses replaces the served courses, e.g. to grow the catalog mid-run.
func (m *MockCurriculum) SetCourses(courses []curriculum.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses = courses
}

// FailPage makes every request for page answer with statusCode.
func (m *MockCurriculum) FailPage(page, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[page] = statusCode
}

// ClearFailure removes a failure set by FailPage.
func (m *MockCurriculum) ClearFailure(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, page)
}

// SetRawBody makes page answer 200 with body verbatim.
func (m *MockCurriculum) SetRawBody(page int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawBodies[page] = body
}

// SetDelay adds latency to every request.
func (m *MockCurriculum) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// RequestCount returns the number of requests served.
func (m *MockCurriculum) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PageRequests returns how often page was requested.
func (m *MockCurriculum) PageRequests(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageRequests[page]
}

// PeakInFlight returns the highest number of concurrent requests observed.
func (m *MockCurriculum) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInFlight
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockCurriculum) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockCurriculum) LastQuery() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

func (m *MockCurriculum) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageNumber, _ := strconv.Atoi(q.Get("pageNumber"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	m.mu.Lock()
	m.requestCount++
	m.pageRequests[pageNumber]++
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
	m.lastRequestHeader = r.Header.Clone()
	m.lastQuery = map[string]string{}
	for key := range q {
		m.lastQuery[key] = q.Get(key)
	}
	delay := m.delay
	failStatus, fails := m.failures[pageNumber]
	rawBody, raw := m.rawBodies[pageNumber]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	// Leave the in-flight count before any byte reaches the client.
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.URL.Path != "/academics/curriculums/v1/classes/search" {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
		return
	}

	if fails {
		w.WriteHeader(failStatus)
		w.Write([]byte(`{"error": "mock failure"}`))
		return
	}

	if raw {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(rawBody))
		return
	}

	if pageNumber < 1 || pageSize < 1 {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid paging"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(m.Page(pageNumber, pageSize))
}

// Page builds the envelope the server answers for a page request.
func (m *MockCurriculum) Page(pageNumber, pageSize int) curriculum.APIResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := uint32(len(m.courses))
	if m.totalOverride != nil {
		total = *m.totalOverride
	}

	classes := []curriculum.Course{}
	start := (pageNumber - 1) * pageSize
	if start < len(m.courses) {
		end := start + pageSize
		if end > len(m.courses) {
			end = len(m.courses)
		}
		classes = append(classes, m.courses[start:end]...)
	}

	return curriculum.APIResponse{
		PageSize:   uint32(pageSize),
		PageNumber: uint32(pageNumber),
		Total:      total,
		Classes:    classes,
	}
}

// MakeCourses generates n distinct courses for quarter with one section each.
func MakeCourses(n int, quarter string) []curriculum.Course {
	courses := make([]curriculum.Course, 0, n)
	for i := 0; i < n; i++ {
		enrollCode := fmt.Sprintf("%05d", i)
		courses = append(courses, curriculum.Course{
			CourseID:         fmt.Sprintf("CMPSC %4d", i),
			Title:            fmt.Sprintf("COURSE %d", i),
			Description:      "Generated course",
			College:          "ENGR",
			DeptCode:         "CMPSC",
			SubjectArea:      "CMPSC",
			Quarter:          quarter,
			InstructionType:  "LEC",
			ObjLevelCode:     "U",
			GeneralEducation: []curriculum.GeneralEducation{},
			ClassSections: []curriculum.CourseSection{
				{
					EnrollCode:    &enrollCode,
					Instructors:   []curriculum.Instructor{{FunctionCode: "Teaching and in charge", Instructor: "STAFF"}},
					TimeLocations: []curriculum.TimeLocation{},
				},
			},
		})
	}
	return courses
}

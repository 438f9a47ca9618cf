package curriculum

import (
	"errors"
	"testing"
)

func TestAPIResponse_Validate(t *testing.T) {
	course := Course{CourseID: "CS16", Quarter: "20202"}

	tests := []struct {
		name      string
		resp      APIResponse
		requested int
		wantErr   bool
	}{
		{
			name:      "empty end of stream page",
			resp:      APIResponse{PageSize: 100, PageNumber: 3, Total: 200, Classes: []Course{}},
			requested: 100,
		},
		{
			name:      "full page",
			resp:      APIResponse{PageSize: 2, PageNumber: 1, Total: 2, Classes: []Course{course, course}},
			requested: 2,
		},
		{
			name:      "page number zero",
			resp:      APIResponse{PageSize: 100, PageNumber: 0},
			requested: 100,
			wantErr:   true,
		},
		{
			name:      "page size zero",
			resp:      APIResponse{PageSize: 0, PageNumber: 1},
			wantErr:   true,
		},
		{
			name:      "more classes than page size",
			resp:      APIResponse{PageSize: 1, PageNumber: 1, Classes: []Course{course, course}},
			requested: 1,
			wantErr:   true,
		},
		{
			name:      "page size not echoed",
			resp:      APIResponse{PageSize: 50, PageNumber: 1},
			requested: 100,
			wantErr:   true,
		},
		{
			name:      "classes null",
			resp:      APIResponse{PageSize: 100, PageNumber: 1, Total: 5},
			requested: 100,
			wantErr:   true,
		},
		{
			name:      "course without id",
			resp:      APIResponse{PageSize: 1, PageNumber: 1, Classes: []Course{{Quarter: "20202"}}},
			requested: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate(tt.requested)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidResponse) {
					t.Errorf("Error %v does not wrap ErrInvalidResponse", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestAPIResponse_Empty(t *testing.T) {
	if !(&APIResponse{}).Empty() {
		t.Error("Response without classes should be empty")
	}
	if (&APIResponse{Classes: []Course{{CourseID: "X"}}}).Empty() {
		t.Error("Response with classes should not be empty")
	}
}

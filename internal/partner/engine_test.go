package partner

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestValidateCriteria(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
		wantErr   bool
	}{
		{"zero defaults", 0, DefaultLimit, false},
		{"explicit limit kept", 25, 25, false},
		{"max limit allowed", MaxLimit, MaxLimit, false},
		{"negative rejected", -1, 0, true},
		{"absurd rejected", MaxLimit + 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCriteria(SearchCriteria{Limit: tt.limit})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCriteria) {
					t.Errorf("err = %v, want ErrInvalidCriteria", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantLimit {
				t.Errorf("limit = %d, want %d", got, tt.wantLimit)
			}
		})
	}
}

func TestSearch_RejectsInvalidCriteriaBeforeComputing(t *testing.T) {
	_, err := Search(UserProfile{ID: "me"}, SearchCriteria{Limit: -5}, nil, nil)
	if !errors.Is(err, ErrInvalidCriteria) {
		t.Errorf("err = %v, want ErrInvalidCriteria", err)
	}
}

func TestSearch_SkipsSelfAndBlankCandidates(t *testing.T) {
	candidates := []UserProfile{
		{ID: "me"},
		{},
		{ID: "other"},
	}

	results, err := Search(UserProfile{ID: "me"}, SearchCriteria{}, candidates, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].CandidateID != "other" {
		t.Errorf("results = %+v, want only 'other'", results)
	}
}

func TestSearch_RanksAndDecoratesConnectionState(t *testing.T) {
	me := UserProfile{ID: "me", Institution: "NU", Program: "CS"}
	candidates := []UserProfile{
		{ID: "u-low"},
		{ID: "u-high", Institution: "NU", Program: "CS"},
	}
	connections := []ConnectionRecord{
		{ID: "r1", RequesterID: "me", RecipientID: "u-high", Status: StatusPending,
			CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}

	results, err := Search(me, SearchCriteria{}, candidates, connections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	high := results[0]
	if high.CandidateID != "u-high" {
		t.Fatalf("highest-scored first, got %s", high.CandidateID)
	}
	if high.ConnectionStatus != StatusPending || !high.IsPendingSent || high.IsPendingReceived {
		t.Errorf("connection state = %+v, want pending-sent", high)
	}

	low := results[1]
	if low.ConnectionStatus != StatusNone || low.IsPendingSent || low.IsPendingReceived {
		t.Errorf("connection state = %+v, want none", low)
	}
}

func TestSearch_TruncatesButDisplaysAllSharedCourses(t *testing.T) {
	me := UserProfile{ID: "me"}
	candidate := UserProfile{ID: "u1"}
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		me.Courses = append(me.Courses, course("c-"+id, "", "topic course "+id))
		candidate.Courses = append(candidate.Courses, course("c-"+id, "", "topic course "+id))
	}

	results, err := Search(me, SearchCriteria{Limit: 1}, []UserProfile{candidate}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].SharedCourses) != 6 {
		t.Errorf("shared courses list = %d entries, want 6", len(results[0].SharedCourses))
	}
	if results[0].Score != 60 {
		t.Errorf("score = %d, want 60 (capped shared-course factor only)", results[0].Score)
	}
}

func TestSearch_DeterministicAcrossRuns(t *testing.T) {
	me := UserProfile{ID: "me", Program: "Biology"}
	candidates := []UserProfile{
		{ID: "u-2", Program: "Biology"},
		{ID: "u-1", Program: "Biology"},
		{ID: "u-3", Program: "Biology"},
	}

	first, err := Search(me, SearchCriteria{}, candidates, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := Search(me, SearchCriteria{}, candidates, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs from first run", i)
		}
	}
	if first[0].CandidateID != "u-1" {
		t.Errorf("equal scores must rank by id, got %s first", first[0].CandidateID)
	}
}

func TestSearch_PendingFlagsNeverBothTrue(t *testing.T) {
	me := UserProfile{ID: "me"}
	candidates := []UserProfile{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	now := time.Now()
	connections := []ConnectionRecord{
		{ID: "r1", RequesterID: "me", RecipientID: "a", Status: StatusPending, UpdatedAt: now},
		{ID: "r2", RequesterID: "b", RecipientID: "me", Status: StatusPending, UpdatedAt: now},
		{ID: "r3", RequesterID: "c", RecipientID: "me", Status: StatusAccepted, UpdatedAt: now},
	}

	results, err := Search(me, SearchCriteria{}, candidates, connections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.IsPendingSent && r.IsPendingReceived {
			t.Errorf("candidate %s has both pending flags set", r.CandidateID)
		}
	}
}

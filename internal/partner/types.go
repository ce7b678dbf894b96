// Package partner implements the study-partner compatibility engine: profile
// normalization, tiered fuzzy course overlap, topic overlap counting, a
// weighted 0-100 compatibility score with a human-readable breakdown,
// connection state resolution, and deterministic ranking.
//
// The engine is a pure, synchronous computation over a per-request snapshot
// of candidate profiles and connection records. It holds no state between
// calls and never writes; persistence belongs to the profile and connection
// stores.
package partner

import "time"

// Preferences holds a user's structured study preferences. All fields are
// optional; a missing or malformed preference blob yields the zero value.
type Preferences struct {
	StudyStyle   string   `json:"studyStyle,omitempty"`
	GroupSize    string   `json:"groupSize,omitempty"`
	Availability []string `json:"availability,omitempty"`
}

// Topic is a single study topic owned by a course.
type Topic struct {
	Name     string `json:"name"`
	CourseID string `json:"courseId"`
}

// Enrollment status values.
const (
	EnrollmentActive   = "active"
	EnrollmentInactive = "inactive"
)

// CourseEnrollment is one course a user is enrolled in, with the course
// metadata needed for overlap matching.
type CourseEnrollment struct {
	CourseID    string  `json:"courseId"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Status      string  `json:"status"` // active | inactive
	Topics      []Topic `json:"topics,omitempty"`
}

// UserProfile is a read-only snapshot of a user for the duration of one
// ranking request. Year is nil when the year of study is unknown.
type UserProfile struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Institution     string             `json:"institution"`
	Program         string             `json:"program"`
	Year            *int               `json:"yearOfStudy,omitempty"`
	Bio             string             `json:"bio,omitempty"`
	Preferences     Preferences        `json:"preferences"`
	Courses         []CourseEnrollment `json:"enrolledCourses,omitempty"`
	TotalStudyHours float64            `json:"totalStudyHours"`
}

// ConnectionStatus is the lifecycle state of a connection record, plus the
// derived "none" state for candidates with no record at all.
type ConnectionStatus string

const (
	StatusNone     ConnectionStatus = "none"
	StatusPending  ConnectionStatus = "pending"
	StatusAccepted ConnectionStatus = "accepted"
	StatusDeclined ConnectionStatus = "declined"
)

// ConnectionRecord is the durable representation of a partner request and
// its lifecycle. Records are append-only status transitions; they are
// created and updated by the connection store, never by this engine.
type ConnectionRecord struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requesterId"`
	RecipientID string           `json:"recipientId"`
	Status      ConnectionStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// SearchCriteria constrains a ranked partner search. A zero Limit means
// DefaultLimit.
type SearchCriteria struct {
	Institution string `json:"institution,omitempty"`
	Query       string `json:"query,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// CoursePair is one of A's courses together with the course of B it was
// matched against.
type CoursePair struct {
	A CourseEnrollment
	B CourseEnrollment
}

// OverlapFacts are the derived, per-pair overlap signals feeding the scorer.
// SharedCourseNames is the full display list; it is never truncated even
// though the scoring contribution of shared courses is capped.
type OverlapFacts struct {
	SharedCourseIDs   []string
	SharedCourseNames []string
	SharedTopicCount  int
}

// ScoreResult is the outcome of scoring one candidate against the current
// user. Breakdown holds one entry per factor that contributed points, in a
// fixed factor order.
type ScoreResult struct {
	Score             int      `json:"score"`
	Breakdown         []string `json:"breakdown"`
	SharedCourses     []string `json:"sharedCourses"`
	SharedTopicsCount int      `json:"sharedTopicsCount"`
}

// MatchResult is one ranked candidate. IsPendingSent and IsPendingReceived
// are mutually exclusive.
type MatchResult struct {
	CandidateID       string           `json:"candidateId"`
	CandidateName     string           `json:"candidateName,omitempty"`
	Score             int              `json:"score"`
	Breakdown         []string         `json:"breakdown"`
	SharedCourses     []string         `json:"sharedCourses"`
	SharedTopicsCount int              `json:"sharedTopicsCount"`
	ConnectionStatus  ConnectionStatus `json:"connectionStatus"`
	IsPendingSent     bool             `json:"isPendingSent"`
	IsPendingReceived bool             `json:"isPendingReceived"`
}

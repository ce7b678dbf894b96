package partner

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawProfile is a profile record as it comes out of storage or an upstream
// payload: fields may be missing, and the preference blob may be anything
// from valid JSON to a double-encoded string to garbage.
type RawProfile struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Institution     string             `json:"institution"`
	Program         string             `json:"programName"`
	Year            *int               `json:"yearOfStudy"`
	Bio             string             `json:"bio"`
	Preferences     json.RawMessage    `json:"preferences"`
	Courses         []CourseEnrollment `json:"enrolledCourses"`
	TotalStudyHours float64            `json:"totalStudyHours"`
}

// Normalize turns a raw profile record into a canonical UserProfile. It
// never fails: malformed preferences degrade to the zero value, whitespace
// is trimmed, non-positive years are treated as unknown, and enrollments
// default to active status.
func Normalize(raw RawProfile) UserProfile {
	p := UserProfile{
		ID:              strings.TrimSpace(raw.ID),
		Name:            strings.TrimSpace(raw.Name),
		Institution:     strings.TrimSpace(raw.Institution),
		Program:         strings.TrimSpace(raw.Program),
		Bio:             strings.TrimSpace(raw.Bio),
		Preferences:     ParsePreferences(raw.Preferences),
		TotalStudyHours: raw.TotalStudyHours,
	}

	if raw.Year != nil && *raw.Year > 0 {
		year := *raw.Year
		p.Year = &year
	}

	if len(raw.Courses) > 0 {
		p.Courses = make([]CourseEnrollment, 0, len(raw.Courses))
		for _, c := range raw.Courses {
			c.CourseID = strings.TrimSpace(c.CourseID)
			c.Code = strings.TrimSpace(c.Code)
			c.Name = strings.TrimSpace(c.Name)
			if c.Status == "" {
				c.Status = EnrollmentActive
			}
			p.Courses = append(p.Courses, c)
		}
	}

	return p
}

// ParsePreferences parses a preference blob into Preferences. A malformed
// payload is absorbed silently and yields the zero value: no preference
// signal, never an error.
//
// Tolerated shapes, in order of attempt:
//   - a JSON object with studyStyle / groupSize / availability fields
//   - a JSON string containing such an object (double-encoded rows from
//     older clients)
//   - availability as either a string or an array of strings
func ParsePreferences(blob []byte) Preferences {
	var p Preferences

	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 || bytes.Equal(blob, []byte("null")) {
		return p
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(blob, &fields); err != nil {
		// Older clients stored the object JSON-encoded inside a string.
		var inner string
		if err := json.Unmarshal(blob, &inner); err != nil {
			return Preferences{}
		}
		if err := json.Unmarshal([]byte(inner), &fields); err != nil {
			return Preferences{}
		}
	}

	if v, ok := fields["studyStyle"].(string); ok {
		p.StudyStyle = strings.TrimSpace(v)
	}
	if v, ok := fields["groupSize"].(string); ok {
		p.GroupSize = strings.TrimSpace(v)
	}

	switch v := fields["availability"].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			p.Availability = []string{s}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				p.Availability = append(p.Availability, strings.TrimSpace(s))
			}
		}
	}

	return p
}

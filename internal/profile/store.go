// Package profile provides PostgreSQL-backed storage for user profiles and
// their course enrollments. It is the candidate-pool collaborator of the
// matching engine: profiles come out normalized and ready to score, and a
// malformed row degrades that one candidate instead of failing the batch.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/studylink/match-app/internal/partner"
	"github.com/studylink/match-app/internal/storage"
)

// ErrNotFound is returned when a requested profile does not exist.
var ErrNotFound = errors.New("profile: not found")

// DefaultPoolLimit caps the candidate pool fetched for one search.
const DefaultPoolLimit = 500

// Filter constrains the candidate pool query.
type Filter struct {
	Institution string // exact institution match, empty = any
	Query       string // substring match on name or program, empty = any
	ExcludeID   string // user to leave out (the requester)
	Limit       int    // pool cap, 0 = DefaultPoolLimit
}

// Store manages user profiles in PostgreSQL. The injected capabilities
// decide which optional columns the queries select; nothing is probed from
// the live schema at query time.
type Store struct {
	db   *sql.DB
	caps storage.Capabilities
}

// NewStore creates a profile store backed by the given database handle.
func NewStore(db *sql.DB, caps storage.Capabilities) *Store {
	return &Store{db: db, caps: caps}
}

// profileColumns returns the users column list for the current schema
// capabilities. total_study_hours only exists from schema version 2 on.
func (s *Store) profileColumns() string {
	cols := "id, name, institution, program_name, year_of_study, bio, preferences"
	if s.caps.HasTotalStudyHours {
		cols += ", total_study_hours"
	}
	return cols
}

// GetProfile loads one user profile with its active enrollments and topics.
// Returns ErrNotFound if the user does not exist.
func (s *Store) GetProfile(ctx context.Context, id string) (*partner.UserProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", s.profileColumns())

	row := s.db.QueryRowContext(ctx, query, id)
	raw, err := s.scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %s: %w", id, err)
	}

	courses, err := s.loadCourses(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	raw.Courses = courses[id]

	p := partner.Normalize(*raw)
	return &p, nil
}

// ListCandidatePool returns the normalized candidate pool matching the
// filter, ordered by user id for reproducible pool snapshots. A row that
// fails to scan is logged and skipped; the rest of the pool is returned.
func (s *Store) ListCandidatePool(ctx context.Context, f Filter) ([]partner.UserProfile, error) {
	limit := f.Limit
	if limit <= 0 || limit > DefaultPoolLimit {
		limit = DefaultPoolLimit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE ($1 = '' OR institution = $1)
		  AND ($2 = '' OR name ILIKE '%%' || $2 || '%%' OR program_name ILIKE '%%' || $2 || '%%')
		  AND id <> $3
		ORDER BY id
		LIMIT $4`, s.profileColumns())

	rows, err := s.db.QueryContext(ctx, query, f.Institution, f.Query, f.ExcludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("profile: list pool: %w", err)
	}
	defer rows.Close()

	var raws []*partner.RawProfile
	var ids []string
	for rows.Next() {
		raw, err := s.scanProfile(rows)
		if err != nil {
			// One bad row degrades one candidate, not the batch.
			log.Printf("[profile] skipping malformed pool row: %v", err)
			continue
		}
		raws = append(raws, raw)
		ids = append(ids, raw.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: list pool rows: %w", err)
	}

	courses, err := s.loadCourses(ctx, ids)
	if err != nil {
		return nil, err
	}

	pool := make([]partner.UserProfile, 0, len(raws))
	for _, raw := range raws {
		raw.Courses = courses[raw.ID]
		pool = append(pool, partner.Normalize(*raw))
	}
	return pool, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanProfile(row scanner) (*partner.RawProfile, error) {
	var (
		raw   partner.RawProfile
		year  sql.NullInt64
		prefs []byte
		hours sql.NullFloat64
	)

	dest := []interface{}{&raw.ID, &raw.Name, &raw.Institution, &raw.Program, &year, &raw.Bio, &prefs}
	if s.caps.HasTotalStudyHours {
		dest = append(dest, &hours)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if year.Valid {
		y := int(year.Int64)
		raw.Year = &y
	}
	raw.Preferences = json.RawMessage(prefs)
	if hours.Valid {
		raw.TotalStudyHours = hours.Float64
	}
	return &raw, nil
}

// loadCourses fetches the active enrollments (with course metadata and
// topics) for a set of users in two batched queries.
func (s *Store) loadCourses(ctx context.Context, userIDs []string) (map[string][]partner.CourseEnrollment, error) {
	result := make(map[string][]partner.CourseEnrollment, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	const enrollmentQuery = `
		SELECT e.user_id, c.id, c.code, c.name, c.description, e.status
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = ANY($1) AND e.status = 'active'
		ORDER BY e.user_id, c.id`

	rows, err := s.db.QueryContext(ctx, enrollmentQuery, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("profile: load enrollments: %w", err)
	}
	defer rows.Close()

	courseIDs := make(map[string]bool)
	for rows.Next() {
		var userID string
		var c partner.CourseEnrollment
		if err := rows.Scan(&userID, &c.CourseID, &c.Code, &c.Name, &c.Description, &c.Status); err != nil {
			log.Printf("[profile] skipping malformed enrollment row: %v", err)
			continue
		}
		result[userID] = append(result[userID], c)
		courseIDs[c.CourseID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: load enrollments rows: %w", err)
	}

	if len(courseIDs) == 0 {
		return result, nil
	}

	topics, err := s.loadTopics(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	for userID, courses := range result {
		for i := range courses {
			courses[i].Topics = topics[courses[i].CourseID]
		}
		result[userID] = courses
	}
	return result, nil
}

func (s *Store) loadTopics(ctx context.Context, courseIDs map[string]bool) (map[string][]partner.Topic, error) {
	ids := make([]string, 0, len(courseIDs))
	for id := range courseIDs {
		ids = append(ids, id)
	}

	const query = `SELECT course_id, name FROM topics WHERE course_id = ANY($1) ORDER BY course_id, name`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("profile: load topics: %w", err)
	}
	defer rows.Close()

	topics := make(map[string][]partner.Topic)
	for rows.Next() {
		var t partner.Topic
		if err := rows.Scan(&t.CourseID, &t.Name); err != nil {
			log.Printf("[profile] skipping malformed topic row: %v", err)
			continue
		}
		topics[t.CourseID] = append(topics[t.CourseID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: load topics rows: %w", err)
	}
	return topics, nil
}

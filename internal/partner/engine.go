package partner

import (
	"errors"
	"fmt"
)

const (
	// DefaultLimit is applied when search criteria carry no limit.
	DefaultLimit = 100

	// MaxLimit is the largest candidate list a single search may request.
	MaxLimit = 500
)

// ErrInvalidCriteria is returned when search criteria fail validation
// before any computation begins.
var ErrInvalidCriteria = errors.New("invalid search criteria")

// ValidateCriteria checks criteria and returns the effective limit.
func ValidateCriteria(criteria SearchCriteria) (int, error) {
	limit := criteria.Limit
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: negative limit %d", ErrInvalidCriteria, limit)
	case limit > MaxLimit:
		return 0, fmt.Errorf("%w: limit %d exceeds maximum %d", ErrInvalidCriteria, limit, MaxLimit)
	case limit == 0:
		limit = DefaultLimit
	}
	return limit, nil
}

// Search scores every candidate against the current user, resolves each
// candidate's connection state from the given records, and returns the
// ranked, truncated result list.
//
// Candidates are a read-only snapshot; a bad candidate record degrades its
// own score rather than failing the batch. The current user is skipped if
// present in the pool.
func Search(current UserProfile, criteria SearchCriteria, candidates []UserProfile, connections []ConnectionRecord) ([]MatchResult, error) {
	limit, err := ValidateCriteria(criteria)
	if err != nil {
		return nil, err
	}

	results := make([]MatchResult, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == "" || candidate.ID == current.ID {
			continue
		}

		score := ComputeScore(current, candidate)
		state := ResolveConnection(current.ID, candidate.ID, connections)

		results = append(results, MatchResult{
			CandidateID:       candidate.ID,
			CandidateName:     candidate.Name,
			Score:             score.Score,
			Breakdown:         score.Breakdown,
			SharedCourses:     score.SharedCourses,
			SharedTopicsCount: score.SharedTopicsCount,
			ConnectionStatus:  state.Status,
			IsPendingSent:     state.IsPendingSent,
			IsPendingReceived: state.IsPendingReceived,
		})
	}

	return Rank(results, limit), nil
}

package partner

import (
	"fmt"
	"math"
	"strings"
)

// Scoring weights. The shared-course contribution is capped at 4 courses
// so that no single factor can dominate the score, while the displayed
// shared-course list stays uncapped.
const (
	pointsPerSharedCourse = 15
	sharedCourseCap       = 4
	programWeight         = 30
	sameInstitutionPoints = 3

	maxScore = 100
)

// yearProximityPoints maps |yearA - yearB| to points. Differences beyond
// 2 contribute nothing.
var yearProximityPoints = map[int]int{
	0: 7,
	1: 4,
	2: 2,
}

// Tokenize lower-cases the input, replaces every character outside
// [a-z0-9\s] with a space, splits on whitespace, strips one trailing
// suffix of ing/ers/er/s from each token, and drops empty tokens.
//
// The suffix stripping is deliberately naive and lossy; it is a fixed part
// of the scoring semantics, not a stand-in for a real stemmer. Swapping in
// an actual stemmer changes observed scores.
func Tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var tokens []string
	for _, token := range strings.Fields(b.String()) {
		token = stripSuffix(token)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// stripSuffix removes at most one trailing suffix, longest first.
func stripSuffix(token string) string {
	for _, suffix := range []string{"ing", "ers", "er", "s"} {
		if strings.HasSuffix(token, suffix) {
			return token[:len(token)-len(suffix)]
		}
	}
	return token
}

// Jaccard computes |intersection| / |union| of two token slices. When both
// are empty the result is a defined 0, not NaN.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	union := len(setB)
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ComputeScore scores a candidate against the current user. Missing fields
// (program, year, institution) contribute zero signal rather than erroring.
// The result is clamped to [0,100] and the breakdown lists only factors
// with a non-zero contribution, in fixed factor order.
func ComputeScore(current, candidate UserProfile) ScoreResult {
	facts := Overlap(current.Courses, candidate.Courses)

	result := ScoreResult{
		Breakdown:         []string{},
		SharedCourses:     facts.SharedCourseNames,
		SharedTopicsCount: facts.SharedTopicCount,
	}
	if result.SharedCourses == nil {
		result.SharedCourses = []string{}
	}

	total := 0

	// Shared courses: min(n, 4) * 15, max 60.
	if n := len(facts.SharedCourseNames); n > 0 {
		capped := n
		if capped > sharedCourseCap {
			capped = sharedCourseCap
		}
		points := capped * pointsPerSharedCourse
		total += points
		result.Breakdown = append(result.Breakdown,
			fmt.Sprintf("Shared courses ×%d: +%d", n, points))
	}

	// Program similarity: round(jaccard * 30), max 30.
	similarity := Jaccard(Tokenize(current.Program), Tokenize(candidate.Program))
	if points := int(math.Round(similarity * programWeight)); points > 0 {
		total += points
		result.Breakdown = append(result.Breakdown,
			fmt.Sprintf("Program similarity: +%d", points))
	}

	// Year proximity: 0->7, 1->4, 2->2, else 0.
	if current.Year != nil && candidate.Year != nil {
		diff := *current.Year - *candidate.Year
		if diff < 0 {
			diff = -diff
		}
		if points := yearProximityPoints[diff]; points > 0 {
			total += points
			result.Breakdown = append(result.Breakdown,
				fmt.Sprintf("Year proximity: +%d", points))
		}
	}

	// Same institution: +3 when both are set and equal.
	if current.Institution != "" && candidate.Institution != "" &&
		strings.EqualFold(current.Institution, candidate.Institution) {
		total += sameInstitutionPoints
		result.Breakdown = append(result.Breakdown,
			fmt.Sprintf("Same institution: +%d", sameInstitutionPoints))
	}

	if total > maxScore {
		total = maxScore
	}
	if total < 0 {
		total = 0
	}
	result.Score = total

	return result
}

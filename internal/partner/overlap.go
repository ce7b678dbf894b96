package partner

import "strings"

// MatchCourses determines which of a's enrolled courses count as shared
// with b's enrollment set. For each of a's courses the tiers below are
// evaluated in order against each of b's courses; the first tier that
// matches wins and the course is counted once, so no course is double
// counted. Discovery order is preserved for display.
//
// Tiers:
//  1. exact course-id match
//  2. case-insensitive substring containment of one name in the other
//  3. any name token longer than 2 chars appears as a substring of the
//     other name (either direction)
//  4. first 3 characters of both codes equal, case-insensitive
//  5. both descriptions longer than 20 chars and the first 50 chars of
//     one appear in the other (either direction)
func MatchCourses(a, b []CourseEnrollment) []CoursePair {
	var pairs []CoursePair
	seen := make(map[string]bool, len(a))

	for _, courseA := range a {
		key := courseKey(courseA)
		if seen[key] {
			continue
		}
		for _, courseB := range b {
			if coursesMatch(courseA, courseB) {
				seen[key] = true
				pairs = append(pairs, CoursePair{A: courseA, B: courseB})
				break
			}
		}
	}

	return pairs
}

// Overlap reduces matched course pairs to the derived facts the scorer
// consumes. The shared-course name list is the full display list.
func Overlap(a, b []CourseEnrollment) OverlapFacts {
	pairs := MatchCourses(a, b)

	facts := OverlapFacts{
		SharedTopicCount: CountSharedTopics(pairs),
	}
	for _, pair := range pairs {
		facts.SharedCourseIDs = append(facts.SharedCourseIDs, pair.A.CourseID)
		facts.SharedCourseNames = append(facts.SharedCourseNames, pair.A.Name)
	}
	return facts
}

// courseKey identifies a course for dedup purposes. Courses without a
// stored id fall back to their lower-cased name.
func courseKey(c CourseEnrollment) string {
	if c.CourseID != "" {
		return c.CourseID
	}
	return "name:" + strings.ToLower(c.Name)
}

func coursesMatch(a, b CourseEnrollment) bool {
	// Tier 1: exact course-id match.
	if a.CourseID != "" && a.CourseID == b.CourseID {
		return true
	}

	nameA := strings.ToLower(a.Name)
	nameB := strings.ToLower(b.Name)

	// Tier 2: name containment, either direction.
	if nameA != "" && nameB != "" {
		if strings.Contains(nameA, nameB) || strings.Contains(nameB, nameA) {
			return true
		}
	}

	// Tier 3: word-level token match, either direction.
	if tokenOverlap(nameA, nameB) || tokenOverlap(nameB, nameA) {
		return true
	}

	// Tier 4: module-code prefix match on the first 3 characters.
	if len(a.Code) >= 3 && len(b.Code) >= 3 &&
		strings.EqualFold(a.Code[:3], b.Code[:3]) {
		return true
	}

	// Tier 5: description overlap on the first 50 characters.
	if len(a.Description) > 20 && len(b.Description) > 20 {
		descA := strings.ToLower(a.Description)
		descB := strings.ToLower(b.Description)
		if strings.Contains(descB, head(descA, 50)) || strings.Contains(descA, head(descB, 50)) {
			return true
		}
	}

	return false
}

// tokenOverlap reports whether any whitespace-delimited token of src longer
// than 2 characters appears as a substring of dst. Both inputs must already
// be lower-cased.
func tokenOverlap(src, dst string) bool {
	if src == "" || dst == "" {
		return false
	}
	for _, token := range strings.Fields(src) {
		if len(token) > 2 && strings.Contains(dst, token) {
			return true
		}
	}
	return false
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

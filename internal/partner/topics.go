package partner

import "strings"

// CountSharedTopics counts, within course pairs already identified as
// shared, the distinct topic names on the A side that match a topic name
// on the B side under case-insensitive equality or substring containment
// in either direction. The result is a signal for scoring and explanation
// only; it is never expanded into a list.
func CountSharedTopics(pairs []CoursePair) int {
	if len(pairs) == 0 {
		return 0
	}

	var theirTopics []string
	for _, pair := range pairs {
		for _, topic := range pair.B.Topics {
			if name := strings.ToLower(strings.TrimSpace(topic.Name)); name != "" {
				theirTopics = append(theirTopics, name)
			}
		}
	}
	if len(theirTopics) == 0 {
		return 0
	}

	counted := make(map[string]bool)
	for _, pair := range pairs {
		for _, topic := range pair.A.Topics {
			name := strings.ToLower(strings.TrimSpace(topic.Name))
			if name == "" || counted[name] {
				continue
			}
			for _, theirs := range theirTopics {
				if topicsMatch(name, theirs) {
					counted[name] = true
					break
				}
			}
		}
	}

	return len(counted)
}

// topicsMatch reports whether two lower-cased topic names overlap: equal,
// or one contained in the other.
func topicsMatch(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

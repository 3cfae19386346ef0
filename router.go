package guardowl

import "strings"

// intent classifies a guard query for dispatch. Report lookup is the
// default; the deterministic helpers only fire on strong trigger
// matches so they never shadow retrieval queries.
type intent int

const (
	intentReports intent = iota
	intentSupport
	intentSchedule
)

var intentTriggers = map[intent][][]string{
	// Every word in a trigger group must appear for the group to match.
	intentSupport: {
		{"support", "number"},
		{"support", "call"},
		{"support", "contact"},
		{"call", "help", "line"},
	},
	intentSchedule: {
		{"shift", "schedule"},
		{"my", "shift"},
		{"work", "schedule"},
	},
}

// routeQuery picks the handling intent for a message.
func routeQuery(message string) intent {
	words := strings.Fields(strings.ToLower(message))
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[strings.TrimRight(w, "?!.,;:")] = true
	}

	for _, candidate := range []intent{intentSupport, intentSchedule} {
		for _, group := range intentTriggers[candidate] {
			if allPresent(present, group) {
				return candidate
			}
		}
	}
	return intentReports
}

func allPresent(present map[string]bool, words []string) bool {
	for _, w := range words {
		if !present[w] {
			return false
		}
	}
	return true
}

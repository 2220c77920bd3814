package workflow

import (
	"regexp"
	"strings"
)

// IsCompleteList reports whether a list classification key counts as
// completed work. Only the key matters; list titles are ignored.
func IsCompleteList(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "qa", "done":
		return true
	}
	return false
}

var evalToken = regexp.MustCompile(`\bEVAL\b`)

// ClassifyEval reports whether a card title marks an evaluation card: a
// whole-word EVAL, case-insensitive, not immediately preceded by "NON-".
func ClassifyEval(title string) bool {
	upper := strings.ToUpper(strings.TrimSpace(title))
	for _, loc := range evalToken.FindAllStringIndex(upper, -1) {
		if !strings.HasSuffix(upper[:loc[0]], "NON-") {
			return true
		}
	}
	return false
}

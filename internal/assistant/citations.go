package assistant

import (
	"regexp"
	"strings"
)

// Annotations look like "【4:0†source】".
var citationPattern = regexp.MustCompile(`【[^】]*】`)

// Daggers outside an annotation are left alone.
var strayMarkers = strings.NewReplacer("【", "", "】", "")

// StripCitations removes inline citation annotations emitted by the backend.
// It is idempotent.
func StripCitations(s string) string {
	if s == "" {
		return s
	}
	s = citationPattern.ReplaceAllString(s, "")
	s = strayMarkers.Replace(s)
	return strings.TrimSpace(s)
}

package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// newStoryboardID builds a sortable, human-readable id such as
// 20260102_150405_cotton-flannel-shirt_1a2b3c4d.
func newStoryboardID(now time.Time, description string) string {
	sanitized := sanitizeForPath(description)
	if sanitized == "" {
		sanitized = "untitled"
	}
	if len(sanitized) > 40 {
		sanitized = strings.Trim(sanitized[:40], "-")
	}

	return fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), sanitized, uuid.NewString()[:8])
}

func sanitizeForPath(s string) string {
	s = strings.ToLower(s)
	s = sanitizeRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}

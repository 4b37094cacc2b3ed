package core

import (
	"strings"
	"time"
)

// NowFunc is the clock used by services; tests replace it.
type NowFunc func() time.Time

// UTCNow is the default NowFunc.
func UTCNow() time.Time { return time.Now().UTC() }

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func TimePtr(t time.Time) *time.Time { return &t }

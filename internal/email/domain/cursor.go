package domain

import (
	"strconv"
	"strings"
)

// CompareCursor orders two delta cursors. Both Gmail history ids and IMAP UIDs
// are unsigned integers, so numeric comparison is used whenever both sides
// parse; otherwise shorter-then-lexical ordering keeps digit strings sane.
// An empty cursor sorts before everything.
func CompareCursor(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxCursor returns the newer of two cursors.
func MaxCursor(a, b string) string {
	if CompareCursor(a, b) >= 0 {
		return a
	}
	return b
}

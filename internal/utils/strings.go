package utils

import (
	"regexp"
	"strings"
)

var (
	nonDigits    = regexp.MustCompile(`\D`)
	unsafeChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedDots = regexp.MustCompile(`\.{2,}`)
)

// OnlyDigits strips every non-digit rune. Documents stay strings so leading
// zeros survive.
func OnlyDigits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// SafeFilename rewrites a name so it is safe to hand to any filesystem or
// Content-Disposition header: path separators, Windows-reserved characters and
// control bytes become underscores, dot runs collapse, and the result is
// capped at 200 bytes. An empty result falls back to "arquivo".
func SafeFilename(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = repeatedDots.ReplaceAllString(s, ".")
	s = strings.Trim(s, ".")
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "arquivo"
	}
	return s
}

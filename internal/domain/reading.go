package domain

import "strings"

// WordsPerMinute is the reading speed used for estimates.
const WordsPerMinute = 200

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// EstimateReadingMinutes rounds up and never returns less than one minute.
func EstimateReadingMinutes(words int) int {
	if words <= 0 {
		return 1
	}
	m := (words + WordsPerMinute - 1) / WordsPerMinute
	if m < 1 {
		m = 1
	}
	return m
}

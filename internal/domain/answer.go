package domain

import (
	"fmt"
	"strings"
)

// MaxOptions is the number of options every catalogue question carries (a..d).
const MaxOptions = 4

// CorrectAnswer is the authoritative zero-based option index of a question.
// AnswerUnresolved is a tagged value, distinct from every real option, marking a
// question whose answer could not be resolved from the content store.
type CorrectAnswer int

const AnswerUnresolved CorrectAnswer = -1

// Resolved reports whether the value is a real option index.
func (c CorrectAnswer) Resolved() bool {
	return c >= 0 && int(c) < MaxOptions
}

// Letter returns the option letter ("a".."d"), or "" when unresolved.
func (c CorrectAnswer) Letter() string {
	if !c.Resolved() {
		return ""
	}
	return string(rune('a' + int(c)))
}

// Matches reports whether a normalized letter selects this answer.
// An unresolved answer never matches anything.
func (c CorrectAnswer) Matches(letter string) bool {
	if !c.Resolved() || letter == "" {
		return false
	}
	return c.Letter() == letter
}

// AnswerFromIndex validates a catalogue correct-option index.
func AnswerFromIndex(idx int) CorrectAnswer {
	if idx < 0 || idx >= MaxOptions {
		return AnswerUnresolved
	}
	return CorrectAnswer(idx)
}

// NormalizeAnswer lowercases and validates a submitted option letter.
// The empty string is valid and means "not answered".
func NormalizeAnswer(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", nil
	}
	if len(v) != 1 || v[0] < 'a' || v[0] >= byte('a'+MaxOptions) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAnswer, raw)
	}
	return v, nil
}

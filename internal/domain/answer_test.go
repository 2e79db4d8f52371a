package domain

import (
	"errors"
	"testing"
)

func TestCorrectAnswerLetterAndMatches(t *testing.T) {
	if got := CorrectAnswer(0).Letter(); got != "a" {
		t.Fatalf("Letter(0) = %q, want a", got)
	}
	if got := CorrectAnswer(3).Letter(); got != "d" {
		t.Fatalf("Letter(3) = %q, want d", got)
	}
	if AnswerUnresolved.Resolved() || AnswerUnresolved.Letter() != "" {
		t.Fatalf("unresolved answer must have no letter")
	}
	if !CorrectAnswer(1).Matches("b") || CorrectAnswer(1).Matches("a") {
		t.Fatalf("Matches compares letters incorrectly")
	}
	for _, v := range []string{"", "a", "b", "c", "d"} {
		if AnswerUnresolved.Matches(v) {
			t.Fatalf("unresolved answer matched %q", v)
		}
	}
}

func TestAnswerFromIndex(t *testing.T) {
	if AnswerFromIndex(2) != CorrectAnswer(2) {
		t.Fatalf("AnswerFromIndex(2) should be 2")
	}
	for _, idx := range []int{-1, 4, 99} {
		if AnswerFromIndex(idx) != AnswerUnresolved {
			t.Fatalf("AnswerFromIndex(%d) should be unresolved", idx)
		}
	}
}

func TestNormalizeAnswer(t *testing.T) {
	valid := map[string]string{" B ": "b", "d": "d", "": "", "  ": ""}
	for in, want := range valid {
		got, err := NormalizeAnswer(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeAnswer(%q) = (%q, %v), want (%q, nil)", in, got, err, want)
		}
	}
	for _, in := range []string{"e", "ab", "1", "z"} {
		if _, err := NormalizeAnswer(in); !errors.Is(err, ErrInvalidAnswer) {
			t.Fatalf("NormalizeAnswer(%q) expected ErrInvalidAnswer, got %v", in, err)
		}
	}
}

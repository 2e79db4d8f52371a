package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DifficultyMode selects which catalogue difficulties are eligible.
type DifficultyMode string

const (
	DifficultyEasy   DifficultyMode = "easy"
	DifficultyMedium DifficultyMode = "medium"
	DifficultyHard   DifficultyMode = "hard"
	DifficultyMixed  DifficultyMode = "mixed"
)

// Difficulties lists the concrete catalogue difficulties in display order.
var Difficulties = []string{string(DifficultyEasy), string(DifficultyMedium), string(DifficultyHard)}

// Filter is the selection criteria of a session ("oposición", temas and flags).
type Filter struct {
	Track         string         `json:"track" yaml:"track"`
	Themes        []int          `json:"themes" yaml:"themes"`
	Difficulty    DifficultyMode `json:"difficulty,omitempty" yaml:"difficulty"`
	OfficialOnly  bool           `json:"officialOnly,omitempty" yaml:"officialOnly"`
	EssentialOnly bool           `json:"essentialOnly,omitempty" yaml:"essentialOnly"`
}

// Normalize validates f and returns a canonical copy: trimmed track, sorted
// de-duplicated themes and an explicit difficulty mode.
func (f Filter) Normalize() (Filter, error) {
	out := f
	out.Track = strings.TrimSpace(f.Track)
	if out.Track == "" {
		return Filter{}, fmt.Errorf("%w: track is required", ErrInvalidFilter)
	}
	if len(f.Themes) == 0 {
		return Filter{}, fmt.Errorf("%w: at least one theme is required", ErrInvalidFilter)
	}

	seen := make(map[int]struct{}, len(f.Themes))
	themes := make([]int, 0, len(f.Themes))
	for _, t := range f.Themes {
		if t <= 0 {
			return Filter{}, fmt.Errorf("%w: theme %d is not a valid tema number", ErrInvalidFilter, t)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		themes = append(themes, t)
	}
	sort.Ints(themes)
	out.Themes = themes

	mode := DifficultyMode(strings.ToLower(strings.TrimSpace(string(f.Difficulty))))
	switch mode {
	case "":
		mode = DifficultyMixed
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
	default:
		return Filter{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidFilter, f.Difficulty)
	}
	out.Difficulty = mode
	return out, nil
}

// Admits reports whether a question difficulty passes the difficulty mode.
func (f Filter) Admits(difficulty string) bool {
	return f.Difficulty == DifficultyMixed || f.Difficulty == "" || string(f.Difficulty) == difficulty
}

// CacheKey is a stable textual form of a normalized filter.
func (f Filter) CacheKey() string {
	var b strings.Builder
	b.WriteString(f.Track)
	b.WriteByte('|')
	for i, t := range f.Themes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(t))
	}
	fmt.Fprintf(&b, "|%s|%t|%t", f.Difficulty, f.OfficialOnly, f.EssentialOnly)
	return b.String()
}

// Availability is the eligible question count for a filter.
type Availability struct {
	Total        int            `json:"total"`
	ByDifficulty map[string]int `json:"breakdownByDifficulty,omitempty"`
}

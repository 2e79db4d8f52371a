package memory

import (
	"context"
	"fmt"
	"os"

	"exam-session-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// ThemeRef places a question inside the syllabus of a track.
type ThemeRef struct {
	Track string `yaml:"track"`
	Tema  int    `yaml:"tema"`
}

// CatalogueQuestion is a catalogue row as the static store keeps it.
type CatalogueQuestion struct {
	ID            string     `yaml:"id"`
	QuestionText  string     `yaml:"questionText"`
	Options       []string   `yaml:"options"`
	CorrectOption int        `yaml:"correctOption"`
	Explanation   string     `yaml:"explanation"`
	Difficulty    string     `yaml:"difficulty"`
	Official      bool       `yaml:"official"`
	Inactive      bool       `yaml:"inactive"`
	ArticleID     string     `yaml:"articleId"`
	ArticleNumber string     `yaml:"articleNumber"`
	LawName       string     `yaml:"lawName"`
	Essential     bool       `yaml:"essential"`
	Themes        []ThemeRef `yaml:"themes"`
}

// Matches reports whether q is eligible under a normalized filter.
func (q CatalogueQuestion) Matches(f domain.Filter) bool {
	if q.Inactive {
		return false
	}
	if f.OfficialOnly && !q.Official {
		return false
	}
	if f.EssentialOnly && !q.Essential {
		return false
	}
	if !f.Admits(q.Difficulty) {
		return false
	}
	for _, ref := range q.Themes {
		if ref.Track != f.Track {
			continue
		}
		for _, t := range f.Themes {
			if ref.Tema == t {
				return true
			}
		}
	}
	return false
}

// ContentStore is a static catalogue (useful for tests, demos and local runs).
type ContentStore struct {
	questions []CatalogueQuestion
	byID      map[string]CatalogueQuestion
}

func NewContentStore(questions []CatalogueQuestion) *ContentStore {
	byID := make(map[string]CatalogueQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &ContentStore{questions: questions, byID: byID}
}

// LoadContentSeed builds a ContentStore from a YAML seed file.
func LoadContentSeed(path string) (*ContentStore, error) {
	questions, err := LoadCatalogue(path)
	if err != nil {
		return nil, err
	}
	return NewContentStore(questions), nil
}

// LoadCatalogue reads the questions list of a YAML seed file.
func LoadCatalogue(path string) ([]CatalogueQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed struct {
		Questions []CatalogueQuestion `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse content seed: %w", err)
	}
	return seed.Questions, nil
}

func (s *ContentStore) CountEligible(ctx context.Context, f domain.Filter) (domain.Availability, error) {
	if err := ctx.Err(); err != nil {
		return domain.Availability{}, err
	}
	result := domain.Availability{ByDifficulty: make(map[string]int)}
	for _, q := range s.questions {
		if q.Matches(f) {
			result.Total++
			result.ByDifficulty[q.Difficulty]++
		}
	}
	return result, nil
}

func (s *ContentStore) ResolveCorrectAnswers(ctx context.Context, ids []string) (map[string]domain.CorrectAnswer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]domain.CorrectAnswer, len(ids))
	for _, id := range ids {
		if q, ok := s.byID[id]; ok {
			out[id] = domain.AnswerFromIndex(q.CorrectOption)
		}
	}
	return out, nil
}

func (s *ContentStore) HydrateQuestions(ctx context.Context, ids []string) (map[string]domain.QuestionContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]domain.QuestionContent, len(ids))
	for _, id := range ids {
		q, ok := s.byID[id]
		if !ok {
			continue
		}
		out[id] = domain.QuestionContent{
			ID:            q.ID,
			QuestionText:  q.QuestionText,
			Options:       append([]string(nil), q.Options...),
			Explanation:   q.Explanation,
			ArticleID:     q.ArticleID,
			ArticleNumber: q.ArticleNumber,
			LawName:       q.LawName,
			Difficulty:    q.Difficulty,
		}
	}
	return out, nil
}

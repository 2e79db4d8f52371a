package postgres

import (
	"context"
	"fmt"

	"exam-session-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ContentStore reads the question catalogue from Postgres. It never writes.
type ContentStore struct {
	pool *pgxpool.Pool
}

func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

// eligibleQuestionsSQL selects active questions whose primary article belongs to
// one of the requested temas of the track (topic_scope maps temas to laws and,
// optionally, to a subset of their articles).
const eligibleQuestionsSQL = `
SELECT q.difficulty, COUNT(*)
FROM questions q
JOIN articles a ON a.id = q.primary_article_id
WHERE q.is_active
  AND ($3::text = 'mixed' OR q.difficulty = $3::text)
  AND (NOT $4::bool OR q.is_official_exam)
  AND (NOT $5::bool OR a.is_essential)
  AND EXISTS (
    SELECT 1 FROM topic_scope ts
    WHERE ts.track = $1
      AND ts.tema_number = ANY($2::int4[])
      AND ts.law_id = a.law_id
      AND (ts.article_numbers IS NULL OR a.article_number = ANY(ts.article_numbers))
  )
GROUP BY q.difficulty`

func (s *ContentStore) CountEligible(ctx context.Context, f domain.Filter) (domain.Availability, error) {
	themes := make([]int32, 0, len(f.Themes))
	for _, t := range f.Themes {
		themes = append(themes, int32(t))
	}
	difficulty := string(f.Difficulty)
	if difficulty == "" {
		difficulty = string(domain.DifficultyMixed)
	}

	rows, err := s.pool.Query(ctx, eligibleQuestionsSQL, f.Track, themes, difficulty, f.OfficialOnly, f.EssentialOnly)
	if err != nil {
		return domain.Availability{}, fmt.Errorf("count eligible questions: %w", err)
	}
	defer rows.Close()

	result := domain.Availability{ByDifficulty: make(map[string]int)}
	for rows.Next() {
		var (
			level string
			count int64
		)
		if err := rows.Scan(&level, &count); err != nil {
			return domain.Availability{}, fmt.Errorf("scan eligible count: %w", err)
		}
		result.ByDifficulty[level] += int(count)
		result.Total += int(count)
	}
	if err := rows.Err(); err != nil {
		return domain.Availability{}, fmt.Errorf("count eligible questions: %w", err)
	}
	return result, nil
}

// ResolveCorrectAnswers looks up every id in one query, whether or not the
// question is still active.
func (s *ContentStore) ResolveCorrectAnswers(ctx context.Context, questionIDs []string) (map[string]domain.CorrectAnswer, error) {
	ids, inputs := canonicalIDs(questionIDs)
	out := make(map[string]domain.CorrectAnswer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id::text, correct_option FROM questions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve correct answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      string
			correct int16
		)
		if err := rows.Scan(&id, &correct); err != nil {
			return nil, fmt.Errorf("scan correct answer: %w", err)
		}
		for _, input := range inputs[id] {
			out[input] = domain.AnswerFromIndex(int(correct))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve correct answers: %w", err)
	}
	return out, nil
}

func (s *ContentStore) HydrateQuestions(ctx context.Context, questionIDs []string) (map[string]domain.QuestionContent, error) {
	ids, inputs := canonicalIDs(questionIDs)
	out := make(map[string]domain.QuestionContent, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT q.id::text, q.question_text, q.options, q.explanation, q.difficulty,
       COALESCE(a.id::text, ''), COALESCE(a.article_number, ''), COALESCE(l.short_name, '')
FROM questions q
LEFT JOIN articles a ON a.id = q.primary_article_id
LEFT JOIN laws l ON l.id = a.law_id
WHERE q.id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.QuestionContent
		if err := rows.Scan(&c.ID, &c.QuestionText, &c.Options, &c.Explanation, &c.Difficulty,
			&c.ArticleID, &c.ArticleNumber, &c.LawName); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		for _, input := range inputs[c.ID] {
			c.ID = input
			out[input] = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hydrate questions: %w", err)
	}
	return out, nil
}

// canonicalIDs returns the canonical form of every parseable id, plus a map
// back to every distinct spelling the caller used for it. Ids that are not
// UUIDs cannot exist in the catalogue and are left unresolved.
func canonicalIDs(ids []string) ([]string, map[string][]string) {
	out := make([]string, 0, len(ids))
	inputs := make(map[string][]string, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		c := parsed.String()
		spellings, seen := inputs[c]
		if !seen {
			out = append(out, c)
		}
		if !containsString(spellings, id) {
			inputs[c] = append(spellings, id)
		}
	}
	return out, inputs
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

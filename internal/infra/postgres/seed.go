package postgres

import (
	"context"
	"fmt"
	"sort"

	"exam-session-engine/internal/infra/memory"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const generalLaw = "General"

var seedNamespace = uuid.MustParse("5f2b8a9e-3c1d-4e7f-9a6b-0d8c2e4f6a1b")

// SeedCatalogue upserts catalogue questions (laws, articles, questions and the
// tema scopes they declare) in one transaction. Non-UUID ids are mapped to
// stable name-based UUIDs so the same seed can be applied repeatedly.
func SeedCatalogue(ctx context.Context, pool *pgxpool.Pool, questions []memory.CatalogueQuestion) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	type scopeKey struct {
		track string
		tema  int
		law   uuid.UUID
	}
	scopes := make(map[scopeKey]map[string]struct{})
	batch := &pgx.Batch{}
	for _, q := range questions {
		law := q.LawName
		if law == "" {
			law = generalLaw
		}
		lawID := stableID("law", law)
		articleNumber := q.ArticleNumber
		if articleNumber == "" {
			articleNumber = "0"
		}
		articleID := stableID("article", q.ArticleID, law, articleNumber)
		difficulty := q.Difficulty
		if difficulty == "" {
			difficulty = "medium"
		}

		batch.Queue(`INSERT INTO laws (id, short_name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, lawID, law)
		batch.Queue(`INSERT INTO articles (id, law_id, article_number, is_essential) VALUES ($1, $2, $3, $4)
ON CONFLICT (law_id, article_number) DO UPDATE SET is_essential = articles.is_essential OR EXCLUDED.is_essential`,
			articleID, lawID, articleNumber, q.Essential)
		batch.Queue(`INSERT INTO questions (id, primary_article_id, question_text, options, correct_option, explanation, difficulty, is_official_exam, is_active)
SELECT $1, a.id, $2, $3, $4, $5, $6, $7, $8 FROM articles a WHERE a.law_id = $9 AND a.article_number = $10
ON CONFLICT (id) DO UPDATE SET
	question_text = EXCLUDED.question_text,
	options = EXCLUDED.options,
	correct_option = EXCLUDED.correct_option,
	explanation = EXCLUDED.explanation,
	difficulty = EXCLUDED.difficulty,
	is_official_exam = EXCLUDED.is_official_exam,
	is_active = EXCLUDED.is_active`,
			stableID("question", q.ID), q.QuestionText, q.Options, int16(q.CorrectOption), q.Explanation,
			difficulty, q.Official, !q.Inactive, lawID, articleNumber)

		for _, ref := range q.Themes {
			key := scopeKey{track: ref.Track, tema: ref.Tema, law: lawID}
			if scopes[key] == nil {
				scopes[key] = make(map[string]struct{})
			}
			scopes[key][articleNumber] = struct{}{}
		}
	}
	for key, set := range scopes {
		numbers := make([]string, 0, len(set))
		for n := range set {
			numbers = append(numbers, n)
		}
		sort.Strings(numbers)
		batch.Queue(`INSERT INTO topic_scope (track, tema_number, law_id, article_numbers) VALUES ($1, $2, $3, $4)
ON CONFLICT (track, tema_number, law_id) DO UPDATE SET
	article_numbers = ARRAY(SELECT DISTINCT unnest(topic_scope.article_numbers || EXCLUDED.article_numbers))`,
			key.track, int32(key.tema), key.law, numbers)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("seed catalogue statement %d: %w", i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// QuestionID returns the catalogue id a seed question is stored under.
func QuestionID(seedID string) string {
	return stableID("question", seedID).String()
}

// stableID returns parts[0] when it parses as a UUID and otherwise derives a
// name-based UUID from kind and parts.
func stableID(kind string, parts ...string) uuid.UUID {
	if len(parts) > 0 {
		if id, err := uuid.Parse(parts[0]); err == nil {
			return id
		}
	}
	name := kind
	for _, p := range parts {
		name += "/" + p
	}
	return uuid.NewSHA1(seedNamespace, []byte(name))
}

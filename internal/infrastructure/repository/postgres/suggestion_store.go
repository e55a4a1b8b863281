package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

// SuggestionStore owns the transaction_match_suggestions table. Inbox,
// transactions and attachments belong to the ingestion side; this is the
// only table the matcher writes.
type SuggestionStore struct {
	db *sql.DB
}

func NewSuggestionStore(db *sql.DB) *SuggestionStore {
	return &SuggestionStore{db: db}
}

func (s *SuggestionStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS transaction_match_suggestions (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	inbox_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	amount_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	date_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	match_type TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (inbox_id, transaction_id)
);

CREATE INDEX IF NOT EXISTS idx_match_suggestions_team_status ON transaction_match_suggestions(team_id, status);
CREATE INDEX IF NOT EXISTS idx_match_suggestions_created_at ON transaction_match_suggestions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const suggestionColumns = `id, team_id, inbox_id, transaction_id, confidence_score, amount_score, currency_score, date_score, embedding_score, match_type, status, created_at, updated_at`

// Upsert inserts or refreshes the suggestion for a pair. A re-run of the
// matcher updates the scores in place and resets the status to the new
// suggestion's status.
func (s *SuggestionStore) Upsert(ctx context.Context, suggestion *domain.MatchSuggestion) (*domain.MatchSuggestion, error) {
	row := s.db.QueryRowContext(ctx, `
INSERT INTO transaction_match_suggestions (
	id, team_id, inbox_id, transaction_id, confidence_score, amount_score, currency_score, date_score, embedding_score, match_type, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (inbox_id, transaction_id) DO UPDATE SET
	confidence_score = EXCLUDED.confidence_score,
	amount_score = EXCLUDED.amount_score,
	currency_score = EXCLUDED.currency_score,
	date_score = EXCLUDED.date_score,
	embedding_score = EXCLUDED.embedding_score,
	match_type = EXCLUDED.match_type,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at
RETURNING `+suggestionColumns+`
`,
		suggestion.ID, suggestion.TeamID, suggestion.InboxID, suggestion.TransactionID,
		suggestion.ConfidenceScore, suggestion.AmountScore, suggestion.CurrencyScore,
		suggestion.DateScore, suggestion.EmbeddingScore, string(suggestion.MatchType),
		string(suggestion.Status), suggestion.CreatedAt, suggestion.UpdatedAt,
	)

	stored, err := scanSuggestion(row)
	if err != nil {
		return nil, fmt.Errorf("upsert suggestion: %w", err)
	}
	return stored, nil
}

func (s *SuggestionStore) GetByID(ctx context.Context, teamID, suggestionID string) (*domain.MatchSuggestion, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+suggestionColumns+`
FROM transaction_match_suggestions
WHERE id = $1 AND team_id = $2
`, suggestionID, teamID)

	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return suggestion, nil
}

func (s *SuggestionStore) UpdateStatus(ctx context.Context, teamID, suggestionID string, status domain.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE transaction_match_suggestions
SET status = $3, updated_at = $4
WHERE id = $1 AND team_id = $2
`, suggestionID, teamID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update suggestion status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update suggestion status: %w", err)
	}
	if affected == 0 {
		return domain.ErrSuggestionNotFound
	}
	return nil
}

// QueryOutcomes returns terminal suggestions inside the calibration
// window, newest first.
func (s *SuggestionStore) QueryOutcomes(ctx context.Context, teamID string, statuses []domain.SuggestionStatus, after time.Time) ([]domain.SuggestionOutcome, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := []any{teamID, after}
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, string(status))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT status, match_type, confidence_score, created_at
FROM transaction_match_suggestions
WHERE team_id = $1 AND created_at > $2 AND status IN (`+strings.Join(placeholders, ", ")+`)
ORDER BY created_at DESC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	return collectOutcomes(rows)
}

// QueryMerchantOutcomes finds past terminal suggestions whose inbox and
// transaction embeddings both sit within the pair distance of the
// current pair, i.e. prior history for the same merchant pairing.
func (s *SuggestionStore) QueryMerchantOutcomes(ctx context.Context, q domain.MerchantHistoryQuery) ([]domain.SuggestionOutcome, error) {
	if len(q.InboxEmbedding) == 0 || len(q.TransactionEmbedding) == 0 {
		return nil, fmt.Errorf("query merchant outcomes: %w: embeddings required", domain.ErrInvalidInput)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT s.status, s.match_type, s.confidence_score, s.created_at
FROM transaction_match_suggestions s
JOIN inbox i ON i.id = s.inbox_id
JOIN transactions t ON t.id = s.transaction_id
WHERE s.team_id = $1
  AND s.status IN ('confirmed', 'declined', 'unmatched')
  AND s.created_at > $2
  AND i.embedding IS NOT NULL
  AND t.embedding IS NOT NULL
  AND (i.embedding <=> $3::vector) < $5
  AND (t.embedding <=> $4::vector) < $5
ORDER BY s.created_at DESC
LIMIT $6
`, q.TeamID, q.Since, VectorLiteral(q.InboxEmbedding), VectorLiteral(q.TransactionEmbedding), q.MaxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("query merchant outcomes: %w", err)
	}
	defer rows.Close()

	return collectOutcomes(rows)
}

// WasDismissed reports whether this exact pair was declined or unmatched
// before. Dismissed pairs are never suggested again.
func (s *SuggestionStore) WasDismissed(ctx context.Context, teamID, inboxID, transactionID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM transaction_match_suggestions
	WHERE team_id = $1 AND inbox_id = $2 AND transaction_id = $3
	  AND status IN ('declined', 'unmatched')
)
`, teamID, inboxID, transactionID)

	var dismissed bool
	if err := row.Scan(&dismissed); err != nil {
		return false, fmt.Errorf("check dismissal: %w", err)
	}
	return dismissed, nil
}

// ExpirePending sweeps stale pending suggestions. Expired rows carry no
// review signal and stay out of calibration.
func (s *SuggestionStore) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE transaction_match_suggestions
SET status = 'expired', updated_at = $2
WHERE status = 'pending' AND created_at < $1
`, olderThan, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire pending suggestions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending suggestions: %w", err)
	}
	return affected, nil
}

func scanSuggestion(row scanner) (*domain.MatchSuggestion, error) {
	var suggestion domain.MatchSuggestion
	var matchType, status string
	err := row.Scan(
		&suggestion.ID, &suggestion.TeamID, &suggestion.InboxID, &suggestion.TransactionID,
		&suggestion.ConfidenceScore, &suggestion.AmountScore, &suggestion.CurrencyScore,
		&suggestion.DateScore, &suggestion.EmbeddingScore, &matchType, &status,
		&suggestion.CreatedAt, &suggestion.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	suggestion.MatchType = domain.MatchType(matchType)
	suggestion.Status = domain.SuggestionStatus(status)
	return &suggestion, nil
}

func collectOutcomes(rows *sql.Rows) ([]domain.SuggestionOutcome, error) {
	var out []domain.SuggestionOutcome
	for rows.Next() {
		var outcome domain.SuggestionOutcome
		var status, matchType string
		if err := rows.Scan(&status, &matchType, &outcome.ConfidenceScore, &outcome.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcome.Status = domain.SuggestionStatus(status)
		outcome.MatchType = domain.MatchType(matchType)
		out = append(out, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

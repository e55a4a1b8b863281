package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

// CandidateStore reads the inbox and transactions tables owned by the
// ingestion pipeline. The matcher only ever reads through this store.
type CandidateStore struct {
	db *sql.DB
}

func NewCandidateStore(db *sql.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const inboxColumns = `i.id, i.team_id, i.display_name, i.amount, i.currency, i.base_amount, i.base_currency, i.date, i.website, i.type, i.embedding::text, i.created_at`

func (s *CandidateStore) GetInboxItem(ctx context.Context, teamID, inboxID string) (*domain.InboxItem, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+inboxColumns+`
FROM inbox i
WHERE i.id = $1 AND i.team_id = $2
`, inboxID, teamID)

	item, err := scanInboxItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInboxItemNotFound
		}
		return nil, fmt.Errorf("get inbox item: %w", err)
	}
	return item, nil
}

const transactionColumns = `t.id, t.team_id, t.name, t.amount, t.currency, t.base_amount, t.base_currency, t.date, t.counterparty_name, t.description, t.status, t.recurring, t.embedding::text`

func (s *CandidateStore) GetTransaction(ctx context.Context, teamID, transactionID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+transactionColumns+`
FROM transactions t
WHERE t.id = $1 AND t.team_id = $2
`, transactionID, teamID)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

// QueryTransactionCandidates serves one retrieval tier. Posted
// transactions only; rows with a pending suggestion or an existing
// attachment never come back. Ordered by embedding distance, the
// cross-tier pool is re-ranked by the caller.
func (s *CandidateStore) QueryTransactionCandidates(ctx context.Context, q domain.TransactionCandidateQuery) ([]domain.TransactionCandidate, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("query transaction candidates: %w: embedding required", domain.ErrInvalidInput)
	}

	args := []any{q.TeamID, VectorLiteral(q.Embedding)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds := []string{
		"t.team_id = $1",
		"t.status = 'posted'",
		"t.embedding IS NOT NULL",
		"t.date IS NOT NULL",
		`NOT EXISTS (
	SELECT 1 FROM transaction_match_suggestions s
	WHERE s.transaction_id = t.id AND s.team_id = t.team_id AND s.status = 'pending'
)`,
		`NOT EXISTS (
	SELECT 1 FROM transaction_attachments a
	WHERE a.transaction_id = t.id AND a.team_id = t.team_id
)`,
	}
	if q.MaxEmbeddingDistance > 0 {
		conds = append(conds, "(t.embedding <=> $2::vector) < "+arg(q.MaxEmbeddingDistance))
	}
	if q.ExactAmount != nil {
		conds = append(conds, "ABS(ABS(t.amount) - ABS("+arg(*q.ExactAmount)+"::numeric)) < 0.01")
	}
	if q.Currency != "" {
		conds = append(conds, "t.currency = "+arg(q.Currency))
	}
	if q.ExactBaseAmount != nil {
		conds = append(conds,
			"t.base_amount IS NOT NULL",
			"ABS(ABS(t.base_amount) - ABS("+arg(*q.ExactBaseAmount)+"::numeric)) < "+arg(q.BaseAmountTolerance))
	}
	if q.BaseCurrency != "" {
		conds = append(conds, "t.base_currency = "+arg(q.BaseCurrency))
	}
	if q.AmountTolerance > 0 {
		conds = append(conds, "ABS(ABS(t.amount) - ABS("+arg(q.AmountTarget)+"::numeric)) < "+arg(q.AmountTolerance))
	}
	if !q.DateFrom.IsZero() {
		conds = append(conds, "t.date >= "+arg(q.DateFrom))
	}
	if !q.DateTo.IsZero() {
		conds = append(conds, "t.date <= "+arg(q.DateTo))
	}
	if len(q.ExcludeIDs) > 0 {
		placeholders := make([]string, len(q.ExcludeIDs))
		for i, id := range q.ExcludeIDs {
			placeholders[i] = arg(id)
		}
		conds = append(conds, "t.id NOT IN ("+strings.Join(placeholders, ", ")+")")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
SELECT ` + transactionColumns + `, (t.embedding <=> $2::vector) AS embedding_distance
FROM transactions t
WHERE ` + strings.Join(conds, "\n  AND ") + `
ORDER BY embedding_distance ASC
LIMIT ` + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transaction candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.TransactionCandidate
	for rows.Next() {
		cand, err := scanTransactionCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction candidate: %w", err)
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction candidates: %w", err)
	}
	return out, nil
}

// QueryInboxCandidates is the reverse-direction tier query against the
// inbox table.
func (s *CandidateStore) QueryInboxCandidates(ctx context.Context, q domain.InboxCandidateQuery) ([]domain.InboxCandidate, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("query inbox candidates: %w: embedding required", domain.ErrInvalidInput)
	}

	args := []any{q.TeamID, VectorLiteral(q.Embedding)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds := []string{
		"i.team_id = $1",
		"i.embedding IS NOT NULL",
		"i.date IS NOT NULL",
	}
	if !q.IncludeMatched {
		conds = append(conds, "i.transaction_id IS NULL")
	}
	if q.MaxEmbeddingDistance > 0 {
		conds = append(conds, "(i.embedding <=> $2::vector) < "+arg(q.MaxEmbeddingDistance))
	}
	if q.ExactAmount != nil {
		conds = append(conds, "i.amount IS NOT NULL", "ABS(ABS(i.amount) - ABS("+arg(*q.ExactAmount)+"::numeric)) < 0.01")
	}
	if q.Currency != "" {
		conds = append(conds, "i.currency = "+arg(q.Currency))
	}
	if q.AmountTolerance > 0 {
		conds = append(conds,
			"(i.amount IS NULL OR ABS(ABS(i.amount) - ABS("+arg(q.AmountTarget)+"::numeric)) < "+arg(q.AmountTolerance)+")")
	}
	if !q.DateFrom.IsZero() {
		conds = append(conds, "i.date >= "+arg(q.DateFrom))
	}
	if !q.DateTo.IsZero() {
		conds = append(conds, "i.date <= "+arg(q.DateTo))
	}
	if len(q.ExcludeIDs) > 0 {
		placeholders := make([]string, len(q.ExcludeIDs))
		for i, id := range q.ExcludeIDs {
			placeholders[i] = arg(id)
		}
		conds = append(conds, "i.id NOT IN ("+strings.Join(placeholders, ", ")+")")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
SELECT ` + inboxColumns + `, (i.transaction_id IS NOT NULL) AS is_matched, (i.embedding <=> $2::vector) AS embedding_distance
FROM inbox i
WHERE ` + strings.Join(conds, "\n  AND ") + `
ORDER BY embedding_distance ASC
LIMIT ` + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inbox candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.InboxCandidate
	for rows.Next() {
		var isMatched bool
		var distance float64
		item, err := scanInboxItem(rows, &isMatched, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan inbox candidate: %w", err)
		}
		out = append(out, domain.InboxCandidate{
			InboxItem:         *item,
			IsAlreadyMatched:  isMatched,
			EmbeddingDistance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbox candidates: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanInboxItem reads the shared inbox column set; candidate queries
// append their extra columns (is_matched, embedding_distance) as trailing
// scan targets.
func scanInboxItem(row scanner, extra ...any) (*domain.InboxItem, error) {
	var (
		item         domain.InboxItem
		amount       sql.NullFloat64
		currency     sql.NullString
		baseAmount   sql.NullFloat64
		baseCurrency sql.NullString
		date         sql.NullTime
		website      sql.NullString
		docType      sql.NullString
		embedding    sql.NullString
	)

	dest := []any{
		&item.ID, &item.TeamID, &item.DisplayName, &amount, &currency, &baseAmount, &baseCurrency,
		&date, &website, &docType, &embedding, &item.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if amount.Valid {
		item.Amount = &amount.Float64
	}
	item.Currency = currency.String
	if baseAmount.Valid {
		item.BaseAmount = &baseAmount.Float64
	}
	item.BaseCurrency = baseCurrency.String
	if date.Valid {
		item.Date = date.Time
	}
	item.Website = website.String
	item.Type = domain.DocumentType(docType.String)
	if embedding.Valid {
		vec, err := ParseVector(embedding.String)
		if err != nil {
			return nil, err
		}
		item.Embedding = vec
	}
	return &item, nil
}

func scanTransactionInto(row scanner, extra ...any) (*domain.Transaction, error) {
	var (
		txn          domain.Transaction
		baseAmount   sql.NullFloat64
		baseCurrency sql.NullString
		counterparty sql.NullString
		description  sql.NullString
		status       string
		embedding    sql.NullString
	)

	dest := []any{
		&txn.ID, &txn.TeamID, &txn.Name, &txn.Amount, &txn.Currency, &baseAmount, &baseCurrency,
		&txn.Date, &counterparty, &description, &status, &txn.Recurring, &embedding,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if baseAmount.Valid {
		txn.BaseAmount = &baseAmount.Float64
	}
	txn.BaseCurrency = baseCurrency.String
	txn.CounterpartyName = counterparty.String
	txn.Description = description.String
	txn.Status = domain.TransactionStatus(status)
	if embedding.Valid {
		vec, err := ParseVector(embedding.String)
		if err != nil {
			return nil, err
		}
		txn.Embedding = vec
	}
	return &txn, nil
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	return scanTransactionInto(row)
}

func scanTransactionCandidate(row scanner) (domain.TransactionCandidate, error) {
	var distance float64
	txn, err := scanTransactionInto(row, &distance)
	if err != nil {
		return domain.TransactionCandidate{}, err
	}
	return domain.TransactionCandidate{Transaction: *txn, EmbeddingDistance: distance}, nil
}

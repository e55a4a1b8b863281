package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

func newCandidateStoreWithMock(t *testing.T) (*CandidateStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &CandidateStore{db: db}, mock, func() { _ = db.Close() }
}

func TestVectorLiteralRoundTrip(t *testing.T) {
	in := []float32{0.125, -0.5, 1}

	literal := VectorLiteral(in)
	if literal != "[0.125,-0.5,1]" {
		t.Fatalf("literal = %q", literal)
	}

	out, err := ParseVector(literal)
	if err != nil {
		t.Fatalf("ParseVector: %v", err)
	}
	if len(out) != 3 || out[0] != 0.125 || out[1] != -0.5 || out[2] != 1 {
		t.Fatalf("round trip = %v", out)
	}
}

func TestParseVectorRejectsGarbage(t *testing.T) {
	if _, err := ParseVector("0.1,0.2"); err == nil {
		t.Fatal("expected error for literal without brackets")
	}
	if _, err := ParseVector("[0.1,abc]"); err == nil {
		t.Fatal("expected error for non-numeric component")
	}
}

func TestGetInboxItemNotFound(t *testing.T) {
	store, mock, done := newCandidateStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT i.id, i.team_id, i.display_name").
		WithArgs("missing", "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetInboxItem(context.Background(), "team-1", "missing")
	if !domain.IsKind(err, domain.ErrInboxItemNotFound) {
		t.Fatalf("expected ErrInboxItemNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetInboxItemScansNullableColumns(t *testing.T) {
	store, mock, done := newCandidateStoreWithMock(t)
	defer done()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "team_id", "display_name", "amount", "currency", "base_amount", "base_currency",
		"date", "website", "type", "embedding", "created_at",
	}).AddRow("inbox-1", "team-1", "Acme Invoice", nil, nil, nil, nil, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil, "invoice", "[0.1,0.2]", created)

	mock.ExpectQuery("SELECT i.id, i.team_id, i.display_name").
		WithArgs("inbox-1", "team-1").
		WillReturnRows(rows)

	item, err := store.GetInboxItem(context.Background(), "team-1", "inbox-1")
	if err != nil {
		t.Fatalf("GetInboxItem: %v", err)
	}
	if item.Amount != nil {
		t.Fatal("expected nil amount from NULL column")
	}
	if item.Type != domain.DocumentTypeInvoice {
		t.Fatalf("type = %q", item.Type)
	}
	if len(item.Embedding) != 2 {
		t.Fatalf("embedding = %v", item.Embedding)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryTransactionCandidates(t *testing.T) {
	store, mock, done := newCandidateStoreWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "team_id", "name", "amount", "currency", "base_amount", "base_currency",
		"date", "counterparty_name", "description", "status", "recurring", "embedding", "embedding_distance",
	}).AddRow("txn-1", "team-1", "ACME", -1000.0, "EUR", nil, nil,
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), nil, nil, "posted", false, "[0.1,0.2]", 0.12)

	mock.ExpectQuery("SELECT t.id, t.team_id, t.name").
		WillReturnRows(rows)

	amount := 1000.0
	got, err := store.QueryTransactionCandidates(context.Background(), domain.TransactionCandidateQuery{
		TeamID:               "team-1",
		Embedding:            []float32{0.1, 0.2},
		MaxEmbeddingDistance: 0.6,
		ExactAmount:          &amount,
		Currency:             "EUR",
		DateFrom:             time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
		DateTo:               time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC),
		Limit:                5,
	})
	if err != nil {
		t.Fatalf("QueryTransactionCandidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].ID != "txn-1" || got[0].EmbeddingDistance != 0.12 {
		t.Fatalf("candidate = %+v", got[0])
	}
	if len(got[0].Embedding) != 2 {
		t.Fatalf("embedding not scanned: %v", got[0].Embedding)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryTransactionCandidatesRequiresEmbedding(t *testing.T) {
	store, _, done := newCandidateStoreWithMock(t)
	defer done()

	_, err := store.QueryTransactionCandidates(context.Background(), domain.TransactionCandidateQuery{TeamID: "team-1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryInboxCandidates(t *testing.T) {
	store, mock, done := newCandidateStoreWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "team_id", "display_name", "amount", "currency", "base_amount", "base_currency",
		"date", "website", "type", "embedding", "created_at", "is_matched", "embedding_distance",
	}).AddRow("inbox-1", "team-1", "Acme Invoice", 1000.0, "EUR", nil, nil,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil, "invoice", "[0.1]",
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true, 0.1)

	mock.ExpectQuery("SELECT i.id, i.team_id, i.display_name").
		WillReturnRows(rows)

	got, err := store.QueryInboxCandidates(context.Background(), domain.InboxCandidateQuery{
		TeamID:         "team-1",
		Embedding:      []float32{0.1},
		IncludeMatched: true,
		Limit:          5,
	})
	if err != nil {
		t.Fatalf("QueryInboxCandidates: %v", err)
	}
	if len(got) != 1 || !got[0].IsAlreadyMatched {
		t.Fatalf("candidates = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koopa0/shiksha/internal/scope"
)

type execCall struct {
	sql  string
	args []any
}

// mockDB implements DB with canned responses, recording every call.
type mockDB struct {
	execCalls []execCall
	execTags  []pgconn.CommandTag // consumed in order; last one repeats
	execErr   error

	queryCalls []execCall
	queryRows  pgx.Rows
	queryErr   error

	rowScanErr error

	batchLens []int
	batchErr  error
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execCalls = append(m.execCalls, execCall{sql: sql, args: args})
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	if len(m.execTags) == 0 {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	tag := m.execTags[0]
	if len(m.execTags) > 1 {
		m.execTags = m.execTags[1:]
	}
	return tag, nil
}

func (m *mockDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.queryCalls = append(m.queryCalls, execCall{sql: sql, args: args})
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.queryRows == nil {
		return emptyRows{}, nil
	}
	return m.queryRows, nil
}

func (m *mockDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return scanRow{err: m.rowScanErr}
}

func (m *mockDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	m.batchLens = append(m.batchLens, b.Len())
	return &mockBatchResults{remaining: b.Len(), err: m.batchErr}
}

type scanRow struct{ err error }

func (r scanRow) Scan(...any) error { return r.err }

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

type mockBatchResults struct {
	remaining int
	err       error
}

func (r *mockBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.remaining--
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *mockBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("unexpected Query") }
func (r *mockBatchResults) QueryRow() pgx.Row        { return scanRow{err: errors.New("unexpected QueryRow")} }
func (r *mockBatchResults) Close() error             { return nil }

func storeKey() scope.Key {
	return scope.New("science", "ch2", "t1", "st3")
}

func TestAcquireScopeLease(t *testing.T) {
	t.Run("free lease acquired", func(t *testing.T) {
		db := &mockDB{execTags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 1")}}
		s := New(db, nil)

		if err := s.AcquireScopeLease(context.Background(), "doc"); err != nil {
			t.Fatalf("AcquireScopeLease failed: %v", err)
		}
	})

	t.Run("live lease rejected", func(t *testing.T) {
		db := &mockDB{execTags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")}}
		s := New(db, nil)

		err := s.AcquireScopeLease(context.Background(), "doc")
		if !errors.Is(err, ErrScopeBusy) {
			t.Fatalf("error = %v, want ErrScopeBusy", err)
		}
	})
}

func TestReleaseScopeLease_OwnerScoped(t *testing.T) {
	db := &mockDB{}
	s := New(db, nil)

	if err := s.ReleaseScopeLease(context.Background(), "doc"); err != nil {
		t.Fatalf("ReleaseScopeLease failed: %v", err)
	}
	if len(db.execCalls) != 1 {
		t.Fatalf("got %d exec calls", len(db.execCalls))
	}
	call := db.execCalls[0]
	if !strings.Contains(call.sql, "owner = $2") {
		t.Errorf("release not scoped to owner: %s", call.sql)
	}
	if call.args[1] != s.leaseOwner {
		t.Errorf("release used owner %v, want %v", call.args[1], s.leaseOwner)
	}
}

func TestDeleteScope_PaginatesUntilEmpty(t *testing.T) {
	// Each table: two full pages, then a final empty page.
	db := &mockDB{execTags: []pgconn.CommandTag{
		pgconn.NewCommandTag("DELETE 300"),
		pgconn.NewCommandTag("DELETE 300"),
		pgconn.NewCommandTag("DELETE 0"),
		pgconn.NewCommandTag("DELETE 0"),
		pgconn.NewCommandTag("DELETE 0"),
	}}
	s := New(db, nil)

	if err := s.DeleteScope(context.Background(), storeKey()); err != nil {
		t.Fatalf("DeleteScope failed: %v", err)
	}

	// 3 pages for facts, then 1 empty page each for activities and questions.
	if len(db.execCalls) != 5 {
		t.Fatalf("got %d delete statements, want 5", len(db.execCalls))
	}
	for _, call := range db.execCalls {
		if !strings.Contains(call.sql, fmt.Sprintf("LIMIT %d", deletePageSize)) {
			t.Errorf("delete not paginated: %s", call.sql)
		}
		if len(call.args) != 4 {
			t.Errorf("delete args = %v, want the 4 scope fields", call.args)
		}
	}

	tables := []string{factsTable, activitiesTable, questionsTable}
	for i, want := range []string{tables[0], tables[0], tables[0], tables[1], tables[2]} {
		if !strings.Contains(db.execCalls[i].sql, want) {
			t.Errorf("delete %d targets wrong table: %s", i, db.execCalls[i].sql)
		}
	}
}

func makeChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		lane := LaneFacts
		if i%2 == 1 {
			lane = LaneActivities
		}
		chunks[i] = Chunk{
			DocID:       "doc",
			ChunkID:     fmt.Sprintf("doc__%s__%d", lane.Prefix(), i/2+1),
			Lane:        lane,
			Text:        "text",
			Embedding:   []float32{1, 2, 3},
			SourceOrder: i,
			CreatedAt:   time.Now(),
		}
	}
	return chunks
}

func TestWriteChunks_BatchesAtLimit(t *testing.T) {
	db := &mockDB{}
	s := New(db, nil)

	if err := s.WriteChunks(context.Background(), storeKey(), makeChunks(1000)); err != nil {
		t.Fatalf("WriteChunks failed: %v", err)
	}

	want := []int{400, 400, 200}
	if len(db.batchLens) != len(want) {
		t.Fatalf("got %d batches (%v), want %v", len(db.batchLens), db.batchLens, want)
	}
	for i, n := range want {
		if db.batchLens[i] != n {
			t.Errorf("batch %d size = %d, want %d", i, db.batchLens[i], n)
		}
	}
}

func TestWriteChunks_EmptyInputSendsNothing(t *testing.T) {
	db := &mockDB{}
	s := New(db, nil)

	if err := s.WriteChunks(context.Background(), storeKey(), nil); err != nil {
		t.Fatalf("WriteChunks failed: %v", err)
	}
	if len(db.batchLens) != 0 {
		t.Errorf("sent %v batches for empty input", db.batchLens)
	}
}

func TestWriteChunks_BatchErrorSurfaces(t *testing.T) {
	db := &mockDB{batchErr: errors.New("constraint violation")}
	s := New(db, nil)

	if err := s.WriteChunks(context.Background(), storeKey(), makeChunks(3)); err == nil {
		t.Fatal("expected batch error")
	}
}

func TestWriteQuestions_Batches(t *testing.T) {
	db := &mockDB{}
	s := New(db, nil)

	questions := make([]QuestionRecord, 410)
	for i := range questions {
		questions[i] = QuestionRecord{
			QuestionID: fmt.Sprintf("doc__q__%d", i+1),
			DocID:      "doc",
			Type:       QuestionShort,
			Question:   "q",
			Answer:     QuestionAnswer{Correct: "x", Explanation: "y"},
		}
	}

	if err := s.WriteQuestions(context.Background(), storeKey(), questions); err != nil {
		t.Fatalf("WriteQuestions failed: %v", err)
	}
	if len(db.batchLens) != 2 || db.batchLens[0] != writeBatchSize || db.batchLens[1] != 10 {
		t.Errorf("batch sizes = %v, want [%d 10]", db.batchLens, writeBatchSize)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := &mockDB{rowScanErr: pgx.ErrNoRows}
	s := New(db, nil)

	_, err := s.GetDocument(context.Background(), storeKey())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestLoadChunks_LaneSelection(t *testing.T) {
	tests := []struct {
		name       string
		lane       LaneFilter
		wantTables []string
	}{
		{"facts only", FilterFacts, []string{factsTable}},
		{"activities only", FilterActivities, []string{activitiesTable}},
		{"both lanes", FilterBoth, []string{factsTable, activitiesTable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			s := New(db, nil)

			if _, err := s.LoadChunks(context.Background(), storeKey(), tt.lane); err != nil {
				t.Fatalf("LoadChunks failed: %v", err)
			}
			if len(db.queryCalls) != len(tt.wantTables) {
				t.Fatalf("got %d queries, want %d", len(db.queryCalls), len(tt.wantTables))
			}
			for i, table := range tt.wantTables {
				if !strings.Contains(db.queryCalls[i].sql, table) {
					t.Errorf("query %d missing table %s: %s", i, table, db.queryCalls[i].sql)
				}
				if !strings.Contains(db.queryCalls[i].sql, "ORDER BY source_order") {
					t.Errorf("query %d not ordered by source_order", i)
				}
			}
		})
	}
}

func TestListQuestions_ClampsLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 1},
		{0, 1},
		{10, 10},
		{100, 30},
	}

	for _, tt := range tests {
		db := &mockDB{}
		s := New(db, nil)

		if _, err := s.ListQuestions(context.Background(), storeKey(), tt.in); err != nil {
			t.Fatalf("ListQuestions(%d) failed: %v", tt.in, err)
		}
		args := db.queryCalls[0].args
		if got := args[len(args)-1]; got != tt.want {
			t.Errorf("ListQuestions(%d) used limit %v, want %d", tt.in, got, tt.want)
		}
	}
}

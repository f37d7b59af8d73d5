// Package store persists the per-scope knowledge base (document record,
// lane-partitioned chunks, question bank) in PostgreSQL.
//
// The store exclusively owns the persistence lifecycle: a scope's entity set
// is always replaced together via paginated deletes followed by batched
// writes. There is no cross-step transaction; callers must treat a failed
// replace as "re-run the whole ingestion" (see Service.Ingest).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/shiksha/internal/scope"
)

// Logical collections, one table per concept.
const (
	documentsTable  = "subtopic_documents"
	factsTable      = "subtopic_facts"
	activitiesTable = "subtopic_activities"
	questionsTable  = "subtopic_questions"
)

const (
	// deletePageSize bounds each delete page so a scope wipe respects the
	// store's query/limit constraints regardless of chunk count.
	deletePageSize = 300

	// writeBatchSize is the maximum records committed per batch.
	writeBatchSize = 400

	// leaseTTL bounds how long a crashed ingestion can hold a scope lease.
	leaseTTL = 10 * time.Minute
)

var (
	// ErrNotFound indicates no document record exists for the scope.
	ErrNotFound = errors.New("document not found")

	// ErrScopeBusy indicates another ingestion currently holds the scope lease.
	ErrScopeBusy = errors.New("scope is being ingested by another process")
)

// DB is the subset of pgxpool.Pool the store depends on.
// Defined on the consumer side so tests can substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store provides scoped reads and bulk replacement over the four collections.
// Safe for concurrent use; concurrent replacement of the same scope is
// excluded by the scope lease.
type Store struct {
	db     DB
	logger *slog.Logger

	// leaseOwner identifies this store instance on lease rows so a release
	// never frees a lease another process took over after TTL expiry.
	leaseOwner string
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, leaseOwner: uuid.NewString()}
}

// scopeFilter is the shared equality predicate over the four scope columns.
const scopeFilter = "subject = $1 AND chapter_id = $2 AND topic_id = $3 AND subtopic_id = $4"

func scopeArgs(key scope.Key) []any {
	return []any{key.Subject, key.ChapterID, key.TopicID, key.SubtopicID}
}

// AcquireScopeLease claims the exclusive right to reindex a scope.
// Implemented as a conditional write on a lease row with TTL: the insert
// wins if no lease exists or the previous one expired. Returns ErrScopeBusy
// when another ingestion holds a live lease.
func (s *Store) AcquireScopeLease(ctx context.Context, docID string) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO scope_leases (doc_id, owner, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (doc_id) DO UPDATE
		SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE scope_leases.expires_at < now()`,
		docID, s.leaseOwner, leaseTTL.String())
	if err != nil {
		return fmt.Errorf("acquiring scope lease for %q: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrScopeBusy, docID)
	}
	return nil
}

// ReleaseScopeLease frees the scope lease. Safe to call when the lease has
// already expired or been taken over.
func (s *Store) ReleaseScopeLease(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM scope_leases WHERE doc_id = $1 AND owner = $2`,
		docID, s.leaseOwner); err != nil {
		return fmt.Errorf("releasing scope lease for %q: %w", docID, err)
	}
	return nil
}

// DeleteScope removes every chunk and question persisted for the scope,
// paginated in bounded pages and repeated until no matching rows remain.
// The document record itself is replaced by the subsequent WriteDocument.
func (s *Store) DeleteScope(ctx context.Context, key scope.Key) error {
	for _, table := range []string{factsTable, activitiesTable, questionsTable} {
		if err := s.deleteScopePaged(ctx, table, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteScopePaged(ctx context.Context, table string, key scope.Key) error {
	// table is one of the fixed collection constants, never caller input.
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE ctid IN (
			SELECT ctid FROM %s WHERE %s LIMIT %d
		)`, table, table, scopeFilter, deletePageSize)

	for {
		tag, err := s.db.Exec(ctx, query, scopeArgs(key)...)
		if err != nil {
			return fmt.Errorf("deleting scope %s from %s: %w", key, table, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
	}
}

// WriteChunks persists chunks into their lane collections in bounded-size
// batches. Chunks must already carry embeddings and IDs.
func (s *Store) WriteChunks(ctx context.Context, key scope.Key, chunks []Chunk) error {
	batch := &pgx.Batch{}
	flushed := 0

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := s.sendBatch(ctx, batch); err != nil {
			return fmt.Errorf("writing chunk batch for %s: %w", key, err)
		}
		flushed += batch.Len()
		batch = &pgx.Batch{}
		return nil
	}

	for _, chunk := range chunks {
		table := factsTable
		if chunk.Lane == LaneActivities {
			table = activitiesTable
		}
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s
				(chunk_id, doc_id, subject, chapter_id, topic_id, subtopic_id,
				 lane, heading, text, embedding, source_order, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, table),
			chunk.ChunkID, chunk.DocID,
			key.Subject, key.ChapterID, key.TopicID, key.SubtopicID,
			string(chunk.Lane), chunk.Heading, chunk.Text,
			pgvector.NewVector(chunk.Embedding), chunk.SourceOrder, chunk.CreatedAt)

		if batch.Len() >= writeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	s.logger.Debug("wrote chunks", "scope", key.DocID(), "count", len(chunks))
	return nil
}

// WriteQuestions persists the synthesized question bank in bounded batches.
func (s *Store) WriteQuestions(ctx context.Context, key scope.Key, questions []QuestionRecord) error {
	for start := 0; start < len(questions); start += writeBatchSize {
		end := min(start+writeBatchSize, len(questions))

		batch := &pgx.Batch{}
		for _, q := range questions[start:end] {
			optionsJSON, err := json.Marshal(q.Options)
			if err != nil {
				return fmt.Errorf("marshaling options for %q: %w", q.QuestionID, err)
			}
			sourcesJSON, err := json.Marshal(q.SourceChunkIDs)
			if err != nil {
				return fmt.Errorf("marshaling source chunk ids for %q: %w", q.QuestionID, err)
			}
			batch.Queue(`
				INSERT INTO subtopic_questions
					(question_id, doc_id, subject, chapter_id, topic_id, subtopic_id,
					 type, question, options, correct, explanation, hint,
					 source_chunk_ids, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				q.QuestionID, q.DocID,
				key.Subject, key.ChapterID, key.TopicID, key.SubtopicID,
				string(q.Type), q.Question, optionsJSON,
				q.Answer.Correct, q.Answer.Explanation, q.Hint,
				sourcesJSON, q.CreatedAt)
		}
		if err := s.sendBatch(ctx, batch); err != nil {
			return fmt.Errorf("writing question batch for %s: %w", key, err)
		}
	}
	return nil
}

// WriteDocument upserts the single document record for the scope.
// Called last during a replace so the aggregate counts never describe
// chunks that are not yet written.
func (s *Store) WriteDocument(ctx context.Context, key scope.Key, doc DocumentRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO subtopic_documents
			(doc_id, subject, chapter_id, topic_id, subtopic_id,
			 title, source_name, markdown, extracted_at,
			 chunk_count, fact_chunk_count, activity_chunk_count, question_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (doc_id) DO UPDATE SET
			title = EXCLUDED.title,
			source_name = EXCLUDED.source_name,
			markdown = EXCLUDED.markdown,
			extracted_at = EXCLUDED.extracted_at,
			chunk_count = EXCLUDED.chunk_count,
			fact_chunk_count = EXCLUDED.fact_chunk_count,
			activity_chunk_count = EXCLUDED.activity_chunk_count,
			question_count = EXCLUDED.question_count`,
		doc.DocID, key.Subject, key.ChapterID, key.TopicID, key.SubtopicID,
		doc.Title, doc.SourceName, doc.Markdown, doc.ExtractedAt,
		doc.ChunkCount, doc.FactChunkCount, doc.ActivityChunkCount, doc.QuestionCount)
	if err != nil {
		return fmt.Errorf("writing document record %q: %w", doc.DocID, err)
	}
	return nil
}

// GetDocument returns the scope's document record, or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, key scope.Key) (DocumentRecord, error) {
	row := s.db.QueryRow(ctx, `
		SELECT doc_id, title, source_name, markdown, extracted_at,
		       chunk_count, fact_chunk_count, activity_chunk_count, question_count
		FROM subtopic_documents WHERE `+scopeFilter,
		scopeArgs(key)...)

	var doc DocumentRecord
	err := row.Scan(&doc.DocID, &doc.Title, &doc.SourceName, &doc.Markdown,
		&doc.ExtractedAt, &doc.ChunkCount, &doc.FactChunkCount,
		&doc.ActivityChunkCount, &doc.QuestionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return DocumentRecord{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("reading document record for %s: %w", key, err)
	}
	return doc, nil
}

// LoadChunks returns every chunk persisted for the scope, optionally
// restricted to one lane. Always a full scan: retrieval ranks the entire
// (subtopic-sized) chunk set in memory, no approximate index.
func (s *Store) LoadChunks(ctx context.Context, key scope.Key, lane LaneFilter) ([]Chunk, error) {
	var tables []string
	switch lane {
	case FilterFacts:
		tables = []string{factsTable}
	case FilterActivities:
		tables = []string{activitiesTable}
	default:
		tables = []string{factsTable, activitiesTable}
	}

	var chunks []Chunk
	for _, table := range tables {
		loaded, err := s.loadLane(ctx, table, key)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, loaded...)
	}
	return chunks, nil
}

func (s *Store) loadLane(ctx context.Context, table string, key scope.Key) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT chunk_id, doc_id, lane, heading, text, embedding, source_order, created_at
		FROM %s WHERE %s ORDER BY source_order`, table, scopeFilter),
		scopeArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for %s from %s: %w", key, table, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			chunk     Chunk
			lane      string
			embedding pgvector.Vector
		)
		if err := rows.Scan(&chunk.ChunkID, &chunk.DocID, &lane, &chunk.Heading,
			&chunk.Text, &embedding, &chunk.SourceOrder, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunk.Lane = Lane(lane)
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return chunks, nil
}

// ListQuestions returns the scope's question bank in stored order.
// limit is clamped to [1, 30].
func (s *Store) ListQuestions(ctx context.Context, key scope.Key, limit int) ([]QuestionRecord, error) {
	limit = max(1, min(30, limit))

	args := append(scopeArgs(key), limit)
	rows, err := s.db.Query(ctx, `
		SELECT question_id, doc_id, type, question, options, correct,
		       explanation, hint, source_chunk_ids, created_at
		FROM subtopic_questions WHERE `+scopeFilter+`
		ORDER BY question_id LIMIT $5`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing questions for %s: %w", key, err)
	}
	defer rows.Close()

	var questions []QuestionRecord
	for rows.Next() {
		var (
			q           QuestionRecord
			qType       string
			optionsJSON []byte
			sourcesJSON []byte
		)
		if err := rows.Scan(&q.QuestionID, &q.DocID, &qType, &q.Question,
			&optionsJSON, &q.Answer.Correct, &q.Answer.Explanation, &q.Hint,
			&sourcesJSON, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning question row: %w", err)
		}
		q.Type = QuestionType(qType)
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
				s.logger.Warn("unreadable question options", "question_id", q.QuestionID, "error", err)
			}
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &q.SourceChunkIDs); err != nil {
				s.logger.Warn("unreadable source chunk ids", "question_id", q.QuestionID, "error", err)
			}
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating question rows: %w", err)
	}
	return questions, nil
}

// sendBatch submits one batch and surfaces the first per-statement error.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.db.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

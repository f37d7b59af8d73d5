// Package ingest turns a source PDF into a subtopic knowledge base:
// extraction to markdown, segmentation, lane classification, chunking,
// question synthesis, and a full replace of the scope's persisted state.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/shiksha/internal/log"
	"github.com/koopa0/shiksha/internal/scope"
	"github.com/koopa0/shiksha/internal/store"
)

// maxSourceChunks bounds question provenance to the first few chunks.
const maxSourceChunks = 5

// DefaultSourceName is recorded when the caller does not name the upload.
const DefaultSourceName = "unknown.pdf"

// Extractor converts a PDF into markdown.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte, title string) (string, error)
}

// DocumentEmbedder embeds passages for indexing.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// QuestionGenerator synthesizes a question bank from a prompt.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, prompt string) ([]GeneratedQuestion, error)
}

// Indexer is the persistence surface the ingestion pipeline writes through.
type Indexer interface {
	AcquireScopeLease(ctx context.Context, docID string) error
	ReleaseScopeLease(ctx context.Context, docID string) error
	DeleteScope(ctx context.Context, key scope.Key) error
	WriteChunks(ctx context.Context, key scope.Key, chunks []store.Chunk) error
	WriteQuestions(ctx context.Context, key scope.Key, questions []store.QuestionRecord) error
	WriteDocument(ctx context.Context, key scope.Key, doc store.DocumentRecord) error
}

// Service orchestrates one ingestion run end to end.
type Service struct {
	extractor  Extractor
	embedder   DocumentEmbedder
	generator  QuestionGenerator
	indexer    Indexer
	classifier LaneClassifier
	logger     log.Logger
	now        func() time.Time
}

// NewService wires the pipeline. A nil classifier falls back to the
// keyword heuristic.
func NewService(extractor Extractor, embedder DocumentEmbedder, generator QuestionGenerator, indexer Indexer, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		extractor:  extractor,
		embedder:   embedder,
		generator:  generator,
		indexer:    indexer,
		classifier: KeywordClassifier{},
		logger:     logger,
		now:        time.Now,
	}
}

// Result summarizes a completed ingestion run.
type Result struct {
	DocID              string `json:"doc_id"`
	MarkdownLength     int    `json:"markdown_length"`
	FactChunkCount     int    `json:"fact_chunk_count"`
	ActivityChunkCount int    `json:"activity_chunk_count"`
	QuestionCount      int    `json:"question_count"`
}

// Ingest replaces the scope's knowledge base with content derived from the
// given PDF. The replace is delete-then-write under a scope lease; a failure
// partway can leave the scope empty or partial, and the fix is to re-run
// (each run is idempotent given the same input).
func (s *Service) Ingest(ctx context.Context, key scope.Key, title string, pdf []byte, sourceName string) (Result, error) {
	if err := key.Validate(); err != nil {
		return Result{}, err
	}
	if len(pdf) == 0 {
		return Result{}, fmt.Errorf("ingesting %s: empty pdf", key)
	}
	if sourceName == "" {
		sourceName = DefaultSourceName
	}

	docID := key.DocID()
	logger := s.logger.With("run_id", uuid.NewString(), "doc_id", docID)
	logger.Info("ingestion started", "title", title, "source", sourceName, "pdf_bytes", len(pdf))

	markdown, err := s.extractor.Extract(ctx, pdf, title)
	if err != nil {
		return Result{}, fmt.Errorf("extracting %q: %w", sourceName, err)
	}
	if markdown == "" {
		return Result{}, fmt.Errorf("extracting %q: no text extracted", sourceName)
	}

	chunks := BuildChunks(markdown, s.classifier)
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("ingesting %s: extraction produced no chunks", key)
	}

	var facts, activities []RawChunk
	for _, c := range chunks {
		if c.Lane == store.LaneActivities {
			activities = append(activities, c)
		} else {
			facts = append(facts, c)
		}
	}
	logger.Info("document chunked",
		"markdown_chars", len(markdown), "facts", len(facts), "activities", len(activities))

	// Synthesize before taking the lease; generation is the slowest step
	// and needs no exclusive access.
	generated, err := s.generator.GenerateQuestions(ctx, BuildQuestionsPrompt(key, title, facts, activities))
	if err != nil {
		return Result{}, fmt.Errorf("synthesizing questions for %s: %w", key, err)
	}
	questions := NormalizeQuestions(generated)
	logger.Info("questions synthesized", "generated", len(generated), "kept", len(questions))

	if err := s.indexer.AcquireScopeLease(ctx, docID); err != nil {
		return Result{}, err
	}
	defer func() {
		if err := s.indexer.ReleaseScopeLease(context.WithoutCancel(ctx), docID); err != nil {
			logger.Warn("failed to release scope lease", "error", err)
		}
	}()

	if err := s.indexer.DeleteScope(ctx, key); err != nil {
		return Result{}, err
	}

	now := s.now().UTC()
	records, err := s.embedChunks(ctx, docID, now, facts, activities)
	if err != nil {
		return Result{}, err
	}
	if err := s.indexer.WriteChunks(ctx, key, records); err != nil {
		return Result{}, err
	}

	qRecords := buildQuestionRecords(docID, now, questions, records)
	if err := s.indexer.WriteQuestions(ctx, key, qRecords); err != nil {
		return Result{}, err
	}

	// The document record lands last so its presence implies a complete
	// knowledge base underneath it.
	doc := store.DocumentRecord{
		DocID:              docID,
		Title:              title,
		SourceName:         sourceName,
		Markdown:           markdown,
		ExtractedAt:        now,
		ChunkCount:         len(records),
		FactChunkCount:     len(facts),
		ActivityChunkCount: len(activities),
		QuestionCount:      len(qRecords),
	}
	if err := s.indexer.WriteDocument(ctx, key, doc); err != nil {
		return Result{}, err
	}

	logger.Info("ingestion finished",
		"chunks", len(records), "questions", len(qRecords))

	return Result{
		DocID:              docID,
		MarkdownLength:     len(markdown),
		FactChunkCount:     len(facts),
		ActivityChunkCount: len(activities),
		QuestionCount:      len(qRecords),
	}, nil
}

// embedChunks embeds every chunk sequentially and assigns lane-scoped IDs
// of the form {docID}__{f|a}__{n} with n starting at 1 per lane.
func (s *Service) embedChunks(ctx context.Context, docID string, now time.Time, facts, activities []RawChunk) ([]store.Chunk, error) {
	records := make([]store.Chunk, 0, len(facts)+len(activities))
	for _, lane := range [][]RawChunk{facts, activities} {
		for i, raw := range lane {
			embedding, err := s.embedder.EmbedDocument(ctx, raw.Text)
			if err != nil {
				return nil, fmt.Errorf("embedding chunk %d of %s: %w", raw.SourceOrder, docID, err)
			}
			records = append(records, store.Chunk{
				DocID:       docID,
				ChunkID:     fmt.Sprintf("%s%s%s%s%d", docID, scope.Separator, raw.Lane.Prefix(), scope.Separator, i+1),
				Lane:        raw.Lane,
				Heading:     raw.Heading,
				Text:        raw.Text,
				Embedding:   embedding,
				SourceOrder: raw.SourceOrder,
				CreatedAt:   now,
			})
		}
	}
	return records, nil
}

// buildQuestionRecords assigns question IDs and provenance. Every question
// cites the first few chunk IDs of the run; per-question attribution is not
// tracked by the synthesis prompt.
func buildQuestionRecords(docID string, now time.Time, questions []store.QuestionRecord, chunks []store.Chunk) []store.QuestionRecord {
	sources := make([]string, 0, maxSourceChunks)
	for _, c := range chunks[:min(maxSourceChunks, len(chunks))] {
		sources = append(sources, c.ChunkID)
	}

	out := make([]store.QuestionRecord, len(questions))
	for i, q := range questions {
		q.DocID = docID
		q.QuestionID = fmt.Sprintf("%s%sq%s%d", docID, scope.Separator, scope.Separator, i+1)
		q.SourceChunkIDs = sources
		q.CreatedAt = now
		out[i] = q
	}
	return out
}

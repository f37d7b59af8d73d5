// Package answer retrieves the best-matching chunks for a subtopic question
// and composes a grounded response with citation metadata.
package answer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/koopa0/shiksha/internal/log"
	"github.com/koopa0/shiksha/internal/scope"
	"github.com/koopa0/shiksha/internal/store"
)

const (
	// DefaultTopK is the number of chunks put into the context window when
	// the caller does not choose one. Requests are clamped to [MinTopK, MaxTopK].
	DefaultTopK = 5
	MinTopK     = 1
	MaxTopK     = 10

	// previewChars bounds the citation text preview.
	previewChars = 200
)

// RefusalSentence is the exact fallback the generation model is instructed
// to emit when the retrieved context cannot support an answer.
const RefusalSentence = "I don't have enough context from this subtopic to answer confidently."

// emptyKBAnswer is returned without any model call when the scope holds no chunks.
const emptyKBAnswer = "I do not have enough context for this subtopic yet. Please ask your teacher to ingest the textbook section first."

// QueryEmbedder embeds a query for similarity search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a free-text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChunkSource loads the stored chunks for a scope.
type ChunkSource interface {
	LoadChunks(ctx context.Context, key scope.Key, lane store.LaneFilter) ([]store.Chunk, error)
}

// Citation points a reader back at one retrieved chunk.
type Citation struct {
	ChunkID     string     `json:"chunk_id"`
	Lane        store.Lane `json:"lane"`
	Score       float64    `json:"score"`
	Heading     string     `json:"heading"`
	TextPreview string     `json:"text_preview"`
}

// Result is a grounded answer with its supporting citations.
type Result struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Service answers questions against one subtopic's knowledge base.
type Service struct {
	embedder  QueryEmbedder
	generator Generator
	source    ChunkSource
	logger    log.Logger
}

// NewService wires the retrieval path.
func NewService(embedder QueryEmbedder, generator Generator, source ChunkSource, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{embedder: embedder, generator: generator, source: source, logger: logger}
}

// Answer retrieves the topK most similar chunks for the question, optionally
// restricted to one lane, and asks the generation model to answer strictly
// from them. A scope with no stored chunks short-circuits to a fixed message
// without calling the embedding or generation services.
func (s *Service) Answer(ctx context.Context, key scope.Key, question string, topK int, lane store.LaneFilter) (Result, error) {
	if err := key.Validate(); err != nil {
		return Result{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("answering in %s: empty question", key)
	}

	chunks, err := s.source.LoadChunks(ctx, key, lane)
	if err != nil {
		return Result{}, err
	}
	if len(chunks) == 0 {
		s.logger.Info("no chunks stored for scope", "doc_id", key.DocID(), "lane", lane)
		return Result{Answer: emptyKBAnswer, Citations: []Citation{}}, nil
	}

	query, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query for %s: %w", key, err)
	}

	ranked := RankChunks(query, chunks)
	top := ranked[:min(clampTopK(topK), len(ranked))]

	text, err := s.generator.Generate(ctx, buildPrompt(question, top))
	if err != nil {
		return Result{}, fmt.Errorf("generating answer for %s: %w", key, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = RefusalSentence
	}

	citations := make([]Citation, len(top))
	for i, sc := range top {
		citations[i] = Citation{
			ChunkID:     sc.Chunk.ChunkID,
			Lane:        sc.Chunk.Lane,
			Score:       math.Round(sc.Score*10000) / 10000,
			Heading:     sc.Chunk.Heading,
			TextPreview: preview(sc.Chunk.Text),
		}
	}

	return Result{Answer: text, Citations: citations}, nil
}

// ScoredChunk pairs a chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk store.Chunk
	Score float64
}

// RankChunks scores every chunk against the query vector and returns them
// sorted by descending similarity. Ties keep document order.
func RankChunks(query []float32, chunks []store.Chunk) []ScoredChunk {
	scored := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: CosineSimilarity(query, c.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.SourceOrder < scored[j].Chunk.SourceOrder
	})
	return scored
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0; the result is never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clampTopK(k int) int {
	if k == 0 {
		return DefaultTopK
	}
	return max(MinTopK, min(MaxTopK, k))
}

func buildPrompt(question string, top []ScoredChunk) string {
	blocks := make([]string, len(top))
	for i, sc := range top {
		blocks[i] = fmt.Sprintf("[%d] chunkId=%s; lane=%s; heading=%s\n%s",
			i+1, sc.Chunk.ChunkID, sc.Chunk.Lane, sc.Chunk.Heading, sc.Chunk.Text)
	}

	return fmt.Sprintf(`You are a careful school tutor. Answer the student's question using ONLY the context below.
If the context does not contain the answer, reply exactly: %q
Do not use outside knowledge. Keep the answer clear and age-appropriate.

CONTEXT:
%s

QUESTION: %s`, RefusalSentence, strings.Join(blocks, "\n\n"), question)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars])
}

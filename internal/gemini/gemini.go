// Package gemini backs the pipeline's model interfaces with Genkit and the
// Google AI plugin. It owns every model call: PDF extraction, document and
// query embedding, grounded generation, and question synthesis.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"

	"github.com/koopa0/shiksha/internal/config"
	"github.com/koopa0/shiksha/internal/ingest"
	"github.com/koopa0/shiksha/internal/log"
)

// Embedding task types recognized by the Google AI embedding models.
// Asymmetric retrieval embeds passages and queries differently.
const (
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// embeddingDim matches the vector(768) columns in db/migrations.
const embeddingDim int32 = 768

var (
	// ErrInitFailed indicates Genkit or the Google AI plugin failed to initialize.
	ErrInitFailed = errors.New("genai initialization failed")

	// ErrEmptyEmbedding indicates the embedding service returned no vector.
	ErrEmptyEmbedding = errors.New("embedding service returned an empty vector")

	// ErrEmptyResponse indicates the generation model returned no text.
	ErrEmptyResponse = errors.New("generation model returned an empty response")
)

// Client implements the pipeline's Extractor, DocumentEmbedder, QueryEmbedder,
// QuestionGenerator and Generator interfaces on top of Genkit.
type Client struct {
	g        *genkit.Genkit
	embedder ai.Embedder
	model    string
	logger   log.Logger
}

// New initializes Genkit with the Google AI plugin. The plugin reads
// GEMINI_API_KEY from the environment.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("%w: genkit.Init returned nil", ErrInitFailed)
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder %q not found", ErrInitFailed, cfg.EmbedderModel)
	}

	return &Client{
		g:        g,
		embedder: embedder,
		model:    cfg.FullGenerationModel(),
		logger:   logger,
	}, nil
}

// EmbedDocument embeds a passage for indexing.
func (c *Client) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskTypeDocument)
}

// EmbedQuery embeds a question for similarity search.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskTypeQuery)
}

func (c *Client) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	dim := embeddingDim
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: &dim,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text (%s): %w", taskType, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Embedding, nil
}

// Extract converts a PDF into clean markdown by sending the raw bytes to the
// multimodal generation model together with an extraction instruction.
func (c *Client) Extract(ctx context.Context, pdf []byte, title string) (string, error) {
	const mediaType = "application/pdf"
	encoded := base64.StdEncoding.EncodeToString(pdf)

	message := ai.NewUserMessage(
		ai.NewTextPart(extractionPrompt(title)),
		ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+encoded),
	)

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithMessages(message),
	)
	if err != nil {
		return "", fmt.Errorf("extracting pdf: %w", err)
	}

	markdown := ingest.CollapseWhitespace(stripCodeFence(resp.Text()))
	if markdown == "" {
		return "", fmt.Errorf("extracting pdf: %w", ErrEmptyResponse)
	}
	c.logger.Debug("pdf extracted", "pdf_bytes", len(pdf), "markdown_chars", len(markdown))
	return markdown, nil
}

// Generate produces a plain-text completion.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating text: %w", err)
	}
	return resp.Text(), nil
}

// GenerateQuestions asks the model for a structured question array.
func (c *Client) GenerateQuestions(ctx context.Context, prompt string) ([]ingest.GeneratedQuestion, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
		ai.WithOutputType([]ingest.GeneratedQuestion{}),
	)
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	var questions []ingest.GeneratedQuestion
	if err := resp.Output(&questions); err != nil {
		return nil, fmt.Errorf("parsing generated questions: %w", err)
	}
	return questions, nil
}

func extractionPrompt(title string) string {
	return fmt.Sprintf(`Extract the full text of this textbook PDF as clean markdown.
The document covers the subtopic %q.

Rules:
- Preserve the section structure using markdown headings (#, ##).
- Keep activity and experiment boxes as their own sections with headings.
- Transcribe tables as markdown tables and describe figures in one sentence.
- Skip page numbers, headers, footers and watermark text.
- Output only the markdown, no commentary.`, title)
}

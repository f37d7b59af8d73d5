package store

import "time"

// Lane is the coarse content category a chunk belongs to.
type Lane string

const (
	// LaneFacts holds definitional and explanatory passages.
	LaneFacts Lane = "facts"

	// LaneActivities holds experiments, procedures and lab passages.
	LaneActivities Lane = "activities"
)

// Prefix returns the single-letter lane prefix used in chunk IDs.
func (l Lane) Prefix() string {
	if l == LaneActivities {
		return "a"
	}
	return "f"
}

// LaneFilter restricts which lanes a retrieval reads.
type LaneFilter string

const (
	FilterFacts      LaneFilter = "facts"
	FilterActivities LaneFilter = "activities"
	FilterBoth       LaneFilter = "both"
)

// DocumentRecord summarizes one ingested source document. Exactly one live
// record exists per scope; reingestion fully replaces it.
type DocumentRecord struct {
	DocID              string
	Title              string
	SourceName         string
	Markdown           string
	ExtractedAt        time.Time
	ChunkCount         int
	FactChunkCount     int
	ActivityChunkCount int
	QuestionCount      int
}

// Chunk is the atomic retrieval unit: a bounded, embedded passage of source
// text. Chunks are immutable once written; reingestion replaces them all.
type Chunk struct {
	DocID       string
	ChunkID     string
	Lane        Lane
	Heading     string
	Text        string
	Embedding   []float32
	SourceOrder int
	CreatedAt   time.Time
}

// QuestionType classifies a synthesized question.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionShort     QuestionType = "short"
	QuestionReasoning QuestionType = "reasoning"
)

// QuestionOption is one labeled choice of an mcq question.
type QuestionOption struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// QuestionAnswer holds the correct answer and its explanation.
type QuestionAnswer struct {
	Correct     string `json:"correct"`
	Explanation string `json:"explanation"`
}

// QuestionRecord is one entry of a scope's synthesized question bank.
// JSON tags shape the CLI output.
type QuestionRecord struct {
	DocID          string           `json:"doc_id"`
	QuestionID     string           `json:"question_id"`
	Type           QuestionType     `json:"type"`
	Question       string           `json:"question"`
	Options        []QuestionOption `json:"options,omitempty"`
	Answer         QuestionAnswer   `json:"answer"`
	Hint           string           `json:"hint,omitempty"`
	SourceChunkIDs []string         `json:"source_chunk_ids"`
	CreatedAt      time.Time        `json:"created_at"`
}

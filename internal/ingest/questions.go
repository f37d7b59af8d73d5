package ingest

import (
	"fmt"
	"strings"

	"github.com/koopa0/shiksha/internal/scope"
	"github.com/koopa0/shiksha/internal/store"
)

const (
	// maxQuestionBankSize is the number of questions kept per subtopic.
	maxQuestionBankSize = 10

	// Context caps for the synthesis prompt. Facts get more room than
	// activities because most question types draw on factual content.
	maxFactContextChunks     = 14
	maxActivityContextChunks = 8
)

// GeneratedQuestion is the JSON shape requested from the generation
// model. Fields arrive untrimmed and possibly malformed; NormalizeQuestions
// turns the usable ones into records.
type GeneratedQuestion struct {
	Type     string            `json:"type"`
	Question string            `json:"question"`
	Options  []GeneratedOption `json:"options,omitempty"`
	Answer   GeneratedAnswer   `json:"answer"`
	Hint     string            `json:"hint,omitempty"`
}

// GeneratedOption is a single multiple-choice option as returned by the model.
type GeneratedOption struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// GeneratedAnswer carries the expected answer and its explanation.
type GeneratedAnswer struct {
	Correct     string `json:"correct"`
	Explanation string `json:"explanation"`
}

var validOptionLabels = map[string]bool{"A": true, "B": true, "C": true, "D": true}

// BuildQuestionsPrompt assembles the synthesis prompt from lane-separated
// chunks. Fact chunks are labeled [F1..] and activity chunks [A1..] so the
// model can tell conceptual content from procedural content.
func BuildQuestionsPrompt(key scope.Key, title string, facts, activities []RawChunk) string {
	var b strings.Builder

	b.WriteString("You are preparing a practice question bank for school students.\n")
	fmt.Fprintf(&b, "Subject: %s\nChapter: %s\nSubtopic: %s (%s)\n\n", key.Subject, key.ChapterID, title, key.SubtopicID)

	b.WriteString("FACTUAL CONTENT:\n")
	if len(facts) == 0 {
		b.WriteString("No factual chunks available.\n")
	}
	for i, c := range facts {
		if i >= maxFactContextChunks {
			break
		}
		fmt.Fprintf(&b, "[F%d] %s\n", i+1, c.Text)
	}

	b.WriteString("\nACTIVITY CONTENT:\n")
	if len(activities) == 0 {
		b.WriteString("No activity chunks available.\n")
	}
	for i, c := range activities {
		if i >= maxActivityContextChunks {
			break
		}
		fmt.Fprintf(&b, "[A%d] %s\n", i+1, c.Text)
	}

	b.WriteString(`
Create exactly 10 practice questions grounded ONLY in the content above:
- 4 multiple-choice questions ("type": "mcq") with exactly 4 options labeled A, B, C, D
- 4 short-answer questions ("type": "short")
- 2 reasoning questions ("type": "reasoning")

Rules:
- Every question must be answerable from the provided content alone.
- For mcq, "answer.correct" must be the label of the correct option.
- For short and reasoning, "answer.correct" is the expected answer text.
- Every answer needs a one or two sentence "explanation".
- Include a brief "hint" where it helps.

Respond with a JSON array of question objects:
[{"type": "mcq", "question": "...", "options": [{"label": "A", "text": "..."}], "answer": {"correct": "A", "explanation": "..."}, "hint": "..."}]
`)

	return b.String()
}

// NormalizeQuestions validates model output and converts the usable entries
// into question records, truncated to the bank size. Entries missing a
// question, correct answer or explanation are dropped, as are mcq entries
// without at least two valid options or whose correct answer matches no
// option label. Identifiers and provenance are filled in by the indexer.
func NormalizeQuestions(raw []GeneratedQuestion) []store.QuestionRecord {
	var out []store.QuestionRecord
	for _, q := range raw {
		if len(out) == maxQuestionBankSize {
			break
		}

		question := strings.TrimSpace(q.Question)
		correct := strings.TrimSpace(q.Answer.Correct)
		explanation := strings.TrimSpace(q.Answer.Explanation)
		if question == "" || correct == "" || explanation == "" {
			continue
		}

		qType := normalizeQuestionType(q.Type)

		var options []store.QuestionOption
		for _, opt := range q.Options {
			label := strings.ToUpper(strings.TrimSpace(opt.Label))
			text := strings.TrimSpace(opt.Text)
			if !validOptionLabels[label] || text == "" {
				continue
			}
			options = append(options, store.QuestionOption{Label: label, Text: text})
		}
		if len(options) < 2 {
			options = nil
		}

		if qType == store.QuestionMCQ {
			if options == nil || !hasOptionLabel(options, correct) {
				continue
			}
		}

		out = append(out, store.QuestionRecord{
			Type:     qType,
			Question: question,
			Options:  options,
			Answer:   store.QuestionAnswer{Correct: correct, Explanation: explanation},
			Hint:     strings.TrimSpace(q.Hint),
		})
	}
	return out
}

func normalizeQuestionType(s string) store.QuestionType {
	switch store.QuestionType(strings.ToLower(strings.TrimSpace(s))) {
	case store.QuestionMCQ:
		return store.QuestionMCQ
	case store.QuestionReasoning:
		return store.QuestionReasoning
	default:
		return store.QuestionShort
	}
}

func hasOptionLabel(options []store.QuestionOption, label string) bool {
	for _, opt := range options {
		if opt.Label == label {
			return true
		}
	}
	return false
}

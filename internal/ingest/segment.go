package ingest

import (
	"regexp"
	"strings"

	"github.com/koopa0/shiksha/internal/store"
)

// Section is one heading-delimited slice of the extracted markdown,
// whitespace-normalized and classified into a content lane.
type Section struct {
	Heading string
	Body    string
	Lane    store.Lane
}

// LaneClassifier decides which content lane a section belongs to.
// The classification is a heuristic, not ground truth; it only affects
// which bucket a chunk is retrieved from when a caller filters by lane.
// Kept as an interface so the keyword heuristic can be swapped for a
// classifier model without touching the chunker or indexer.
type LaneClassifier interface {
	Classify(heading, body string) store.Lane
}

// activityHints marks sections describing experiments and procedures.
var activityHints = []string{
	"activity",
	"experiment",
	"materials",
	"procedure",
	"steps",
	"observation",
	"safety",
	"lab",
	"aim",
}

// KeywordClassifier assigns the activities lane when heading or body
// contains any experiment/procedure keyword, case-insensitively.
type KeywordClassifier struct{}

// Classify implements LaneClassifier.
func (KeywordClassifier) Classify(heading, body string) store.Lane {
	text := strings.ToLower(heading + "\n" + body)
	for _, hint := range activityHints {
		if strings.Contains(text, hint) {
			return store.LaneActivities
		}
	}
	return store.LaneFacts
}

var (
	headingLine    = regexp.MustCompile(`^#{1,6}\s+`)
	tripleNewlines = regexp.MustCompile(`\n{3,}`)
)

// CollapseWhitespace normalizes extracted text: strips carriage returns,
// collapses runs of three or more newlines to two, and trims the ends.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = tripleNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SplitSections splits markdown into heading-delimited sections in source
// order. Leading content without a heading gets the heading "General".
// Sections whose normalized body is empty are dropped.
func SplitSections(markdown string, classifier LaneClassifier) []Section {
	var (
		sections       []Section
		currentHeading = "General"
		currentBody    []string
	)

	push := func() {
		body := CollapseWhitespace(strings.Join(currentBody, "\n"))
		if body == "" {
			return
		}
		sections = append(sections, Section{
			Heading: currentHeading,
			Body:    body,
			Lane:    classifier.Classify(currentHeading, body),
		})
	}

	for line := range strings.SplitSeq(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if headingLine.MatchString(trimmed) {
			push()
			currentHeading = strings.TrimSpace(headingLine.ReplaceAllString(trimmed, ""))
			if currentHeading == "" {
				currentHeading = "General"
			}
			currentBody = nil
			continue
		}
		currentBody = append(currentBody, line)
	}
	push()

	return sections
}

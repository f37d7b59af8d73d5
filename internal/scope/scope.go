// Package scope defines the (subject, chapter, topic, subtopic) tuple that
// partitions every entity in the knowledge pipeline.
package scope

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the four scope fields into a deterministic document ID.
// Scope fields must never contain it.
const Separator = "__"

// ErrInvalidScope indicates a scope key with empty or malformed fields.
var ErrInvalidScope = errors.New("invalid scope key")

// Key identifies one curriculum subtopic. Two keys address the same scope
// iff all four fields match exactly (case-sensitive). Key is immutable;
// construct a new one instead of mutating.
type Key struct {
	Subject    string
	ChapterID  string
	TopicID    string
	SubtopicID string
}

// New builds a Key with whitespace-trimmed fields.
func New(subject, chapterID, topicID, subtopicID string) Key {
	return Key{
		Subject:    strings.TrimSpace(subject),
		ChapterID:  strings.TrimSpace(chapterID),
		TopicID:    strings.TrimSpace(topicID),
		SubtopicID: strings.TrimSpace(subtopicID),
	}
}

// Validate reports whether the key can serve as a partition key.
// Every field must be non-empty and free of the ID separator.
func (k Key) Validate() error {
	fields := map[string]string{
		"subject":    k.Subject,
		"chapterId":  k.ChapterID,
		"topicId":    k.TopicID,
		"subtopicId": k.SubtopicID,
	}
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidScope, name)
		}
		if strings.Contains(value, Separator) {
			return fmt.Errorf("%w: %s contains %q", ErrInvalidScope, name, Separator)
		}
	}
	return nil
}

// DocID returns the deterministic document ID for this scope:
// the four fields joined by Separator. Stable across reingestions.
func (k Key) DocID() string {
	return strings.Join([]string{k.Subject, k.ChapterID, k.TopicID, k.SubtopicID}, Separator)
}

// String implements fmt.Stringer for log output.
func (k Key) String() string {
	return k.DocID()
}

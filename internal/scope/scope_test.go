package scope

import (
	"errors"
	"testing"
)

func TestNew_TrimsFields(t *testing.T) {
	key := New(" science ", "ch-7", " t-2", "st-1 ")

	if key.Subject != "science" {
		t.Errorf("Subject = %q, want %q", key.Subject, "science")
	}
	if key.SubtopicID != "st-1" {
		t.Errorf("SubtopicID = %q, want %q", key.SubtopicID, "st-1")
	}
}

func TestKey_DocID(t *testing.T) {
	key := Key{Subject: "science", ChapterID: "ch-7", TopicID: "t-2", SubtopicID: "st-1"}

	got := key.DocID()
	want := "science__ch-7__t-2__st-1"
	if got != want {
		t.Errorf("DocID() = %q, want %q", got, want)
	}

	// Deterministic: same fields, same ID.
	if again := key.DocID(); again != got {
		t.Errorf("DocID() not stable: %q vs %q", again, got)
	}
}

func TestKey_Equality_CaseSensitive(t *testing.T) {
	a := New("science", "ch-7", "t-2", "st-1")
	b := New("Science", "ch-7", "t-2", "st-1")

	if a == b {
		t.Error("keys differing only in case must not be equal")
	}
	if a != New("science", "ch-7", "t-2", "st-1") {
		t.Error("identical keys must be equal")
	}
}

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{
			name: "valid",
			key:  Key{Subject: "science", ChapterID: "ch-7", TopicID: "t-2", SubtopicID: "st-1"},
		},
		{
			name:    "empty subject",
			key:     Key{ChapterID: "ch-7", TopicID: "t-2", SubtopicID: "st-1"},
			wantErr: true,
		},
		{
			name:    "empty subtopic",
			key:     Key{Subject: "science", ChapterID: "ch-7", TopicID: "t-2"},
			wantErr: true,
		},
		{
			name:    "field contains separator",
			key:     Key{Subject: "science", ChapterID: "ch__7", TopicID: "t-2", SubtopicID: "st-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidScope) {
				t.Errorf("error should wrap ErrInvalidScope, got %v", err)
			}
		})
	}
}

package ingest

import "github.com/koopa0/shiksha/internal/store"

const (
	// MaxChunkChars caps a chunk at roughly two embedding-friendly
	// paragraphs. Measured in runes so multibyte scripts never split
	// mid-character.
	MaxChunkChars = 1100

	// OverlapChars is carried from the tail of each chunk into the head
	// of the next so sentences cut at a window boundary stay retrievable.
	OverlapChars = 160
)

// RawChunk is a chunk before it is assigned an identifier and embedded.
// SourceOrder is the position of the chunk across the whole document,
// counted over both lanes.
type RawChunk struct {
	Heading     string
	Lane        store.Lane
	Text        string
	SourceOrder int
}

// ChunkSection slices a section body into overlapping windows. Bodies at
// or under MaxChunkChars become a single chunk. Window text is kept
// untrimmed so the overlap between consecutive chunks is exact and the
// original body can be reconstructed from them.
func ChunkSection(sec Section, startOrder int) []RawChunk {
	body := []rune(sec.Body)
	if len(body) == 0 {
		return nil
	}

	if len(body) <= MaxChunkChars {
		return []RawChunk{{
			Heading:     sec.Heading,
			Lane:        sec.Lane,
			Text:        sec.Body,
			SourceOrder: startOrder,
		}}
	}

	var chunks []RawChunk
	order := startOrder
	cursor := 0
	for cursor < len(body) {
		end := min(len(body), cursor+MaxChunkChars)
		chunks = append(chunks, RawChunk{
			Heading:     sec.Heading,
			Lane:        sec.Lane,
			Text:        string(body[cursor:end]),
			SourceOrder: order,
		})
		order++
		if end == len(body) {
			break
		}
		// OverlapChars < MaxChunkChars, so the cursor always advances.
		cursor = end - OverlapChars
	}
	return chunks
}

// BuildChunks runs segmentation and chunking over extracted markdown and
// returns all chunks in document order with contiguous SourceOrder values.
func BuildChunks(markdown string, classifier LaneClassifier) []RawChunk {
	var out []RawChunk
	for _, sec := range SplitSections(markdown, classifier) {
		out = append(out, ChunkSection(sec, len(out))...)
	}
	return out
}

// Package segment splits extracted document text into overlapping segments,
// the unit of embedding and retrieval.
package segment

const (
	// WindowSize is the segment length in characters.
	WindowSize = 1000

	// Overlap is the number of characters shared between consecutive
	// segments, so each segment starts WindowSize-Overlap after the last.
	Overlap = 200
)

// Segment is a contiguous span of document text with attached metadata.
// Segments are immutable once produced; re-processing a document supersedes
// its segments rather than mutating them.
type Segment struct {
	DocumentID    string
	DocumentName  string
	SequenceIndex int
	Text          string
	ApproxTokens  int
}

// ID returns the deterministic record id for the segment,
// "{documentId}-chunk-{sequenceIndex}", so re-embedding a document
// overwrites prior vectors instead of duplicating them.
func (s Segment) ID() string {
	return RecordID(s.DocumentID, s.SequenceIndex)
}

// Splitter is a deterministic sliding-window text splitter.
type Splitter struct {
	windowSize int
	overlap    int
}

// NewSplitter creates a splitter with the default window and overlap.
func NewSplitter() *Splitter {
	return &Splitter{windowSize: WindowSize, overlap: Overlap}
}

// Split divides text into overlapping segments in input order. It is a pure
// function: identical input always yields identical segments. The last
// segment may be shorter than the window. The window and overlap count
// characters, not bytes, so multibyte text never has a rune cut at a
// segment boundary.
func (sp *Splitter) Split(text, documentID, documentName string) []Segment {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := sp.windowSize - sp.overlap
	var segments []Segment

	for start := 0; start < len(runes); start += step {
		end := start + sp.windowSize
		if end > len(runes) {
			end = len(runes)
		}

		chunk := string(runes[start:end])
		segments = append(segments, Segment{
			DocumentID:    documentID,
			DocumentName:  documentName,
			SequenceIndex: len(segments),
			Text:          chunk,
			ApproxTokens:  EstimateTokens(chunk),
		})

		if end == len(runes) {
			break
		}
	}

	return segments
}

// EstimateTokens approximates the token count of text.
// Rough estimate: 1 token ≈ 4 characters.
func EstimateTokens(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

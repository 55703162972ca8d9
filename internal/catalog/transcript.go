package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TranscriptSuffix is appended to a title to name its transcript file.
const TranscriptSuffix = ".json"

// Segment is one element of a transcript file. Fields other than text are ignored.
type Segment struct {
	Text *string `json:"text"`
}

// JoinTranscript decodes a JSON array of segments and joins their text with
// newlines. Every segment must carry a string text field; an empty string is
// kept as an empty line.
func JoinTranscript(data []byte) (string, error) {
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return "", fmt.Errorf("failed to decode transcript: %w", err)
	}
	texts := make([]string, len(segments))
	for i, s := range segments {
		if s.Text == nil {
			return "", fmt.Errorf("failed to decode transcript: segment %d has no text", i)
		}
		texts[i] = *s.Text
	}
	return strings.Join(texts, "\n"), nil
}

package answer

import "strings"

// segmenter buffers streamed fragments and releases whole sentences. A
// sentence ends at a run of terminal punctuation followed by whitespace;
// emitted sentences are trimmed and carry a single trailing space so
// concatenation reconstructs readable text. The tail without trailing
// whitespace stays buffered until flush.
type segmenter struct {
	buf strings.Builder
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// feed appends a fragment and returns any complete sentences it unlocked.
func (s *segmenter) feed(fragment string) []string {
	s.buf.WriteString(fragment)
	text := s.buf.String()

	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if isTerminal(text[i]) && isSpace(text[i+1]) {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				sentences = append(sentences, sentence+" ")
			}
			start = i + 1
		}
	}

	if start > 0 {
		rest := text[start:]
		s.buf.Reset()
		s.buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
	}
	return sentences
}

// flush returns whatever remains buffered, trimmed, without a trailing
// space. Empty when the stream ended exactly on a boundary.
func (s *segmenter) flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest
}

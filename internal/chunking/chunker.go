// Package chunking splits normalized text into bounded, sentence-aligned chunks
// and compares chunk sets across re-ingestion.
package chunking

import (
	"strings"

	"contentflow/internal/util"
)

const (
	DefaultMaxSize = 768
	DefaultOverlap = 0.2
)

// segment is one emitted chunk with the number of leading sentences carried
// over from the previous chunk.
type segment struct {
	sentences []string
	carried   int
	forced    bool
}

func (s segment) text() string {
	return strings.Join(s.sentences, " ")
}

// Chunk splits text into chunks of at most maxSize runes. Sentences are never
// cut unless a single sentence is longer than maxSize, in which case it is
// split on whitespace into word groups. Each closed chunk carries
// floor(sentences*overlap) trailing sentences into the next one.
func Chunk(text string, maxSize int, overlap float64) []string {
	segs := plan(text, maxSize, overlap)
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.text())
	}
	return out
}

func plan(text string, maxSize int, overlap float64) []segment {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 || overlap >= 1 {
		overlap = 0
	}
	text = util.CollapseWhitespace(text)
	if text == "" {
		return nil
	}

	var (
		out     []segment
		current []string
		curLen  int
		carried int
	)
	emit := func() {
		if len(current) > carried {
			out = append(out, segment{sentences: current, carried: carried})
		}
	}

	for _, s := range SplitSentences(text) {
		n := util.RuneLen(s)
		if n > maxSize {
			emit()
			for _, group := range splitWords(s, maxSize) {
				out = append(out, segment{sentences: []string{group}, forced: true})
			}
			current, curLen, carried = nil, 0, 0
			continue
		}
		if len(current) > 0 && curLen+1+n > maxSize {
			emit()
			keep := int(float64(len(current)) * overlap)
			carry := append([]string(nil), current[len(current)-keep:]...)
			carryLen := joinedLen(carry)
			for len(carry) > 0 && carryLen+1+n > maxSize {
				carryLen -= util.RuneLen(carry[0]) + 1
				carry = carry[1:]
			}
			current, curLen, carried = carry, joinedLen(carry), len(carry)
		}
		if len(current) == 0 {
			curLen = n
		} else {
			curLen += 1 + n
		}
		current = append(current, s)
	}
	emit()
	return out
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	total := len(parts) - 1
	for _, p := range parts {
		total += util.RuneLen(p)
	}
	return total
}

// SplitSentences splits whitespace-collapsed text after terminal punctuation
// (. ! ? and an optional closing quote or bracket) that is followed by a space.
// Joining the result with single spaces gives back the input.
func SplitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/80+1)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isCloser(runes[j]) {
			j++
		}
		if j < len(runes) && runes[j] == ' ' {
			if s := strings.TrimSpace(string(runes[start:j])); s != "" {
				out = append(out, s)
			}
			start = j + 1
			i = j
		}
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// splitWords packs the words of s into groups of at most maxSize runes. A word
// longer than maxSize is cut into maxSize pieces.
func splitWords(s string, maxSize int) []string {
	var (
		out   []string
		group []string
		size  int
	)
	flush := func() {
		if len(group) > 0 {
			out = append(out, strings.Join(group, " "))
			group, size = nil, 0
		}
	}
	for _, w := range strings.Fields(s) {
		n := util.RuneLen(w)
		if n > maxSize {
			flush()
			r := []rune(w)
			for len(r) > maxSize {
				out = append(out, string(r[:maxSize]))
				r = r[maxSize:]
			}
			group, size = []string{string(r)}, len(r)
			continue
		}
		if len(group) > 0 && size+1+n > maxSize {
			flush()
		}
		if len(group) == 0 {
			size = n
		} else {
			size += 1 + n
		}
		group = append(group, w)
	}
	flush()
	return out
}

package util

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {},
	"why": {}, "which": {}, "that": {}, "this": {}, "these": {}, "those": {}, "with": {},
	"from": {}, "about": {}, "into": {}, "have": {}, "has": {}, "you": {}, "your": {},
}

// Snippet picks the sentence of content that shares the most terms with query
// and extends it with the following sentence while it fits in maxRunes.
func Snippet(content, query string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 320
	}
	content = CollapseWhitespace(SanitizeText(content))
	if content == "" {
		return ""
	}
	terms := queryTerms(query)
	sentences := snippetSentences(content)
	if len(terms) == 0 || len(sentences) < 2 {
		return truncateRunes(content, maxRunes)
	}

	best, bestScore := 0, -1
	for i, s := range sentences {
		low := strings.ToLower(s)
		score := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	out := sentences[best]
	if best+1 < len(sentences) && RuneLen(out)+1+RuneLen(sentences[best+1]) <= maxRunes {
		out += " " + sentences[best+1]
	}
	return truncateRunes(out, maxRunes)
}

func queryTerms(q string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 8)
	for _, f := range strings.Fields(strings.ToLower(q)) {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if RuneLen(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func snippetSentences(s string) []string {
	out := make([]string, 0, 8)
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if part := strings.TrimSpace(string(runes[start : i+1])); part != "" {
			out = append(out, part)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if RuneLen(s) <= n {
		return s
	}
	return strings.TrimSpace(FirstRunes(s, n)) + "..."
}

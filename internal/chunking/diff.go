package chunking

import (
	"sort"

	"contentflow/internal/util"
)

type Action string

const (
	ActionKeep    Action = "keep"
	ActionReplace Action = "replace"
	ActionInsert  Action = "insert"
	ActionDelete  Action = "delete"
)

// PreviousChunk is what is already stored for a document.
type PreviousChunk struct {
	Ordinal     int    `json:"ordinal"`
	ContentHash string `json:"content_hash"`
}

type Decision struct {
	Ordinal     int    `json:"ordinal"`
	Action      Action `json:"action"`
	Text        string `json:"text,omitempty"`
	ContentHash string `json:"content_hash"`
}

// NeedsEmbedding is true for chunks whose text has no stored vector yet.
func (d Decision) NeedsEmbedding() bool {
	return d.Action == ActionReplace || d.Action == ActionInsert
}

// Diff compares stored chunks with freshly computed texts by ordinal position
// only. Identical text at a different ordinal is not recognized as unchanged.
// A new text longer than maxSize is re-chunked and every piece becomes an
// insert, which shifts the ordinals of everything after it. Stored ordinals
// beyond the last new one become deletes.
func Diff(prev []PreviousChunk, next []string, maxSize int, overlap float64) []Decision {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	byOrdinal := make(map[int]string, len(prev))
	for _, p := range prev {
		byOrdinal[p.Ordinal] = p.ContentHash
	}

	out := make([]Decision, 0, len(next)+len(prev))
	ordinal := 0
	for _, text := range next {
		if util.RuneLen(text) > maxSize {
			for _, piece := range Chunk(text, maxSize, overlap) {
				out = append(out, Decision{Ordinal: ordinal, Action: ActionInsert, Text: piece, ContentHash: util.ContentHash(piece)})
				ordinal++
			}
			continue
		}
		h := util.ContentHash(text)
		action := ActionInsert
		if old, ok := byOrdinal[ordinal]; ok {
			action = ActionReplace
			if old == h {
				action = ActionKeep
			}
		}
		out = append(out, Decision{Ordinal: ordinal, Action: action, Text: text, ContentHash: h})
		ordinal++
	}

	deleted := make([]PreviousChunk, 0)
	for _, p := range prev {
		if p.Ordinal >= ordinal {
			deleted = append(deleted, p)
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Ordinal < deleted[j].Ordinal })
	for _, p := range deleted {
		out = append(out, Decision{Ordinal: p.Ordinal, Action: ActionDelete, ContentHash: p.ContentHash})
	}
	return out
}

// Summary counts decisions per action.
func Summary(decisions []Decision) map[Action]int {
	out := map[Action]int{}
	for _, d := range decisions {
		out[d.Action]++
	}
	return out
}

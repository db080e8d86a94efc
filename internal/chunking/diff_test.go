package chunking

import (
	"strings"
	"testing"

	"contentflow/internal/util"

	"github.com/stretchr/testify/require"
)

func stored(texts []string) []PreviousChunk {
	out := make([]PreviousChunk, 0, len(texts))
	for i, t := range texts {
		out = append(out, PreviousChunk{Ordinal: i, ContentHash: util.ContentHash(t)})
	}
	return out
}

func embeddable(ds []Decision) int {
	n := 0
	for _, d := range ds {
		if d.NeedsEmbedding() {
			n++
		}
	}
	return n
}

func TestDiffIdenticalSetsKeepsEverything(t *testing.T) {
	chunks := Chunk(randomText(3, 200), 300, 0.2)
	ds := Diff(stored(chunks), chunks, 300, 0.2)
	require.Len(t, ds, len(chunks))
	require.Zero(t, embeddable(ds))
	for i, d := range ds {
		require.Equal(t, ActionKeep, d.Action)
		require.Equal(t, i, d.Ordinal)
	}
}

func TestDiffSingleEditIsOneReplace(t *testing.T) {
	old := []string{"First chunk.", "Second chunk.", "Third chunk."}
	next := []string{"First chunk.", "Second chunk, edited.", "Third chunk."}
	ds := Diff(stored(old), next, 768, 0.2)

	require.Equal(t, map[Action]int{ActionKeep: 2, ActionReplace: 1}, Summary(ds))
	require.Equal(t, ActionReplace, ds[1].Action)
	require.Equal(t, 1, ds[1].Ordinal)
	require.Equal(t, util.ContentHash("Second chunk, edited."), ds[1].ContentHash)
}

func TestDiffShrinkDeletesTrailingOrdinals(t *testing.T) {
	old := []string{"a.", "b.", "c.", "d.", "e."}
	next := []string{"a.", "b."}
	ds := Diff(stored(old), next, 768, 0.2)

	require.Equal(t, map[Action]int{ActionKeep: 2, ActionDelete: 3}, Summary(ds))
	var deleted []int
	for _, d := range ds {
		if d.Action == ActionDelete {
			deleted = append(deleted, d.Ordinal)
			require.Empty(t, d.Text)
		}
	}
	require.Equal(t, []int{2, 3, 4}, deleted)
}

func TestDiffGrowInsertsNewOrdinals(t *testing.T) {
	ds := Diff(stored([]string{"a."}), []string{"a.", "b.", "c."}, 768, 0.2)
	require.Equal(t, []Action{ActionKeep, ActionInsert, ActionInsert}, []Action{ds[0].Action, ds[1].Action, ds[2].Action})
	require.Equal(t, 2, embeddable(ds))
}

func TestDiffReorderIsReplace(t *testing.T) {
	ds := Diff(stored([]string{"a.", "b."}), []string{"b.", "a."}, 768, 0.2)
	require.Equal(t, map[Action]int{ActionReplace: 2}, Summary(ds))
}

func TestDiffOversizedChunkShiftsOrdinals(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("Some sentence here. ", 12))
	next := []string{"Intro.", big, "Outro."}
	old := []string{"Intro.", "Old middle.", "Old end.", "Older.", "Oldest.", "Gone.", "Also gone.", "Still gone.", "Far gone."}
	ds := Diff(stored(old), next, 60, 0)

	require.Equal(t, ActionKeep, ds[0].Action)
	pieces := Chunk(big, 60, 0)
	require.Greater(t, len(pieces), 1)
	for i, p := range pieces {
		d := ds[1+i]
		require.Equal(t, ActionInsert, d.Action)
		require.Equal(t, 1+i, d.Ordinal)
		require.Equal(t, p, d.Text)
	}
	outro := ds[1+len(pieces)]
	require.Equal(t, "Outro.", outro.Text)
	require.Equal(t, 1+len(pieces), outro.Ordinal)
	require.Equal(t, ActionReplace, outro.Action)

	used := 2 + len(pieces)
	deletes := Summary(ds)[ActionDelete]
	require.Equal(t, len(old)-used, deletes)
}

func TestDiffFromNothingIsAllInserts(t *testing.T) {
	ds := Diff(nil, []string{"x.", "y."}, 768, 0.2)
	require.Equal(t, map[Action]int{ActionInsert: 2}, Summary(ds))
}

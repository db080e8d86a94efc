package storage

import (
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
)

func TestResolveVectors(t *testing.T) {
	staged := map[string]pgvector.Vector{
		"h1": pgvector.NewVector([]float32{1, 1}),
		"h3": pgvector.NewVector([]float32{3, 3}),
	}
	existing := map[string]pgvector.Vector{
		"h1": pgvector.NewVector([]float32{-1, -1}),
		"h2": pgvector.NewVector([]float32{2, 2}),
	}

	cases := []struct {
		name    string
		chunks  []NewChunk
		want    map[string][]float32
		wantErr string
	}{
		{
			name:   "staged wins over stored",
			chunks: []NewChunk{{Ordinal: 0, ContentHash: "h1"}},
			want:   map[string][]float32{"h1": {1, 1}},
		},
		{
			name:   "kept chunk reuses stored vector",
			chunks: []NewChunk{{Ordinal: 0, ContentHash: "h2"}, {Ordinal: 1, ContentHash: "h3"}},
			want:   map[string][]float32{"h2": {2, 2}, "h3": {3, 3}},
		},
		{
			name:   "repeated hash resolves once",
			chunks: []NewChunk{{Ordinal: 0, ContentHash: "h2"}, {Ordinal: 1, ContentHash: "h2"}},
			want:   map[string][]float32{"h2": {2, 2}},
		},
		{
			name:    "missing vector fails",
			chunks:  []NewChunk{{Ordinal: 0, ContentHash: "h1"}, {Ordinal: 1, ContentHash: "h9"}},
			wantErr: "no embedding for ordinal 1 (h9)",
		},
		{
			name: "empty set",
			want: map[string][]float32{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveVectors(tc.chunks, staged, existing)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tc.want))
			for hash, vec := range tc.want {
				require.Equal(t, vec, got[hash].Slice(), hash)
			}
		})
	}
}

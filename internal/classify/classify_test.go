package classify

import (
	"testing"

	"contentflow/internal/models"
	"contentflow/internal/util"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		in   string
		want models.ContentType
	}{
		{"https://twitter.com/jack/status/20", models.TypeTweet},
		{"https://x.com/someone/status/1790000000000000000?s=20", models.TypeTweet},
		{"x.com/someone/status/123", models.TypeTweet},
		{"https://x.com/site/file.pdf", models.TypeDocument},
		{"https://example.com/papers/report.PDF?download=1", models.TypeDocument},
		{"https://example.com/notes.md", models.TypeDocument},
		{"s3://bucket/uploads/a.docx", models.TypeDocument},
		{"https://www.notion.so/team/Page-abc123", models.TypeNotion},
		{"https://acme.notion.site/Roadmap-1", models.TypeNotion},
		{"https://example.com/a", models.TypePage},
		{"example.com", models.TypePage},
		{"https://x.com/someone", models.TypePage},
		{"http://localhost", models.TypeNote},
		{"remember to buy milk", models.TypeNote},
		{"https://example.com/a and some words", models.TypeNote},
		{"singleword", models.TypeNote},
	}
	for _, tc := range cases {
		got, err := Classify(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestClassifyErrors(t *testing.T) {
	for _, in := range []string{"", "   \n\t", string([]byte{0xff, 0xfe})} {
		_, err := Classify(in)
		require.ErrorIs(t, err, util.ErrClassification)
	}
}

func TestResolve(t *testing.T) {
	got, err := Resolve(models.TypeNotion, "anything")
	require.NoError(t, err)
	require.Equal(t, models.TypeNotion, got)

	_, err = Resolve("video", "anything")
	require.ErrorIs(t, err, util.ErrClassification)

	got, err = Resolve("", "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, models.TypePage, got)
}

func TestDocumentExtension(t *testing.T) {
	require.Equal(t, "pdf", DocumentExtension("https://example.com/a/B.PDF?x=1#p2"))
	require.Equal(t, "docx", DocumentExtension("s3://bucket/k/file.docx"))
	require.Equal(t, "xlsx", DocumentExtension("https://example.com/sheet.xlsx"))
	require.Equal(t, "", DocumentExtension("https://example.com/path"))
}

func TestTweetIDAndCanonicalURL(t *testing.T) {
	id, ok := TweetID("https://twitter.com/jack/status/20?ref=home")
	require.True(t, ok)
	require.Equal(t, "20", id)

	_, ok = TweetID("https://example.com/status/20")
	require.False(t, ok)

	require.Equal(t, "https://x.com/a/status/9", CanonicalURL(models.TypeTweet, " https://x.com/a/status/9?s=20#top "))
	require.Equal(t, "https://example.com/a?x=1", CanonicalURL(models.TypePage, "https://example.com/a?x=1"))
	require.Equal(t, "", CanonicalURL(models.TypeNote, "hello"))
}

func TestHost(t *testing.T) {
	require.Equal(t, "example.com", Host("example.com/path"))
	require.Equal(t, "www.notion.so", Host("https://www.notion.so/x"))
}

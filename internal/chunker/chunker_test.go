package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative size", size: -5, overlap: 0},
		{name: "negative overlap", size: 10, overlap: -1},
		{name: "overlap equals size", size: 10, overlap: 10},
		{name: "overlap exceeds size", size: 10, overlap: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			require.Nil(t, c)
			require.Error(t, err)
			require.True(t, appErr.IsConfig(err))
		})
	}
}

func TestSplitEmptyText(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)
	require.Empty(t, c.Split(""))
	require.Empty(t, c.Split(" \n\n\t "))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)
	chunks := c.Split("  Employees accrue leave monthly.\n")
	require.Len(t, chunks, 1)
	require.Equal(t, "Employees accrue leave monthly.", chunks[0].Text)
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, "chunk_0", chunks[0].ID)
	require.Equal(t, 2, chunks[0].Offset)
}

func TestSplitSentencesThenCharacters(t *testing.T) {
	c, err := New(4, 1, WithSeparators(". ", ""))
	require.NoError(t, err)
	text := "A. B. C. D."
	chunks := c.Split(text)

	require.Equal(t, []string{"A.", "B.", "C.", "D."}, texts(chunks))
	assertInvariants(t, text, chunks, 4, 1)
	require.Equal(t, normalize(text), normalize(strings.Join(texts(chunks), "")))
}

func TestSplitCarriesOverlap(t *testing.T) {
	c, err := New(8, 3)
	require.NoError(t, err)
	chunks := c.Split("aa bb cc dd ee")

	require.Equal(t, []string{"aa bb", "bb cc", "cc dd ee"}, texts(chunks))
	require.Equal(t, []int{0, 3, 6}, offsets(chunks))
	for i, ch := range chunks {
		require.Equal(t, i, ch.Index)
		require.Equal(t, model.ChunkID(i), ch.ID)
	}
}

func TestSplitOversizedPartRecursesToFinerSeparator(t *testing.T) {
	c, err := New(12, 0)
	require.NoError(t, err)
	text := "short one\n\nthis paragraph is clearly longer than twelve\n\nend"
	chunks := c.Split(text)

	require.Equal(t, "short one", chunks[0].Text)
	require.Equal(t, "end", chunks[len(chunks)-1].Text)
	assertInvariants(t, text, chunks, 12, 0)
}

func TestSplitCharacterFallbackWindows(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)
	chunks := c.Split("abcdefghij")

	require.Equal(t, []string{"abcd", "defg", "ghij"}, texts(chunks))
	require.Equal(t, []int{0, 3, 6}, offsets(chunks))
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	c, err := New(3, 0)
	require.NoError(t, err)
	chunks := c.Split("年休假制度")
	require.Equal(t, []string{"年休假", "制度"}, texts(chunks))
}

func TestSplitIsDeterministic(t *testing.T) {
	c, err := New(30, 8)
	require.NoError(t, err)
	text := strings.Repeat("Policy applies to staff. Managers approve requests!\nSee HR.\n\n", 20)
	require.Equal(t, c.Split(text), c.Split(text))
}

func TestSplitProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pieces := []string{"word", "a", "leave", "policy", " ", " ", ". ", "! ", "? ", "\n", "\n\n", "x", "支付", "longwordwithoutanybreaks"}
	for round := 0; round < 200; round++ {
		var sb strings.Builder
		n := rng.Intn(80)
		for i := 0; i < n; i++ {
			sb.WriteString(pieces[rng.Intn(len(pieces))])
		}
		text := sb.String()
		size := 1 + rng.Intn(40)
		overlap := rng.Intn(size)

		c, err := New(size, overlap)
		require.NoError(t, err)
		chunks := c.Split(text)
		assertInvariants(t, text, chunks, size, overlap)
		require.Equal(t, chunks, c.Split(text))
	}
}

// assertInvariants checks the size bound, that every chunk is a verbatim
// slice of the source at its offset, that consecutive chunks share at most
// overlap runes and that every non-blank rune of the source is covered.
func assertInvariants(t *testing.T, text string, chunks []model.Chunk, size, overlap int) {
	t.Helper()
	runes := []rune(text)
	covered := make([]bool, len(runes))
	prevEnd := -1
	for i, ch := range chunks {
		n := utf8.RuneCountInString(ch.Text)
		require.LessOrEqual(t, n, size, "chunk %d too long: %q", i, ch.Text)
		require.NotEmpty(t, strings.TrimSpace(ch.Text))
		require.Equal(t, i, ch.Index)
		require.Equal(t, ch.Text, string(runes[ch.Offset:ch.Offset+n]))
		if prevEnd >= 0 {
			require.LessOrEqual(t, prevEnd-ch.Offset, overlap, "chunk %d overlaps previous by too much", i)
		}
		prevEnd = ch.Offset + n
		for j := ch.Offset; j < ch.Offset+n; j++ {
			covered[j] = true
		}
	}
	for i, r := range runes {
		if !unicode.IsSpace(r) {
			require.True(t, covered[i], "rune %d (%q) lost in %q", i, r, text)
		}
	}
}

func texts(chunks []model.Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, ch.Text)
	}
	return out
}

func offsets(chunks []model.Chunk) []int {
	out := make([]int, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, ch.Offset)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}

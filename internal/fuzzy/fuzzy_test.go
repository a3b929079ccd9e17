package fuzzy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bavix/scanbridge/internal/fuzzy"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{a: "", b: "", want: 0},
		{a: "abc", b: "", want: 3},
		{a: "", b: "abc", want: 3},
		{a: "kitten", b: "sitting", want: 3},
		{a: "flaw", b: "lawn", want: 2},
		{a: "1234567890123", b: "1234567890124", want: 1},
		{a: "héllo", b: "hello", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fuzzy.Distance(tt.a, tt.b))
			assert.Equal(t, tt.want, fuzzy.Distance(tt.b, tt.a))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Greater(t, fuzzy.Similarity("1234567890123", "1234567890124"), 0.9)
	assert.InDelta(t, 1.0, fuzzy.Similarity("", ""), 1e-9)
	assert.InDelta(t, 1.0, fuzzy.Similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.0, fuzzy.Similarity("abc", "xyz"), 1e-9)
	assert.InDelta(t, 0.5, fuzzy.Similarity("abcd", "ab"), 1e-9)
}

func TestBest(t *testing.T) {
	t.Parallel()

	codes := []string{"6291018051234", "1234567890123", "6291018087654"}

	m, ok := fuzzy.Best("1234567890124", codes, 0.8)
	assert.True(t, ok)
	assert.Equal(t, "1234567890123", m.Value)
	assert.Greater(t, m.Similarity, 0.9)

	// Four of thirteen characters differ: similarity is about 0.69.
	_, ok = fuzzy.Best("1234567899999", codes, 0.8)
	assert.False(t, ok)

	_, ok = fuzzy.Best("anything", nil, 0)
	assert.False(t, ok)
}

func TestBest_PrefersHigherScore(t *testing.T) {
	t.Parallel()

	m, ok := fuzzy.Best("abcdef", []string{"abcxxx", "abcdex", "abcdef"}, 0.1)
	assert.True(t, ok)
	assert.Equal(t, "abcdef", m.Value)
	assert.InDelta(t, 1.0, m.Similarity, 1e-9)
}

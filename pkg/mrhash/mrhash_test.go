package mrhash

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // reference computation
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reference computes the expected digest straight from the definition.
func reference(data []byte) string {
	if len(data) <= Size {
		padded := make([]byte, Size)
		copy(padded, data)

		return Encode(padded)
	}

	h := sha1.New() //nolint:gosec // reference computation
	h.Write([]byte("mrCloud"))
	h.Write(data)
	h.Write([]byte(strconv.Itoa(len(data))))

	return Encode(h.Sum(nil))
}

func TestSmallContentIsPaddedVerbatim(t *testing.T) {
	h := New()
	_, err := h.Write([]byte("hello"))
	require.NoError(t, err)

	sum := h.Sum(nil)
	require.Len(t, sum, Size)
	assert.Equal(t, []byte("hello"), sum[:5])
	assert.Equal(t, make([]byte, Size-5), sum[5:])
	assert.Equal(t, "68656C6C6F000000000000000000000000000000", Encode(sum))
}

func TestEmptyContent(t *testing.T) {
	assert.Equal(t, strings.Repeat("0", 2*Size), Encode(New().Sum(nil)))
}

func TestBoundary(t *testing.T) {
	for _, n := range []int{Size - 1, Size, Size + 1, 64, 1000} {
		data := bytes.Repeat([]byte{'x'}, n)

		got, err := FromReader(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, reference(data), got, "size %d", n)
	}
}

func TestChunkedWritesMatchSingleWrite(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 97)

	single := New()
	single.Write(data)

	chunked := New()
	for i := 0; i < len(data); i += 7 {
		end := min(i+7, len(data))
		chunked.Write(data[i:end])
	}

	assert.Equal(t, single.Sum(nil), chunked.Sum(nil))
}

func TestSumIsNonDestructive(t *testing.T) {
	h := New()
	h.Write(bytes.Repeat([]byte("a"), 50))

	first := h.Sum(nil)
	second := h.Sum(nil)
	assert.Equal(t, first, second)

	h.Write([]byte("b"))
	assert.NotEqual(t, first, h.Sum(nil))
}

func TestReset(t *testing.T) {
	h := New()
	h.Write(bytes.Repeat([]byte("z"), 100))
	h.Reset()

	assert.Equal(t, New().Sum(nil), h.Sum(nil))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("abcdef", "ABCDEF"))
	assert.False(t, Equal("", ""))
	assert.False(t, Equal("abc", "abd"))
}

func TestValid(t *testing.T) {
	sum, err := FromReader(strings.NewReader("some content that is hashed with sha1"))
	require.NoError(t, err)

	assert.True(t, Valid(sum))
	assert.True(t, Valid(strings.ToLower(sum)))
	assert.False(t, Valid(""))
	assert.False(t, Valid(sum[:39]))
	assert.False(t, Valid("<html>502 Bad Gateway</html>"))
	assert.False(t, Valid(strings.Repeat("G", 40)))
}

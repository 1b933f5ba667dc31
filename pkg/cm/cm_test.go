package cm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(seed int64, n, alphabet int) []byte {
	rng := rand.New(rand.NewSource(seed))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(rng.Intn(alphabet))
	}
	return out
}

func roundTripInputs() map[string][]byte {
	return map[string][]byte{
		"empty":       {},
		"single":      {0x42},
		"two":         {1, 2},
		"repeat3":     {1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3},
		"run":         bytes.Repeat([]byte{'A'}, 12),
		"zeros5000":   make([]byte, 5000),
		"text":        []byte("the quick brown fox jumps over the lazy dog; the quick brown fox again"),
		"random":      randomBytes(1, 3000, 256),
		"lowEntropy":  randomBytes(2, 9000, 3),
		"shifted":     randomBytes(3, 6001, 16),
		"longPattern": bytes.Repeat([]byte("0123456789abcdefghij"), 400),
	}
}

func TestCompressEmpty(t *testing.T) {
	blob := Compress(nil)
	require.Len(t, blob, HeaderSize)
	assert.Equal(t, []byte{'C', 'M', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, blob)

	out, err := Decompress(blob)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRoundTrip(t *testing.T) {
	for name, data := range roundTripInputs() {
		t.Run(name, func(t *testing.T) {
			blob := Compress(data)

			h, err := ParseHeader(blob)
			require.NoError(t, err)
			assert.Equal(t, uint32(len(data)), h.DecodedLength)

			out, err := Decompress(blob)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, out), "round trip mismatch")
		})
	}
}

func TestDecompressPrefix(t *testing.T) {
	data := randomBytes(4, 700, 4)
	blob := Compress(data)

	for k := 0; k <= len(data); k++ {
		out, err := DecompressPrefix(blob, k)
		require.NoError(t, err, "prefix %d", k)
		require.Equal(t, data[:k], out, "prefix %d", k)
	}

	out, err := DecompressPrefix(blob, len(data)+100)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = DecompressPrefix(blob, -1)
	assert.Error(t, err)
}

func TestTokenLayout(t *testing.T) {
	// Three literals, then two matches.
	blob := Compress([]byte{1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3})

	h, err := ParseHeader(blob)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), h.DecodedLength)

	toks, err := Tokens(blob)
	require.NoError(t, err)
	require.Len(t, toks, 5)
	for _, tok := range toks[:3] {
		assert.False(t, tok.Match)
	}
	// Source bytes must already exist, so the first match is capped at the
	// distance and the second one reaches back further.
	assert.Equal(t, Token{Match: true, Length: 3, Distance: 3}, toks[3])
	assert.Equal(t, Token{Match: true, Length: 6, Distance: 6}, toks[4])

	assert.Equal(t, uint32(3+2+2), h.TokenLength)
	// Flags 0,0,0,1,1 packed LSB-first.
	assert.Equal(t, byte(0x18), blob[len(blob)-1])
	assert.Len(t, blob, HeaderSize+7+1)
}

func TestMatchValidity(t *testing.T) {
	for name, data := range roundTripInputs() {
		t.Run(name, func(t *testing.T) {
			toks, err := Tokens(Compress(data))
			require.NoError(t, err)

			produced := 0
			for i, tok := range toks {
				if !tok.Match {
					produced++
					continue
				}
				require.GreaterOrEqual(t, tok.Length, MinMatch, "token %d", i)
				require.LessOrEqual(t, tok.Length, MaxMatch, "token %d", i)
				require.LessOrEqual(t, tok.Distance, produced, "token %d", i)
				require.LessOrEqual(t, tok.Distance, WindowSize, "token %d", i)
				produced += tok.Length
			}
			assert.Equal(t, len(data), produced)
		})
	}
}

func TestOverlappingRun(t *testing.T) {
	data := bytes.Repeat([]byte{'A'}, 12)

	out, err := Decompress(Compress(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	// A hand-built blob whose match is longer than its distance: one literal
	// then a length-11 match at distance 1.
	v := encodeMatch(11, 1)
	blob := make([]byte, HeaderSize)
	putHeader(blob, Header{DecodedLength: 12, TokenLength: 3})
	blob = append(blob, 'A', byte(v), byte(v>>8), 0x02)

	out, err = Decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestWindowBoundary(t *testing.T) {
	data := randomBytes(5, 5000, 256)
	copy(data[4200:4200+MaxMatch], data[4200-WindowSize:])

	length, distance := longestMatch(data, 4200)
	assert.Equal(t, MaxMatch, length)
	assert.Equal(t, WindowSize, distance)

	out, err := Decompress(Compress(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestWindowExcludesMaxDistance(t *testing.T) {
	data := randomBytes(6, 5000, 256)
	copy(data[4200:4200+MaxMatch], data[4200-MaxDistance:])

	_, distance := longestMatch(data, 4200)
	assert.NotEqual(t, MaxDistance, distance)

	toks, err := Tokens(Compress(data))
	require.NoError(t, err)
	for _, tok := range toks {
		assert.Less(t, tok.Distance, MaxDistance)
	}
}

func TestDecompressAcceptsMaxDistance(t *testing.T) {
	data := randomBytes(7, MaxDistance, 256)

	// MaxDistance literals, then a match of length 3 reaching back 4096 bytes.
	var tokens []byte
	tokens = append(tokens, data...)
	v := encodeMatch(3, MaxDistance)
	tokens = append(tokens, byte(v), byte(v>>8))

	flags := make([]byte, MaxDistance/8+1)
	flags[MaxDistance/8] = 0x01

	blob := make([]byte, HeaderSize)
	putHeader(blob, Header{DecodedLength: MaxDistance + 3, TokenLength: uint32(len(tokens))})
	blob = append(blob, tokens...)
	blob = append(blob, flags...)

	out, err := Decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, data, out[:MaxDistance])
	assert.Equal(t, data[:3], out[MaxDistance:])
}

func TestEarliestLongestPolicy(t *testing.T) {
	// "abcX" at 0, "abcY" at 4, "abc" again at 8. Both candidates give
	// length 3; the oldest one wins.
	data := []byte("abcXabcYabc")
	length, distance := longestMatch(data, 8)
	assert.Equal(t, 3, length)
	assert.Equal(t, 8, distance)

	// A longer match later in the window beats an earlier shorter one.
	data = []byte("abcXabcdYabcd")
	length, distance = longestMatch(data, 9)
	assert.Equal(t, 4, length)
	assert.Equal(t, 5, distance)
}

func TestDecompressErrors(t *testing.T) {
	valid := Compress([]byte("hello hello hello hello"))
	h, err := ParseHeader(valid)
	require.NoError(t, err)
	tokenEnd := HeaderSize + int(h.TokenLength)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 'X'

	// Token region missing its last byte, header adjusted to match.
	shortTokens := append([]byte(nil), valid[:tokenEnd-1]...)
	shortTokens = append(shortTokens, valid[tokenEnd:]...)
	binary.LittleEndian.PutUint32(shortTokens[8:], h.TokenLength-1)

	backRef := make([]byte, HeaderSize)
	putHeader(backRef, Header{DecodedLength: 5, TokenLength: 3})
	v := encodeMatch(3, 2)
	backRef = append(backRef, 'x', byte(v), byte(v>>8), 0x02)

	tests := []struct {
		name string
		blob []byte
	}{
		{"nil", nil},
		{"short header", []byte("CM\x00\x00\x01")},
		{"bad magic", badMagic},
		{"token region past end", valid[:tokenEnd-1]},
		{"token region cut short", shortTokens},
		{"flags missing", valid[:tokenEnd]},
		{"back-reference before start", backRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decompress(tt.blob)
			require.ErrorIs(t, err, ErrFormat)
			assert.Nil(t, out)
		})
	}
}

func TestParseHeader(t *testing.T) {
	blob := Compress(bytes.Repeat([]byte("ab"), 50))
	h, err := ParseHeader(blob)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), h.DecodedLength)
	assert.Equal(t, fmt.Sprintf("decoded=100 tokens=%d", h.TokenLength), h.String())
	assert.Equal(t, []byte{0, 0}, blob[2:4])
}

func TestDecompressHugeClaimedLength(t *testing.T) {
	bare := make([]byte, HeaderSize)
	copy(bare, Magic)
	binary.LittleEndian.PutUint32(bare[4:], 0xFFFFFFF0)

	short := Compress([]byte("abc"))
	binary.LittleEndian.PutUint32(short[4:], 0xFFFFFFF0)

	for name, blob := range map[string][]byte{"bare header": bare, "short tokens": short} {
		t.Run(name, func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err := Decompress(blob)
			runtime.ReadMemStats(&after)

			assert.ErrorIs(t, err, ErrFormat)
			assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
		})
	}
}

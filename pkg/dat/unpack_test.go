package dat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/dattool/pkg/cm"
)

func buildSample(t *testing.T) *Built {
	t.Helper()
	built, err := Build([]Entry{
		{ID: 0, Data: []byte("first entry")},
		{ID: 1, Data: []byte("second entry, a little longer than the first")},
		{ID: 2, Data: []byte("third")},
	}, nil)
	require.NoError(t, err)
	return built
}

func TestParseIndexErrors(t *testing.T) {
	zeroCount := make([]byte, DataOffset)

	hugeCount := make([]byte, DataOffset)
	binary.LittleEndian.PutUint32(hugeCount, maxFileCount+1)

	shortIndex := make([]byte, 16)
	binary.LittleEndian.PutUint32(shortIndex, 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"short header", []byte{1, 0, 0}},
		{"zero count", zeroCount},
		{"implausible count", hugeCount},
		{"index past end", shortIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIndex(tt.data, nil)
			require.ErrorIs(t, err, ErrFormat)

			_, err = Unpack(tt.data, nil, nil)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestParseIndexRanges(t *testing.T) {
	built := buildSample(t)

	idx, err := ParseIndex(built.Data, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.FileCount)
	assert.Equal(t, uint32(DataOffset/BlockSize), idx.Anchor)
	assert.Equal(t, built.Ranges, idx.Ranges)
}

func TestUnpackClampsOverrun(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	built := buildSample(t)

	// Point the last slot far past the end of the archive.
	data := append([]byte(nil), built.Data...)
	binary.LittleEndian.PutUint32(data[headerSize+2*slotSize:], uint32(len(data)/BlockSize+100))

	res, err := Unpack(data, nil, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, res.Errs)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, []byte("third"), res.Entries[2].Data)
	assert.Equal(t, 1, logs.FilterMessage("entry runs past the end of the archive, clamping").Len())
}

func TestUnpackSkipsEmptyRanges(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	built := buildSample(t)

	// Entry 1 ends where it starts. Entry 2 then begins at entry 1's blob
	// and decodes that one; bytes after a blob are ignored.
	data := append([]byte(nil), built.Data...)
	binary.LittleEndian.PutUint32(data[headerSize+1*slotSize:], uint32(built.Ranges[0].End/BlockSize))

	res, err := Unpack(data, nil, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, 1, logs.FilterMessage("skipping invalid entry").Len())

	require.Len(t, res.Entries, 2)
	assert.Equal(t, 0, res.Entries[0].ID)
	assert.Equal(t, 2, res.Entries[1].ID)
	assert.Equal(t, []byte("second entry, a little longer than the first"), res.Entries[1].Data)
}

func TestUnpackContinuesAfterDecodeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	built := buildSample(t)

	data := append([]byte(nil), built.Data...)
	data[built.Ranges[1].Start] = 'X'

	res, err := Unpack(data, nil, zap.New(core))
	require.NoError(t, err)
	require.Error(t, res.Errs)
	assert.ErrorIs(t, res.Errs, cm.ErrFormat)
	assert.Len(t, multierr.Errors(res.Errs), 1)
	assert.Equal(t, []Range{built.Ranges[1]}, res.Failed)
	assert.Equal(t, 1, logs.FilterMessage("failed to decompress entry").Len())

	require.Len(t, res.Entries, 2)
	assert.Equal(t, []byte("first entry"), res.Entries[0].Data)
	assert.Equal(t, []byte("third"), res.Entries[1].Data)
}

func TestUnpackLegacyArchive(t *testing.T) {
	built, err := Build([]Entry{
		{ID: 0, Data: []byte("a")},
		{ID: 1, Data: []byte("b")},
		{ID: 2, Data: []byte("c")},
	}, &BuildOptions{Layout: LayoutLegacy})
	require.NoError(t, err)

	// Entry 0 starts at the 0x400 anchor inside the zero padding and fails,
	// entry 1 is recovered, the missing last slot leaves entry 2 empty.
	res, err := Unpack(built.Data, nil, nil)
	require.NoError(t, err)
	assert.Len(t, multierr.Errors(res.Errs), 1)
	assert.Equal(t, []int{2}, res.Skipped)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, Entry{ID: 1, Data: []byte("b")}, res.Entries[0])
}

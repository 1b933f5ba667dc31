// Package cm implements the "CM" LZ77 compression format used by the game's
// DAT asset archives.
//
// A CM blob is a 12-byte header followed by a token region and a flag region:
//
//	0x00  "CM"
//	0x02  2 reserved bytes (zero)
//	0x04  uint32 LE decoded length
//	0x08  uint32 LE token region length
//	0x0C  token region: literal bytes and 2-byte LE match tokens
//	....  flag region: one bit per token, LSB-first, 0 = literal, 1 = match
//
// A match token packs (length-3) into bits 15..12 and (distance-1) into
// bits 11..0.
package cm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Format constants.
const (
	Magic      = "CM"
	HeaderSize = 12

	MinMatch = 3
	MaxMatch = MinMatch + 0x0F // 18

	// MaxDistance is the farthest back-reference the token can encode.
	MaxDistance = 0x0FFF + 1 // 4096

	// WindowSize is the farthest back-reference the compressor searches.
	// MaxDistance stays decodable but is never produced.
	WindowSize = MaxDistance - 1 // 4095
)

// ErrFormat is returned for malformed CM data.
var ErrFormat = errors.New("invalid CM data")

// Header is the fixed-size CM blob header.
type Header struct {
	DecodedLength uint32
	TokenLength   uint32
}

// String returns a short description of the header.
func (h Header) String() string {
	return fmt.Sprintf("decoded=%d tokens=%d", h.DecodedLength, h.TokenLength)
}

// ParseHeader validates and returns the header of a CM blob.
func ParseHeader(blob []byte) (Header, error) {
	if len(blob) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header", ErrFormat, len(blob), HeaderSize)
	}
	if string(blob[0:2]) != Magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrFormat, blob[0:2])
	}
	return Header{
		DecodedLength: binary.LittleEndian.Uint32(blob[4:]),
		TokenLength:   binary.LittleEndian.Uint32(blob[8:]),
	}, nil
}

func putHeader(dst []byte, h Header) {
	copy(dst[0:2], Magic)
	dst[2], dst[3] = 0, 0
	binary.LittleEndian.PutUint32(dst[4:], h.DecodedLength)
	binary.LittleEndian.PutUint32(dst[8:], h.TokenLength)
}

// Token is one decoded unit of the token region.
type Token struct {
	Match    bool
	Literal  byte
	Length   int
	Distance int
}

func encodeMatch(length, distance int) uint16 {
	return uint16((length-MinMatch)<<12 | (distance-1)&0x0FFF)
}

func decodeMatch(v uint16) (length, distance int) {
	return int(v>>12) + MinMatch, int(v&0x0FFF) + 1
}

package cm

import "fmt"

// Decompress decodes a complete CM blob.
func Decompress(blob []byte) ([]byte, error) {
	return decompress(blob, -1)
}

// DecompressPrefix decodes at most n bytes of a CM blob. Decoding stops as
// soon as n bytes have been produced, so the rest of the blob is not
// validated.
func DecompressPrefix(blob []byte, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative prefix length %d", n)
	}
	return decompress(blob, n)
}

func decompress(blob []byte, limit int) ([]byte, error) {
	h, err := ParseHeader(blob)
	if err != nil {
		return nil, err
	}

	target := int(h.DecodedLength)
	if limit >= 0 && limit < target {
		target = limit
	}

	r, err := newTokenReader(blob, h)
	if err != nil {
		return nil, err
	}

	// Each token byte expands to at most MaxMatch/2 output bytes, so the
	// header length is not trusted for the allocation.
	out := make([]byte, 0, min(target, MaxMatch/2*int(h.TokenLength)))
	for len(out) < target {
		tok, err := r.next(len(out))
		if err != nil {
			return nil, err
		}
		if !tok.Match {
			out = append(out, tok.Literal)
			continue
		}

		// Copy in chunks of at most distance bytes so a run can reuse bytes
		// produced earlier in the same match.
		remaining := min(tok.Length, target-len(out))
		for remaining > 0 {
			chunk := min(tok.Distance, remaining)
			from := len(out) - tok.Distance
			out = append(out, out[from:from+chunk]...)
			remaining -= chunk
		}
	}
	return out, nil
}

// tokenReader walks the token and flag regions in step.
type tokenReader struct {
	blob      []byte
	tokenPos  int
	flagsBase int
	bit       int
}

func newTokenReader(blob []byte, h Header) (*tokenReader, error) {
	flagsBase := HeaderSize + int(h.TokenLength)
	if int(h.TokenLength) > len(blob)-HeaderSize {
		return nil, fmt.Errorf("%w: token region of %d bytes runs past the end of a %d-byte blob",
			ErrFormat, h.TokenLength, len(blob))
	}
	return &tokenReader{blob: blob, tokenPos: HeaderSize, flagsBase: flagsBase}, nil
}

// next decodes the following token. produced is the number of bytes already
// decoded and bounds the back-reference distance.
func (r *tokenReader) next(produced int) (Token, error) {
	idx := r.flagsBase + r.bit>>3
	if idx >= len(r.blob) {
		return Token{}, fmt.Errorf("%w: flag region exhausted after %d tokens", ErrFormat, r.bit)
	}
	match := r.blob[idx]>>(r.bit&7)&1 == 1
	r.bit++

	if !match {
		if r.tokenPos >= r.flagsBase {
			return Token{}, fmt.Errorf("%w: token region exhausted reading literal at output %d", ErrFormat, produced)
		}
		lit := r.blob[r.tokenPos]
		r.tokenPos++
		return Token{Literal: lit}, nil
	}

	if r.tokenPos+2 > r.flagsBase {
		return Token{}, fmt.Errorf("%w: token region exhausted reading match at output %d", ErrFormat, produced)
	}
	v := uint16(r.blob[r.tokenPos]) | uint16(r.blob[r.tokenPos+1])<<8
	r.tokenPos += 2

	length, distance := decodeMatch(v)
	if distance > produced {
		return Token{}, fmt.Errorf("%w: back-reference distance %d exceeds %d decoded bytes", ErrFormat, distance, produced)
	}
	return Token{Match: true, Length: length, Distance: distance}, nil
}

// Tokens decodes the token stream of a blob without expanding matches.
// Lengths are reported as encoded, even for a final match that Decompress
// cuts short at the decoded length.
func Tokens(blob []byte) ([]Token, error) {
	h, err := ParseHeader(blob)
	if err != nil {
		return nil, err
	}
	r, err := newTokenReader(blob, h)
	if err != nil {
		return nil, err
	}

	var toks []Token
	produced := 0
	for produced < int(h.DecodedLength) {
		tok, err := r.next(produced)
		if err != nil {
			return nil, err
		}
		if tok.Match {
			produced += min(tok.Length, int(h.DecodedLength)-produced)
		} else {
			produced++
		}
		toks = append(toks, tok)
	}
	return toks, nil
}

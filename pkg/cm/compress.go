package cm

// flagWriter packs one bit per token, LSB-first.
type flagWriter struct {
	buf []byte
	cur byte
	n   uint
}

func (w *flagWriter) put(match bool) {
	if match {
		w.cur |= 1 << w.n
	}
	w.n++
	if w.n == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.n = 0, 0
	}
}

func (w *flagWriter) bytes() []byte {
	if w.n > 0 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.n = 0, 0
	}
	return w.buf
}

// Compress encodes src as a CM blob. It never fails; empty input yields a
// bare header.
//
// Matching is greedy with the earliest-longest policy: candidates inside the
// window are scanned oldest first and the first one reaching a strictly
// longer match is kept. A match only covers bytes already emitted, so its
// length never exceeds its distance. Keeping this policy makes the output
// byte-identical to archives produced by the original tool.
func Compress(src []byte) []byte {
	tokens := make([]byte, 0, len(src))
	flags := flagWriter{buf: make([]byte, 0, (len(src)+7)/8)}

	for pos := 0; pos < len(src); {
		length, distance := longestMatch(src, pos)
		if length >= MinMatch {
			v := encodeMatch(length, distance)
			tokens = append(tokens, byte(v), byte(v>>8))
			flags.put(true)
			pos += length
			continue
		}
		tokens = append(tokens, src[pos])
		flags.put(false)
		pos++
	}

	fl := flags.bytes()
	out := make([]byte, HeaderSize, HeaderSize+len(tokens)+len(fl))
	putHeader(out, Header{
		DecodedLength: uint32(len(src)),
		TokenLength:   uint32(len(tokens)),
	})
	out = append(out, tokens...)
	return append(out, fl...)
}

// longestMatch returns the earliest-longest match for src[pos:], or a zero
// length when nothing of at least MinMatch bytes exists in the window.
func longestMatch(src []byte, pos int) (length, distance int) {
	limit := min(MaxMatch, len(src)-pos)
	if limit < MinMatch {
		return 0, 0
	}

	start := max(0, pos-WindowSize)
	for cand := start; cand < pos; cand++ {
		n := 0
		for n < limit && cand+n < pos && src[cand+n] == src[pos+n] {
			n++
		}
		if n >= MinMatch && n > length {
			length, distance = n, pos-cand
			if length == limit {
				break
			}
		}
	}
	return length, distance
}

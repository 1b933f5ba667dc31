package dat

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/dattool/pkg/cm"
)

// Index is the parsed header of an archive.
type Index struct {
	FileCount int
	Anchor    uint32
	// Ranges holds one span per index slot, ends clamped to the archive
	// size. Spans that are empty or start past the end are kept so that ids
	// stay positional; see Range.Valid.
	Ranges []Range
}

// Valid reports whether r covers at least one byte of an archive of size n.
func (r Range) Valid(n int) bool {
	return r.Start < n && r.Size() > 0
}

// ParseIndex reads the file count, anchor and end-offset slots.
func ParseIndex(data []byte, log *zap.Logger) (*Index, error) {
	log = nopIfNil(log)

	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for the header", ErrFormat, len(data))
	}
	count := binary.LittleEndian.Uint32(data[0:])
	anchor := binary.LittleEndian.Uint32(data[4:])

	if count == 0 || count > maxFileCount {
		return nil, fmt.Errorf("%w: implausible file count %d", ErrFormat, count)
	}
	indexEnd := headerSize + int(count)*slotSize
	if indexEnd > len(data) {
		return nil, fmt.Errorf("%w: index of %d slots runs past the end of a %d-byte archive", ErrFormat, count, len(data))
	}

	idx := &Index{
		FileCount: int(count),
		Anchor:    anchor,
		Ranges:    make([]Range, count),
	}

	start := int(anchor) * BlockSize
	for i := range idx.Ranges {
		end := int(binary.LittleEndian.Uint32(data[headerSize+i*slotSize:])) * BlockSize
		if end > len(data) && start < len(data) {
			log.Warn("entry runs past the end of the archive, clamping",
				zap.Int("id", i),
				zap.Int("end", end),
				zap.Int("size", len(data)))
			end = len(data)
		}
		idx.Ranges[i] = Range{ID: i, Start: start, End: end}
		start = end
	}
	return idx, nil
}

// Unpacked is the result of Unpack.
type Unpacked struct {
	Entries []Entry
	// Skipped lists ids whose range was empty or outside the archive.
	Skipped []int
	// Failed holds the ranges of entries that did not decode, in the order
	// their errors appear in Errs.
	Failed []Range
	// Errs combines the decode failures of individual entries. Those entries
	// are missing from Entries.
	Errs error
}

// Unpack decodes every entry of an archive. Header errors are fatal;
// per-entry problems are logged, recorded and skipped.
func Unpack(data []byte, names NameTable, log *zap.Logger) (*Unpacked, error) {
	log = nopIfNil(log)

	idx, err := ParseIndex(data, log)
	if err != nil {
		return nil, err
	}
	log.Debug("parsed index",
		zap.Int("files", idx.FileCount),
		zap.String("data_start", fmt.Sprintf("0x%08X", int(idx.Anchor)*BlockSize)))

	res := &Unpacked{}
	for _, r := range idx.Ranges {
		if !r.Valid(len(data)) {
			log.Warn("skipping invalid entry",
				zap.Int("id", r.ID),
				zap.Int("start", r.Start),
				zap.Int("end", r.End))
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}

		raw, err := cm.Decompress(data[r.Start:r.End])
		if err != nil {
			log.Error("failed to decompress entry", zap.Int("id", r.ID), zap.Error(err))
			res.Failed = append(res.Failed, r)
			res.Errs = multierr.Append(res.Errs, fmt.Errorf("entry %d: %w", r.ID, err))
			continue
		}

		e := Entry{ID: r.ID, Name: names.Name(r.ID), Data: raw}
		log.Debug("extracted entry",
			zap.Int("id", e.ID),
			zap.String("name", e.Name),
			zap.Int("stored", r.Size()),
			zap.Int("size", len(raw)))
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

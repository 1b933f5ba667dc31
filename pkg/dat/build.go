package dat

import (
	"encoding/binary"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/dattool/pkg/cm"
)

// BuildOptions configures Build. A nil *BuildOptions uses the defaults.
type BuildOptions struct {
	Layout Layout
	Logger *zap.Logger
}

// Built is the output of Build.
type Built struct {
	Data  []byte
	Names NameTable
	// Ranges are the byte spans of the packed entries in pack order.
	Ranges []Range
}

// Build compresses entries and lays them out as an archive. Entries are
// packed in ascending ID order; IDs that are not exactly 0..n-1 are logged
// and packed anyway, with no placeholder for the gap.
func Build(entries []Entry, opts *BuildOptions) (*Built, error) {
	if opts == nil {
		opts = &BuildOptions{}
	}
	log := nopIfNil(opts.Logger)

	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries to pack")
	}
	if len(entries) > MaxEntries {
		return nil, fmt.Errorf("%d entries exceed the %d index slots below 0x%X", len(entries), MaxEntries, DataOffset)
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	names := make(NameTable)
	expected := 0
	for i, e := range sorted {
		if e.ID < 0 {
			return nil, fmt.Errorf("entry %d has negative id %d", i, e.ID)
		}
		if i > 0 && e.ID == sorted[i-1].ID {
			return nil, fmt.Errorf("duplicate entry id %d", e.ID)
		}
		if e.ID != expected {
			log.Warn("entry ids are not contiguous",
				zap.Int("expected", expected),
				zap.Int("got", e.ID))
		}
		if e.Name != "" && !ValidName(e.Name) {
			return nil, fmt.Errorf("entry %d has unsafe name %q", e.ID, e.Name)
		}
		expected = e.ID + 1
		if e.Name != "" {
			names[e.ID] = e.Name
		}
	}

	blobs := make([][]byte, len(sorted))
	ranges := make([]Range, len(sorted))
	offset := DataOffset
	for i, e := range sorted {
		blobs[i] = cm.Compress(e.Data)
		aligned := alignBlock(len(blobs[i]))
		ranges[i] = Range{ID: e.ID, Start: offset, End: offset + aligned}
		offset += aligned

		log.Debug("compressed entry",
			zap.Int("id", e.ID),
			zap.String("name", e.Name),
			zap.Int("raw", len(e.Data)),
			zap.Int("compressed", len(blobs[i])))
	}

	out := make([]byte, offset)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(sorted)))
	writeIndex(out, ranges, opts.Layout, log)
	for i, r := range ranges {
		copy(out[r.Start:], blobs[i])
	}

	return &Built{Data: out, Names: names, Ranges: ranges}, nil
}

func writeIndex(out []byte, ranges []Range, layout Layout, log *zap.Logger) {
	slot := func(i int, offset int) {
		binary.LittleEndian.PutUint32(out[headerSize+i*slotSize:], uint32(offset/BlockSize))
	}

	switch layout {
	case LayoutLegacy:
		log.Warn("writing legacy index: the anchor does not point at entry 0 and the last end offset is missing")
		binary.LittleEndian.PutUint32(out[4:], anchorLegacy)
		for i := 1; i < len(ranges); i++ {
			slot(i-1, ranges[i].Start)
		}
	default:
		binary.LittleEndian.PutUint32(out[4:], anchorComplete)
		for i, r := range ranges {
			slot(i, r.End)
		}
	}
}

// Package dat reads and writes the game's DAT asset archives.
//
// An archive is a 0x800-byte header area followed by CM-compressed entries,
// each padded to a 32-byte boundary:
//
//	0x000  uint32 LE file count
//	0x004  uint32 LE anchor: entry 0 offset / 32
//	0x008  uint32 LE end offset / 32, one slot per entry
//	....   zero padding up to 0x800
//	0x800  entries
//
// Entry i spans [end[i-1]*32, end[i]*32), entry 0 starting at anchor*32.
// Offsets are kept in bytes everywhere except the serialized index.
package dat

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Layout constants.
const (
	// DataOffset is where the first entry starts.
	DataOffset = 0x800
	// BlockSize is the index unit and the alignment of every entry.
	BlockSize = 32

	headerSize = 8
	slotSize   = 4

	// MaxEntries is the number of index slots that fit below DataOffset.
	MaxEntries = (DataOffset - headerSize) / slotSize

	// maxFileCount is a sanity bound on the file count read from disk.
	maxFileCount = 1000

	anchorComplete = DataOffset / BlockSize
	anchorLegacy   = 0x20
)

// ErrFormat is returned for malformed archives.
var ErrFormat = errors.New("invalid DAT archive")

// Layout selects how Build writes the header and index.
type Layout int

const (
	// LayoutComplete writes the anchor for DataOffset and one end offset
	// per entry, the last being the archive size.
	LayoutComplete Layout = iota
	// LayoutLegacy reproduces archives written by the original packing
	// script: a fixed 0x20 anchor and file_count-1 slots holding the start
	// offsets of entries 1..n-1. Unpack cannot recover these ranges.
	LayoutLegacy
)

// String returns the layout name used in configuration.
func (l Layout) String() string {
	switch l {
	case LayoutComplete:
		return "complete"
	case LayoutLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout parses a layout name.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "complete":
		return LayoutComplete, nil
	case "legacy":
		return LayoutLegacy, nil
	default:
		return 0, fmt.Errorf("unknown layout %q", s)
	}
}

// Entry is one file stored in an archive.
type Entry struct {
	ID   int
	Name string
	Data []byte
}

// FileName returns the on-disk name used by the directory convention:
// "<id>" or "<id>.<name>".
func (e Entry) FileName() string {
	if e.Name == "" {
		return fmt.Sprintf("%d", e.ID)
	}
	return fmt.Sprintf("%d.%s", e.ID, e.Name)
}

// ValidName reports whether name can be used as the name part of an entry
// file name: non-empty, local and free of path separators.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && filepath.IsLocal(name)
}

// Range is the byte span of one entry inside an archive.
type Range struct {
	ID    int
	Start int
	End   int
}

// Size returns the span length, which may be non-positive for broken
// index slots.
func (r Range) Size() int {
	return r.End - r.Start
}

func alignBlock(n int) int {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

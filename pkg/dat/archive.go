package dat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/dattool/pkg/cm"
)

// Options configures Open and Parse. A nil *Options uses the defaults.
type Options struct {
	// NameTable is the header file to resolve names from. Open defaults it
	// to the archive path with a ".h" extension.
	NameTable string
	// Charset of the name table file, UTF-8 when empty.
	Charset string
	// CacheEntries bounds the number of decoded entries kept in memory;
	// zero disables the cache.
	CacheEntries int
	Logger       *zap.Logger
}

// Archive is an archive loaded into memory for random access.
type Archive struct {
	data  []byte
	index *Index
	names NameTable
	cache *lru.Cache[int, []byte]
	log   *zap.Logger
}

// Open reads an archive and its companion name table from disk.
func Open(path string, opts *Options) (*Archive, error) {
	if opts == nil {
		opts = &Options{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	tablePath := opts.NameTable
	if tablePath == "" {
		tablePath = strings.TrimSuffix(path, filepath.Ext(path)) + ".h"
	}
	names, err := LoadNameTable(tablePath, opts.Charset, opts.Logger)
	if err != nil {
		return nil, err
	}

	return Parse(data, names, opts)
}

// Parse indexes an archive already in memory.
func Parse(data []byte, names NameTable, opts *Options) (*Archive, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := nopIfNil(opts.Logger)

	idx, err := ParseIndex(data, log)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = NameTable{}
	}

	a := &Archive{data: data, index: idx, names: names, log: log}
	if opts.CacheEntries > 0 {
		a.cache, err = lru.New[int, []byte](opts.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("creating entry cache: %w", err)
		}
	}
	return a, nil
}

// Close releases the decoded-entry cache.
func (a *Archive) Close() error {
	if a.cache != nil {
		a.cache.Purge()
	}
	return nil
}

// Count returns the file count from the header.
func (a *Archive) Count() int {
	return a.index.FileCount
}

// Size returns the archive size in bytes.
func (a *Archive) Size() int {
	return len(a.data)
}

// Index returns the parsed header.
func (a *Archive) Index() *Index {
	return a.index
}

// Names returns the name table.
func (a *Archive) Names() NameTable {
	return a.names
}

// List returns the ids of all readable entries in ascending order.
func (a *Archive) List() []int {
	ids := make([]int, 0, len(a.index.Ranges))
	for _, r := range a.index.Ranges {
		if r.Valid(len(a.data)) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Contains reports whether id has a readable range.
func (a *Archive) Contains(id int) bool {
	if id < 0 || id >= len(a.index.Ranges) {
		return false
	}
	return a.index.Ranges[id].Valid(len(a.data))
}

// Lookup resolves a name from the name table to an id.
func (a *Archive) Lookup(name string) (int, bool) {
	return a.names.ID(name)
}

// Name returns the name of id, or "".
func (a *Archive) Name(id int) string {
	return a.names.Name(id)
}

// Range returns the byte span of id.
func (a *Archive) Range(id int) (Range, error) {
	if id < 0 || id >= len(a.index.Ranges) {
		return Range{}, fmt.Errorf("entry %d not found: archive has %d entries", id, len(a.index.Ranges))
	}
	return a.index.Ranges[id], nil
}

// Raw returns the stored (compressed, padded) bytes of id.
func (a *Archive) Raw(id int) ([]byte, error) {
	r, err := a.Range(id)
	if err != nil {
		return nil, err
	}
	if !r.Valid(len(a.data)) {
		return nil, fmt.Errorf("%w: entry %d has an empty range [0x%X, 0x%X)", ErrFormat, id, r.Start, r.End)
	}
	return a.data[r.Start:r.End], nil
}

// Header returns the CM header of id.
func (a *Archive) Header(id int) (cm.Header, error) {
	raw, err := a.Raw(id)
	if err != nil {
		return cm.Header{}, err
	}
	return cm.ParseHeader(raw)
}

// Read decodes entry id. The returned slice is shared with the cache and
// must not be modified.
func (a *Archive) Read(id int) ([]byte, error) {
	if a.cache != nil {
		if data, ok := a.cache.Get(id); ok {
			return data, nil
		}
	}

	raw, err := a.Raw(id)
	if err != nil {
		return nil, err
	}
	data, err := cm.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	a.log.Debug("decoded entry", zap.Int("id", id), zap.Int("size", len(data)))

	if a.cache != nil {
		a.cache.Add(id, data)
	}
	return data, nil
}

// Entry decodes id and attaches its name.
func (a *Archive) Entry(id int) (Entry, error) {
	data, err := a.Read(id)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: id, Name: a.Name(id), Data: data}, nil
}

// Cached returns the number of decoded entries held in the cache.
func (a *Archive) Cached() int {
	if a.cache == nil {
		return 0
	}
	return a.cache.Len()
}

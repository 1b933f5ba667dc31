package dat

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/dattool/pkg/encoding"
)

// NameTable maps entry ids to the symbolic names kept in the archive's
// companion header file ("#define NAME ID" lines).
type NameTable map[int]string

var defineLine = regexp.MustCompile(`#define\s+(\S+)\s+(\d+)`)

const nameTableBanner = "// Auto-generated header file"

// Name returns the name for id, or "" when it has none.
func (t NameTable) Name(id int) string {
	return t[id]
}

// ID looks up an id by name. When several ids share the name the lowest
// one wins.
func (t NameTable) ID(name string) (int, bool) {
	for _, id := range t.IDs() {
		if t[id] == name {
			return id, true
		}
	}
	return 0, false
}

// IDs returns the mapped ids in ascending order.
func (t NameTable) IDs() []int {
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ParseNameTable reads "#define NAME ID" lines from r, decoding the text
// from charset first. Lines that do not match are ignored; a later line for
// the same id replaces an earlier one. Names that could escape an output
// directory are logged and dropped.
func ParseNameTable(r io.Reader, charset string, log *zap.Logger) (NameTable, error) {
	log = nopIfNil(log)

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading name table: %w", err)
	}
	text, err := encoding.ToUTF8(charset, raw)
	if err != nil {
		return nil, fmt.Errorf("decoding name table: %w", err)
	}

	t := make(NameTable)
	sc := bufio.NewScanner(bytes.NewReader([]byte(text)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := defineLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if !ValidName(m[1]) {
			log.Warn("ignoring unsafe entry name", zap.Int("id", id), zap.String("name", m[1]))
			continue
		}
		t[id] = m[1]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning name table: %w", err)
	}
	return t, nil
}

// LoadNameTable reads a name table file. A missing file yields an empty
// table and no error.
func LoadNameTable(path, charset string, log *zap.Logger) (NameTable, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NameTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening name table: %w", err)
	}
	defer f.Close()
	return ParseNameTable(f, charset, log)
}

// Encode writes the table as a header file encoded in charset, one
// "#define NAME ID" line per id in ascending order.
func (t NameTable) Encode(w io.Writer, charset string) error {
	var buf bytes.Buffer
	buf.WriteString(nameTableBanner + "\n\n")
	for _, id := range t.IDs() {
		fmt.Fprintf(&buf, "#define %s %d\n", t[id], id)
	}

	out, err := encoding.FromUTF8(charset, buf.String())
	if err != nil {
		return fmt.Errorf("encoding name table: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// Save writes the table to path.
func (t NameTable) Save(path, charset string) error {
	var buf bytes.Buffer
	if err := t.Encode(&buf, charset); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing name table: %w", err)
	}
	return nil
}

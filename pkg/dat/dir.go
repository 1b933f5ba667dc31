package dat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DirOptions configures the directory-level pack and unpack helpers.
type DirOptions struct {
	Layout  Layout
	Charset string
	// WriteRaw makes UnpackFile save the stored bytes of entries that fail
	// to decode as "<id>.compressed".
	WriteRaw bool
	Logger   *zap.Logger
}

func (o *DirOptions) logger() *zap.Logger {
	if o == nil {
		return zap.NewNop()
	}
	return nopIfNil(o.Logger)
}

// ParseFileName splits a directory entry named "<id>" or "<id>.<name>".
func ParseFileName(name string) (id int, entryName string, ok bool) {
	idPart, rest, _ := strings.Cut(name, ".")
	if idPart == "" || strings.TrimLeft(idPart, "0123456789") != "" {
		return 0, "", false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, "", false
	}
	return id, rest, true
}

// LoadDir reads the regular files of dir that follow the "<id>[.<name>]"
// convention, sorted by id. Other files are logged and skipped.
func LoadDir(dir string, log *zap.Logger) ([]Entry, error) {
	log = nopIfNil(log)

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var entries []Entry
	for _, item := range items {
		if !item.Type().IsRegular() {
			continue
		}
		id, name, ok := ParseFileName(item.Name())
		if !ok {
			log.Warn("skipping file without a numeric id", zap.String("file", item.Name()))
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, item.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", item.Name(), err)
		}
		entries = append(entries, Entry{ID: id, Name: name, Data: data})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no files named <id> or <id>.<name> in %s", dir)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// WriteDir writes entries to dir using the "<id>[.<name>]" convention.
// An entry whose name would leave dir is an error and nothing after it is
// written.
func WriteDir(dir string, entries []Entry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	for _, e := range entries {
		if e.Name != "" && !ValidName(e.Name) {
			return fmt.Errorf("entry %d: unsafe name %q", e.ID, e.Name)
		}
		path := filepath.Join(dir, e.FileName())
		if err := os.WriteFile(path, e.Data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", e.FileName(), err)
		}
	}
	return nil
}

// PackDir packs dir into outDir/<dir>.dat and, when any entry is named,
// outDir/<dir>.h.
func PackDir(dir, outDir string, opts *DirOptions) (*Built, error) {
	log := opts.logger()
	if opts == nil {
		opts = &DirOptions{}
	}

	entries, err := LoadDir(dir, log)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(filepath.Clean(dir))
	log = log.With(zap.String("archive", base))
	log.Info("packing", zap.Int("files", len(entries)))

	built, err := Build(entries, &BuildOptions{Layout: opts.Layout, Logger: log})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	datPath := filepath.Join(outDir, base+".dat")
	if err := os.WriteFile(datPath, built.Data, 0644); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	log.Info("wrote archive", zap.String("path", datPath), zap.Int("bytes", len(built.Data)))

	if len(built.Names) > 0 {
		hPath := filepath.Join(outDir, base+".h")
		if err := built.Names.Save(hPath, opts.Charset); err != nil {
			return nil, err
		}
		log.Info("wrote name table", zap.String("path", hPath), zap.Int("names", len(built.Names)))
	}
	return built, nil
}

// UnpackFile extracts datPath into outDir/<name>/, resolving names from the
// sibling <name>.h when it exists.
func UnpackFile(datPath, outDir string, opts *DirOptions) (*Unpacked, error) {
	log := opts.logger()
	if opts == nil {
		opts = &DirOptions{}
	}

	data, err := os.ReadFile(datPath)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	stem := strings.TrimSuffix(datPath, filepath.Ext(datPath))
	names, err := LoadNameTable(stem+".h", opts.Charset, log)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(stem)
	log = log.With(zap.String("archive", base))
	if len(names) == 0 {
		log.Debug("no name table", zap.String("path", stem+".h"))
	}

	res, err := Unpack(data, names, log)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(outDir, base)
	if err := WriteDir(target, res.Entries); err != nil {
		return nil, err
	}
	if opts.WriteRaw {
		for _, r := range res.Failed {
			path := filepath.Join(target, fmt.Sprintf("%d.compressed", r.ID))
			if err := os.WriteFile(path, data[r.Start:r.End], 0644); err != nil {
				return nil, fmt.Errorf("writing raw entry %d: %w", r.ID, err)
			}
			log.Info("saved undecodable entry", zap.Int("id", r.ID), zap.String("path", path))
		}
	}
	log.Info("extracted",
		zap.Int("files", len(res.Entries)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(multierr.Errors(res.Errs))),
		zap.String("dir", target))
	return res, nil
}

// PackTree packs every sub-directory of root into outDir. When root has no
// sub-directories it is packed itself. A failing directory is logged and
// the rest are still packed; the failures are returned combined.
func PackTree(root, outDir string, opts *DirOptions) (int, error) {
	log := opts.logger()

	items, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("reading input directory: %w", err)
	}

	var dirs []string
	for _, item := range items {
		if item.IsDir() {
			dirs = append(dirs, filepath.Join(root, item.Name()))
		}
	}
	if len(dirs) == 0 {
		dirs = []string{root}
	}

	packed := 0
	var errs error
	for _, dir := range dirs {
		if _, err := PackDir(dir, outDir, opts); err != nil {
			log.Error("failed to pack directory", zap.String("dir", dir), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", dir, err))
			continue
		}
		packed++
	}
	return packed, errs
}

// UnpackTree extracts every *.dat file in inDir into outDir. Failing
// archives are logged and skipped; the failures are returned combined.
func UnpackTree(inDir, outDir string, opts *DirOptions) (int, error) {
	log := opts.logger()

	paths, err := filepath.Glob(filepath.Join(inDir, "*.dat"))
	if err != nil {
		return 0, fmt.Errorf("listing archives: %w", err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no .dat files in %s", inDir)
	}
	sort.Strings(paths)

	unpacked := 0
	var errs error
	for _, path := range paths {
		if _, err := UnpackFile(path, outDir, opts); err != nil {
			log.Error("failed to unpack archive", zap.String("path", path), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		unpacked++
	}
	return unpacked, errs
}

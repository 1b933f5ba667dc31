package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/dattool/internal/config"
	"github.com/Faultbox/dattool/internal/logger"
	"github.com/Faultbox/dattool/pkg/cm"
	"github.com/Faultbox/dattool/pkg/dat"
)

// stdout receives listings and reports; tests replace it.
var stdout io.Writer = os.Stdout

func dirOptions(cfg *config.Config, charset string) (*dat.DirOptions, error) {
	layout, err := dat.ParseLayout(cfg.Pack.Layout)
	if err != nil {
		return nil, err
	}
	return &dat.DirOptions{
		Layout:   layout,
		Charset:  charset,
		WriteRaw: cfg.Unpack.WriteRaw,
		Logger:   logger.Named("dat"),
	}, nil
}

func openArchive(cfg *config.Config, path string) (*dat.Archive, error) {
	return dat.Open(path, &dat.Options{
		Charset:      cfg.Unpack.NameTable.Charset,
		CacheEntries: cfg.Unpack.CacheEntries,
		Logger:       logger.Named("dat"),
	})
}

func cmdPack(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return usageError("pack <input_dir> <output_dir>")
	}

	opts, err := dirOptions(cfg, cfg.Pack.NameTable.Charset)
	if err != nil {
		return err
	}

	n, err := dat.PackTree(args[0], args[1], opts)
	logger.Info("pack finished", zap.Int("archives", n))
	return err
}

func cmdUnpack(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return usageError("unpack <file.dat|input_dir> <output_dir>")
	}

	opts, err := dirOptions(cfg, cfg.Unpack.NameTable.Charset)
	if err != nil {
		return err
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	if !info.IsDir() {
		res, err := dat.UnpackFile(args[0], args[1], opts)
		if err != nil {
			return err
		}
		return res.Errs
	}

	n, err := dat.UnpackTree(args[0], args[1], opts)
	logger.Info("unpack finished", zap.Int("archives", n))
	return err
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usageError("info <file.dat>")
	}

	archive, err := openArchive(cfg, args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	idx := archive.Index()
	fmt.Fprintf(stdout, "Archive:    %s\n", args[0])
	fmt.Fprintf(stdout, "Size:       %d bytes\n", archive.Size())
	fmt.Fprintf(stdout, "Files:      %d\n", idx.FileCount)
	fmt.Fprintf(stdout, "Data start: 0x%08X (anchor %d)\n", int(idx.Anchor)*dat.BlockSize, idx.Anchor)
	fmt.Fprintf(stdout, "Names:      %d\n", len(archive.Names()))
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "%4s  %-24s %-23s %8s %8s %6s\n", "ID", "NAME", "RANGE", "STORED", "SIZE", "RATIO")

	var stored, decoded int
	for _, r := range idx.Ranges {
		name := archive.Name(r.ID)
		span := fmt.Sprintf("0x%08X-0x%08X", r.Start, r.End)
		if !archive.Contains(r.ID) {
			fmt.Fprintf(stdout, "%4d  %-24s %-23s %8s\n", r.ID, name, span, "invalid")
			continue
		}
		h, err := archive.Header(r.ID)
		if err != nil {
			fmt.Fprintf(stdout, "%4d  %-24s %-23s %8d %8s\n", r.ID, name, span, r.Size(), "bad")
			continue
		}
		stored += r.Size()
		decoded += int(h.DecodedLength)
		fmt.Fprintf(stdout, "%4d  %-24s %-23s %8d %8d %6s\n",
			r.ID, name, span, r.Size(), h.DecodedLength, ratio(r.Size(), int(h.DecodedLength)))
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Total: %d stored, %d decoded (%s)\n", stored, decoded, ratio(stored, decoded))
	return nil
}

func ratio(stored, decoded int) string {
	if decoded == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(stored)*100/float64(decoded))
}

func cmdList(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	limit := fs.Int("n", 0, "Limit output to N entries (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return usageError("list [-n N] <file.dat> [pattern]")
	}

	archive, err := openArchive(cfg, fs.Arg(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for _, id := range archive.List() {
		fileName := dat.Entry{ID: id, Name: archive.Name(id)}.FileName()
		if pattern != "" {
			matched, _ := filepath.Match(pattern, strings.ToLower(fileName))
			if !matched && !strings.Contains(strings.ToLower(fileName), pattern) {
				continue
			}
		}
		fmt.Fprintln(stdout, fileName)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		logger.Info("list finished", zap.Int("matched", count))
	}
	return nil
}

func cmdExtract(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return usageError("extract <file.dat> <id|name> [output_dir]")
	}
	outputDir := "."
	if len(args) > 2 {
		outputDir = args[2]
	}

	archive, err := openArchive(cfg, args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	id, err := strconv.Atoi(args[1])
	if err != nil {
		var ok bool
		id, ok = archive.Lookup(args[1])
		if !ok {
			return fmt.Errorf("no entry named %s", args[1])
		}
	}

	e, err := archive.Entry(id)
	if err != nil {
		return err
	}
	if err := dat.WriteDir(outputDir, []dat.Entry{e}); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Extracted: %s (%d bytes)\n", filepath.Join(outputDir, e.FileName()), len(e.Data))
	return nil
}

func cmdVerify(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usageError("verify <file.dat>")
	}

	archive, err := openArchive(cfg, args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	var errs error
	identical := 0
	for _, id := range archive.List() {
		raw, err := archive.Raw(id)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		data, err := archive.Read(id)
		if err != nil {
			fmt.Fprintf(stdout, "%4d  FAIL  %v\n", id, err)
			errs = multierr.Append(errs, err)
			continue
		}

		status := "differs"
		if re := cm.Compress(data); len(re) <= len(raw) && bytes.Equal(re, raw[:len(re)]) {
			status = "identical"
			identical++
		}
		fmt.Fprintf(stdout, "%4d  OK    %016x  %8d  %s\n", id, xxhash.Sum64(data), len(data), status)
	}

	fmt.Fprintf(stdout, "\n%d entries, %d re-encode identically\n", len(archive.List()), identical)
	return errs
}

func cmdCompress(_ *config.Config, args []string) error {
	if len(args) < 2 {
		return usageError("compress <input> <output>")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	blob := cm.Compress(data)
	if err := os.WriteFile(args[1], blob, 0644); err != nil {
		return err
	}

	logger.Info("compressed",
		zap.String("input", args[0]),
		zap.Int("raw", len(data)),
		zap.Int("compressed", len(blob)))
	return nil
}

func cmdDecompress(_ *config.Config, args []string) error {
	fs := flag.NewFlagSet("decompress", flag.ContinueOnError)
	limit := fs.Int("n", -1, "Decode only the first N bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return usageError("decompress [-n N] <input> <output>")
	}

	blob, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	var data []byte
	if *limit >= 0 {
		data, err = cm.DecompressPrefix(blob, *limit)
	} else {
		data, err = cm.Decompress(blob)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(fs.Arg(1), data, 0644); err != nil {
		return err
	}
	logger.Info("decompressed", zap.String("input", fs.Arg(0)), zap.Int("bytes", len(data)))
	return nil
}

func cmdInitConfig(_ *config.Config, args []string) error {
	cfg := config.Default()
	if len(args) < 1 {
		return cfg.Save()
	}
	return cfg.SaveTo(args[0])
}

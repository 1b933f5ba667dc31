// dattool is a CLI utility for the game's DAT archives and CM-compressed files.
package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/dattool/internal/config"
	"github.com/Faultbox/dattool/internal/logger"
)

// usageError is returned for bad arguments and holds the command synopsis.
type usageError string

func (u usageError) Error() string {
	return "usage: dattool " + string(u)
}

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	if err := run(cfg, args[0], args[1:]); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "Usage: dattool %s\n", string(usage))
			os.Exit(1)
		}
		logger.Error("command failed", zap.String("command", args[0]), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, command string, args []string) error {
	switch command {
	case "pack", "p":
		return cmdPack(cfg, args)
	case "unpack", "u":
		return cmdUnpack(cfg, args)
	case "info":
		return cmdInfo(cfg, args)
	case "list", "ls":
		return cmdList(cfg, args)
	case "extract", "x":
		return cmdExtract(cfg, args)
	case "verify":
		return cmdVerify(cfg, args)
	case "compress":
		return cmdCompress(cfg, args)
	case "decompress":
		return cmdDecompress(cfg, args)
	case "init-config":
		return cmdInitConfig(cfg, args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Fprintln(stdout, `dattool - DAT archive and CM compression utility

Usage:
  dattool [global options] <command> [options]

Global options:
  -config <file>    Config file (default ./dattool.yaml, then user config dir)
  -debug, -quiet    Log level override
  -layout <name>    Index layout for pack: complete (default) or legacy
  -charset <name>   Name table charset: utf-8, shift-jis, gbk, euc-kr, big5
  -log-file <file>  Also write logs to a rotated file
  -write-raw        On unpack, save undecodable entries as <id>.compressed

Commands:
  pack <input_dir> <output_dir>         Pack each sub-directory into <name>.dat + <name>.h
  unpack <file.dat|dir> <output_dir>    Extract one archive or every .dat in a directory
  info <file.dat>                       Show header and per-entry layout
  list <file.dat> [pattern]             List entries (optional glob on "<id>.<name>")
  extract <file.dat> <id|name> [dir]    Extract one entry
  verify <file.dat>                     Decode, digest and re-encode every entry
  compress <in> <out>                   Compress one file to CM
  decompress [-n N] <in> <out>          Decompress one CM file (first N bytes with -n)
  init-config [path]                    Write the default config file

Examples:
  dattool pack ./extracted ./packed
  dattool -charset shift-jis unpack ./packed ./extracted
  dattool list system.dat "*BG*"
  dattool extract system.dat BG_TITLE ./out`)
}

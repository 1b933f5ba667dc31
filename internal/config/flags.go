package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagQuiet   = flag.Bool("quiet", false, "Only log warnings and errors")
	flagLayout  = flag.String("layout", "", "Index layout for pack: complete or legacy")
	flagCharset = flag.String("charset", "", "Charset of name table files")
	flagLogFile = flag.String("log-file", "", "Also write logs to this file")
	flagRaw     = flag.Bool("write-raw", false, "Save entries that fail to decode as <id>.compressed")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after the global flags.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagQuiet {
		cfg.Logging.Level = "warn"
	}
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLayout != "" {
		cfg.Pack.Layout = *flagLayout
	}
	if *flagCharset != "" {
		cfg.Pack.NameTable.Charset = *flagCharset
		cfg.Unpack.NameTable.Charset = *flagCharset
	}
	if *flagRaw {
		cfg.Unpack.WriteRaw = true
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
}

// Package config handles dattool configuration loading and management.
package config

// Config holds all tool settings.
type Config struct {
	Pack    PackConfig    `yaml:"pack"`
	Unpack  UnpackConfig  `yaml:"unpack"`
	Logging LoggingConfig `yaml:"logging"`
}

// PackConfig holds archive building settings.
type PackConfig struct {
	// Layout is "complete" or "legacy".
	Layout    string          `yaml:"layout"`
	NameTable NameTableConfig `yaml:"name_table"`
}

// UnpackConfig holds archive reading settings.
type UnpackConfig struct {
	NameTable    NameTableConfig `yaml:"name_table"`
	CacheEntries int             `yaml:"cache_entries"` // Decoded entries kept by info/extract
	// WriteRaw saves entries that fail to decode as <id>.compressed.
	WriteRaw bool `yaml:"write_raw"`
}

// NameTableConfig holds settings for the "#define NAME ID" header files.
type NameTableConfig struct {
	Charset string `yaml:"charset"` // utf-8, shift-jis, gbk, euc-kr, big5
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Pack: PackConfig{
			Layout:    "complete",
			NameTable: NameTableConfig{Charset: "utf-8"},
		},
		Unpack: UnpackConfig{
			NameTable:    NameTableConfig{Charset: "utf-8"},
			CacheEntries: 64,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Package encoding converts name-table text between UTF-8 and the legacy
// code pages the game's tooling writes.
package encoding

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// UTF8 is the default charset name.
const UTF8 = "utf-8"

var charsets = map[string]encoding.Encoding{
	"shift-jis": japanese.ShiftJIS,
	"sjis":      japanese.ShiftJIS,
	"cp932":     japanese.ShiftJIS,
	"gbk":       simplifiedchinese.GBK,
	"cp936":     simplifiedchinese.GBK,
	"gb18030":   simplifiedchinese.GB18030,
	"big5":      traditionalchinese.Big5,
	"euc-kr":    korean.EUCKR,
	"cp949":     korean.EUCKR,
}

// Lookup returns the encoding registered under name. UTF-8 (or an empty
// name) returns nil, meaning no conversion.
func Lookup(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", UTF8, "utf8":
		return nil, nil
	}
	enc, ok := charsets[key]
	if !ok {
		return nil, fmt.Errorf("unknown charset %q", name)
	}
	return enc, nil
}

// Supported reports whether name is a known charset.
func Supported(name string) bool {
	_, err := Lookup(name)
	return err == nil
}

// ToUTF8 decodes data from the named charset.
func ToUTF8(charset string, data []byte) (string, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	result, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", charset, err)
	}
	return string(result), nil
}

// FromUTF8 encodes s into the named charset.
func FromUTF8(charset string, s string) ([]byte, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(s), nil
	}
	result, _, err := transform.Bytes(enc.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", charset, err)
	}
	return result, nil
}

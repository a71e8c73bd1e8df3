// Package langinfo provides the registry of Project Zomboid translation
// languages: directory identifier, in-game display name, the Java-style
// charset the game reads the files with, and the code understood by the
// translation provider. It also implements charset-aware file reading and
// writing, since target files are not uniformly UTF-8.
package langinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// Language describes one translation language.
type Language struct {
	// ID is the directory and file-suffix identifier (EN, RU, PTBR, ...).
	ID string
	// Text is the display name used in-game.
	Text string
	// Charset is the Java-style charset name the game decodes the files with.
	Charset string
	// TrCode is the language code passed to the translation provider.
	TrCode string
}

// Registry contains every language the game ships translation support for,
// keyed by ID. Charsets follow the per-language language.txt metadata.
var Registry = map[string]Language{
	"AR":   {ID: "AR", Text: "Espanol (AR)", Charset: "Cp1252", TrCode: "es"},
	"CA":   {ID: "CA", Text: "Catalan", Charset: "ISO-8859-15", TrCode: "ca"},
	"CH":   {ID: "CH", Text: "Traditional Chinese", Charset: "UTF-8", TrCode: "zh-TW"},
	"CN":   {ID: "CN", Text: "Simplified Chinese", Charset: "UTF-8", TrCode: "zh-CN"},
	"CS":   {ID: "CS", Text: "Czech", Charset: "Cp1250", TrCode: "cs"},
	"DA":   {ID: "DA", Text: "Danish", Charset: "Cp1252", TrCode: "da"},
	"DE":   {ID: "DE", Text: "Deutsch", Charset: "Cp1252", TrCode: "de"},
	"EN":   {ID: "EN", Text: "English", Charset: "UTF-8", TrCode: "en"},
	"ES":   {ID: "ES", Text: "Espanol (ES)", Charset: "Cp1252", TrCode: "es"},
	"FI":   {ID: "FI", Text: "Finnish", Charset: "Cp1252", TrCode: "fi"},
	"FR":   {ID: "FR", Text: "Francais", Charset: "Cp1252", TrCode: "fr"},
	"HU":   {ID: "HU", Text: "Hungarian", Charset: "Cp1250", TrCode: "hu"},
	"ID":   {ID: "ID", Text: "Indonesia", Charset: "UTF-8", TrCode: "id"},
	"IT":   {ID: "IT", Text: "Italiano", Charset: "Cp1252", TrCode: "it"},
	"JP":   {ID: "JP", Text: "Japanese", Charset: "UTF-8", TrCode: "ja"},
	"KO":   {ID: "KO", Text: "Korean", Charset: "Cp949", TrCode: "ko"},
	"NL":   {ID: "NL", Text: "Nederlands", Charset: "Cp1252", TrCode: "nl"},
	"NO":   {ID: "NO", Text: "Norsk", Charset: "Cp1252", TrCode: "no"},
	"PH":   {ID: "PH", Text: "Tagalog", Charset: "UTF-8", TrCode: "tl"},
	"PL":   {ID: "PL", Text: "Polish", Charset: "Cp1250", TrCode: "pl"},
	"PT":   {ID: "PT", Text: "Portuguese", Charset: "Cp1252", TrCode: "pt"},
	"PTBR": {ID: "PTBR", Text: "Brazilian Portuguese", Charset: "Cp1252", TrCode: "pt"},
	"RO":   {ID: "RO", Text: "Romanian", Charset: "UTF-8", TrCode: "ro"},
	"RU":   {ID: "RU", Text: "Russian", Charset: "Cp1251", TrCode: "ru"},
	"TH":   {ID: "TH", Text: "Thai", Charset: "UTF-8", TrCode: "th"},
	"TR":   {ID: "TR", Text: "Turkish", Charset: "Cp1254", TrCode: "tr"},
	"UA":   {ID: "UA", Text: "Ukrainian", Charset: "Cp1251", TrCode: "uk"},
}

// IDs returns all registry language IDs in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(Registry))
	for id := range Registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the language for an ID, accepting lowercase and surrounding
// whitespace.
func Resolve(id string) (Language, bool) {
	l, ok := Registry[strings.ToUpper(strings.TrimSpace(id))]
	return l, ok
}

// ---------------------------------------------------------------------------
// Charsets
// ---------------------------------------------------------------------------

// encodings maps normalized charset names to x/text encodings. A nil value
// means the charset is byte-transparent UTF-8 and needs no conversion.
var encodings = map[string]encoding.Encoding{
	"utf-8":       nil,
	"utf8":        nil,
	"cp1250":      charmap.Windows1250,
	"cp1251":      charmap.Windows1251,
	"cp1252":      charmap.Windows1252,
	"cp1254":      charmap.Windows1254,
	"cp874":       charmap.Windows874,
	"iso-8859-15": charmap.ISO8859_15,
	"cp932":       japanese.ShiftJIS,
	"cp949":       korean.EUCKR,
	"utf-16":      unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
}

// Encoding resolves a Java-style charset name to an x/text encoding. The
// second return is nil-encoding for UTF-8 (no conversion needed).
func Encoding(charset string) (encoding.Encoding, error) {
	enc, ok := encodings[strings.ToLower(strings.TrimSpace(charset))]
	if !ok {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc, nil
}

// ---------------------------------------------------------------------------
// Encoded file I/O
// ---------------------------------------------------------------------------

// ReadFile reads path and decodes it from charset into a UTF-8 string.
// Decoding is lossy-tolerant: bytes outside the charset map to the
// replacement rune rather than failing the read.
func ReadFile(path, charset string) (string, error) {
	enc, err := Encoding(charset)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(data), nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding %s as %s: %w", path, charset, err)
	}
	return string(decoded), nil
}

// WriteFile encodes content into charset and writes it to path, creating
// parent directories. Unlike reading, encoding is strict: a rune the charset
// cannot represent fails the write, so the caller can report the offending
// text instead of silently corrupting the file.
func WriteFile(path, content, charset string) error {
	enc, err := Encoding(charset)
	if err != nil {
		return err
	}
	data := []byte(content)
	if enc != nil {
		data, err = enc.NewEncoder().Bytes(data)
		if err != nil {
			return fmt.Errorf("encoding as %s: %w", charset, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Git working-tree encodings
// ---------------------------------------------------------------------------

// gitEncodings maps charset names to the names git understands in
// .gitattributes working-tree-encoding declarations.
var gitEncodings = map[string]string{
	"utf-8":       "UTF-8",
	"utf8":        "UTF-8",
	"cp1250":      "windows-1250",
	"cp1251":      "windows-1251",
	"cp1252":      "windows-1252",
	"cp1254":      "windows-1254",
	"cp874":       "windows-874",
	"iso-8859-15": "ISO-8859-15",
	"cp932":       "Shift_JIS",
	"cp949":       "EUC-KR",
	"utf-16":      "UTF-16LE-BOM",
}

// GitEncoding returns the git working-tree-encoding name for a charset,
// falling back to UTF-8 for unknown names.
func GitEncoding(charset string) string {
	if name, ok := gitEncodings[strings.ToLower(strings.TrimSpace(charset))]; ok {
		return name
	}
	return "UTF-8"
}

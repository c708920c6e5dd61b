package catalog

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode converts raw file bytes to UTF-8 and names the source encoding.
// UTF-8 wins when the bytes are valid UTF-8. Otherwise ISO-8859-1 is used,
// unless the data contains bytes in 0x80..0x9F, which are control codes in
// ISO-8859-1 but printable characters (curly quotes, dashes) in
// Windows-1252.
func decode(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	dec, name := charmap.ISO8859_1.NewDecoder(), "iso-8859-1"
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			dec, name = charmap.Windows1252.NewDecoder(), "windows-1252"
			break
		}
	}
	out, err := dec.Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(out), name, nil
}

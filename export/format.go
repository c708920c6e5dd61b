package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/poiesic/catmat/core"
)

// Format names an output file layout.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	// FormatHash is the '#'-separated recommendation sheet.
	FormatHash Format = "hash"
)

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatJSON, FormatXLSX, FormatHash}

// ParseFormat resolves a format name, ignoring case.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath guesses the format from a file extension. ".csv" maps to
// the flat CSV layout.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	if f == FormatHash {
		return ".csv"
	}
	return "." + string(f)
}

// Write renders results to w in the given format.
func Write(w io.Writer, format Format, results []core.BatchResult) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatJSON:
		return WriteJSON(w, results)
	case FormatXLSX:
		return WriteXLSX(w, results)
	case FormatHash:
		return WriteRecommendations(w, results)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// statusLabel is the human label used in every output format.
func statusLabel(r *core.BatchResult) string {
	switch r.Status() {
	case core.BatchStatusOK:
		return "Sucesso"
	case core.BatchStatusDegraded:
		return "Parcial"
	default:
		return "Erro"
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatScore(s float32) string {
	return fmt.Sprintf("%.4f", s)
}

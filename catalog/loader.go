package catalog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/catmat/core"
	"github.com/xuri/excelize/v2"
)

// DefaultMinDescriptionLength drops stub rows whose description is too short
// to embed meaningfully.
const DefaultMinDescriptionLength = 10

type loadOptions struct {
	minDescLen int
	logger     *slog.Logger
}

// Option configures loading.
type Option func(*loadOptions) error

// WithMinDescriptionLength skips rows whose trimmed description has fewer
// than n characters.
func WithMinDescriptionLength(n int) Option {
	return func(o *loadOptions) error {
		if n < 0 {
			return fmt.Errorf("minimum description length must not be negative, got %d", n)
		}
		o.minDescLen = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *loadOptions) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

func newLoadOptions(opts []Option) (*loadOptions, error) {
	o := &loadOptions{
		minDescLen: DefaultMinDescriptionLength,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "catalog")
	return o, nil
}

// Load reads a catalog file, choosing the parser by extension.
func Load(path string, opts ...Option) (*Store, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	o, err := newLoadOptions(opts)
	if err != nil {
		return nil, err
	}
	store, err := fromRows(rows, o)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return store, nil
}

// LoadCSV reads a CSV catalog from r.
func LoadCSV(r io.Reader, opts ...Option) (*Store, error) {
	o, err := newLoadOptions(opts)
	if err != nil {
		return nil, err
	}
	rows, err := readCSV(r, o.logger)
	if err != nil {
		return nil, err
	}
	return fromRows(rows, o)
}

// LoadXLSX reads the first sheet of an XLSX workbook from r.
func LoadXLSX(r io.Reader, opts ...Option) (*Store, error) {
	o, err := newLoadOptions(opts)
	if err != nil {
		return nil, err
	}
	rows, err := readXLSX(r)
	if err != nil {
		return nil, err
	}
	return fromRows(rows, o)
}

func readTable(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return readCSV(f, slog.Default().With("component", "catalog"))
	case ".xlsx":
		return readXLSX(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func readCSV(r io.Reader, logger *slog.Logger) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, enc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}

	firstLine, _, _ := strings.Cut(text, "\n")
	delim := sniffDelimiter(firstLine)
	logger.Debug("reading csv", "encoding", enc, "delimiter", string(delim), "bytes", len(data))

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// header line, ignoring quoted sections. Comma wins ties.
func sniffDelimiter(header string) rune {
	counts := map[rune]int{}
	inQuotes := false
	for _, r := range header {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && (r == ',' || r == ';' || r == '\t'):
			counts[r]++
		}
	}
	best := ','
	for _, r := range []rune{';', '\t'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

func readXLSX(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func fromRows(rows [][]string, o *loadOptions) (*Store, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	idCol := findColumn(header, IDColumns)
	if idCol < 0 {
		return nil, fmt.Errorf("%w: id (one of %s)", ErrMissingColumn, strings.Join(IDColumns, ", "))
	}
	descCol := findColumn(header, DescriptionColumns)
	if descCol < 0 {
		return nil, fmt.Errorf("%w: description (one of %s)", ErrMissingColumn, strings.Join(DescriptionColumns, ", "))
	}

	var (
		items      = make([]*core.CatalogItem, 0, len(rows)-1)
		seen       = make(map[string]struct{}, len(rows)-1)
		blankID    int
		short      int
		duplicates int
	)
	for _, row := range rows[1:] {
		id := normalizeID(cell(row, idCol))
		desc := strings.TrimSpace(cell(row, descCol))
		switch {
		case id == "":
			blankID++
			continue
		case len([]rune(desc)) < o.minDescLen || desc == "":
			short++
			continue
		}
		if _, dup := seen[id]; dup {
			duplicates++
			continue
		}
		seen[id] = struct{}{}

		attrs := make(map[string]string, len(header)-2)
		for i, name := range header {
			if i == idCol || i == descCol || name == "" {
				continue
			}
			if v := strings.TrimSpace(cell(row, i)); v != "" {
				attrs[name] = v
			}
		}
		items = append(items, &core.CatalogItem{ID: id, Description: desc, Attributes: attrs})
	}

	store, err := NewStore(items)
	if err != nil {
		return nil, err
	}
	store.columns = header

	o.logger.Info("catalog loaded", "items", store.Len(), "rows", len(rows)-1,
		"skipped_blank_id", blankID, "skipped_short", short, "skipped_duplicate", duplicates)
	return store, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// normalizeID trims the id and drops the ".0" suffix spreadsheet exports
// add to integer codes.
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if head, ok := strings.CutSuffix(s, ".0"); ok && head != "" && isDigits(head) {
		return head
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadQueries reads batch queries from path. CSV and XLSX files must carry a
// description column; any other file is read as one query per line. Blank
// entries are skipped.
func ReadQueries(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		rows, err := readTable(path)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, ErrEmptyFile
		}
		col := findColumn(rows[0], DescriptionColumns)
		if col < 0 {
			return nil, fmt.Errorf("%w: description (one of %s)", ErrMissingColumn, strings.Join(DescriptionColumns, ", "))
		}
		var out []string
		for _, row := range rows[1:] {
			if q := strings.TrimSpace(cell(row, col)); q != "" {
				out = append(out, q)
			}
		}
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	return out, sc.Err()
}

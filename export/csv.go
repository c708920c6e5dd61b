package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/poiesic/catmat/core"
)

// utf8BOM makes spreadsheet tools detect the encoding of CSV output.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVHeader is the column layout of WriteCSV.
var CSVHeader = []string{"Item", "Consulta", "Rank", "Codigo", "Descricao", "Score", "Status", "Erro"}

// WriteCSV writes one row per (query, result). A query without results
// still gets a single row carrying its status and error.
func WriteCSV(w io.Writer, results []core.BatchResult) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i := range results {
		r := &results[i]
		item := strconv.Itoa(r.Index + 1)
		status := statusLabel(r)
		msg := errText(r.Err)
		if len(r.Results) == 0 {
			if err := cw.Write([]string{item, r.Job.Query, "", "", "", "", status, msg}); err != nil {
				return err
			}
			continue
		}
		for _, res := range r.Results {
			row := []string{
				item,
				r.Job.Query,
				strconv.Itoa(res.Rank),
				res.Item.ID,
				res.Item.Description,
				formatScore(res.Score),
				status,
				msg,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

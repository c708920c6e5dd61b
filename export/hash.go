package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/poiesic/catmat/core"
)

// HashSeparator separates fields in the recommendation sheet.
const HashSeparator = "#"

// HashHeader is the column layout of WriteRecommendations.
var HashHeader = []string{
	"Item", "Descricao",
	"Codigo_Catmat_1", "Descricao_Catmat_1", "Porque_IA_1",
	"Codigo_Catmat_2", "Descricao_Catmat_2", "Porque_IA_2",
	"Codigo_Catmat_3", "Descricao_Catmat_3", "Porque_IA_3",
}

// Placeholder values for slots the batch could not fill.
const (
	NotAvailableCode   = "N/A"
	NotEnoughResults   = "Sem resultado suficiente"
	NoRationale        = "Não disponível"
	AIUnused           = "IA não utilizada"
	ProcessingFailed   = "Erro no processamento"
	recommendationSlot = 3
)

type slot struct {
	code, desc, why string
}

// WriteRecommendations writes the '#'-separated recommendation sheet: per
// query, the recommender's pick followed by its alternatives. Slots left
// open are filled from the ranked results, then with placeholders. Jobs
// that failed outright get an error row.
func WriteRecommendations(w io.Writer, results []core.BatchResult) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(utf8BOM); err != nil {
		return err
	}
	if _, err := bw.WriteString(strings.Join(HashHeader, HashSeparator)); err != nil {
		return err
	}
	for i := range results {
		if _, err := bw.WriteString("\n" + joinHashRow(hashRow(&results[i]))); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func hashRow(r *core.BatchResult) []string {
	row := []string{strconv.Itoa(r.Index + 1), r.Job.Query}
	if r.Status() == core.BatchStatusFailed {
		row[1] = "ERRO: " + errText(r.Err)
		for range recommendationSlot {
			row = append(row, NotAvailableCode, ProcessingFailed, ProcessingFailed)
		}
		return row
	}
	for _, s := range recommendationSlots(r) {
		row = append(row, s.code, s.desc, s.why)
	}
	return row
}

func recommendationSlots(r *core.BatchResult) []slot {
	slots := make([]slot, 0, recommendationSlot)
	used := make(map[string]bool, recommendationSlot)
	add := func(item *core.CatalogItem, why string) {
		if item == nil || used[item.ID] || len(slots) == recommendationSlot {
			return
		}
		if why == "" {
			why = NoRationale
		}
		used[item.ID] = true
		slots = append(slots, slot{code: item.ID, desc: item.Description, why: why})
	}

	rec := r.Recommendation
	filler := AIUnused
	if rec.HasText() {
		filler = NoRationale
		if rec.Pick != nil {
			add(rec.Pick.Item, rec.Text)
		}
		for _, alt := range rec.Alternatives {
			add(alt.Item, alt.Reason)
		}
	}
	for _, res := range r.Results {
		add(res.Item, filler)
	}
	for len(slots) < recommendationSlot {
		slots = append(slots, slot{code: NotAvailableCode, desc: NotEnoughResults, why: NoRationale})
	}
	return slots
}

var hashFieldReplacer = strings.NewReplacer(HashSeparator, " ", "\r\n", " ", "\n", " ", "\r", " ")

func joinHashRow(fields []string) string {
	clean := make([]string, len(fields))
	for i, f := range fields {
		clean[i] = strings.TrimSpace(hashFieldReplacer.Replace(f))
	}
	return strings.Join(clean, HashSeparator)
}

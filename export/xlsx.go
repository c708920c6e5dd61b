// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/poiesic/catmat/core"
)

// Workbook sheet names.
const (
	SheetResults = "Todos_Resultados"
	SheetSummary = "Resumo_por_Item"
	SheetStats   = "Estatisticas"
)

var (
	resultsHeader = []any{"Numero_Item", "Item_Original", "Ranking_Item", "Codigo", "Descricao",
		"Score_Similaridade", "Status", "Erro", "Recomendacao_IA"}
	summaryHeader = []any{"Numero_Item", "Item_Original", "Status", "Melhor_Score",
		"Melhor_Codigo", "Melhor_Descricao", "Total_Resultados"}
	statsHeader = []any{"Metrica", "Valor"}
)

// WriteXLSX writes a workbook with every result, a per-item summary and
// aggregate statistics.
func WriteXLSX(w io.Writer, results []core.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetResults); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetSummary, SheetStats} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := writeResultsSheet(f, results); err != nil {
		return err
	}
	if err := writeSummarySheet(f, results); err != nil {
		return err
	}
	if err := writeStatsSheet(f, results); err != nil {
		return err
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func writeResultsSheet(f *excelize.File, results []core.BatchResult) error {
	if err := setRow(f, SheetResults, 1, resultsHeader); err != nil {
		return err
	}
	row := 2
	for i := range results {
		r := &results[i]
		status := statusLabel(r)
		msg := errText(r.Err)
		if len(r.Results) == 0 {
			if err := setRow(f, SheetResults, row, []any{r.Index + 1, r.Job.Query, nil, "", "", nil, status, msg, ""}); err != nil {
				return err
			}
			row++
			continue
		}
		for _, res := range r.Results {
			values := []any{
				r.Index + 1,
				r.Job.Query,
				res.Rank,
				res.Item.ID,
				res.Item.Description,
				roundScore(res.Score),
				status,
				msg,
				recommendationFor(r.Recommendation, res.Item),
			}
			if err := setRow(f, SheetResults, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

// recommendationFor returns the rationale when item is the recommender's
// pick.
func recommendationFor(rec *core.Recommendation, item *core.CatalogItem) string {
	if !rec.HasText() || rec.Pick == nil || rec.Pick.Item == nil {
		return ""
	}
	if rec.Pick.Item.ID != item.ID {
		return ""
	}
	return rec.Text
}

func writeSummarySheet(f *excelize.File, results []core.BatchResult) error {
	if err := setRow(f, SheetSummary, 1, summaryHeader); err != nil {
		return err
	}
	for i := range results {
		r := &results[i]
		values := []any{r.Index + 1, r.Job.Query, statusLabel(r), nil, "", "", len(r.Results)}
		if top := r.Top(); top != nil {
			values[3] = roundScore(top.Score)
			values[4] = top.Item.ID
			values[5] = top.Item.Description
		}
		if err := setRow(f, SheetSummary, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

// Stats aggregates a batch for the statistics sheet. Score figures cover
// every result of jobs that did not fail.
type Stats struct {
	Items     int
	Succeeded int
	Degraded  int
	Failed    int
	Results   int
	MeanScore float64
	MaxScore  float64
	MinScore  float64
}

// ComputeStats derives Stats from results.
func ComputeStats(results []core.BatchResult) Stats {
	s := Stats{Items: len(results), MinScore: math.Inf(1), MaxScore: math.Inf(-1)}
	var sum float64
	var scored int
	for i := range results {
		r := &results[i]
		s.Results += len(r.Results)
		switch r.Status() {
		case core.BatchStatusOK:
			s.Succeeded++
		case core.BatchStatusDegraded:
			s.Degraded++
		default:
			s.Failed++
			continue
		}
		for _, res := range r.Results {
			v := float64(res.Score)
			sum += v
			scored++
			s.MinScore = math.Min(s.MinScore, v)
			s.MaxScore = math.Max(s.MaxScore, v)
		}
	}
	if scored == 0 {
		s.MinScore, s.MaxScore = 0, 0
		return s
	}
	s.MeanScore = sum / float64(scored)
	return s
}

func writeStatsSheet(f *excelize.File, results []core.BatchResult) error {
	s := ComputeStats(results)
	rows := [][]any{
		statsHeader,
		{"Total de Itens", s.Items},
		{"Itens com Sucesso", s.Succeeded},
		{"Itens Parciais", s.Degraded},
		{"Itens com Erro", s.Failed},
		{"Total de Resultados", s.Results},
		{"Score Medio", round4(s.MeanScore)},
		{"Score Maximo", round4(s.MaxScore)},
		{"Score Minimo", round4(s.MinScore)},
	}
	for i, values := range rows {
		if err := setRow(f, SheetStats, i+1, values); err != nil {
			return err
		}
	}
	return nil
}

func roundScore(s float32) float64 {
	return round4(float64(s))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

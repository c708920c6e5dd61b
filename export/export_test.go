package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/poiesic/catmat/core"
)

var (
	desktop  = &core.CatalogItem{ID: "1", Description: "desktop computer", Attributes: map[string]string{"Nome da Classe": "Informatica"}}
	notebook = &core.CatalogItem{ID: "3", Description: "notebook computer"}
	mouse    = &core.CatalogItem{ID: "2", Description: "wireless mouse"}
)

func fixture() []core.BatchResult {
	computerResults := []core.SearchResult{
		{Item: desktop, Score: 0.91, Rank: 1},
		{Item: notebook, Score: 0.87, Rank: 2},
		{Item: mouse, Score: 0.12, Rank: 3},
	}
	return []core.BatchResult{
		{
			Index:   0,
			Job:     core.BatchJob{Query: "computador", TopK: 3, UseAI: true},
			Results: computerResults,
			Recommendation: &core.Recommendation{
				Pick:         &computerResults[1],
				Text:         "portable; matches the request",
				Alternatives: []core.Alternative{{Item: desktop, Reason: "fixed workstation"}},
			},
			Duration: 40 * time.Millisecond,
		},
		{
			Index: 1,
			Job:   core.BatchJob{Query: "  ", TopK: 3},
			Err: &core.BatchItemError{Index: 1, Query: "  ",
				Err: &core.ValidationError{Field: "query", Reason: "empty"}},
		},
		{
			Index:   2,
			Job:     core.BatchJob{Query: "mouse sem fio", TopK: 1},
			Results: []core.SearchResult{{Item: mouse, Score: 0.8, Rank: 1}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" JSON ", FormatJSON, false},
		{"xlsx", FormatXLSX, false},
		{"hash", FormatHash, false},
		{"html", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("out/resultados.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Equal(t, ".csv", FormatHash.Extension())
	assert.Equal(t, ".json", FormatJSON.Extension())

	_, err = FormatFromPath("noext")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, fixture()))
	require.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+3+1+1)
	assert.Equal(t, CSVHeader, records[0])
	assert.Equal(t, []string{"1", "computador", "1", "1", "desktop computer", "0.9100", "Sucesso", ""}, records[1])
	assert.Equal(t, "3", records[2][3])

	failed := records[4]
	assert.Equal(t, "2", failed[0])
	assert.Equal(t, "", failed[2])
	assert.Equal(t, "Erro", failed[6])
	assert.Contains(t, failed[7], "invalid query")

	assert.Equal(t, []string{"3", "mouse sem fio", "1", "2", "wireless mouse", "0.8000", "Sucesso", ""}, records[5])
}

func TestWriteCSV_DegradedStatus(t *testing.T) {
	results := fixture()[:1]
	results[0].Err = &core.BatchItemError{Err: core.ErrRecommenderUnavailable}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results))
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	for _, rec := range records[1:] {
		assert.Equal(t, "Parcial", rec[6])
		assert.NotEmpty(t, rec[7])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, fixture()))

	var items []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 3)

	first := items[0]
	assert.EqualValues(t, 1, first["item"])
	assert.Equal(t, "computador", first["consulta"])
	assert.Equal(t, "Sucesso", first["status"])
	assert.EqualValues(t, 40, first["duracao_ms"])
	results := first["resultados"].([]any)
	require.Len(t, results, 3)
	top := results[0].(map[string]any)
	assert.Equal(t, "1", top["codigo"])
	assert.Equal(t, "Informatica", top["classe"])

	rec := first["recomendacao_ia"].(map[string]any)
	assert.Equal(t, "3", rec["codigo"])
	assert.Equal(t, "portable; matches the request", rec["justificativa"])
	assert.Equal(t, false, rec["fallback"])
	require.Len(t, rec["alternativas"], 1)

	failed := items[1]
	assert.Equal(t, "Erro", failed["status"])
	assert.Contains(t, failed["erro"], "invalid query")
	assert.Empty(t, failed["resultados"])
	assert.NotContains(t, failed, "recomendacao_ia")
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, fixture()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetResults, SheetSummary, SheetStats}, f.GetSheetList())

	t.Run("results", func(t *testing.T) {
		rows, err := f.GetRows(SheetResults)
		require.NoError(t, err)
		require.Len(t, rows, 1+3+1+1)
		assert.Equal(t, "Numero_Item", rows[0][0])
		assert.Equal(t, "computador", rows[1][1])
		assert.Equal(t, "0.91", rows[1][5])
		// Rationale sits on the picked row only.
		assert.Empty(t, cell(rows[1], 8))
		assert.Equal(t, "portable; matches the request", cell(rows[2], 8))
		assert.Equal(t, "Erro", rows[4][6])
	})

	t.Run("summary", func(t *testing.T) {
		rows, err := f.GetRows(SheetSummary)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"1", "computador", "Sucesso", "0.91", "1", "desktop computer", "3"}, rows[1])
		assert.Equal(t, "0", rows[2][6])
	})

	t.Run("statistics", func(t *testing.T) {
		rows, err := f.GetRows(SheetStats)
		require.NoError(t, err)
		got := make(map[string]string, len(rows))
		for _, r := range rows[1:] {
			got[r[0]] = r[1]
		}
		assert.Equal(t, "3", got["Total de Itens"])
		assert.Equal(t, "2", got["Itens com Sucesso"])
		assert.Equal(t, "1", got["Itens com Erro"])
		assert.Equal(t, "4", got["Total de Resultados"])
		assert.Equal(t, "0.91", got["Score Maximo"])
		assert.Equal(t, "0.12", got["Score Minimo"])
	})
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats(fixture())
	assert.Equal(t, 3, s.Items)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 0, s.Degraded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 4, s.Results)
	assert.InDelta(t, (0.91+0.87+0.12+0.8)/4, s.MeanScore, 1e-6)

	empty := ComputeStats(nil)
	assert.Zero(t, empty.MaxScore)
	assert.Zero(t, empty.MinScore)
}

func TestWriteRecommendations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecommendations(&buf, fixture()))
	require.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))

	lines := strings.Split(string(buf.Bytes()[len(utf8BOM):]), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(HashHeader, "#"), lines[0])

	t.Run("pick then alternatives then ranking", func(t *testing.T) {
		fields := strings.Split(lines[1], "#")
		require.Len(t, fields, len(HashHeader))
		assert.Equal(t, []string{
			"1", "computador",
			"3", "notebook computer", "portable; matches the request",
			"1", "desktop computer", "fixed workstation",
			"2", "wireless mouse", NoRationale,
		}, fields)
	})

	t.Run("failed job", func(t *testing.T) {
		fields := strings.Split(lines[2], "#")
		require.Len(t, fields, len(HashHeader))
		assert.True(t, strings.HasPrefix(fields[1], "ERRO: "))
		assert.Equal(t, NotAvailableCode, fields[2])
		assert.Equal(t, ProcessingFailed, fields[3])
		assert.Equal(t, ProcessingFailed, fields[10])
	})

	t.Run("no recommendation pads short results", func(t *testing.T) {
		fields := strings.Split(lines[3], "#")
		require.Len(t, fields, len(HashHeader))
		assert.Equal(t, []string{
			"3", "mouse sem fio",
			"2", "wireless mouse", AIUnused,
			NotAvailableCode, NotEnoughResults, NoRationale,
			NotAvailableCode, NotEnoughResults, NoRationale,
		}, fields)
	})
}

func TestWriteRecommendations_FallbackUsesRanking(t *testing.T) {
	results := fixture()[:1]
	results[0].Recommendation = &core.Recommendation{
		Pick:           &results[0].Results[0],
		Fallback:       true,
		FallbackReason: core.FallbackTimeout,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRecommendations(&buf, results))
	lines := strings.Split(string(buf.Bytes()[len(utf8BOM):]), "\n")
	fields := strings.Split(lines[1], "#")
	assert.Equal(t, []string{"1", "3", "2"}, []string{fields[2], fields[5], fields[8]})
	assert.Equal(t, AIUnused, fields[4])
}

func TestWriteRecommendations_SanitizesSeparator(t *testing.T) {
	item := &core.CatalogItem{ID: "9", Description: "cabo #2\nblindado"}
	results := []core.BatchResult{{
		Job:     core.BatchJob{Query: "cabo # 2"},
		Results: []core.SearchResult{{Item: item, Score: 0.5, Rank: 1}},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteRecommendations(&buf, results))
	lines := strings.Split(string(buf.Bytes()[len(utf8BOM):]), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, strings.Split(lines[1], "#"), len(HashHeader))
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite_Dispatch(t *testing.T) {
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, f, fixture()))
			assert.NotZero(t, buf.Len())
		})
	}
	assert.ErrorIs(t, Write(&bytes.Buffer{}, Format("html"), nil), ErrUnknownFormat)
	assert.Error(t, Write(failingWriter{}, FormatCSV, fixture()))
}

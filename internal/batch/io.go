package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/utility-lookup/internal/model"
)

// header aliases accepted for each input column, lowercase.
var columnAliases = map[string][]string{
	"address":  {"address", "full address", "property address", "street address"},
	"electric": {"electric", "electric provider", "tenant electric", "electricity"},
	"gas":      {"gas", "gas provider", "tenant gas", "natural gas"},
	"water":    {"water", "water provider", "tenant water"},
}

// ReadRows loads validation input from a CSV or XLSX file, dispatching on
// extension.
func ReadRows(path string) ([]Row, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return readXLSX(path)
	}
	return readCSV(path)
}

func readCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open input")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "batch: read header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read row")
		}
		if row, ok := rowFrom(record, cols); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func readXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open input")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("batch: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("batch: sheet is empty")
	}

	cols, err := mapColumns(cellStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, xr := range sheet.Rows[1:] {
		if row, ok := rowFrom(cellStrings(xr), cols); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = c.String()
	}
	return cells
}

type columnMap struct {
	address, electric, gas, water int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{address: -1, electric: -1, gas: -1, water: -1}
	find := func(aliases []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, a := range aliases {
				if h == a {
					return i
				}
			}
		}
		return -1
	}
	cols.address = find(columnAliases["address"])
	cols.electric = find(columnAliases["electric"])
	cols.gas = find(columnAliases["gas"])
	cols.water = find(columnAliases["water"])
	if cols.address == -1 {
		return cols, eris.Errorf("batch: no address column in header %v", header)
	}
	return cols, nil
}

func rowFrom(record []string, cols columnMap) (Row, bool) {
	get := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	row := Row{
		Address:        get(cols.address),
		TenantElectric: get(cols.electric),
		TenantGas:      get(cols.gas),
		TenantWater:    get(cols.water),
	}
	return row, row.Address != ""
}

var resultHeader = []string{
	"address", "state",
	"engine_electric", "tenant_electric", "electric_category", "electric_detail",
	"engine_gas", "tenant_gas", "gas_category", "gas_detail",
	"engine_water", "tenant_water", "water_category", "water_detail",
}

// WriteCSV writes the per-row classification table.
func (r *Report) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "batch: create output")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(resultHeader); err != nil {
		return eris.Wrap(err, "batch: write header")
	}
	for i := range r.Rows {
		if err := w.Write(r.Rows[i].record()); err != nil {
			return eris.Wrap(err, "batch: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "batch: flush output")
}

// WriteXLSX writes the classification table plus a summary sheet.
func (r *Report) WriteXLSX(path string) error {
	f := xlsx.NewFile()

	results, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "batch: add sheet")
	}
	addRow(results, resultHeader)
	for i := range r.Rows {
		addRow(results, r.Rows[i].record())
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "batch: add sheet")
	}
	addRow(summary, []string{"utility", "category", "count"})
	for _, utility := range []model.UtilityType{model.UtilityElectric, model.UtilityGas, model.UtilityWater} {
		counts := r.Counts(utility)
		for _, cat := range sortedCategories(counts) {
			addRow(summary, []string{string(utility), string(cat), fmt.Sprint(counts[cat])})
		}
		addRow(summary, []string{string(utility), "accuracy_pct", fmt.Sprintf("%.1f", r.Accuracy(utility))})
	}

	return eris.Wrap(f.Save(path), "batch: save workbook")
}

// Summary renders the category tallies as markdown.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Batch Validation Report\n\n")
	fmt.Fprintf(&b, "Run: %s  \nRows: %d  \nElapsed: %s\n", r.RunID, len(r.Rows), r.Elapsed.Round(1e9))
	for _, utility := range []model.UtilityType{model.UtilityElectric, model.UtilityGas, model.UtilityWater} {
		counts := r.Counts(utility)
		fmt.Fprintf(&b, "\n## %s\n\n", strings.ToUpper(string(utility)[:1])+string(utility)[1:])
		for _, cat := range sortedCategories(counts) {
			fmt.Fprintf(&b, "- %s: %d\n", cat, counts[cat])
		}
		fmt.Fprintf(&b, "- **Accuracy: %.1f%%**\n", r.Accuracy(utility))
	}
	return b.String()
}

func sortedCategories(counts map[Category]int) []Category {
	cats := make([]Category, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().Value = v
	}
}

func (rr *RowResult) record() []string {
	return []string{
		rr.Address, rr.State,
		providerName(rr.Result, model.UtilityElectric), rr.TenantElectric,
		string(rr.Electric.Category), rr.Electric.Detail,
		providerName(rr.Result, model.UtilityGas), rr.TenantGas,
		string(rr.Gas.Category), rr.Gas.Detail,
		providerName(rr.Result, model.UtilityWater), rr.TenantWater,
		string(rr.Water.Category), rr.Water.Detail,
	}
}

// Package catalog maps resolved provider display names to internal catalog
// rows: a stable integer ID plus canonical title, URL, and phone.
package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

// typeMap translates utility types to the catalog's UtilityTypeId column.
var typeMap = map[model.UtilityType]string{
	model.UtilityElectric: "2",
	model.UtilityWater:    "3",
	model.UtilityGas:      "4",
	model.UtilityTrash:    "5",
	model.UtilitySewer:    "6",
	model.UtilityInternet: "8",
}

// Entry is one catalog row.
type Entry struct {
	ID     int
	TypeID string
	Title  string
	URL    string
	Phone  string
	Source string

	normalized string
}

// Catalog holds the provider catalog indexed by utility type.
type Catalog struct {
	entries []Entry
	byType  map[string][]*Entry
	byID    map[int]*Entry
}

// Load reads provider_catalog.csv. Rows with a non-numeric ID or an unknown
// utility type id are skipped. A missing file yields an empty catalog.
func Load(path string) (*Catalog, error) {
	c := &Catalog{
		byType: make(map[string][]*Entry),
		byID:   make(map[int]*Entry),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		zap.L().Warn("catalog: file missing", zap.String("path", path))
		return c, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"ID", "UtilityTypeId", "Title"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("catalog: missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "catalog: read row")
		}
		id, err := strconv.Atoi(field(row, "ID"))
		if err != nil {
			continue
		}
		typeID := field(row, "UtilityTypeId")
		switch typeID {
		case "2", "3", "4", "5", "6", "7", "8":
		default:
			continue
		}
		title := field(row, "Title")
		c.entries = append(c.entries, Entry{
			ID:         id,
			TypeID:     typeID,
			Title:      title,
			URL:        field(row, "URL"),
			Phone:      field(row, "Phone"),
			Source:     field(row, "Source"),
			normalized: NormalizeTitle(title),
		})
	}

	for i := range c.entries {
		e := &c.entries[i]
		c.byType[e.TypeID] = append(c.byType[e.TypeID], e)
		c.byID[e.ID] = e
	}
	zap.L().Info("catalog: loaded", zap.Int("entries", len(c.entries)))
	return c, nil
}

// Loaded reports whether the catalog has entries.
func (c *Catalog) Loaded() bool { return len(c.entries) > 0 }

// Len returns the number of catalog entries.
func (c *Catalog) Len() int { return len(c.entries) }

// ByID returns the catalog entry with the given ID.
func (c *Catalog) ByID(id int) (Entry, bool) {
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (c *Catalog) ofType(u model.UtilityType) []*Entry {
	return c.byType[typeMap[u]]
}

// Package internet resolves ISPs for a Census block from FCC Broadband Data
// Collection records stored in Postgres.
package internet

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

// techLabels translate FCC technology codes to display names.
var techLabels = map[string]string{
	"10": "DSL",
	"40": "Cable",
	"50": "Fiber",
	"60": "Satellite (GSO)",
	"61": "Satellite (NGSO)",
	"70": "Fixed Wireless (Licensed)",
	"71": "Fixed Wireless (Unlicensed)",
	"72": "Fixed Wireless (CBRS)",
	"0":  "Other",
}

// techPriority orders technologies for display: fiber first, then cable.
var techPriority = map[string]int{
	"50": 0, "40": 1, "10": 2, "70": 3, "72": 4,
	"71": 5, "60": 6, "61": 7, "0": 8,
}

// Querier is the subset of pgxpool.Pool the lookup needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Lookup queries the internet_providers table by block GEOID.
type Lookup struct {
	db Querier
}

// New builds a Lookup over a Postgres pool.
func New(db Querier) *Lookup {
	return &Lookup{db: db}
}

// bdcProvider is one element of the JSONB providers column.
type bdcProvider struct {
	Name   string          `json:"name"`
	Tech   json.Number     `json:"tech"`
	Down   int             `json:"down"`
	Up     int             `json:"up"`
	LowLat json.RawMessage `json:"low_lat"`
}

// Query returns internet availability for a 15-digit Census block GEOID, or
// nil when the block has no BDC records.
func (l *Lookup) Query(ctx context.Context, blockGEOID string) (*model.InternetResult, error) {
	if blockGEOID == "" || l.db == nil {
		return nil, nil
	}

	var raw []byte
	err := l.db.QueryRow(ctx,
		`SELECT providers FROM internet_providers WHERE block_geoid = $1`,
		blockGEOID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "internet: query block %s", blockGEOID)
	}

	var entries []bdcProvider
	if err := json.Unmarshal(raw, &entries); err != nil {
		// Some rows hold a single object rather than an array.
		var one bdcProvider
		if err2 := json.Unmarshal(raw, &one); err2 != nil {
			return nil, eris.Wrapf(err, "internet: parse providers for block %s", blockGEOID)
		}
		entries = []bdcProvider{one}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	result := &model.InternetResult{
		Source:     "fcc_bdc",
		Confidence: 0.95,
	}
	names := make(map[string]bool)
	for _, e := range entries {
		code := e.Tech.String()
		if code == "" {
			code = "0"
		}
		label, ok := techLabels[code]
		if !ok {
			label = "Unknown (" + code + ")"
		}
		p := model.InternetProvider{
			Name:       e.Name,
			Technology: label,
			TechCode:   code,
			MaxDown:    e.Down,
			MaxUp:      e.Up,
			LowLatency: truthy(e.LowLat),
		}
		result.Providers = append(result.Providers, p)
		names[e.Name] = true
		if code == "50" {
			result.HasFiber = true
		}
		if code == "40" {
			result.HasCable = true
		}
		if e.Down > result.MaxDownloadSpeed {
			result.MaxDownloadSpeed = e.Down
		}
	}
	result.ProviderCount = len(names)

	sort.SliceStable(result.Providers, func(i, j int) bool {
		pi, pj := priorityOf(result.Providers[i].TechCode), priorityOf(result.Providers[j].TechCode)
		if pi != pj {
			return pi < pj
		}
		return result.Providers[i].MaxDown > result.Providers[j].MaxDown
	})

	zap.L().Debug("internet: block resolved",
		zap.String("block_geoid", blockGEOID),
		zap.Int("providers", result.ProviderCount),
		zap.Bool("fiber", result.HasFiber),
	)
	return result, nil
}

func priorityOf(code string) int {
	if p, ok := techPriority[code]; ok {
		return p
	}
	return 99
}

// truthy interprets the low_lat flag, which BDC exports as 0/1 and some
// ingests re-encode as a bool.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, _ := strconv.ParseFloat(n.String(), 64)
		return v != 0
	}
	return false
}

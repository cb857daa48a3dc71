package batch

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/pkg/geocode"
)

// Lookuper is the slice of the engine the runner needs.
type Lookuper interface {
	Lookup(ctx context.Context, address string, useCache bool) *model.LookupResult
}

// Row is one input record: an address plus the tenant-entered providers.
type Row struct {
	Address        string
	TenantElectric string
	TenantGas      string
	TenantWater    string
}

// RowResult pairs a row with its engine output and classifications.
type RowResult struct {
	Row

	State  string
	Result *model.LookupResult

	Electric Comparison
	Gas      Comparison
	Water    Comparison
}

// Report is the outcome of a validation run.
type Report struct {
	RunID   string
	Rows    []RowResult
	Started time.Time
	Elapsed time.Duration
}

// Counts tallies categories for one utility slot.
func (r *Report) Counts(utility model.UtilityType) map[Category]int {
	counts := make(map[Category]int)
	for i := range r.Rows {
		counts[r.Rows[i].comparison(utility).Category]++
	}
	return counts
}

// Accuracy is matches over contested rows, in percent. Zero contested rows
// yield zero.
func (r *Report) Accuracy(utility model.UtilityType) float64 {
	var matched, contested int
	for i := range r.Rows {
		cat := r.Rows[i].comparison(utility).Category
		if cat.Contested() {
			contested++
		}
		if cat.Matched() {
			matched++
		}
	}
	if contested == 0 {
		return 0
	}
	return float64(matched) / float64(contested) * 100
}

func (rr *RowResult) comparison(utility model.UtilityType) Comparison {
	switch utility {
	case model.UtilityElectric:
		return rr.Electric
	case model.UtilityGas:
		return rr.Gas
	default:
		return rr.Water
	}
}

// Runner drives the three validation phases: bulk geocode, engine lookup,
// classification.
type Runner struct {
	engine   Lookuper
	geocoder geocode.Client
	cmp      *Comparator

	geocodeWorkers int
	lookupWorkers  int
	chunkSize      int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithGeocodeWorkers bounds the per-row fallback geocoder concurrency.
func WithGeocodeWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.geocodeWorkers = n
		}
	}
}

// WithLookupWorkers bounds the engine lookup pool.
func WithLookupWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.lookupWorkers = n
		}
	}
}

// WithChunkSize sets the bulk-geocode chunk size.
func WithChunkSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// NewRunner builds a Runner. The geocoder is optional: when nil, Phase 1 is
// skipped and the engine geocodes row by row.
func NewRunner(eng Lookuper, geocoder geocode.Client, cmp *Comparator, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:         eng,
		geocoder:       geocoder,
		cmp:            cmp,
		geocodeWorkers: 5,
		lookupWorkers:  32,
		chunkSize:      100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates rows end to end. Output order matches input order; per-row
// failures degrade to empty engine results, never an aborted run.
func (r *Runner) Run(ctx context.Context, rows []Row) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Rows:    make([]RowResult, len(rows)),
		Started: time.Now(),
	}
	log := zap.L().With(zap.String("component", "batch"), zap.String("run_id", report.RunID))
	log.Info("validation run starting", zap.Int("rows", len(rows)))

	if r.geocoder != nil {
		if err := r.geocodePhase(ctx, rows); err != nil {
			return nil, err
		}
	}

	// Phase 2: engine lookups. The geocode phase warmed the geocoder's disk
	// cache, so these resolve without re-hitting the external API.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.lookupWorkers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			report.Rows[i] = RowResult{
				Row:    row,
				State:  extractState(row.Address),
				Result: r.engine.Lookup(gctx, row.Address, true),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Phase 3: classification.
	for i := range report.Rows {
		rr := &report.Rows[i]
		rr.Electric = r.cmp.Compare(
			providerName(rr.Result, model.UtilityElectric), rr.TenantElectric,
			model.UtilityElectric, rr.State, providerAlts(rr.Result, model.UtilityElectric))
		rr.Gas = r.cmp.Compare(
			providerName(rr.Result, model.UtilityGas), rr.TenantGas,
			model.UtilityGas, rr.State, providerAlts(rr.Result, model.UtilityGas))
		rr.Water = r.cmp.Compare(
			providerName(rr.Result, model.UtilityWater), rr.TenantWater,
			model.UtilityWater, rr.State, providerAlts(rr.Result, model.UtilityWater))
	}

	report.Elapsed = time.Since(report.Started)
	log.Info("validation run complete",
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", report.Elapsed),
		zap.Float64("electric_accuracy", report.Accuracy(model.UtilityElectric)),
		zap.Float64("gas_accuracy", report.Accuracy(model.UtilityGas)),
		zap.Float64("water_accuracy", report.Accuracy(model.UtilityWater)),
	)
	return report, nil
}

// geocodePhase bulk-geocodes all addresses, then retries failures row by row
// with bounded workers. The geocoder persists results to its disk cache as it
// goes, so a crash here loses at most one chunk.
func (r *Runner) geocodePhase(ctx context.Context, rows []Row) error {
	log := zap.L().With(zap.String("component", "batch"))

	var failed []string
	for start := 0; start < len(rows); start += r.chunkSize {
		end := min(start+r.chunkSize, len(rows))
		chunk := make([]geocode.AddressInput, 0, end-start)
		for _, row := range rows[start:end] {
			chunk = append(chunk, geocode.AddressInput{Street: row.Address})
		}
		results, err := r.geocoder.BatchGeocode(ctx, chunk)
		if err != nil {
			log.Warn("bulk geocode chunk failed, deferring to fallback",
				zap.Int("start", start), zap.Error(err))
			for _, in := range chunk {
				failed = append(failed, in.Street)
			}
			continue
		}
		for i, res := range results {
			if !res.Matched {
				failed = append(failed, chunk[i].Street)
			}
		}
	}

	if len(failed) == 0 {
		return nil
	}
	log.Info("retrying unmatched addresses", zap.Int("count", len(failed)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.geocodeWorkers)
	for _, addr := range failed {
		addr := addr
		g.Go(func() error {
			// Best effort: a second miss just leaves the row ungeocodable.
			_, _ = r.geocoder.Geocode(gctx, geocode.AddressInput{Street: addr})
			return nil
		})
	}
	return g.Wait()
}

var (
	stateZipAddrRe  = regexp.MustCompile(`,\s*([A-Z]{2})\s+\d{5}`)
	stateTailAddrRe = regexp.MustCompile(`,\s*([A-Z]{2})\s*$`)
)

func extractState(address string) string {
	if m := stateZipAddrRe.FindStringSubmatch(address); m != nil {
		return m[1]
	}
	if m := stateTailAddrRe.FindStringSubmatch(address); m != nil {
		return m[1]
	}
	return ""
}

func providerName(r *model.LookupResult, utility model.UtilityType) string {
	if p := provider(r, utility); p != nil {
		return p.DisplayName
	}
	return ""
}

func providerAlts(r *model.LookupResult, utility model.UtilityType) []model.Alternative {
	if p := provider(r, utility); p != nil {
		return p.Alternatives
	}
	return nil
}

func provider(r *model.LookupResult, utility model.UtilityType) *model.ProviderResult {
	if r == nil {
		return nil
	}
	switch utility {
	case model.UtilityElectric:
		return r.Electric
	case model.UtilityGas:
		return r.Gas
	case model.UtilityWater:
		return r.Water
	case model.UtilitySewer:
		return r.Sewer
	}
	return nil
}

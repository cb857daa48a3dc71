// Package corrections is the highest-priority lookup source: human-verified
// overrides recorded by mappers. It combines a SQLite database of per-address
// corrections with ZIP-level correction JSON files.
package corrections

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/utility-lookup/internal/model"
)

// Match is a correction hit. CatalogID is zero when the mapper did not pin a
// catalog entry.
type Match struct {
	Name       string
	CatalogID  int
	State      string
	ZipCode    string
	Source     string
	Confidence float64
}

// zipEntry accepts both shapes a ZIP correction file uses: a bare provider
// name, or an object with an optional per-ZIP confidence.
type zipEntry struct {
	Provider   string
	Confidence float64
}

func (z *zipEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		z.Provider = s
		return nil
	}
	var obj struct {
		Provider   string  `json:"provider"`
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	z.Provider = obj.Provider
	if z.Provider == "" {
		z.Provider = obj.Name
	}
	z.Confidence = obj.Confidence
	return nil
}

// Store reads and records corrections. The database is optional: with an
// empty path the store serves ZIP corrections only.
type Store struct {
	db             *sql.DB
	zipCorrections map[model.UtilityType]map[string]zipEntry
}

// Open opens the corrections database (creating it and its tables when
// missing) and loads ZIP correction files from correctionsDir. Either input
// may be empty.
func Open(ctx context.Context, dbPath, correctionsDir string) (*Store, error) {
	s := &Store{zipCorrections: make(map[model.UtilityType]map[string]zipEntry)}

	if dbPath != "" {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, eris.Wrap(err, "corrections: open db")
		}
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, eris.Wrapf(err, "corrections: exec %s", pragma)
			}
		}
		if _, err := db.ExecContext(ctx, migration); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "corrections: migrate")
		}
		s.db = db
	}

	if correctionsDir != "" {
		s.loadZIPCorrections(correctionsDir)
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS address_corrections (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	address              TEXT NOT NULL,
	lat                  REAL,
	lon                  REAL,
	zip_code             TEXT,
	state                TEXT,
	utility_type         TEXT NOT NULL,
	corrected_provider   TEXT NOT NULL,
	corrected_catalog_id INTEGER,
	original_provider    TEXT,
	original_source      TEXT,
	corrected_by         TEXT DEFAULT 'mapper',
	corrected_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	notes                TEXT
);
CREATE INDEX IF NOT EXISTS idx_ac_zip ON address_corrections(zip_code, utility_type);
CREATE INDEX IF NOT EXISTS idx_ac_state ON address_corrections(state, utility_type);
CREATE INDEX IF NOT EXISTS idx_ac_latlon ON address_corrections(lat, lon);

CREATE TABLE IF NOT EXISTS id_mapping_corrections (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	engine_provider_name TEXT NOT NULL,
	utility_type         TEXT NOT NULL,
	correct_catalog_id   INTEGER NOT NULL,
	corrected_by         TEXT DEFAULT 'mapper',
	corrected_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_imc ON id_mapping_corrections(engine_provider_name, utility_type);
`

func (s *Store) loadZIPCorrections(dir string) {
	for _, utility := range model.PolygonTypes() {
		path := filepath.Join(dir, string(utility)+"_zip.json")
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			zap.L().Warn("corrections: read ZIP file failed", zap.String("path", path), zap.Error(err))
			continue
		}

		// Files come in two shapes: a bare {zip: entry} map, or
		// {"_metadata": ..., "corrections": {zip: entry}}.
		var wrapped struct {
			Corrections map[string]zipEntry `json:"corrections"`
		}
		entries := make(map[string]zipEntry)
		if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Corrections) > 0 {
			entries = wrapped.Corrections
		} else if err := json.Unmarshal(raw, &entries); err != nil {
			zap.L().Warn("corrections: parse ZIP file failed", zap.String("path", path), zap.Error(err))
			continue
		}
		delete(entries, "_metadata")
		if len(entries) > 0 {
			s.zipCorrections[utility] = entries
			zap.L().Info("corrections: ZIP corrections loaded",
				zap.String("utility", string(utility)),
				zap.Int("zips", len(entries)),
			)
		}
	}
}

// Loaded reports whether any correction source is available.
func (s *Store) Loaded() bool {
	return s.db != nil || len(s.zipCorrections) > 0
}

// Close closes the database, if open.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LookupByAddress returns the correction recorded for an exact address match.
func (s *Store) LookupByAddress(ctx context.Context, address string, utility model.UtilityType) (*Match, error) {
	if s.db == nil || address == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT corrected_provider, corrected_catalog_id, state, zip_code
		 FROM address_corrections
		 WHERE address = ? AND utility_type = ?
		 ORDER BY corrected_at DESC LIMIT 1`,
		address, string(utility),
	)
	return scanMatch(row, "correction_address")
}

// LookupByLatLon returns the most recent correction within ~100m of a point.
func (s *Store) LookupByLatLon(ctx context.Context, lat, lon float64, utility model.UtilityType) (*Match, error) {
	if s.db == nil {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT corrected_provider, corrected_catalog_id, state, zip_code
		 FROM address_corrections
		 WHERE utility_type = ? AND ABS(lat - ?) < 0.001 AND ABS(lon - ?) < 0.001
		 ORDER BY corrected_at DESC LIMIT 1`,
		string(utility), lat, lon,
	)
	return scanMatch(row, "mapper_correction")
}

// LookupByZIP returns the ZIP-level correction for a utility type.
func (s *Store) LookupByZIP(zipCode string, utility model.UtilityType) *Match {
	entry, ok := s.zipCorrections[utility][zipCode]
	if !ok || entry.Provider == "" {
		return nil
	}
	confidence := entry.Confidence
	if confidence == 0 {
		confidence = 0.98
	}
	return &Match{
		Name:       entry.Provider,
		ZipCode:    zipCode,
		Source:     "correction_zip",
		Confidence: confidence,
	}
}

// IDMappingOverride returns the mapper-pinned catalog ID for a provider name,
// if one was recorded.
func (s *Store) IDMappingOverride(ctx context.Context, providerName string, utility model.UtilityType) (int, bool, error) {
	if s.db == nil || providerName == "" {
		return 0, false, nil
	}
	var catalogID int
	err := s.db.QueryRowContext(ctx,
		`SELECT correct_catalog_id FROM id_mapping_corrections
		 WHERE engine_provider_name = ? AND utility_type = ?
		 ORDER BY corrected_at DESC LIMIT 1`,
		providerName, string(utility),
	).Scan(&catalogID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "corrections: id mapping lookup")
	}
	return catalogID, true, nil
}

// IDMapping is one recorded provider-name → catalog-ID pin.
type IDMapping struct {
	ProviderName string
	Utility      model.UtilityType
	CatalogID    int
}

// ListIDMappings returns every recorded catalog-ID pin, for installing as
// matcher overrides at startup.
func (s *Store) ListIDMappings(ctx context.Context) ([]IDMapping, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT engine_provider_name, utility_type, correct_catalog_id
		 FROM id_mapping_corrections ORDER BY corrected_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "corrections: list id mappings")
	}
	defer rows.Close()

	var mappings []IDMapping
	for rows.Next() {
		var m IDMapping
		var utility string
		if err := rows.Scan(&m.ProviderName, &utility, &m.CatalogID); err != nil {
			return nil, eris.Wrap(err, "corrections: scan id mapping")
		}
		m.Utility = model.UtilityType(utility)
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "corrections: iterate id mappings")
}

// RecordCorrection appends an address-level correction.
func (s *Store) RecordCorrection(ctx context.Context, c model.Correction) error {
	if s.db == nil {
		return eris.New("corrections: no database configured")
	}
	if c.Address == "" && (c.Lat == 0 && c.Lon == 0) {
		return eris.New("corrections: correction needs an address or coordinates")
	}
	if c.CorrectedProvider == "" {
		return eris.New("corrections: corrected_provider is required")
	}
	correctedBy := c.CorrectedBy
	if correctedBy == "" {
		correctedBy = "mapper"
	}
	correctedAt := c.CorrectedAt
	if correctedAt.IsZero() {
		correctedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO address_corrections
		 (address, lat, lon, zip_code, state, utility_type, corrected_provider,
		  corrected_catalog_id, original_provider, original_source, corrected_by, corrected_at, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Address, c.Lat, c.Lon, c.ZipCode, c.State, string(c.Utility), c.CorrectedProvider,
		nullInt(c.CorrectedCatalogID), c.OriginalProvider, c.OriginalSource, correctedBy, correctedAt, c.Notes,
	)
	return eris.Wrap(err, "corrections: insert correction")
}

// RecordIDMapping pins a provider name to a catalog ID.
func (s *Store) RecordIDMapping(ctx context.Context, providerName string, utility model.UtilityType, catalogID int, correctedBy string) error {
	if s.db == nil {
		return eris.New("corrections: no database configured")
	}
	if providerName == "" || catalogID == 0 {
		return eris.New("corrections: provider name and catalog id are required")
	}
	if correctedBy == "" {
		correctedBy = "mapper"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO id_mapping_corrections
		 (engine_provider_name, utility_type, correct_catalog_id, corrected_by, corrected_at)
		 VALUES (?, ?, ?, ?, ?)`,
		providerName, string(utility), catalogID, correctedBy, time.Now().UTC(),
	)
	return eris.Wrap(err, "corrections: insert id mapping")
}

func scanMatch(row *sql.Row, source string) (*Match, error) {
	var name string
	var catalogID sql.NullInt64
	var state, zipCode sql.NullString

	err := row.Scan(&name, &catalogID, &state, &zipCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "corrections: scan")
	}
	return &Match{
		Name:       name,
		CatalogID:  int(catalogID.Int64),
		State:      state.String,
		ZipCode:    zipCode.String,
		Source:     source,
		Confidence: 0.99,
	}, nil
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

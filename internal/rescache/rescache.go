// Package rescache persists lookup results in SQLite, keyed by normalized
// address, with a rolling TTL.
package rescache

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/utility-lookup/internal/model"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 90 * 24 * time.Hour

// addressAbbrevs standardize street-suffix and directional words so "123 N
// Main St" and "123 North Main Street" share a cache key.
var addressAbbrevs = []struct{ full, abbr string }{
	{"street", "st"}, {"avenue", "ave"}, {"boulevard", "blvd"},
	{"drive", "dr"}, {"road", "rd"}, {"lane", "ln"},
	{"court", "ct"}, {"place", "pl"}, {"apartment", "apt"},
	{"suite", "ste"}, {"north", "n"}, {"south", "s"},
	{"east", "e"}, {"west", "w"},
}

var addressAbbrevRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(addressAbbrevs))
	for i, a := range addressAbbrevs {
		res[i] = regexp.MustCompile(`\b` + a.full + `\b`)
	}
	return res
}()

var whitespaceRe = regexp.MustCompile(`\s+`)

// Key normalizes an address into its cache key: lowercase, collapsed
// whitespace, standardized abbreviations.
func Key(address string) string {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return ""
	}
	key = whitespaceRe.ReplaceAllString(key, " ")
	for i, re := range addressAbbrevRes {
		key = re.ReplaceAllString(key, addressAbbrevs[i].abbr)
	}
	return key
}

// Cache is a SQLite-backed result cache.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default 90-day TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// Open opens (creating if needed) the cache database.
func Open(ctx context.Context, dsn string, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "rescache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "rescache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS lookup_cache (
			address_key TEXT PRIMARY KEY,
			result_json TEXT NOT NULL,
			created_at  REAL NOT NULL,
			expires_at  REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_expires ON lookup_cache(expires_at);
	`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "rescache: migrate")
	}
	c := &Cache{db: db, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached result for an address, or nil on miss. Lookup never
// fails: an unreadable or undecodable row counts as a miss.
func (c *Cache) Get(ctx context.Context, address string) *model.LookupResult {
	key := Key(address)
	if key == "" {
		return nil
	}
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT result_json FROM lookup_cache WHERE address_key = ? AND expires_at > ?`,
		key, float64(time.Now().UnixNano())/1e9,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		zap.L().Warn("rescache: get failed", zap.Error(err))
		return nil
	}
	var result model.LookupResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		zap.L().Warn("rescache: undecodable entry treated as miss", zap.String("key", key))
		return nil
	}
	return &result
}

// Put caches a result. Geocode failures (lat == 0) are never cached; they
// are often transient.
func (c *Cache) Put(ctx context.Context, address string, result *model.LookupResult) error {
	key := Key(address)
	if key == "" || result == nil {
		return nil
	}
	if result.Lat == 0 {
		zap.L().Debug("rescache: skipping geocode failure", zap.String("key", key))
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "rescache: marshal result")
	}
	now := float64(time.Now().UnixNano()) / 1e9
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO lookup_cache (address_key, result_json, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		key, string(raw), now, now+c.ttl.Seconds(),
	)
	return eris.Wrap(err, "rescache: put")
}

// Invalidate removes a cached address.
func (c *Cache) Invalidate(ctx context.Context, address string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE address_key = ?`, Key(address))
	return eris.Wrap(err, "rescache: invalidate")
}

// ClearExpired removes expired entries and reports how many were deleted.
func (c *Cache) ClearExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE expires_at <= ?`,
		float64(time.Now().UnixNano())/1e9,
	)
	if err != nil {
		return 0, eris.Wrap(err, "rescache: clear expired")
	}
	n, err := res.RowsAffected()
	if n > 0 {
		zap.L().Info("rescache: cleared expired entries", zap.Int64("count", n))
	}
	return int(n), eris.Wrap(err, "rescache: rows affected")
}

// Size returns the number of cached entries, expired included.
func (c *Cache) Size(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookup_cache`).Scan(&n)
	return n, eris.Wrap(err, "rescache: size")
}

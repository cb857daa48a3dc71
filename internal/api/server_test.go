package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEngine struct {
	loaded  bool
	results map[string]*model.LookupResult
}

func (f *fakeEngine) Lookup(_ context.Context, address string, _ bool) *model.LookupResult {
	if r, ok := f.results[address]; ok {
		return r
	}
	return &model.LookupResult{Address: address}
}

func (f *fakeEngine) LookupBatch(ctx context.Context, addresses []string, useCache bool) []*model.LookupResult {
	out := make([]*model.LookupResult, len(addresses))
	for i, a := range addresses {
		out[i] = f.Lookup(ctx, a, useCache)
	}
	return out
}

func (f *fakeEngine) Loaded() bool { return f.loaded }

type fakeCache struct {
	cleared int
}

func (f *fakeCache) ClearExpired(context.Context) (int, error) { return f.cleared, nil }

func raleighResult() *model.LookupResult {
	return &model.LookupResult{
		Address: "123 Main St, Raleigh, NC 27601",
		Lat:     35.78,
		Lon:     -78.64,
		Electric: &model.ProviderResult{CandidateProvider: model.CandidateProvider{
			DisplayName: "Duke Energy Carolinas",
			Utility:     model.UtilityElectric,
			Confidence:  0.9,
		}},
		Water: &model.ProviderResult{CandidateProvider: model.CandidateProvider{
			DisplayName: "City of Raleigh",
			Utility:     model.UtilityWater,
			Confidence:  0.82,
		}},
	}
}

func testServer(loaded bool, keys ...string) (*Server, http.Handler) {
	eng := &fakeEngine{
		loaded: loaded,
		results: map[string]*model.LookupResult{
			"123 Main St, Raleigh, NC 27601": raleighResult(),
		},
	}
	s := NewServer(eng, &fakeCache{cleared: 7}, keys)
	return s, s.Router()
}

func TestHealth(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["engine_loaded"])
}

func TestHealth_Loading(t *testing.T) {
	_, h := testServer(false)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code, "health is never gated on readiness")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "loading", body["status"])
	assert.Equal(t, false, body["engine_loaded"])
}

func TestLookup(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET",
		"/lookup?address=123+Main+St,+Raleigh,+NC+27601", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result model.LookupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Duke Energy Carolinas", result.Electric.DisplayName)
	assert.Equal(t, "City of Raleigh", result.Water.DisplayName)
}

func TestLookup_PostVariant(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST",
		"/lookup?address=123+Main+St,+Raleigh,+NC+27601", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLookup_MissingAddress(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/lookup", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookup_EngineLoading(t *testing.T) {
	_, h := testServer(false)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/lookup?address=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuth(t *testing.T) {
	_, h := testServer(true, "secret-key")

	// No key.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/lookup?address=x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/lookup?address=x", nil)
	req.Header.Set("X-API-Key", "nope")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Header key.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/lookup?address=x", nil)
	req.Header.Set("X-API-Key", "secret-key")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Query key.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/lookup?address=x&api_key=secret-key", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_DisabledWithoutKeys(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/lookup?address=x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLookupBatch(t *testing.T) {
	_, h := testServer(true)
	body := `{"addresses": ["123 Main St, Raleigh, NC 27601", "456 Oak Ave"]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/lookup/batch", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []*model.LookupResult `json:"results"`
		Total   int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Duke Energy Carolinas", resp.Results[0].Electric.DisplayName)
	assert.Nil(t, resp.Results[1].Electric)
}

func TestLookupBatch_Limits(t *testing.T) {
	_, h := testServer(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/lookup/batch", strings.NewReader(`{"addresses": []}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	addrs := make([]string, maxBatchAddresses+1)
	for i := range addrs {
		addrs[i] = "x"
	}
	body, _ := json.Marshal(map[string]any{"addresses": addrs})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/lookup/batch", strings.NewReader(string(body))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/lookup/batch", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCache(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("DELETE", "/cache", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 7, body["cleared"])
}

func TestClearCache_NilCache(t *testing.T) {
	eng := &fakeEngine{loaded: true}
	s := NewServer(eng, nil, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("DELETE", "/cache", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body["cleared"])
}

type fakeCorrections struct {
	recorded []model.Correction
}

func (f *fakeCorrections) RecordCorrection(_ context.Context, c model.Correction) error {
	f.recorded = append(f.recorded, c)
	return nil
}

func TestRecordCorrection(t *testing.T) {
	s, _ := testServer(true)
	store := &fakeCorrections{}
	h := s.WithCorrections(store).Router()

	body := `{"address": "123 Main St, Raleigh, NC 27601", "utility_type": "electric",
		"corrected_provider": "Wake Electric", "state": "NC"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/corrections", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.recorded, 1)
	assert.Equal(t, "Wake Electric", store.recorded[0].CorrectedProvider)
	assert.Equal(t, model.UtilityElectric, store.recorded[0].Utility)
}

func TestRecordCorrection_Validation(t *testing.T) {
	s, _ := testServer(true)
	h := s.WithCorrections(&fakeCorrections{}).Router()

	// Missing provider.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/corrections",
		strings.NewReader(`{"address": "123 Main St"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No address or coordinates.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/corrections",
		strings.NewReader(`{"corrected_provider": "Wake Electric"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordCorrection_NotConfigured(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/corrections",
		strings.NewReader(`{"corrected_provider": "x", "address": "y"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLookupStream(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET",
		"/api/lookup/stream?address=123+Main+St,+Raleigh,+NC+27601", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	assert.Equal(t, []string{"electric", "water", "complete"}, events)
}

func TestLookupStream_MissingAddress(t *testing.T) {
	_, h := testServer(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/lookup/stream", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIsTruthy(t *testing.T) {
	assert.True(t, isTruthy("1"))
	assert.True(t, isTruthy("true"))
	assert.True(t, isTruthy("YES"))
	assert.False(t, isTruthy(""))
	assert.False(t, isTruthy("0"))
	assert.False(t, isTruthy("false"))
}

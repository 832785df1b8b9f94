package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/evm-address-enricher/internal/config"
	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/internal/models"
	"github.com/smartdevs17/evm-address-enricher/internal/storage"
)

type fakeRun struct {
	stats   models.RunStats
	running bool
}

func (f *fakeRun) GetStats() models.RunStats { return f.stats }
func (f *fakeRun) IsRunning() bool           { return f.running }

func newTestServer(t *testing.T) (*HTTPServer, storage.Storage, *metrics.Manager) {
	t.Helper()

	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "server.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	manager := metrics.NewManager()
	run := &fakeRun{
		running: true,
		stats:   models.RunStats{Total: 10, Processed: 4, EOAs: 3, Contracts: 1, Written: 4},
	}

	srv, err := NewHTTPServer(&ServerConfig{EnableMetrics: true, Version: "test"}, store, run, manager)
	require.NoError(t, err)
	return srv, store, manager
}

func get(t *testing.T, srv *HTTPServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewHTTPServerRequiresConfig(t *testing.T) {
	_, err := NewHTTPServer(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestHealthHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rec := get(t, srv, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, true, body["running"])

	require.NoError(t, store.Close())
	rec = get(t, srv, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAddress(ctx, models.NewEOARecord(common.HexToAddress("0xaa00000000000000000000000000000000000001"))))

	rec := get(t, srv, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Run     models.RunStats      `json:"run"`
		Running bool                 `json:"running"`
		Storage storage.StorageStats `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, 10, body.Run.Total)
	assert.Equal(t, 4, body.Run.Written)
	assert.Equal(t, int64(1), body.Storage.TotalAddresses)
	assert.Equal(t, int64(0), body.Storage.ContractAddresses)
}

func TestGetAddressHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	name := "Token"
	address := common.HexToAddress("0xbb00000000000000000000000000000000000002")
	require.NoError(t, store.UpsertAddress(ctx, models.NewContractRecord(address, []byte{0x60, 0x80},
		&models.ContractMetadata{IsVerified: true, ContractName: &name})))

	rec := get(t, srv, "/api/v1/addresses/0xBB00000000000000000000000000000000000002")
	require.Equal(t, http.StatusOK, rec.Code)

	var record models.AddressRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, address, record.Address)
	assert.True(t, record.IsContract)
	assert.True(t, record.IsVerified)
	assert.Equal(t, []byte{0x60, 0x80}, []byte(record.ContractBytecode))
	require.NotNil(t, record.ContractName)
	assert.Equal(t, "Token", *record.ContractName)

	rec = get(t, srv, "/api/v1/addresses/0xcc00000000000000000000000000000000000003")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, srv, "/api/v1/addresses/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, manager := newTestServer(t)

	get(t, srv, "/api/v1/health")
	counter := manager.GetPrometheusMetrics().HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/health", "200")
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "address_enricher_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	srv, err := NewHTTPServer(&ServerConfig{}, nil, nil, metrics.NewManager())
	require.NoError(t, err)

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

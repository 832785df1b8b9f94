package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

var testAddress = common.HexToAddress("0xBB00000000000000000000000000000000000002")

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Manager) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	manager := metrics.NewManager()
	client, err := NewClient(&ClientConfig{
		BaseURL:        srv.URL + "/api",
		APIKey:         "TESTKEY",
		RequestTimeout: 2 * time.Second,
	}, manager)
	require.NoError(t, err)
	return client, manager
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.Error(t, err)
	_, err = NewClient(&ClientConfig{}, nil)
	assert.Error(t, err)
	_, err = NewClient(&ClientConfig{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestGetCodeSendsQuery(t *testing.T) {
	var query atomic.Value
	client, manager := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		assert.Equal(t, "/api", r.URL.Path)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x6080604052"}`))
	})

	code, err := client.GetCode(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, code)

	q := query.Load().(url.Values)
	assert.Equal(t, "proxy", q.Get("module"))
	assert.Equal(t, "eth_getCode", q.Get("action"))
	assert.Equal(t, "latest", q.Get("tag"))
	assert.Equal(t, "0xbb00000000000000000000000000000000000002", q.Get("address"))
	assert.Equal(t, "TESTKEY", q.Get("apikey"))

	counter := manager.GetPrometheusMetrics().ExplorerRequestsTotal.WithLabelValues(ActionGetCode, "success")
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}

func TestGetCodeEmpty(t *testing.T) {
	client, _ := newTestClient(t, respond(`{"jsonrpc":"2.0","id":1,"result":"0x"}`))

	code, err := client.GetCode(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Nil(t, code)
}

func TestGetCodeFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"missing result": respond(`{"jsonrpc":"2.0","id":1}`),
		"null result":    respond(`{"jsonrpc":"2.0","id":1,"result":null}`),
		"rate limited":   respond(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`),
		"rpc error":      respond(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`),
		"malformed json": respond(`<html>bad gateway</html>`),
		"non-string":     respond(`{"jsonrpc":"2.0","id":1,"result":42}`),
		"http 502": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, handler)

			code, err := client.GetCode(context.Background(), testAddress)
			require.Error(t, err)
			assert.Nil(t, code)
			assert.True(t, utils.HasCode(err, utils.ErrCodeExplorer), err.Error())

		})
	}
}

func TestGetCodeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(&ClientConfig{BaseURL: srv.URL, APIKey: "TESTKEY", RequestTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = client.GetCode(context.Background(), testAddress)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "TESTKEY")
}

func TestGetSourceCodeVerified(t *testing.T) {
	var action string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		action = r.URL.Query().Get("action")
		assert.Equal(t, "contract", r.URL.Query().Get("module"))
		w.Write([]byte(`{
			"status": "1",
			"message": "OK",
			"result": [{
				"SourceCode": "pragma solidity ^0.8.0; contract Token {}",
				"ABI": "[{\"type\":\"function\",\"name\":\"totalSupply\"}]",
				"ContractName": "Token",
				"CompilerVersion": "v0.8.24+commit.e11b9ed9",
				"OptimizationUsed": "1",
				"Runs": "200",
				"ConstructorArguments": "",
				"EVMVersion": "Default",
				"Library": "",
				"LicenseType": "MIT",
				"Proxy": "1",
				"Implementation": "0xcc00000000000000000000000000000000000003",
				"SwarmSource": ""
			}]
		}`))
	})

	meta, err := client.GetSourceCode(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, ActionGetSourceCode, action)

	assert.True(t, meta.IsVerified)
	assert.True(t, meta.IsProxy)
	require.NotNil(t, meta.ABI)
	assert.Equal(t, `[{"type":"function","name":"totalSupply"}]`, *meta.ABI)
	assert.Equal(t, "Token", *meta.ContractName)
	assert.Equal(t, "v0.8.24+commit.e11b9ed9", *meta.CompilerVersion)
	assert.Equal(t, "MIT", *meta.LicenseType)
	assert.Equal(t, "0xcc00000000000000000000000000000000000003", *meta.Implementation)
	assert.Nil(t, meta.ConstructorArguments)
}

func TestGetSourceCodeUnverified(t *testing.T) {
	client, _ := newTestClient(t, respond(`{
		"status": "1",
		"message": "OK",
		"result": [{
			"SourceCode": "",
			"ABI": "Contract source code not verified",
			"ContractName": "",
			"CompilerVersion": "",
			"ConstructorArguments": "",
			"LicenseType": "Unknown",
			"Proxy": "0",
			"Implementation": ""
		}]
	}`))

	meta, err := client.GetSourceCode(context.Background(), testAddress)
	require.NoError(t, err)
	assert.False(t, meta.IsVerified)
	assert.False(t, meta.IsProxy)
	assert.Nil(t, meta.ABI)
	assert.Nil(t, meta.SourceCode)
	assert.Nil(t, meta.ContractName)
	assert.Equal(t, "Unknown", *meta.LicenseType)
}

func TestGetSourceCodeFailures(t *testing.T) {
	tests := map[string]string{
		"string result":  `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`,
		"empty array":    `{"status":"1","message":"OK","result":[]}`,
		"missing abi":    `{"status":"1","message":"OK","result":[{"SourceCode":"x"}]}`,
		"missing result": `{"status":"1","message":"OK"}`,
		"malformed":      `{"status":`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, respond(body))

			meta, err := client.GetSourceCode(context.Background(), testAddress)
			require.Error(t, err)
			assert.Nil(t, meta)
		})
	}
}

func TestGetSourceCodeEmptyArrayIsNoResult(t *testing.T) {
	client, _ := newTestClient(t, respond(`{"status":"1","message":"OK","result":[]}`))

	_, err := client.GetSourceCode(context.Background(), testAddress)
	assert.ErrorIs(t, err, ErrNoResult)
}

// Package explorer is a client for Etherscan-compatible block-explorer APIs.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/internal/models"
	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

// Explorer API actions
const (
	ActionGetCode       = "eth_getCode"
	ActionGetSourceCode = "getsourcecode"
)

// NotVerifiedABI is the ABI value the explorer returns for unverified contracts
const NotVerifiedABI = "Contract source code not verified"

// maxResponseSize bounds the body read for one response; verified sources can be large
const maxResponseSize = 32 << 20

// ErrNoResult is returned when a response carries no usable result field
var ErrNoResult = errors.New("explorer response has no result")

// ClientConfig holds explorer client configuration
type ClientConfig struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"-"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// Client queries the explorer API over a single reused HTTP client
type Client struct {
	config         *ClientConfig
	httpClient     *http.Client
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// apiResponse is the common envelope of explorer responses. The proxy module
// answers in JSON-RPC form, so Error is populated there instead of Status.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sourceCodeEntry is one element of the getsourcecode result array
type sourceCodeEntry struct {
	SourceCode           string  `json:"SourceCode"`
	ABI                  *string `json:"ABI"`
	ContractName         string  `json:"ContractName"`
	CompilerVersion      string  `json:"CompilerVersion"`
	ConstructorArguments string  `json:"ConstructorArguments"`
	LicenseType          string  `json:"LicenseType"`
	Proxy                string  `json:"Proxy"`
	Implementation       string  `json:"Implementation"`
}

// NewClient creates a new explorer client
func NewClient(config *ClientConfig, metricsManager *metrics.Manager) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Explorer base URL is required", "")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid explorer base URL", err.Error())
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:         utils.ComponentLogger("explorer"),
		metricsManager: metricsManager,
	}, nil
}

// GetCode returns the deployed bytecode of address via the proxy module.
// An address without code yields nil bytecode and no error.
func (c *Client) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	resp, err := c.call(ctx, "proxy", ActionGetCode, address)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, utils.NewAppError(utils.ErrCodeExplorer, "eth_getCode returned an error",
			fmt.Sprintf("%d: %s", resp.Error.Code, resp.Error.Message))
	}

	var code string
	if err := json.Unmarshal(resp.Result, &code); err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Malformed eth_getCode result", err)
	}

	bytecode, err := utils.DecodeBytecode(code)
	if err != nil {
		// Rate-limit and API-key errors come back as plain text in result
		return nil, utils.NewAppError(utils.ErrCodeExplorer, "Unexpected eth_getCode result", truncate(code, 120))
	}
	return bytecode, nil
}

// GetSourceCode returns the verified-source metadata the explorer holds for address
func (c *Client) GetSourceCode(ctx context.Context, address common.Address) (*models.ContractMetadata, error) {
	resp, err := c.call(ctx, "contract", ActionGetSourceCode, address)
	if err != nil {
		return nil, err
	}

	var entries []sourceCodeEntry
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExplorer, "Unexpected getsourcecode result",
			truncate(string(resp.Result), 120))
	}
	if len(entries) == 0 {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Empty getsourcecode result", ErrNoResult)
	}

	entry := entries[0]
	if entry.ABI == nil {
		return nil, utils.NewAppError(utils.ErrCodeExplorer, "getsourcecode result has no ABI field", "")
	}
	return entry.toMetadata(), nil
}

func (e sourceCodeEntry) toMetadata() *models.ContractMetadata {
	verified := *e.ABI != NotVerifiedABI

	meta := &models.ContractMetadata{
		IsVerified:           verified,
		IsProxy:              e.Proxy == "1",
		SourceCode:           optional(e.SourceCode),
		ContractName:         optional(e.ContractName),
		CompilerVersion:      optional(e.CompilerVersion),
		ConstructorArguments: optional(e.ConstructorArguments),
		LicenseType:          optional(e.LicenseType),
		Implementation:       optional(e.Implementation),
	}
	if verified {
		meta.ABI = optional(*e.ABI)
	}
	return meta
}

// call performs one GET request and decodes the response envelope
func (c *Client) call(ctx context.Context, module, action string, address common.Address) (*apiResponse, error) {
	start := time.Now()
	resp, err := c.doCall(ctx, module, action, address)

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metricsManager != nil {
		c.metricsManager.GetPrometheusMetrics().RecordExplorerRequest(action, status, time.Since(start))
	}

	c.logger.WithFields(logrus.Fields{
		"action":   action,
		"address":  utils.AddressKey(address),
		"status":   status,
		"duration": time.Since(start).String(),
	}).Debug("Explorer request completed")

	return resp, err
}

func (c *Client) doCall(ctx context.Context, module, action string, address common.Address) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(module, action, address), nil)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Failed to build explorer request", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Explorer request failed", redact(err, c.config.APIKey))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Failed to read explorer response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, utils.NewAppError(utils.ErrCodeExplorer,
			fmt.Sprintf("Explorer returned HTTP %d", httpResp.StatusCode),
			truncate(string(body), 120))
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Malformed explorer response", err)
	}
	if resp.Error == nil && (len(resp.Result) == 0 || string(resp.Result) == "null") {
		return nil, utils.WrapAppError(utils.ErrCodeExplorer, "Explorer response has no result", ErrNoResult)
	}
	return &resp, nil
}

func (c *Client) requestURL(module, action string, address common.Address) string {
	params := url.Values{}
	params.Set("module", module)
	params.Set("action", action)
	params.Set("address", utils.AddressKey(address))
	if action == ActionGetCode {
		params.Set("tag", "latest")
	}
	if c.config.APIKey != "" {
		params.Set("apikey", c.config.APIKey)
	}

	sep := "?"
	if strings.Contains(c.config.BaseURL, "?") {
		sep = "&"
	}
	return c.config.BaseURL + sep + params.Encode()
}

// redact strips the API key from transport errors, which embed the request URL
func redact(err error, apiKey string) error {
	if apiKey == "" || !strings.Contains(err.Error(), apiKey) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), apiKey, "xxxxx"))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

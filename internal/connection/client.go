package connection

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

const actionNodeGetCode = "node_eth_getCode"

// NodeConfig holds JSON-RPC node configuration
type NodeConfig struct {
	NodeURL        string        `json:"node_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// NodeClient looks up contract code on a JSON-RPC node through ethclient
type NodeClient struct {
	config         *NodeConfig
	client         *ethclient.Client
	mu             sync.Mutex
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewNodeClient creates a node client; the connection is dialed lazily
func NewNodeClient(config *NodeConfig, metricsManager *metrics.Manager) (*NodeClient, error) {
	if config == nil || config.NodeURL == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "RPC node URL is required", "")
	}
	return &NodeClient{
		config:         config,
		logger:         utils.ComponentLogger("connection"),
		metricsManager: metricsManager,
	}, nil
}

// GetClient returns the underlying ethclient, dialing it on first use
func (nc *NodeClient) GetClient(ctx context.Context) (*ethclient.Client, error) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if nc.client != nil {
		return nc.client, nil
	}

	client, err := ethclient.DialContext(ctx, nc.config.NodeURL)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to dial RPC node", err.Error())
	}
	nc.client = client
	nc.logger.Info("Connected to RPC node")
	return client, nil
}

// GetCode returns the code deployed at address in the latest block.
// An address without code yields nil bytecode and no error.
func (nc *NodeClient) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	start := time.Now()
	code, err := nc.getCode(ctx, address)

	if nc.metricsManager != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		nc.metricsManager.GetPrometheusMetrics().RecordExplorerRequest(actionNodeGetCode, status, time.Since(start))
	}
	return code, err
}

func (nc *NodeClient) getCode(ctx context.Context, address common.Address) ([]byte, error) {
	client, err := nc.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	if nc.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nc.config.RequestTimeout)
		defer cancel()
	}

	code, err := client.CodeAt(ctx, address, nil)
	if err != nil {
		nc.logger.WithFields(logrus.Fields{
			"address": utils.AddressKey(address),
			"error":   err,
		}).Debug("eth_getCode failed")
		return nil, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to get code", err)
	}
	if len(code) == 0 {
		return nil, nil
	}
	return code, nil
}

// HealthCheck verifies the node answers eth_chainId
func (nc *NodeClient) HealthCheck(ctx context.Context) (uint64, error) {
	client, err := nc.GetClient(ctx)
	if err != nil {
		return 0, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get chain ID", err.Error())
	}
	return chainID.Uint64(), nil
}

// Close closes the node connection
func (nc *NodeClient) Close() error {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if nc.client != nil {
		nc.client.Close()
		nc.client = nil
		nc.logger.Info("RPC node connection closed")
	}
	return nil
}

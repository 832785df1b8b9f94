// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/evm-address-enricher/internal/models"
)

// Storage defines the interface for address enrichment storage operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Traces (read-only source)
	LoadTraceAddresses(ctx context.Context) ([]common.Address, error)

	// Address operations
	AddressExists(ctx context.Context, address common.Address) (bool, error)
	UpsertAddress(ctx context.Context, record *models.AddressRecord) error
	GetAddress(ctx context.Context, address common.Address) (*models.AddressRecord, error)

	// Statistics and monitoring
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalAddresses    int64     `json:"total_addresses"`
	ContractAddresses int64     `json:"contract_addresses"`
	VerifiedContracts int64     `json:"verified_contracts"`
	ProxyContracts    int64     `json:"proxy_contracts"`
	CollectedAt       time.Time `json:"collected_at"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

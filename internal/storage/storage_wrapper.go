package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

// LoadTraceAddresses loads trace addresses and records metrics
func (s *StorageWithMetrics) LoadTraceAddresses(ctx context.Context) ([]common.Address, error) {
	start := time.Now()
	addresses, err := s.Storage.LoadTraceAddresses(ctx)
	s.record("select", "traces", err, start)
	return addresses, err
}

// AddressExists checks an address and records metrics
func (s *StorageWithMetrics) AddressExists(ctx context.Context, address common.Address) (bool, error) {
	start := time.Now()
	exists, err := s.Storage.AddressExists(ctx, address)
	s.record("exists", "addresses", err, start)
	return exists, err
}

// UpsertAddress upserts an address and records metrics
func (s *StorageWithMetrics) UpsertAddress(ctx context.Context, record *models.AddressRecord) error {
	start := time.Now()
	err := s.Storage.UpsertAddress(ctx, record)
	s.record("upsert", "addresses", err, start)
	return err
}

func (s *StorageWithMetrics) record(operation, table string, err error, start time.Time) {
	if s.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation,
		table,
		status,
		time.Since(start),
	)
}

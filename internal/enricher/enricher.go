// File: internal/enricher/enricher.go
package enricher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/internal/models"
	"github.com/smartdevs17/evm-address-enricher/internal/storage"
	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

// CodeSource looks up the code deployed at an address. Nil code means none.
type CodeSource interface {
	GetCode(ctx context.Context, address common.Address) ([]byte, error)
}

// MetadataSource looks up verified-source metadata for a contract
type MetadataSource interface {
	GetSourceCode(ctx context.Context, address common.Address) (*models.ContractMetadata, error)
}

// EnricherConfig holds enricher configuration
type EnricherConfig struct {
	// RequestDelay is the pause after each address that reached the explorer
	RequestDelay time.Duration `json:"request_delay"`
}

// Enricher classifies trace addresses and stores one record per address
type Enricher struct {
	config         *EnricherConfig
	storage        storage.Storage
	code           CodeSource
	metadata       MetadataSource
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	mu      sync.RWMutex
	running bool
	stats   models.RunStats

	// wait is replaced in tests
	wait func(ctx context.Context, d time.Duration) error
}

// result is what processing a single address produced
type result struct {
	outcome      string
	record       *models.AddressRecord
	lookupFailed bool
}

// NewEnricher creates a new enricher
func NewEnricher(
	config *EnricherConfig,
	store storage.Storage,
	code CodeSource,
	metadata MetadataSource,
	metricsManager *metrics.Manager,
) (*Enricher, error) {
	if store == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Enricher requires a storage", "")
	}
	if code == nil || metadata == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Enricher requires code and metadata sources", "")
	}
	if config == nil {
		config = &EnricherConfig{}
	}

	return &Enricher{
		config:         config,
		storage:        store,
		code:           code,
		metadata:       metadata,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("enricher"),
		wait:           sleepContext,
	}, nil
}

// Run loads every trace address and enriches the ones not yet stored.
// Explorer failures are logged and never abort the run; storage errors do.
func (e *Enricher) Run(ctx context.Context) (*models.RunStats, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Enrichment run already in progress", "")
	}
	e.running = true
	e.stats = models.RunStats{StartedAt: time.Now()}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.stats.Duration = time.Since(e.stats.StartedAt)
		e.mu.Unlock()
	}()

	e.logger.Info("Starting address enrichment")

	addresses, err := e.storage.LoadTraceAddresses(ctx)
	if err != nil {
		return e.snapshot(), fmt.Errorf("failed to load trace addresses: %w", err)
	}

	total := len(addresses)
	e.mu.Lock()
	e.stats.Total = total
	e.mu.Unlock()
	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().UpdateAddressesLoaded(total)
	}

	for i, address := range addresses {
		if err := ctx.Err(); err != nil {
			e.logger.WithField("processed", i).Warn("Enrichment interrupted")
			return e.snapshot(), err
		}

		key := utils.AddressKey(address)
		e.logger.Infof("[%d/%d] Processing %s", i+1, total, key)

		res, err := e.processAddress(ctx, address)
		if err != nil {
			return e.snapshot(), fmt.Errorf("failed to process %s: %w", key, err)
		}
		e.record(address, res, total-i-1)

		if res.outcome == metrics.OutcomeExisting {
			continue
		}
		if err := e.wait(ctx, e.config.RequestDelay); err != nil {
			e.logger.WithField("processed", i+1).Warn("Enrichment interrupted")
			return e.snapshot(), err
		}
	}

	stats := e.snapshot()
	stats.Duration = time.Since(stats.StartedAt)
	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().RecordRunDuration(stats.Duration)
	}

	e.logger.WithFields(logrus.Fields{
		"total":              stats.Total,
		"skipped_existing":   stats.SkippedExisting,
		"eoas":               stats.EOAs,
		"contracts":          stats.Contracts,
		"verified":           stats.Verified,
		"proxies":            stats.Proxies,
		"code_lookup_errors": stats.CodeLookupErrors,
		"metadata_failures":  stats.MetadataFailures,
		"written":            stats.Written,
		"duration":           stats.Duration.String(),
	}).Info("Address enrichment completed")

	return stats, nil
}

// processAddress handles one address: existence check, classification,
// metadata lookup for contracts, and upsert. Only storage errors are returned.
func (e *Enricher) processAddress(ctx context.Context, address common.Address) (*result, error) {
	key := utils.AddressKey(address)

	exists, err := e.storage.AddressExists(ctx, address)
	if err != nil {
		return nil, err
	}
	if exists {
		e.logger.Infof("  %s already exists in the database", key)
		return &result{outcome: metrics.OutcomeExisting}, nil
	}

	isContract, bytecode, lookupErr := e.classify(ctx, address)
	if !isContract {
		record := models.NewEOARecord(address)
		if err := e.storage.UpsertAddress(ctx, record); err != nil {
			return nil, err
		}
		return &result{outcome: metrics.OutcomeEOA, record: record, lookupFailed: lookupErr != nil}, nil
	}

	meta, err := e.metadata.GetSourceCode(ctx, address)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"address": key,
			"error":   err,
		}).Warn("Metadata fetch failed, skipping address")
		return &result{outcome: metrics.OutcomeMetadataFailure}, nil
	}
	if meta.IsProxy && meta.Implementation != nil {
		e.logger.WithFields(logrus.Fields{
			"address":        key,
			"implementation": *meta.Implementation,
		}).Debug("Proxy contract")
	}

	record := models.NewContractRecord(address, bytecode, meta)
	if err := e.storage.UpsertAddress(ctx, record); err != nil {
		return nil, err
	}
	return &result{outcome: metrics.OutcomeContract, record: record}, nil
}

// classify reports whether address holds code. A failed lookup is logged and
// classified as "not a contract", so it cannot be told apart from an EOA in
// the stored row.
func (e *Enricher) classify(ctx context.Context, address common.Address) (bool, []byte, error) {
	code, err := e.code.GetCode(ctx, address)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"address": utils.AddressKey(address),
			"error":   err,
		}).Warn("Bytecode fetch failed, treating address as EOA")
		return false, nil, err
	}
	if len(code) == 0 {
		return false, nil, nil
	}
	return true, code, nil
}

func (e *Enricher) record(address common.Address, res *result, remaining int) {
	e.mu.Lock()
	e.stats.Processed++
	e.stats.LastProcessedAddr = utils.AddressKey(address)
	switch res.outcome {
	case metrics.OutcomeExisting:
		e.stats.SkippedExisting++
	case metrics.OutcomeEOA:
		e.stats.EOAs++
		e.stats.Written++
		if res.lookupFailed {
			e.stats.CodeLookupErrors++
		}
	case metrics.OutcomeContract:
		e.stats.Contracts++
		e.stats.Written++
		if res.record.IsVerified {
			e.stats.Verified++
		}
		if res.record.IsProxy {
			e.stats.Proxies++
		}
	case metrics.OutcomeMetadataFailure:
		e.stats.MetadataFailures++
	}
	e.mu.Unlock()

	if e.metricsManager != nil {
		pm := e.metricsManager.GetPrometheusMetrics()
		pm.RecordAddressProcessed(res.outcome)
		pm.UpdateAddressesRemaining(remaining)
	}
}

// GetStats returns a copy of the current or last run statistics
func (e *Enricher) GetStats() models.RunStats {
	return *e.snapshot()
}

// IsRunning reports whether a run is in progress
func (e *Enricher) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Enricher) snapshot() *models.RunStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := e.stats
	if e.running {
		stats.Duration = time.Since(stats.StartedAt)
	}
	return &stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-address-enricher/internal/models"
	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

const loadTraceAddressesQuery = `
	SELECT from_addr FROM traces WHERE from_addr IS NOT NULL
	UNION
	SELECT to_addr FROM traces WHERE to_addr IS NOT NULL
	UNION
	SELECT storage_addr FROM traces WHERE storage_addr IS NOT NULL
`

const storageStatsQuery = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN is_contract THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_verified THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_proxy THEN 1 ELSE 0 END), 0)
	FROM addresses
`

// dialect holds the statements whose placeholder syntax differs per driver
type dialect struct {
	name        string
	existsQuery string
	upsertQuery string
	getQuery    string
}

// sqlStore implements the dialect-independent part of Storage on database/sql
type sqlStore struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
	dialect    dialect
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("Database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *sqlStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *sqlStore) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// LoadTraceAddresses returns the distinct, lowercased addresses found in the
// from_addr, to_addr and storage_addr columns of traces, sorted.
func (s *sqlStore) LoadTraceAddresses(ctx context.Context) ([]common.Address, error) {
	rows, err := s.db.QueryContext(ctx, loadTraceAddressesQuery)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query traces", err.Error())
	}
	defer rows.Close()

	unique := make(map[string]struct{})
	invalid := 0
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan trace address", err.Error())
		}
		if !raw.Valid || strings.TrimSpace(raw.String) == "" {
			continue
		}
		address := utils.NormalizeAddress(raw.String)
		if !utils.IsValidAddress(address) {
			invalid++
			s.logger.WithField("value", raw.String).Warn("Skipping malformed trace address")
			continue
		}
		unique[address] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read traces", err.Error())
	}

	keys := make([]string, 0, len(unique))
	for address := range unique {
		keys = append(keys, address)
	}
	sort.Strings(keys)

	addresses := make([]common.Address, len(keys))
	for i, key := range keys {
		addresses[i] = common.HexToAddress(key)
	}

	s.logger.WithFields(logrus.Fields{
		"unique":  len(addresses),
		"invalid": invalid,
	}).Infof("Extracted %d unique addresses from traces", len(addresses))
	return addresses, nil
}

// AddressExists reports whether address already has a row in addresses
func (s *sqlStore) AddressExists(ctx context.Context, address common.Address) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.existsQuery, utils.AddressKey(address)).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check address", err.Error())
	}
	return true, nil
}

// UpsertAddress inserts record or overwrites every column of the existing row
func (s *sqlStore) UpsertAddress(ctx context.Context, record *models.AddressRecord) error {
	if record == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Address record is nil", "")
	}

	var bytecode interface{}
	if len(record.ContractBytecode) > 0 {
		bytecode = []byte(record.ContractBytecode)
	}

	_, err := s.db.ExecContext(ctx, s.dialect.upsertQuery,
		utils.AddressKey(record.Address),
		record.IsContract,
		record.IsProxy,
		record.IsVerified,
		bytecode,
		nullString(record.ContractSourceCode),
		nullString(record.ContractABI),
		nullString(record.ContractName),
		nullString(record.CompilerVersion),
		nullString(record.ConstructorArguments),
		nullString(record.LicenseType),
	)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert address", err.Error())
	}
	return nil
}

// GetAddress retrieves the stored record for address, or nil if there is none
func (s *sqlStore) GetAddress(ctx context.Context, address common.Address) (*models.AddressRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.getQuery, utils.AddressKey(address))

	var (
		key                                                   string
		record                                                models.AddressRecord
		bytecode                                              []byte
		source, abi, name, compiler, constructorArgs, license sql.NullString
	)
	err := row.Scan(&key, &record.IsContract, &record.IsProxy, &record.IsVerified,
		&bytecode, &source, &abi, &name, &compiler, &constructorArgs, &license)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get address", err.Error())
	}

	record.Address = common.HexToAddress(key)
	if len(bytecode) > 0 {
		record.ContractBytecode = bytecode
	}
	record.ContractSourceCode = stringPtr(source)
	record.ContractABI = stringPtr(abi)
	record.ContractName = stringPtr(name)
	record.CompilerVersion = stringPtr(compiler)
	record.ConstructorArguments = stringPtr(constructorArgs)
	record.LicenseType = stringPtr(license)
	return &record, nil
}

// GetStorageStats returns row counts of the addresses table
func (s *sqlStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{CollectedAt: time.Now()}
	err := s.db.QueryRowContext(ctx, storageStatsQuery).Scan(
		&stats.TotalAddresses,
		&stats.ContractAddresses,
		&stats.VerifiedContracts,
		&stats.ProxyContracts,
	)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get storage stats", err.Error())
	}
	return stats, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

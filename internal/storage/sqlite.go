package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:        "sqlite",
	existsQuery: `SELECT 1 FROM addresses WHERE address = ?`,
	upsertQuery: `
		INSERT INTO addresses (
			address, is_contract, is_proxy, is_verified,
			contract_bytecode, contract_source_code, contract_abi, contract_name,
			compiler_version, constructor_arguments, license_type
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			is_contract = excluded.is_contract,
			is_proxy = excluded.is_proxy,
			is_verified = excluded.is_verified,
			contract_bytecode = excluded.contract_bytecode,
			contract_source_code = excluded.contract_source_code,
			contract_abi = excluded.contract_abi,
			contract_name = excluded.contract_name,
			compiler_version = excluded.compiler_version,
			constructor_arguments = excluded.constructor_arguments,
			license_type = excluded.license_type
	`,
	getQuery: `
		SELECT address, is_contract, is_proxy, is_verified,
		       contract_bytecode, contract_source_code, contract_abi, contract_name,
		       compiler_version, constructor_arguments, license_type
		FROM addresses WHERE address = ?
	`,
}

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	sqlStore
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		sqlStore: sqlStore{
			config:     config,
			logger:     utils.ComponentLogger("storage.sqlite"),
			migrations: GetSQLiteMigrations(),
			dialect:    sqliteDialect,
		},
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	path := strings.TrimPrefix(s.config.ConnectionString, "file:")
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

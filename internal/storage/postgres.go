package storage

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

var postgresDialect = dialect{
	name:        "postgres",
	existsQuery: `SELECT 1 FROM addresses WHERE address = $1`,
	upsertQuery: `
		INSERT INTO addresses (
			address, is_contract, is_proxy, is_verified,
			contract_bytecode, contract_source_code, contract_abi, contract_name,
			compiler_version, constructor_arguments, license_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (address) DO UPDATE SET
			is_contract = EXCLUDED.is_contract,
			is_proxy = EXCLUDED.is_proxy,
			is_verified = EXCLUDED.is_verified,
			contract_bytecode = EXCLUDED.contract_bytecode,
			contract_source_code = EXCLUDED.contract_source_code,
			contract_abi = EXCLUDED.contract_abi,
			contract_name = EXCLUDED.contract_name,
			compiler_version = EXCLUDED.compiler_version,
			constructor_arguments = EXCLUDED.constructor_arguments,
			license_type = EXCLUDED.license_type
	`,
	getQuery: `
		SELECT address, is_contract, is_proxy, is_verified,
		       contract_bytecode, contract_source_code, contract_abi, contract_name,
		       compiler_version, constructor_arguments, license_type
		FROM addresses WHERE address = $1
	`,
}

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	sqlStore
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		sqlStore: sqlStore{
			config:     config,
			logger:     utils.ComponentLogger("storage.postgres"),
			migrations: GetPostgresMigrations(),
			dialect:    postgresDialect,
		},
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

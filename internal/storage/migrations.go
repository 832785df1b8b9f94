package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetPostgresMigrations returns PostgreSQL migration scripts. The traces
// table belongs to the tracing pipeline and is never created here.
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create addresses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS addresses (
					address TEXT PRIMARY KEY,
					is_contract BOOLEAN NOT NULL DEFAULT FALSE,
					is_proxy BOOLEAN NOT NULL DEFAULT FALSE,
					is_verified BOOLEAN NOT NULL DEFAULT FALSE,
					contract_bytecode BYTEA,
					contract_source_code TEXT,
					contract_abi TEXT,
					contract_name TEXT,
					compiler_version TEXT,
					constructor_arguments TEXT,
					license_type TEXT
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create addresses indexes",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_addresses_is_contract ON addresses(is_contract);
				CREATE INDEX IF NOT EXISTS idx_addresses_is_verified ON addresses(is_verified);
			`,
		},
	}
}

// GetSQLiteMigrations returns SQLite migration scripts. SQLite databases are
// standalone, so the traces table is created as well.
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create addresses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS addresses (
					address TEXT PRIMARY KEY,
					is_contract BOOLEAN NOT NULL DEFAULT FALSE,
					is_proxy BOOLEAN NOT NULL DEFAULT FALSE,
					is_verified BOOLEAN NOT NULL DEFAULT FALSE,
					contract_bytecode BLOB,
					contract_source_code TEXT,
					contract_abi TEXT,
					contract_name TEXT,
					compiler_version TEXT,
					constructor_arguments TEXT,
					license_type TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_addresses_is_contract ON addresses(is_contract);
				CREATE INDEX IF NOT EXISTS idx_addresses_is_verified ON addresses(is_verified);
			`,
		},
		{
			Version:     "002",
			Description: "Create traces table",
			SQL: `
				CREATE TABLE IF NOT EXISTS traces (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					from_addr TEXT,
					to_addr TEXT,
					storage_addr TEXT
				);
			`,
		},
	}
}

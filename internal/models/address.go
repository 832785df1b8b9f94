package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressRecord is one row of the addresses table
type AddressRecord struct {
	Address              common.Address `json:"address" db:"address"`
	IsContract           bool           `json:"is_contract" db:"is_contract"`
	IsProxy              bool           `json:"is_proxy" db:"is_proxy"`
	IsVerified           bool           `json:"is_verified" db:"is_verified"`
	ContractBytecode     hexutil.Bytes  `json:"contract_bytecode,omitempty" db:"contract_bytecode"`
	ContractSourceCode   *string        `json:"contract_source_code,omitempty" db:"contract_source_code"`
	ContractABI          *string        `json:"contract_abi,omitempty" db:"contract_abi"`
	ContractName         *string        `json:"contract_name,omitempty" db:"contract_name"`
	CompilerVersion      *string        `json:"compiler_version,omitempty" db:"compiler_version"`
	ConstructorArguments *string        `json:"constructor_arguments,omitempty" db:"constructor_arguments"`
	LicenseType          *string        `json:"license_type,omitempty" db:"license_type"`
}

// NewEOARecord returns the record stored for an address without code
func NewEOARecord(address common.Address) *AddressRecord {
	return &AddressRecord{Address: address}
}

// NewContractRecord builds the record for a contract from its code and explorer metadata
func NewContractRecord(address common.Address, bytecode []byte, meta *ContractMetadata) *AddressRecord {
	rec := &AddressRecord{
		Address:          address,
		IsContract:       true,
		ContractBytecode: bytecode,
	}
	if meta == nil {
		return rec
	}
	rec.IsProxy = meta.IsProxy
	rec.IsVerified = meta.IsVerified
	rec.ContractSourceCode = meta.SourceCode
	rec.ContractABI = meta.ABI
	rec.ContractName = meta.ContractName
	rec.CompilerVersion = meta.CompilerVersion
	rec.ConstructorArguments = meta.ConstructorArguments
	rec.LicenseType = meta.LicenseType
	return rec
}

// ContractMetadata is the verified-source information the explorer reports for a contract
type ContractMetadata struct {
	IsVerified           bool    `json:"is_verified"`
	IsProxy              bool    `json:"is_proxy"`
	SourceCode           *string `json:"source_code,omitempty"`
	ABI                  *string `json:"abi,omitempty"`
	ContractName         *string `json:"contract_name,omitempty"`
	CompilerVersion      *string `json:"compiler_version,omitempty"`
	ConstructorArguments *string `json:"constructor_arguments,omitempty"`
	LicenseType          *string `json:"license_type,omitempty"`
	Implementation       *string `json:"implementation,omitempty"`
}

// RunStats summarizes one enrichment run
type RunStats struct {
	Total             int           `json:"total"`
	Processed         int           `json:"processed"`
	SkippedExisting   int           `json:"skipped_existing"`
	EOAs              int           `json:"eoas"`
	Contracts         int           `json:"contracts"`
	Verified          int           `json:"verified"`
	Proxies           int           `json:"proxies"`
	CodeLookupErrors  int           `json:"code_lookup_errors"`
	MetadataFailures  int           `json:"metadata_failures"`
	Written           int           `json:"written"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	LastProcessedAddr string        `json:"last_processed_address,omitempty"`
}

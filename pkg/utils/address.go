package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// AddressKey returns the lowercase hex form used as the addresses primary key
func AddressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// ParseAddress validates and parses a hex address in any case
func ParseAddress(address string) (common.Address, error) {
	normalized := NormalizeAddress(address)
	if !common.IsHexAddress(normalized) {
		return common.Address{}, NewAppError(ErrCodeValidation, "Invalid address", address)
	}
	return common.HexToAddress(normalized), nil
}

// DecodeBytecode decodes a 0x-prefixed hex string returned by eth_getCode.
// An empty result ("0x" or "") decodes to nil.
func DecodeBytecode(code string) ([]byte, error) {
	code = strings.TrimSpace(code)
	if code == "" || code == "0x" || code == "0X" {
		return nil, nil
	}
	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, WrapAppError(ErrCodeValidation, "Invalid bytecode hex", err)
	}
	return b, nil
}

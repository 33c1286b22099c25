// Package btc defines the Bitcoin consensus domain types used by the
// chain-state engine: heights, hashes, outpoints, outputs, addresses,
// transactions, headers and blocks. Hashing is double-SHA-256
// throughout, addresses are variable-length real Bitcoin address
// strings, and scripts are classified by genuine Bitcoin script
// pattern recognition.
package btc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a double-SHA-256 hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value (block hash or txid).
type Hash [HashSize]byte

// Txid identifies a transaction.
type Txid = Hash

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash converts a hex string to a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// DoubleSHA256 computes SHA256(SHA256(data)), Bitcoin's standard
// block-header and transaction hashing function.
func DoubleSHA256(data []byte) Hash {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// singleSHA256 computes one round of SHA-256, used as a building
// block for HASH160 and base58check checksums.
func singleSHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

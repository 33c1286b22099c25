package btc

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for Bitcoin HASH160

	"github.com/btcstate/chainstate/pkg/btc/bech32"
)

// Network selects the address version bytes / bech32 HRP used when
// deriving a canonical address string from a script.
type Network uint8

const (
	Mainnet Network = iota
	Testnet
	Regtest
)

type networkParams struct {
	p2pkhVersion byte
	p2shVersion  byte
	bech32HRP    string
}

func (n Network) params() networkParams {
	switch n {
	case Testnet, Regtest:
		hrp := "tb"
		if n == Regtest {
			hrp = "bcrt"
		}
		return networkParams{p2pkhVersion: 0x6f, p2shVersion: 0xc4, bech32HRP: hrp}
	default:
		return networkParams{p2pkhVersion: 0x00, p2shVersion: 0x05, bech32HRP: "bc"}
	}
}

// Address is the canonical string form derived from a script and
// network; the empty string is not a valid address. Holds
// variable-length real Bitcoin base58/bech32 forms, up to
// MaxAddressLength bytes.
type Address string

// MaxAddressLength is the maximum length in bytes of a valid address.
const MaxAddressLength = 90

// IsValid reports whether a is non-empty and within the length bound.
func (a Address) IsValid() bool {
	return len(a) > 0 && len(a) <= MaxAddressLength
}

// hash160 computes RIPEMD160(SHA256(b)), Bitcoin's standard
// public-key/script hash.
func hash160(b []byte) []byte {
	single := singleSHA256(b)
	r := ripemd160.New()
	r.Write(single)
	return r.Sum(nil)
}

// AddressForScript derives the canonical address for a locking
// script under the given network, if one exists. Some scripts
// (anyone-can-spend, non-standard, OP_RETURN) have no address and
// ok is false.
func AddressForScript(network Network, script []byte) (addr Address, ok bool) {
	params := network.params()
	switch ClassifyScript(script) {
	case ScriptP2PKH:
		return Address(base58CheckEncode(params.p2pkhVersion, hash160Program(script))), true
	case ScriptP2SH:
		return Address(base58CheckEncode(params.p2shVersion, hash160Program(script))), true
	case ScriptP2PK:
		return Address(base58CheckEncode(params.p2pkhVersion, hash160(pubKeyBytes(script)))), true
	case ScriptP2WPKH:
		s, err := bech32.EncodeSegwit(params.bech32HRP, 0, hash160Program(script))
		if err != nil {
			return "", false
		}
		return Address(s), true
	case ScriptP2WSH:
		s, err := bech32.EncodeSegwit(params.bech32HRP, 0, witnessProgram(script))
		if err != nil {
			return "", false
		}
		return Address(s), true
	case ScriptP2TR:
		s, err := bech32.EncodeSegwit(params.bech32HRP, 1, witnessProgram(script))
		if err != nil {
			return "", false
		}
		return Address(s), true
	default:
		return "", false
	}
}

func base58CheckEncode(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload)+4)
	body = append(body, version)
	body = append(body, payload...)
	checksum := singleSHA256(body)
	checksum = singleSHA256(checksum)
	body = append(body, checksum[:4]...)
	return base58.Encode(body)
}

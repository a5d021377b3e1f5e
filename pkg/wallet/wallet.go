package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullSeed ...
	ErrNullSeed = errors.New("seed must not be null")
	// ErrNullRootKey ...
	ErrNullRootKey = errors.New("root key and chain code must not be null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullPublicKey ...
	ErrNullPublicKey = errors.New("public key must not be null")

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidSeedLength ...
	ErrInvalidSeedLength = errors.New("seed length must be in range [16, 64]")
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher is malformed")
	// ErrInvalidPassphrase ...
	ErrInvalidPassphrase = errors.New("passphrase is not valid")
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidAddressType ...
	ErrInvalidAddressType = errors.New("unknown address type")
	// ErrInvalidChainCode ...
	ErrInvalidChainCode = errors.New("chain code must be 32 bytes long")
	// ErrEmptyTapLeaves ...
	ErrEmptyTapLeaves = errors.New("taproot script tree must have at least one leaf")

	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrDerivationUnavailable is returned when a derivation step requires a
	// private parent key but the keychain is public-only (watch-only).
	ErrDerivationUnavailable = errors.New(
		"derivation requires a private parent key not available in a " +
			"watch-only context",
	)
	// ErrKeychainClosed ...
	ErrKeychainClosed = errors.New("keychain is closed")
)

// CoinType returns the BIP44 coin type level for the given network: 0 for
// mainnet, 1 for every test network.
func CoinType(net *chaincfg.Params) uint32 {
	if net.Net == chaincfg.MainNetParams.Net {
		return 0
	}
	return 1
}

// NetworkFromName returns the chain params matching one of mainnet, testnet,
// signet, regtest.
func NetworkFromName(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", chaincfg.MainNetParams.Name:
		return &chaincfg.MainNetParams, nil
	case "testnet", chaincfg.TestNet3Params.Name:
		return &chaincfg.TestNet3Params, nil
	case chaincfg.SigNetParams.Name:
		return &chaincfg.SigNetParams, nil
	case "regtest", chaincfg.RegressionNetParams.Name:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

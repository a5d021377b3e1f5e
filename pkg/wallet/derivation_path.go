package wallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// DerivationPath is the internal representation of a hierarchical
// deterministic wallet account
type DerivationPath []uint32

const (
	// ExternalChain is the branch used for receiving addresses.
	ExternalChain uint32 = 0
	// InternalChain is the branch used for change addresses.
	InternalChain uint32 = 1

	// MaxHardenedValue is the max value for hardened indexes of BIP32
	// derivation paths
	MaxHardenedValue = math.MaxUint32 - hdkeychain.HardenedKeyStart
)

// AccountPath returns m/purpose'/coin'/account' for the given address type.
func AccountPath(
	addrType AddressType, net *chaincfg.Params, account uint32,
) (DerivationPath, error) {
	purpose, err := addrType.Purpose()
	if err != nil {
		return nil, err
	}
	if account > MaxHardenedValue {
		return nil, fmt.Errorf("account %d out of hardened range", account)
	}
	return DerivationPath{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + CoinType(net),
		hdkeychain.HardenedKeyStart + account,
	}, nil
}

// AddressPath returns the full m/purpose'/coin'/account'/change/index path.
func AddressPath(
	addrType AddressType, net *chaincfg.Params,
	account, change, index uint32,
) (DerivationPath, error) {
	path, err := AccountPath(addrType, net, account)
	if err != nil {
		return nil, err
	}
	if change >= hdkeychain.HardenedKeyStart ||
		index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf(
			"change and index levels must not be hardened: %w",
			ErrInvalidDerivationPath,
		)
	}
	return append(path, change, index), nil
}

// ParseDerivationPath converts a derivation path string to the
// internal binary representation
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	var path DerivationPath

	elems := strings.Split(strPath, "/")
	switch {
	case strPath == "":
		return nil, ErrNullDerivationPath

	case containsEmptyString(elems):
		return nil, ErrMalformedDerivationPath
	case len(elems) < 2:
		return nil, ErrMalformedDerivationPath

	default:
		if strings.TrimSpace(elems[0]) == "m" {
			elems = elems[1:]
		}
	}

	// all remaining elems are relative, append one by one
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") || strings.HasSuffix(elem, "h") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(elem[:len(elem)-1])
		}

		// use big int for convertion
		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

// IsHardened returns whether any step of the path is hardened.
func (path DerivationPath) IsHardened() bool {
	for _, step := range path {
		if step >= hdkeychain.HardenedKeyStart {
			return true
		}
	}
	return false
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}

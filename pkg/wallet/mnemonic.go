package wallet

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
)

type NewMnemonicOpts struct {
	EntropySize int
}

func (o NewMnemonicOpts) validate() error {
	if o.EntropySize > 0 {
		if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
			return ErrInvalidEntropySize
		}
	}
	if o.EntropySize < 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewMnemonic returns a new mnemonic as a list of words
func NewMnemonic(opts NewMnemonicOpts) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.EntropySize == 0 {
		opts.EntropySize = 128
	}

	entropy, err := bip39.NewEntropy(opts.EntropySize)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Fields(mnemonic), nil
}

// SeedFromMnemonicOpts is the struct given to SeedFromMnemonic
type SeedFromMnemonicOpts struct {
	Mnemonic []string
	Password string
}

func (o SeedFromMnemonicOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullSeed
	}
	if !bip39.IsMnemonicValid(strings.Join(o.Mnemonic, " ")) {
		return ErrInvalidMnemonic
	}
	return nil
}

// SeedFromMnemonic returns the 64-byte BIP39 seed of the given mnemonic and
// optional password.
func SeedFromMnemonic(opts SeedFromMnemonicOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return bip39.NewSeed(strings.Join(opts.Mnemonic, " "), opts.Password), nil
}

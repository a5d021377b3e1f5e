package wallet

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

func newMnemonicKeychain(t *testing.T, net *chaincfg.Params) *Keychain {
	seed, err := SeedFromMnemonic(SeedFromMnemonicOpts{
		Mnemonic: splitWords(testMnemonic),
	})
	require.NoError(t, err)

	keychain, err := NewKeychain(KeychainOpts{Seed: seed, Network: net})
	require.NoError(t, err)
	return keychain
}

func splitWords(str string) []string {
	words := make([]string, 0)
	for _, w := range bytes.Fields([]byte(str)) {
		words = append(words, string(w))
	}
	return words
}

func TestAddressFor(t *testing.T) {
	tests := []struct {
		addrType AddressType
		net      *chaincfg.Params
		expected string
	}{
		{Legacy, &chaincfg.MainNetParams, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"},
		{NestedSegwit, &chaincfg.TestNet3Params, "2Mww8dCYPUpKHofjgcXcBCEGmniw9CoaiD2"},
		{NativeSegwit, &chaincfg.MainNetParams, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"},
		{Taproot, &chaincfg.MainNetParams, "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr"},
	}
	for _, tt := range tests {
		t.Run(tt.addrType.String(), func(t *testing.T) {
			keychain := newMnemonicKeychain(t, tt.net)
			defer keychain.Close()

			path, err := AddressPath(tt.addrType, tt.net, 0, 0, 0)
			require.NoError(t, err)
			pubkey, err := keychain.PublicKey(path)
			require.NoError(t, err)

			addr, err := AddressFor(pubkey, tt.addrType, tt.net)
			require.NoError(t, err)
			require.Equal(t, tt.expected, addr.EncodedAddress)

			detected, err := AddressTypeForScript(addr.Script)
			require.NoError(t, err)
			require.Equal(t, tt.addrType, detected)

			again, err := AddressFor(pubkey, tt.addrType, tt.net)
			require.NoError(t, err)
			require.Equal(t, addr.Script, again.Script)
			require.Equal(t, addr.EncodedAddress, again.EncodedAddress)

			if tt.addrType == NestedSegwit {
				require.Len(t, addr.RedeemScript, 22)
			}
			if tt.addrType == Taproot {
				require.NotNil(t, addr.OutputKey)
				require.Empty(t, addr.MerkleRoot)
			}
		})
	}
}

func TestTaprootAddressWithScripts(t *testing.T) {
	internalKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	leafKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	leafScript, err := txscript.NewScriptBuilder().
		AddData(leafKey.PubKey().SerializeCompressed()[1:]).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)
	otherScript, err := txscript.NewScriptBuilder().
		AddInt64(144).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		Script()
	require.NoError(t, err)

	addr, err := TaprootAddressWithScripts(
		internalKey.PubKey(), [][]byte{leafScript, otherScript},
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	require.Len(t, addr.MerkleRoot, 32)
	require.Len(t, addr.Leaves, 2)
	require.Equal(t, leafScript, addr.Leaves[0].Script)

	keyOnly, err := AddressFor(internalKey.PubKey(), Taproot, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NotEqual(t, keyOnly.EncodedAddress, addr.EncodedAddress)

	for _, leaf := range addr.Leaves {
		controlBlock, err := txscript.ParseControlBlock(leaf.ControlBlock)
		require.NoError(t, err)
		err = txscript.VerifyTaprootLeafCommitment(
			controlBlock, addr.Script[2:], leaf.Script,
		)
		require.NoError(t, err)
	}

	_, err = TaprootAddressWithScripts(internalKey.PubKey(), nil, &chaincfg.RegressionNetParams)
	require.ErrorIs(t, err, ErrEmptyTapLeaves)
}

func TestParseAddressType(t *testing.T) {
	for _, addrType := range AddressTypes() {
		parsed, err := ParseAddressType(addrType.String())
		require.NoError(t, err)
		require.Equal(t, addrType, parsed)

		purpose, err := addrType.Purpose()
		require.NoError(t, err)
		byPurpose, err := AddressTypeForPurpose(purpose)
		require.NoError(t, err)
		require.Equal(t, addrType, byPurpose)
	}

	parsed, err := ParseAddressType("84")
	require.NoError(t, err)
	require.Equal(t, NativeSegwit, parsed)

	_, err = ParseAddressType("p2pk")
	require.ErrorIs(t, err, ErrInvalidAddressType)
}

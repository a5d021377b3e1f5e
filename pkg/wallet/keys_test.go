package wallet

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// BIP32 test vector 1.
const (
	testSeedHex   = "000102030405060708090a0b0c0d0e0f"
	testMasterXpv = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	testMasterXpb = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	testChild0H   = "xprv9uHRZZhk6KAJC1avXpDAp4MDc3sQKNxDiPvvkX8Br5ngLNv1TxvUxt4cV1rGL5hj6KCesnDYUhd7oWgT11eZG7XnxHrnYeSvkzY7d2bhkJ7"
	testChild0H1  = "xprv9wTYmMFdV23N2TdNG573QoEsfRrWKQgWeibmLntzniatZvR9BmLnvSxqu53Kw1UmYPxLgboyZQaXwTCg8MSY3H2EU4pWcQDnRnrVA1xe8fs"
)

func newTestKeychain(t *testing.T) *Keychain {
	seed, _ := hex.DecodeString(testSeedHex)
	keychain, err := NewKeychain(KeychainOpts{
		Seed:    seed,
		Network: &chaincfg.MainNetParams,
	})
	require.NoError(t, err)
	return keychain
}

func TestKeychainDerive(t *testing.T) {
	keychain := newTestKeychain(t)
	defer keychain.Close()

	root, err := keychain.Root()
	require.NoError(t, err)
	require.Equal(t, testMasterXpv, root.String())

	tests := []struct {
		path     string
		expected string
	}{
		{"m/0'", testChild0H},
		{"m/0'/1", testChild0H1},
	}
	for _, tt := range tests {
		path, err := ParseDerivationPath(tt.path)
		require.NoError(t, err)

		key, err := keychain.Derive(path)
		require.NoError(t, err)
		require.Equal(t, tt.expected, key.String())

		// Cached result is the same node.
		again, err := keychain.Derive(path)
		require.NoError(t, err)
		require.Equal(t, tt.expected, again.String())
	}
}

func TestKeychainDeterminism(t *testing.T) {
	path, err := ParseDerivationPath("m/84'/0'/0'/0/3")
	require.NoError(t, err)

	first := newTestKeychain(t)
	key1, err := first.PrivateKey(path)
	require.NoError(t, err)
	serialized := key1.Serialize()
	first.Close()

	second := newTestKeychain(t)
	defer second.Close()
	key2, err := second.PrivateKey(path)
	require.NoError(t, err)
	require.Equal(t, serialized, key2.Serialize())
}

func TestKeychainFromRootKey(t *testing.T) {
	keychain := newTestKeychain(t)
	defer keychain.Close()

	root, err := keychain.Root()
	require.NoError(t, err)
	privkey, err := root.ECPrivKey()
	require.NoError(t, err)

	imported, err := NewKeychain(KeychainOpts{
		RootKey:   privkey.Serialize(),
		ChainCode: root.ChainCode(),
		Network:   &chaincfg.MainNetParams,
	})
	require.NoError(t, err)
	defer imported.Close()

	importedRoot, err := imported.Root()
	require.NoError(t, err)
	require.Equal(t, testMasterXpv, importedRoot.String())
	require.Equal(t, keychain.MasterFingerprint(), imported.MasterFingerprint())
}

func TestKeychainWatchOnly(t *testing.T) {
	keychain := newTestKeychain(t)
	defer keychain.Close()

	account, err := AccountPath(NativeSegwit, &chaincfg.MainNetParams, 0)
	require.NoError(t, err)

	watchOnly, err := keychain.Neuter(account)
	require.NoError(t, err)
	defer watchOnly.Close()
	require.True(t, watchOnly.IsWatchOnly())
	require.Equal(t, keychain.MasterFingerprint(), watchOnly.MasterFingerprint())

	full, err := AddressPath(NativeSegwit, &chaincfg.MainNetParams, 0, 0, 9)
	require.NoError(t, err)
	expected, err := keychain.PublicKey(full)
	require.NoError(t, err)

	got, err := watchOnly.PublicKey(DerivationPath{0, 9})
	require.NoError(t, err)
	require.True(t, expected.IsEqual(got))

	_, err = watchOnly.PublicKey(DerivationPath{0x80000000})
	require.ErrorIs(t, err, ErrDerivationUnavailable)

	_, err = watchOnly.PrivateKey(DerivationPath{0, 9})
	require.ErrorIs(t, err, ErrDerivationUnavailable)

	master, err := NewWatchOnlyKeychain(testMasterXpb, &chaincfg.MainNetParams)
	require.NoError(t, err)
	_, err = master.Derive(account)
	require.ErrorIs(t, err, ErrDerivationUnavailable)
}

func TestKeychainClose(t *testing.T) {
	keychain := newTestKeychain(t)

	path, err := ParseDerivationPath("m/0'/1")
	require.NoError(t, err)
	node, err := keychain.Derive(path)
	require.NoError(t, err)

	keychain.Close()
	require.False(t, node.IsPrivate())
	for _, b := range node.ChainCode() {
		require.Zero(t, b)
	}

	_, err = keychain.Derive(path)
	require.ErrorIs(t, err, ErrKeychainClosed)
	_, err = keychain.Root()
	require.ErrorIs(t, err, ErrKeychainClosed)
}

func TestFailingNewKeychain(t *testing.T) {
	tests := []struct {
		opts KeychainOpts
		err  error
	}{
		{KeychainOpts{Seed: make([]byte, 16)}, ErrNullNetwork},
		{KeychainOpts{Network: &chaincfg.MainNetParams}, ErrNullSeed},
		{KeychainOpts{Seed: make([]byte, 8), Network: &chaincfg.MainNetParams}, ErrInvalidSeedLength},
		{KeychainOpts{RootKey: make([]byte, 31), Network: &chaincfg.MainNetParams}, ErrNullRootKey},
		{KeychainOpts{RootKey: make([]byte, 32), ChainCode: make([]byte, 3), Network: &chaincfg.MainNetParams}, ErrInvalidChainCode},
	}
	for _, tt := range tests {
		_, err := NewKeychain(tt.opts)
		require.ErrorIs(t, err, tt.err)
	}

	// zero scalar
	_, err := NewKeychain(KeychainOpts{
		RootKey:   make([]byte, 32),
		ChainCode: make([]byte, 32),
		Network:   &chaincfg.MainNetParams,
	})
	require.Error(t, err)
}

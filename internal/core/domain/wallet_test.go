package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/tdex-network/btcvault/pkg/txbuilder"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

func newTestWallet(t *testing.T, kind domain.WalletKind) *domain.Wallet {
	secret, xpub := "cyphertext", ""
	if kind == domain.KindLegacyWatchOnly {
		secret, xpub = "", "xpub"
	}
	w, err := domain.NewWallet(
		"id", "test", "testnet3", kind, secret, xpub, 0xdeadbeef, 1,
	)
	require.NoError(t, err)
	return w
}

func TestNewWallet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wName   string
		network string
		kind    domain.WalletKind
		secret  string
		xpub    string
		wantErr error
	}{
		{"missing name", " ", "testnet3", domain.KindMnemonic, "s", "", domain.ErrNullWalletName},
		{"missing secret", "w", "testnet3", domain.KindLegacy, "", "", domain.ErrNullSecret},
		{"missing xpub", "w", "testnet3", domain.KindLegacyWatchOnly, "s", "", domain.ErrNullSecret},
		{"ok", "w", "regtest", domain.KindMnemonic, "s", "", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w, err := domain.NewWallet(
				"id", tt.wName, tt.network, tt.kind, tt.secret, tt.xpub, 0, 0,
			)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, w)
			require.Empty(t, w.Addresses)
		})
	}

	_, err := domain.NewWallet("id", "w", "unknown", domain.KindMnemonic, "s", "", 0, 0)
	require.Error(t, err)
}

func TestNextAddressPath(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t, domain.KindMnemonic)

	path, err := w.NextAddressPath(wallet.NativeSegwit, false)
	require.NoError(t, err)
	require.Equal(t, "m/84'/1'/0'/0/0", path.String())

	path, err = w.NextAddressPath(wallet.NativeSegwit, false)
	require.NoError(t, err)
	require.Equal(t, "m/84'/1'/0'/0/1", path.String())

	path, err = w.NextAddressPath(wallet.NativeSegwit, true)
	require.NoError(t, err)
	require.Equal(t, "m/84'/1'/0'/1/0", path.String())

	path, err = w.NextAddressPath(wallet.Taproot, false)
	require.NoError(t, err)
	require.Equal(t, "m/86'/1'/0'/0/0", path.String())

	require.Equal(t, uint32(2), w.NextExternalIndex[wallet.NativeSegwit])
	require.Equal(t, uint32(1), w.NextInternalIndex[wallet.NativeSegwit])

	watchOnly := newTestWallet(t, domain.KindLegacyWatchOnly)
	_, err = watchOnly.NextAddressPath(wallet.Legacy, false)
	require.ErrorIs(t, err, wallet.ErrDerivationUnavailable)
}

func TestAddressesAndLabels(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t, domain.KindMnemonic)
	w.AddAddress(domain.AddressInfo{Address: "addr1", Type: wallet.Legacy})
	w.AddAddress(domain.AddressInfo{Address: "addr2", Type: wallet.Taproot})
	w.AddAddress(domain.AddressInfo{Address: "addr1", Type: wallet.Legacy})
	require.Len(t, w.Addresses, 2)
	require.Equal(t, []string{"addr1", "addr2"}, w.AddressList())

	require.NoError(t, w.SetLabel("addr2", "savings"))
	info, ok := w.GetAddress("addr2")
	require.True(t, ok)
	require.Equal(t, "savings", info.Label)

	taproot := wallet.Taproot
	list := w.ListAddresses(&taproot)
	require.Len(t, list, 1)
	require.Equal(t, "savings", list[0].Label)
	require.Len(t, w.ListAddresses(nil), 2)

	require.NoError(t, w.SetLabel("txid", "rent"))
	require.Equal(t, []string{"addr2", "txid"}, w.LabelKeys())

	require.NoError(t, w.SetLabel("addr2", ""))
	info, _ = w.GetAddress("addr2")
	require.Empty(t, info.Label)

	require.Error(t, w.SetLabel(" ", "x"))

	_, ok = w.GetAddress("unknown")
	require.False(t, ok)
}

func TestDraftRecord(t *testing.T) {
	t.Parallel()

	d := domain.NewDraft("wallet", txbuilder.Snapshot{
		ID:    "draft",
		State: txbuilder.StateFeeFinalized,
		Inputs: []txbuilder.Utxo{
			{Vout: 1}, {Vout: 2},
		},
	}, 10)
	require.False(t, d.IsFinalized())
	require.False(t, d.IsAbandoned())

	keys := d.InputKeys()
	require.Len(t, keys, 2)
	require.Equal(t, uint32(2), keys[1].VOut)

	d.Update(txbuilder.Snapshot{ID: "draft", State: txbuilder.StateAbandoned})
	require.True(t, d.IsAbandoned())
	require.Equal(t, "wallet", d.WalletID)
	require.Equal(t, int64(10), d.CreatedAt)
}

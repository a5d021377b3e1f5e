package domain_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcvault/internal/core/domain"
)

func TestUtxoKey(t *testing.T) {
	t.Parallel()

	op := wire.OutPoint{Hash: chainhash.DoubleHashH([]byte("tx")), Index: 3}
	key := domain.NewUtxoKey(op)
	require.Equal(t, op.Hash.String(), key.TxID)
	require.Equal(t, op.Hash.String()+":3", key.String())

	got, err := key.OutPoint()
	require.NoError(t, err)
	require.Equal(t, op, got)

	_, err = domain.UtxoKey{TxID: "not an hash"}.OutPoint()
	require.Error(t, err)
}

func TestSpendConfirmUtxo(t *testing.T) {
	t.Parallel()

	u := domain.Utxo{}
	require.False(t, u.IsSpent())
	require.False(t, u.IsConfirmed())
	require.True(t, u.IsSpendable())

	u.Confirm(100)
	require.True(t, u.IsConfirmed())
	require.Equal(t, uint32(100), u.BlockHeight)

	u.Spend()
	require.True(t, u.IsSpent())
	require.False(t, u.IsSpendable())
}

func TestClaimReleaseUtxo(t *testing.T) {
	t.Parallel()

	u := domain.Utxo{}
	err := u.Claim("draft1")
	require.NoError(t, err)
	require.True(t, u.IsClaimed())
	require.False(t, u.IsSpendable())

	err = u.Claim("draft1")
	require.NoError(t, err)

	err = u.Claim("draft2")
	require.ErrorIs(t, err, domain.ErrDoubleSpendConflict)

	u.Release("draft2")
	require.Equal(t, "draft1", u.ClaimedBy)

	u.Release("draft1")
	require.False(t, u.IsClaimed())
}

func TestFailingClaimSpentUtxo(t *testing.T) {
	t.Parallel()

	u := domain.Utxo{Spent: true}
	err := u.Claim("draft1")
	require.ErrorIs(t, err, domain.ErrUtxoSpent)

	u = domain.Utxo{Spent: true, ClaimedBy: "draft1"}
	err = u.Claim("draft1")
	require.NoError(t, err)
}

func TestTransferUtxo(t *testing.T) {
	t.Parallel()

	u := domain.Utxo{ClaimedBy: "draft1"}
	err := u.Transfer("draft2", "draft3")
	require.ErrorIs(t, err, domain.ErrDoubleSpendConflict)

	err = u.Transfer("draft1", "draft2")
	require.NoError(t, err)
	require.Equal(t, "draft2", u.ClaimedBy)
}

package txbuilder_test

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/txbuilder"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

const (
	testSeedHex = "000102030405060708090a0b0c0d0e0f"
	testFeeRate = feeestimator.SatPerKVByte(2000)
)

var testNet = &chaincfg.RegressionNetParams

func TestSignAndFinalize(t *testing.T) {
	tests := []struct {
		name  string
		types []wallet.AddressType
	}{
		{"legacy", []wallet.AddressType{wallet.Legacy}},
		{"nested segwit", []wallet.AddressType{wallet.NestedSegwit}},
		{"native segwit", []wallet.AddressType{wallet.NativeSegwit}},
		{"taproot", []wallet.AddressType{wallet.Taproot}},
		{"mixed", wallet.AddressTypes()},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.draft(txbuilder.NewMemClaimer())

			utxos := make([]txbuilder.Utxo, 0, len(tt.types))
			for _, addrType := range tt.types {
				u := f.utxo(addrType, 100000)
				require.NoError(t, d.AddInput(u))
				utxos = append(utxos, u)
			}
			require.Equal(t, txbuilder.StateInputsAdded, d.State())

			amount := uint64(len(utxos))*100000 - 50000
			require.NoError(t, d.AddOutput(f.destination(), amount, txbuilder.OutputOpts{}))
			require.Equal(t, txbuilder.StateOutputsAdded, d.State())

			require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
				FeeRate: testFeeRate,
				Change:  f.change(wallet.NativeSegwit),
			}))
			require.Equal(t, txbuilder.StateFeeFinalized, d.State())
			require.Equal(t, 1, d.ChangeIndex())
			require.Equal(t, d.InputsTotal()-d.OutputsTotal(), d.Fee())
			for _, seq := range d.Sequences() {
				require.Equal(t, txbuilder.SequenceRBF, seq)
			}

			require.NoError(t, d.Sign(f.keychain))
			require.Equal(t, txbuilder.StateSigned, d.State())

			tx, err := d.Finalize()
			require.NoError(t, err)
			require.Equal(t, txbuilder.StateFinalized, d.State())

			verifyTx(t, tx, utxos)
			requireFeeFloor(t, tx, d.Fee(), testFeeRate)

			finalTx, err := d.FinalTx()
			require.NoError(t, err)
			require.Equal(t, tx.TxHash(), finalTx.TxHash())
		})
	}
}

func TestTaprootScriptPath(t *testing.T) {
	f := newFixture(t)

	leafPath := f.path(wallet.Taproot, 0)
	leafKey, err := f.keychain.PublicKey(leafPath)
	require.NoError(t, err)
	internalKey, err := f.keychain.PublicKey(f.path(wallet.Taproot, 0))
	require.NoError(t, err)
	otherKey, err := f.keychain.PublicKey(f.path(wallet.Taproot, 0))
	require.NoError(t, err)

	leafScript := checksigScript(t, schnorr.SerializePubKey(leafKey))
	otherScript := checksigScript(t, schnorr.SerializePubKey(otherKey))
	addr, err := wallet.TaprootAddressWithScripts(
		internalKey, [][]byte{otherScript, leafScript}, testNet,
	)
	require.NoError(t, err)

	var leaf *txbuilder.TapLeaf
	for _, l := range addr.Leaves {
		if hex.EncodeToString(l.Script) == hex.EncodeToString(leafScript) {
			leaf = &txbuilder.TapLeaf{Script: l.Script, ControlBlock: l.ControlBlock}
		}
	}
	require.NotNil(t, leaf)

	u := f.fund(addr.Script, 100000)
	u.AddressType = wallet.Taproot
	u.DerivationPath = leafPath
	u.PubKey = leafKey.SerializeCompressed()
	u.TapMerkleRoot = addr.MerkleRoot
	u.TapLeaf = leaf

	d := f.draft(txbuilder.NewMemClaimer())
	require.NoError(t, d.AddInput(u))
	require.NoError(t, d.AddOutput(f.destination(), 60000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.Taproot),
	}))

	b64, err := d.PSBT()
	require.NoError(t, err)
	require.NotEmpty(t, b64)

	require.NoError(t, d.Sign(f.keychain))
	tx, err := d.Finalize()
	require.NoError(t, err)
	require.Len(t, tx.TxIn[0].Witness, 3)

	verifyTx(t, tx, []txbuilder.Utxo{u})
	requireFeeFloor(t, tx, d.Fee(), testFeeRate)
}

func TestTaprootKeyPathWithScriptTree(t *testing.T) {
	f := newFixture(t)

	path := f.path(wallet.Taproot, 0)
	internalKey, err := f.keychain.PublicKey(path)
	require.NoError(t, err)
	addr, err := wallet.TaprootAddressWithScripts(
		internalKey, [][]byte{{txscript.OP_TRUE}}, testNet,
	)
	require.NoError(t, err)

	u := f.fund(addr.Script, 100000)
	u.AddressType = wallet.Taproot
	u.DerivationPath = path
	u.PubKey = internalKey.SerializeCompressed()
	u.TapMerkleRoot = addr.MerkleRoot

	d := f.draft(txbuilder.NewMemClaimer())
	require.NoError(t, d.AddInput(u))
	require.NoError(t, d.AddOutput(f.destination(), 60000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.NativeSegwit),
	}))
	require.NoError(t, d.Sign(f.keychain))
	tx, err := d.Finalize()
	require.NoError(t, err)
	require.Len(t, tx.TxIn[0].Witness, 1)

	verifyTx(t, tx, []txbuilder.Utxo{u})
}

func TestFinalizeFeeSelectsCoins(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()

	candidates := []txbuilder.Utxo{
		f.utxo(wallet.NativeSegwit, 50000),
		f.utxo(wallet.NativeSegwit, 30000),
		f.utxo(wallet.Taproot, 10000),
	}

	d := f.draft(claimer)
	require.NoError(t, d.AddOutput(f.destination(), 60000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate:    testFeeRate,
		Candidates: candidates,
		Change:     f.change(wallet.NativeSegwit),
	}))

	require.Len(t, d.Inputs(), 2)
	require.Equal(t, uint64(80000), d.InputsTotal())
	require.Equal(t, 1, d.ChangeIndex())
	require.Equal(t, d.InputsTotal()-d.OutputsTotal(), d.Fee())

	// Selected coins are claimed, the unused one is not.
	other := f.draft(claimer)
	err := other.AddInput(candidates[0])
	require.ErrorIs(t, err, txbuilder.ErrDoubleSpendConflict)
	require.NoError(t, other.AddInput(candidates[2]))

	require.NoError(t, d.Sign(f.keychain))
	tx, err := d.Finalize()
	require.NoError(t, err)
	verifyTx(t, tx, candidates[:2])
}

func TestFinalizeFeeFoldsDustChange(t *testing.T) {
	f := newFixture(t)

	d := f.draft(txbuilder.NewMemClaimer())
	u := f.utxo(wallet.NativeSegwit, 100000)
	require.NoError(t, d.AddInput(u))
	// Leaves less than dust once the fee is paid.
	require.NoError(t, d.AddOutput(f.destination(), 99500, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{FeeRate: testFeeRate}))

	require.Equal(t, -1, d.ChangeIndex())
	require.Len(t, d.Outputs(), 1)
	require.Equal(t, uint64(500), d.Fee())
}

func TestFinalizeFeeRequiresChange(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()

	d := f.draft(claimer)
	u := f.utxo(wallet.NativeSegwit, 100000)
	require.NoError(t, d.AddInput(u))
	require.NoError(t, d.AddOutput(f.destination(), 50000, txbuilder.OutputOpts{}))

	err := d.FinalizeFee(txbuilder.FeeOpts{FeeRate: testFeeRate})
	require.ErrorIs(t, err, txbuilder.ErrNullChange)
	require.Equal(t, txbuilder.StateOutputsAdded, d.State())
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t)

	d := f.draft(txbuilder.NewMemClaimer())
	require.NoError(t, d.AddInput(f.utxo(wallet.NativeSegwit, 10000)))
	require.NoError(t, d.AddOutput(f.destination(), 50000, txbuilder.OutputOpts{}))

	err := d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate:    testFeeRate,
		Candidates: []txbuilder.Utxo{f.utxo(wallet.Legacy, 20000)},
		Change:     f.change(wallet.NativeSegwit),
	})
	require.Error(t, err)
	require.Equal(t, txbuilder.StateOutputsAdded, d.State())
}

func TestDoubleSpendConflict(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()
	u := f.utxo(wallet.NativeSegwit, 100000)

	first := f.draft(claimer)
	require.NoError(t, first.AddInput(u))

	second := f.draft(claimer)
	err := second.AddInput(u)
	require.ErrorIs(t, err, txbuilder.ErrDoubleSpendConflict)

	var buildErr *txbuilder.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, txbuilder.InvariantClaim, buildErr.Invariant)

	require.NoError(t, first.Abandon())
	require.Equal(t, txbuilder.StateAbandoned, first.State())
	require.NoError(t, second.AddInput(u))

	err = first.Abandon()
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
}

func TestDuplicateInput(t *testing.T) {
	f := newFixture(t)
	u := f.utxo(wallet.Legacy, 100000)

	d := f.draft(txbuilder.NewMemClaimer())
	require.NoError(t, d.AddInput(u))
	err := d.AddInput(u)
	require.ErrorIs(t, err, txbuilder.ErrDuplicateInput)
	require.Len(t, d.Inputs(), 1)
}

func TestSequencePolicy(t *testing.T) {
	f := newFixture(t)

	t.Run("rbf", func(t *testing.T) {
		d := f.draft(txbuilder.NewMemClaimer())
		require.True(t, d.RBF())

		for _, seq := range []uint32{wire.MaxTxInSequenceNum, wire.MaxTxInSequenceNum - 1} {
			err := d.AddInputWithSequence(f.utxo(wallet.NativeSegwit, 10000), seq)
			require.ErrorIs(t, err, txbuilder.ErrInvalidSequence)

			var buildErr *txbuilder.BuildError
			require.True(t, errors.As(err, &buildErr))
			require.Equal(t, txbuilder.InvariantSequence, buildErr.Invariant)
		}
		require.NoError(t, d.AddInputWithSequence(f.utxo(wallet.NativeSegwit, 10000), 10))
		require.Equal(t, []uint32{10}, d.Sequences())
	})

	t.Run("no rbf", func(t *testing.T) {
		d, err := txbuilder.NewDraft(txbuilder.DraftOpts{
			Network:    testNet,
			Claimer:    txbuilder.NewMemClaimer(),
			DisableRBF: true,
		})
		require.NoError(t, err)
		require.False(t, d.RBF())

		err = d.AddInputWithSequence(f.utxo(wallet.NativeSegwit, 10000), txbuilder.SequenceRBF)
		require.ErrorIs(t, err, txbuilder.ErrInvalidSequence)

		require.NoError(t, d.AddInput(f.utxo(wallet.NativeSegwit, 10000)))
		require.Equal(t, []uint32{txbuilder.SequenceFinal}, d.Sequences())
	})
}

func TestDustOutput(t *testing.T) {
	f := newFixture(t)
	d := f.draft(txbuilder.NewMemClaimer())

	err := d.AddOutput(f.destination(), txbuilder.DefaultDustThreshold-1, txbuilder.OutputOpts{})
	require.ErrorIs(t, err, txbuilder.ErrDustOutput)
	var buildErr *txbuilder.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, txbuilder.InvariantDustFloor, buildErr.Invariant)

	require.NoError(t, d.AddOutput(f.destination(), txbuilder.DefaultDustThreshold, txbuilder.OutputOpts{}))

	opReturn, err := txscript.NullDataScript([]byte("btcvault"))
	require.NoError(t, err)
	require.NoError(t, d.AddOutput(opReturn, 0, txbuilder.OutputOpts{AllowDust: true}))
	require.Len(t, d.Outputs(), 2)

	err = d.AddOutput(nil, 1000, txbuilder.OutputOpts{})
	require.ErrorIs(t, err, txbuilder.ErrNullScript)
}

func TestAddOutputToAddress(t *testing.T) {
	f := newFixture(t)
	d := f.draft(txbuilder.NewMemClaimer())

	script := f.destination()
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, testNet)
	require.NoError(t, err)

	require.NoError(t, d.AddOutputToAddress(addrs[0].EncodeAddress(), 10000, txbuilder.OutputOpts{}))
	require.Equal(t, script, d.Outputs()[0].Script)

	mainnetAddr, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.MainNetParams)
	require.NoError(t, err)
	err = d.AddOutputToAddress(mainnetAddr.EncodeAddress(), 10000, txbuilder.OutputOpts{})
	require.Error(t, err)
}

func TestFeeTooLow(t *testing.T) {
	f := newFixture(t)
	d := f.draft(txbuilder.NewMemClaimer())
	require.NoError(t, d.AddInput(f.utxo(wallet.NativeSegwit, 100000)))
	require.NoError(t, d.AddOutput(f.destination(), 50000, txbuilder.OutputOpts{}))

	err := d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: feeestimator.DefaultMinRelayFee - 1,
		Change:  f.change(wallet.NativeSegwit),
	})
	require.ErrorIs(t, err, txbuilder.ErrFeeTooLow)
	var buildErr *txbuilder.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, txbuilder.InvariantFeeFloor, buildErr.Invariant)
}

func TestInvalidState(t *testing.T) {
	f := newFixture(t)
	d := f.draft(txbuilder.NewMemClaimer())

	_, err := d.PSBT()
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	require.ErrorIs(t, d.Sign(f.keychain), txbuilder.ErrInvalidState)
	_, err = d.Finalize()
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	_, err = d.FinalTx()
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)

	require.NoError(t, d.AddInput(f.utxo(wallet.NativeSegwit, 100000)))
	err = d.FinalizeFee(txbuilder.FeeOpts{FeeRate: testFeeRate})
	require.ErrorIs(t, err, txbuilder.ErrNullOutputs)

	require.NoError(t, d.AddOutput(f.destination(), 50000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.NativeSegwit),
	}))

	err = d.AddInput(f.utxo(wallet.NativeSegwit, 100000))
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	err = d.AddOutput(f.destination(), 1000, txbuilder.OutputOpts{})
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	err = d.FinalizeFee(txbuilder.FeeOpts{FeeRate: testFeeRate})
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	_, err = d.Finalize()
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	_, err = d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: 2 * testFeeRate})
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
}

func TestAbandonFinalizedDraft(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()

	utxos := []txbuilder.Utxo{f.utxo(wallet.NativeSegwit, 100000)}
	d := f.finalizedDraft(claimer, utxos, 50000)

	err := d.Abandon()
	require.ErrorIs(t, err, txbuilder.ErrInvalidState)
	require.Equal(t, txbuilder.StateFinalized, d.State())

	_, err = d.FinalTx()
	require.NoError(t, err)

	other := f.draft(claimer)
	err = other.AddInput(utxos[0])
	require.ErrorIs(t, err, txbuilder.ErrDoubleSpendConflict)
}

func TestAbandonRestoredReplacement(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()

	utxos := []txbuilder.Utxo{f.utxo(wallet.NativeSegwit, 100000)}
	d := f.finalizedDraft(claimer, utxos, 50000)

	bumped, err := d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: 5 * testFeeRate})
	require.NoError(t, err)

	snap, err := bumped.Snapshot()
	require.NoError(t, err)
	require.Equal(t, d.OutPoints(), snap.Inherited)

	restored, err := txbuilder.Restore(f.draftOpts(claimer), *snap)
	require.NoError(t, err)
	require.NoError(t, restored.Abandon())

	// The finalized draft owns its inputs again and can be bumped anew.
	other := f.draft(claimer)
	err = other.AddInput(utxos[0])
	require.ErrorIs(t, err, txbuilder.ErrDoubleSpendConflict)

	_, err = d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: 5 * testFeeRate})
	require.NoError(t, err)
}

func TestFinalizeRequiresAllInputsSigned(t *testing.T) {
	f := newFixture(t)
	d := f.draft(txbuilder.NewMemClaimer())

	signed := f.utxo(wallet.NativeSegwit, 100000)
	foreign := f.utxo(wallet.NativeSegwit, 100000)
	foreign.DerivationPath = nil
	require.NoError(t, d.AddInput(signed))
	require.NoError(t, d.AddInput(foreign))
	require.NoError(t, d.AddOutput(f.destination(), 150000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.NativeSegwit),
	}))
	require.NoError(t, d.Sign(f.keychain))

	_, err := d.Finalize()
	require.ErrorIs(t, err, txbuilder.ErrInputsNotSigned)
}

func TestSigningFailed(t *testing.T) {
	f := newFixture(t)
	d := f.draft(txbuilder.NewMemClaimer())

	u := f.utxo(wallet.NativeSegwit, 100000)
	u.DerivationPath = f.path(wallet.NativeSegwit, 0)
	require.NoError(t, d.AddInput(u))
	require.NoError(t, d.AddOutput(f.destination(), 50000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.NativeSegwit),
	}))

	require.ErrorIs(t, d.Sign(f.keychain), txbuilder.ErrSigningFailed)
	require.ErrorIs(t, d.Sign(nil), txbuilder.ErrNullSigner)
}

func TestBumpFee(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()

	utxos := []txbuilder.Utxo{
		f.utxo(wallet.Taproot, 100000),
		f.utxo(wallet.NestedSegwit, 100000),
	}
	d := f.finalizedDraft(claimer, utxos, 150000)

	_, err := d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: testFeeRate})
	require.ErrorIs(t, err, txbuilder.ErrFeeNotIncreased)

	bumped, err := d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: 5 * testFeeRate})
	require.NoError(t, err)
	require.Equal(t, txbuilder.StateFeeFinalized, bumped.State())
	require.Equal(t, d.ID(), bumped.Replaces())
	require.NotEqual(t, d.ID(), bumped.ID())
	require.Equal(t, d.OutPoints(), bumped.OutPoints())
	require.Equal(t, d.Sequences(), bumped.Sequences())
	require.Equal(t, d.Outputs()[0], bumped.Outputs()[0])
	require.Greater(t, bumped.Fee(), d.Fee())

	// Claims moved to the replacement.
	other := f.draft(claimer)
	require.ErrorIs(t, other.AddInput(utxos[0]), txbuilder.ErrDoubleSpendConflict)

	// Abandoning the replacement hands the inputs back to the finalized
	// draft, which can't be abandoned.
	require.NoError(t, bumped.Abandon())
	require.ErrorIs(t, other.AddInput(utxos[0]), txbuilder.ErrDoubleSpendConflict)
	require.ErrorIs(t, d.Abandon(), txbuilder.ErrInvalidState)
	require.Equal(t, txbuilder.StateFinalized, d.State())
	_, err = d.FinalTx()
	require.NoError(t, err)

	bumped, err = d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: 5 * testFeeRate})
	require.NoError(t, err)
	require.NoError(t, bumped.Sign(f.keychain))
	tx, err := bumped.Finalize()
	require.NoError(t, err)
	verifyTx(t, tx, utxos)

	oldTx, err := d.FinalTx()
	require.NoError(t, err)
	minIncrease := feeestimator.DefaultMinRelayFee.FeeForVSize(vsize(tx))
	require.GreaterOrEqual(t, bumped.Fee(), d.Fee()+minIncrease)
	require.NotEqual(t, oldTx.TxHash(), tx.TxHash())
}

func TestBumpFeeWithoutRBF(t *testing.T) {
	f := newFixture(t)
	d, err := txbuilder.NewDraft(txbuilder.DraftOpts{
		Network:    testNet,
		Claimer:    txbuilder.NewMemClaimer(),
		DisableRBF: true,
	})
	require.NoError(t, err)

	require.NoError(t, d.AddInput(f.utxo(wallet.NativeSegwit, 100000)))
	require.NoError(t, d.AddOutput(f.destination(), 50000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.NativeSegwit),
	}))
	require.NoError(t, d.Sign(f.keychain))
	_, err = d.Finalize()
	require.NoError(t, err)

	_, err = d.BumpFee(txbuilder.BumpFeeOpts{FeeRate: 5 * testFeeRate})
	require.ErrorIs(t, err, txbuilder.ErrInvalidSequence)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	claimer := txbuilder.NewMemClaimer()

	utxos := []txbuilder.Utxo{
		f.utxo(wallet.Legacy, 100000),
		f.utxo(wallet.NativeSegwit, 100000),
	}
	d := f.draft(claimer)
	for _, u := range utxos {
		require.NoError(t, d.AddInput(u))
	}
	require.NoError(t, d.AddOutput(f.destination(), 150000, txbuilder.OutputOpts{}))

	snap, err := d.Snapshot()
	require.NoError(t, err)
	require.Empty(t, snap.PSBT)

	restored, err := txbuilder.Restore(f.draftOpts(claimer), *snap)
	require.NoError(t, err)
	require.Equal(t, d.ID(), restored.ID())
	require.Equal(t, txbuilder.StateOutputsAdded, restored.State())

	require.NoError(t, restored.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.Legacy),
	}))
	snap, err = restored.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, snap.PSBT)

	restored, err = txbuilder.Restore(f.draftOpts(claimer), *snap)
	require.NoError(t, err)
	require.Equal(t, snap.Fee, restored.Fee())
	require.Equal(t, snap.ChangeIndex, restored.ChangeIndex())

	require.NoError(t, restored.Sign(f.keychain))
	tx, err := restored.Finalize()
	require.NoError(t, err)
	verifyTx(t, tx, utxos)

	snap, err = restored.Snapshot()
	require.NoError(t, err)
	final, err := txbuilder.Restore(f.draftOpts(claimer), *snap)
	require.NoError(t, err)
	finalTx, err := final.FinalTx()
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), finalTx.TxHash())

	// Claimed by another draft.
	snap.ID = "other"
	_, err = txbuilder.Restore(f.draftOpts(claimer), *snap)
	require.ErrorIs(t, err, txbuilder.ErrDoubleSpendConflict)

	snap.PSBT = "cHNidP8B"
	_, err = txbuilder.Restore(f.draftOpts(txbuilder.NewMemClaimer()), *snap)
	require.ErrorIs(t, err, txbuilder.ErrInvalidPSBT)
}

func TestCombine(t *testing.T) {
	f := newFixture(t)

	utxos := []txbuilder.Utxo{
		f.utxo(wallet.NestedSegwit, 100000),
		f.utxo(wallet.Taproot, 100000),
	}
	d := f.draft(txbuilder.NewMemClaimer())
	for _, u := range utxos {
		require.NoError(t, d.AddInput(u))
	}
	require.NoError(t, d.AddOutput(f.destination(), 150000, txbuilder.OutputOpts{}))
	require.NoError(t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.Taproot),
	}))

	snap, err := d.Snapshot()
	require.NoError(t, err)
	cosigner, err := txbuilder.Restore(f.draftOpts(txbuilder.NewMemClaimer()), *snap)
	require.NoError(t, err)
	require.NoError(t, cosigner.Sign(f.keychain))
	signed, err := cosigner.PSBT()
	require.NoError(t, err)

	require.NoError(t, d.Combine(signed))
	require.Equal(t, txbuilder.StateSigned, d.State())
	tx, err := d.Finalize()
	require.NoError(t, err)
	verifyTx(t, tx, utxos)
}

type fixture struct {
	t        *testing.T
	keychain *wallet.Keychain
	index    uint32
}

func newFixture(t *testing.T) *fixture {
	seed, _ := hex.DecodeString(testSeedHex)
	keychain, err := wallet.NewKeychain(wallet.KeychainOpts{
		Seed:    seed,
		Network: testNet,
	})
	require.NoError(t, err)
	t.Cleanup(keychain.Close)
	return &fixture{t: t, keychain: keychain}
}

func (f *fixture) next() uint32 {
	f.index++
	return f.index
}

func (f *fixture) path(addrType wallet.AddressType, change uint32) wallet.DerivationPath {
	path, err := wallet.AddressPath(addrType, testNet, 0, change, f.next())
	require.NoError(f.t, err)
	return path
}

func (f *fixture) draftOpts(claimer txbuilder.Claimer) txbuilder.DraftOpts {
	return txbuilder.DraftOpts{
		Network:           testNet,
		Claimer:           claimer,
		MasterFingerprint: f.keychain.MasterFingerprint(),
	}
}

func (f *fixture) draft(claimer txbuilder.Claimer) *txbuilder.Draft {
	d, err := txbuilder.NewDraft(f.draftOpts(claimer))
	require.NoError(f.t, err)
	return d
}

func (f *fixture) finalizedDraft(
	claimer txbuilder.Claimer, utxos []txbuilder.Utxo, amount uint64,
) *txbuilder.Draft {
	d := f.draft(claimer)
	for _, u := range utxos {
		require.NoError(f.t, d.AddInput(u))
	}
	require.NoError(f.t, d.AddOutput(f.destination(), amount, txbuilder.OutputOpts{}))
	require.NoError(f.t, d.FinalizeFee(txbuilder.FeeOpts{
		FeeRate: testFeeRate,
		Change:  f.change(wallet.NativeSegwit),
	}))
	require.NoError(f.t, d.Sign(f.keychain))
	_, err := d.Finalize()
	require.NoError(f.t, err)
	return d
}

func (f *fixture) fund(script []byte, value uint64) txbuilder.Utxo {
	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: f.next()}, nil, nil))
	prevTx.AddTxOut(wire.NewTxOut(int64(value), script))
	return txbuilder.Utxo{
		TxID:   prevTx.TxHash(),
		Vout:   0,
		Value:  value,
		Script: script,
		PrevTx: prevTx,
	}
}

func (f *fixture) utxo(addrType wallet.AddressType, value uint64) txbuilder.Utxo {
	path := f.path(addrType, 0)
	pubkey, err := f.keychain.PublicKey(path)
	require.NoError(f.t, err)
	addr, err := wallet.AddressFor(pubkey, addrType, testNet)
	require.NoError(f.t, err)

	u := f.fund(addr.Script, value)
	u.AddressType = addrType
	u.DerivationPath = path
	u.PubKey = pubkey.SerializeCompressed()
	return u
}

func (f *fixture) change(addrType wallet.AddressType) *txbuilder.Change {
	path := f.path(addrType, 1)
	pubkey, err := f.keychain.PublicKey(path)
	require.NoError(f.t, err)
	addr, err := wallet.AddressFor(pubkey, addrType, testNet)
	require.NoError(f.t, err)
	return &txbuilder.Change{
		Script:         addr.Script,
		AddressType:    addrType,
		DerivationPath: path,
		PubKey:         pubkey.SerializeCompressed(),
	}
}

func (f *fixture) destination() []byte {
	path, err := wallet.AddressPath(wallet.NativeSegwit, testNet, 1, 0, 0)
	require.NoError(f.t, err)
	pubkey, err := f.keychain.PublicKey(path)
	require.NoError(f.t, err)
	addr, err := wallet.AddressFor(pubkey, wallet.NativeSegwit, testNet)
	require.NoError(f.t, err)
	return addr.Script
}

func checksigScript(t *testing.T, xOnlyKey []byte) []byte {
	script, err := txscript.NewScriptBuilder().
		AddData(xOnlyKey).AddOp(txscript.OP_CHECKSIG).Script()
	require.NoError(t, err)
	return script
}

func verifyTx(t *testing.T, tx *wire.MsgTx, utxos []txbuilder.Utxo) {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	for _, u := range utxos {
		prevOuts[u.OutPoint()] = wire.NewTxOut(int64(u.Value), u.Script)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, in := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(in.PreviousOutPoint)
		require.NotNil(t, prevOut)
		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevOut.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func vsize(tx *wire.MsgTx) int {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	return int((weight + 3) / 4)
}

func requireFeeFloor(
	t *testing.T, tx *wire.MsgTx, fee uint64, rate feeestimator.SatPerKVByte,
) {
	require.GreaterOrEqual(t, fee, rate.FeeForVSize(vsize(tx)))
}

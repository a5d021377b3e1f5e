package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

func (d *Draft) newPacket() (*psbt.Packet, error) {
	packet, err := psbt.NewFromUnsignedTx(d.UnsignedTx())
	if err != nil {
		return nil, err
	}

	for i, in := range d.inputs {
		if err := d.fillInput(&packet.Inputs[i], in.utxo); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	if d.changeIndex >= 0 && d.change != nil {
		if err := d.fillChangeOutput(&packet.Outputs[d.changeIndex]); err != nil {
			return nil, fmt.Errorf("change output: %w", err)
		}
	}
	return packet, nil
}

func (d *Draft) fillInput(pInput *psbt.PInput, u Utxo) error {
	prevOut := wire.NewTxOut(int64(u.Value), u.Script)

	var pubkey *btcec.PublicKey
	if len(u.PubKey) > 0 {
		key, err := btcec.ParsePubKey(u.PubKey)
		if err != nil {
			return err
		}
		pubkey = key
	}

	switch u.AddressType {
	case wallet.Legacy:
		pInput.SighashType = txscript.SigHashAll
		if u.PrevTx != nil {
			pInput.NonWitnessUtxo = u.PrevTx
		} else {
			pInput.WitnessUtxo = prevOut
		}
	case wallet.NestedSegwit, wallet.NativeSegwit:
		pInput.SighashType = txscript.SigHashAll
		pInput.WitnessUtxo = prevOut
		if u.AddressType == wallet.NestedSegwit && pubkey != nil {
			addr, err := wallet.AddressFor(pubkey, u.AddressType, d.opts.Network)
			if err != nil {
				return err
			}
			pInput.RedeemScript = addr.RedeemScript
		}
	case wallet.Taproot:
		pInput.SighashType = txscript.SigHashDefault
		pInput.WitnessUtxo = prevOut
		if len(u.TapMerkleRoot) > 0 {
			pInput.TaprootMerkleRoot = append([]byte{}, u.TapMerkleRoot...)
		}
		if u.TapLeaf != nil {
			pInput.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
				ControlBlock: u.TapLeaf.ControlBlock,
				Script:       u.TapLeaf.Script,
				LeafVersion:  txscript.BaseLeafVersion,
			}}
		}
		if pubkey != nil && u.TapLeaf == nil {
			pInput.TaprootInternalKey = schnorr.SerializePubKey(pubkey)
		}
	}

	if pubkey != nil && len(u.DerivationPath) > 0 {
		d.addDerivation(
			&pInput.Bip32Derivation, &pInput.TaprootBip32Derivation,
			pubkey, u.AddressType, u.DerivationPath, u.TapLeaf,
		)
	}
	return nil
}

func (d *Draft) fillChangeOutput(pOutput *psbt.POutput) error {
	if len(d.change.PubKey) <= 0 {
		return nil
	}
	pubkey, err := btcec.ParsePubKey(d.change.PubKey)
	if err != nil {
		return err
	}

	switch d.change.AddressType {
	case wallet.NestedSegwit:
		addr, err := wallet.AddressFor(pubkey, d.change.AddressType, d.opts.Network)
		if err != nil {
			return err
		}
		pOutput.RedeemScript = addr.RedeemScript
	case wallet.Taproot:
		pOutput.TaprootInternalKey = schnorr.SerializePubKey(pubkey)
	}
	if len(d.change.DerivationPath) > 0 {
		d.addDerivation(
			&pOutput.Bip32Derivation, &pOutput.TaprootBip32Derivation,
			pubkey, d.change.AddressType, d.change.DerivationPath, nil,
		)
	}
	return nil
}

func (d *Draft) addDerivation(
	derivations *[]*psbt.Bip32Derivation,
	tapDerivations *[]*psbt.TaprootBip32Derivation,
	pubkey *btcec.PublicKey, addrType wallet.AddressType,
	path wallet.DerivationPath, leaf *TapLeaf,
) {
	if addrType != wallet.Taproot {
		*derivations = []*psbt.Bip32Derivation{{
			PubKey:               pubkey.SerializeCompressed(),
			MasterKeyFingerprint: d.opts.MasterFingerprint,
			Bip32Path:            append([]uint32{}, path...),
		}}
		return
	}

	var leafHashes [][]byte
	if leaf != nil {
		leafHash := txscript.NewBaseTapLeaf(leaf.Script).TapHash()
		leafHashes = [][]byte{leafHash[:]}
	}
	*tapDerivations = []*psbt.TaprootBip32Derivation{{
		XOnlyPubKey:          schnorr.SerializePubKey(pubkey),
		LeafHashes:           leafHashes,
		MasterKeyFingerprint: d.opts.MasterFingerprint,
		Bip32Path:            append([]uint32{}, path...),
	}}
}

// PSBT returns the base64 encoded PSBT of the draft. It is available once
// the fee is finalized.
func (d *Draft) PSBT() (string, error) {
	if d.packet == nil {
		return "", buildError(InvariantState, fmt.Errorf(
			"%w: draft is %s", ErrInvalidState, d.state,
		))
	}
	return d.packet.B64Encode()
}

// Snapshot is the persistable state of a draft.
type Snapshot struct {
	ID       string
	Replaces string
	// Inherited are the inputs taken over from the replaced draft.
	Inherited   []wire.OutPoint
	State       State
	Inputs      []Utxo
	Sequences   []uint32
	Outputs     []Output
	Change      *Change
	ChangeIndex int
	FeeRate     feeestimator.SatPerKVByte
	Fee         uint64
	// PSBT is set from FeeFinalized on.
	PSBT string
}

// Snapshot returns the current state of the draft.
func (d *Draft) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{
		ID:          d.ID(),
		Replaces:    d.replaces,
		Inherited:   d.inherited,
		State:       d.state,
		Inputs:      d.Inputs(),
		Sequences:   d.Sequences(),
		Outputs:     d.Outputs(),
		Change:      d.change,
		ChangeIndex: d.changeIndex,
		FeeRate:     d.feeRate,
		Fee:         d.fee,
	}
	if d.packet != nil {
		b64, err := d.packet.B64Encode()
		if err != nil {
			return nil, err
		}
		snap.PSBT = b64
	}
	return snap, nil
}

// Restore rebuilds a draft from a snapshot. The claims of the draft on its
// inputs are asserted again, unless it was abandoned. The ID of opts is
// overridden by the snapshot's.
func Restore(opts DraftOpts, snap Snapshot) (*Draft, error) {
	opts.ID = snap.ID
	d, err := NewDraft(opts)
	if err != nil {
		return nil, err
	}
	if len(snap.Sequences) != len(snap.Inputs) {
		return nil, fmt.Errorf("%w: %d sequences for %d inputs",
			ErrInvalidPSBT, len(snap.Sequences), len(snap.Inputs))
	}

	for i, u := range snap.Inputs {
		d.inputs = append(d.inputs, input{u, snap.Sequences[i]})
	}
	d.outputs = append([]Output{}, snap.Outputs...)
	d.change = snap.Change
	d.changeIndex = snap.ChangeIndex
	d.feeRate = snap.FeeRate
	d.fee = snap.Fee
	d.replaces = snap.Replaces
	d.inherited = snap.Inherited
	d.state = snap.State

	if snap.State >= StateFeeFinalized && snap.State != StateAbandoned {
		if len(snap.PSBT) <= 0 {
			return nil, fmt.Errorf("%w: missing psbt", ErrInvalidPSBT)
		}
		packet, err := psbt.NewFromRawBytes(bytes.NewBufferString(snap.PSBT), true)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPSBT, err)
		}
		if packet.UnsignedTx.TxHash() != d.UnsignedTx().TxHash() {
			return nil, fmt.Errorf(
				"%w: unsigned tx does not match inputs and outputs", ErrInvalidPSBT,
			)
		}
		d.packet = packet
		if snap.State == StateFinalized {
			if d.finalTx, err = psbt.Extract(packet); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrInvalidPSBT, err)
			}
		}
	}

	if d.state != StateAbandoned && len(d.inputs) > 0 {
		if err := d.opts.Claimer.Claim(d.ID(), d.OutPoints()); err != nil {
			return nil, buildError(InvariantClaim, err)
		}
	}
	return d, nil
}

// Combine merges the signatures of a PSBT signed elsewhere, for example by
// a hardware device, into the draft.
func (d *Draft) Combine(b64 string) error {
	if err := d.requireState(StateFeeFinalized, StateSigned); err != nil {
		return err
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewBufferString(b64), true)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPSBT, err)
	}
	if packet.UnsignedTx.TxHash() != d.packet.UnsignedTx.TxHash() {
		return fmt.Errorf("%w: unsigned tx does not match draft", ErrInvalidPSBT)
	}

	signed := false
	for i := range packet.Inputs {
		in, ours := packet.Inputs[i], &d.packet.Inputs[i]
		if len(in.PartialSigs) > 0 {
			ours.PartialSigs = in.PartialSigs
			if len(in.RedeemScript) > 0 {
				ours.RedeemScript = in.RedeemScript
			}
			signed = true
		}
		if len(in.TaprootKeySpendSig) > 0 {
			ours.TaprootKeySpendSig = in.TaprootKeySpendSig
			signed = true
		}
		if len(in.TaprootScriptSpendSig) > 0 {
			ours.TaprootScriptSpendSig = in.TaprootScriptSpendSig
			signed = true
		}
	}
	if signed {
		d.state = StateSigned
	}
	return nil
}

package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

// Signer supplies the private key of a derivation path. *wallet.Keychain
// is a Signer.
type Signer interface {
	PrivateKey(path wallet.DerivationPath) (*btcec.PrivateKey, error)
}

// Sign signs every input with a derivation path. Inputs without one are
// left for someone else to sign through the PSBT, so the draft can be
// partially signed. Every key is checked against the script it is
// supposed to unlock before signing.
func (d *Draft) Sign(signer Signer) error {
	if signer == nil {
		return ErrNullSigner
	}
	if err := d.requireState(StateFeeFinalized, StateSigned); err != nil {
		return err
	}

	tx := d.packet.UnsignedTx
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(d.inputs))
	for _, in := range d.inputs {
		prevOuts[in.utxo.OutPoint()] = wire.NewTxOut(
			int64(in.utxo.Value), in.utxo.Script,
		)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, in := range d.inputs {
		if len(in.utxo.DerivationPath) <= 0 {
			continue
		}
		if err := d.signInput(signer, tx, sigHashes, i, in.utxo); err != nil {
			return fmt.Errorf("%w: input %d: %s", ErrSigningFailed, i, err)
		}
	}

	d.state = StateSigned
	return nil
}

func (d *Draft) signInput(
	signer Signer, tx *wire.MsgTx, sigHashes *txscript.TxSigHashes,
	index int, u Utxo,
) error {
	key, err := signer.PrivateKey(u.DerivationPath)
	if err != nil {
		return err
	}
	defer key.Zero()

	pubkey := key.PubKey()
	pInput := &d.packet.Inputs[index]

	if u.AddressType == wallet.Taproot {
		if u.TapLeaf != nil {
			return d.signTapLeaf(tx, sigHashes, index, u, key, pInput)
		}
		return d.signTaprootKeyPath(tx, sigHashes, index, u, key, pInput)
	}

	addr, err := wallet.AddressFor(pubkey, u.AddressType, d.opts.Network)
	if err != nil {
		return err
	}
	if !bytes.Equal(addr.Script, u.Script) {
		return fmt.Errorf("key at %s does not unlock script", u.DerivationPath)
	}

	var sig []byte
	switch u.AddressType {
	case wallet.Legacy:
		sig, err = txscript.RawTxInSignature(
			tx, index, u.Script, txscript.SigHashAll, key,
		)
	case wallet.NestedSegwit:
		pInput.RedeemScript = addr.RedeemScript
		sig, err = txscript.RawTxInWitnessSignature(
			tx, sigHashes, index, int64(u.Value), addr.RedeemScript,
			txscript.SigHashAll, key,
		)
	default:
		sig, err = txscript.RawTxInWitnessSignature(
			tx, sigHashes, index, int64(u.Value), u.Script,
			txscript.SigHashAll, key,
		)
	}
	if err != nil {
		return err
	}

	pInput.PartialSigs = []*psbt.PartialSig{{
		PubKey:    pubkey.SerializeCompressed(),
		Signature: sig,
	}}
	d.addDerivation(
		&pInput.Bip32Derivation, &pInput.TaprootBip32Derivation,
		pubkey, u.AddressType, u.DerivationPath, nil,
	)
	return nil
}

func (d *Draft) signTaprootKeyPath(
	tx *wire.MsgTx, sigHashes *txscript.TxSigHashes, index int, u Utxo,
	key *btcec.PrivateKey, pInput *psbt.PInput,
) error {
	pubkey := key.PubKey()
	outputKey := txscript.ComputeTaprootOutputKey(pubkey, u.TapMerkleRoot)
	if !bytes.Equal(schnorr.SerializePubKey(outputKey), witnessProgram(u.Script)) {
		return fmt.Errorf("key at %s does not unlock script", u.DerivationPath)
	}

	sig, err := txscript.RawTxInTaprootSignature(
		tx, sigHashes, index, int64(u.Value), u.Script, u.TapMerkleRoot,
		txscript.SigHashDefault, key,
	)
	if err != nil {
		return err
	}

	pInput.TaprootKeySpendSig = sig
	pInput.TaprootInternalKey = schnorr.SerializePubKey(pubkey)
	d.addDerivation(
		&pInput.Bip32Derivation, &pInput.TaprootBip32Derivation,
		pubkey, u.AddressType, u.DerivationPath, nil,
	)
	return nil
}

func (d *Draft) signTapLeaf(
	tx *wire.MsgTx, sigHashes *txscript.TxSigHashes, index int, u Utxo,
	key *btcec.PrivateKey, pInput *psbt.PInput,
) error {
	controlBlock, err := txscript.ParseControlBlock(u.TapLeaf.ControlBlock)
	if err != nil {
		return err
	}
	if err := txscript.VerifyTaprootLeafCommitment(
		controlBlock, witnessProgram(u.Script), u.TapLeaf.Script,
	); err != nil {
		return err
	}
	xOnlyKey := schnorr.SerializePubKey(key.PubKey())
	if !bytes.Contains(u.TapLeaf.Script, xOnlyKey) {
		return fmt.Errorf("key at %s is not part of leaf script", u.DerivationPath)
	}

	leaf := txscript.NewBaseTapLeaf(u.TapLeaf.Script)
	sig, err := txscript.RawTxInTapscriptSignature(
		tx, sigHashes, index, int64(u.Value), u.Script, leaf,
		txscript.SigHashDefault, key,
	)
	if err != nil {
		return err
	}

	leafHash := leaf.TapHash()
	pInput.TaprootScriptSpendSig = []*psbt.TaprootScriptSpendSig{{
		XOnlyPubKey: xOnlyKey,
		LeafHash:    leafHash[:],
		Signature:   sig,
		SigHash:     txscript.SigHashDefault,
	}}
	d.addDerivation(
		&pInput.Bip32Derivation, &pInput.TaprootBip32Derivation,
		key.PubKey(), u.AddressType, u.DerivationPath, u.TapLeaf,
	)
	return nil
}

// Finalize turns the signatures of the PSBT into the final scriptSigs and
// witnesses and extracts the signed transaction. Every input must be
// signed. The draft can't be changed afterwards, only replaced with
// BumpFee.
func (d *Draft) Finalize() (*wire.MsgTx, error) {
	if err := d.requireState(StateSigned); err != nil {
		return nil, err
	}
	for i := range d.inputs {
		if !isSigned(&d.packet.Inputs[i]) {
			return nil, buildError(InvariantState, fmt.Errorf(
				"%w: input %d", ErrInputsNotSigned, i,
			))
		}
	}

	for i, in := range d.inputs {
		if err := finalizeInput(&d.packet.Inputs[i], in.utxo); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	tx, err := psbt.Extract(d.packet)
	if err != nil {
		return nil, err
	}

	d.finalTx = tx
	d.state = StateFinalized
	return tx.Copy(), nil
}

func isSigned(pInput *psbt.PInput) bool {
	return len(pInput.PartialSigs) > 0 ||
		len(pInput.TaprootKeySpendSig) > 0 ||
		len(pInput.TaprootScriptSpendSig) > 0
}

func finalizeInput(pInput *psbt.PInput, u Utxo) error {
	var (
		scriptSig []byte
		witness   wire.TxWitness
		err       error
	)

	switch u.AddressType {
	case wallet.Legacy:
		sig := pInput.PartialSigs[0]
		scriptSig, err = txscript.NewScriptBuilder().
			AddData(sig.Signature).AddData(sig.PubKey).Script()
	case wallet.NestedSegwit:
		if len(pInput.RedeemScript) <= 0 {
			return fmt.Errorf("missing redeem script")
		}
		sig := pInput.PartialSigs[0]
		scriptSig, err = txscript.NewScriptBuilder().
			AddData(pInput.RedeemScript).Script()
		witness = wire.TxWitness{sig.Signature, sig.PubKey}
	case wallet.NativeSegwit:
		sig := pInput.PartialSigs[0]
		witness = wire.TxWitness{sig.Signature, sig.PubKey}
	case wallet.Taproot:
		if len(pInput.TaprootKeySpendSig) > 0 {
			witness = wire.TxWitness{pInput.TaprootKeySpendSig}
			break
		}
		if u.TapLeaf == nil {
			return fmt.Errorf("missing tap leaf")
		}
		sig := pInput.TaprootScriptSpendSig[0]
		signature := sig.Signature
		if sig.SigHash != txscript.SigHashDefault {
			signature = append(append([]byte{}, signature...), byte(sig.SigHash))
		}
		witness = wire.TxWitness{signature, u.TapLeaf.Script, u.TapLeaf.ControlBlock}
	}
	if err != nil {
		return err
	}

	if len(witness) > 0 {
		var buf bytes.Buffer
		if err := psbt.WriteTxWitness(&buf, witness); err != nil {
			return err
		}
		pInput.FinalScriptWitness = buf.Bytes()
	}
	pInput.FinalScriptSig = scriptSig

	pInput.PartialSigs = nil
	pInput.SighashType = 0
	pInput.RedeemScript = nil
	pInput.WitnessScript = nil
	pInput.Bip32Derivation = nil
	pInput.TaprootKeySpendSig = nil
	pInput.TaprootScriptSpendSig = nil
	pInput.TaprootLeafScript = nil
	pInput.TaprootBip32Derivation = nil
	pInput.TaprootInternalKey = nil
	pInput.TaprootMerkleRoot = nil
	return nil
}

func witnessProgram(script []byte) []byte {
	if len(script) != 34 {
		return nil
	}
	return script[2:]
}

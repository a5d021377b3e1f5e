package domain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

// UtxoKey represent the ID of an Utxo, composed by its txid and vout.
type UtxoKey struct {
	TxID string
	VOut uint32
}

// NewUtxoKey ...
func NewUtxoKey(op wire.OutPoint) UtxoKey {
	return UtxoKey{TxID: op.Hash.String(), VOut: op.Index}
}

func (k UtxoKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// OutPoint ...
func (k UtxoKey) OutPoint() (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(k.TxID)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid utxo txid %q: %w", k.TxID, err)
	}
	return wire.OutPoint{Hash: *hash, Index: k.VOut}, nil
}

// Utxo is an output owned by one of the addresses of a wallet. ClaimedBy is
// the id of the draft provisionally spending it, if any.
type Utxo struct {
	TxID           string
	VOut           uint32
	WalletID       string
	Value          uint64
	Script         []byte
	Address        string
	AddressType    wallet.AddressType
	DerivationPath string
	BlockHeight    uint32
	Confirmed      bool
	Spent          bool
	ClaimedBy      string
}

// Key returns the UtxoKey of the current utxo.
func (u *Utxo) Key() UtxoKey {
	return UtxoKey{TxID: u.TxID, VOut: u.VOut}
}

// IsSpent ...
func (u *Utxo) IsSpent() bool {
	return u.Spent
}

// IsConfirmed ...
func (u *Utxo) IsConfirmed() bool {
	return u.Confirmed
}

// IsClaimed returns whether the utxo is an input of a not yet abandoned
// draft.
func (u *Utxo) IsClaimed() bool {
	return u.ClaimedBy != ""
}

// IsSpendable returns whether the utxo can be selected by a new draft.
func (u *Utxo) IsSpendable() bool {
	return !u.Spent && !u.IsClaimed()
}

// Spend marks the utxo as spent.
func (u *Utxo) Spend() {
	u.Spent = true
}

// Confirm marks the utxo as confirmed at the given height.
func (u *Utxo) Confirm(height uint32) {
	u.Confirmed = true
	u.BlockHeight = height
}

// Claim marks the utxo as spent by the given draft. Claiming again for the
// same draft is a no-op.
func (u *Utxo) Claim(draftID string) error {
	if u.ClaimedBy == draftID {
		return nil
	}
	if u.Spent {
		return fmt.Errorf("%w: %s", ErrUtxoSpent, u.Key())
	}
	if u.IsClaimed() && u.ClaimedBy != draftID {
		return fmt.Errorf("%w: %s", ErrDoubleSpendConflict, u.Key())
	}
	u.ClaimedBy = draftID
	return nil
}

// Release removes the claim of the given draft, if it owns the utxo.
func (u *Utxo) Release(draftID string) {
	if u.ClaimedBy == draftID {
		u.ClaimedBy = ""
	}
}

// Transfer moves the claim of a draft to the draft replacing it.
func (u *Utxo) Transfer(fromDraftID, toDraftID string) error {
	if u.IsClaimed() && u.ClaimedBy != fromDraftID {
		return fmt.Errorf("%w: %s", ErrDoubleSpendConflict, u.Key())
	}
	u.ClaimedBy = toDraftID
	return nil
}

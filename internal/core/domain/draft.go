package domain

import (
	"github.com/tdex-network/btcvault/pkg/txbuilder"
)

// Draft is the persisted record of a transaction draft. It embeds the
// builder snapshot, PSBT included, so that the draft survives restarts.
type Draft struct {
	txbuilder.Snapshot
	WalletID  string
	CreatedAt int64
	// TxID and TxHex are set once the draft is finalized.
	TxID  string
	TxHex string
}

// NewDraft ...
func NewDraft(walletID string, snap txbuilder.Snapshot, createdAt int64) *Draft {
	return &Draft{
		Snapshot:  snap,
		WalletID:  walletID,
		CreatedAt: createdAt,
	}
}

// IsFinalized ...
func (d *Draft) IsFinalized() bool {
	return d.State == txbuilder.StateFinalized
}

// IsAbandoned ...
func (d *Draft) IsAbandoned() bool {
	return d.State == txbuilder.StateAbandoned
}

// InputKeys returns the keys of the utxos spent by the draft.
func (d *Draft) InputKeys() []UtxoKey {
	keys := make([]UtxoKey, 0, len(d.Inputs))
	for _, in := range d.Inputs {
		keys = append(keys, NewUtxoKey(in.OutPoint()))
	}
	return keys
}

// Update replaces the snapshot with the given one, keeping the record's
// metadata.
func (d *Draft) Update(snap txbuilder.Snapshot) {
	d.Snapshot = snap
}

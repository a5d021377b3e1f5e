package application

import (
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/legacy"
	"github.com/tdex-network/btcvault/pkg/txbuilder"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

// WalletInfo ...
type WalletInfo struct {
	ID                string
	Name              string
	Network           string
	Kind              domain.WalletKind
	MasterFingerprint uint32
	IsLocked          bool
	NumOfAddresses    int
}

// ImportLegacyResult is the outcome of a legacy wallet import.
type ImportLegacyResult struct {
	Wallet WalletInfo
	// Imported is the number of entry table addresses registered.
	Imported int
	// Verified is the number of key-data entries whose key has been
	// derived again from the imported root. Always 0 for watch-only files.
	Verified   int
	Mismatches []legacy.EntryMismatch
	// Partial is set if the entry table was decoded only up to a malformed
	// entry.
	Partial *legacy.PartialImport
}

// Balance ...
type Balance struct {
	Confirmed   uint64
	Unconfirmed uint64
	// Claimed is the amount of the unspent utxos claimed by drafts.
	Claimed uint64
}

// SyncResult ...
type SyncResult struct {
	Added     int
	Confirmed int
	Spent     int
}

// Recipient is an output of a send request.
type Recipient struct {
	Address string
	Amount  uint64
}

// SendRequest is the struct given to CreateDraft and Send.
type SendRequest struct {
	WalletID   string
	Recipients []Recipient
	// FeeRate, if not zero, overrides the estimate of Tier. Expressed in
	// sat/vB.
	FeeRate    float64
	Tier       feeestimator.Tier
	ChangeType wallet.AddressType
	DisableRBF bool
}

// BumpFeeRequest ...
type BumpFeeRequest struct {
	WalletID string
	DraftID  string
	// FeeRate, if not zero, overrides the estimate of Tier. Expressed in
	// sat/vB.
	FeeRate    float64
	Tier       feeestimator.Tier
	ChangeType wallet.AddressType
}

// DraftInfo ...
type DraftInfo struct {
	ID          string
	WalletID    string
	Replaces    string
	State       txbuilder.State
	Inputs      []domain.UtxoKey
	Outputs     []txbuilder.Output
	ChangeIndex int
	FeeRate     feeestimator.SatPerKVByte
	Fee         uint64
	PSBT        string
	TxID        string
	TxHex       string
}

func newDraftInfo(d *domain.Draft) DraftInfo {
	return DraftInfo{
		ID:          d.ID,
		WalletID:    d.WalletID,
		Replaces:    d.Replaces,
		State:       d.State,
		Inputs:      d.InputKeys(),
		Outputs:     d.Outputs,
		ChangeIndex: d.ChangeIndex,
		FeeRate:     d.FeeRate,
		Fee:         d.Fee,
		PSBT:        d.PSBT,
		TxID:        d.TxID,
		TxHex:       d.TxHex,
	}
}

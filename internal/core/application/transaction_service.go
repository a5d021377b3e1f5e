package application

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/tdex-network/btcvault/internal/core/ports"
	"github.com/tdex-network/btcvault/pkg/coinselect"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/stats"
	"github.com/tdex-network/btcvault/pkg/txbuilder"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

type TransactionService interface {
	// CreateDraft selects the coins paying for the recipients and returns
	// the draft in fee-finalized state, its PSBT ready to be signed.
	CreateDraft(ctx context.Context, req SendRequest) (*DraftInfo, error)
	// SignDraft signs the draft with the keys of the unlocked wallet and
	// finalizes it.
	SignDraft(ctx context.Context, walletID, draftID string) (*DraftInfo, error)
	// Send is CreateDraft followed by SignDraft.
	Send(ctx context.Context, req SendRequest) (*DraftInfo, error)
	// BumpFee creates a fee-finalized draft replacing a finalized one with
	// a higher fee rate.
	BumpFee(ctx context.Context, req BumpFeeRequest) (*DraftInfo, error)
	// AbandonDraft releases the utxos claimed by a draft not yet finalized.
	// The inputs of a fee bump go back to the draft it replaces.
	AbandonDraft(ctx context.Context, walletID, draftID string) error
	GetDraft(ctx context.Context, walletID, draftID string) (*DraftInfo, error)
	ListDrafts(ctx context.Context, walletID string) ([]DraftInfo, error)
	GetPSBT(ctx context.Context, walletID, draftID string) (string, error)
	// CombinePSBT merges the signatures of a PSBT signed elsewhere into the
	// draft and finalizes it once every input is signed.
	CombinePSBT(
		ctx context.Context, walletID, draftID, psbt string,
	) (*DraftInfo, error)
	GetFeeEstimates(
		ctx context.Context,
	) (map[feeestimator.Tier]feeestimator.SatPerKVByte, error)
}

// TransactionServiceOpts ...
type TransactionServiceOpts struct {
	DustThreshold uint64
	Policy        coinselect.Policy
	// Rand, if set, is the source of the Random coin selection policy.
	// Defaults to a time-seeded one.
	Rand *rand.Rand
}

type transactionService struct {
	repoManager ports.RepoManager
	keyring     *Keyring
	feeFeed     ports.FeeFeed
	estimator   *feeestimator.Estimator
	opts        TransactionServiceOpts
	metrics     *stats.Metrics
}

// NewTransactionService returns the service building the wallets'
// transactions. The fee feed is optional if the estimator uses a custom
// rate or if every request carries an explicit fee rate.
func NewTransactionService(
	repoManager ports.RepoManager,
	keyring *Keyring,
	feeFeed ports.FeeFeed,
	estimator *feeestimator.Estimator,
	opts TransactionServiceOpts,
	metrics *stats.Metrics,
) TransactionService {
	if opts.DustThreshold == 0 {
		opts.DustThreshold = txbuilder.DefaultDustThreshold
	}
	return &transactionService{
		repoManager: repoManager,
		keyring:     keyring,
		feeFeed:     feeFeed,
		estimator:   estimator,
		opts:        opts,
		metrics:     metrics,
	}
}

func (s *transactionService) CreateDraft(
	ctx context.Context, req SendRequest,
) (*DraftInfo, error) {
	if len(req.Recipients) <= 0 {
		return nil, ErrNullRecipients
	}
	w, err := getWallet(ctx, s.repoManager.WalletRepository(), req.WalletID)
	if err != nil {
		return nil, err
	}
	feeRate, err := s.feeRate(ctx, req.FeeRate, req.Tier)
	if err != nil {
		return nil, err
	}

	unlock := s.keyring.lockWallet(w.ID)
	defer unlock()

	res, err := s.repoManager.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			// Reload within the db tx so that the change index moves
			// atomically with the claims.
			w, err := s.repoManager.WalletRepository().GetWallet(ctx, w.ID)
			if err != nil {
				return nil, err
			}
			net, err := w.NetworkParams()
			if err != nil {
				return nil, err
			}

			candidates, err := s.candidates(ctx, w)
			if err != nil {
				return nil, err
			}
			change, err := newChange(w, req.ChangeType)
			if err != nil {
				return nil, err
			}

			draft, err := txbuilder.NewDraft(txbuilder.DraftOpts{
				ID:                uuid.New().String(),
				Network:           net,
				Claimer:           newRepoClaimer(ctx, s.repoManager.UtxoRepository()),
				DustThreshold:     s.opts.DustThreshold,
				MinRelayFee:       s.estimator.MinRelayFee(),
				MasterFingerprint: w.MasterFingerprint,
				DisableRBF:        req.DisableRBF,
			})
			if err != nil {
				return nil, err
			}
			for _, r := range req.Recipients {
				if err := draft.AddOutputToAddress(
					r.Address, r.Amount, txbuilder.OutputOpts{},
				); err != nil {
					return nil, fmt.Errorf("recipient %s: %w", r.Address, err)
				}
			}

			if err := draft.FinalizeFee(txbuilder.FeeOpts{
				FeeRate:    feeRate,
				Candidates: candidates,
				Change:     change,
				Policy:     s.opts.Policy,
				Rand:       s.rand(),
			}); err != nil {
				return nil, err
			}

			if err := s.persistChange(ctx, w, draft); err != nil {
				return nil, err
			}
			return s.addDraft(ctx, w.ID, draft)
		},
	)
	if err != nil {
		return nil, err
	}

	record := res.(*domain.Draft)
	s.metrics.DraftCreated()
	log.Infof(
		"created draft %s for wallet %s: %d inputs, fee %d sats at %s",
		record.ID, w.Name, len(record.Inputs), record.Fee, record.FeeRate,
	)
	info := newDraftInfo(record)
	return &info, nil
}

func (s *transactionService) SignDraft(
	ctx context.Context, walletID, draftID string,
) (*DraftInfo, error) {
	w, record, err := s.getDraft(ctx, walletID, draftID)
	if err != nil {
		return nil, err
	}
	keychain, err := s.keyring.keychain(w)
	if err != nil {
		return nil, err
	}
	defer keychain.Close()

	res, err := s.repoManager.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			draft, err := s.restoreDraft(ctx, w, record)
			if err != nil {
				return nil, err
			}
			if err := draft.Sign(keychain); err != nil {
				return nil, err
			}
			tx, err := draft.Finalize()
			if err != nil {
				return nil, err
			}
			return s.updateDraft(ctx, record, draft, tx)
		},
	)
	if err != nil {
		return nil, err
	}

	record = res.(*domain.Draft)
	s.metrics.DraftFinalized()
	log.Infof("draft %s finalized, txid %s", record.ID, record.TxID)
	info := newDraftInfo(record)
	return &info, nil
}

func (s *transactionService) Send(
	ctx context.Context, req SendRequest,
) (*DraftInfo, error) {
	w, err := getWallet(ctx, s.repoManager.WalletRepository(), req.WalletID)
	if err != nil {
		return nil, err
	}
	// Fail before claiming any utxo.
	if !s.keyring.isUnlocked(w.ID) {
		return nil, fmt.Errorf("%w: %s", ErrWalletLocked, w.Name)
	}

	req.WalletID = w.ID
	draft, err := s.CreateDraft(ctx, req)
	if err != nil {
		return nil, err
	}
	info, err := s.SignDraft(ctx, w.ID, draft.ID)
	if err != nil {
		if abandonErr := s.AbandonDraft(ctx, w.ID, draft.ID); abandonErr != nil {
			log.WithError(abandonErr).Warnf("failed to abandon draft %s", draft.ID)
		}
		return nil, err
	}
	return info, nil
}

func (s *transactionService) BumpFee(
	ctx context.Context, req BumpFeeRequest,
) (*DraftInfo, error) {
	w, record, err := s.getDraft(ctx, req.WalletID, req.DraftID)
	if err != nil {
		return nil, err
	}
	feeRate, err := s.feeRate(ctx, req.FeeRate, req.Tier)
	if err != nil {
		return nil, err
	}

	unlock := s.keyring.lockWallet(w.ID)
	defer unlock()

	res, err := s.repoManager.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			w, err := s.repoManager.WalletRepository().GetWallet(ctx, w.ID)
			if err != nil {
				return nil, err
			}
			draft, err := s.restoreDraft(ctx, w, record)
			if err != nil {
				return nil, err
			}
			candidates, err := s.candidates(ctx, w)
			if err != nil {
				return nil, err
			}

			// The replacement keeps the change destination of the replaced
			// draft, if any.
			var change *txbuilder.Change
			if record.Change == nil {
				if change, err = newChange(w, req.ChangeType); err != nil {
					return nil, err
				}
			}

			bumped, err := draft.BumpFee(txbuilder.BumpFeeOpts{
				FeeRate:    feeRate,
				Candidates: candidates,
				Change:     change,
				Policy:     s.opts.Policy,
				Rand:       s.rand(),
				ID:         uuid.New().String(),
			})
			if err != nil {
				return nil, err
			}

			if change != nil {
				if err := s.persistChange(ctx, w, bumped); err != nil {
					return nil, err
				}
			}
			return s.addDraft(ctx, w.ID, bumped)
		},
	)
	if err != nil {
		return nil, err
	}

	bumped := res.(*domain.Draft)
	s.metrics.FeeBumped()
	log.Infof(
		"draft %s replaces %s: fee %d -> %d sats", bumped.ID, record.ID,
		record.Fee, bumped.Fee,
	)
	info := newDraftInfo(bumped)
	return &info, nil
}

func (s *transactionService) AbandonDraft(
	ctx context.Context, walletID, draftID string,
) error {
	w, record, err := s.getDraft(ctx, walletID, draftID)
	if err != nil {
		return err
	}
	// The claims of a finalized draft may belong to its replacement.
	if record.IsFinalized() {
		return fmt.Errorf(
			"%w: draft %s is finalized", txbuilder.ErrInvalidState, draftID,
		)
	}

	if _, err := s.repoManager.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			draft, err := s.restoreDraft(ctx, w, record)
			if err != nil {
				return nil, err
			}
			if err := draft.Abandon(); err != nil {
				return nil, err
			}
			return s.updateDraft(ctx, record, draft, nil)
		},
	); err != nil {
		return err
	}

	s.metrics.DraftAbandoned()
	log.Infof("draft %s abandoned", draftID)
	return nil
}

func (s *transactionService) GetDraft(
	ctx context.Context, walletID, draftID string,
) (*DraftInfo, error) {
	_, record, err := s.getDraft(ctx, walletID, draftID)
	if err != nil {
		return nil, err
	}
	info := newDraftInfo(record)
	return &info, nil
}

func (s *transactionService) ListDrafts(
	ctx context.Context, walletID string,
) ([]DraftInfo, error) {
	w, err := getWallet(ctx, s.repoManager.WalletRepository(), walletID)
	if err != nil {
		return nil, err
	}
	drafts, err := s.repoManager.DraftRepository().GetDraftsForWallet(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	infos := make([]DraftInfo, 0, len(drafts))
	for i := range drafts {
		infos = append(infos, newDraftInfo(&drafts[i]))
	}
	return infos, nil
}

func (s *transactionService) GetPSBT(
	ctx context.Context, walletID, draftID string,
) (string, error) {
	_, record, err := s.getDraft(ctx, walletID, draftID)
	if err != nil {
		return "", err
	}
	if len(record.PSBT) <= 0 {
		return "", fmt.Errorf(
			"%w: draft is %s", txbuilder.ErrInvalidState, record.State,
		)
	}
	return record.PSBT, nil
}

func (s *transactionService) CombinePSBT(
	ctx context.Context, walletID, draftID, psbt string,
) (*DraftInfo, error) {
	w, record, err := s.getDraft(ctx, walletID, draftID)
	if err != nil {
		return nil, err
	}

	res, err := s.repoManager.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			draft, err := s.restoreDraft(ctx, w, record)
			if err != nil {
				return nil, err
			}
			if err := draft.Combine(psbt); err != nil {
				return nil, err
			}

			var tx *wire.MsgTx
			if draft.State() == txbuilder.StateSigned {
				tx, err = draft.Finalize()
				if err != nil && !isNotSignedErr(err) {
					return nil, err
				}
			}
			return s.updateDraft(ctx, record, draft, tx)
		},
	)
	if err != nil {
		return nil, err
	}

	record = res.(*domain.Draft)
	if record.IsFinalized() {
		s.metrics.DraftFinalized()
		log.Infof("draft %s finalized, txid %s", record.ID, record.TxID)
	}
	info := newDraftInfo(record)
	return &info, nil
}

func (s *transactionService) GetFeeEstimates(
	ctx context.Context,
) (map[feeestimator.Tier]feeestimator.SatPerKVByte, error) {
	if err := s.updateEstimator(ctx); err != nil {
		return nil, err
	}
	return s.estimator.EstimateAll()
}

// feeRate returns the explicit rate, in sat/vB, if not zero, the estimate
// for the tier otherwise.
func (s *transactionService) feeRate(
	ctx context.Context, rate float64, tier feeestimator.Tier,
) (feeestimator.SatPerKVByte, error) {
	if rate > 0 {
		return feeestimator.FromSatPerVByte(rate), nil
	}
	if err := s.updateEstimator(ctx); err != nil {
		return 0, err
	}
	return s.estimator.Estimate(tier)
}

func (s *transactionService) updateEstimator(ctx context.Context) error {
	if s.estimator.Strategy() == feeestimator.Custom {
		return nil
	}
	if s.feeFeed == nil {
		return ErrNoFeeFeed
	}
	observations, err := s.feeFeed.GetFeeEstimates(ctx)
	if err != nil {
		return fmt.Errorf("fetching fee estimates: %w", err)
	}
	return s.estimator.Update(observations)
}

func (s *transactionService) getDraft(
	ctx context.Context, walletID, draftID string,
) (*domain.Wallet, *domain.Draft, error) {
	w, err := getWallet(ctx, s.repoManager.WalletRepository(), walletID)
	if err != nil {
		return nil, nil, err
	}
	record, err := s.repoManager.DraftRepository().GetDraft(ctx, draftID)
	if err != nil {
		return nil, nil, err
	}
	if record.WalletID != w.ID {
		return nil, nil, ErrDraftWalletMismatch
	}
	return w, record, nil
}

// restoreDraft rebuilds the draft of the record, its claims joining the db
// tx of ctx.
func (s *transactionService) restoreDraft(
	ctx context.Context, w *domain.Wallet, record *domain.Draft,
) (*txbuilder.Draft, error) {
	net, err := w.NetworkParams()
	if err != nil {
		return nil, err
	}
	return txbuilder.Restore(txbuilder.DraftOpts{
		Network:           net,
		Claimer:           newRepoClaimer(ctx, s.repoManager.UtxoRepository()),
		DustThreshold:     s.opts.DustThreshold,
		MinRelayFee:       s.estimator.MinRelayFee(),
		MasterFingerprint: w.MasterFingerprint,
	}, record.Snapshot)
}

func (s *transactionService) addDraft(
	ctx context.Context, walletID string, draft *txbuilder.Draft,
) (*domain.Draft, error) {
	snap, err := draft.Snapshot()
	if err != nil {
		return nil, err
	}
	record := domain.NewDraft(walletID, *snap, time.Now().Unix())
	if err := s.repoManager.DraftRepository().AddOrUpdateDraft(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *transactionService) updateDraft(
	ctx context.Context, record *domain.Draft, draft *txbuilder.Draft,
	tx *wire.MsgTx,
) (*domain.Draft, error) {
	snap, err := draft.Snapshot()
	if err != nil {
		return nil, err
	}
	updated := *record
	updated.Update(*snap)
	if tx != nil {
		var buf bytes.Buffer
		if err := tx.Serialize(&buf); err != nil {
			return nil, err
		}
		updated.TxID = tx.TxHash().String()
		updated.TxHex = hex.EncodeToString(buf.Bytes())
	}
	if err := s.repoManager.DraftRepository().AddOrUpdateDraft(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// candidates returns the spendable utxos of the wallet in the form the
// builder selects from.
func (s *transactionService) candidates(
	ctx context.Context, w *domain.Wallet,
) ([]txbuilder.Utxo, error) {
	utxos, err := s.repoManager.UtxoRepository().GetSpendableUtxos(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	candidates := make([]txbuilder.Utxo, 0, len(utxos))
	for _, u := range utxos {
		info, ok := w.GetAddress(u.Address)
		if !ok {
			log.Warnf("skipping utxo %s of unknown address %s", u.Key(), u.Address)
			continue
		}
		candidate, err := toBuilderUtxo(u, info)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// persistChange stores the change address derived for the draft, if the
// draft ended up with a change output.
func (s *transactionService) persistChange(
	ctx context.Context, w *domain.Wallet, draft *txbuilder.Draft,
) error {
	if draft.ChangeIndex() < 0 {
		return nil
	}
	return s.repoManager.WalletRepository().UpdateWallet(
		ctx, w.ID, func(_ *domain.Wallet) (*domain.Wallet, error) {
			return w, nil
		},
	)
}

func (s *transactionService) rand() *rand.Rand {
	if s.opts.Rand != nil {
		return s.opts.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// newChange derives the next change address of the given type. Watch-only
// wallets can't derive, their drafts must not need change.
func newChange(
	w *domain.Wallet, addrType wallet.AddressType,
) (*txbuilder.Change, error) {
	if w.IsWatchOnly() {
		return nil, nil
	}
	info, err := deriveNextAddress(w, addrType, true)
	if err != nil {
		return nil, err
	}
	path, err := wallet.ParseDerivationPath(info.DerivationPath)
	if err != nil {
		return nil, err
	}
	return &txbuilder.Change{
		Script:         info.Script,
		AddressType:    info.Type,
		DerivationPath: path,
		PubKey:         info.PubKey,
	}, nil
}

func toBuilderUtxo(u domain.Utxo, info *domain.AddressInfo) (txbuilder.Utxo, error) {
	txid, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return txbuilder.Utxo{}, err
	}
	path, err := wallet.ParseDerivationPath(info.DerivationPath)
	if err != nil {
		return txbuilder.Utxo{}, err
	}
	script := u.Script
	if len(script) <= 0 {
		script = info.Script
	}
	return txbuilder.Utxo{
		TxID:           *txid,
		Vout:           u.VOut,
		Value:          u.Value,
		Script:         script,
		AddressType:    info.Type,
		DerivationPath: path,
		PubKey:         info.PubKey,
		TapMerkleRoot:  info.TapMerkleRoot,
	}, nil
}

func isNotSignedErr(err error) bool {
	return errors.Is(err, txbuilder.ErrInputsNotSigned)
}

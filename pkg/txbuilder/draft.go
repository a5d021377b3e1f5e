package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/tdex-network/btcvault/pkg/coinselect"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

const (
	// DefaultDustThreshold is the dust limit of a P2PKH output at the
	// default min relay fee.
	DefaultDustThreshold = 546

	// SequenceRBF is the default input sequence, signaling opt-in
	// replace-by-fee.
	SequenceRBF uint32 = wire.MaxTxInSequenceNum - 2
	// SequenceFinal opts out of replace-by-fee.
	SequenceFinal uint32 = wire.MaxTxInSequenceNum

	txVersion = 2
)

// State is the stage a draft has reached.
type State int

const (
	StateDraft State = iota
	StateInputsAdded
	StateOutputsAdded
	StateFeeFinalized
	StateSigned
	StateFinalized
	StateAbandoned
)

var stateNames = map[State]string{
	StateDraft:        "draft",
	StateInputsAdded:  "inputs-added",
	StateOutputsAdded: "outputs-added",
	StateFeeFinalized: "fee-finalized",
	StateSigned:       "signed",
	StateFinalized:    "finalized",
	StateAbandoned:    "abandoned",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState ...
func ParseState(str string) (State, error) {
	for state, name := range stateNames {
		if name == str {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown draft state %q", str)
}

// TapLeaf is the leaf through which a Taproot output is spent, along with
// the control block proving its inclusion. The leaf must be satisfied by a
// single signature of the input's key: <sig> <script> <control block>.
type TapLeaf struct {
	Script       []byte
	ControlBlock []byte
}

// Utxo is an output the draft can spend.
type Utxo struct {
	TxID           chainhash.Hash
	Vout           uint32
	Value          uint64
	Script         []byte
	AddressType    wallet.AddressType
	DerivationPath wallet.DerivationPath
	// PubKey is the compressed key of DerivationPath, if known before
	// signing.
	PubKey []byte
	// PrevTx is the transaction creating the output. It's attached to the
	// PSBT of Legacy inputs.
	PrevTx *wire.MsgTx
	// TapMerkleRoot is set for Taproot outputs committing to a script tree.
	TapMerkleRoot []byte
	// TapLeaf, if set, spends a Taproot output through a script path.
	TapLeaf *TapLeaf
}

// OutPoint ...
func (u Utxo) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: u.TxID, Index: u.Vout}
}

func (u Utxo) coin() coinselect.Coin {
	coin := coinselect.Coin{
		TxID:        u.TxID,
		Vout:        u.Vout,
		Value:       u.Value,
		AddressType: u.AddressType,
	}
	if u.TapLeaf != nil {
		// items count + schnorr sig + leaf script + control block
		coin.WitnessSize = 1 + 65 +
			wire.VarIntSerializeSize(uint64(len(u.TapLeaf.Script))) +
			len(u.TapLeaf.Script) +
			wire.VarIntSerializeSize(uint64(len(u.TapLeaf.ControlBlock))) +
			len(u.TapLeaf.ControlBlock)
	}
	return coin
}

// Output is a transaction output of the draft.
type Output struct {
	Script []byte
	Value  uint64
}

// OutputOpts is the struct given to AddOutput.
type OutputOpts struct {
	// AllowDust lets the output be worth less than the dust threshold, as
	// for OP_RETURN outputs.
	AllowDust bool
}

// Change is the destination of the change output.
type Change struct {
	Script         []byte
	AddressType    wallet.AddressType
	DerivationPath wallet.DerivationPath
	PubKey         []byte
}

// DraftOpts is the struct given to NewDraft.
type DraftOpts struct {
	// ID defaults to a random UUID.
	ID      string
	Network *chaincfg.Params
	Claimer Claimer
	// DustThreshold defaults to DefaultDustThreshold.
	DustThreshold uint64
	// MinRelayFee defaults to feeestimator.DefaultMinRelayFee.
	MinRelayFee feeestimator.SatPerKVByte
	// MasterFingerprint is written in the PSBT key derivation records.
	MasterFingerprint uint32
	DisableRBF        bool
	LockTime          uint32
}

func (o *DraftOpts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	if o.Claimer == nil {
		return ErrNullClaimer
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.DustThreshold == 0 {
		o.DustThreshold = DefaultDustThreshold
	}
	if o.MinRelayFee == 0 {
		o.MinRelayFee = feeestimator.DefaultMinRelayFee
	}
	return nil
}

type input struct {
	utxo     Utxo
	sequence uint32
}

// Draft is a transaction under construction. It is not safe for concurrent
// use: cross-draft exclusion is delegated to the Claimer.
type Draft struct {
	opts  DraftOpts
	state State

	inputs      []input
	outputs     []Output
	changeIndex int
	change      *Change

	feeRate  feeestimator.SatPerKVByte
	fee      uint64
	replaces string
	// inputs taken over from the replaced draft
	inherited []wire.OutPoint

	packet  *psbt.Packet
	finalTx *wire.MsgTx
}

// NewDraft returns an empty draft.
func NewDraft(opts DraftOpts) (*Draft, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Draft{
		opts:        opts,
		state:       StateDraft,
		changeIndex: -1,
	}, nil
}

// ID ...
func (d *Draft) ID() string {
	return d.opts.ID
}

// State ...
func (d *Draft) State() State {
	return d.state
}

// RBF returns whether the draft signals replace-by-fee.
func (d *Draft) RBF() bool {
	return !d.opts.DisableRBF
}

// Replaces returns the id of the draft this one is a fee bump of.
func (d *Draft) Replaces() string {
	return d.replaces
}

// Inputs returns the spent utxos, in input order.
func (d *Draft) Inputs() []Utxo {
	utxos := make([]Utxo, 0, len(d.inputs))
	for _, in := range d.inputs {
		utxos = append(utxos, in.utxo)
	}
	return utxos
}

// OutPoints returns the spent outpoints, in input order.
func (d *Draft) OutPoints() []wire.OutPoint {
	outpoints := make([]wire.OutPoint, 0, len(d.inputs))
	for _, in := range d.inputs {
		outpoints = append(outpoints, in.utxo.OutPoint())
	}
	return outpoints
}

// Sequences returns the input sequences, in input order.
func (d *Draft) Sequences() []uint32 {
	sequences := make([]uint32, 0, len(d.inputs))
	for _, in := range d.inputs {
		sequences = append(sequences, in.sequence)
	}
	return sequences
}

// Outputs ...
func (d *Draft) Outputs() []Output {
	return append([]Output{}, d.outputs...)
}

// ChangeIndex returns the index of the change output, -1 if none.
func (d *Draft) ChangeIndex() int {
	return d.changeIndex
}

// Fee returns the fee settled by FinalizeFee.
func (d *Draft) Fee() uint64 {
	return d.fee
}

// FeeRate returns the rate given to FinalizeFee.
func (d *Draft) FeeRate() feeestimator.SatPerKVByte {
	return d.feeRate
}

// InputsTotal ...
func (d *Draft) InputsTotal() uint64 {
	total := uint64(0)
	for _, in := range d.inputs {
		total += in.utxo.Value
	}
	return total
}

// OutputsTotal ...
func (d *Draft) OutputsTotal() uint64 {
	total := uint64(0)
	for _, out := range d.outputs {
		total += out.Value
	}
	return total
}

// AddInput adds a utxo with the default sequence for the draft's
// replace-by-fee policy.
func (d *Draft) AddInput(utxo Utxo) error {
	return d.AddInputWithSequence(utxo, d.defaultSequence())
}

// AddInputWithSequence adds a utxo with an explicit sequence. With
// replace-by-fee enabled the sequence must be lower than 0xfffffffe,
// otherwise it must not be.
func (d *Draft) AddInputWithSequence(utxo Utxo, sequence uint32) error {
	if err := d.requireState(StateDraft, StateInputsAdded, StateOutputsAdded); err != nil {
		return err
	}
	if signalsRBF(sequence) != d.RBF() {
		return buildError(InvariantSequence, fmt.Errorf(
			"%w: sequence %#x with rbf %t", ErrInvalidSequence, sequence, d.RBF(),
		))
	}
	if err := d.checkUtxo(utxo); err != nil {
		return err
	}
	op := utxo.OutPoint()
	for _, in := range d.inputs {
		if in.utxo.OutPoint() == op {
			return buildError(InvariantClaim, fmt.Errorf("%w: %s", ErrDuplicateInput, op))
		}
	}

	if err := d.opts.Claimer.Claim(d.ID(), []wire.OutPoint{op}); err != nil {
		return buildError(InvariantClaim, err)
	}

	d.inputs = append(d.inputs, input{utxo, sequence})
	if d.state == StateDraft {
		d.state = StateInputsAdded
	}
	return nil
}

// AddOutput appends an output. Outputs worth less than the dust threshold
// are rejected unless opts.AllowDust is set.
func (d *Draft) AddOutput(script []byte, value uint64, opts OutputOpts) error {
	if err := d.requireState(StateDraft, StateInputsAdded, StateOutputsAdded); err != nil {
		return err
	}
	if len(script) <= 0 {
		return ErrNullScript
	}
	if value < d.opts.DustThreshold && !opts.AllowDust {
		return buildError(InvariantDustFloor, fmt.Errorf(
			"%w: %d < %d sats", ErrDustOutput, value, d.opts.DustThreshold,
		))
	}

	d.outputs = append(d.outputs, Output{
		Script: append([]byte{}, script...),
		Value:  value,
	})
	d.state = StateOutputsAdded
	return nil
}

// AddOutputToAddress is like AddOutput for an encoded address.
func (d *Draft) AddOutputToAddress(address string, value uint64, opts OutputOpts) error {
	addr, err := btcutil.DecodeAddress(address, d.opts.Network)
	if err != nil {
		return err
	}
	if !addr.IsForNet(d.opts.Network) {
		return fmt.Errorf("address %s is not for network %s", address, d.opts.Network.Name)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return err
	}
	return d.AddOutput(script, value, opts)
}

// Abandon releases the claims of a draft not yet finalized on its inputs.
// The inputs of a fee bump go back to the draft it replaces. The draft can't
// be used anymore.
func (d *Draft) Abandon() error {
	if err := d.requireState(
		StateDraft, StateInputsAdded, StateOutputsAdded,
		StateFeeFinalized, StateSigned,
	); err != nil {
		return err
	}

	outpoints := d.OutPoints()
	if len(d.inherited) > 0 {
		if err := d.opts.Claimer.Transfer(d.ID(), d.replaces, d.inherited); err != nil {
			return buildError(InvariantClaim, err)
		}
		outpoints = excludeOutPoints(outpoints, d.inherited)
	}
	if err := d.opts.Claimer.Release(d.ID(), outpoints); err != nil {
		return err
	}
	d.state = StateAbandoned
	return nil
}

func excludeOutPoints(outpoints, excluded []wire.OutPoint) []wire.OutPoint {
	skip := make(map[wire.OutPoint]struct{}, len(excluded))
	for _, op := range excluded {
		skip[op] = struct{}{}
	}
	left := make([]wire.OutPoint, 0, len(outpoints))
	for _, op := range outpoints {
		if _, ok := skip[op]; !ok {
			left = append(left, op)
		}
	}
	return left
}

// UnsignedTx returns the transaction without signatures.
func (d *Draft) UnsignedTx() *wire.MsgTx {
	tx := wire.NewMsgTx(txVersion)
	tx.LockTime = d.opts.LockTime
	for _, in := range d.inputs {
		op := in.utxo.OutPoint()
		txIn := wire.NewTxIn(&op, nil, nil)
		txIn.Sequence = in.sequence
		tx.AddTxIn(txIn)
	}
	for _, out := range d.outputs {
		tx.AddTxOut(wire.NewTxOut(int64(out.Value), out.Script))
	}
	return tx
}

// FinalTx returns the signed transaction of a finalized draft.
func (d *Draft) FinalTx() (*wire.MsgTx, error) {
	if err := d.requireState(StateFinalized); err != nil {
		return nil, err
	}
	return d.finalTx.Copy(), nil
}

func (d *Draft) defaultSequence() uint32 {
	if d.RBF() {
		return SequenceRBF
	}
	return SequenceFinal
}

func (d *Draft) checkUtxo(utxo Utxo) error {
	if len(utxo.Script) <= 0 {
		return fmt.Errorf("utxo %s: script must not be null", utxo.OutPoint())
	}
	if _, err := utxo.AddressType.Purpose(); err != nil {
		return fmt.Errorf("utxo %s: %w", utxo.OutPoint(), err)
	}
	if utxo.TapLeaf != nil && utxo.AddressType != wallet.Taproot {
		return fmt.Errorf("utxo %s: tap leaf on a non taproot output", utxo.OutPoint())
	}
	return nil
}

func (d *Draft) requireState(states ...State) error {
	for _, s := range states {
		if d.state == s {
			return nil
		}
	}
	return buildError(InvariantState, fmt.Errorf(
		"%w: draft is %s", ErrInvalidState, d.state,
	))
}

func (d *Draft) coins() []coinselect.Coin {
	coins := make([]coinselect.Coin, 0, len(d.inputs))
	for _, in := range d.inputs {
		coins = append(coins, in.utxo.coin())
	}
	return coins
}

func (d *Draft) outputScripts() [][]byte {
	scripts := make([][]byte, 0, len(d.outputs))
	for _, out := range d.outputs {
		scripts = append(scripts, out.Script)
	}
	return scripts
}

func signalsRBF(sequence uint32) bool {
	return sequence < wire.MaxTxInSequenceNum-1
}

package txbuilder

import (
	"fmt"
	"math/rand"

	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/coinselect"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
)

// FeeOpts is the struct given to FinalizeFee.
type FeeOpts struct {
	FeeRate feeestimator.SatPerKVByte
	// Candidates are the utxos the selector can add to the inputs of the
	// draft to cover outputs and fee.
	Candidates []Utxo
	// Change is required only if the selection ends up with a change
	// output.
	Change *Change
	Policy coinselect.Policy
	Rand   *rand.Rand
}

// FinalizeFee selects the coins needed to pay for the outputs at the given
// fee rate, on top of the inputs already added, appends the change output
// if any and builds the PSBT. Inputs and outputs can't be changed anymore
// after this call.
func (d *Draft) FinalizeFee(opts FeeOpts) error {
	if err := d.requireState(StateDraft, StateInputsAdded, StateOutputsAdded); err != nil {
		return err
	}
	if len(d.outputs) <= 0 {
		return ErrNullOutputs
	}
	if opts.FeeRate < d.opts.MinRelayFee {
		return buildError(InvariantFeeFloor, fmt.Errorf(
			"%w: %s < %s", ErrFeeTooLow, opts.FeeRate, d.opts.MinRelayFee,
		))
	}

	sizer := coinselect.FeeRateSizer{
		FeeRate:       opts.FeeRate,
		OutputScripts: d.outputScripts(),
	}
	if opts.Change != nil {
		sizer.ChangeType = opts.Change.AddressType
	}
	return d.finalizeFee(opts, sizer)
}

func (d *Draft) finalizeFee(opts FeeOpts, sizer coinselect.Sizer) error {
	candidates := make([]coinselect.Coin, 0, len(opts.Candidates))
	utxoByOutpoint := make(map[wire.OutPoint]Utxo, len(opts.Candidates))
	for _, u := range opts.Candidates {
		if err := d.checkUtxo(u); err != nil {
			return err
		}
		candidates = append(candidates, u.coin())
		utxoByOutpoint[u.OutPoint()] = u
	}

	selection, err := coinselect.Select(coinselect.SelectOpts{
		Preselected:   d.coins(),
		Coins:         candidates,
		Target:        d.OutputsTotal(),
		Policy:        opts.Policy,
		DustThreshold: d.opts.DustThreshold,
		Sizer:         sizer,
		Rand:          opts.Rand,
	})
	if err != nil {
		return err
	}
	if selection.HasChange() && opts.Change == nil {
		return ErrNullChange
	}

	added := selection.Coins[len(d.inputs):]
	outpoints := make([]wire.OutPoint, 0, len(added))
	for _, c := range added {
		outpoints = append(outpoints, c.OutPoint())
	}
	if err := d.opts.Claimer.Claim(d.ID(), outpoints); err != nil {
		return buildError(InvariantClaim, err)
	}

	prevInputs, prevOutputs := d.inputs, d.outputs
	rollback := func() {
		d.inputs, d.outputs, d.change, d.changeIndex = prevInputs, prevOutputs, nil, -1
		d.opts.Claimer.Release(d.ID(), outpoints)
	}

	inputs := make([]input, len(prevInputs), len(selection.Coins))
	copy(inputs, prevInputs)
	for _, op := range outpoints {
		inputs = append(inputs, input{utxoByOutpoint[op], d.defaultSequence()})
	}
	d.inputs = inputs
	d.outputs = append([]Output{}, prevOutputs...)
	if selection.HasChange() {
		d.change = opts.Change
		d.changeIndex = len(d.outputs)
		d.outputs = append(d.outputs, Output{
			Script: append([]byte{}, opts.Change.Script...),
			Value:  selection.Change,
		})
	}

	vsize := d.estimateVSize()
	if minFee := d.opts.MinRelayFee.FeeForVSize(vsize); selection.Fee < minFee {
		rollback()
		return buildError(InvariantFeeFloor, fmt.Errorf(
			"%w: %d < %d sats", ErrFeeTooLow, selection.Fee, minFee,
		))
	}

	packet, err := d.newPacket()
	if err != nil {
		rollback()
		return err
	}

	d.packet = packet
	d.fee = selection.Fee
	d.feeRate = opts.FeeRate
	d.state = StateFeeFinalized
	return nil
}

// BumpFeeOpts is the struct given to BumpFee.
type BumpFeeOpts struct {
	FeeRate feeestimator.SatPerKVByte
	// Candidates are additional utxos for the replacement, in case the
	// original inputs can't cover the higher fee.
	Candidates []Utxo
	// Change defaults to the change destination of the replaced draft.
	Change *Change
	Policy coinselect.Policy
	Rand   *rand.Rand
	// ID of the replacement draft, defaults to a random UUID.
	ID string
}

// BumpFee returns a new draft, in FeeFinalized state, replacing this one
// with a higher fee. The replacement spends the same inputs with the same
// sequences and pays the same non-change outputs. The claims on the inputs
// move to the new draft.
// The fee of the replacement must exceed the replaced one by at least the
// min relay fee of the replacement's size.
func (d *Draft) BumpFee(opts BumpFeeOpts) (*Draft, error) {
	if err := d.requireState(StateFinalized); err != nil {
		return nil, err
	}
	if !d.RBF() {
		return nil, buildError(InvariantSequence, fmt.Errorf(
			"%w: draft %s does not signal replace-by-fee", ErrInvalidSequence, d.ID(),
		))
	}
	if opts.FeeRate < d.opts.MinRelayFee {
		return nil, buildError(InvariantFeeFloor, fmt.Errorf(
			"%w: %s < %s", ErrFeeTooLow, opts.FeeRate, d.opts.MinRelayFee,
		))
	}
	if opts.FeeRate <= d.feeRate {
		return nil, buildError(InvariantFeeFloor, fmt.Errorf(
			"%w: rate %s <= %s", ErrFeeNotIncreased, opts.FeeRate, d.feeRate,
		))
	}
	change := opts.Change
	if change == nil {
		change = d.change
	}

	draftOpts := d.opts
	draftOpts.ID = opts.ID
	bumped, err := NewDraft(draftOpts)
	if err != nil {
		return nil, err
	}
	bumped.replaces = d.ID()

	outpoints := d.OutPoints()
	bumped.inherited = outpoints
	if err := d.opts.Claimer.Transfer(d.ID(), bumped.ID(), outpoints); err != nil {
		return nil, buildError(InvariantClaim, err)
	}
	giveBack := func() {
		d.opts.Claimer.Transfer(bumped.ID(), d.ID(), outpoints)
	}

	for _, in := range d.inputs {
		if err := bumped.AddInputWithSequence(in.utxo, in.sequence); err != nil {
			giveBack()
			return nil, err
		}
	}
	for i, out := range d.outputs {
		if i == d.changeIndex {
			continue
		}
		if err := bumped.AddOutput(out.Script, out.Value, OutputOpts{AllowDust: true}); err != nil {
			giveBack()
			return nil, err
		}
	}

	base := coinselect.FeeRateSizer{
		FeeRate:       opts.FeeRate,
		OutputScripts: bumped.outputScripts(),
	}
	if change != nil {
		base.ChangeType = change.AddressType
	}
	oldFee, minRelay := d.fee, d.opts.MinRelayFee
	sizer := coinselect.SizerFunc(func(coins []coinselect.Coin, withChange bool) uint64 {
		fee := base.Fee(coins, withChange)
		if minFee := oldFee + minRelay.FeeForVSize(base.VSize(coins, withChange)); fee < minFee {
			return minFee
		}
		return fee
	})

	if err := bumped.finalizeFee(FeeOpts{
		FeeRate:    opts.FeeRate,
		Candidates: opts.Candidates,
		Change:     change,
		Policy:     opts.Policy,
		Rand:       opts.Rand,
	}, sizer); err != nil {
		giveBack()
		return nil, err
	}
	if bumped.fee <= oldFee {
		bumped.Abandon()
		return nil, buildError(InvariantFeeFloor, fmt.Errorf(
			"%w: %d <= %d sats", ErrFeeNotIncreased, bumped.fee, oldFee,
		))
	}
	return bumped, nil
}

func (d *Draft) estimateVSize() int {
	sizer := coinselect.FeeRateSizer{OutputScripts: d.outputScripts()}
	return sizer.VSize(d.coins(), false)
}

package coinselect

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

var (
	// ErrInsufficientFunds is returned when the given coins can't cover the
	// target plus the fee of spending them.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNullTarget ...
	ErrNullTarget = errors.New("target amount must be greater than zero")
	// ErrNullSizer ...
	ErrNullSizer = errors.New("sizer must not be null")
	// ErrNullRand is returned when the Random policy is used without a
	// source of randomness.
	ErrNullRand = errors.New("random policy requires a random source")
	// ErrInvalidPolicy ...
	ErrInvalidPolicy = errors.New("unknown coin selection policy")
)

// InsufficientFundsError reports how much was available and required.
type InsufficientFundsError struct {
	Available uint64
	Required  uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf(
		"%s: available %d sats, required %d sats",
		ErrInsufficientFunds, e.Available, e.Required,
	)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Policy is the order in which candidate coins are accumulated.
type Policy int

const (
	// LargestFirst accumulates coins by value, descending.
	LargestFirst Policy = iota
	// Random accumulates coins in a random order drawn from the injected
	// source.
	Random
)

var policyNames = map[Policy]string{
	LargestFirst: "largest-first",
	Random:       "random",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy ...
func ParsePolicy(str string) (Policy, error) {
	for policy, name := range policyNames {
		if strings.EqualFold(str, name) {
			return policy, nil
		}
	}
	return 0, ErrInvalidPolicy
}

// Coin is a spendable output as seen by the selector.
type Coin struct {
	TxID        chainhash.Hash
	Vout        uint32
	Value       uint64
	AddressType wallet.AddressType
	// WitnessSize overrides the default witness size of the input, for
	// Taproot script-path spends.
	WitnessSize int
}

// OutPoint ...
func (c Coin) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: c.TxID, Index: c.Vout}
}

// Sizer returns the fee of a transaction spending the given coins, with or
// without a change output.
type Sizer interface {
	Fee(coins []Coin, withChange bool) uint64
}

// SizerFunc adapts a function to the Sizer interface.
type SizerFunc func(coins []Coin, withChange bool) uint64

// Fee ...
func (f SizerFunc) Fee(coins []Coin, withChange bool) uint64 {
	return f(coins, withChange)
}

// FeeRateSizer estimates the virtual size of the transaction from the
// address types of its inputs and prices it at FeeRate.
type FeeRateSizer struct {
	FeeRate feeestimator.SatPerKVByte
	// OutputScripts are the scripts of the non-change outputs.
	OutputScripts [][]byte
	ChangeType    wallet.AddressType
}

// Fee ...
func (s FeeRateSizer) Fee(coins []Coin, withChange bool) uint64 {
	return s.FeeRate.FeeForVSize(s.VSize(coins, withChange))
}

// VSize returns the estimated virtual size of the signed transaction.
func (s FeeRateSizer) VSize(coins []Coin, withChange bool) int {
	inTypes := make([]int, 0, len(coins))
	inWitnessSizes := make([]int, 0)
	for _, c := range coins {
		scriptType := c.AddressType.ScriptType()
		inTypes = append(inTypes, scriptType)
		if scriptType == wallet.P2TR {
			inWitnessSizes = append(inWitnessSizes, c.WitnessSize)
		}
	}

	// Unknown output scripts are sized by their serialized length.
	outTypes := make([]int, 0, len(s.OutputScripts)+1)
	outSizes := make([]int, 0, len(s.OutputScripts))
	for _, script := range s.OutputScripts {
		outTypes = append(outTypes, -1)
		outSizes = append(outSizes, wire.VarIntSerializeSize(uint64(len(script)))+len(script))
	}
	if withChange {
		outTypes = append(outTypes, s.ChangeType.ScriptType())
	}

	return wallet.EstimateTxSize(inTypes, nil, inWitnessSizes, outTypes, outSizes)
}

// SelectOpts is the struct given to Select. Preselected coins are always
// spent and come before the ones picked from Coins.
type SelectOpts struct {
	Preselected   []Coin
	Coins         []Coin
	Target        uint64
	Policy        Policy
	DustThreshold uint64
	Sizer         Sizer
	Rand          *rand.Rand
}

func (o SelectOpts) validate() error {
	if o.Target == 0 && len(o.Preselected) <= 0 {
		return ErrNullTarget
	}
	if o.Sizer == nil {
		return ErrNullSizer
	}
	if _, ok := policyNames[o.Policy]; !ok {
		return ErrInvalidPolicy
	}
	if o.Policy == Random && o.Rand == nil {
		return ErrNullRand
	}
	return nil
}

// Selection is the result of a coin selection.
type Selection struct {
	Coins []Coin
	Total uint64
	Fee   uint64
	// Change is zero when there is no change output, either because the
	// selection matched the target exactly or because the change was below
	// the dust threshold and went to fee.
	Change uint64
}

// HasChange ...
func (s *Selection) HasChange() bool {
	return s.Change > 0
}

// Select accumulates coins, in the order given by the policy, until their
// total covers the target plus the fee of a transaction without change. The
// surplus becomes a change output if it is worth at least the dust
// threshold once the fee of the bigger transaction is paid, otherwise it
// goes to fee.
// Coins worth less than the fee of spending them are skipped. If a random
// order comes short, the coins are accumulated again largest first.
func Select(opts SelectOpts) (*Selection, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	sorted := sortCoins(withoutPreselected(opts.Coins, opts.Preselected))
	candidates := sorted
	if opts.Policy == Random {
		candidates = append([]Coin{}, sorted...)
		opts.Rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}

	selection, insufficientErr := accumulate(opts, candidates)
	if selection != nil {
		return selection, nil
	}
	if opts.Policy == Random {
		if selection, insufficientErr = accumulate(opts, sorted); selection != nil {
			return selection, nil
		}
	}
	return nil, insufficientErr
}

// accumulate adds the candidates, in order, to the preselected coins until
// they settle.
func accumulate(
	opts SelectOpts, candidates []Coin,
) (*Selection, *InsufficientFundsError) {
	selected := make([]Coin, 0, len(opts.Preselected)+len(candidates))
	total := uint64(0)
	for _, coin := range opts.Preselected {
		selected = append(selected, coin)
		total += coin.Value
	}
	if len(selected) > 0 {
		if selection := settle(opts, selected, total); selection != nil {
			return selection, nil
		}
	}

	for _, coin := range candidates {
		feeBefore := opts.Sizer.Fee(selected, false)
		feeAfter := opts.Sizer.Fee(append(selected, coin), false)
		if feeAfter >= feeBefore && coin.Value <= feeAfter-feeBefore {
			continue
		}

		selected = append(selected, coin)
		total += coin.Value

		if selection := settle(opts, selected, total); selection != nil {
			return selection, nil
		}
	}

	return nil, &InsufficientFundsError{
		Available: total,
		Required:  opts.Target + opts.Sizer.Fee(selected, false),
	}
}

// settle returns the selection made of the given coins, or nil if they are
// not enough to pay for the target and the fee.
func settle(opts SelectOpts, selected []Coin, total uint64) *Selection {
	feeNoChange := opts.Sizer.Fee(selected, false)
	if total < opts.Target+feeNoChange {
		return nil
	}

	coins := append([]Coin{}, selected...)
	feeWithChange := opts.Sizer.Fee(selected, true)
	if total >= opts.Target+feeWithChange {
		change := total - opts.Target - feeWithChange
		if change > 0 && change >= opts.DustThreshold {
			return &Selection{
				Coins:  coins,
				Total:  total,
				Fee:    feeWithChange,
				Change: change,
			}
		}
	}

	return &Selection{
		Coins: coins,
		Total: total,
		Fee:   total - opts.Target,
	}
}

func withoutPreselected(coins, preselected []Coin) []Coin {
	if len(preselected) <= 0 {
		return coins
	}
	skip := make(map[wire.OutPoint]bool, len(preselected))
	for _, c := range preselected {
		skip[c.OutPoint()] = true
	}
	filtered := make([]Coin, 0, len(coins))
	for _, c := range coins {
		if !skip[c.OutPoint()] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// sortCoins returns a copy of the coins sorted by value, descending, then
// by outpoint, so that the result does not depend on the given order.
func sortCoins(coins []Coin) []Coin {
	sorted := make([]Coin, len(coins))
	copy(sorted, coins)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		if c := bytes.Compare(sorted[i].TxID[:], sorted[j].TxID[:]); c != 0 {
			return c < 0
		}
		return sorted[i].Vout < sorted[j].Vout
	})
	return sorted
}

package feeestimator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/tdex-network/btcvault/pkg/mathutil"
)

var (
	// ErrNoObservations is returned when estimating from an empty set of
	// observations with a non custom strategy.
	ErrNoObservations = errors.New("no fee rate observations available")
	// ErrInvalidTier ...
	ErrInvalidTier = errors.New("unknown fee tier")
	// ErrInvalidStrategy ...
	ErrInvalidStrategy = errors.New("unknown fee strategy")
	// ErrInvalidObservation ...
	ErrInvalidObservation = errors.New("fee rate observation must be a non negative number")
	// ErrNullCustomRate ...
	ErrNullCustomRate = errors.New("custom strategy requires a fee rate")
)

// DefaultMinRelayFee is the minimum relay fee rate of Bitcoin Core.
const DefaultMinRelayFee SatPerKVByte = 1000

// SatPerKVByte is a fee rate in satoshis per 1000 virtual bytes.
type SatPerKVByte uint64

// FromSatPerVByte converts a sat/vB rate, rounding up.
func FromSatPerVByte(rate float64) SatPerKVByte {
	return SatPerKVByte(mathutil.SatPerVByteToKVByte(rate))
}

// FeeForVSize returns the fee for a transaction of the given virtual size.
func (r SatPerKVByte) FeeForVSize(vsize int) uint64 {
	return mathutil.FeeForVSize(uint64(r), vsize)
}

func (r SatPerKVByte) String() string {
	return mathutil.SatPerKVByteToVByte(uint64(r)).String() + " sat/vB"
}

// Tier is a confirmation priority.
type Tier int

const (
	Minimum Tier = iota
	Economy
	Normal
	Priority
)

var (
	tierTargets = map[Tier]uint32{
		Minimum:  144,
		Economy:  12,
		Normal:   6,
		Priority: 1,
	}
	tierNames = map[Tier]string{
		Minimum:  "minimum",
		Economy:  "economy",
		Normal:   "normal",
		Priority: "priority",
	}
)

// Tiers returns every tier, from the slowest to the fastest.
func Tiers() []Tier {
	return []Tier{Minimum, Economy, Normal, Priority}
}

// Target returns the confirmation target, in blocks, of the tier.
func (t Tier) Target() uint32 {
	return tierTargets[t]
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier ...
func ParseTier(str string) (Tier, error) {
	for tier, name := range tierNames {
		if strings.EqualFold(str, name) {
			return tier, nil
		}
	}
	return 0, ErrInvalidTier
}

// Strategy selects how observations are turned into a rate.
type Strategy int

const (
	// Economical interpolates the observations at the tier's target.
	Economical Strategy = iota
	// Conservative takes the higher between the tier's rate and the next
	// faster tier's one.
	Conservative
	// Custom ignores the observations and uses a fixed rate.
	Custom
)

var strategyNames = map[Strategy]string{
	Economical:   "economical",
	Conservative: "conservative",
	Custom:       "custom",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy ...
func ParseStrategy(str string) (Strategy, error) {
	for strategy, name := range strategyNames {
		if strings.EqualFold(str, name) {
			return strategy, nil
		}
	}
	return 0, ErrInvalidStrategy
}

// Config is the struct given to NewEstimator.
type Config struct {
	MinRelayFee SatPerKVByte
	Strategy    Strategy
	// CustomRate is used by the Custom strategy only.
	CustomRate SatPerKVByte
}

func (c Config) validate() error {
	if _, ok := strategyNames[c.Strategy]; !ok {
		return ErrInvalidStrategy
	}
	if c.Strategy == Custom && c.CustomRate == 0 {
		return ErrNullCustomRate
	}
	return nil
}

// Estimator turns confirmation tiers into fee rates given the last
// observations received from a fee feed. Estimates are clamped to the min
// relay fee and never decrease from a tier to a faster one.
type Estimator struct {
	lock sync.RWMutex

	cfg          Config
	targets      []uint32
	observations map[uint32]SatPerKVByte
}

// NewEstimator returns an Estimator without observations.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MinRelayFee == 0 {
		cfg.MinRelayFee = DefaultMinRelayFee
	}
	return &Estimator{
		cfg:          cfg,
		observations: make(map[uint32]SatPerKVByte),
	}, nil
}

// MinRelayFee ...
func (e *Estimator) MinRelayFee() SatPerKVByte {
	return e.cfg.MinRelayFee
}

// Strategy ...
func (e *Estimator) Strategy() Strategy {
	return e.cfg.Strategy
}

// Update replaces the observations with the given ones, expressed as
// confirmation target in blocks -> sat/vB, the format of Esplora's
// fee-estimates endpoint.
func (e *Estimator) Update(observations map[uint32]float64) error {
	rates := make(map[uint32]SatPerKVByte, len(observations))
	targets := make([]uint32, 0, len(observations))
	for target, rate := range observations {
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("%w: %v at %d blocks", ErrInvalidObservation, rate, target)
		}
		if target == 0 {
			continue
		}
		rates[target] = FromSatPerVByte(rate)
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	e.lock.Lock()
	defer e.lock.Unlock()

	e.targets = targets
	e.observations = rates
	return nil
}

// Estimate returns the fee rate for the given tier.
func (e *Estimator) Estimate(tier Tier) (SatPerKVByte, error) {
	if _, ok := tierTargets[tier]; !ok {
		return 0, ErrInvalidTier
	}

	e.lock.RLock()
	defer e.lock.RUnlock()

	if e.cfg.Strategy == Custom {
		return e.clamp(e.cfg.CustomRate), nil
	}
	if len(e.targets) <= 0 {
		return 0, ErrNoObservations
	}

	// Slower tiers bound the estimate from below so that it never decreases
	// with priority.
	rate := SatPerKVByte(0)
	for _, t := range Tiers() {
		if r := e.tierRate(t); r > rate {
			rate = r
		}
		if t == tier {
			break
		}
	}
	return e.clamp(rate), nil
}

// EstimateAll returns the estimates of every tier.
func (e *Estimator) EstimateAll() (map[Tier]SatPerKVByte, error) {
	estimates := make(map[Tier]SatPerKVByte)
	for _, tier := range Tiers() {
		rate, err := e.Estimate(tier)
		if err != nil {
			return nil, err
		}
		estimates[tier] = rate
	}
	return estimates, nil
}

func (e *Estimator) tierRate(tier Tier) SatPerKVByte {
	rate := e.rateAt(tier.Target())
	if e.cfg.Strategy == Conservative && tier < Priority {
		if faster := e.rateAt((tier + 1).Target()); faster > rate {
			rate = faster
		}
	}
	return rate
}

// rateAt interpolates linearly between the closest observed targets.
// Targets out of the observed range take the nearest observation.
func (e *Estimator) rateAt(target uint32) SatPerKVByte {
	if rate, ok := e.observations[target]; ok {
		return rate
	}

	first, last := e.targets[0], e.targets[len(e.targets)-1]
	if target < first {
		return e.observations[first]
	}
	if target > last {
		return e.observations[last]
	}

	i := sort.Search(len(e.targets), func(i int) bool {
		return e.targets[i] > target
	})
	lo, hi := e.targets[i-1], e.targets[i]
	return SatPerKVByte(mathutil.Interpolate(
		uint64(lo), uint64(e.observations[lo]),
		uint64(hi), uint64(e.observations[hi]),
		uint64(target),
	))
}

func (e *Estimator) clamp(rate SatPerKVByte) SatPerKVByte {
	if rate < e.cfg.MinRelayFee {
		return e.cfg.MinRelayFee
	}
	return rate
}

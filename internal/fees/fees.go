// Package fees implements the deposit fee schedule and amount bounds.
package fees

import (
	"fmt"
	"sort"
)

// Config holds the fee schedule and amount bounds. All values are in minor
// units. Tiers are given as "upTo:fee" pairs; amounts above the last tier
// pay the overflow fee.
type Config struct {
	MinAmountMinor int64 `envconfig:"FEES_MIN_AMOUNT" default:"100"`
	MaxAmountMinor int64 `envconfig:"FEES_MAX_AMOUNT" default:"1000000"`

	Tier1UpTo int64 `envconfig:"FEES_TIER1_UP_TO" default:"1000"`
	Tier1Fee  int64 `envconfig:"FEES_TIER1_FEE" default:"50"`
	Tier2UpTo int64 `envconfig:"FEES_TIER2_UP_TO" default:"5000"`
	Tier2Fee  int64 `envconfig:"FEES_TIER2_FEE" default:"100"`
	Tier3UpTo int64 `envconfig:"FEES_TIER3_UP_TO" default:"50000"`
	Tier3Fee  int64 `envconfig:"FEES_TIER3_FEE" default:"250"`

	OverflowFee int64 `envconfig:"FEES_OVERFLOW_FEE" default:"500"`
}

// Tier is one flat-fee band of the schedule.
type Tier struct {
	UpToMinor int64
	FeeMinor  int64
}

// Schedule computes deposit fees and validates amount bounds. It is pure
// and deterministic; the fee in force is snapshotted into transaction
// metadata at creation time, so later schedule changes never rewrite
// already-persisted transactions.
type Schedule struct {
	minAmount   int64
	maxAmount   int64
	tiers       []Tier
	overflowFee int64
}

// NewSchedule builds a schedule from config. Tiers are sorted by their
// upper bound.
func NewSchedule(cfg Config) *Schedule {
	tiers := []Tier{
		{UpToMinor: cfg.Tier1UpTo, FeeMinor: cfg.Tier1Fee},
		{UpToMinor: cfg.Tier2UpTo, FeeMinor: cfg.Tier2Fee},
		{UpToMinor: cfg.Tier3UpTo, FeeMinor: cfg.Tier3Fee},
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].UpToMinor < tiers[j].UpToMinor })

	return &Schedule{
		minAmount:   cfg.MinAmountMinor,
		maxAmount:   cfg.MaxAmountMinor,
		tiers:       tiers,
		overflowFee: cfg.OverflowFee,
	}
}

// Fee returns the flat fee for an amount according to the tier bands.
func (s *Schedule) Fee(amountMinor int64) int64 {
	for _, t := range s.tiers {
		if amountMinor <= t.UpToMinor {
			return t.FeeMinor
		}
	}
	return s.overflowFee
}

// ValidationError reports why an amount was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid amount: %v", e.Reasons)
}

// ValidateAmount enforces the dust floor and the per-transaction ceiling.
// Returns nil when the amount is acceptable.
func (s *Schedule) ValidateAmount(amountMinor int64) error {
	var reasons []string

	if amountMinor <= 0 {
		reasons = append(reasons, "amount must be positive")
	}
	if amountMinor > 0 && amountMinor < s.minAmount {
		reasons = append(reasons, fmt.Sprintf("amount below minimum of %d", s.minAmount))
	}
	if amountMinor > s.maxAmount {
		reasons = append(reasons, fmt.Sprintf("amount above maximum of %d", s.maxAmount))
	}

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

// MinAmount returns the configured dust floor.
func (s *Schedule) MinAmount() int64 { return s.minAmount }

// MaxAmount returns the configured per-transaction ceiling.
func (s *Schedule) MaxAmount() int64 { return s.maxAmount }

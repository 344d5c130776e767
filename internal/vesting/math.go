// Package vesting holds the pure schedule math: release timing, amounts and
// the funding reconciliation check. Nothing in this package touches chain or
// storage state.
package vesting

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrComputation wraps every invalid-parameter failure. Callers must reject
// the schedule before any on-chain call while this error is present.
var ErrComputation = errors.New("vesting computation error")

type Frequency string

const (
	FrequencyContinuous Frequency = "continuous"
	FrequencyHourly     Frequency = "hourly"
	FrequencyDaily      Frequency = "daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyYearly     Frequency = "yearly"
)

var frequencySeconds = map[Frequency]int64{
	FrequencyHourly:  60 * 60,
	FrequencyDaily:   24 * 60 * 60,
	FrequencyWeekly:  7 * 24 * 60 * 60,
	FrequencyMonthly: 30 * 24 * 60 * 60,
	FrequencyYearly:  365 * 24 * 60 * 60,
}

type CliffDuration string

const CliffNone CliffDuration = "no-cliff"

var cliffShift = map[CliffDuration]func(time.Time) time.Time{
	"1-week":    func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
	"2-weeks":   func(t time.Time) time.Time { return t.AddDate(0, 0, 14) },
	"1-month":   func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	"3-months":  func(t time.Time) time.Time { return t.AddDate(0, 3, 0) },
	"6-months":  func(t time.Time) time.Time { return t.AddDate(0, 6, 0) },
	"1-year":    func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
	"2-years":   func(t time.Time) time.Time { return t.AddDate(2, 0, 0) },
}

type Params struct {
	Start          time.Time
	End            time.Time
	Cliff          CliffDuration
	LumpSumPercent decimal.Decimal
	Frequency      Frequency
	Amount         decimal.Decimal
}

func (p Params) validate() error {
	if !p.End.After(p.Start) {
		return fmt.Errorf("%w: end date is not after start date", ErrComputation)
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount to be vested must be positive", ErrComputation)
	}
	if p.Cliff != CliffNone {
		if _, ok := cliffShift[p.Cliff]; !ok {
			return fmt.Errorf("%w: unsupported cliff duration %q", ErrComputation, p.Cliff)
		}
	}
	if p.Frequency != FrequencyContinuous {
		if _, ok := frequencySeconds[p.Frequency]; !ok {
			return fmt.Errorf("%w: unsupported release frequency %q", ErrComputation, p.Frequency)
		}
	}
	if p.LumpSumPercent.LessThan(decimal.Zero) || p.LumpSumPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: lump sum percent outside [0,100]", ErrComputation)
	}
	return nil
}

// CliffDate returns the start shifted by the cliff duration. The second
// return is false when the schedule has no cliff.
func CliffDate(start time.Time, cliff CliffDuration) (time.Time, bool, error) {
	if cliff == CliffNone {
		return time.Time{}, false, nil
	}
	shift, ok := cliffShift[cliff]
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: unsupported cliff duration %q", ErrComputation, cliff)
	}
	return shift(start), true, nil
}

// CliffAmount is the lump sum released when the cliff ends; zero without a
// cliff regardless of the configured percentage.
func CliffAmount(cliff CliffDuration, lumpSumPercent, totalAmount decimal.Decimal) decimal.Decimal {
	if cliff == CliffNone {
		return decimal.Zero
	}
	return totalAmount.Mul(lumpSumPercent).Div(decimal.NewFromInt(100))
}

// effectiveStart is where linear releases begin: the cliff date with a
// cliff, the start date without one.
func effectiveStart(p Params) (time.Time, error) {
	cliffAt, hasCliff, err := CliffDate(p.Start, p.Cliff)
	if err != nil {
		return time.Time{}, err
	}
	if hasCliff {
		if !p.End.After(cliffAt) {
			return time.Time{}, fmt.Errorf("%w: cliff ends on or after the end date", ErrComputation)
		}
		return cliffAt, nil
	}
	return p.Start, nil
}

// ReleaseIntervalSeconds is the length of one release interval. Continuous
// schedules release every second, so the release count equals the vesting
// window length.
func ReleaseIntervalSeconds(p Params) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	if p.Frequency == FrequencyContinuous {
		return 1, nil
	}
	return frequencySeconds[p.Frequency], nil
}

// NumberOfReleases is ceil(window / interval) with a floor of one release.
func NumberOfReleases(p Params) (int64, error) {
	interval, err := ReleaseIntervalSeconds(p)
	if err != nil {
		return 0, err
	}
	from, err := effectiveStart(p)
	if err != nil {
		return 0, err
	}
	window := p.End.Unix() - from.Unix()
	releases := window / interval
	if window%interval != 0 {
		releases++
	}
	if releases < 1 {
		releases = 1
	}
	return releases, nil
}

// ProjectedEndDate snaps the end date FORWARD to the next release-interval
// boundary from the effective start. The vesting contract requires the
// window to divide exactly by the interval; advancing (never truncating)
// guarantees recipients are never under-paid.
func ProjectedEndDate(p Params) (time.Time, error) {
	interval, err := ReleaseIntervalSeconds(p)
	if err != nil {
		return time.Time{}, err
	}
	from, err := effectiveStart(p)
	if err != nil {
		return time.Time{}, err
	}
	releases, err := NumberOfReleases(p)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(from.Unix()+releases*interval, 0).UTC(), nil
}

type Recipient struct {
	WalletAddress string
	// Allocation is the recipient's percentage share of the total amount.
	Allocation decimal.Decimal
}

// RecipientAmounts carries the two tranches per recipient, index-aligned
// with the input recipient list.
type RecipientAmounts struct {
	Linear []decimal.Decimal
	Cliff  []decimal.Decimal
}

// PerRecipientAmounts splits the total across recipients by allocation and
// separates each share into a cliff tranche and a linear tranche. Shares are
// floored to whole token units; the last recipient absorbs the rounding
// dust so the tranches sum exactly to the total.
func PerRecipientAmounts(recipients []Recipient, p Params) (*RecipientAmounts, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: schedule has no recipients", ErrComputation)
	}

	hundred := decimal.NewFromInt(100)
	allocated := decimal.Zero
	for _, r := range recipients {
		allocated = allocated.Add(r.Allocation)
	}
	if !allocated.Equal(hundred) {
		return nil, fmt.Errorf("%w: recipient allocations sum to %s, want 100", ErrComputation, allocated)
	}

	cliffPercent := decimal.Zero
	if p.Cliff != CliffNone {
		cliffPercent = p.LumpSumPercent
	}

	out := &RecipientAmounts{
		Linear: make([]decimal.Decimal, len(recipients)),
		Cliff:  make([]decimal.Decimal, len(recipients)),
	}
	distributed := decimal.Zero
	for i, r := range recipients {
		share := p.Amount.Mul(r.Allocation).Div(hundred).Floor()
		if i == len(recipients)-1 {
			share = p.Amount.Sub(distributed)
		}
		distributed = distributed.Add(share)

		cliffShare := share.Mul(cliffPercent).Div(hundred).Floor()
		out.Cliff[i] = cliffShare
		out.Linear[i] = share.Sub(cliffShare)
	}

	return out, nil
}

// BatchClaimInputs are the parallel arrays consumed by the vesting
// contract's batch claim call, one entry per recipient.
type BatchClaimInputs struct {
	Recipients       []string
	StartTimestamps  []int64
	EndTimestamps    []int64
	CliffTimestamps  []int64
	ReleaseIntervals []int64
	LinearAmounts    []decimal.Decimal
	CliffAmounts     []decimal.Decimal
}

// BuildBatchClaimInputs assembles the batch arrays for one schedule. The
// end timestamp is the projected (boundary-snapped) end, not the raw end.
func BuildBatchClaimInputs(recipients []Recipient, p Params) (*BatchClaimInputs, error) {
	amounts, err := PerRecipientAmounts(recipients, p)
	if err != nil {
		return nil, err
	}
	interval, err := ReleaseIntervalSeconds(p)
	if err != nil {
		return nil, err
	}
	projectedEnd, err := ProjectedEndDate(p)
	if err != nil {
		return nil, err
	}

	cliffAt, hasCliff, err := CliffDate(p.Start, p.Cliff)
	if err != nil {
		return nil, err
	}
	cliffTimestamp := int64(0)
	if hasCliff {
		cliffTimestamp = cliffAt.Unix()
	}

	out := &BatchClaimInputs{
		Recipients:       make([]string, len(recipients)),
		StartTimestamps:  make([]int64, len(recipients)),
		EndTimestamps:    make([]int64, len(recipients)),
		CliffTimestamps:  make([]int64, len(recipients)),
		ReleaseIntervals: make([]int64, len(recipients)),
		LinearAmounts:    amounts.Linear,
		CliffAmounts:     amounts.Cliff,
	}
	for i, r := range recipients {
		out.Recipients[i] = r.WalletAddress
		out.StartTimestamps[i] = p.Start.Unix()
		out.EndTimestamps[i] = projectedEnd.Unix()
		out.CliffTimestamps[i] = cliffTimestamp
		out.ReleaseIntervals[i] = interval
	}
	return out, nil
}

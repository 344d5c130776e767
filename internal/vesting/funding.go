package vesting

import "github.com/shopspring/decimal"

// FundingCheck is the reconciler's verdict for one schedule against the
// contract's current on-chain figures.
type FundingCheck struct {
	Required bool
	Deposit  decimal.Decimal
}

// Reconcile compares the contract's token balance and the tokens already
// reserved for existing claims against what the schedule needs. Pure; it is
// re-evaluated whenever any of the three inputs changes and callers branch
// display status on the result.
func Reconcile(balance, reserved, amountToBeVested decimal.Decimal) FundingCheck {
	available := balance.Sub(reserved)

	check := FundingCheck{
		Required: balance.GreaterThanOrEqual(reserved) && available.LessThan(amountToBeVested),
		Deposit:  decimal.Zero,
	}
	if deposit := amountToBeVested.Sub(available); deposit.GreaterThan(decimal.Zero) {
		check.Deposit = deposit
	}
	return check
}

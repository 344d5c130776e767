// Package lifecycle is the per-schedule controller: it reconciles the
// persisted vesting record with on-chain facts to derive a display status
// and the single legal next action, and performs the transitions.
package lifecycle

import (
	"errors"

	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/polartar/vtvl-engine/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	// ErrOpenTransaction means a second proposal was attempted while one is
	// already open for the schedule. Caller error, not a valid path.
	ErrOpenTransaction = errors.New("schedule already has an open transaction")

	// ErrIllegalAction means the requested action is not legal in the
	// schedule's current state.
	ErrIllegalAction = errors.New("action is not legal in the current state")

	// ErrInsufficientFunds means the signer's token balance cannot cover
	// the required deposit.
	ErrInsufficientFunds = errors.New("insufficient token balance for deposit")

	// ErrAwaitingConfirmation means the on-chain result is not final yet;
	// the record stays PENDING and the caller re-invokes later.
	ErrAwaitingConfirmation = errors.New("transaction is awaiting on-chain confirmation")
)

type Action string

const (
	ActionCreateContract Action = "create-contract"
	ActionFund           Action = "fund"
	ActionCreateAndSign  Action = "create-and-sign"
	ActionApprove        Action = "approve"
	ActionExecute        Action = "execute"
	ActionRevoke         Action = "revoke"
)

// ExecutionContext carries the session facts every engine call needs.
// Passed explicitly so the engine has no ambient session dependency.
type ExecutionContext struct {
	SignerAddress  string
	ChainID        int64
	OrganizationID string
}

// Facts are the on-chain readings a status computation depends on. They are
// gathered immediately before the computation, never cached across calls.
type Facts struct {
	ContractBalance decimal.Decimal
	ReservedTokens  decimal.Decimal
	Threshold       int
	// Confirmations is the open proposal's current approver set; empty when
	// no proposal is open or the open transaction was a direct send.
	Confirmations []string
}

// StatusView is what the dashboard renders for one schedule.
type StatusView struct {
	Status       storage.VestingStatus
	SubState     multisig.SubState
	LegalActions []Action
}

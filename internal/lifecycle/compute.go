package lifecycle

import (
	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/polartar/vtvl-engine/internal/storage"
	"github.com/polartar/vtvl-engine/internal/vesting"
	"github.com/shopspring/decimal"
)

// ComputeStatus derives the display status, sub-state and legal action set
// for one schedule. Pure: every input is passed in, nothing is read or
// written. Invoking it twice with unchanged inputs yields identical output.
//
// Decision order:
//  1. terminal and LIVE schedules keep their status (LIVE is monotonic);
//  2. without an initialized contract the schedule needs one;
//  3. without an open transaction the funding reconciler decides between
//     FUNDING_REQUIRED and AUTHORIZATION_REQUIRED, both at INITIALIZE;
//  4. with an open transaction the sub-state follows the approver count
//     against the threshold, and the top-level status mirrors the
//     transaction type.
func ComputeStatus(
	schedule *storage.VestingSchedule,
	contract *storage.VestingContract,
	openTx *storage.Transaction,
	facts Facts,
	caller string,
) StatusView {
	if schedule.Status.Terminal() {
		return StatusView{Status: schedule.Status}
	}

	if schedule.Status == storage.VestingStatusLive {
		view := StatusView{Status: storage.VestingStatusLive}
		if openTx == nil {
			view.LegalActions = []Action{ActionRevoke}
			return view
		}
		// an open revocation rides on the LIVE status; only the sub-state
		// and action change
		view.SubState, view.LegalActions = openSubState(openTx, facts, caller)
		return view
	}

	if contract == nil || contract.Status != storage.ContractStatusInitialized {
		return StatusView{
			Status:       storage.VestingStatusContractRequired,
			LegalActions: []Action{ActionCreateContract},
		}
	}

	if openTx == nil {
		amount, err := decimal.NewFromString(schedule.AmountToBeVested)
		if err != nil {
			// a corrupt amount must not read as fully funded; freeze the
			// schedule with no legal actions until the record is repaired
			return StatusView{Status: schedule.Status}
		}
		check := vesting.Reconcile(facts.ContractBalance, facts.ReservedTokens, amount)
		if check.Required {
			return StatusView{
				Status:       storage.VestingStatusFundingRequired,
				SubState:     multisig.SubStateInitialize,
				LegalActions: []Action{ActionFund},
			}
		}
		return StatusView{
			Status:       storage.VestingStatusAuthorizationRequired,
			SubState:     multisig.SubStateInitialize,
			LegalActions: []Action{ActionCreateAndSign},
		}
	}

	status := storage.VestingStatusAuthorizationRequired
	if openTx.Type == storage.TransactionTypeFundingContract {
		status = storage.VestingStatusFundingRequired
	}
	view := StatusView{Status: status}
	view.SubState, view.LegalActions = openSubState(openTx, facts, caller)
	return view
}

// openSubState classifies an open transaction for the caller. Direct sends
// carry no approver set; they sit at WAITING_APPROVAL until the chain
// confirms them.
func openSubState(openTx *storage.Transaction, facts Facts, caller string) (multisig.SubState, []Action) {
	if openTx.SafeHash == "" {
		return multisig.SubStateWaitingApproval, nil
	}

	confirmations := facts.Confirmations
	if confirmations == nil {
		confirmations = openTx.Approvers
	}

	if facts.Threshold > 0 && len(confirmations) >= facts.Threshold {
		return multisig.SubStateExecutable, []Action{ActionExecute}
	}
	for _, approver := range confirmations {
		if approver == caller {
			return multisig.SubStateWaitingApproval, nil
		}
	}
	return multisig.SubStateApprovalRequired, []Action{ActionApprove}
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/polartar/vtvl-engine/internal/logger"
	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/polartar/vtvl-engine/internal/storage"
	"github.com/polartar/vtvl-engine/internal/vesting"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine performs the side-effecting lifecycle transitions. Every action is
// read-then-decide-then-act: authoritative state (approver count, nonce) is
// re-read at the action boundary, never carried over from an earlier
// computation, because other approvers race against the same chain state
// from their own sessions.
type Engine struct {
	store       storage.Storage
	coordinator *multisig.Coordinator
	contract    ContractClient
	token       TokenClient
}

func NewEngine(store storage.Storage, coordinator *multisig.Coordinator, contract ContractClient, token TokenClient) *Engine {
	return &Engine{
		store:       store,
		coordinator: coordinator,
		contract:    contract,
		token:       token,
	}
}

// ActionRequest names the transition to perform. Recipient is only consulted
// for revocations.
type ActionRequest struct {
	Action     Action
	ScheduleID string
	Recipient  string
}

// Apply dispatches one action for one schedule.
func (e *Engine) Apply(ctx context.Context, ec ExecutionContext, req ActionRequest) error {
	switch req.Action {
	case ActionCreateContract:
		return e.CreateContract(ctx, ec)
	case ActionFund:
		return e.Fund(ctx, ec, req.ScheduleID)
	case ActionCreateAndSign:
		return e.CreateAndSign(ctx, ec, req.ScheduleID)
	case ActionApprove:
		return e.Approve(ctx, ec, req.ScheduleID)
	case ActionExecute:
		return e.Execute(ctx, ec, req.ScheduleID)
	case ActionRevoke:
		return e.Revoke(ctx, ec, req.ScheduleID, req.Recipient)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrIllegalAction, req.Action)
	}
}

// StatusFor gathers fresh on-chain facts and computes the schedule's view.
func (e *Engine) StatusFor(ctx context.Context, ec ExecutionContext, scheduleID string) (*StatusView, error) {
	schedule, err := e.store.GetVesting(scheduleID)
	if err != nil {
		return nil, err
	}
	contract, err := e.store.GetContractForOrganization(schedule.OrganizationID, schedule.ChainID)
	if err != nil {
		return nil, err
	}
	openTx, err := e.store.GetOpenTransactionForVesting(scheduleID)
	if err != nil {
		return nil, err
	}

	facts, err := e.gatherFacts(ctx, contract, openTx)
	if err != nil {
		return nil, err
	}

	view := ComputeStatus(schedule, contract, openTx, facts, ec.SignerAddress)
	return &view, nil
}

func (e *Engine) gatherFacts(ctx context.Context, contract *storage.VestingContract, openTx *storage.Transaction) (Facts, error) {
	var facts Facts

	if contract != nil && contract.Status == storage.ContractStatusInitialized {
		balance, err := e.token.BalanceOf(ctx, e.contract.Address())
		if err != nil {
			return facts, fmt.Errorf("read contract balance: %w", err)
		}
		reserved, err := e.contract.NumTokensReservedForVesting(ctx)
		if err != nil {
			return facts, fmt.Errorf("read reserved tokens: %w", err)
		}
		facts.ContractBalance = balance
		facts.ReservedTokens = reserved
	}

	threshold, err := e.coordinator.Threshold(ctx)
	if err != nil {
		return facts, fmt.Errorf("read threshold: %w", err)
	}
	facts.Threshold = threshold

	if openTx != nil && openTx.SafeHash != "" {
		confirmations, err := e.coordinator.Confirmations(ctx, openTx.SafeHash)
		if err != nil {
			return facts, fmt.Errorf("read confirmations: %w", err)
		}
		facts.Confirmations = confirmations
	}

	return facts, nil
}

// CreateContract deploys the organization's vesting contract when it does
// not exist yet. Idempotent: an initialized contract short-circuits.
func (e *Engine) CreateContract(ctx context.Context, ec ExecutionContext) error {
	existing, err := e.store.GetContractForOrganization(ec.OrganizationID, ec.ChainID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == storage.ContractStatusInitialized {
		return nil
	}

	address, err := e.contract.Deploy(ctx, ec.OrganizationID)
	if err != nil {
		return fmt.Errorf("deploy vesting contract: %w", err)
	}

	record := &storage.VestingContract{
		OrganizationID: ec.OrganizationID,
		ChainID:        ec.ChainID,
		Address:        address,
		Status:         storage.ContractStatusInitialized,
	}
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	return e.store.CreateOrUpdateContract(record)
}

// CreateAndSign computes the batch claim arrays, proposes them through the
// multisig (or sends directly when the wallet has a single signer) and
// persists the new transaction. Legal only while no transaction is open.
func (e *Engine) CreateAndSign(ctx context.Context, ec ExecutionContext, scheduleID string) error {
	schedule, err := e.store.GetVesting(scheduleID)
	if err != nil {
		return err
	}
	if schedule.Status.Terminal() || schedule.Status == storage.VestingStatusLive {
		return fmt.Errorf("%w: schedule is %s", ErrIllegalAction, schedule.Status)
	}
	if err := e.requireNoOpenTransaction(scheduleID); err != nil {
		return err
	}
	contract, err := e.requireContract(schedule.OrganizationID, schedule.ChainID)
	if err != nil {
		return err
	}

	params, recipients, err := scheduleParams(schedule)
	if err != nil {
		return err
	}
	// computation errors abort here, before any chain call
	inputs, err := vesting.BuildBatchClaimInputs(recipients, params)
	if err != nil {
		return err
	}
	txData, err := e.contract.CreateClaimsBatchData(inputs)
	if err != nil {
		return fmt.Errorf("encode batch claims: %w", err)
	}

	transaction := &storage.Transaction{
		Type:           storage.TransactionTypeAddingClaims,
		Status:         storage.TransactionStatusPending,
		Nonce:          storage.NonceUnassigned,
		VestingIDs:     []string{schedule.ID},
		ChainID:        schedule.ChainID,
		OrganizationID: schedule.OrganizationID,
	}
	if err := e.submit(ctx, ec, transaction, txData); err != nil {
		return err
	}

	schedule.Status = storage.VestingStatusAuthorizationRequired
	schedule.ContractID = contract.ID
	if err := e.store.RecordProposal(transaction, []*storage.VestingSchedule{schedule}); err != nil {
		return err
	}

	logger.Info("created claims transaction",
		zap.String("schedule", schedule.ID),
		zap.String("safe hash", transaction.SafeHash),
		zap.String("hash", transaction.Hash),
	)
	return nil
}

// submit routes one call through the multisig proposal flow, or directly
// when the threshold does not require co-signers. Fills hash/nonce/approver
// fields on the record but does not persist it.
func (e *Engine) submit(ctx context.Context, ec ExecutionContext, transaction *storage.Transaction, txData multisig.TxData) error {
	threshold, err := e.coordinator.Threshold(ctx)
	if err != nil {
		return fmt.Errorf("read threshold: %w", err)
	}

	if threshold <= 1 {
		hash, err := e.coordinator.DirectSend(ctx, txData)
		if err != nil {
			return fmt.Errorf("direct send: %w", err)
		}
		transaction.Hash = hash
		return nil
	}

	receipt, err := e.coordinator.Propose(ctx, txData)
	if err != nil {
		return err
	}
	transaction.SafeHash = receipt.SafeHash
	transaction.Nonce = receipt.Nonce
	transaction.Approvers = []string{ec.SignerAddress}
	return nil
}

// Approve adds the caller's signature to the open proposal. Legal only at
// APPROVAL_REQUIRED: approving twice or approving an executable proposal is
// a caller error.
func (e *Engine) Approve(ctx context.Context, ec ExecutionContext, scheduleID string) error {
	transaction, err := e.store.GetOpenTransactionForVesting(scheduleID)
	if err != nil {
		return err
	}
	if transaction == nil || transaction.SafeHash == "" {
		return fmt.Errorf("%w: no open proposal to approve", ErrIllegalAction)
	}

	subState, err := e.coordinator.SubStateFor(ctx, transaction.SafeHash, ec.SignerAddress)
	if err != nil {
		return err
	}
	if subState != multisig.SubStateApprovalRequired {
		return fmt.Errorf("%w: proposal is at %s", ErrIllegalAction, subState)
	}

	count, err := e.coordinator.Approve(ctx, transaction.SafeHash)
	if err != nil {
		return err
	}

	transaction.Approvers = append(transaction.Approvers, ec.SignerAddress)
	if err := e.store.UpdateTransaction(transaction); err != nil {
		return err
	}

	logger.Info("approved proposal",
		zap.String("schedule", scheduleID),
		zap.String("safe hash", transaction.SafeHash),
		zap.Int("confirmations", count),
	)
	return nil
}

// Execute submits the fully-signed proposal, or finalizes a direct send by
// checking its confirmation. The coordinator's nonce guard aborts when
// another approver executed a transaction first; the caller must re-invoke
// after the pending transaction settles.
func (e *Engine) Execute(ctx context.Context, ec ExecutionContext, scheduleID string) error {
	transaction, err := e.store.GetOpenTransactionForVesting(scheduleID)
	if err != nil {
		return err
	}
	if transaction == nil {
		return fmt.Errorf("%w: no open transaction to execute", ErrIllegalAction)
	}

	if transaction.SafeHash == "" {
		return e.finalizeOutcome(ctx, transaction)
	}

	hash, err := e.coordinator.Execute(ctx, transaction.SafeHash, transaction.Nonce)
	if err != nil {
		return err
	}
	transaction.Hash = hash
	return e.finalizeOutcome(ctx, transaction)
}

// finalizeOutcome settles a sent transaction against its on-chain result.
// Ambiguous outcomes leave the record PENDING; the displayed status never
// advances optimistically.
func (e *Engine) finalizeOutcome(ctx context.Context, transaction *storage.Transaction) error {
	outcome, err := e.contract.TransactionOutcome(ctx, transaction.Hash)
	if err != nil {
		return fmt.Errorf("check transaction outcome: %w", err)
	}

	switch outcome {
	case TxOutcomeConfirmed:
		return e.completeSuccess(ctx, transaction)
	case TxOutcomeReverted:
		transaction.Status = storage.TransactionStatusError
		if err := e.store.UpdateTransaction(transaction); err != nil {
			return err
		}
		return fmt.Errorf("transaction %s reverted on-chain", transaction.ID)
	default:
		// persist the hash so a later invocation can re-check
		if err := e.store.UpdateTransaction(transaction); err != nil {
			return err
		}
		return ErrAwaitingConfirmation
	}
}

// completeSuccess marks the transaction SUCCESS and advances everything it
// batched, as a single storage transaction.
func (e *Engine) completeSuccess(ctx context.Context, transaction *storage.Transaction) error {
	transaction.Status = storage.TransactionStatusSuccess

	var vestings []*storage.VestingSchedule
	for _, vestingID := range transaction.VestingIDs {
		schedule, err := e.store.GetVesting(vestingID)
		if err != nil {
			return err
		}
		switch transaction.Type {
		case storage.TransactionTypeAddingClaims:
			schedule.Status = storage.VestingStatusLive
		case storage.TransactionTypeFundingContract:
			schedule.Status = storage.VestingStatusAuthorizationRequired
		}
		vestings = append(vestings, schedule)
	}

	var revokings []*storage.Revoking
	if transaction.Type == storage.TransactionTypeRevokeClaim {
		list, err := e.store.ListRevokingsForTransaction(transaction.ID)
		if err != nil {
			return err
		}
		for _, revoking := range list {
			revoking.Status = storage.RevokingStatusSuccess
		}
		revokings = list
	}

	if err := e.store.CompleteTransaction(transaction, vestings, revokings); err != nil {
		return err
	}

	if transaction.Type == storage.TransactionTypeFundingContract {
		if err := e.refreshContractBalance(ctx, transaction); err != nil {
			logger.Warn("funding confirmed but balance snapshot refresh failed", zap.Error(err))
		}
	}

	logger.Info("transaction confirmed",
		zap.String("transaction", transaction.ID),
		zap.String("type", string(transaction.Type)),
	)
	return nil
}

func (e *Engine) refreshContractBalance(ctx context.Context, transaction *storage.Transaction) error {
	record, err := e.store.GetContractForOrganization(transaction.OrganizationID, transaction.ChainID)
	if err != nil || record == nil {
		return err
	}
	balance, err := e.token.BalanceOf(ctx, e.contract.Address())
	if err != nil {
		return err
	}
	record.Balance = balance.String()
	return e.store.CreateOrUpdateContract(record)
}

// Fund moves the deposit the reconciler asks for into the vesting contract.
// Multi-signer wallets go through a FUNDING_CONTRACT proposal; a single
// signer transfers directly, raising the allowance first when it is short.
func (e *Engine) Fund(ctx context.Context, ec ExecutionContext, scheduleID string) error {
	schedule, err := e.store.GetVesting(scheduleID)
	if err != nil {
		return err
	}
	if schedule.Status.Terminal() || schedule.Status == storage.VestingStatusLive {
		return fmt.Errorf("%w: schedule is %s", ErrIllegalAction, schedule.Status)
	}
	if err := e.requireNoOpenTransaction(scheduleID); err != nil {
		return err
	}
	if _, err := e.requireContract(schedule.OrganizationID, schedule.ChainID); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(schedule.AmountToBeVested)
	if err != nil {
		return fmt.Errorf("%w: bad amount %q", vesting.ErrComputation, schedule.AmountToBeVested)
	}
	balance, err := e.token.BalanceOf(ctx, e.contract.Address())
	if err != nil {
		return fmt.Errorf("read contract balance: %w", err)
	}
	reserved, err := e.contract.NumTokensReservedForVesting(ctx)
	if err != nil {
		return fmt.Errorf("read reserved tokens: %w", err)
	}

	check := vesting.Reconcile(balance, reserved, amount)
	if !check.Required {
		logger.Debug("funding not required", zap.String("schedule", scheduleID))
		return nil
	}

	transaction := &storage.Transaction{
		Type:           storage.TransactionTypeFundingContract,
		Status:         storage.TransactionStatusPending,
		Amount:         check.Deposit.String(),
		Nonce:          storage.NonceUnassigned,
		VestingIDs:     []string{schedule.ID},
		ChainID:        schedule.ChainID,
		OrganizationID: schedule.OrganizationID,
	}

	threshold, err := e.coordinator.Threshold(ctx)
	if err != nil {
		return fmt.Errorf("read threshold: %w", err)
	}
	if threshold <= 1 {
		if err := e.directDeposit(ctx, ec, transaction, check.Deposit); err != nil {
			return err
		}
	} else {
		txData, err := e.token.TransferData(e.contract.Address(), check.Deposit)
		if err != nil {
			return fmt.Errorf("encode deposit transfer: %w", err)
		}
		receipt, err := e.coordinator.Propose(ctx, txData)
		if err != nil {
			return err
		}
		transaction.SafeHash = receipt.SafeHash
		transaction.Nonce = receipt.Nonce
		transaction.Approvers = []string{ec.SignerAddress}
	}

	schedule.Status = storage.VestingStatusFundingRequired
	if err := e.store.RecordProposal(transaction, []*storage.VestingSchedule{schedule}); err != nil {
		return err
	}

	logger.Info("created funding transaction",
		zap.String("schedule", schedule.ID),
		zap.String("deposit", check.Deposit.String()),
	)
	return nil
}

// directDeposit is the single-signer funding path: balance check, then the
// approve-then-transfer two-step when the allowance is short.
func (e *Engine) directDeposit(ctx context.Context, ec ExecutionContext, transaction *storage.Transaction, deposit decimal.Decimal) error {
	signerBalance, err := e.token.BalanceOf(ctx, ec.SignerAddress)
	if err != nil {
		return fmt.Errorf("read signer balance: %w", err)
	}
	if signerBalance.LessThan(deposit) {
		return ErrInsufficientFunds
	}

	allowance, err := e.token.Allowance(ctx, ec.SignerAddress, e.contract.Address())
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.LessThan(deposit) {
		if _, err := e.token.Approve(ctx, e.contract.Address(), deposit); err != nil {
			return fmt.Errorf("raise allowance: %w", err)
		}
	}

	hash, err := e.token.Transfer(ctx, e.contract.Address(), deposit)
	if err != nil {
		return fmt.Errorf("transfer deposit: %w", err)
	}
	transaction.Hash = hash
	return nil
}

// Revoke cancels one recipient's future claim. Legal only while the
// schedule is LIVE; the schedule stays LIVE, only the Revoking record and
// the on-chain claim change.
func (e *Engine) Revoke(ctx context.Context, ec ExecutionContext, scheduleID, recipient string) error {
	schedule, err := e.store.GetVesting(scheduleID)
	if err != nil {
		return err
	}
	if schedule.Status != storage.VestingStatusLive {
		return fmt.Errorf("%w: revoke requires a LIVE schedule, got %s", ErrIllegalAction, schedule.Status)
	}
	if err := e.requireNoOpenTransaction(scheduleID); err != nil {
		return err
	}

	known := false
	for _, r := range schedule.Recipients {
		if r.WalletAddress == recipient {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %s is not a recipient of this schedule", ErrIllegalAction, recipient)
	}

	txData, err := e.contract.RevokeClaimData(recipient)
	if err != nil {
		return fmt.Errorf("encode revoke claim: %w", err)
	}

	transaction := &storage.Transaction{
		Type:           storage.TransactionTypeRevokeClaim,
		Status:         storage.TransactionStatusPending,
		Nonce:          storage.NonceUnassigned,
		VestingIDs:     []string{schedule.ID},
		ChainID:        schedule.ChainID,
		OrganizationID: schedule.OrganizationID,
	}
	if err := e.submit(ctx, ec, transaction, txData); err != nil {
		return err
	}

	if err := e.store.RecordProposal(transaction, []*storage.VestingSchedule{schedule}); err != nil {
		return err
	}
	if _, err := e.store.CreateRevoking(&storage.Revoking{
		VestingID:     schedule.ID,
		Recipient:     recipient,
		TransactionID: transaction.ID,
		Status:        storage.RevokingStatusPending,
	}); err != nil {
		return err
	}

	logger.Info("created revoke transaction",
		zap.String("schedule", schedule.ID),
		zap.String("recipient", recipient),
	)
	return nil
}

// WithdrawAdmin moves unreserved tokens back out of the vesting contract.
// Organization-level: no schedule is involved and none is blocked by the
// resulting transaction. Capped at balance minus reserved so tokens already
// committed to claims can never leave.
func (e *Engine) WithdrawAdmin(ctx context.Context, ec ExecutionContext, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: withdraw amount must be positive", ErrIllegalAction)
	}
	if _, err := e.requireContract(ec.OrganizationID, ec.ChainID); err != nil {
		return err
	}

	balance, err := e.token.BalanceOf(ctx, e.contract.Address())
	if err != nil {
		return fmt.Errorf("read contract balance: %w", err)
	}
	reserved, err := e.contract.NumTokensReservedForVesting(ctx)
	if err != nil {
		return fmt.Errorf("read reserved tokens: %w", err)
	}
	if amount.GreaterThan(balance.Sub(reserved)) {
		return ErrInsufficientFunds
	}

	txData, err := e.contract.WithdrawAdminData(amount)
	if err != nil {
		return fmt.Errorf("encode admin withdraw: %w", err)
	}

	transaction := &storage.Transaction{
		Type:           storage.TransactionTypeAdminWithdraw,
		Status:         storage.TransactionStatusPending,
		Amount:         amount.String(),
		Nonce:          storage.NonceUnassigned,
		ChainID:        ec.ChainID,
		OrganizationID: ec.OrganizationID,
	}
	if err := e.submit(ctx, ec, transaction, txData); err != nil {
		return err
	}
	if _, err := e.store.CreateTransaction(transaction); err != nil {
		return err
	}

	logger.Info("created admin withdraw transaction",
		zap.String("organization", ec.OrganizationID),
		zap.String("amount", amount.String()),
	)
	return nil
}

// FinalizePending re-checks every sent-but-unsettled transaction. Called by
// the synchronizer so direct sends and externally executed proposals settle
// without a user action.
func (e *Engine) FinalizePending(ctx context.Context, organizationID string) error {
	pending, err := e.store.ListPendingTransactions(organizationID)
	if err != nil {
		return err
	}
	for _, transaction := range pending {
		if transaction.Hash == "" {
			continue
		}
		if err := e.finalizeOutcome(ctx, transaction); err != nil {
			if errors.Is(err, ErrAwaitingConfirmation) {
				continue
			}
			logger.Warn("finalize pending transaction",
				zap.String("transaction", transaction.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (e *Engine) requireNoOpenTransaction(scheduleID string) error {
	openTx, err := e.store.GetOpenTransactionForVesting(scheduleID)
	if err != nil {
		return err
	}
	if openTx != nil {
		return fmt.Errorf("%w: transaction %s is still open", ErrOpenTransaction, openTx.ID)
	}
	return nil
}

func (e *Engine) requireContract(organizationID string, chainID int64) (*storage.VestingContract, error) {
	contract, err := e.store.GetContractForOrganization(organizationID, chainID)
	if err != nil {
		return nil, err
	}
	if contract == nil || contract.Status != storage.ContractStatusInitialized {
		return nil, fmt.Errorf("%w: vesting contract is not initialized", ErrIllegalAction)
	}
	return contract, nil
}

func scheduleParams(schedule *storage.VestingSchedule) (vesting.Params, []vesting.Recipient, error) {
	amount, err := decimal.NewFromString(schedule.AmountToBeVested)
	if err != nil {
		return vesting.Params{}, nil, fmt.Errorf("%w: bad amount %q", vesting.ErrComputation, schedule.AmountToBeVested)
	}
	lumpSum := decimal.Zero
	if schedule.LumpSumPercent != "" {
		lumpSum, err = decimal.NewFromString(schedule.LumpSumPercent)
		if err != nil {
			return vesting.Params{}, nil, fmt.Errorf("%w: bad lump sum percent %q", vesting.ErrComputation, schedule.LumpSumPercent)
		}
	}

	params := vesting.Params{
		Start:          time.Unix(schedule.StartAt, 0).UTC(),
		End:            time.Unix(schedule.EndAt, 0).UTC(),
		Cliff:          vesting.CliffDuration(schedule.CliffDuration),
		LumpSumPercent: lumpSum,
		Frequency:      vesting.Frequency(schedule.ReleaseFrequency),
		Amount:         amount,
	}

	recipients := make([]vesting.Recipient, len(schedule.Recipients))
	for i, r := range schedule.Recipients {
		allocation, err := decimal.NewFromString(r.Allocation)
		if err != nil {
			return vesting.Params{}, nil, fmt.Errorf("%w: bad allocation %q", vesting.ErrComputation, r.Allocation)
		}
		recipients[i] = vesting.Recipient{
			WalletAddress: r.WalletAddress,
			Allocation:    allocation,
		}
	}
	return params, recipients, nil
}

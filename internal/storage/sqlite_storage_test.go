package storage

import (
	"path/filepath"
	"testing"

	"github.com/polartar/vtvl-engine/internal/event"
	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T, bus *event.Bus) *SqliteStorage {
	t.Helper()
	store, err := NewSqliteStorage(filepath.Join(t.TempDir(), "engine.db"), bus)
	require.NoError(t, err)
	return store
}

func testSchedule() *VestingSchedule {
	return &VestingSchedule{
		OrganizationID:   "org-1",
		ChainID:          1,
		Name:             "advisors",
		Status:           VestingStatusContractRequired,
		StartAt:          1704067200,
		EndAt:            1735689600,
		CliffDuration:    "no-cliff",
		ReleaseFrequency: "monthly",
		AmountToBeVested: "1000",
		Recipients: []VestingRecipient{
			{WalletAddress: "0:recipient-1", Allocation: "60"},
			{WalletAddress: "0:recipient-2", Allocation: "40"},
		},
	}
}

func TestVestingRoundTrip(t *testing.T) {
	store := testStorage(t, nil)

	schedule := testSchedule()
	require.NoError(t, store.CreateOrUpdateVesting(schedule))
	require.NotEmpty(t, schedule.ID)

	loaded, err := store.GetVesting(schedule.ID)
	require.NoError(t, err)
	require.Equal(t, "advisors", loaded.Name)
	require.Len(t, loaded.Recipients, 2)
	require.Equal(t, "0:recipient-1", loaded.Recipients[0].WalletAddress)
	require.Equal(t, "0:recipient-2", loaded.Recipients[1].WalletAddress)
}

func TestVestingUpsertKeepsRecipientPositions(t *testing.T) {
	store := testStorage(t, nil)

	schedule := testSchedule()
	require.NoError(t, store.CreateOrUpdateVesting(schedule))

	schedule.Recipients[1].Allocation = "35"
	schedule.Recipients[1].WalletAddress = "0:recipient-3"
	require.NoError(t, store.CreateOrUpdateVesting(schedule))

	loaded, err := store.GetVesting(schedule.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Recipients, 2)
	require.Equal(t, "0:recipient-3", loaded.Recipients[1].WalletAddress)
	require.Equal(t, "35", loaded.Recipients[1].Allocation)
}

func TestListVestingsFilters(t *testing.T) {
	store := testStorage(t, nil)

	first := testSchedule()
	require.NoError(t, store.CreateOrUpdateVesting(first))

	archived := testSchedule()
	archived.Recipients = nil
	archived.Archived = true
	require.NoError(t, store.CreateOrUpdateVesting(archived))

	other := testSchedule()
	other.Recipients = nil
	other.OrganizationID = "org-2"
	other.Status = VestingStatusLive
	require.NoError(t, store.CreateOrUpdateVesting(other))

	visible, err := store.ListVestings(VestingFilter{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, first.ID, visible[0].ID)

	all, err := store.ListVestings(VestingFilter{OrganizationID: "org-1", IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, all, 2)

	live, err := store.ListVestings(VestingFilter{Statuses: []VestingStatus{VestingStatusLive}})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, other.ID, live[0].ID)
}

func TestOpenTransactionFollowsStatus(t *testing.T) {
	store := testStorage(t, nil)

	schedule := testSchedule()
	require.NoError(t, store.CreateOrUpdateVesting(schedule))

	// no linked transaction yet
	openTx, err := store.GetOpenTransactionForVesting(schedule.ID)
	require.NoError(t, err)
	require.Nil(t, openTx)

	transaction := &Transaction{
		Type:           TransactionTypeAddingClaims,
		Status:         TransactionStatusPending,
		Nonce:          NonceUnassigned,
		VestingIDs:     []string{schedule.ID},
		ChainID:        1,
		OrganizationID: "org-1",
		Approvers:      []string{"0:signer-a"},
	}
	require.NoError(t, store.RecordProposal(transaction, []*VestingSchedule{schedule}))

	openTx, err = store.GetOpenTransactionForVesting(schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, openTx)
	require.Equal(t, transaction.ID, openTx.ID)
	require.Equal(t, []string{"0:signer-a"}, openTx.Approvers)
	require.Equal(t, []string{schedule.ID}, openTx.VestingIDs)

	// a settled transaction no longer blocks the schedule
	transaction.Status = TransactionStatusSuccess
	require.NoError(t, store.UpdateTransaction(transaction))

	openTx, err = store.GetOpenTransactionForVesting(schedule.ID)
	require.NoError(t, err)
	require.Nil(t, openTx)
}

func TestCompleteTransactionAppliesBatch(t *testing.T) {
	store := testStorage(t, nil)

	schedule := testSchedule()
	require.NoError(t, store.CreateOrUpdateVesting(schedule))

	transaction := &Transaction{
		Type:           TransactionTypeRevokeClaim,
		Status:         TransactionStatusPending,
		Nonce:          NonceUnassigned,
		VestingIDs:     []string{schedule.ID},
		ChainID:        1,
		OrganizationID: "org-1",
	}
	require.NoError(t, store.RecordProposal(transaction, []*VestingSchedule{schedule}))

	revokingID, err := store.CreateRevoking(&Revoking{
		VestingID:     schedule.ID,
		Recipient:     "0:recipient-1",
		TransactionID: transaction.ID,
		Status:        RevokingStatusPending,
	})
	require.NoError(t, err)

	transaction.Status = TransactionStatusSuccess
	revokings, err := store.ListRevokingsForTransaction(transaction.ID)
	require.NoError(t, err)
	require.Len(t, revokings, 1)
	revokings[0].Status = RevokingStatusSuccess

	require.NoError(t, store.CompleteTransaction(transaction, []*VestingSchedule{schedule}, revokings))

	reloaded, err := store.GetTransaction(transaction.ID)
	require.NoError(t, err)
	require.Equal(t, TransactionStatusSuccess, reloaded.Status)

	updated, err := store.ListRevokingsForTransaction(transaction.ID)
	require.NoError(t, err)
	require.Equal(t, revokingID, updated[0].ID)
	require.Equal(t, RevokingStatusSuccess, updated[0].Status)
}

func TestListPendingTransactions(t *testing.T) {
	store := testStorage(t, nil)

	pending := &Transaction{
		Type:           TransactionTypeFundingContract,
		Status:         TransactionStatusPending,
		Nonce:          NonceUnassigned,
		ChainID:        1,
		OrganizationID: "org-1",
	}
	_, err := store.CreateTransaction(pending)
	require.NoError(t, err)

	settled := &Transaction{
		Type:           TransactionTypeAddingClaims,
		Status:         TransactionStatusSuccess,
		Nonce:          NonceUnassigned,
		ChainID:        1,
		OrganizationID: "org-1",
	}
	_, err = store.CreateTransaction(settled)
	require.NoError(t, err)

	list, err := store.ListPendingTransactions("org-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, pending.ID, list[0].ID)
}

func TestContractForOrganization(t *testing.T) {
	store := testStorage(t, nil)

	missing, err := store.GetContractForOrganization("org-1", 1)
	require.NoError(t, err)
	require.Nil(t, missing)

	contract := &VestingContract{
		OrganizationID: "org-1",
		ChainID:        1,
		Address:        "0:contract",
		Status:         ContractStatusInitialized,
	}
	require.NoError(t, store.CreateOrUpdateContract(contract))

	found, err := store.GetContractForOrganization("org-1", 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, contract.ID, found.ID)

	// same organization on another chain stays separate
	elsewhere, err := store.GetContractForOrganization("org-1", 2)
	require.NoError(t, err)
	require.Nil(t, elsewhere)
}

func TestWritesPublishChangeEvents(t *testing.T) {
	bus := event.NewBus(nil)
	store := testStorage(t, bus)

	_, vestingCh := bus.Subscribe(VestingEventType)
	_, transactionCh := bus.Subscribe(TransactionEventType)

	schedule := testSchedule()
	require.NoError(t, store.CreateOrUpdateVesting(schedule))

	evt := <-vestingCh
	change, ok := evt.Data.(ChangeEvent)
	require.True(t, ok)
	require.Equal(t, ChangeAdded, change.Kind)
	require.Equal(t, schedule.ID, change.RecordID)

	transaction := &Transaction{
		Type:           TransactionTypeAddingClaims,
		Status:         TransactionStatusPending,
		Nonce:          NonceUnassigned,
		ChainID:        1,
		OrganizationID: "org-1",
	}
	require.NoError(t, store.RecordProposal(transaction, []*VestingSchedule{schedule}))

	evt = <-transactionCh
	change = evt.Data.(ChangeEvent)
	require.Equal(t, ChangeAdded, change.Kind)
	require.Equal(t, transaction.ID, change.RecordID)

	// the linked schedule change is published too
	evt = <-vestingCh
	change = evt.Data.(ChangeEvent)
	require.Equal(t, ChangeModified, change.Kind)
	require.Equal(t, schedule.ID, change.RecordID)
}

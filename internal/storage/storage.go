package storage

import "github.com/polartar/vtvl-engine/internal/event"

// Change events published on the bus after every successful write. The
// persisted record is the single source of truth; subscribers re-read it.
const (
	VestingEventType     event.EventType = "storage.vesting"
	TransactionEventType event.EventType = "storage.transaction"
	ContractEventType    event.EventType = "storage.contract"
	RevokingEventType    event.EventType = "storage.revoking"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type ChangeEvent struct {
	Kind     ChangeKind
	RecordID string
}

type VestingFilter struct {
	OrganizationID  string
	Statuses        []VestingStatus
	IncludeArchived bool
}

type Storage interface {
	// transactions
	CreateTransaction(transaction *Transaction) (string, error)
	UpdateTransaction(transaction *Transaction) error
	GetTransaction(id string) (*Transaction, error)
	GetOpenTransactionForVesting(vestingID string) (*Transaction, error)
	ListPendingTransactions(organizationID string) ([]*Transaction, error)

	// vesting schedules
	CreateOrUpdateVesting(vesting *VestingSchedule) error
	GetVesting(id string) (*VestingSchedule, error)
	ListVestings(filter VestingFilter) ([]*VestingSchedule, error)

	// vesting contracts
	CreateOrUpdateContract(contract *VestingContract) error
	GetContractForOrganization(organizationID string, chainID int64) (*VestingContract, error)

	// revokings
	CreateRevoking(revoking *Revoking) (string, error)
	ListRevokingsForTransaction(transactionID string) ([]*Revoking, error)

	// RecordProposal persists a freshly proposed transaction and links every
	// batched schedule to it in one database transaction.
	RecordProposal(transaction *Transaction, vestings []*VestingSchedule) error

	// CompleteTransaction marks a transaction terminal and applies the
	// schedule/revoking advances that belong to the same action in one
	// database transaction.
	CompleteTransaction(transaction *Transaction, vestings []*VestingSchedule, revokings []*Revoking) error
}

package storage

import "time"

type VestingStatus string

const (
	VestingStatusContractRequired      VestingStatus = "CONTRACT_REQUIRED"
	VestingStatusFundingRequired       VestingStatus = "FUNDING_REQUIRED"
	VestingStatusAuthorizationRequired VestingStatus = "AUTHORIZATION_REQUIRED"
	VestingStatusLive                  VestingStatus = "LIVE"
	VestingStatusCompleted             VestingStatus = "COMPLETED"
	VestingStatusRevoked               VestingStatus = "REVOKED"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s VestingStatus) Terminal() bool {
	return s == VestingStatusCompleted || s == VestingStatusRevoked
}

type ContractStatus string

const (
	ContractStatusPending     ContractStatus = "PENDING"
	ContractStatusInitialized ContractStatus = "INITIALIZED"
)

type TransactionType string

const (
	TransactionTypeFundingContract TransactionType = "FUNDING_CONTRACT"
	TransactionTypeAddingClaims    TransactionType = "ADDING_CLAIMS"
	TransactionTypeAdminWithdraw   TransactionType = "ADMIN_WITHDRAW"
	TransactionTypeRevokeClaim     TransactionType = "REVOKE_CLAIM"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusError   TransactionStatus = "ERROR"
)

type RevokingStatus string

const (
	RevokingStatusPending RevokingStatus = "PENDING"
	RevokingStatusSuccess RevokingStatus = "SUCCESS"
)

// NonceUnassigned marks a transaction that never went through a multisig
// proposal (direct sends) or has not been proposed yet.
const NonceUnassigned int64 = -1

type VestingSchedule struct {
	ID               string        `gorm:"primaryKey"`
	OrganizationID   string        `gorm:"index"`
	ChainID          int64         `gorm:"not null"`
	Name             string        `gorm:"not null"`
	Status           VestingStatus `gorm:"not null"`
	StartAt          int64         `gorm:"not null"`
	EndAt            int64         `gorm:"not null"`
	CliffDuration    string        `gorm:"not null"`
	LumpSumPercent   string        `gorm:"default:0"`
	ReleaseFrequency string        `gorm:"not null"`
	AmountToBeVested string        `gorm:"not null"`
	ContractID       string
	TransactionID    string
	Archived         bool `gorm:"default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Recipients []VestingRecipient `gorm:"foreignKey:VestingID"`
}

// VestingRecipient keeps the recipient list ordered via Position.
type VestingRecipient struct {
	ID            int64  `gorm:"primaryKey"`
	VestingID     string `gorm:"uniqueIndex:idx_vesting_position"`
	Position      int    `gorm:"uniqueIndex:idx_vesting_position"`
	WalletAddress string `gorm:"not null"`
	Allocation    string `gorm:"not null"`
}

type VestingContract struct {
	ID             string         `gorm:"primaryKey"`
	OrganizationID string         `gorm:"index"`
	ChainID        int64          `gorm:"not null"`
	Address        string         `gorm:"not null"`
	Status         ContractStatus `gorm:"not null"`
	Balance        string         `gorm:"default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Transaction struct {
	ID             string            `gorm:"primaryKey"`
	Type           TransactionType   `gorm:"not null"`
	Status         TransactionStatus `gorm:"not null"`
	Hash           string
	SafeHash       string
	Amount         string   `gorm:"default:0"`
	Nonce          int64    `gorm:"default:-1"`
	Approvers      []string `gorm:"serializer:json"`
	VestingIDs     []string `gorm:"serializer:json"`
	ChainID        int64    `gorm:"not null"`
	OrganizationID string   `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasApprover reports whether the signer already approved this transaction.
// Approver order is insertion order but carries no meaning.
func (t *Transaction) HasApprover(signer string) bool {
	for _, approver := range t.Approvers {
		if approver == signer {
			return true
		}
	}
	return false
}

type Revoking struct {
	ID            string         `gorm:"primaryKey"`
	VestingID     string         `gorm:"index"`
	Recipient     string         `gorm:"not null"`
	TransactionID string         `gorm:"index"`
	Status        RevokingStatus `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

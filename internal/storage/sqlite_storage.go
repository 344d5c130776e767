package storage

import (
	"errors"

	"github.com/google/uuid"
	"github.com/polartar/vtvl-engine/internal/event"
	"github.com/polartar/vtvl-engine/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SqliteStorage struct {
	db  *gorm.DB
	bus *event.Bus
}

// NewSqliteStorage opens (or creates) the database at path. The bus may be
// nil when no change subscribers exist, e.g. in short-lived tooling.
func NewSqliteStorage(path string, bus *event.Bus) (*SqliteStorage, error) {

	logger.Debug("initializing database...")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&VestingSchedule{},
		&VestingRecipient{},
		&VestingContract{},
		&Transaction{},
		&Revoking{},
	)
	if err != nil {
		return nil, err
	}

	return &SqliteStorage{
		db:  db,
		bus: bus,
	}, nil
}

func (s *SqliteStorage) publish(eventType event.EventType, kind ChangeKind, recordID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, event.NewEvent(eventType, ChangeEvent{
		Kind:     kind,
		RecordID: recordID,
	}))
}

func (s *SqliteStorage) CreateTransaction(transaction *Transaction) (string, error) {
	logger.Debug("creating transaction record...")

	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}
	if err := s.db.Create(transaction).Error; err != nil {
		return "", err
	}

	s.publish(TransactionEventType, ChangeAdded, transaction.ID)
	return transaction.ID, nil
}

func (s *SqliteStorage) UpdateTransaction(transaction *Transaction) error {
	logger.Debug("updating transaction record...")

	if err := s.db.Save(transaction).Error; err != nil {
		return err
	}

	s.publish(TransactionEventType, ChangeModified, transaction.ID)
	return nil
}

func (s *SqliteStorage) GetTransaction(id string) (*Transaction, error) {

	var transaction Transaction
	err := s.db.Where("id = ?", id).First(&transaction).Error
	if err != nil {
		return nil, err
	}

	return &transaction, nil
}

func (s *SqliteStorage) ListPendingTransactions(organizationID string) ([]*Transaction, error) {

	query := s.db.Where("status = ?", TransactionStatusPending)
	if organizationID != "" {
		query = query.Where("organization_id = ?", organizationID)
	}

	var transactions []*Transaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, err
	}

	return transactions, nil
}

// GetOpenTransactionForVesting resolves the schedule's linked transaction and
// returns it only while it is still PENDING. Returns (nil, nil) when the
// schedule has no open transaction.
func (s *SqliteStorage) GetOpenTransactionForVesting(vestingID string) (*Transaction, error) {

	vesting, err := s.GetVesting(vestingID)
	if err != nil {
		return nil, err
	}
	if vesting.TransactionID == "" {
		return nil, nil
	}

	transaction, err := s.GetTransaction(vesting.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if transaction.Status != TransactionStatusPending {
		return nil, nil
	}

	return transaction, nil
}

func (s *SqliteStorage) CreateOrUpdateVesting(vesting *VestingSchedule) error {
	logger.Debug("upserting vesting schedule...")

	kind := ChangeModified
	if vesting.ID == "" {
		vesting.ID = uuid.NewString()
		kind = ChangeAdded
	}
	for i := range vesting.Recipients {
		vesting.Recipients[i].VestingID = vesting.ID
		vesting.Recipients[i].Position = i
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Omit("Recipients").Create(vesting).Error; err != nil {
			return err
		}
		if len(vesting.Recipients) > 0 {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "vesting_id"}, {Name: "position"}},
				DoUpdates: clause.AssignmentColumns([]string{"wallet_address", "allocation"}),
			}).CreateInBatches(vesting.Recipients, 100).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(VestingEventType, kind, vesting.ID)
	return nil
}

func (s *SqliteStorage) GetVesting(id string) (*VestingSchedule, error) {

	var vesting VestingSchedule
	err := s.db.Preload("Recipients", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	}).Where("id = ?", id).First(&vesting).Error
	if err != nil {
		return nil, err
	}

	return &vesting, nil
}

func (s *SqliteStorage) ListVestings(filter VestingFilter) ([]*VestingSchedule, error) {

	query := s.db.Preload("Recipients", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	})
	if filter.OrganizationID != "" {
		query = query.Where("organization_id = ?", filter.OrganizationID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status in ?", filter.Statuses)
	}
	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}

	var vestings []*VestingSchedule
	if err := query.Find(&vestings).Error; err != nil {
		return nil, err
	}

	return vestings, nil
}

func (s *SqliteStorage) CreateOrUpdateContract(contract *VestingContract) error {
	logger.Debug("upserting vesting contract record...")

	kind := ChangeModified
	if contract.ID == "" {
		contract.ID = uuid.NewString()
		kind = ChangeAdded
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(contract).Error
	if err != nil {
		return err
	}

	s.publish(ContractEventType, kind, contract.ID)
	return nil
}

func (s *SqliteStorage) GetContractForOrganization(organizationID string, chainID int64) (*VestingContract, error) {

	var contract VestingContract
	err := s.db.Where("organization_id = ? and chain_id = ?", organizationID, chainID).
		First(&contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &contract, nil
}

func (s *SqliteStorage) CreateRevoking(revoking *Revoking) (string, error) {
	logger.Debug("creating revoking record...")

	if revoking.ID == "" {
		revoking.ID = uuid.NewString()
	}
	if err := s.db.Create(revoking).Error; err != nil {
		return "", err
	}

	s.publish(RevokingEventType, ChangeAdded, revoking.ID)
	return revoking.ID, nil
}

func (s *SqliteStorage) ListRevokingsForTransaction(transactionID string) ([]*Revoking, error) {

	var revokings []*Revoking
	err := s.db.Where("transaction_id = ?", transactionID).Find(&revokings).Error
	if err != nil {
		return nil, err
	}

	return revokings, nil
}

func (s *SqliteStorage) RecordProposal(transaction *Transaction, vestings []*VestingSchedule) error {
	logger.Debug("recording proposal...")

	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(transaction).Error; err != nil {
			return err
		}
		for _, vesting := range vestings {
			vesting.TransactionID = transaction.ID
			if err := tx.Omit("Recipients").Save(vesting).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(TransactionEventType, ChangeAdded, transaction.ID)
	for _, vesting := range vestings {
		s.publish(VestingEventType, ChangeModified, vesting.ID)
	}
	return nil
}

func (s *SqliteStorage) CompleteTransaction(transaction *Transaction, vestings []*VestingSchedule, revokings []*Revoking) error {
	logger.Debug("completing transaction...")

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(transaction).Error; err != nil {
			return err
		}
		for _, vesting := range vestings {
			if err := tx.Omit("Recipients").Save(vesting).Error; err != nil {
				return err
			}
		}
		for _, revoking := range revokings {
			if err := tx.Save(revoking).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(TransactionEventType, ChangeModified, transaction.ID)
	for _, vesting := range vestings {
		s.publish(VestingEventType, ChangeModified, vesting.ID)
	}
	for _, revoking := range revokings {
		s.publish(RevokingEventType, ChangeModified, revoking.ID)
	}
	return nil
}

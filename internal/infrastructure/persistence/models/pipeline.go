package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scout/backend/internal/domain/pipeline"
)

// DealModel is the persistence model for the Deal aggregate.
type DealModel struct {
	AggregateModel
	MatchKey       string           `gorm:"type:varchar(512);not null;uniqueIndex:idx_deals_match_key"`
	AccountID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	DealName       string           `gorm:"type:varchar(255);not null"`
	AccountName    string           `gorm:"type:varchar(255);not null"`
	Stage          string           `gorm:"type:varchar(32);not null"`
	Value          *decimal.Decimal `gorm:"type:decimal(18,2)"`
	WeightedValue  *decimal.Decimal `gorm:"type:decimal(18,2)"`
	ConfirmedValue *decimal.Decimal `gorm:"type:decimal(18,2)"`
	Owner          *string          `gorm:"type:varchar(255)"`
	Quarter        *string          `gorm:"type:varchar(16)"`
	DealType       *string          `gorm:"type:varchar(32)"`
	CloseDate      *time.Time       `gorm:"type:date"`
	Vertical       *string          `gorm:"type:varchar(100)"`
	Probability    *int
}

// TableName returns the table name for GORM
func (DealModel) TableName() string {
	return "deals"
}

// ToDomain converts the persistence model to a domain Deal
func (m *DealModel) ToDomain() *pipeline.Deal {
	d := &pipeline.Deal{
		BaseAggregateRoot: m.ToAggregateRoot(),
		DealSnapshot: pipeline.DealSnapshot{
			DealName:      m.DealName,
			AccountName:   m.AccountName,
			Stage:         pipeline.Stage(m.Stage),
			Value:         m.Value,
			Owner:         m.Owner,
			Quarter:       m.Quarter,
			Vertical:      m.Vertical,
			Probability:   m.Probability,
			WeightedValue: m.WeightedValue,
		},
		AccountID:      m.AccountID,
		ConfirmedValue: m.ConfirmedValue,
	}
	if m.DealType != nil {
		t := pipeline.DealType(*m.DealType)
		d.DealType = &t
	}
	if m.CloseDate != nil {
		cd := pipeline.DateOf(*m.CloseDate)
		d.CloseDate = &cd
	}
	return d
}

// FromDomain populates the persistence model from a domain Deal
func (m *DealModel) FromDomain(d *pipeline.Deal) {
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	s := d.Snapshot()
	m.MatchKey = s.MatchKey()
	m.AccountID = d.AccountID
	m.DealName = s.DealName
	m.AccountName = s.AccountName
	m.Stage = s.Stage.String()
	m.Value = s.Value
	m.WeightedValue = s.WeightedValue
	m.ConfirmedValue = nil
	if d.ConfirmedValue != nil {
		v := *d.ConfirmedValue
		m.ConfirmedValue = &v
	}
	m.Owner = s.Owner
	m.Quarter = s.Quarter
	m.DealType = nil
	if s.DealType != nil {
		t := s.DealType.String()
		m.DealType = &t
	}
	m.CloseDate = nil
	if s.CloseDate != nil {
		t := s.CloseDate.Time()
		m.CloseDate = &t
	}
	m.Vertical = s.Vertical
	m.Probability = s.Probability
}

// DealModelFromDomain creates a new persistence model from a domain Deal
func DealModelFromDomain(d *pipeline.Deal) *DealModel {
	m := &DealModel{}
	m.FromDomain(d)
	return m
}

// AccountModel is the persistence model for the Account aggregate.
type AccountModel struct {
	AggregateModel
	Name           string  `gorm:"type:varchar(255);not null"`
	NameKey        string  `gorm:"type:varchar(255);not null;uniqueIndex:idx_accounts_name_key"`
	AccountType    string  `gorm:"type:varchar(50);not null"`
	Vertical       *string `gorm:"type:varchar(100)"`
	SalesManager   *string `gorm:"type:varchar(255)"`
	AccountManager *string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *AccountModel) ToDomain() *pipeline.Account {
	return &pipeline.Account{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Name:              m.Name,
		AccountType:       m.AccountType,
		Vertical:          m.Vertical,
		SalesManager:      m.SalesManager,
		AccountManager:    m.AccountManager,
	}
}

// FromDomain populates the persistence model from a domain Account
func (m *AccountModel) FromDomain(a *pipeline.Account) {
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	m.Name = a.Name
	m.NameKey = a.NameKey()
	m.AccountType = a.AccountType
	m.Vertical = a.Vertical
	m.SalesManager = a.SalesManager
	m.AccountManager = a.AccountManager
}

// AccountModelFromDomain creates a new persistence model from a domain Account
func AccountModelFromDomain(a *pipeline.Account) *AccountModel {
	m := &AccountModel{}
	m.FromDomain(a)
	return m
}

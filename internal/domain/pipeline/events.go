package pipeline

import "github.com/scout/backend/internal/domain/shared"

// Event types
const (
	EventTypeDealCreated          = "pipeline.deal.created"
	EventTypeDealUpdated          = "pipeline.deal.updated"
	EventTypeDealRemoved          = "pipeline.deal.removed"
	EventTypeAccountOwnersChanged = "pipeline.account.owners_changed"
)

// DealCreatedEvent is raised when an import creates a deal.
type DealCreatedEvent struct {
	shared.BaseDomainEvent
	DealName    string `json:"deal_name"`
	AccountName string `json:"account_name"`
	Stage       Stage  `json:"stage"`
}

func NewDealCreatedEvent(d *Deal) *DealCreatedEvent {
	return &DealCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDealCreated, AggregateTypeDeal, d.ID),
		DealName:        d.DealName,
		AccountName:     d.AccountName,
		Stage:           d.Stage,
	}
}

// DealUpdatedEvent is raised when tracked fields of a deal change.
type DealUpdatedEvent struct {
	shared.BaseDomainEvent
	DealName    string   `json:"deal_name"`
	AccountName string   `json:"account_name"`
	Changes     []string `json:"changes"`
}

func NewDealUpdatedEvent(d *Deal, changes []string) *DealUpdatedEvent {
	return &DealUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDealUpdated, AggregateTypeDeal, d.ID),
		DealName:        d.DealName,
		AccountName:     d.AccountName,
		Changes:         changes,
	}
}

// DealRemovedEvent is raised when a deal is deleted.
type DealRemovedEvent struct {
	shared.BaseDomainEvent
	DealName    string `json:"deal_name"`
	AccountName string `json:"account_name"`
}

func NewDealRemovedEvent(d *Deal) *DealRemovedEvent {
	return &DealRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDealRemoved, AggregateTypeDeal, d.ID),
		DealName:        d.DealName,
		AccountName:     d.AccountName,
	}
}

// AccountOwnersChangedEvent is raised when an assignment changes an
// account's sales or account manager.
type AccountOwnersChangedEvent struct {
	shared.BaseDomainEvent
	AccountName string   `json:"account_name"`
	Changes     []string `json:"changes"`
}

func NewAccountOwnersChangedEvent(a *Account, changes []string) *AccountOwnersChangedEvent {
	return &AccountOwnersChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAccountOwnersChanged, AggregateTypeAccount, a.ID),
		AccountName:     a.Name,
		Changes:         changes,
	}
}

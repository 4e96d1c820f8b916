package pipeline

import (
	"strings"

	"github.com/scout/backend/internal/domain/shared"
)

// AggregateTypeAccount is the aggregate type name used in account events.
const AggregateTypeAccount = "Account"

// AccountTypeProspect is given to accounts created while importing deals.
const AccountTypeProspect = "Prospect"

// Account is a customer organisation. Reconciliation only creates accounts
// and changes their two owner fields.
type Account struct {
	shared.BaseAggregateRoot
	Name           string
	AccountType    string
	Vertical       *string
	SalesManager   *string
	AccountManager *string
}

// NewProspectAccount creates an account for a deal whose account is unknown.
func NewProspectAccount(name string, vertical *string) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrInvalidInput.WithMessage("account name is required")
	}
	return &Account{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		AccountType:       AccountTypeProspect,
		Vertical:          clonePtr(vertical),
	}, nil
}

// NameKey is the normalized name used for case-insensitive lookups.
func (a *Account) NameKey() string {
	return NormalizeName(a.Name)
}

// AssignOwners applies the owner fields of the assignment that differ from
// the current values. It reports whether anything changed.
func (a *Account) AssignOwners(as OwnerAssignment) bool {
	var changes []string
	if v, ok := as.SalesManager.Get(); ok || as.SalesManager.IsNull() {
		next := ptrOrNil(v, ok)
		if !equalPtr(a.SalesManager, next, eqComparable[string]) {
			changes = append(changes, FormatDiff("sales manager", formatPtr(a.SalesManager, formatString), formatPtr(next, formatString)))
			a.SalesManager = next
		}
	}
	if v, ok := as.AccountManager.Get(); ok || as.AccountManager.IsNull() {
		next := ptrOrNil(v, ok)
		if !equalPtr(a.AccountManager, next, eqComparable[string]) {
			changes = append(changes, FormatDiff("account manager", formatPtr(a.AccountManager, formatString), formatPtr(next, formatString)))
			a.AccountManager = next
		}
	}
	if len(changes) == 0 {
		return false
	}
	a.Touch()
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountOwnersChangedEvent(a, changes))
	return true
}

// OwnerAssignment carries account-level ownership from an import. It is
// independent of the per-deal owner field.
type OwnerAssignment struct {
	AccountName    string           `json:"account_name" binding:"required"`
	SalesManager   Optional[string] `json:"sales_manager,omitzero"`
	AccountManager Optional[string] `json:"account_manager,omitzero"`
}

// NormalizeName lowercases and collapses whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// MatchKey joins the normalized deal and account names.
func MatchKey(dealName, accountName string) string {
	return NormalizeName(accountName) + "\x1f" + NormalizeName(dealName)
}

func ptrOrNil[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

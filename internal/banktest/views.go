package banktest

import "github.com/example/cqrs-es/cqrs"

// AccountView is a ledger-style read model of a single account.
type AccountView struct {
	AccountID string        `json:"account_id"`
	Balance   int64         `json:"balance"`
	Ledger    []LedgerEntry `json:"ledger"`
}

type LedgerEntry struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// NewAccountView returns an empty view.
func NewAccountView() *AccountView {
	return &AccountView{}
}

var _ cqrs.View[Event] = (*AccountView)(nil)

func (v *AccountView) Update(event cqrs.EventEnvelope[Event]) {
	switch payload := event.Payload.(type) {
	case *AccountOpened:
		v.AccountID = payload.AccountID
	case *MoneyDeposited:
		v.Balance = payload.Balance
		v.Ledger = append(v.Ledger, LedgerEntry{Description: "deposit", Amount: payload.Amount})
	case *CashWithdrawn:
		v.Balance = payload.Balance
		v.Ledger = append(v.Ledger, LedgerEntry{Description: "withdrawal", Amount: payload.Amount})
	}
}

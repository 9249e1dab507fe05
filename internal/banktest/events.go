package banktest

const (
	EventAccountOpened  = "AccountOpened"
	EventMoneyDeposited = "MoneyDeposited"
	EventCashWithdrawn  = "CashWithdrawn"
)

// EventVersion is the current schema version of all account events.
const EventVersion = "1.0"

// Event is the sum type of everything a BankAccount can emit.
type Event interface {
	isAccountEvent()
	EventType() string
	EventVersion() string
}

type AccountOpened struct {
	AccountID string `json:"account_id"`
}

func (*AccountOpened) isAccountEvent()      {}
func (*AccountOpened) EventType() string    { return EventAccountOpened }
func (*AccountOpened) EventVersion() string { return EventVersion }

type MoneyDeposited struct {
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

func (*MoneyDeposited) isAccountEvent()      {}
func (*MoneyDeposited) EventType() string    { return EventMoneyDeposited }
func (*MoneyDeposited) EventVersion() string { return EventVersion }

type CashWithdrawn struct {
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

func (*CashWithdrawn) isAccountEvent()      {}
func (*CashWithdrawn) EventType() string    { return EventCashWithdrawn }
func (*CashWithdrawn) EventVersion() string { return EventVersion }

package banktest

import "github.com/example/cqrs-es/persist"

// NewSerializer registers every account event type.
func NewSerializer() *persist.EventSerializer[Event] {
	return persist.NewEventSerializer[Event]().
		Register(EventAccountOpened, func() Event { return &AccountOpened{} }).
		Register(EventMoneyDeposited, func() Event { return &MoneyDeposited{} }).
		Register(EventCashWithdrawn, func() Event { return &CashWithdrawn{} })
}

// NewStore wires an account event store over the given repository.
func NewStore(repo persist.EventRepository) *persist.PersistedEventStore[*BankAccount, Command, Event, Services] {
	return persist.NewPersistedEventStore[*BankAccount, Command, Event, Services](repo, NewSerializer(), NewBankAccount)
}

package banktest

// Command is the sum type of account commands. Commands are ephemeral and
// never persisted.
type Command interface {
	isAccountCommand()
}

type OpenAccount struct {
	AccountID string
}

func (OpenAccount) isAccountCommand() {}

type DepositMoney struct {
	Amount int64
}

func (DepositMoney) isAccountCommand() {}

type WithdrawMoney struct {
	Amount int64
	ATMID  string
}

func (WithdrawMoney) isAccountCommand() {}

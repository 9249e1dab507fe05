// Package banktest provides the bank-account domain used by tests across
// the module: an aggregate with commands, events, an external ATM service
// and a ledger view.
package banktest

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/cqrs-es/cqrs"
)

// AggregateType identifies bank accounts in storage.
const AggregateType = "account"

var (
	ErrFundsNotAvailable = errors.New("funds not available")
	ErrAtmRuleViolation  = errors.New("atm rule violation")
)

// BankAccount is an event-sourced account balance.
type BankAccount struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

// NewBankAccount returns a fresh zero-state account.
func NewBankAccount() *BankAccount {
	return &BankAccount{}
}

var _ cqrs.Aggregate[Command, Event, Services] = (*BankAccount)(nil)

func (a *BankAccount) AggregateType() string {
	return AggregateType
}

func (a *BankAccount) Handle(ctx context.Context, command Command, services Services) ([]Event, error) {
	switch cmd := command.(type) {
	case OpenAccount:
		return []Event{&AccountOpened{AccountID: cmd.AccountID}}, nil
	case DepositMoney:
		return []Event{&MoneyDeposited{
			Amount:  cmd.Amount,
			Balance: a.Balance + cmd.Amount,
		}}, nil
	case WithdrawMoney:
		balance := a.Balance - cmd.Amount
		if balance < 0 {
			return nil, ErrFundsNotAvailable
		}
		if services.Atm != nil {
			if err := services.Atm.RecordWithdrawal(ctx, cmd.ATMID, cmd.Amount); err != nil {
				return nil, ErrAtmRuleViolation
			}
		}
		return []Event{&CashWithdrawn{
			Amount:  cmd.Amount,
			Balance: balance,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown command %T", command)
	}
}

func (a *BankAccount) Apply(event Event) {
	switch e := event.(type) {
	case *AccountOpened:
		a.AccountID = e.AccountID
	case *MoneyDeposited:
		a.Balance = e.Balance
	case *CashWithdrawn:
		a.Balance = e.Balance
	}
}

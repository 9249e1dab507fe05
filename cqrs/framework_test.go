package cqrs_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cqrs-es/adapters/memory"
	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/internal/banktest"
	"github.com/example/cqrs-es/persist"
)

type fixture struct {
	repo      *memory.EventRepository
	viewRepo  *memory.ViewRepository[*banktest.AccountView, banktest.Event]
	query     *persist.GenericQuery[*banktest.AccountView, banktest.Event]
	atm       *banktest.StubAtmClient
	framework *cqrs.Framework[*banktest.BankAccount, banktest.Command, banktest.Event, banktest.Services]
}

func newFixture() *fixture {
	repo := memory.NewEventRepository()
	viewRepo := memory.NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)
	query := persist.NewGenericQuery[*banktest.AccountView, banktest.Event](viewRepo, banktest.NewAccountView)
	atm := &banktest.StubAtmClient{}
	framework := cqrs.NewFramework[*banktest.BankAccount, banktest.Command, banktest.Event, banktest.Services](
		banktest.NewStore(repo),
		banktest.Services{Atm: atm},
		query,
	)
	return &fixture{repo: repo, viewRepo: viewRepo, query: query, atm: atm, framework: framework}
}

func TestExecuteDepositsAccumulate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// A fresh aggregate starts as the type default; the first deposit
	// opens the account implicitly.
	require.NoError(t, f.framework.Execute(ctx, "acct-1", banktest.DepositMoney{Amount: 200}))
	require.NoError(t, f.framework.Execute(ctx, "acct-1", banktest.DepositMoney{Amount: 200}))

	events, err := f.repo.GetEvents(ctx, banktest.AggregateType, "acct-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)

	store := banktest.NewStore(f.repo)
	loaded, err := store.LoadAggregate(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), loaded.Aggregate.Balance)
}

func TestExecuteRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	err := f.framework.Execute(ctx, "acct-1", banktest.WithdrawMoney{Amount: 200, ATMID: "atm-1"})

	require.Error(t, err)
	assert.True(t, cqrs.IsUserError(err))
	assert.ErrorIs(t, err, banktest.ErrFundsNotAvailable)

	// A rejection persists nothing and notifies no query.
	events, getErr := f.repo.GetEvents(ctx, banktest.AggregateType, "acct-1")
	require.NoError(t, getErr)
	assert.Empty(t, events)
	_, found := f.query.Load(ctx, "acct-1")
	assert.False(t, found)
}

func TestExecuteRejectsAtmFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.atm.Err = errors.New("atm offline")

	require.NoError(t, f.framework.Execute(ctx, "acct-1", banktest.DepositMoney{Amount: 500}))
	err := f.framework.Execute(ctx, "acct-1", banktest.WithdrawMoney{Amount: 100, ATMID: "atm-1"})

	require.Error(t, err)
	assert.True(t, cqrs.IsUserError(err))
	assert.ErrorIs(t, err, banktest.ErrAtmRuleViolation)
}

func TestExecuteUpdatesRegisteredQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.framework.Execute(ctx, "acct-1", banktest.OpenAccount{AccountID: "acct-1"}))
	require.NoError(t, f.framework.Execute(ctx, "acct-1", banktest.DepositMoney{Amount: 300}))
	require.NoError(t, f.framework.Execute(ctx, "acct-1", banktest.WithdrawMoney{Amount: 100, ATMID: "atm-1"}))

	view, found := f.query.Load(ctx, "acct-1")
	require.True(t, found)
	assert.Equal(t, "acct-1", view.AccountID)
	assert.Equal(t, int64(200), view.Balance)
	require.Len(t, view.Ledger, 2)
	assert.Equal(t, banktest.LedgerEntry{Description: "deposit", Amount: 300}, view.Ledger[0])
	assert.Equal(t, banktest.LedgerEntry{Description: "withdrawal", Amount: 100}, view.Ledger[1])
	assert.Equal(t, []int64{100}, f.atm.Withdrawals)
}

func TestExecuteAttachesMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	metadata := map[string]string{"request_id": "r-42", "user": "alice"}
	require.NoError(t, f.framework.ExecuteWithMetadata(ctx, "acct-1", banktest.DepositMoney{Amount: 10}, metadata))

	events, err := f.repo.GetEvents(ctx, banktest.AggregateType, "acct-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"request_id":"r-42","user":"alice"}`, string(events[0].Metadata))
}

func TestConcurrentExecutesNeverLoseDeposits(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	accountID := uuid.NewString()

	// Conflicting writers retry until they win; the log must contain one
	// event per successful deposit with gapless sequences.
	const writers = 4
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := f.framework.Execute(ctx, accountID, banktest.DepositMoney{Amount: 100})
				if err == nil {
					return
				}
				if !errors.Is(err, cqrs.ErrAggregateConflict) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	events, err := f.repo.GetEvents(ctx, banktest.AggregateType, accountID)
	require.NoError(t, err)
	require.Len(t, events, writers)
	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Sequence)
	}
}

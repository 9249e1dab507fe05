package persist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cqrs-es/adapters/memory"
	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/internal/banktest"
	"github.com/example/cqrs-es/persist"
)

func accountEnvelopes(aggregateID string, events ...banktest.Event) []cqrs.EventEnvelope[banktest.Event] {
	envelopes := make([]cqrs.EventEnvelope[banktest.Event], 0, len(events))
	for i, event := range events {
		envelopes = append(envelopes, cqrs.EventEnvelope[banktest.Event]{
			AggregateID: aggregateID,
			Sequence:    uint64(i + 1),
			Payload:     event,
		})
	}
	return envelopes
}

func TestGenericQueryCreatesAndUpdatesView(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)
	query := persist.NewGenericQuery[*banktest.AccountView, banktest.Event](repo, banktest.NewAccountView)

	query.Dispatch(ctx, "acct-1", accountEnvelopes("acct-1",
		&banktest.AccountOpened{AccountID: "acct-1"},
		&banktest.MoneyDeposited{Amount: 200, Balance: 200},
	))

	view, found := query.Load(ctx, "acct-1")
	require.True(t, found)
	assert.Equal(t, "acct-1", view.AccountID)
	assert.Equal(t, int64(200), view.Balance)
	require.Len(t, view.Ledger, 1)
	assert.Equal(t, "deposit", view.Ledger[0].Description)

	// A second dispatch folds onto the stored view rather than starting
	// over.
	query.Dispatch(ctx, "acct-1", []cqrs.EventEnvelope[banktest.Event]{{
		AggregateID: "acct-1",
		Sequence:    3,
		Payload:     &banktest.CashWithdrawn{Amount: 50, Balance: 150},
	}})

	view, found = query.Load(ctx, "acct-1")
	require.True(t, found)
	assert.Equal(t, int64(150), view.Balance)
	assert.Len(t, view.Ledger, 2)
}

func TestGenericQueryLoadMissingView(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)
	query := persist.NewGenericQuery[*banktest.AccountView, banktest.Event](repo, banktest.NewAccountView)

	_, found := query.Load(ctx, "acct-unknown")
	assert.False(t, found)
}

func TestGenericQueryRoutesErrorsToHandler(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)

	// Seed the view so the dispatch below uses a stale version.
	seeded := persist.NewGenericQuery[*banktest.AccountView, banktest.Event](repo, banktest.NewAccountView)
	seeded.Dispatch(ctx, "acct-1", accountEnvelopes("acct-1", &banktest.AccountOpened{AccountID: "acct-1"}))

	// Force a version conflict: the wrapped repository sneaks a write in
	// between the query's load and its write-back.
	var handled error
	conflicting := &conflictingViewRepository{ViewRepository: repo, repo: repo}
	racing := persist.NewGenericQuery[*banktest.AccountView, banktest.Event](conflicting, banktest.NewAccountView).
		WithErrorHandler(func(err error) { handled = err })
	racing.Dispatch(ctx, "acct-1", accountEnvelopes("acct-1", &banktest.MoneyDeposited{Amount: 10, Balance: 10}))

	require.Error(t, handled)
	assert.ErrorIs(t, handled, persist.ErrOptimisticLock)
}

// conflictingViewRepository sneaks a concurrent update in between the
// query's load and its write-back.
type conflictingViewRepository struct {
	persist.ViewRepository[*banktest.AccountView, banktest.Event]
	repo *memory.ViewRepository[*banktest.AccountView, banktest.Event]
}

func (r *conflictingViewRepository) LoadWithContext(ctx context.Context, viewID string) (*banktest.AccountView, persist.ViewContext, bool, error) {
	view, viewContext, found, err := r.ViewRepository.LoadWithContext(ctx, viewID)
	if err != nil || !found {
		return view, viewContext, found, err
	}
	if err := r.repo.UpdateView(ctx, view, viewContext); err != nil {
		return view, viewContext, found, err
	}
	return view, viewContext, found, nil
}

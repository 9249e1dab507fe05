package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cqrs-es/internal/banktest"
	"github.com/example/cqrs-es/persist"
)

func TestViewRepositoryInsertAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)

	_, found, err := repo.Load(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, found)

	view := &banktest.AccountView{AccountID: "acct-1", Balance: 100}
	require.NoError(t, repo.UpdateView(ctx, view, persist.NewViewContext("acct-1", 0)))

	loaded, viewContext, found, err := repo.LoadWithContext(ctx, "acct-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(100), loaded.Balance)
	assert.Equal(t, int64(1), viewContext.Version)
}

func TestViewRepositoryRejectsDoubleInsert(t *testing.T) {
	ctx := context.Background()
	repo := NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)

	view := &banktest.AccountView{AccountID: "acct-1"}
	require.NoError(t, repo.UpdateView(ctx, view, persist.NewViewContext("acct-1", 0)))

	err := repo.UpdateView(ctx, view, persist.NewViewContext("acct-1", 0))
	assert.ErrorIs(t, err, persist.ErrOptimisticLock)
}

func TestViewRepositoryStaleVersionLeavesViewUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)

	require.NoError(t, repo.UpdateView(ctx,
		&banktest.AccountView{AccountID: "acct-1", Balance: 100},
		persist.NewViewContext("acct-1", 0)))
	require.NoError(t, repo.UpdateView(ctx,
		&banktest.AccountView{AccountID: "acct-1", Balance: 200},
		persist.NewViewContext("acct-1", 1)))

	// Version 1 was already consumed by the update above.
	err := repo.UpdateView(ctx,
		&banktest.AccountView{AccountID: "acct-1", Balance: 999},
		persist.NewViewContext("acct-1", 1))
	require.ErrorIs(t, err, persist.ErrOptimisticLock)

	loaded, viewContext, found, loadErr := repo.LoadWithContext(ctx, "acct-1")
	require.NoError(t, loadErr)
	require.True(t, found)
	assert.Equal(t, int64(200), loaded.Balance)
	assert.Equal(t, int64(2), viewContext.Version)
}

func TestViewRepositoryUpdateMissingView(t *testing.T) {
	ctx := context.Background()
	repo := NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView)

	err := repo.UpdateView(ctx, &banktest.AccountView{}, persist.NewViewContext("acct-1", 3))
	assert.ErrorIs(t, err, persist.ErrOptimisticLock)
}

package membership_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktcserver/membership"
)

func TestUnitOfWorkWritesOnlyTrackedColumns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := membership.NewUnitOfWork(db)
	acct := membership.NewAccount("app", "alice", now)
	acct.Password = "stored"
	acct.Comment = "original"
	seed.Insert(acct)
	require.NoError(t, seed.Commit(ctx))

	uow := membership.NewUnitOfWork(db)
	loaded, err := uow.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	loaded.SetEmail("alice@example.com")
	// Direct writes bypass tracking and must not reach storage.
	loaded.Comment = "smuggled"
	require.NoError(t, uow.Commit(ctx))

	check := membership.NewUnitOfWork(db)
	defer check.Close()
	fresh, err := check.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)
	require.NotNil(t, fresh)

	assert.Equal(t, "alice@example.com", fresh.Email)
	assert.Equal(t, "original", fresh.Comment)
}

func TestUnitOfWorkSharesIdentityAcrossScopes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := membership.NewUnitOfWork(db)
	acct := membership.NewAccount("app", "alice", now)
	acct.Password = "stored"
	seed.Insert(acct)
	require.NoError(t, seed.Commit(ctx))

	parent := membership.NewUnitOfWork(db)
	defer parent.Close()
	inParent, err := parent.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)

	child := parent.Begin()
	defer child.Close()
	inChild, err := child.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)

	require.Same(t, inParent, inChild)
}

func TestUnitOfWorkNestedCommitMergesIntoParent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := membership.NewUnitOfWork(db)
	acct := membership.NewAccount("app", "alice", now)
	acct.Password = "stored"
	seed.Insert(acct)
	require.NoError(t, seed.Commit(ctx))

	parent := membership.NewUnitOfWork(db)
	defer parent.Close()

	child := parent.Begin()
	inChild, err := child.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)

	inChild.SetEmail("alice@example.com")
	assert.True(t, child.Pending(inChild).Has(membership.FieldEmail))
	assert.False(t, parent.Pending(inChild).Has(membership.FieldEmail))

	// A nested commit hands the change set to the parent without touching
	// storage.
	require.NoError(t, child.Commit(ctx))
	assert.True(t, parent.Pending(inChild).Has(membership.FieldEmail))

	check := membership.NewUnitOfWork(db)
	unchanged, err := check.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)
	assert.Empty(t, unchanged.Email)
	check.Close()

	require.NoError(t, parent.Commit(ctx))

	final := membership.NewUnitOfWork(db)
	defer final.Close()
	persisted, err := final.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", persisted.Email)
}

func TestUnitOfWorkRejectsCrossScopeLink(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	uow := membership.NewUnitOfWork(db)
	defer uow.Close()

	acct := membership.NewAccount("app-a", "alice", now)
	role := membership.NewRole("app-b", "admins", "", now)

	assert.ErrorIs(t, uow.Link(acct, role), membership.ErrScopeMismatch)
}

func TestUnitOfWorkCommitAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	uow := membership.NewUnitOfWork(db)
	require.NoError(t, uow.Commit(ctx))

	assert.ErrorIs(t, uow.Commit(ctx), membership.ErrScopeClosed)
}

func TestUnitOfWorkDeleteRemovesMembershipRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := membership.NewUnitOfWork(db)
	acct := membership.NewAccount("app", "alice", now)
	acct.Password = "stored"
	role := membership.NewRole("app", "admins", "", now)
	seed.Insert(acct)
	seed.Insert(role)
	require.NoError(t, seed.Link(acct, role))
	require.NoError(t, seed.Commit(ctx))

	links, err := db.NewSelect().Model((*membership.AccountRole)(nil)).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, links)

	uow := membership.NewUnitOfWork(db)
	loaded, err := uow.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)
	uow.Delete(loaded)
	require.NoError(t, uow.Commit(ctx))

	links, err = db.NewSelect().Model((*membership.AccountRole)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, links)

	check := membership.NewUnitOfWork(db)
	defer check.Close()
	gone, err := check.AccountByName(ctx, "app", "alice")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

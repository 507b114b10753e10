// Package contracttest holds behaviour every identity.UserStore must share.
// Each adapter runs the suite from its own tests.
package contracttest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewUserStore returns an empty store and an optional cleanup func.
type NewUserStore func(t *testing.T) (identity.UserStore, func())

func RunUserStore(t *testing.T, newStore NewUserStore) {
	t.Helper()

	run := func(name string, fn func(t *testing.T, store identity.UserStore)) {
		t.Run(name, func(t *testing.T) {
			store, cleanup := newStore(t)
			if cleanup != nil {
				t.Cleanup(cleanup)
			}
			fn(t, store)
		})
	}

	run("CreateAndGet", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		u := NewUser("alice@example.com")
		u.PhoneNumber = "+31 20 123 4567"
		u.LockoutEnd = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
		u.AccessFailedCount = 2
		require.NoError(t, store.Create(ctx, u))

		byID, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assertSameUser(t, u, byID)

		byEmail, err := store.GetByNormalizedEmail(ctx, "ALICE@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		byName, err := store.GetByNormalizedUserName(ctx, "ALICE@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.ID)
	})

	run("GetMissing", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()

		_, err := store.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, identity.ErrUserNotFound)

		_, err = store.GetByNormalizedEmail(ctx, "NOBODY@EXAMPLE.COM")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)

		_, err = store.GetByNormalizedUserName(ctx, "NOBODY@EXAMPLE.COM")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	run("DuplicateUserName", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, NewUser("bob@example.com")))

		dup := NewUser("bob@example.com")
		dup.Email = "other@example.com"
		dup.NormalizedEmail = "OTHER@EXAMPLE.COM"
		err := store.Create(ctx, dup)
		assert.ErrorIs(t, err, identity.ErrDuplicateUserName)
	})

	run("DuplicateEmail", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, NewUser("carol@example.com")))

		dup := NewUser("carol-alt")
		dup.Email = "Carol@Example.com"
		dup.NormalizedEmail = "CAROL@EXAMPLE.COM"
		err := store.Create(ctx, dup)
		assert.ErrorIs(t, err, identity.ErrDuplicateEmail)
	})

	run("UpdateRotatesConcurrencyStamp", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		u := NewUser("dave@example.com")
		require.NoError(t, store.Create(ctx, u))

		before := u.ConcurrencyStamp
		u.EmailConfirmed = true
		u.PhoneNumber = "555-0100"
		u.AccessFailedCount = 3
		u.SecurityStamp = "NEWSTAMP"
		require.NoError(t, store.Update(ctx, u))
		assert.NotEqual(t, before, u.ConcurrencyStamp)

		got, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assertSameUser(t, u, got)
	})

	run("UpdateWithStaleStamp", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		u := NewUser("erin@example.com")
		require.NoError(t, store.Create(ctx, u))

		first, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		second, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)

		first.PhoneNumber = "111"
		require.NoError(t, store.Update(ctx, first))

		second.PhoneNumber = "222"
		err = store.Update(ctx, second)
		assert.ErrorIs(t, err, identity.ErrConcurrencyFailure)

		got, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "111", got.PhoneNumber)
	})

	run("UpdateMissing", func(t *testing.T, store identity.UserStore) {
		err := store.Update(context.Background(), NewUser("ghost@example.com"))
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	run("ClearLockoutEnd", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		u := NewUser("frank@example.com")
		u.LockoutEnd = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.Create(ctx, u))

		u.LockoutEnd = time.Time{}
		require.NoError(t, store.Update(ctx, u))

		got, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.LockoutEnd.IsZero())
	})

	run("ReturnedUsersAreCopies", func(t *testing.T, store identity.UserStore) {
		ctx := context.Background()
		u := NewUser("grace@example.com")
		require.NoError(t, store.Create(ctx, u))

		got, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		got.PhoneNumber = "mutated"

		again, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, again.PhoneNumber)
	})
}

// NewUser builds a valid, unconfirmed user whose user name is email.
func NewUser(email string) *identity.User {
	now := time.Now().UTC().Truncate(time.Second)
	return &identity.User{
		ID:                 uuid.New(),
		UserName:           email,
		NormalizedUserName: identity.Normalize(email),
		Email:              email,
		NormalizedEmail:    identity.Normalize(email),
		PasswordHash:       "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
		SecurityStamp:      "STAMP-" + uuid.NewString(),
		ConcurrencyStamp:   identity.NewConcurrencyStamp(),
		LockoutEnabled:     true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func assertSameUser(t *testing.T, want, got *identity.User) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.UserName, got.UserName)
	assert.Equal(t, want.NormalizedUserName, got.NormalizedUserName)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.NormalizedEmail, got.NormalizedEmail)
	assert.Equal(t, want.EmailConfirmed, got.EmailConfirmed)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, want.SecurityStamp, got.SecurityStamp)
	assert.Equal(t, want.ConcurrencyStamp, got.ConcurrencyStamp)
	assert.Equal(t, want.PhoneNumber, got.PhoneNumber)
	assert.True(t, want.LockoutEnd.Equal(got.LockoutEnd), "LockoutEnd: want %v, got %v", want.LockoutEnd, got.LockoutEnd)
	assert.Equal(t, want.LockoutEnabled, got.LockoutEnabled)
	assert.Equal(t, want.AccessFailedCount, got.AccessFailedCount)
	assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Second)
	assert.WithinDuration(t, want.UpdatedAt, got.UpdatedAt, time.Second)
}

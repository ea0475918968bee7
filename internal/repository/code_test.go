package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"familynova/internal/models"
	"familynova/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceGenerator(values ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(values) {
			return "", fmt.Errorf("generator exhausted")
		}
		v := values[i]
		i++
		return v, nil
	}
}

func TestCodeRepository_IssueFriendCode(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewCodeRepository(db)
	ctx := context.Background()
	owner := testutil.CreateAccount(t, db, models.RoleChild, "Quinn")
	now := time.Now()

	first, err := repo.IssueFriendCode(ctx, owner.ID, now, 24*time.Hour, sequenceGenerator("AAAA2222"))
	require.NoError(t, err)
	assert.Equal(t, "AAAA2222", first.Code)

	t.Run("Active code is reused", func(t *testing.T) {
		again, err := repo.IssueFriendCode(ctx, owner.ID, now.Add(time.Minute), 24*time.Hour, sequenceGenerator("BBBB3333"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("Expired code is replaced", func(t *testing.T) {
		later := now.Add(25 * time.Hour)
		fresh, err := repo.IssueFriendCode(ctx, owner.ID, later, 24*time.Hour, sequenceGenerator("CCCC4444"))
		require.NoError(t, err)
		assert.Equal(t, "CCCC4444", fresh.Code)

		var count int64
		require.NoError(t, db.Model(&models.FriendCode{}).Where("owner_id = ?", owner.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Collision retries", func(t *testing.T) {
		other := testutil.CreateAccount(t, db, models.RoleChild, "Rowan")
		code, err := repo.IssueFriendCode(ctx, other.ID, now.Add(25*time.Hour), 24*time.Hour, sequenceGenerator("CCCC4444", "DDDD5555"))
		require.NoError(t, err)
		assert.Equal(t, "DDDD5555", code.Code)
	})
}

func TestCodeRepository_IssueFriendCode_Concurrent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewCodeRepository(db)
	ctx := context.Background()
	owner := testutil.CreateAccount(t, db, models.RoleChild, "Sage")
	now := time.Now()

	const callers = 8
	var wg sync.WaitGroup
	codes := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, err := repo.IssueFriendCode(ctx, owner.ID, now, 24*time.Hour, sequenceGenerator(fmt.Sprintf("CODE%04d", i)))
			if assert.NoError(t, err) {
				codes <- code.Code
			}
		}(i)
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for c := range codes {
		seen[c] = true
	}
	assert.Len(t, seen, 1, "every caller gets the same active code")

	var count int64
	require.NoError(t, db.Model(&models.FriendCode{}).Where("owner_id = ?", owner.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCodeRepository_IssueFriendCode_LocksOwner(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCodeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockAccountQuery).WithArgs(3, 1).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	code, err := repo.IssueFriendCode(context.Background(), 3, time.Now(), time.Hour, sequenceGenerator("LOCK2345"))
	assert.Nil(t, code)
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepository_RedeemFriendCode(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewCodeRepository(db)
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateAccount(t, db, models.RoleParent, "Harper", testutil.Verified())
	redeemer := testutil.CreateAccount(t, db, models.RoleParent, "Emerson")

	_, err := repo.IssueFriendCode(ctx, owner.ID, now, 24*time.Hour, sequenceGenerator("HARP2345"))
	require.NoError(t, err)

	t.Run("Unknown code", func(t *testing.T) {
		_, err := repo.RedeemFriendCode(ctx, "ZZZZ9999", redeemer.ID, now)
		assert.Equal(t, models.CodeCodeNotFound, models.ErrorCode(err))
	})

	t.Run("Own code", func(t *testing.T) {
		_, err := repo.RedeemFriendCode(ctx, "HARP2345", owner.ID, now)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	})

	t.Run("Success then used", func(t *testing.T) {
		edge, err := repo.RedeemFriendCode(ctx, "HARP2345", redeemer.ID, now)
		require.NoError(t, err)
		assert.Equal(t, models.FriendshipStatusAccepted, edge.Status)
		assert.True(t, edge.Verified)
		assert.True(t, edge.Involves(owner.ID))
		assert.True(t, edge.Involves(redeemer.ID))

		third := testutil.CreateAccount(t, db, models.RoleParent, "Finley")
		_, err = repo.RedeemFriendCode(ctx, "HARP2345", third.ID, now)
		assert.Equal(t, models.CodeCodeExpired, models.ErrorCode(err))
	})

	t.Run("Expired", func(t *testing.T) {
		other := testutil.CreateAccount(t, db, models.RoleChild, "Sage")
		_, err := repo.IssueFriendCode(ctx, other.ID, now.Add(-48*time.Hour), 24*time.Hour, sequenceGenerator("SAGE2345"))
		require.NoError(t, err)
		_, err = repo.RedeemFriendCode(ctx, "SAGE2345", redeemer.ID, now)
		assert.Equal(t, models.CodeCodeExpired, models.ErrorCode(err))
	})

	t.Run("Pending edge is promoted", func(t *testing.T) {
		a := testutil.CreateAccount(t, db, models.RoleChild, "Tatum")
		b := testutil.CreateAccount(t, db, models.RoleChild, "Uma")
		pending := &models.Friendship{AccountAID: a.ID, AccountBID: b.ID, RequestedByID: a.ID}
		require.NoError(t, db.Create(pending).Error)

		_, err := repo.IssueFriendCode(ctx, a.ID, now, 24*time.Hour, sequenceGenerator("TATU2345"))
		require.NoError(t, err)
		edge, err := repo.RedeemFriendCode(ctx, "TATU2345", b.ID, now)
		require.NoError(t, err)
		assert.Equal(t, pending.ID, edge.ID)
		assert.Equal(t, models.FriendshipStatusAccepted, edge.Status)
		assert.False(t, edge.Verified)

		var count int64
		require.NoError(t, db.Model(&models.Friendship{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})
}

func TestCodeRepository_RedeemFriendCode_Concurrent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewCodeRepository(db)
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateAccount(t, db, models.RoleChild, "Owner")
	_, err := repo.IssueFriendCode(ctx, owner.ID, now, 24*time.Hour, sequenceGenerator("RACE2345"))
	require.NoError(t, err)

	const redeemers = 8
	accounts := make([]*models.Account, redeemers)
	for i := range accounts {
		accounts[i] = testutil.CreateAccount(t, db, models.RoleChild, fmt.Sprintf("Racer%d", i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		expired int
	)
	for _, acc := range accounts {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := repo.RedeemFriendCode(ctx, "RACE2345", id, now)
			mu.Lock()
			defer mu.Unlock()
			switch models.ErrorCode(err) {
			case "":
				success++
			case models.CodeCodeExpired:
				expired++
			}
		}(acc.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, redeemers-1, expired)
}

func TestCodeRepository_SchoolCode(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewCodeRepository(db)
	ctx := context.Background()
	now := time.Now()

	child := testutil.CreateAccount(t, db, models.RoleChild, "Nico")
	require.NoError(t, repo.CreateSchoolCode(ctx, &models.SchoolCode{
		Code: "LINCOLN-5A", School: "Lincoln Elementary", Grade: "5", ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.CreateSchoolCode(ctx, &models.SchoolCode{
		Code: "OLD-CODE", School: "Lincoln Elementary", Grade: "4", ExpiresAt: now.Add(-time.Hour),
	}))

	_, err := repo.RedeemSchoolCode(ctx, "NOPE", child.ID, now)
	assert.Equal(t, models.CodeCodeNotFound, models.ErrorCode(err))

	_, err = repo.RedeemSchoolCode(ctx, "OLD-CODE", child.ID, now)
	assert.Equal(t, models.CodeCodeExpired, models.ErrorCode(err))

	sc, err := repo.RedeemSchoolCode(ctx, "LINCOLN-5A", child.ID, now)
	require.NoError(t, err)
	require.NotNil(t, sc.AssignedToID)
	assert.Equal(t, child.ID, *sc.AssignedToID)

	var updated models.Account
	require.NoError(t, db.First(&updated, child.ID).Error)
	assert.True(t, updated.Verification.SchoolVerified)
	assert.Equal(t, "Lincoln Elementary", updated.School)
	assert.Equal(t, "5", updated.Grade)

	other := testutil.CreateAccount(t, db, models.RoleChild, "Ola")
	_, err = repo.RedeemSchoolCode(ctx, "LINCOLN-5A", other.ID, now)
	assert.Equal(t, models.CodeCodeExpired, models.ErrorCode(err))
}

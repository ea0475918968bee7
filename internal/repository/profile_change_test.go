package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"familynova/internal/models"
	"familynova/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lockAccountQuery = regexp.QuoteMeta(
	`SELECT "id" FROM "accounts" WHERE "accounts"."id" = $1 ORDER BY "accounts"."id" LIMIT $2 FOR UPDATE`)

func TestProfileChangeRepository_Create_LocksChildFirst(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewProfileChangeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockAccountQuery).WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "profile_change_requests"`)).
		WithArgs(7, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.ProfileChangeRequest{
		ChildID:       7,
		RequestedByID: 7,
		Proposed:      models.ProfileFields{Grade: strPtr("5")},
	})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileChangeRepository_Create_UnknownChild(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewProfileChangeRepository(db)

	err := repo.Create(context.Background(), &models.ProfileChangeRequest{
		ChildID:       404,
		RequestedByID: 404,
		Proposed:      models.ProfileFields{Grade: strPtr("5")},
	})
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestProfileChangeRepository_Create_Concurrent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewProfileChangeRepository(db)
	ctx := context.Background()
	child := testutil.CreateAccount(t, db, models.RoleChild, "Sky")

	const filers = 8
	var wg sync.WaitGroup
	errs := make(chan error, filers)
	for i := 0; i < filers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(ctx, &models.ProfileChangeRequest{
				ChildID:       child.ID,
				RequestedByID: child.ID,
				Proposed:      models.ProfileFields{DisplayName: strPtr("Skylar")},
				Moderation:    models.Moderation{Status: models.ModerationPending},
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	}
	assert.Equal(t, 1, succeeded)

	var pending int64
	require.NoError(t, db.Model(&models.ProfileChangeRequest{}).
		Where("child_id = ? AND status = ?", child.ID, models.ModerationPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

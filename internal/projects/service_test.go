package projects

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/db/dbtest"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
)

func newTestService(t *testing.T) (*Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(client.DB()),
		TransactionRunner: client,
		Outbox:            outbox.NewService(outbox.NewRepository(client.DB()), nil),
	})
	require.NoError(t, err)
	return svc, client
}

func seedProject(t *testing.T, client *db.Client, status enums.ProjectStatus, current, goal money.Cents) *models.ConservationProject {
	t.Helper()
	project := &models.ConservationProject{
		OwnerID:        uuid.New(),
		Title:          "Wetland buffer",
		FundingGoal:    goal,
		CurrentFunding: current,
		Status:         status,
	}
	require.NoError(t, NewRepository(client.DB()).Create(context.Background(), project))
	return project
}

func countOutbox(t *testing.T, client *db.Client, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestFundingView(t *testing.T) {
	svc, client := newTestService(t)
	project := seedProject(t, client, enums.ProjectStatusActive, 9700, 20000)

	view, err := svc.Funding(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(9700), view.CurrentFunding)
	assert.Equal(t, "48.50", view.PercentFunded)
	assert.Equal(t, "$97.00", view.CurrentFundingDisplay)
	assert.Equal(t, "$200.00", view.FundingGoalDisplay)

	_, err = svc.Funding(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReevaluateFundsProjectAndEmits(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	project := seedProject(t, client, enums.ProjectStatusActive, 0, 10000)

	var transition Transition
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := NewRepository(tx).IncrementFunding(ctx, project.ID, 10000); err != nil {
			return err
		}
		var err error
		transition, err = svc.Reevaluate(ctx, tx, project.ID)
		return err
	}))

	assert.True(t, transition.Changed())
	assert.Equal(t, enums.ProjectStatusFunded, transition.To)
	stored, err := svc.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProjectStatusFunded, stored.Status)
	assert.Equal(t, int64(1), countOutbox(t, client, enums.EventProjectStatusChanged))
}

func TestReevaluateLeavesPausedAlone(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	project := seedProject(t, client, enums.ProjectStatusPaused, 50000, 10000)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		transition, err := svc.Reevaluate(ctx, tx, project.ID)
		assert.False(t, transition.Changed())
		return err
	}))
	assert.Zero(t, countOutbox(t, client, enums.EventProjectStatusChanged))
}

func TestCompleteOnlyFromFunded(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	active := seedProject(t, client, enums.ProjectStatusActive, 10, 10000)
	_, err := svc.Complete(ctx, active.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	funded := seedProject(t, client, enums.ProjectStatusFunded, 10000, 10000)
	completed, err := svc.Complete(ctx, funded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProjectStatusCompleted, completed.Status)

	stored, err := svc.Get(ctx, funded.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.CompletedAt)

	_, err = svc.Pause(ctx, funded.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// completed is terminal for automatic transitions too
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := NewRepository(tx).DecrementFunding(ctx, funded.ID, 10000); err != nil {
			return err
		}
		transition, err := svc.Reevaluate(ctx, tx, funded.ID)
		assert.Equal(t, enums.ProjectStatusCompleted, transition.To)
		return err
	}))
}

func TestPauseAndResume(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	project := seedProject(t, client, enums.ProjectStatusActive, 12000, 10000)

	paused, err := svc.Pause(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProjectStatusPaused, paused.Status)

	_, err = svc.Pause(ctx, project.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	resumed, err := svc.Resume(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProjectStatusFunded, resumed.Status)

	stored, err := svc.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PausedAt)

	_, err = svc.Resume(ctx, project.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(2), countOutbox(t, client, enums.EventProjectStatusChanged))
}

func TestDecrementFundingGuard(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()
	project := seedProject(t, client, enums.ProjectStatusActive, 500, 10000)
	repo := NewRepository(client.DB())

	ok, err := repo.DecrementFunding(ctx, project.ID, 501)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DecrementFunding(ctx, project.ID, 500)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), stored.CurrentFunding)
}

func TestListIDsPages(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedProject(t, client, enums.ProjectStatusActive, 0, 100)
	}
	repo := NewRepository(client.DB())

	first, err := repo.ListIDs(ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := repo.ListIDs(ctx, first[1], 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

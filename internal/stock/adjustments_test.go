package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/asiria/asiriapos/internal/shared"
)

func TestCreateAdjustmentLeavesStockUntouched(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)

	adjustment, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        1,
		QuantityAdjusted: -3,
		Reason:           "cycle count variance",
		ActorID:          4,
	})
	require.NoError(t, err)
	require.False(t, adjustment.IsApproved)
	require.Equal(t, int64(10), repo.products[1].Stock)
	require.Empty(t, repo.movements)
}

func TestCreateAdjustmentRejectsUnknownProduct(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t, repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        42,
		QuantityAdjusted: 5,
		Reason:           "found stock",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAdjustmentRejectsZeroQuantity(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		TenantID:  testTenant,
		ProductID: 1,
		Reason:    "noop",
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestApproveAdjustmentAppliesDeltaOnce(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	approvals := &capturedApprovals{}
	engine := NewEngine(repo, nil, approvals, EngineConfig{}).WithNow(testClock())
	ctx := context.Background()

	adjustment, err := engine.CreateAdjustment(ctx, AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        1,
		QuantityAdjusted: -3,
		Reason:           "cycle count variance",
		ReferenceNumber:  "ADJ-1",
		ActorID:          4,
	})
	require.NoError(t, err)

	movement, err := engine.ApproveAdjustment(ctx, adjustment.ID, 8)
	require.NoError(t, err)
	require.Equal(t, MovementAdjustment, movement.Type)
	require.Equal(t, int64(10), movement.PreviousStock)
	require.Equal(t, int64(7), movement.NewStock)
	require.Equal(t, int64(8), movement.CreatedBy)
	require.Equal(t, int64(7), repo.products[1].Stock)

	stored, err := engine.GetAdjustment(ctx, adjustment.ID)
	require.NoError(t, err)
	require.True(t, stored.IsApproved)
	require.Equal(t, int64(8), stored.ApprovedBy)

	// Second approval is rejected and changes nothing.
	_, err = engine.ApproveAdjustment(ctx, adjustment.ID, 8)
	require.ErrorIs(t, err, ErrAlreadyApproved)
	require.Equal(t, int64(7), repo.products[1].Stock)
	require.Len(t, repo.movements, 1)

	require.Len(t, approvals.logs, 2)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
	require.Equal(t, shared.ApprovalApprove, approvals.logs[1].Action)
}

func TestApproveAdjustmentMayDriveStockNegative(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 2, 0, 5, 5)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	adjustment, err := engine.CreateAdjustment(ctx, AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        1,
		QuantityAdjusted: -5,
		Reason:           "write-off beyond count",
	})
	require.NoError(t, err)

	movement, err := engine.ApproveAdjustment(ctx, adjustment.ID, 8)
	require.NoError(t, err)
	require.Equal(t, int64(-3), movement.NewStock)
	require.Equal(t, int64(-3), repo.products[1].Stock)
}

func TestApproveAdjustmentEvaluatesAlerts(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 5, 5, 5)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	adjustment, err := engine.CreateAdjustment(ctx, AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        1,
		QuantityAdjusted: -10,
		Reason:           "stock destroyed",
	})
	require.NoError(t, err)
	_, err = engine.ApproveAdjustment(ctx, adjustment.ID, 8)
	require.NoError(t, err)

	require.Len(t, activeAlerts(t, repo, 1), 2)
}

func TestApproveUnknownAdjustment(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t, repo)

	_, err := engine.ApproveAdjustment(context.Background(), uuid.New(), 8)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAdjustment(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	adjustment, err := engine.CreateAdjustment(ctx, AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        1,
		QuantityAdjusted: 2,
		Reason:           "typo",
	})
	require.NoError(t, err)

	require.NoError(t, engine.DeleteAdjustment(ctx, adjustment.ID))
	_, err = engine.GetAdjustment(ctx, adjustment.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteApprovedAdjustmentRejected(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	adjustment, err := engine.CreateAdjustment(ctx, AdjustmentInput{
		TenantID:         testTenant,
		ProductID:        1,
		QuantityAdjusted: 2,
		Reason:           "found stock",
	})
	require.NoError(t, err)
	_, err = engine.ApproveAdjustment(ctx, adjustment.ID, 8)
	require.NoError(t, err)

	err = engine.DeleteAdjustment(ctx, adjustment.ID)
	require.ErrorIs(t, err, ErrAlreadyApproved)

	stored, err := engine.GetAdjustment(ctx, adjustment.ID)
	require.NoError(t, err)
	require.True(t, stored.IsApproved)
}

package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 20, 5, 4, 6)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 5, Type: MovementSale})
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, ReserveInput{TenantID: testTenant, SaleID: 100, ProductID: 1, Quantity: 4})
	require.NoError(t, err)

	summary, err := engine.Summarize(ctx, testTenant, 1)
	require.NoError(t, err)

	require.Equal(t, int64(1), summary.ProductID)
	require.Equal(t, int64(15), summary.Stock)
	require.Equal(t, int64(11), summary.FreeStock)
	require.InDelta(t, 6.0, summary.AverageCost, 1e-9)
	require.InDelta(t, 90.0, summary.StockValue, 1e-9)
	require.False(t, summary.IsLowStock)
	require.False(t, summary.IsOutOfStock)
	require.Zero(t, summary.ActiveAlerts)
	require.Len(t, summary.RecentMovements, 1)
	require.Equal(t, MovementSale, summary.RecentMovements[0].Type)
}

func TestSummarizeLowStockProduct(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 6, 5, 4, 4)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 6, Type: MovementSale})
	require.NoError(t, err)

	summary, err := engine.Summarize(ctx, testTenant, 1)
	require.NoError(t, err)
	require.True(t, summary.IsLowStock)
	require.True(t, summary.IsOutOfStock)
	require.Equal(t, 2, summary.ActiveAlerts)
}

func TestSummarizeUnknownProduct(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t, repo)

	_, err := engine.Summarize(context.Background(), testTenant, 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSummarizeLimitsRecentMovements(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 100, 0, 4, 4)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 1, Type: MovementSale})
		require.NoError(t, err)
	}

	summary, err := engine.Summarize(ctx, testTenant, 1)
	require.NoError(t, err)
	require.Len(t, summary.RecentMovements, 10)
}

package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func activeAlerts(t *testing.T, repo *memRepo, productID int64) []Alert {
	t.Helper()
	alerts, err := repo.ListAlerts(context.Background(), AlertFilter{TenantID: testTenant, ProductID: productID, ActiveOnly: true})
	require.NoError(t, err)
	return alerts
}

func TestOutboundDroppingToMinimumRaisesLowStockAlert(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 6, 5, 2, 2)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  1,
		Type:      MovementSale,
	})
	require.NoError(t, err)

	alerts := activeAlerts(t, repo, 1)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertLowStock, alerts[0].Type)
	require.True(t, alerts[0].IsActive)
}

func TestOutOfStockRaisesBothAlerts(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 3, 5, 2, 2)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  3,
		Type:      MovementSale,
	})
	require.NoError(t, err)

	alerts := activeAlerts(t, repo, 1)
	require.Len(t, alerts, 2)
	types := map[AlertType]bool{}
	for _, a := range alerts {
		types[a.Type] = true
	}
	require.True(t, types[AlertLowStock])
	require.True(t, types[AlertOutOfStock])
}

func TestRepeatedBreachesKeepOneActiveAlertPerType(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 8, 2, 2)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.RecordOutbound(ctx, OutboundInput{
			TenantID:  testTenant,
			ProductID: 1,
			Quantity:  1,
			Type:      MovementSale,
		})
		require.NoError(t, err)
	}

	require.Len(t, activeAlerts(t, repo, 1), 1)
}

func TestRestockDoesNotAutoResolveAlert(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 5, 5, 2, 2)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 1, Type: MovementSale})
	require.NoError(t, err)
	require.Len(t, activeAlerts(t, repo, 1), 1)

	_, err = engine.RecordInbound(ctx, InboundInput{TenantID: testTenant, ProductID: 1, Quantity: 50, UnitCost: 2})
	require.NoError(t, err)

	// Recovery is visible in the counter, but only a human closes the alert.
	require.Equal(t, int64(54), repo.products[1].Stock)
	require.Len(t, activeAlerts(t, repo, 1), 1)
}

func TestResolveAlert(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 5, 5, 2, 2)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 1, Type: MovementSale})
	require.NoError(t, err)
	alerts := activeAlerts(t, repo, 1)
	require.Len(t, alerts, 1)

	resolved, err := engine.ResolveAlert(ctx, alerts[0].ID, 9)
	require.NoError(t, err)
	require.False(t, resolved.IsActive)
	require.Equal(t, int64(9), resolved.ResolvedBy)
	require.False(t, resolved.ResolvedAt.IsZero())
	require.Empty(t, activeAlerts(t, repo, 1))
}

func TestResolveAlertTwiceFails(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 5, 5, 2, 2)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 1, Type: MovementSale})
	require.NoError(t, err)
	alerts := activeAlerts(t, repo, 1)

	_, err = engine.ResolveAlert(ctx, alerts[0].ID, 9)
	require.NoError(t, err)
	_, err = engine.ResolveAlert(ctx, alerts[0].ID, 9)
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestAlertReraisedAfterResolutionOnNextBreach(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 5, 5, 2, 2)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 1, Type: MovementSale})
	require.NoError(t, err)
	alerts := activeAlerts(t, repo, 1)
	_, err = engine.ResolveAlert(ctx, alerts[0].ID, 9)
	require.NoError(t, err)

	_, err = engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 1, Type: MovementSale})
	require.NoError(t, err)

	fresh := activeAlerts(t, repo, 1)
	require.Len(t, fresh, 1)
	require.NotEqual(t, alerts[0].ID, fresh[0].ID)
}

func TestScanAlertsBackfillsMissingAlerts(t *testing.T) {
	repo := newMemRepo()
	// Both already breach their thresholds without any alert on file, as if
	// the synchronous evaluation had been missed.
	seedProduct(repo, 1, 2, 5, 2, 2)
	seedProduct(repo, 2, 0, 3, 2, 2)
	seedProduct(repo, 3, 50, 5, 2, 2)
	engine := newTestEngine(t, repo)

	created, err := engine.ScanAlerts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), created)

	require.Len(t, activeAlerts(t, repo, 1), 1)
	require.Len(t, activeAlerts(t, repo, 2), 2)
	require.Empty(t, activeAlerts(t, repo, 3))

	// A second scan finds everything in place.
	created, err = engine.ScanAlerts(context.Background())
	require.NoError(t, err)
	require.Zero(t, created)
}

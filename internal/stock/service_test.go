package stock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/asiria/asiriapos/internal/shared"
	_ "github.com/asiria/asiriapos/testing"
)

var testTenant = uuid.MustParse("6f1c32b4-54c9-4da5-9bfe-6f1f50b9a821")

// testClock hands out strictly increasing timestamps so ledger ordering is
// deterministic.
func testClock() func() time.Time {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestEngine(t *testing.T, repo *memRepo) *Engine {
	t.Helper()
	return NewEngine(repo, nil, nil, EngineConfig{}).WithNow(testClock())
}

func seedProduct(repo *memRepo, id int64, stock, minQty int64, cost, avgCost float64) {
	repo.products[id] = ProductStock{
		ProductID:   id,
		TenantID:    testTenant,
		Stock:       stock,
		MinQuantity: minQty,
		Cost:        cost,
		AverageCost: avgCost,
	}
}

type capturedAudit struct {
	logs []shared.AuditLog
}

func (c *capturedAudit) Record(ctx context.Context, log shared.AuditLog) error {
	c.logs = append(c.logs, log)
	return nil
}

type capturedApprovals struct {
	logs []shared.ApprovalLog
}

func (c *capturedApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	c.logs = append(c.logs, log)
	return nil
}

func TestRecordInboundRecomputesAverageCost(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 2, 5, 5)
	engine := newTestEngine(t, repo)

	movement, err := engine.RecordInbound(context.Background(), InboundInput{
		TenantID:        testTenant,
		ProductID:       1,
		Quantity:        10,
		UnitCost:        7,
		ReferenceNumber: "PUR-001",
		ActorID:         42,
	})
	require.NoError(t, err)

	require.Equal(t, int64(10), movement.PreviousStock)
	require.Equal(t, int64(20), movement.NewStock)
	require.Equal(t, MovementPurchase, movement.Type)

	product := repo.products[1]
	require.Equal(t, int64(20), product.Stock)
	// (10*5 + 10*7) / 20 = 6
	require.InDelta(t, 6.0, product.AverageCost, 1e-9)
}

func TestRecordInboundFallsBackToUnitCost(t *testing.T) {
	repo := newMemRepo()
	// Never costed before: average cost is zero, basis falls back to cost.
	seedProduct(repo, 1, 5, 0, 4, 0)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordInbound(context.Background(), InboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  5,
		UnitCost:  8,
	})
	require.NoError(t, err)

	// (5*4 + 5*8) / 10 = 6
	require.InDelta(t, 6.0, repo.products[1].AverageCost, 1e-9)
}

func TestRecordInboundNetsDiscountOffUnitCost(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 0, 0, 0, 0)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordInbound(context.Background(), InboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  4,
		UnitCost:  10,
		Discount:  2,
	})
	require.NoError(t, err)
	require.InDelta(t, 8.0, repo.products[1].AverageCost, 1e-9)
}

func TestRecordInboundDiscountExceedingCostFloorsAtZero(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 0, 0, 0, 0)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordInbound(context.Background(), InboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  3,
		UnitCost:  5,
		Discount:  9,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, repo.products[1].AverageCost, 1e-9)
}

func TestRecordInboundRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 0, 0, 0, 0)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordInbound(context.Background(), InboundInput{TenantID: testTenant, ProductID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = engine.RecordInbound(context.Background(), InboundInput{TenantID: testTenant, ProductID: 1, Quantity: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Empty(t, repo.movements)
}

func TestRecordOutboundInsufficientStock(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 3, 0, 5, 5)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  5,
		Type:      MovementSale,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Rejected before any mutation: no ledger entry, counter untouched.
	require.Empty(t, repo.movements)
	require.Equal(t, int64(3), repo.products[1].Stock)
}

func TestRecordOutboundAllowNegativeStock(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 3, 0, 5, 5)
	engine := NewEngine(repo, nil, nil, EngineConfig{AllowNegativeStock: true}).WithNow(testClock())

	movement, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  5,
		Type:      MovementSale,
	})
	require.NoError(t, err)
	require.Equal(t, int64(-2), movement.NewStock)
	require.Equal(t, int64(-2), repo.products[1].Stock)
}

func TestRecordOutboundDoesNotChangeAverageCost(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 6)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  4,
		Type:      MovementSale,
	})
	require.NoError(t, err)
	require.InDelta(t, 6.0, repo.products[1].AverageCost, 1e-9)
}

func TestRecordOutboundBatchAllOrNothing(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	seedProduct(repo, 2, 2, 0, 3, 3)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutboundBatch(context.Background(), []OutboundInput{
		{TenantID: testTenant, ProductID: 1, Quantity: 4, Type: MovementSale, ReferenceNumber: "SAL-9"},
		{TenantID: testTenant, ProductID: 2, Quantity: 5, Type: MovementSale, ReferenceNumber: "SAL-9"},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The first line must roll back together with the failing one.
	require.Empty(t, repo.movements)
	require.Equal(t, int64(10), repo.products[1].Stock)
	require.Equal(t, int64(2), repo.products[2].Stock)
}

func TestRecordOutboundBatchAppliesEveryLine(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	seedProduct(repo, 2, 8, 0, 3, 3)
	engine := newTestEngine(t, repo)

	movements, err := engine.RecordOutboundBatch(context.Background(), []OutboundInput{
		{TenantID: testTenant, ProductID: 2, Quantity: 3, Type: MovementSale, ReferenceNumber: "SAL-10"},
		{TenantID: testTenant, ProductID: 1, Quantity: 4, Type: MovementSale, ReferenceNumber: "SAL-10"},
	})
	require.NoError(t, err)
	require.Len(t, movements, 2)

	// Results come back in input order even though locking reorders by product.
	require.Equal(t, int64(2), movements[0].ProductID)
	require.Equal(t, int64(1), movements[1].ProductID)
	require.Equal(t, int64(5), repo.products[2].Stock)
	require.Equal(t, int64(6), repo.products[1].Stock)
}

func TestRecordOutboundBatchRepeatedProductChainsSnapshots(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)

	movements, err := engine.RecordOutboundBatch(context.Background(), []OutboundInput{
		{TenantID: testTenant, ProductID: 1, Quantity: 3, Type: MovementSale},
		{TenantID: testTenant, ProductID: 1, Quantity: 2, Type: MovementSale},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), movements[0].PreviousStock)
	require.Equal(t, int64(7), movements[0].NewStock)
	require.Equal(t, int64(7), movements[1].PreviousStock)
	require.Equal(t, int64(5), movements[1].NewStock)
	require.Equal(t, int64(5), repo.products[1].Stock)
}

func TestRecordOutboundBatchRejectsInboundTypes(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutboundBatch(context.Background(), []OutboundInput{
		{TenantID: testTenant, ProductID: 1, Quantity: 3, Type: MovementPurchase},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRecordInitialAllowsZeroQuantity(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 0, 0, 0, 0)
	engine := newTestEngine(t, repo)

	movement, err := engine.RecordInitial(context.Background(), InitialInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  0,
	})
	require.NoError(t, err)
	require.Equal(t, MovementInitial, movement.Type)
	require.Equal(t, int64(0), movement.Quantity)
	require.Len(t, repo.movements, 1)
}

func TestRecordReturnDoesNotRecost(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 5, 0, 5, 6)
	engine := newTestEngine(t, repo)

	movement, err := engine.RecordReturn(context.Background(), ReturnInput{
		TenantID:        testTenant,
		ProductID:       1,
		Quantity:        2,
		ReferenceNumber: "RET-1",
	})
	require.NoError(t, err)
	require.Equal(t, MovementReturn, movement.Type)
	require.Equal(t, int64(7), repo.products[1].Stock)
	require.InDelta(t, 6.0, repo.products[1].AverageCost, 1e-9)
}

func TestReverseWritesCompensatingAdjustment(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 6)
	engine := newTestEngine(t, repo)

	sale, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:        testTenant,
		ProductID:       1,
		Quantity:        4,
		Type:            MovementSale,
		ReferenceNumber: "SAL-77",
	})
	require.NoError(t, err)

	reversal, err := engine.Reverse(context.Background(), ReversalInput{
		TenantID:        testTenant,
		ProductID:       1,
		Quantity:        sale.Quantity,
		ReferenceNumber: sale.ReferenceNumber,
	})
	require.NoError(t, err)

	require.Equal(t, MovementAdjustment, reversal.Type)
	require.Equal(t, "REVERSAL-SAL-77", reversal.ReferenceNumber)
	require.Equal(t, int64(4), reversal.Quantity)
	require.Equal(t, int64(10), repo.products[1].Stock)
	// Reversals restore quantity but never rewrite cost history.
	require.InDelta(t, 6.0, repo.products[1].AverageCost, 1e-9)
}

func TestReverseInboundMovement(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	engine := newTestEngine(t, repo)

	purchase, err := engine.RecordInbound(context.Background(), InboundInput{
		TenantID:        testTenant,
		ProductID:       1,
		Quantity:        10,
		UnitCost:        7,
		ReferenceNumber: "PUR-5",
	})
	require.NoError(t, err)
	require.InDelta(t, 6.0, repo.products[1].AverageCost, 1e-9)

	reversal, err := engine.Reverse(context.Background(), ReversalInput{
		TenantID:        testTenant,
		ProductID:       1,
		Quantity:        purchase.Quantity,
		ReferenceNumber: purchase.ReferenceNumber,
	})
	require.NoError(t, err)

	require.Equal(t, int64(-10), reversal.Quantity)
	require.Equal(t, int64(10), repo.products[1].Stock)
	// Quantity is restored, the averaged-in cost stays: reversal is
	// deliberately asymmetric.
	require.InDelta(t, 6.0, repo.products[1].AverageCost, 1e-9)
}

func TestLedgerReplayMatchesCounter(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 0, 0, 0, 0)
	engine := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := engine.RecordInitial(ctx, InitialInput{TenantID: testTenant, ProductID: 1, Quantity: 20})
	require.NoError(t, err)
	_, err = engine.RecordInbound(ctx, InboundInput{TenantID: testTenant, ProductID: 1, Quantity: 15, UnitCost: 3})
	require.NoError(t, err)
	_, err = engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 12, Type: MovementSale})
	require.NoError(t, err)
	_, err = engine.RecordReturn(ctx, ReturnInput{TenantID: testTenant, ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	_, err = engine.RecordOutbound(ctx, OutboundInput{TenantID: testTenant, ProductID: 1, Quantity: 7, Type: MovementDamage})
	require.NoError(t, err)

	ledger := repo.movementsFor(1)
	require.Len(t, ledger, 5)

	// Folding the signed quantities over the first snapshot reproduces the
	// live counter, and every entry chains off its predecessor.
	replayed := ledger[0].PreviousStock
	for i, m := range ledger {
		require.Equal(t, replayed, m.PreviousStock, "entry %d breaks the chain", i)
		replayed += m.Quantity
		require.Equal(t, replayed, m.NewStock, "entry %d snapshot mismatch", i)
	}
	require.Equal(t, repo.products[1].Stock, replayed)
	require.Equal(t, int64(18), replayed)
}

func TestMovementReferenceDefaultsWhenBlank(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 5, 0, 0, 0)
	engine := newTestEngine(t, repo)

	movement, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  1,
		Type:      MovementSale,
	})
	require.NoError(t, err)
	require.Regexp(t, `^MV-\d+$`, movement.ReferenceNumber)
}

func TestPostMovementRejectsUnknownProduct(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 99,
		Quantity:  1,
		Type:      MovementSale,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWithRetryRecoversFromSerializationFailures(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	repo.failures = 2
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  3,
		Type:      MovementSale,
	})
	require.NoError(t, err)
	require.Equal(t, 3, repo.txCalls)
	require.Equal(t, int64(7), repo.products[1].Stock)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	repo.failures = maxTxRetries
	engine := newTestEngine(t, repo)

	_, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  3,
		Type:      MovementSale,
	})
	require.ErrorIs(t, err, errSerialization)
	require.Equal(t, maxTxRetries, repo.txCalls)
	require.Equal(t, int64(10), repo.products[1].Stock)
}

func TestPostMovementEmitsAuditRecords(t *testing.T) {
	repo := newMemRepo()
	seedProduct(repo, 1, 10, 0, 5, 5)
	audit := &capturedAudit{}
	engine := NewEngine(repo, audit, nil, EngineConfig{}).WithNow(testClock())

	movement, err := engine.RecordOutbound(context.Background(), OutboundInput{
		TenantID:  testTenant,
		ProductID: 1,
		Quantity:  2,
		Type:      MovementSale,
		ActorID:   7,
	})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "stock:SALE", audit.logs[0].Action)
	require.Equal(t, movement.ID.String(), audit.logs[0].EntityID)
	require.Equal(t, int64(7), audit.logs[0].ActorID)
}

package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/asiria/asiriapos/internal/shared"
	"github.com/asiria/asiriapos/internal/stock"
	_ "github.com/asiria/asiriapos/testing"
)

var testTenant = uuid.MustParse("0f3a8e52-6c1d-4b9a-9f47-2d7e8a1b5c03")

func testClock() func() time.Time {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

type memSalesRepo struct {
	nextSaleID   int64
	nextDetailID int64
	nextRcptID   int64
	sales        map[int64]*SalesHeader
	details      map[int64]*SalesDetail
	returns      map[uuid.UUID]*Return
	receipts     []Receipt
}

func newMemSalesRepo() *memSalesRepo {
	return &memSalesRepo{
		sales:   make(map[int64]*SalesHeader),
		details: make(map[int64]*SalesDetail),
		returns: make(map[uuid.UUID]*Return),
	}
}

func (m *memSalesRepo) CreateSale(_ context.Context, header SalesHeader, details []SalesDetail) (SalesHeader, []SalesDetail, error) {
	m.nextSaleID++
	header.ID = m.nextSaleID
	header.Status = StatusPending
	header.CreatedAt = time.Now().UTC()
	var total float64
	out := make([]SalesDetail, 0, len(details))
	for _, d := range details {
		m.nextDetailID++
		d.ID = m.nextDetailID
		d.SaleID = header.ID
		d.Subtotal = float64(d.Quantity)*d.Price - d.Discount
		total += d.Subtotal
		m.details[d.ID] = &d
		out = append(out, d)
	}
	header.TotalAmount = total
	m.sales[header.ID] = &header
	return header, out, nil
}

func (m *memSalesRepo) GetSale(_ context.Context, tenantID uuid.UUID, id int64) (SalesHeader, []SalesDetail, error) {
	h, ok := m.sales[id]
	if !ok || h.TenantID != tenantID {
		return SalesHeader{}, nil, ErrNotFound
	}
	var details []SalesDetail
	for _, d := range m.details {
		if d.SaleID == id {
			details = append(details, *d)
		}
	}
	return *h, details, nil
}

func (m *memSalesRepo) ListSales(_ context.Context, tenantID uuid.UUID, status SaleStatus, limit int) ([]SalesHeader, error) {
	var out []SalesHeader
	for _, h := range m.sales {
		if h.TenantID != tenantID {
			continue
		}
		if status != "" && h.Status != status {
			continue
		}
		out = append(out, *h)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memSalesRepo) GetSaleStatus(_ context.Context, saleID int64) (SaleStatus, error) {
	h, ok := m.sales[saleID]
	if !ok {
		return "", ErrNotFound
	}
	return h.Status, nil
}

func (m *memSalesRepo) TransitionSale(_ context.Context, tenantID uuid.UUID, id int64, from, to SaleStatus, at time.Time) error {
	h, ok := m.sales[id]
	if !ok || h.TenantID != tenantID {
		return ErrNotFound
	}
	if h.Status != from {
		return ErrSaleNotPending
	}
	h.Status = to
	if to == StatusConfirmed {
		h.ConfirmedAt = at
	}
	return nil
}

func (m *memSalesRepo) GetSalesDetail(_ context.Context, tenantID uuid.UUID, detailID int64) (SalesDetail, SalesHeader, error) {
	d, ok := m.details[detailID]
	if !ok {
		return SalesDetail{}, SalesHeader{}, ErrNotFound
	}
	h := m.sales[d.SaleID]
	if h == nil || h.TenantID != tenantID {
		return SalesDetail{}, SalesHeader{}, ErrNotFound
	}
	return *d, *h, nil
}

func (m *memSalesRepo) DeleteSalesDetail(_ context.Context, tenantID uuid.UUID, detailID int64) error {
	d, ok := m.details[detailID]
	if !ok {
		return ErrNotFound
	}
	h := m.sales[d.SaleID]
	if h == nil || h.TenantID != tenantID {
		return ErrNotFound
	}
	h.TotalAmount -= d.Subtotal
	delete(m.details, detailID)
	return nil
}

func (m *memSalesRepo) CreateReturn(_ context.Context, ret Return) (Return, error) {
	ret.ID = uuid.New()
	ret.CreatedAt = time.Now().UTC()
	m.returns[ret.ID] = &ret
	return ret, nil
}

func (m *memSalesRepo) ApproveReturn(ctx context.Context, tenantID uuid.UUID, returnID uuid.UUID, approverID int64, at time.Time, stage ReturnStage) (Return, error) {
	stored, ok := m.returns[returnID]
	if !ok || stored.TenantID != tenantID {
		return Return{}, ErrNotFound
	}
	if stored.IsApproved {
		return Return{}, ErrAlreadyApproved
	}
	// Mutate a copy first: a stage failure rolls the approval back out, the
	// way the transactional repository does.
	ret := *stored
	ret.IsApproved = true
	ret.ApprovedBy = approverID
	ret.ApprovedAt = at
	if stage != nil {
		sale, ok := m.sales[ret.SaleID]
		if !ok {
			return Return{}, ErrNotFound
		}
		if err := stage(ctx, nil, ret, sale.ReferenceNumber); err != nil {
			return Return{}, err
		}
	}
	*stored = ret
	return ret, nil
}

func (m *memSalesRepo) GetReturn(_ context.Context, tenantID uuid.UUID, returnID uuid.UUID) (Return, error) {
	ret, ok := m.returns[returnID]
	if !ok || ret.TenantID != tenantID {
		return Return{}, ErrNotFound
	}
	return *ret, nil
}

func (m *memSalesRepo) CreateReceipt(_ context.Context, receipt Receipt) (Receipt, error) {
	m.nextRcptID++
	receipt.ID = m.nextRcptID
	m.receipts = append(m.receipts, receipt)
	return receipt, nil
}

func (m *memSalesRepo) ListReceipts(_ context.Context, _ uuid.UUID, saleID int64) ([]Receipt, error) {
	var out []Receipt
	for _, r := range m.receipts {
		if r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeStock captures every stock interaction so tests can assert exactly
// what was posted, held and reversed.
type fakeStock struct {
	outbound     [][]stock.OutboundInput
	returns      []stock.ReturnInput
	reversals    []stock.ReversalInput
	reservations []stock.ReserveInput
	released     []int64
	audited      []stock.Movement
	failOutbound error
	failReturn   error
	failReserve  map[int64]error
}

func (f *fakeStock) RecordOutboundBatch(_ context.Context, inputs []stock.OutboundInput) ([]stock.Movement, error) {
	if f.failOutbound != nil {
		return nil, f.failOutbound
	}
	f.outbound = append(f.outbound, inputs)
	// The posting transaction releases the confirming sale's holds only when
	// the batch goes through, so the fake releases here too.
	for _, in := range inputs {
		if in.SaleID != 0 && !containsSale(f.released, in.SaleID) {
			f.released = append(f.released, in.SaleID)
		}
	}
	movements := make([]stock.Movement, len(inputs))
	return movements, nil
}

func (f *fakeStock) PostReturn(_ context.Context, _ stock.TxRepository, input stock.ReturnInput) (stock.Movement, error) {
	if f.failReturn != nil {
		return stock.Movement{}, f.failReturn
	}
	f.returns = append(f.returns, input)
	return stock.Movement{Type: stock.MovementReturn, ProductID: input.ProductID, Quantity: input.Quantity}, nil
}

func (f *fakeStock) AuditPosted(_ context.Context, movements []stock.Movement) {
	f.audited = append(f.audited, movements...)
}

func containsSale(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (f *fakeStock) Reverse(_ context.Context, input stock.ReversalInput) (stock.Movement, error) {
	f.reversals = append(f.reversals, input)
	return stock.Movement{}, nil
}

func (f *fakeStock) Reserve(_ context.Context, input stock.ReserveInput) (stock.Reservation, error) {
	if err := f.failReserve[input.ProductID]; err != nil {
		return stock.Reservation{}, err
	}
	f.reservations = append(f.reservations, input)
	return stock.Reservation{ID: uuid.New(), SaleID: input.SaleID, Quantity: input.Quantity, IsActive: true}, nil
}

func (f *fakeStock) ReleaseForSale(_ context.Context, saleID int64) (int64, error) {
	f.released = append(f.released, saleID)
	var n int64
	for _, r := range f.reservations {
		if r.SaleID == saleID {
			n++
		}
	}
	return n, nil
}

type recordedApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordedApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newTestService(t *testing.T) (*Service, *memSalesRepo, *fakeStock, *recordedApprovals) {
	t.Helper()
	repo := newMemSalesRepo()
	st := &fakeStock{failReserve: map[int64]error{}}
	approvals := &recordedApprovals{}
	svc := NewService(repo, st, approvals, 15*time.Minute).WithNow(testClock())
	return svc, repo, st, approvals
}

func createSale(t *testing.T, svc *Service, reserve bool, lines ...SaleLineInput) (SalesHeader, []SalesDetail) {
	t.Helper()
	header, details, err := svc.CreateSale(context.Background(), CreateSaleInput{
		TenantID:        testTenant,
		CustomerID:      3,
		ReferenceNumber: "SAL-1001",
		Lines:           lines,
		Reserve:         reserve,
		ActorID:         7,
	})
	require.NoError(t, err)
	return header, details
}

func TestCreateSaleComputesTotals(t *testing.T) {
	svc, _, st, _ := newTestService(t)

	header, details, err := svc.CreateSale(context.Background(), CreateSaleInput{
		TenantID:        testTenant,
		ReferenceNumber: "SAL-1001",
		Lines: []SaleLineInput{
			{ProductID: 1, Quantity: 2, Price: 10, Discount: 1},
			{ProductID: 2, Quantity: 1, Price: 5},
		},
		ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, header.Status)
	require.InDelta(t, 24.0, header.TotalAmount, 1e-9)
	require.Len(t, details, 2)
	require.Empty(t, st.reservations)
}

func TestCreateSaleValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.CreateSale(context.Background(), CreateSaleInput{TenantID: testTenant, ReferenceNumber: "SAL-1"})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.CreateSale(context.Background(), CreateSaleInput{
		TenantID:        testTenant,
		ReferenceNumber: "SAL-1",
		Lines:           []SaleLineInput{{ProductID: 1, Quantity: 0, Price: 10}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateSaleWithReservations(t *testing.T) {
	svc, _, st, _ := newTestService(t)

	header, details := createSale(t, svc, true,
		SaleLineInput{ProductID: 1, Quantity: 4, Price: 10},
		SaleLineInput{ProductID: 2, Quantity: 2, Price: 5},
	)
	require.Len(t, st.reservations, 2)
	require.Equal(t, header.ID, st.reservations[0].SaleID)
	require.Equal(t, details[0].ID, st.reservations[0].SaleDetailID)
	require.Equal(t, 15*time.Minute, st.reservations[0].Expiry)
}

func TestCreateSaleReservationFailureReleasesHolds(t *testing.T) {
	svc, _, st, _ := newTestService(t)
	st.failReserve[2] = stock.ErrInsufficientFreeStock

	_, _, err := svc.CreateSale(context.Background(), CreateSaleInput{
		TenantID:        testTenant,
		ReferenceNumber: "SAL-1002",
		Lines: []SaleLineInput{
			{ProductID: 1, Quantity: 4, Price: 10},
			{ProductID: 2, Quantity: 2, Price: 5},
		},
		Reserve: true,
		ActorID: 7,
	})
	require.ErrorIs(t, err, stock.ErrInsufficientFreeStock)
	require.Len(t, st.released, 1)
}

func TestConfirmSalePostsOutboundBatch(t *testing.T) {
	svc, repo, st, _ := newTestService(t)

	header, _ := createSale(t, svc, true,
		SaleLineInput{ProductID: 1, Quantity: 4, Price: 10},
		SaleLineInput{ProductID: 2, Quantity: 2, Price: 5},
	)

	confirmed, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.False(t, confirmed.ConfirmedAt.IsZero())

	require.Len(t, st.outbound, 1)
	batch := st.outbound[0]
	require.Len(t, batch, 2)
	require.Equal(t, stock.MovementSale, batch[0].Type)
	require.Equal(t, "SAL-1001", batch[0].ReferenceNumber)
	require.Equal(t, header.ID, batch[0].SaleID)
	require.Contains(t, st.released, header.ID)

	status, err := repo.GetSaleStatus(context.Background(), header.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, status)
}

func TestConfirmSaleTwiceRejected(t *testing.T) {
	svc, _, st, _ := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})

	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	_, err = svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.ErrorIs(t, err, ErrSaleNotPending)
	require.Len(t, st.outbound, 1)
}

func TestConfirmSalePostingFailureLeavesSalePending(t *testing.T) {
	svc, repo, st, _ := newTestService(t)
	st.failOutbound = stock.ErrInsufficientStock

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 400, Price: 10})

	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	status, err := repo.GetSaleStatus(context.Background(), header.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)
}

func TestConfirmSalePostingFailureKeepsReservations(t *testing.T) {
	svc, repo, st, _ := newTestService(t)
	st.failOutbound = stock.ErrInsufficientStock

	header, _ := createSale(t, svc, true, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})
	require.Len(t, st.reservations, 1)

	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// The holds stay in place for the retry: nothing released them.
	require.Empty(t, st.released)

	status, err := repo.GetSaleStatus(context.Background(), header.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)

	st.failOutbound = nil
	confirmed, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.Contains(t, st.released, header.ID)
}

func TestCancelSaleReleasesReservationsWithoutPosting(t *testing.T) {
	svc, _, st, _ := newTestService(t)

	header, _ := createSale(t, svc, true, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})

	cancelled, err := svc.CancelSale(context.Background(), testTenant, header.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Contains(t, st.released, header.ID)
	require.Empty(t, st.outbound)

	_, err = svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.ErrorIs(t, err, ErrSaleNotPending)
}

func TestDeleteDetailOnPendingSaleSkipsReversal(t *testing.T) {
	svc, repo, st, _ := newTestService(t)

	header, details := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})

	require.NoError(t, svc.DeleteSalesDetail(context.Background(), testTenant, details[0].ID, 7))
	require.Empty(t, st.reversals)

	h, remaining, err := repo.GetSale(context.Background(), testTenant, header.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)
	require.InDelta(t, 0.0, h.TotalAmount, 1e-9)
}

func TestDeleteDetailOnConfirmedSaleReverses(t *testing.T) {
	svc, _, st, _ := newTestService(t)

	header, details := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})
	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSalesDetail(context.Background(), testTenant, details[0].ID, 9))
	require.Len(t, st.reversals, 1)
	rev := st.reversals[0]
	require.Equal(t, int64(1), rev.ProductID)
	// Signed original: the SALE posted -4, so the reversal input carries -4.
	require.Equal(t, int64(-4), rev.Quantity)
	require.Equal(t, "SAL-1001", rev.ReferenceNumber)
	require.Equal(t, int64(9), rev.ActorID)
}

func TestCreateReturnRequiresConfirmedSale(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})

	_, err := svc.CreateReturn(context.Background(), CreateReturnInput{
		TenantID: testTenant, SaleID: header.ID, ProductID: 1, Quantity: 1, Reason: "damaged", ActorID: 7,
	})
	require.ErrorIs(t, err, ErrSaleNotConfirmed)
}

func TestCreateReturnCapsAtSoldQuantity(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})
	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	_, err = svc.CreateReturn(context.Background(), CreateReturnInput{
		TenantID: testTenant, SaleID: header.ID, ProductID: 1, Quantity: 5, Reason: "damaged", ActorID: 7,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestApproveReturnPostsStockOnce(t *testing.T) {
	svc, _, st, approvals := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})
	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	ret, err := svc.CreateReturn(context.Background(), CreateReturnInput{
		TenantID: testTenant, SaleID: header.ID, ProductID: 1, Quantity: 2, Reason: "damaged", ActorID: 7,
	})
	require.NoError(t, err)
	require.False(t, ret.IsApproved)
	require.Empty(t, st.returns)

	approved, err := svc.ApproveReturn(context.Background(), testTenant, ret.ID, 9)
	require.NoError(t, err)
	require.True(t, approved.IsApproved)
	require.Equal(t, int64(9), approved.ApprovedBy)

	require.Len(t, st.returns, 1)
	require.Equal(t, int64(2), st.returns[0].Quantity)
	require.Equal(t, "SAL-1001", st.returns[0].ReferenceNumber)

	_, err = svc.ApproveReturn(context.Background(), testTenant, ret.ID, 9)
	require.ErrorIs(t, err, ErrAlreadyApproved)
	require.Len(t, st.returns, 1)

	require.Len(t, approvals.logs, 2)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
	require.Equal(t, shared.ApprovalApprove, approvals.logs[1].Action)
}

func TestApproveReturnPostingFailureLeavesReturnUnapproved(t *testing.T) {
	svc, repo, st, approvals := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})
	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	ret, err := svc.CreateReturn(context.Background(), CreateReturnInput{
		TenantID: testTenant, SaleID: header.ID, ProductID: 1, Quantity: 2, Reason: "damaged", ActorID: 7,
	})
	require.NoError(t, err)

	st.failReturn = errors.New("ledger unavailable")
	_, err = svc.ApproveReturn(context.Background(), testTenant, ret.ID, 9)
	require.Error(t, err)

	// The approval rolled back with the failed posting, so the return stays
	// open and the approval can simply be retried.
	stored, err := repo.GetReturn(context.Background(), testTenant, ret.ID)
	require.NoError(t, err)
	require.False(t, stored.IsApproved)
	require.Empty(t, st.returns)
	require.Len(t, approvals.logs, 1)

	st.failReturn = nil
	approved, err := svc.ApproveReturn(context.Background(), testTenant, ret.ID, 9)
	require.NoError(t, err)
	require.True(t, approved.IsApproved)
	require.Len(t, st.returns, 1)
	require.Len(t, st.audited, 1)
	require.Equal(t, stock.MovementReturn, st.audited[0].Type)
}

func TestRecordReceiptFormatsNarration(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})
	_, err := svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	receipt, err := svc.RecordReceipt(context.Background(), testTenant, Receipt{SaleID: header.ID, Amount: 1234.5})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ReceiptNumber)
	require.Contains(t, receipt.Narration, "1,234.50")
	require.Contains(t, receipt.Narration, "SAL-1001")

	receipts, err := svc.ListReceipts(context.Background(), testTenant, header.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
}

func TestRecordReceiptRequiresConfirmedSale(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})

	_, err := svc.RecordReceipt(context.Background(), testTenant, Receipt{SaleID: header.ID, Amount: 10})
	require.ErrorIs(t, err, ErrSaleNotConfirmed)

	_, err = svc.RecordReceipt(context.Background(), testTenant, Receipt{SaleID: header.ID, Amount: 0})
	require.ErrorIs(t, err, ErrValidation)
}

func TestIsSalePending(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	header, _ := createSale(t, svc, false, SaleLineInput{ProductID: 1, Quantity: 4, Price: 10})

	pending, err := svc.IsSalePending(context.Background(), header.ID)
	require.NoError(t, err)
	require.True(t, pending)

	_, err = svc.ConfirmSale(context.Background(), testTenant, header.ID, 7)
	require.NoError(t, err)

	pending, err = svc.IsSalePending(context.Background(), header.ID)
	require.NoError(t, err)
	require.False(t, pending)

	_, err = svc.IsSalePending(context.Background(), 999)
	require.True(t, errors.Is(err, ErrNotFound))
}

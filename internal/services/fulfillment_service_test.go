package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository/repotest"
	apperrors "order_fulfillment/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu        sync.Mutex
	shipped   []ShipmentNotice
	completed []models.Fulfillment
}

func (n *recordingNotifier) OrderShipped(ctx context.Context, settings Settings, notice ShipmentNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shipped = append(n.shipped, notice)
}

func (n *recordingNotifier) FulfillmentCompleted(ctx context.Context, order models.Order, f models.Fulfillment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, f)
}

func (n *recordingNotifier) Wait() {}

type fulfillmentFixture struct {
	store     *repotest.Store
	svc       FulfillmentService
	notifier  *recordingNotifier
	order     *models.Order
	gameItem  models.OrderItem
	shirtItem models.OrderItem
	boxID     uint
}

func newFulfillmentFixture(t *testing.T) *fulfillmentFixture {
	t.Helper()
	ctx := context.Background()
	store := repotest.NewStore()

	gameID := store.AddGame(models.Game{Title: "Harbor Lights", SKU: "GAME-HL", Barcode: "0850000000011"})
	shirtID := store.AddMerch(models.Merch{
		Name:    "Harbor Tee",
		SKU:     "TEE",
		Barcode: "0850000000028",
		Sizes: []models.MerchSize{
			{Size: "M", SKU: "TEE-M", Barcode: "0850000000035"},
			{Size: "L", SKU: "TEE-L", Barcode: "0850000000042"},
		},
	})

	order := &models.Order{
		OrderNumber:   "ORD-100",
		CustomerName:  "Jane Doe",
		TotalCents:    7800,
		Status:        models.OrderPaid,
		PaymentStatus: models.PaymentPaid,
		Items: []models.OrderItem{
			{Product: models.ProductRef{Kind: models.ProductGame, ID: gameID}, Quantity: 2, UnitPriceCents: 3000},
			{Product: models.ProductRef{Kind: models.ProductMerch, ID: shirtID, Size: "M"}, Quantity: 1, UnitPriceCents: 1800},
		},
	}
	require.NoError(t, store.Orders().Create(ctx, order))

	box := &models.PackagingType{Name: "Medium Box", LengthIn: 12, WidthIn: 9, HeightIn: 4, IsActive: true}
	require.NoError(t, store.PackagingTypes().Create(ctx, box))

	notifier := &recordingNotifier{}
	return &fulfillmentFixture{
		store:     store,
		svc:       NewFulfillmentService(store, NewCatalog(store.Products()), notifier, zap.NewNop()),
		notifier:  notifier,
		order:     order,
		gameItem:  order.Items[0],
		shirtItem: order.Items[1],
		boxID:     box.ID,
	}
}

func (f *fulfillmentFixture) start(t *testing.T) *models.Fulfillment {
	t.Helper()
	ff, _, err := f.svc.StartFulfillment(context.Background(), StartFulfillmentRequest{OrderID: f.order.ID, UserID: "7", UserName: "sam"})
	require.NoError(t, err)
	return ff
}

func (f *fulfillmentFixture) scan(t *testing.T, code string) *ScanResult {
	t.Helper()
	res, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: code})
	require.NoError(t, err)
	return res
}

func TestStartFulfillment_MovesOrderToProcessing(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()

	ff, created, err := f.svc.StartFulfillment(ctx, StartFulfillmentRequest{OrderID: f.order.ID, UserID: "7", UserName: "sam"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.FulfillmentInProgress, ff.Status)
	assert.Equal(t, "sam", ff.StartedByName)

	order, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.Status)

	history, err := f.store.Orders().GetHistory(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderPaid, history[0].FromStatus)
	assert.Equal(t, models.OrderProcessing, history[0].ToStatus)
	assert.Equal(t, "sam", history[0].ChangedBy)
}

func TestStartFulfillment_IsIdempotent(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()

	first := f.start(t)
	writes := f.store.Writes()

	second, created, err := f.svc.StartFulfillment(ctx, StartFulfillmentRequest{OrderID: f.order.ID, UserName: "alex"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, writes, f.store.Writes())

	history, err := f.store.Orders().GetHistory(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStartFulfillment_ConcurrentStartsCreateOne(t *testing.T) {
	f := newFulfillmentFixture(t)

	const workers = 8
	ids := make([]uint, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ff, _, err := f.svc.StartFulfillment(context.Background(), StartFulfillmentRequest{OrderID: f.order.ID})
			if assert.NoError(t, err) {
				ids[i] = ff.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	history, err := f.store.Orders().GetHistory(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStartFulfillment_RequiresPaidOpenOrder(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	svc := NewFulfillmentService(store, NewCatalog(store.Products()), &recordingNotifier{}, zap.NewNop())

	unpaid := &models.Order{OrderNumber: "ORD-UNPAID", CustomerName: "A", TotalCents: 100, PaymentStatus: "unpaid"}
	require.NoError(t, store.Orders().Create(ctx, unpaid))
	_, _, err := svc.StartFulfillment(ctx, StartFulfillmentRequest{OrderID: unpaid.ID})
	assert.True(t, apperrors.IsValidation(err))

	cancelled := &models.Order{OrderNumber: "ORD-CXL", CustomerName: "B", TotalCents: 100, PaymentStatus: models.PaymentPaid, Status: models.OrderCancelled}
	require.NoError(t, store.Orders().Create(ctx, cancelled))
	_, _, err = svc.StartFulfillment(ctx, StartFulfillmentRequest{OrderID: cancelled.ID})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = svc.StartFulfillment(ctx, StartFulfillmentRequest{OrderID: 999})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRecordScan_ChecklistProgressAndOverScan(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	first := f.scan(t, "0850000000011")
	require.True(t, first.Matched)
	require.NotNil(t, first.Item)
	assert.Equal(t, 1, first.Item.ScannedQuantity)
	assert.False(t, first.Item.IsComplete)

	second := f.scan(t, "0850000000011")
	require.NotNil(t, second.Item)
	assert.Equal(t, 2, second.Item.ScannedQuantity)
	assert.True(t, second.Item.IsComplete)

	writes := f.store.Writes()
	_, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "0850000000011"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, writes, f.store.Writes(), "rejected scan must not be persisted")

	progress, err := f.svc.GetProgress(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Items[0].ScannedQuantity)
	assert.Equal(t, 3, progress.OrderedTotal)
	assert.Equal(t, 2, progress.ScannedTotal)
	assert.Equal(t, 66.7, progress.ProgressPercent)
	assert.False(t, progress.IsComplete)
}

func TestRecordScan_MultiQuantityRespectsRemaining(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	_, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "GAME-HL", Quantity: 3})
	assert.True(t, apperrors.IsConflict(err))

	res, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "GAME-HL", Quantity: 2})
	require.NoError(t, err)
	assert.True(t, res.Item.IsComplete)

	_, err = f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "GAME-HL", Quantity: -1})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRecordScan_MatchesVariantCodesCaseInsensitively(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	res := f.scan(t, "  tee-m ")
	require.True(t, res.Matched)
	assert.Equal(t, f.shirtItem.ID, res.Item.OrderItemID)
	assert.Equal(t, "TEE-M", res.Item.SKU)
	assert.Equal(t, "0850000000035", res.Item.Barcode)

	// The L variant is not on the order, so its code must not match the M line.
	other := f.scan(t, "TEE-L")
	assert.False(t, other.Matched)
}

func TestRecordScan_UnmatchedCodeIsRecorded(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	res, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "NOPE-123"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.Item)
	assert.NotZero(t, res.Scan.ID)
	assert.Nil(t, res.Scan.OrderItemID)

	progress, err := f.svc.GetProgress(context.Background(), f.order.ID)
	require.NoError(t, err)
	require.Len(t, progress.UnmatchedScans, 1)
	assert.Equal(t, "NOPE-123", progress.UnmatchedScans[0].ScannedCode)
	assert.Equal(t, 0, progress.ScannedTotal)
}

func TestRecordScan_RequiresStartedFulfillment(t *testing.T) {
	f := newFulfillmentFixture(t)

	_, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "GAME-HL"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "   "})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRecordScan_ConcurrentScansNeverExceedOrdered(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	const workers = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "GAME-HL"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if apperrors.IsConflict(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, accepted)
	assert.Equal(t, workers-2, rejected)
}

func TestRecordScan_StoreFailureRollsBack(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	f.store.FailNext("scans.create", errors.New("disk full"))
	_, err := f.svc.RecordScan(context.Background(), f.order.ID, ScanRequest{Code: "GAME-HL"})
	require.Error(t, err)

	progress, err := f.svc.GetProgress(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.ScannedTotal)
}

func TestGetProgress_NotStarted(t *testing.T) {
	f := newFulfillmentFixture(t)

	progress, err := f.svc.GetProgress(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentNotStarted, progress.Status)
	assert.Nil(t, progress.Fulfillment)
	require.Len(t, progress.Items, 2)
	assert.Equal(t, "Harbor Lights", progress.Items[0].Name)
	assert.Equal(t, 2, progress.Items[0].OrderedQuantity)
	assert.Zero(t, progress.ProgressPercent)

	_, err = f.svc.GetProgress(context.Background(), 12345)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPackages_AssignDetachAndInvariants(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()
	f.start(t)

	g1 := f.scan(t, "GAME-HL").Scan
	g2 := f.scan(t, "GAME-HL").Scan
	unmatched := f.scan(t, "???").Scan

	box1, err := f.svc.CreatePackage(ctx, f.order.ID, CreatePackageRequest{PackagingTypeID: f.boxID, ScanIDs: []uint{g1.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, box1.BoxNumber)
	require.Len(t, box1.Scans, 1)
	assert.Equal(t, g1.ID, box1.Scans[0].ID)

	box2, err := f.svc.CreatePackage(ctx, f.order.ID, CreatePackageRequest{PackagingTypeID: f.boxID})
	require.NoError(t, err)
	assert.Equal(t, 2, box2.BoxNumber)
	assert.Empty(t, box2.Scans)

	_, err = f.svc.AssignScans(ctx, f.order.ID, box2.ID, []uint{g1.ID})
	assert.True(t, apperrors.IsValidation(err), "already packed scan must be detached first")

	_, err = f.svc.AssignScans(ctx, f.order.ID, box2.ID, []uint{unmatched.ID})
	assert.True(t, apperrors.IsValidation(err), "unmatched scans cannot be packed")

	_, err = f.svc.AssignScans(ctx, f.order.ID, box2.ID, []uint{987654})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.AssignScans(ctx, f.order.ID, 987654, []uint{g2.ID})
	assert.True(t, apperrors.IsNotFound(err))

	unassigned, err := f.svc.ListUnassignedScans(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, g2.ID, unassigned[0].ID)
	assert.Equal(t, "Harbor Lights", unassigned[0].ItemName)

	require.NoError(t, f.svc.DetachScan(ctx, f.order.ID, g1.ID))
	assert.True(t, apperrors.IsValidation(f.svc.DetachScan(ctx, f.order.ID, g1.ID)))

	moved, err := f.svc.AssignScans(ctx, f.order.ID, box2.ID, []uint{g1.ID, g2.ID, g1.ID})
	require.NoError(t, err)
	assert.Len(t, moved.Scans, 2)

	unassigned, err = f.svc.ListUnassignedScans(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func TestCreatePackage_ValidatesPackagingType(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.start(t)

	_, err := f.svc.CreatePackage(context.Background(), f.order.ID, CreatePackageRequest{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CreatePackage(context.Background(), f.order.ID, CreatePackageRequest{PackagingTypeID: 4040})
	assert.True(t, apperrors.IsValidation(err))
}

func completed() *models.FulfillmentStatus {
	s := models.FulfillmentCompleted
	return &s
}

func inProgress() *models.FulfillmentStatus {
	s := models.FulfillmentInProgress
	return &s
}

func TestUpdateFulfillment_CompleteMovesOrderToPacked(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()
	f.start(t)
	f.scan(t, "GAME-HL")

	_, err := f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{Status: completed()})
	var verr *apperrors.ErrValidation
	require.ErrorAs(t, err, &verr, "completion needs a packaging type")
	assert.Contains(t, verr.Fields, "packagingTypeId")

	notes := "fragile"
	ff, err := f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{
		PackagingTypeID: &f.boxID,
		Status:          completed(),
		Notes:           &notes,
		UserName:        "sam",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentCompleted, ff.Status)
	require.NotNil(t, ff.CompletedAt)
	assert.Equal(t, "sam", ff.CompletedByName)
	assert.Equal(t, "fragile", ff.Notes)

	order, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPacked, order.Status)
	require.NotNil(t, order.PackagingTypeID)
	assert.Equal(t, f.boxID, *order.PackagingTypeID)

	history, err := f.store.Orders().GetHistory(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.OrderPacked, history[1].ToStatus)

	require.Len(t, f.notifier.completed, 1)
	assert.Equal(t, ff.ID, f.notifier.completed[0].ID)
}

func TestUpdateFulfillment_CompletedIsTerminal(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()
	f.start(t)

	_, err := f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{PackagingTypeID: &f.boxID, Status: completed()})
	require.NoError(t, err)

	_, err = f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{Status: inProgress()})
	assert.True(t, apperrors.IsInvalidStateTransition(err))

	_, err = f.svc.RecordScan(ctx, f.order.ID, ScanRequest{Code: "GAME-HL"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CreatePackage(ctx, f.order.ID, CreatePackageRequest{PackagingTypeID: f.boxID})
	assert.True(t, apperrors.IsValidation(err))

	notes := "left at dock 3"
	ff, err := f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, ff.Notes)
	assert.Len(t, f.notifier.completed, 1)
}

func TestUpdateFulfillment_RejectsUnknownStatusAndPackaging(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()
	f.start(t)

	bogus := models.FulfillmentStatus("shipped")
	_, err := f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{Status: &bogus})
	assert.True(t, apperrors.IsValidation(err))

	missing := uint(4040)
	_, err = f.svc.UpdateFulfillment(ctx, f.order.ID, UpdateFulfillmentRequest{PackagingTypeID: &missing})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.UpdateFulfillment(ctx, 999, UpdateFulfillmentRequest{Status: completed()})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListPackagingTypes(t *testing.T) {
	f := newFulfillmentFixture(t)
	types, err := f.svc.ListPackagingTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "Medium Box", types[0].Name)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
	apperrors "order_fulfillment/pkg/errors"

	"go.uber.org/zap"
)

type StartFulfillmentRequest struct {
	OrderID  uint   `json:"orderId" binding:"required"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UpdateFulfillmentRequest struct {
	PackagingTypeID *uint                     `json:"packagingTypeId"`
	Status          *models.FulfillmentStatus `json:"status"`
	Notes           *string                   `json:"notes"`
	UserName        string                    `json:"userName"`
}

type ScanRequest struct {
	Code      string `json:"code"`
	Quantity  int    `json:"quantity"`
	ScannedBy string `json:"scannedBy"`
}

type CreatePackageRequest struct {
	PackagingTypeID uint   `json:"packagingTypeId"`
	ScanIDs         []uint `json:"scanIds"`
}

type ChecklistItem struct {
	OrderItemID     uint               `json:"orderItemId"`
	Kind            models.ProductKind `json:"kind"`
	Name            string             `json:"name"`
	SKU             string             `json:"sku"`
	Barcode         string             `json:"barcode"`
	ImageURL        string             `json:"imageUrl"`
	Size            string             `json:"size,omitempty"`
	OrderedQuantity int                `json:"orderedQuantity"`
	ScannedQuantity int                `json:"scannedQuantity"`
	IsComplete      bool               `json:"isComplete"`
}

type ScanView struct {
	models.FulfillmentScan
	ItemName string `json:"itemName,omitempty"`
}

type PackageView struct {
	models.Package
	Scans []ScanView `json:"scans"`
}

type FulfillmentProgress struct {
	OrderID         uint                     `json:"orderId"`
	OrderNumber     string                   `json:"orderNumber"`
	OrderStatus     models.OrderStatus       `json:"orderStatus"`
	Status          models.FulfillmentStatus `json:"status"`
	Fulfillment     *models.Fulfillment      `json:"fulfillment,omitempty"`
	Items           []ChecklistItem          `json:"items"`
	OrderedTotal    int                      `json:"orderedTotal"`
	ScannedTotal    int                      `json:"scannedTotal"`
	ProgressPercent float64                  `json:"progressPercent"`
	IsComplete      bool                     `json:"isComplete"`
	Packages        []PackageView            `json:"packages"`
	UnassignedScans []ScanView               `json:"unassignedScans"`
	UnmatchedScans  []ScanView               `json:"unmatchedScans"`
}

type ScanResult struct {
	Scan     models.FulfillmentScan `json:"scan"`
	Matched  bool                   `json:"matched"`
	Message  string                 `json:"message"`
	Item     *ChecklistItem         `json:"item,omitempty"`
	Progress *FulfillmentProgress   `json:"progress,omitempty"`
}

type FulfillmentService interface {
	GetProgress(ctx context.Context, orderID uint) (*FulfillmentProgress, error)
	// StartFulfillment is idempotent; created is false when a fulfillment already existed.
	StartFulfillment(ctx context.Context, req StartFulfillmentRequest) (fulfillment *models.Fulfillment, created bool, err error)
	UpdateFulfillment(ctx context.Context, orderID uint, req UpdateFulfillmentRequest) (*models.Fulfillment, error)
	RecordScan(ctx context.Context, orderID uint, req ScanRequest) (*ScanResult, error)
	ListUnassignedScans(ctx context.Context, orderID uint) ([]ScanView, error)
	CreatePackage(ctx context.Context, orderID uint, req CreatePackageRequest) (*PackageView, error)
	AssignScans(ctx context.Context, orderID, packageID uint, scanIDs []uint) (*PackageView, error)
	DetachScan(ctx context.Context, orderID, scanID uint) error
	ListPackagingTypes(ctx context.Context) ([]models.PackagingType, error)
}

type fulfillmentService struct {
	store    repository.Store
	catalog  Catalog
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewFulfillmentService(store repository.Store, catalog Catalog, notifier Notifier, log *zap.Logger) FulfillmentService {
	return &fulfillmentService{store: store, catalog: catalog, notifier: notifier, log: log, now: time.Now}
}

func (s *fulfillmentService) GetProgress(ctx context.Context, orderID uint) (*FulfillmentProgress, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	infos, err := s.describeItems(ctx, order.Items)
	if err != nil {
		return nil, err
	}

	f, err := s.store.Fulfillments().GetByOrderID(ctx, orderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return buildProgress(order, nil, nil, nil, infos), nil
		}
		return nil, err
	}
	scans, err := s.store.Fulfillments().ListScans(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	packages, err := s.store.Fulfillments().ListPackages(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	return buildProgress(order, f, scans, packages, infos), nil
}

func (s *fulfillmentService) StartFulfillment(ctx context.Context, req StartFulfillmentRequest) (*models.Fulfillment, bool, error) {
	order, err := s.store.Orders().GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.store.Fulfillments().GetByOrderID(ctx, order.ID)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	if order.IsClosed() {
		return nil, false, apperrors.Validation("order %s is %s and cannot be fulfilled", order.OrderNumber, order.Status)
	}
	if !order.IsPaid() {
		return nil, false, apperrors.Validation("order %s is not paid", order.OrderNumber)
	}

	var created *models.Fulfillment
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		f := &models.Fulfillment{
			OrderID:       order.ID,
			Status:        models.FulfillmentInProgress,
			StartedAt:     s.now(),
			StartedByID:   req.UserID,
			StartedByName: req.UserName,
		}
		if err := tx.Fulfillments().Create(ctx, f); err != nil {
			return err
		}

		current, err := tx.Orders().GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status == models.OrderPending || current.Status == models.OrderPaid {
			from := current.Status
			current.Status = models.OrderProcessing
			if err := tx.Orders().Update(ctx, current); err != nil {
				return err
			}
			if err := tx.Orders().AppendHistory(ctx, &models.OrderStatusHistory{
				OrderID:    current.ID,
				FromStatus: from,
				ToStatus:   models.OrderProcessing,
				Notes:      "Fulfillment started",
				ChangedBy:  actor(req.UserName),
			}); err != nil {
				return err
			}
		}
		created = f
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent start.
		existing, err := s.store.Fulfillments().GetByOrderID(ctx, order.ID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}

	s.log.Info("Fulfillment started", zap.String("order_number", order.OrderNumber), zap.Uint("fulfillment_id", created.ID))
	return created, true, nil
}

func (s *fulfillmentService) UpdateFulfillment(ctx context.Context, orderID uint, req UpdateFulfillmentRequest) (*models.Fulfillment, error) {
	if req.Status != nil && *req.Status != models.FulfillmentInProgress && *req.Status != models.FulfillmentCompleted {
		return nil, &apperrors.ErrValidation{
			Message: fmt.Sprintf("invalid fulfillment status %q", *req.Status),
			Fields:  map[string]string{"status": "must be in_progress or completed"},
		}
	}
	if req.PackagingTypeID != nil {
		if err := s.checkPackagingType(ctx, *req.PackagingTypeID); err != nil {
			return nil, err
		}
	}

	var (
		updated    *models.Fulfillment
		order      *models.Order
		completing bool
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		f, err := tx.Fulfillments().LockByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		if req.Status != nil && *req.Status != f.Status {
			if f.Status == models.FulfillmentCompleted {
				return &apperrors.ErrInvalidStateTransition{Entity: "fulfillment", From: string(f.Status), To: string(*req.Status)}
			}
			completing = true
		}
		if f.Status == models.FulfillmentCompleted && req.PackagingTypeID != nil {
			return apperrors.Validation("packaging cannot change after fulfillment is completed")
		}

		if req.Notes != nil {
			f.Notes = *req.Notes
		}
		if req.PackagingTypeID != nil {
			f.PackagingTypeID = req.PackagingTypeID
		}
		if completing {
			if f.PackagingTypeID == nil {
				return &apperrors.ErrValidation{
					Message: "a packaging type is required to complete fulfillment",
					Fields:  map[string]string{"packagingTypeId": "required"},
				}
			}
			now := s.now()
			f.Status = models.FulfillmentCompleted
			f.CompletedAt = &now
			f.CompletedByName = req.UserName
		}
		if err := tx.Fulfillments().Update(ctx, f); err != nil {
			return err
		}
		updated = f

		if !completing {
			return nil
		}
		o, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		o.PackagingTypeID = f.PackagingTypeID
		from := o.Status
		advance := from == models.OrderPending || from == models.OrderPaid || from == models.OrderProcessing
		if advance {
			o.Status = models.OrderPacked
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		if advance {
			if err := tx.Orders().AppendHistory(ctx, &models.OrderStatusHistory{
				OrderID:    o.ID,
				FromStatus: from,
				ToStatus:   models.OrderPacked,
				Notes:      "Fulfillment completed",
				ChangedBy:  actor(req.UserName),
			}); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completing {
		s.log.Info("Fulfillment completed", zap.String("order_number", order.OrderNumber), zap.Uint("fulfillment_id", updated.ID))
		s.notifier.FulfillmentCompleted(ctx, *order, *updated)
	}
	return updated, nil
}

func (s *fulfillmentService) RecordScan(ctx context.Context, orderID uint, req ScanRequest) (*ScanResult, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, &apperrors.ErrValidation{Message: "scan code is required", Fields: map[string]string{"code": "required"}}
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, &apperrors.ErrValidation{Message: "quantity must be positive", Fields: map[string]string{"quantity": "must be positive"}}
	}

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	infos, err := s.describeItems(ctx, order.Items)
	if err != nil {
		return nil, err
	}

	var scan models.FulfillmentScan
	var item *models.OrderItem
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		f, err := s.lockInProgress(ctx, tx, orderID)
		if err != nil {
			return err
		}
		scans, err := tx.Fulfillments().ListScans(ctx, f.ID)
		if err != nil {
			return err
		}
		scanned := scannedByItem(scans)

		scan = models.FulfillmentScan{
			FulfillmentID: f.ID,
			ScannedCode:   code,
			Quantity:      qty,
			ScannedBy:     req.ScannedBy,
			ScannedAt:     s.now(),
		}
		item = matchItem(order.Items, infos, code, qty, scanned)
		if item != nil {
			if remaining := item.Quantity - scanned[item.ID]; qty > remaining {
				return &apperrors.ErrConflict{Message: fmt.Sprintf(
					"over-scan: %s has %d of %d scanned, cannot add %d",
					itemName(infos, *item), scanned[item.ID], item.Quantity, qty)}
			}
			scan.OrderItemID = &item.ID
			scan.Matched = true
		}
		return tx.Fulfillments().CreateScan(ctx, &scan)
	})
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Scan: scan, Matched: scan.Matched}
	if progress, err := s.GetProgress(ctx, orderID); err == nil {
		result.Progress = progress
		if item != nil {
			for i := range progress.Items {
				if progress.Items[i].OrderItemID == item.ID {
					result.Item = &progress.Items[i]
				}
			}
		}
	} else {
		s.log.Warn("Failed to reload fulfillment progress", zap.Uint("order_id", orderID), zap.Error(err))
	}

	if scan.Matched {
		result.Message = fmt.Sprintf("Scanned %d x %s", qty, itemName(infos, *item))
	} else {
		result.Message = fmt.Sprintf("Code %s does not match any item on this order", code)
		s.log.Info("Unmatched scan recorded", zap.Uint("order_id", orderID), zap.String("code", code))
	}
	return result, nil
}

func (s *fulfillmentService) ListUnassignedScans(ctx context.Context, orderID uint) ([]ScanView, error) {
	progress, err := s.GetProgress(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return progress.UnassignedScans, nil
}

func (s *fulfillmentService) CreatePackage(ctx context.Context, orderID uint, req CreatePackageRequest) (*PackageView, error) {
	if req.PackagingTypeID == 0 {
		return nil, &apperrors.ErrValidation{Message: "packaging type is required", Fields: map[string]string{"packagingTypeId": "required"}}
	}
	if err := s.checkPackagingType(ctx, req.PackagingTypeID); err != nil {
		return nil, err
	}

	var pkg models.Package
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		f, err := s.lockInProgress(ctx, tx, orderID)
		if err != nil {
			return err
		}
		existing, err := tx.Fulfillments().ListPackages(ctx, f.ID)
		if err != nil {
			return err
		}
		box := 1
		for _, p := range existing {
			if p.BoxNumber >= box {
				box = p.BoxNumber + 1
			}
		}

		pkg = models.Package{FulfillmentID: f.ID, BoxNumber: box, PackagingTypeID: req.PackagingTypeID}
		if err := tx.Fulfillments().CreatePackage(ctx, &pkg); err != nil {
			return err
		}
		return assignScans(ctx, tx, f.ID, pkg.ID, req.ScanIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.packageView(ctx, orderID, pkg.ID)
}

func (s *fulfillmentService) AssignScans(ctx context.Context, orderID, packageID uint, scanIDs []uint) (*PackageView, error) {
	if len(scanIDs) == 0 {
		return nil, &apperrors.ErrValidation{Message: "no scans to assign", Fields: map[string]string{"scanIds": "required"}}
	}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		f, err := s.lockInProgress(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Fulfillments().GetPackage(ctx, f.ID, packageID); err != nil {
			return err
		}
		return assignScans(ctx, tx, f.ID, packageID, scanIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.packageView(ctx, orderID, packageID)
}

func (s *fulfillmentService) DetachScan(ctx context.Context, orderID, scanID uint) error {
	return s.store.Transaction(ctx, func(tx repository.Store) error {
		f, err := s.lockInProgress(ctx, tx, orderID)
		if err != nil {
			return err
		}
		scans, err := tx.Fulfillments().ListScans(ctx, f.ID)
		if err != nil {
			return err
		}
		for _, sc := range scans {
			if sc.ID != scanID {
				continue
			}
			if sc.PackageID == nil {
				return apperrors.Validation("scan %d is not in a package", scanID)
			}
			return tx.Fulfillments().SetScanPackage(ctx, []uint{scanID}, nil)
		}
		return apperrors.NotFound("scan", scanID)
	})
}

func (s *fulfillmentService) ListPackagingTypes(ctx context.Context) ([]models.PackagingType, error) {
	return s.store.PackagingTypes().ListActive(ctx)
}

// lockInProgress locks the order's fulfillment row and requires it to accept changes.
func (s *fulfillmentService) lockInProgress(ctx context.Context, tx repository.Store, orderID uint) (*models.Fulfillment, error) {
	f, err := tx.Fulfillments().LockByOrderID(ctx, orderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Validation("fulfillment has not been started for order %d", orderID)
		}
		return nil, err
	}
	if f.Status != models.FulfillmentInProgress {
		return nil, apperrors.Validation("fulfillment is %s and no longer accepts changes", f.Status)
	}
	return f, nil
}

func (s *fulfillmentService) checkPackagingType(ctx context.Context, id uint) error {
	pt, err := s.store.PackagingTypes().GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return &apperrors.ErrValidation{Message: "unknown packaging type", Fields: map[string]string{"packagingTypeId": "unknown"}}
		}
		return err
	}
	if !pt.IsActive {
		return &apperrors.ErrValidation{Message: "packaging type is inactive", Fields: map[string]string{"packagingTypeId": "inactive"}}
	}
	return nil
}

func (s *fulfillmentService) packageView(ctx context.Context, orderID, packageID uint) (*PackageView, error) {
	progress, err := s.GetProgress(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range progress.Packages {
		if progress.Packages[i].ID == packageID {
			return &progress.Packages[i], nil
		}
	}
	return nil, apperrors.NotFound("package", packageID)
}

func (s *fulfillmentService) describeItems(ctx context.Context, items []models.OrderItem) (map[uint]ProductInfo, error) {
	infos := make(map[uint]ProductInfo, len(items))
	for _, it := range items {
		info, err := s.catalog.Describe(ctx, it.Product)
		if err != nil {
			return nil, err
		}
		if !info.Found {
			s.log.Warn("Order item references a missing product",
				zap.Uint("order_item_id", it.ID), zap.String("kind", string(it.Product.Kind)), zap.Uint("product_id", it.Product.ID))
		}
		infos[it.ID] = info
	}
	return infos, nil
}

// assignScans moves matched, unassigned scans of one fulfillment into a package.
func assignScans(ctx context.Context, tx repository.Store, fulfillmentID, packageID uint, scanIDs []uint) error {
	if len(scanIDs) == 0 {
		return nil
	}
	scans, err := tx.Fulfillments().ListScans(ctx, fulfillmentID)
	if err != nil {
		return err
	}
	byID := make(map[uint]models.FulfillmentScan, len(scans))
	for _, sc := range scans {
		byID[sc.ID] = sc
	}

	seen := make(map[uint]bool, len(scanIDs))
	ids := make([]uint, 0, len(scanIDs))
	for _, id := range scanIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		sc, ok := byID[id]
		switch {
		case !ok:
			return apperrors.Validation("scan %d does not belong to this fulfillment", id)
		case !sc.Matched:
			return apperrors.Validation("scan %d is unmatched and cannot be packed", id)
		case sc.PackageID != nil:
			return apperrors.Validation("scan %d is already in a package; detach it first", id)
		}
		ids = append(ids, id)
	}
	return tx.Fulfillments().SetScanPackage(ctx, ids, &packageID)
}

func scannedByItem(scans []models.FulfillmentScan) map[uint]int {
	out := make(map[uint]int)
	for _, sc := range scans {
		if sc.Matched && sc.OrderItemID != nil {
			out[*sc.OrderItemID] += sc.Quantity
		}
	}
	return out
}

// matchItem picks the order line a code belongs to. Among lines sharing the code it
// prefers one with room for qty, then any with room left, then the first match.
func matchItem(items []models.OrderItem, infos map[uint]ProductInfo, code string, qty int, scanned map[uint]int) *models.OrderItem {
	var candidates []*models.OrderItem
	for i := range items {
		if infos[items[i].ID].Matches(code) {
			candidates = append(candidates, &items[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	for _, c := range candidates {
		if c.Quantity-scanned[c.ID] >= qty {
			return c
		}
	}
	for _, c := range candidates {
		if c.Quantity-scanned[c.ID] > 0 {
			return c
		}
	}
	return candidates[0]
}

func buildProgress(order *models.Order, f *models.Fulfillment, scans []models.FulfillmentScan, packages []models.Package, infos map[uint]ProductInfo) *FulfillmentProgress {
	p := &FulfillmentProgress{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		OrderStatus:     order.Status,
		Status:          models.FulfillmentNotStarted,
		Fulfillment:     f,
		Items:           make([]ChecklistItem, 0, len(order.Items)),
		Packages:        make([]PackageView, 0, len(packages)),
		UnassignedScans: []ScanView{},
		UnmatchedScans:  []ScanView{},
	}
	if f != nil {
		p.Status = f.Status
	}

	scanned := scannedByItem(scans)
	p.IsComplete = len(order.Items) > 0
	for _, it := range order.Items {
		info := infos[it.ID]
		sku, barcode := info.SKU, info.Barcode
		if info.VariantSKU != "" {
			sku = info.VariantSKU
		}
		if info.VariantBarcode != "" {
			barcode = info.VariantBarcode
		}
		ci := ChecklistItem{
			OrderItemID:     it.ID,
			Kind:            it.Product.Kind,
			Name:            itemName(infos, it),
			SKU:             sku,
			Barcode:         barcode,
			ImageURL:        info.ImageURL,
			Size:            it.Product.Size,
			OrderedQuantity: it.Quantity,
			ScannedQuantity: scanned[it.ID],
		}
		ci.IsComplete = ci.ScannedQuantity >= ci.OrderedQuantity
		p.IsComplete = p.IsComplete && ci.IsComplete
		p.OrderedTotal += ci.OrderedQuantity
		p.ScannedTotal += ci.ScannedQuantity
		p.Items = append(p.Items, ci)
	}
	if p.OrderedTotal > 0 {
		p.ProgressPercent = math.Round(float64(p.ScannedTotal)/float64(p.OrderedTotal)*1000) / 10
	}

	itemsByID := make(map[uint]models.OrderItem, len(order.Items))
	for _, it := range order.Items {
		itemsByID[it.ID] = it
	}
	byPackage := make(map[uint][]ScanView)
	for _, sc := range scans {
		view := ScanView{FulfillmentScan: sc}
		if sc.OrderItemID != nil {
			if it, ok := itemsByID[*sc.OrderItemID]; ok {
				view.ItemName = itemName(infos, it)
			}
		}
		switch {
		case !sc.Matched:
			p.UnmatchedScans = append(p.UnmatchedScans, view)
		case sc.PackageID == nil:
			p.UnassignedScans = append(p.UnassignedScans, view)
		default:
			byPackage[*sc.PackageID] = append(byPackage[*sc.PackageID], view)
		}
	}
	for _, pkg := range packages {
		views := byPackage[pkg.ID]
		if views == nil {
			views = []ScanView{}
		}
		p.Packages = append(p.Packages, PackageView{Package: pkg, Scans: views})
	}
	return p
}

func itemName(infos map[uint]ProductInfo, it models.OrderItem) string {
	if name := infos[it.ID].Name; name != "" {
		return name
	}
	return fmt.Sprintf("%s #%d", it.Product.Kind, it.Product.ID)
}

func actor(name string) string {
	if name == "" {
		return "system"
	}
	return name
}

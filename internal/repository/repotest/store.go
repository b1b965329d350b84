// Package repotest provides an in-memory repository.Store for tests.
//
// It honors the unique constraints the schema declares (order number, one fulfillment
// per order, box number per fulfillment, tracking number per order) and rolls back every
// write made inside a failed Transaction. Transactions are serialized.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
	apperrors "order_fulfillment/pkg/errors"
)

type data struct {
	nextID         uint
	writes         int
	orders         map[uint]models.Order
	items          map[uint]models.OrderItem
	history        []models.OrderStatusHistory
	fulfillments   map[uint]models.Fulfillment
	scans          map[uint]models.FulfillmentScan
	packages       map[uint]models.Package
	labels         map[uint]models.ShippingLabel
	games          map[uint]models.Game
	merch          map[uint]models.Merch
	packagingTypes map[uint]models.PackagingType
	settings       map[string]models.AppSetting
	users          map[uint]models.User
	failures       map[string]error
}

func newData() *data {
	return &data{
		orders:         map[uint]models.Order{},
		items:          map[uint]models.OrderItem{},
		fulfillments:   map[uint]models.Fulfillment{},
		scans:          map[uint]models.FulfillmentScan{},
		packages:       map[uint]models.Package{},
		labels:         map[uint]models.ShippingLabel{},
		games:          map[uint]models.Game{},
		merch:          map[uint]models.Merch{},
		packagingTypes: map[uint]models.PackagingType{},
		settings:       map[string]models.AppSetting{},
		users:          map[uint]models.User{},
		failures:       map[string]error{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	return &data{
		nextID:         d.nextID,
		writes:         d.writes,
		orders:         cloneMap(d.orders),
		items:          cloneMap(d.items),
		history:        append([]models.OrderStatusHistory(nil), d.history...),
		fulfillments:   cloneMap(d.fulfillments),
		scans:          cloneMap(d.scans),
		packages:       cloneMap(d.packages),
		labels:         cloneMap(d.labels),
		games:          cloneMap(d.games),
		merch:          cloneMap(d.merch),
		packagingTypes: cloneMap(d.packagingTypes),
		settings:       cloneMap(d.settings),
		users:          cloneMap(d.users),
		failures:       d.failures,
	}
}

func (d *data) id() uint {
	d.nextID++
	return d.nextID
}

// fail consumes an injected failure for op, if any.
func (d *data) fail(op string) error {
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	d    *data
	inTx bool
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, d: newData()}
}

// FailNext makes the next call of op return err. Ops: "orders.update", "labels.create", "scans.create".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.failures[op] = err
}

// Writes counts committed mutating calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.writes
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(&Store{mu: s.mu, txMu: s.txMu, d: s.d, inTx: true}); err != nil {
		s.mu.Lock()
		*s.d = *snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Orders() repository.OrderRepository                 { return orderRepo{s} }
func (s *Store) Fulfillments() repository.FulfillmentRepository     { return fulfillmentRepo{s} }
func (s *Store) Labels() repository.ShippingLabelRepository         { return labelRepo{s} }
func (s *Store) Products() repository.ProductRepository             { return productRepo{s} }
func (s *Store) PackagingTypes() repository.PackagingTypeRepository { return packagingRepo{s} }
func (s *Store) Settings() repository.SettingsRepository            { return settingsRepo{s} }
func (s *Store) Users() repository.UserRepository                   { return userRepo{s} }

// Seeding helpers for the read-only catalog.

func (s *Store) AddGame(game models.Game) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.ID == 0 {
		game.ID = s.d.id()
	}
	s.d.games[game.ID] = game
	return game.ID
}

func (s *Store) AddMerch(merch models.Merch) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if merch.ID == 0 {
		merch.ID = s.d.id()
	}
	for i := range merch.Sizes {
		merch.Sizes[i].MerchID = merch.ID
		if merch.Sizes[i].ID == 0 {
			merch.Sizes[i].ID = s.d.id()
		}
	}
	s.d.merch[merch.ID] = merch
	return merch.ID
}

// ---------------------------------------------------------------------------
// orders

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.d.orders {
		if o.OrderNumber == order.OrderNumber {
			return repository.ErrDuplicate
		}
	}
	now := time.Now()
	order.ID = r.s.d.id()
	order.CreatedAt, order.UpdatedAt = now, now
	if order.Status == "" {
		order.Status = models.OrderPending
	}
	for i := range order.Items {
		order.Items[i].ID = r.s.d.id()
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
		r.s.d.items[order.Items[i].ID] = order.Items[i]
	}
	row := *order
	row.Items = nil
	r.s.d.orders[order.ID] = row
	r.s.d.writes++
	return nil
}

func (r orderRepo) load(o models.Order) *models.Order {
	var items []models.OrderItem
	for _, it := range r.s.d.items {
		if it.OrderID == o.ID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	o.Items = items
	return &o
}

func (r orderRepo) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	return r.load(o), nil
}

func (r orderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.d.orders {
		if o.OrderNumber == orderNumber {
			return r.load(o), nil
		}
	}
	return nil, apperrors.NotFound("order", orderNumber)
}

func (r orderRepo) Update(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.d.fail("orders.update"); err != nil {
		return err
	}
	if _, ok := r.s.d.orders[order.ID]; !ok {
		return apperrors.NotFound("order", order.ID)
	}
	order.UpdatedAt = time.Now()
	row := *order
	row.Items = nil
	r.s.d.orders[order.ID] = row
	r.s.d.writes++
	return nil
}

func (r orderRepo) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = r.s.d.id()
	entry.CreatedAt = time.Now()
	r.s.d.history = append(r.s.d.history, *entry)
	r.s.d.writes++
	return nil
}

func (r orderRepo) GetHistory(ctx context.Context, orderID uint) ([]models.OrderStatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.OrderStatusHistory
	for _, h := range r.s.d.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// fulfillments

type fulfillmentRepo struct{ s *Store }

func (r fulfillmentRepo) Create(ctx context.Context, f *models.Fulfillment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.d.fulfillments {
		if existing.OrderID == f.OrderID {
			return repository.ErrDuplicate
		}
	}
	now := time.Now()
	f.ID = r.s.d.id()
	f.CreatedAt, f.UpdatedAt = now, now
	row := *f
	row.Scans, row.Packages = nil, nil
	r.s.d.fulfillments[f.ID] = row
	r.s.d.writes++
	return nil
}

func (r fulfillmentRepo) GetByOrderID(ctx context.Context, orderID uint) (*models.Fulfillment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.d.fulfillments {
		if f.OrderID == orderID {
			out := f
			return &out, nil
		}
	}
	return nil, apperrors.NotFound("fulfillment", orderID)
}

// LockByOrderID relies on Transaction serialization for isolation.
func (r fulfillmentRepo) LockByOrderID(ctx context.Context, orderID uint) (*models.Fulfillment, error) {
	return r.GetByOrderID(ctx, orderID)
}

func (r fulfillmentRepo) Update(ctx context.Context, f *models.Fulfillment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.fulfillments[f.ID]; !ok {
		return apperrors.NotFound("fulfillment", f.ID)
	}
	f.UpdatedAt = time.Now()
	row := *f
	row.Scans, row.Packages = nil, nil
	r.s.d.fulfillments[f.ID] = row
	r.s.d.writes++
	return nil
}

func (r fulfillmentRepo) CreateScan(ctx context.Context, scan *models.FulfillmentScan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.d.fail("scans.create"); err != nil {
		return err
	}
	scan.ID = r.s.d.id()
	r.s.d.scans[scan.ID] = *scan
	r.s.d.writes++
	return nil
}

func (r fulfillmentRepo) ListScans(ctx context.Context, fulfillmentID uint) ([]models.FulfillmentScan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FulfillmentScan
	for _, sc := range r.s.d.scans {
		if sc.FulfillmentID == fulfillmentID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fulfillmentRepo) SetScanPackage(ctx context.Context, scanIDs []uint, packageID *uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range scanIDs {
		sc, ok := r.s.d.scans[id]
		if !ok {
			continue
		}
		if packageID == nil {
			sc.PackageID = nil
		} else {
			pid := *packageID
			sc.PackageID = &pid
		}
		r.s.d.scans[id] = sc
	}
	if len(scanIDs) > 0 {
		r.s.d.writes++
	}
	return nil
}

func (r fulfillmentRepo) CreatePackage(ctx context.Context, pkg *models.Package) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.d.packages {
		if p.FulfillmentID == pkg.FulfillmentID && p.BoxNumber == pkg.BoxNumber {
			return repository.ErrDuplicate
		}
	}
	pkg.ID = r.s.d.id()
	pkg.CreatedAt = time.Now()
	r.s.d.packages[pkg.ID] = *pkg
	r.s.d.writes++
	return nil
}

func (r fulfillmentRepo) GetPackage(ctx context.Context, fulfillmentID, packageID uint) (*models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.d.packages[packageID]
	if !ok || p.FulfillmentID != fulfillmentID {
		return nil, apperrors.NotFound("package", packageID)
	}
	return &p, nil
}

func (r fulfillmentRepo) ListPackages(ctx context.Context, fulfillmentID uint) ([]models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Package
	for _, p := range r.s.d.packages {
		if p.FulfillmentID == fulfillmentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoxNumber < out[j].BoxNumber })
	return out, nil
}

// ---------------------------------------------------------------------------
// labels

type labelRepo struct{ s *Store }

func (r labelRepo) Create(ctx context.Context, label *models.ShippingLabel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.d.fail("labels.create"); err != nil {
		return err
	}
	for _, l := range r.s.d.labels {
		if l.OrderID == label.OrderID && l.TrackingNumber == label.TrackingNumber {
			return repository.ErrDuplicate
		}
	}
	label.ID = r.s.d.id()
	label.CreatedAt = time.Now()
	r.s.d.labels[label.ID] = *label
	r.s.d.writes++
	return nil
}

func (r labelRepo) ListByOrder(ctx context.Context, orderID uint) ([]models.ShippingLabel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ShippingLabel
	for _, l := range r.s.d.labels {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r labelRepo) VoidActive(ctx context.Context, orderID uint, keepTracking string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, l := range r.s.d.labels {
		if l.OrderID == orderID && l.VoidedAt == nil && l.TrackingNumber != keepTracking {
			voided := at
			l.VoidedAt = &voided
			r.s.d.labels[id] = l
			n++
		}
	}
	if n > 0 {
		r.s.d.writes++
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// catalog

type productRepo struct{ s *Store }

func (r productRepo) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.d.games[id]
	if !ok {
		return nil, apperrors.NotFound("game", id)
	}
	return &g, nil
}

func (r productRepo) GetMerch(ctx context.Context, id uint) (*models.Merch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.d.merch[id]
	if !ok {
		return nil, apperrors.NotFound("merch", id)
	}
	return &m, nil
}

type packagingRepo struct{ s *Store }

func (r packagingRepo) Create(ctx context.Context, pt *models.PackagingType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.d.packagingTypes {
		if strings.EqualFold(existing.Name, pt.Name) {
			return repository.ErrDuplicate
		}
	}
	pt.ID = r.s.d.id()
	r.s.d.packagingTypes[pt.ID] = *pt
	r.s.d.writes++
	return nil
}

func (r packagingRepo) GetByID(ctx context.Context, id uint) (*models.PackagingType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pt, ok := r.s.d.packagingTypes[id]
	if !ok {
		return nil, apperrors.NotFound("packaging type", id)
	}
	return &pt, nil
}

func (r packagingRepo) ListActive(ctx context.Context) ([]models.PackagingType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PackagingType
	for _, pt := range r.s.d.packagingTypes {
		if pt.IsActive {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------------------
// settings and users

type settingsRepo struct{ s *Store }

func (r settingsRepo) CreateSetting(ctx context.Context, setting *models.AppSetting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.settings[setting.SettingName]; ok {
		return repository.ErrDuplicate
	}
	setting.ID = r.s.d.id()
	r.s.d.settings[setting.SettingName] = *setting
	r.s.d.writes++
	return nil
}

func (r settingsRepo) GetSetting(ctx context.Context, settingName string) (*models.AppSetting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.d.settings[settingName]
	if !ok || !st.IsActive {
		return nil, apperrors.NotFound("setting", settingName)
	}
	return &st, nil
}

func (r settingsRepo) ListActive(ctx context.Context) ([]models.AppSetting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AppSetting
	for _, st := range r.s.d.settings {
		if st.IsActive {
			out = append(out, st)
		}
	}
	return out, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.d.users {
		if u.Username == user.Username || (user.APIKeyLookup != "" && u.APIKeyLookup == user.APIKeyLookup) {
			return repository.ErrDuplicate
		}
	}
	user.ID = r.s.d.id()
	r.s.d.users[user.ID] = *user
	r.s.d.writes++
	return nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user", username)
}

func (r userRepo) GetByAPIKeyLookup(ctx context.Context, lookup string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.d.users {
		if u.APIKeyLookup == lookup {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user", "api key")
}

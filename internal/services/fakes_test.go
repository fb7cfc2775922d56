package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

type repoErr struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoErr) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	case e.unavailable:
		return "unavailable"
	}
	return "repository error"
}

func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return e.unavailable }

var (
	errNotFound    = repoErr{notFound: true}
	errConflict    = repoErr{conflict: true}
	errUnavailable = repoErr{unavailable: true}
)

type memCarts struct {
	mu        sync.Mutex
	entries   map[string]domain.CartEntry
	deleteErr map[string]error
	listErr   error
}

func newMemCarts(entries ...domain.CartEntry) *memCarts {
	m := &memCarts{entries: map[string]domain.CartEntry{}, deleteErr: map[string]error{}}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memCarts) Create(_ context.Context, entry domain.CartEntry) (domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; ok {
		return domain.CartEntry{}, errConflict
	}
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *memCarts) Get(_ context.Context, id string) (domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.CartEntry{}, errNotFound
	}
	return e, nil
}

func (m *memCarts) UpdateQuantity(_ context.Context, id string, qty int, now time.Time) (domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.CartEntry{}, errNotFound
	}
	e.Quantity = qty
	e.UpdatedAt = now
	m.entries[id] = e
	return e, nil
}

func (m *memCarts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := m.entries[id]; !ok {
		return errNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memCarts) ListByUser(_ context.Context, userID string) ([]domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.CartEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memItems struct {
	mu       sync.Mutex
	items    map[string]domain.ShopItem
	failFor  map[string]error
	adjusted []string
	// beforeAdjust runs ahead of every stock change; tests use it to interrupt a stage.
	beforeAdjust func(id string)
}

func newMemItems(items ...domain.ShopItem) *memItems {
	m := &memItems{items: map[string]domain.ShopItem{}, failFor: map[string]error{}}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *memItems) Get(_ context.Context, id string) (domain.ShopItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ShopItem{}, errNotFound
	}
	return it, nil
}

func (m *memItems) AdjustStock(_ context.Context, id string, delta int, guard bool, now time.Time) (repositories.StockChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeAdjust != nil {
		m.beforeAdjust(id)
	}
	if err := m.failFor[id]; err != nil {
		return repositories.StockChange{}, err
	}
	it, ok := m.items[id]
	if !ok {
		return repositories.StockChange{}, repositories.NewInventoryError(repositories.InventoryErrorItemNotFound, "missing", nil)
	}
	after := it.Stock + delta
	if guard && after < 0 {
		return repositories.StockChange{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, "insufficient", nil)
	}
	change := repositories.StockChange{ItemID: id, Before: it.Stock, After: after}
	it.Stock = after
	it.UpdatedAt = now
	m.items[id] = it
	m.adjusted = append(m.adjusted, id)
	return change, nil
}

func (m *memItems) Upsert(_ context.Context, item domain.ShopItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *memItems) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Stock
}

type memPlaces struct {
	mu      sync.Mutex
	places  map[string]domain.BoardingPlace
	setErr  error
	setCall int
}

func newMemPlaces(places ...domain.BoardingPlace) *memPlaces {
	m := &memPlaces{places: map[string]domain.BoardingPlace{}}
	for _, p := range places {
		m.places[p.ID] = p
	}
	return m
}

func (m *memPlaces) Get(_ context.Context, id string) (domain.BoardingPlace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.places[id]
	if !ok {
		return domain.BoardingPlace{}, errNotFound
	}
	return p, nil
}

func (m *memPlaces) SetAvailability(_ context.Context, id string, available bool, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCall++
	if m.setErr != nil {
		return m.setErr
	}
	p, ok := m.places[id]
	if !ok {
		return errNotFound
	}
	p.IsAvailable = available
	p.UpdatedAt = now
	m.places[id] = p
	return nil
}

func (m *memPlaces) Upsert(_ context.Context, place domain.BoardingPlace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.places[place.ID] = place
	return nil
}

func (m *memPlaces) available(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.places[id].IsAvailable
}

type memOrders struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	insertErr error
	inserts   int
}

func newMemOrders(orders ...domain.Order) *memOrders {
	m := &memOrders{orders: map[string]domain.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return domain.Order{}, m.insertErr
	}
	if _, ok := m.orders[order.ID]; ok {
		return domain.Order{}, errConflict
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, errNotFound
	}
	return o, nil
}

func (m *memOrders) FindByNumber(_ context.Context, number string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return domain.Order{}, errNotFound
}

func (m *memOrders) list(filter func(domain.Order) bool) domain.CursorPage[domain.Order] {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if filter(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return domain.CursorPage[domain.Order]{Items: out}
}

func (m *memOrders) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return m.list(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (m *memOrders) ListByShopOwner(_ context.Context, ownerID string, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return m.list(func(o domain.Order) bool { return o.OwnedBy(ownerID) }), nil
}

func (m *memOrders) ListAll(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return m.list(func(domain.Order) bool { return true }), nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, errNotFound
	}
	if o.Status != from {
		return domain.Order{}, errConflict
	}
	o.Status = to
	o.UpdatedAt = now
	m.orders[id] = o
	return o, nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memBookings struct {
	mu        sync.Mutex
	bookings  map[string]domain.Booking
	insertErr error
	paidErr   error
}

func newMemBookings(bookings ...domain.Booking) *memBookings {
	m := &memBookings{bookings: map[string]domain.Booking{}}
	for _, b := range bookings {
		m.bookings[b.ID] = b
	}
	return m
}

func (m *memBookings) Insert(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return domain.Booking{}, m.insertErr
	}
	if _, ok := m.bookings[booking.ID]; ok {
		return domain.Booking{}, errConflict
	}
	m.bookings[booking.ID] = booking
	return booking, nil
}

func (m *memBookings) FindByID(_ context.Context, id string) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, errNotFound
	}
	return b, nil
}

func (m *memBookings) list(filter func(domain.Booking) bool) domain.CursorPage[domain.Booking] {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if filter(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.CursorPage[domain.Booking]{Items: out}
}

func (m *memBookings) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	return m.list(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (m *memBookings) ListByOwner(_ context.Context, ownerID string, _ domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	return m.list(func(b domain.Booking) bool { return b.OwnerID == ownerID }), nil
}

func (m *memBookings) ListAll(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	return m.list(func(domain.Booking) bool { return true }), nil
}

func (m *memBookings) UpdateStatus(_ context.Context, id string, from, to domain.BookingStatus, now time.Time) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, errNotFound
	}
	if b.Status != from {
		return domain.Booking{}, errConflict
	}
	b.Status = to
	b.UpdatedAt = now
	m.bookings[id] = b
	return b, nil
}

func (m *memBookings) MarkPaid(_ context.Context, id string, payment domain.PaymentDetails, now time.Time) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paidErr != nil {
		return domain.Booking{}, m.paidErr
	}
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, errNotFound
	}
	if b.Status != domain.BookingStatusPending {
		return domain.Booking{}, errConflict
	}
	b.Status = domain.BookingStatusPaid
	b.Payment = &payment
	b.UpdatedAt = now
	m.bookings[id] = b
	return b, nil
}

type memRuns struct {
	mu   sync.Mutex
	runs map[string]domain.CheckoutRun
}

func newMemRuns(runs ...domain.CheckoutRun) *memRuns {
	m := &memRuns{runs: map[string]domain.CheckoutRun{}}
	for _, r := range runs {
		m.runs[r.ID] = r
	}
	return m
}

func (m *memRuns) Reserve(_ context.Context, run domain.CheckoutRun) (domain.CheckoutRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.runs[run.ID]; ok {
		return stored, false, nil
	}
	m.runs[run.ID] = cloneRun(run)
	return run, true, nil
}

func (m *memRuns) Get(_ context.Context, id string) (domain.CheckoutRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return domain.CheckoutRun{}, errNotFound
	}
	return cloneRun(r), nil
}

func (m *memRuns) Save(_ context.Context, run domain.CheckoutRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *memRuns) ListStale(_ context.Context, statuses []domain.RunStatus, before time.Time, limit int) ([]domain.CheckoutRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CheckoutRun
	for _, r := range m.runs {
		if slices.Contains(statuses, r.Status) && r.UpdatedAt.Before(before) {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRun(r domain.CheckoutRun) domain.CheckoutRun {
	r.Steps = slices.Clone(r.Steps)
	r.Lines = slices.Clone(r.Lines)
	r.AdjustedItems = slices.Clone(r.AdjustedItems)
	r.CartEntryIDs = slices.Clone(r.CartEntryIDs)
	return r
}

type stubDirectory struct {
	lookupFunc func(ctx context.Context, uid string) ([]domain.Principal, error)
	calls      int
}

func (s *stubDirectory) Lookup(ctx context.Context, uid string) ([]domain.Principal, error) {
	s.calls++
	if s.lookupFunc == nil {
		return nil, nil
	}
	return s.lookupFunc(ctx, uid)
}

func (s *stubDirectory) Save(context.Context, domain.Principal) error { return nil }

type memNotifications struct {
	mu      sync.Mutex
	records []domain.Notification
	err     error
}

func (m *memNotifications) Insert(_ context.Context, n domain.Notification) (domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Notification{}, m.err
	}
	m.records = append(m.records, n)
	return n, nil
}

func (m *memNotifications) ListByRecipient(_ context.Context, id string, _ int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.records {
		if n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) id() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return "id-" + strconv.Itoa(s.next)
}

func syncAfterCommit(ctx context.Context, fn func(context.Context)) { fn(ctx) }

var errBoom = errors.New("boom")

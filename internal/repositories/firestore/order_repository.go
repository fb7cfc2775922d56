package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order snapshots.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil),
	}, nil
}

// Insert creates exactly one order document. An existing id yields a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}
	order.OrderDate = order.OrderDate.UTC()
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.OrderDate
	}
	if _, err := r.base.Create(ctx, order.ID, newOrderDocument(order)); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// FindByNumber resolves the public order number. A missing number is reported as not found.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_number", status.Errorf(codes.NotFound, "order %s not found", orderNumber))
	}
	return docs[0].Data.toDomain(docs[0].ID)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID))
	})
}

func (r *OrderRepository) ListByShopOwner(ctx context.Context, ownerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("shopOwnerIds", "array-contains", strings.TrimSpace(ownerID))
	})
}

func (r *OrderRepository) ListAll(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, pager, nil)
}

func (r *OrderRepository) list(ctx context.Context, pager domain.Pagination, filter pfirestore.QueryBuilder) (domain.CursorPage[domain.Order], error) {
	return listPage(ctx, r.base, pager, "orderDate", filter,
		func(d orderDocument) time.Time { return d.OrderDate },
		func(doc pfirestore.Document[orderDocument]) (domain.Order, error) { return doc.Data.toDomain(doc.ID) },
	)
}

// UpdateStatus is the only mutation applied to an order after creation.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		if current := domain.OrderStatus(doc.Data.Status); current != from {
			return status.Errorf(codes.FailedPrecondition, "order %s is %s, expected %s", orderID, current, from)
		}
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return err
		}
		order.Status = to
		order.UpdatedAt = now.UTC()
		updated = order
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update_status", err)
	}
	return updated, nil
}

type orderLineDocument struct {
	ItemID      string `firestore:"itemId"`
	ShopOwnerID string `firestore:"shopOwnerId"`
	Name        string `firestore:"name"`
	UnitPrice   any    `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
}

type customerDocument struct {
	Name        string `firestore:"name"`
	Phone       string `firestore:"phone"`
	Email       string `firestore:"email,omitempty"`
	Address     string `firestore:"address,omitempty"`
	TableNumber string `firestore:"tableNumber,omitempty"`
	Notes       string `firestore:"notes,omitempty"`
}

type userDetailsDocument struct {
	UID   string `firestore:"uid"`
	Name  string `firestore:"name"`
	Email string `firestore:"email,omitempty"`
	Phone string `firestore:"phone,omitempty"`
}

type shopDetailsDocument struct {
	OwnerID  string `firestore:"ownerId"`
	ShopName string `firestore:"shopName"`
	Phone    string `firestore:"phone,omitempty"`
	Email    string `firestore:"email,omitempty"`
	Address  string `firestore:"address,omitempty"`
}

type paymentDocument struct {
	Method        string     `firestore:"method"`
	Status        string     `firestore:"status"`
	Amount        any        `firestore:"amount"`
	CardHolder    string     `firestore:"cardHolder,omitempty"`
	CardLast4     string     `firestore:"cardLast4,omitempty"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
}

type orderDocument struct {
	OrderNumber     string               `firestore:"orderNumber"`
	UserID          string               `firestore:"userId"`
	ShopOwnerIDs    []string             `firestore:"shopOwnerIds"`
	Items           []orderLineDocument  `firestore:"items"`
	DeliveryFee     any                  `firestore:"deliveryFee"`
	TotalAmount     any                  `firestore:"totalAmount"`
	OrderType       string               `firestore:"orderType"`
	PaymentMethod   string               `firestore:"paymentMethod"`
	Status          string               `firestore:"status"`
	OrderDate       time.Time            `firestore:"orderDate"`
	CustomerDetails customerDocument     `firestore:"customerDetails"`
	UserDetails     *userDetailsDocument `firestore:"userDetails,omitempty"`
	ShopDetails     *shopDetailsDocument `firestore:"shopDetails,omitempty"`
	PaymentDetails  paymentDocument      `firestore:"paymentDetails"`
	RequestID       string               `firestore:"requestId,omitempty"`
	UpdatedAt       time.Time            `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Items))
	for _, line := range order.Items {
		lines = append(lines, orderLineDocument{
			ItemID:      line.ItemID,
			ShopOwnerID: line.ShopOwnerID,
			Name:        line.Name,
			UnitPrice:   encodeAmount(line.UnitPrice),
			Quantity:    line.Quantity,
		})
	}
	doc := orderDocument{
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		ShopOwnerIDs:    append([]string(nil), order.ShopOwnerIDs...),
		Items:           lines,
		DeliveryFee:     encodeAmount(order.DeliveryFee),
		TotalAmount:     encodeAmount(order.TotalAmount),
		OrderType:       string(order.OrderType),
		PaymentMethod:   string(order.PaymentMethod),
		Status:          string(order.Status),
		OrderDate:       order.OrderDate,
		CustomerDetails: customerDocument(order.Customer),
		PaymentDetails:  newPaymentDocument(order.Payment),
		RequestID:       order.RequestID,
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	if order.User != nil {
		user := userDetailsDocument(*order.User)
		doc.UserDetails = &user
	}
	if order.Shop != nil {
		shop := shopDetailsDocument(*order.Shop)
		doc.ShopDetails = &shop
	}
	return doc
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	field := func(name string) string { return fmt.Sprintf("orders/%s.%s", id, name) }

	lines := make([]domain.OrderLine, 0, len(d.Items))
	for i, line := range d.Items {
		price, err := decodeAmount(field(fmt.Sprintf("items[%d].unitPrice", i)), line.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		lines = append(lines, domain.OrderLine{
			ItemID:      line.ItemID,
			ShopOwnerID: line.ShopOwnerID,
			Name:        line.Name,
			UnitPrice:   price,
			Quantity:    line.Quantity,
		})
	}
	fee, err := decodeOptionalAmount(field("deliveryFee"), d.DeliveryFee)
	if err != nil {
		return domain.Order{}, err
	}
	total, err := decodeAmount(field("totalAmount"), d.TotalAmount)
	if err != nil {
		return domain.Order{}, err
	}
	payment, err := d.PaymentDetails.toDomain(field("paymentDetails.amount"))
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		UserID:        d.UserID,
		ShopOwnerIDs:  append([]string(nil), d.ShopOwnerIDs...),
		Items:         lines,
		DeliveryFee:   fee,
		TotalAmount:   total,
		OrderType:     domain.OrderType(d.OrderType),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Status:        domain.OrderStatus(d.Status),
		OrderDate:     d.OrderDate.UTC(),
		Customer:      domain.CustomerDetails(d.CustomerDetails),
		Payment:       payment,
		RequestID:     d.RequestID,
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if d.UserDetails != nil {
		user := domain.UserDetails(*d.UserDetails)
		order.User = &user
	}
	if d.ShopDetails != nil {
		shop := domain.ShopDetails(*d.ShopDetails)
		order.Shop = &shop
	}
	return order, nil
}

func newPaymentDocument(payment domain.PaymentDetails) paymentDocument {
	doc := paymentDocument{
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		Amount:        encodeAmount(payment.Amount),
		CardHolder:    payment.CardHolder,
		CardLast4:     payment.CardLast4,
		TransactionID: payment.TransactionID,
	}
	if payment.PaidAt != nil {
		paidAt := payment.PaidAt.UTC()
		doc.PaidAt = &paidAt
	}
	return doc
}

func (d paymentDocument) toDomain(field string) (domain.PaymentDetails, error) {
	amount, err := decodeOptionalAmount(field, d.Amount)
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	payment := domain.PaymentDetails{
		Method:        domain.PaymentMethod(d.Method),
		Status:        domain.PaymentStatus(d.Status),
		Amount:        amount,
		CardHolder:    d.CardHolder,
		CardLast4:     d.CardLast4,
		TransactionID: d.TransactionID,
	}
	if d.PaidAt != nil {
		paidAt := d.PaidAt.UTC()
		payment.PaidAt = &paidAt
	}
	return payment, nil
}

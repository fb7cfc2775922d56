//go:build integration

package firestore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/firestore/firestoretest"
	"github.com/campusnest/api/internal/repositories"
)

func integrationContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCartRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := integrationContext(t)

	repo, err := NewCartRepository(provider)
	if err != nil {
		t.Fatalf("new cart repository: %v", err)
	}
	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	entry, err := repo.Create(ctx, domain.CartEntry{
		UserID: "u1", ItemID: "rice", ShopOwnerID: "shop-1", Name: "Rice & curry",
		UnitPrice: decimal.NewFromInt(500), Quantity: 2, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.ID != "u1_rice" {
		t.Fatalf("expected pair-keyed id, got %s", entry.ID)
	}

	if _, err := repo.Create(ctx, domain.CartEntry{UserID: "u1", ItemID: "rice", Quantity: 1}); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate entry, got %v", err)
	}

	// Legacy documents carry string prices.
	if _, err := client.Collection(cartCollection).Doc("u1_tea").Set(ctx, map[string]any{
		"userId": "u1", "itemId": "tea", "shopOwnerId": "shop-1", "name": "Tea",
		"unitPrice": "LKR 1,20.50", "quantity": 1, "createdAt": now.Add(time.Minute), "updatedAt": now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("seed legacy entry: %v", err)
	}

	entries, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ItemID != "rice" || entries[1].ItemID != "tea" {
		t.Fatalf("unexpected entries %#v", entries)
	}
	if got := entries[1].UnitPrice.StringFixed(2); got != "120.50" {
		t.Fatalf("expected normalised price 120.50, got %s", got)
	}

	updated, err := repo.UpdateQuantity(ctx, "u1_rice", 3, now.Add(time.Hour))
	if err != nil || updated.Quantity != 3 {
		t.Fatalf("update quantity: %#v %v", updated, err)
	}

	if err := repo.Delete(ctx, "u1_rice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "u1_rice"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestShopItemStockIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := integrationContext(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	repo, err := NewShopItemRepository(provider)
	if err != nil {
		t.Fatalf("new shop item repository: %v", err)
	}
	if err := repo.Upsert(ctx, domain.ShopItem{ID: "kottu", ShopOwnerID: "shop-1", Name: "Kottu", Price: decimal.NewFromInt(450), Stock: 5, UpdatedAt: now}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	change, err := repo.AdjustStock(ctx, "kottu", -3, false, now)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if change.Before != 5 || change.After != 2 {
		t.Fatalf("expected 5 -> 2, got %#v", change)
	}

	// Unguarded decrements may drive stock negative.
	change, err = repo.AdjustStock(ctx, "kottu", -4, false, now)
	if err != nil || change.After != -2 {
		t.Fatalf("expected -2 without guard, got %#v %v", change, err)
	}

	if _, err := repo.AdjustStock(ctx, "kottu", -1, true, now); !repositories.IsInventoryError(err, repositories.InventoryErrorInsufficientStock) {
		t.Fatalf("expected insufficient stock with guard, got %v", err)
	}
	if _, err := repo.AdjustStock(ctx, "missing", -1, false, now); !repositories.IsInventoryError(err, repositories.InventoryErrorItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := integrationContext(t)
	base := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	for i, id := range []string{"o1", "o2", "o3"} {
		order := domain.Order{
			ID:           id,
			OrderNumber:  "ORD-" + id,
			UserID:       "u1",
			ShopOwnerIDs: []string{"shop-1"},
			Items:        []domain.OrderLine{{ItemID: "rice", ShopOwnerID: "shop-1", Name: "Rice", UnitPrice: decimal.NewFromInt(500), Quantity: 2}},
			DeliveryFee:  decimal.NewFromInt(50),
			TotalAmount:  decimal.NewFromInt(1050),
			OrderType:    domain.OrderTypeDelivery,
			Status:       domain.OrderStatusPending,
			OrderDate:    base.Add(time.Duration(i) * time.Minute),
			Customer:     domain.CustomerDetails{Name: "Nimal", Phone: "0771234567", Address: "Hall 3"},
		}
		if _, err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if _, err := repo.Insert(ctx, domain.Order{ID: "o1", OrderNumber: "dup"}); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	byNumber, err := repo.FindByNumber(ctx, "ORD-o2")
	if err != nil || byNumber.ID != "o2" || byNumber.TotalAmount.StringFixed(2) != "1050.00" {
		t.Fatalf("find by number: %#v %v", byNumber, err)
	}
	if _, err := repo.FindByNumber(ctx, "ORD-none"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	first, err := repo.ListByShopOwner(ctx, "shop-1", domain.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(first.Items) != 2 || first.Items[0].ID != "o3" || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %#v", first)
	}
	second, err := repo.ListByShopOwner(ctx, "shop-1", domain.Pagination{PageSize: 2, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].ID != "o1" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %#v", second)
	}

	updated, err := repo.UpdateStatus(ctx, "o1", domain.OrderStatusPending, domain.OrderStatusPreparing, base.Add(time.Hour))
	if err != nil || updated.Status != domain.OrderStatusPreparing {
		t.Fatalf("update status: %#v %v", updated, err)
	}
	if _, err := repo.UpdateStatus(ctx, "o1", domain.OrderStatusPending, domain.OrderStatusCancelled, base.Add(time.Hour)); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on stale transition, got %v", err)
	}
}

func TestIdentityDirectoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := integrationContext(t)

	dir, err := NewIdentityDirectory(provider)
	if err != nil {
		t.Fatalf("new identity directory: %v", err)
	}
	for _, p := range []domain.Principal{
		domain.AdminPrincipal{ID: "both", Name: "Root", Email: "root@campus.lk"},
		domain.StudentPrincipal{ID: "both", Name: "Root student", Email: "root@campus.lk"},
		domain.ShopOwnerPrincipal{ID: "shop", ShopName: "Canteen", Email: "canteen@campus.lk"},
	} {
		if err := dir.Save(ctx, p); err != nil {
			t.Fatalf("save %T: %v", p, err)
		}
	}

	matches, err := dir.Lookup(ctx, "both")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %#v", matches)
	}
	if got := domain.ResolvePrincipal(matches); got.Role() != domain.RoleAdmin {
		t.Fatalf("expected admin priority, got %s", got.Role())
	}

	matches, err = dir.Lookup(ctx, "shop")
	if err != nil || len(matches) != 1 || matches[0].Role() != domain.RoleShopOwner {
		t.Fatalf("expected shop owner, got %#v %v", matches, err)
	}

	matches, err = dir.Lookup(ctx, "nobody")
	if err != nil || len(matches) != 0 {
		t.Fatalf("expected no matches, got %#v %v", matches, err)
	}
}

func TestCheckoutRunRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := integrationContext(t)
	now := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)

	repo, err := NewCheckoutRunRepository(provider)
	if err != nil {
		t.Fatalf("new checkout run repository: %v", err)
	}

	run := domain.CheckoutRun{ID: "run-1", RequestID: "req", UserID: "u1", Kind: domain.CheckoutKindOrder, Status: domain.RunStatusRunning, CreatedAt: now, UpdatedAt: now}
	stored, created, err := repo.Reserve(ctx, run)
	if err != nil || !created || stored.ID != "run-1" {
		t.Fatalf("first reserve: %#v %v %v", stored, created, err)
	}

	run.MarkStep(domain.StepCreateOrder, nil, now)
	run.OrderID = "o1"
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, created, err = repo.Reserve(ctx, domain.CheckoutRun{ID: "run-1", Status: domain.RunStatusRunning})
	if err != nil || created {
		t.Fatalf("second reserve should return existing run: %v %v", created, err)
	}
	if stored.OrderID != "o1" || !stored.StepDone(domain.StepCreateOrder) {
		t.Fatalf("unexpected stored run %#v", stored)
	}

	stale, err := repo.ListStale(ctx, []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusFailed}, now.Add(time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("list stale: %#v %v", stale, err)
	}
}

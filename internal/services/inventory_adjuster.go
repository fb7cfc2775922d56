package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

// InventoryAdjusterDeps wires the stock and availability stores.
type InventoryAdjusterDeps struct {
	Items  repositories.ShopItemRepository
	Places repositories.BoardingPlaceRepository
	// EnforceNonNegative refuses decrements that would leave stock below zero.
	EnforceNonNegative bool
	Clock              func() time.Time
	Logger             func(context.Context, string, map[string]any)
}

// InventoryAdjuster mutates stock levels and availability flags. Adjustments are applied one
// line at a time and are never rolled back.
type InventoryAdjuster struct {
	items  repositories.ShopItemRepository
	places repositories.BoardingPlaceRepository
	guard  bool
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryAdjuster validates deps.
func NewInventoryAdjuster(deps InventoryAdjusterDeps) (*InventoryAdjuster, error) {
	if deps.Items == nil || deps.Places == nil {
		return nil, errors.New("inventory adjuster: item and place repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &InventoryAdjuster{
		items:  deps.Items,
		places: deps.Places,
		guard:  deps.EnforceNonNegative,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// Decrement subtracts each line's quantity from its item. Lines for which skip reports true
// are treated as already applied. done is called after each successful line so callers can
// persist progress. The first failing line stops the pass; later lines stay untouched.
func (a *InventoryAdjuster) Decrement(ctx context.Context, lines []domain.InventoryLine, skip func(itemID string) bool, done func(itemID string)) (InventoryReport, error) {
	var report InventoryReport
	for _, line := range lines {
		if skip != nil && skip(line.ItemID) {
			report.Succeeded = append(report.Succeeded, line.ItemID)
			continue
		}
		if line.Quantity < 1 {
			report.Failed = append(report.Failed, line.ItemID)
			return report, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity,
				fmt.Sprintf("item %s: quantity %d", line.ItemID, line.Quantity), nil)
		}
		change, err := a.items.AdjustStock(ctx, line.ItemID, -line.Quantity, a.guard, a.now())
		if err != nil {
			report.Failed = append(report.Failed, line.ItemID)
			a.logger(ctx, "inventory.adjust_failed", map[string]any{
				"itemId":   line.ItemID,
				"quantity": line.Quantity,
				"error":    err.Error(),
			})
			return report, fmt.Errorf("item %s: %w", line.ItemID, err)
		}
		if change.After < 0 {
			a.logger(ctx, "inventory.negative_stock", map[string]any{
				"itemId": line.ItemID,
				"before": change.Before,
				"after":  change.After,
				"error":  "stock below zero",
			})
		}
		report.Succeeded = append(report.Succeeded, line.ItemID)
		if done != nil {
			done(line.ItemID)
		}
	}
	return report, nil
}

// Restock adds back the quantities of the lines whose item ids are listed in adjusted.
func (a *InventoryAdjuster) Restock(ctx context.Context, lines []domain.InventoryLine, adjusted []string) error {
	applied := make(map[string]struct{}, len(adjusted))
	for _, id := range adjusted {
		applied[id] = struct{}{}
	}
	var errs []error
	for _, line := range lines {
		if _, ok := applied[line.ItemID]; !ok || line.Quantity < 1 {
			continue
		}
		if _, err := a.items.AdjustStock(ctx, line.ItemID, line.Quantity, false, a.now()); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", line.ItemID, err))
		}
	}
	return errors.Join(errs...)
}

// MarkUnavailable clears the availability flag of the place unconditionally.
func (a *InventoryAdjuster) MarkUnavailable(ctx context.Context, placeID string) error {
	return a.setAvailability(ctx, placeID, false)
}

// Release sets the place available again.
func (a *InventoryAdjuster) Release(ctx context.Context, placeID string) error {
	return a.setAvailability(ctx, placeID, true)
}

func (a *InventoryAdjuster) setAvailability(ctx context.Context, placeID string, available bool) error {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return repositories.NewInventoryError(repositories.InventoryErrorItemNotFound, "place id is required", nil)
	}
	return a.places.SetAvailability(ctx, placeID, available, a.now())
}

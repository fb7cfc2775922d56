package services

import (
	"context"

	"github.com/campusnest/api/internal/repositories"
)

// CartReclaimer deletes consumed cart entries after a successful checkout.
type CartReclaimer struct {
	carts  repositories.CartRepository
	logger func(context.Context, string, map[string]any)
}

// NewCartReclaimer wraps the cart repository.
func NewCartReclaimer(carts repositories.CartRepository, logger func(context.Context, string, map[string]any)) *CartReclaimer {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartReclaimer{carts: carts, logger: logger}
}

// Reclaim deletes each entry independently and returns the ids it could not delete. An entry
// that is already gone counts as deleted. Failures are logged and never retried.
func (r *CartReclaimer) Reclaim(ctx context.Context, entryIDs []string) []string {
	var failed []string
	for _, id := range entryIDs {
		err := r.carts.Delete(ctx, id)
		if err == nil || repositories.IsNotFound(err) {
			continue
		}
		failed = append(failed, id)
		r.logger(ctx, "checkout.cart_reclaim_failed", map[string]any{
			"entryId": id,
			"error":   err.Error(),
		})
	}
	return failed
}

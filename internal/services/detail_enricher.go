package services

import (
	"context"
	"strings"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

// DetailEnricher looks up display details for orders and bookings. Every failure degrades
// to omitted fields; nothing it does can block a checkout.
type DetailEnricher struct {
	directory repositories.IdentityDirectory
	logger    func(context.Context, string, map[string]any)
}

// NewDetailEnricher wraps the identity directory. A nil directory disables enrichment.
func NewDetailEnricher(directory repositories.IdentityDirectory, logger func(context.Context, string, map[string]any)) *DetailEnricher {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &DetailEnricher{directory: directory, logger: logger}
}

// Shop returns the shop profile of ownerID, or nil when unavailable.
func (e *DetailEnricher) Shop(ctx context.Context, ownerID string) *domain.ShopDetails {
	matches := e.lookup(ctx, "shop", ownerID)
	shop, ok := domain.FindPrincipal[domain.ShopOwnerPrincipal](matches)
	if !ok {
		return nil
	}
	details := shop.Details()
	return &details
}

// Student returns the student profile of uid, or nil when unavailable.
func (e *DetailEnricher) Student(ctx context.Context, uid string) *domain.UserDetails {
	matches := e.lookup(ctx, "student", uid)
	student, ok := domain.FindPrincipal[domain.StudentPrincipal](matches)
	if !ok {
		return nil
	}
	details := student.Details()
	return &details
}

func (e *DetailEnricher) lookup(ctx context.Context, kind, uid string) []domain.Principal {
	uid = strings.TrimSpace(uid)
	if e == nil || e.directory == nil || uid == "" {
		return nil
	}
	matches, err := e.directory.Lookup(ctx, uid)
	if err != nil {
		e.logger(ctx, "checkout.enrich_failed", map[string]any{
			"kind":  kind,
			"uid":   uid,
			"error": err.Error(),
		})
		return nil
	}
	if len(matches) == 0 {
		e.logger(ctx, "checkout.enrich_missing", map[string]any{"kind": kind, "uid": uid})
	}
	return matches
}

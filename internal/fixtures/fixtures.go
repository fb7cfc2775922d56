// Package fixtures loads seed data for local environments and the Firestore emulator.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

// File is the decoded fixtures document.
type File struct {
	Admins     []adminFixture     `yaml:"admins"`
	ShopOwners []shopOwnerFixture `yaml:"shop_owners"`
	Students   []studentFixture   `yaml:"students"`
	Items      []itemFixture      `yaml:"items"`
	Places     []placeFixture     `yaml:"places"`
}

type adminFixture struct {
	UID   string `yaml:"uid"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type shopOwnerFixture struct {
	UID      string `yaml:"uid"`
	ShopName string `yaml:"shop_name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Address  string `yaml:"address"`
}

type studentFixture struct {
	UID   string `yaml:"uid"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// Prices accept both quoted strings and bare numbers, matching what the stores hold.
type itemFixture struct {
	ID          string `yaml:"id"`
	ShopOwnerID string `yaml:"shop_owner_id"`
	Name        string `yaml:"name"`
	Price       any    `yaml:"price"`
	Stock       int    `yaml:"stock"`
	ImageRef    string `yaml:"image_ref"`
}

type placeFixture struct {
	ID            string `yaml:"id"`
	OwnerID       string `yaml:"owner_id"`
	Name          string `yaml:"name"`
	Address       string `yaml:"address"`
	MonthlyRent   any    `yaml:"monthly_rent"`
	AdvanceAmount any    `yaml:"advance_amount"`
	Available     *bool  `yaml:"available"`
}

// Summary counts the records written by Apply.
type Summary struct {
	Principals int
	Items      int
	Places     int
}

// Decode parses a fixtures document.
func Decode(r io.Reader) (File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("fixtures: decode: %w", err)
	}
	return file, nil
}

// Principals converts the role records into domain principals.
func (f File) Principals() ([]domain.Principal, error) {
	out := make([]domain.Principal, 0, len(f.Admins)+len(f.ShopOwners)+len(f.Students))
	for _, a := range f.Admins {
		if strings.TrimSpace(a.UID) == "" {
			return nil, errors.New("fixtures: admin uid is required")
		}
		out = append(out, domain.AdminPrincipal{ID: a.UID, Name: a.Name, Email: a.Email})
	}
	for _, s := range f.ShopOwners {
		if strings.TrimSpace(s.UID) == "" {
			return nil, errors.New("fixtures: shop owner uid is required")
		}
		out = append(out, domain.ShopOwnerPrincipal{ID: s.UID, ShopName: s.ShopName, Email: s.Email, Phone: s.Phone, Address: s.Address})
	}
	for _, s := range f.Students {
		if strings.TrimSpace(s.UID) == "" {
			return nil, errors.New("fixtures: student uid is required")
		}
		out = append(out, domain.StudentPrincipal{ID: s.UID, Name: s.Name, Email: s.Email, Phone: s.Phone})
	}
	return out, nil
}

// ShopItems converts the item records, normalising prices.
func (f File) ShopItems(now time.Time) ([]domain.ShopItem, error) {
	out := make([]domain.ShopItem, 0, len(f.Items))
	for _, item := range f.Items {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.ShopOwnerID) == "" {
			return nil, fmt.Errorf("fixtures: item %q needs id and shop_owner_id", item.Name)
		}
		price, err := domain.ParseAmount(item.Price)
		if err != nil {
			return nil, fmt.Errorf("fixtures: item %s price: %w", item.ID, err)
		}
		if item.Stock < 0 {
			return nil, fmt.Errorf("fixtures: item %s stock must not be negative", item.ID)
		}
		out = append(out, domain.ShopItem{
			ID:          item.ID,
			ShopOwnerID: item.ShopOwnerID,
			Name:        item.Name,
			Price:       price,
			Stock:       item.Stock,
			ImageRef:    item.ImageRef,
			UpdatedAt:   now,
		})
	}
	return out, nil
}

// BoardingPlaces converts the place records. Places are available unless stated otherwise.
func (f File) BoardingPlaces(now time.Time) ([]domain.BoardingPlace, error) {
	out := make([]domain.BoardingPlace, 0, len(f.Places))
	for _, p := range f.Places {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.OwnerID) == "" {
			return nil, fmt.Errorf("fixtures: place %q needs id and owner_id", p.Name)
		}
		rent, err := domain.ParseAmount(p.MonthlyRent)
		if err != nil {
			return nil, fmt.Errorf("fixtures: place %s monthly_rent: %w", p.ID, err)
		}
		place := domain.BoardingPlace{
			ID:          p.ID,
			OwnerID:     p.OwnerID,
			Name:        p.Name,
			Address:     p.Address,
			MonthlyRent: rent,
			IsAvailable: p.Available == nil || *p.Available,
			UpdatedAt:   now,
		}
		if p.AdvanceAmount != nil {
			advance, err := domain.ParseAmount(p.AdvanceAmount)
			if err != nil {
				return nil, fmt.Errorf("fixtures: place %s advance_amount: %w", p.ID, err)
			}
			place.AdvanceAmount = advance
		}
		out = append(out, place)
	}
	return out, nil
}

// Apply validates the whole file first and then upserts every record. Nothing is written
// when any record is invalid.
func Apply(ctx context.Context, reg repositories.Registry, file File, now time.Time) (Summary, error) {
	principals, err := file.Principals()
	if err != nil {
		return Summary{}, err
	}
	items, err := file.ShopItems(now)
	if err != nil {
		return Summary{}, err
	}
	places, err := file.BoardingPlaces(now)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, p := range principals {
		if err := reg.Identities().Save(ctx, p); err != nil {
			return summary, fmt.Errorf("fixtures: save %s %s: %w", p.Role(), p.UID(), err)
		}
		summary.Principals++
	}
	for _, item := range items {
		if err := reg.ShopItems().Upsert(ctx, item); err != nil {
			return summary, fmt.Errorf("fixtures: save item %s: %w", item.ID, err)
		}
		summary.Items++
	}
	for _, place := range places {
		if err := reg.BoardingPlaces().Upsert(ctx, place); err != nil {
			return summary, fmt.Errorf("fixtures: save place %s: %w", place.ID, err)
		}
		summary.Places++
	}
	return summary, nil
}

package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

const (
	adminCollection     = "admins"
	shopOwnerCollection = "shopOwners"
	studentCollection   = "users"
)

// IdentityDirectory reads the three role collections keyed by identity id.
type IdentityDirectory struct {
	provider   *pfirestore.Provider
	admins     *pfirestore.BaseRepository[adminDocument]
	shopOwners *pfirestore.BaseRepository[shopOwnerDocument]
	students   *pfirestore.BaseRepository[studentDocument]
}

var _ repositories.IdentityDirectory = (*IdentityDirectory)(nil)

// NewIdentityDirectory constructs a Firestore-backed identity directory.
func NewIdentityDirectory(provider *pfirestore.Provider) (*IdentityDirectory, error) {
	if provider == nil {
		return nil, errors.New("identity directory requires firestore provider")
	}
	return &IdentityDirectory{
		provider:   provider,
		admins:     pfirestore.NewBaseRepository[adminDocument](provider, adminCollection, nil),
		shopOwners: pfirestore.NewBaseRepository[shopOwnerDocument](provider, shopOwnerCollection, nil),
		students:   pfirestore.NewBaseRepository[studentDocument](provider, studentCollection, nil),
	}, nil
}

// Lookup fetches admins/{uid}, shopOwners/{uid} and users/{uid} in one batched read and
// returns a principal for every document that exists.
func (d *IdentityDirectory) Lookup(ctx context.Context, uid string) ([]domain.Principal, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, errors.New("identity directory: uid is required")
	}
	client, err := d.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, 3)
	for _, ref := range []func(context.Context, string) (*firestore.DocumentRef, error){
		d.admins.DocumentRef, d.shopOwners.DocumentRef, d.students.DocumentRef,
	} {
		docRef, err := ref(ctx, uid)
		if err != nil {
			return nil, err
		}
		refs = append(refs, docRef)
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("identities.lookup", err)
	}

	var principals []domain.Principal
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		principal, err := d.decode(snap)
		if err != nil {
			return nil, err
		}
		principals = append(principals, principal)
	}
	return principals, nil
}

func (d *IdentityDirectory) decode(snap *firestore.DocumentSnapshot) (domain.Principal, error) {
	switch snap.Ref.Parent.ID {
	case adminCollection:
		doc, err := d.admins.Decode(snap)
		if err != nil {
			return nil, err
		}
		return domain.AdminPrincipal{ID: doc.ID, Name: doc.Data.Name, Email: doc.Data.Email}, nil
	case shopOwnerCollection:
		doc, err := d.shopOwners.Decode(snap)
		if err != nil {
			return nil, err
		}
		return domain.ShopOwnerPrincipal{
			ID:       doc.ID,
			ShopName: doc.Data.ShopName,
			Email:    doc.Data.Email,
			Phone:    doc.Data.Phone,
			Address:  doc.Data.Address,
		}, nil
	case studentCollection:
		doc, err := d.students.Decode(snap)
		if err != nil {
			return nil, err
		}
		return domain.StudentPrincipal{ID: doc.ID, Name: doc.Data.Name, Email: doc.Data.Email, Phone: doc.Data.Phone}, nil
	}
	return nil, fmt.Errorf("identity directory: unexpected collection %q", snap.Ref.Parent.ID)
}

// Save writes the role record matching the principal's variant.
func (d *IdentityDirectory) Save(ctx context.Context, principal domain.Principal) error {
	var err error
	switch p := principal.(type) {
	case domain.AdminPrincipal:
		_, err = d.admins.Set(ctx, p.ID, adminDocument{Name: p.Name, Email: p.Email})
	case domain.ShopOwnerPrincipal:
		_, err = d.shopOwners.Set(ctx, p.ID, shopOwnerDocument{ShopName: p.ShopName, Email: p.Email, Phone: p.Phone, Address: p.Address})
	case domain.StudentPrincipal:
		_, err = d.students.Set(ctx, p.ID, studentDocument{Name: p.Name, Email: p.Email, Phone: p.Phone})
	default:
		err = fmt.Errorf("identity directory: unsupported principal %T", principal)
	}
	return err
}

type adminDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
}

type shopOwnerDocument struct {
	ShopName string `firestore:"shopName"`
	Email    string `firestore:"email"`
	Phone    string `firestore:"phone,omitempty"`
	Address  string `firestore:"address,omitempty"`
}

type studentDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

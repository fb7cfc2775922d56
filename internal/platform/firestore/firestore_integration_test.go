//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/platform/firestore/firestoretest"
)

type counterDoc struct {
	Label string `firestore:"label"`
	Count int    `firestore:"count"`
}

type classified interface {
	IsNotFound() bool
	IsConflict() bool
}

func TestBaseRepositoryAgainstEmulator(t *testing.T) {
	provider := firestoretest.NewProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[counterDoc](provider, "counters", nil)

	if _, err := repo.Create(ctx, "c-1", counterDoc{Label: "alpha", Count: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err := repo.Create(ctx, "c-1", counterDoc{Label: "dup"})
	var cls classified
	if !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict on second create, got %v", err)
	}

	if _, err := repo.Update(ctx, "c-1", []firestore.Update{{Path: "count", Value: firestore.Increment(2)}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	doc, err := repo.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.Count != 3 || doc.Data.Label != "alpha" {
		t.Fatalf("unexpected data: %#v", doc.Data)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "c-1")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := repo.Decode(snap)
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: "count", Value: current.Data.Count * 10}})
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("count", "==", 30)
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "c-1" {
		t.Fatalf("expected c-1 from query, got %#v", docs)
	}

	if err := repo.Delete(ctx, "c-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, err = repo.Get(ctx, "c-1")
	if !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

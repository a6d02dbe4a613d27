package storage

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/models"
)

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	_ = s.CreateRide(ctx, &models.Ride{ID: "a", UserID: "u1", CreatedAt: now.Add(-time.Hour)})
	_ = s.CreateRide(ctx, &models.Ride{ID: "b", UserID: "u1", CreatedAt: now})
	_ = s.CreateRide(ctx, &models.Ride{ID: "c", UserID: "u2", CreatedAt: now})

	rides, err := s.ListRidesByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rides) != 2 || rides[0].ID != "b" || rides[1].ID != "a" {
		t.Fatalf("unexpected rides %+v", rides)
	}
	if _, err := s.GetRide(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCopiesOnWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := &models.Ride{ID: "a", UserID: "u1", FarePrice: 100}
	_ = s.CreateRide(ctx, r)
	r.FarePrice = 1
	got, _ := s.GetRide(ctx, "a")
	if got.FarePrice != 100 {
		t.Fatalf("store aliased caller's ride")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("expected embedded migrations, got %v %v", names, err)
	}
}

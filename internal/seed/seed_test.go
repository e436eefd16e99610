package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iliyamo/ridesplit/internal/database"
	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/repository"
	"github.com/iliyamo/ridesplit/internal/utils"
)

func TestSeed(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := database.Migrate(ctx, db, "sqlite"); err != nil {
		t.Fatal(err)
	}
	store := repository.NewStore(db, nil)

	res, err := Seed(ctx, store, Options{BcryptCost: 4, AdminID: "admin", AdminPassword: "secret"})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Users != 14 || res.Rooms != 7 {
		t.Fatalf("result = %+v", res)
	}

	for _, r := range rooms {
		got, err := store.Rooms.Get(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		members, _ := store.Members.List(ctx, r.ID)
		if got.CurrentMembers != len(members) || got.CurrentMembers > got.MaxMembers {
			t.Errorf("%s: %d members, %d rows, max %d", r.ID, got.CurrentMembers, len(members), got.MaxMembers)
		}
		if got.Status == model.StatusReadyAll && !model.AllReady(members) {
			t.Errorf("%s is READY_ALL with unready members", r.ID)
		}
	}

	available, err := store.Rooms.ListAvailable(ctx, "Hansung University")
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 4 || available[0].ID != "room001" {
		t.Errorf("available = %d rooms", len(available))
	}

	u, err := store.Users.Get(ctx, "hyechang")
	if err != nil {
		t.Fatal(err)
	}
	if u.Balance != 1500 || !utils.VerifyPassword(u.PasswordHash, DemoPassword) {
		t.Errorf("hyechang = %+v", u)
	}
	admin, err := store.Users.Get(ctx, "admin")
	if err != nil || admin.Role != model.RoleAdmin {
		t.Errorf("admin = %+v, %v", admin, err)
	}

	again, err := Seed(ctx, store, Options{BcryptCost: 4})
	if err != nil || !again.Skipped {
		t.Errorf("second seed = %+v, %v", again, err)
	}
}

func TestSeedAfterAdminOnly(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := database.Migrate(ctx, db, "sqlite"); err != nil {
		t.Fatal(err)
	}
	store := repository.NewStore(db, nil)
	opts := Options{BcryptCost: 4, AdminID: "root", AdminPassword: "secret"}

	created, err := EnsureAdmin(ctx, store, opts)
	if err != nil || !created {
		t.Fatalf("EnsureAdmin = %v, %v", created, err)
	}
	if created, err := EnsureAdmin(ctx, store, opts); err != nil || created {
		t.Fatalf("second EnsureAdmin = %v, %v", created, err)
	}

	res, err := Seed(ctx, store, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || res.Users != 13 || res.Rooms != 7 {
		t.Errorf("result = %+v", res)
	}
}

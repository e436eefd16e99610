// Package seed loads the demo accounts and rooms: ten Hansung University
// students, three from other schools and seven rooms around the campus.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/repository"
)

// DemoPassword is the password of every demo account.
const DemoPassword = "1234"

const hansung = "Hansung University"

// Campus is the Hansung University main gate.
var Campus = struct{ Lat, Lon float64 }{37.58616528349631, 127.01280516488525}

type demoUser struct {
	ID, Name, University string
	Balance              int
}

var users = []demoUser{
	// test account that is in no room
	{"hyechang", "Hong Hyechang", hansung, 1500},

	{"woohyun", "Kim Woohyun", hansung, 8000},
	{"sangwoo", "Jeon Sangwoo", hansung, 18000},
	{"hyundo", "Yoon Hyundo", hansung, 12000},
	{"minjae", "Park Minjae", hansung, 15000},
	{"soyeon", "Lee Soyeon", hansung, 22000},
	{"jihoon", "Kim Jihoon", hansung, 9000},
	{"yujin", "Choi Yujin", hansung, 16000},
	{"seungho", "Jung Seungho", hansung, 20000},
	{"eunbi", "Han Eunbi", hansung, 13000},

	{"student1", "Kim Haksaeng", "Sungshin Women's University", 11000},
	{"student2", "Lee Daehak", "Hongik University", 14000},
	{"student3", "Park Daesaeng", "Kookmin University", 17000},
}

type demoRoom struct {
	ID, Owner     string
	Members       []string
	Start         string
	Lat, Lon      float64
	EndLat        float64
	EndLon        float64
	Max           int
	Cost, PerHead int
	Status        model.RoomStatus
}

// For hyechang (balance 1500): room001 needs 1200, room002 needs 1440,
// room003 needs 2400.
var rooms = []demoRoom{
	{"room001", "woohyun", []string{"woohyun", "sangwoo"}, "Hansung Univ. Station Exit 2", 37.5791, 127.0066, Campus.Lat, Campus.Lon, 4, 4000, 1000, model.StatusRecruiting},
	{"room002", "minjae", []string{"minjae"}, "Sungshin Women's Univ. Station Exit 1", 37.5922, 127.0164, Campus.Lat, Campus.Lon, 3, 3600, 1200, model.StatusRecruiting},
	{"room003", "soyeon", []string{"soyeon", "jihoon"}, "Samseon Sauna", 37.5901, 127.0104, 37.59018845003, 127.0104224480399, 4, 8000, 2000, model.StatusRecruiting},
	{"room004", "seungho", []string{"seungho", "eunbi"}, "Hyehwa Station Exit 2", 37.5822, 127.0022, Campus.Lat, Campus.Lon, 4, 4400, 1100, model.StatusRecruiting},
	{"room005", "hyundo", []string{"hyundo", "seungho"}, "Hansung Univ. Station Exit 1", 37.5789, 127.0072, Campus.Lat, Campus.Lon, 2, 2800, 1400, model.StatusWaiting},
	{"room006", "sangwoo", []string{"sangwoo", "hyundo", "minjae", "soyeon"}, "Changsin Station Exit 1", 37.5691, 127.0159, Campus.Lat, Campus.Lon, 4, 5200, 1300, model.StatusWaiting},
	{"room007", "eunbi", []string{"eunbi", "woohyun"}, "Mia Station Exit 3", 37.6133, 127.0291, Campus.Lat, Campus.Lon, 2, 3000, 1500, model.StatusReadyAll},
}

// Options tune seeding.
type Options struct {
	BcryptCost    int
	AdminID       string
	AdminPassword string
}

// Result counts what was written.
type Result struct {
	Users   int  `json:"users"`
	Rooms   int  `json:"rooms"`
	Skipped bool `json:"skipped"`
}

// EnsureAdmin creates the ADMIN account when a password is configured and
// the account does not exist yet.
func EnsureAdmin(ctx context.Context, store *repository.Store, opts Options) (created bool, err error) {
	if opts.AdminPassword == "" || opts.AdminID == "" {
		return false, nil
	}
	admin := &model.User{ID: opts.AdminID, Name: "Administrator", University: hansung, Role: model.RoleAdmin}
	err = store.Users.Create(ctx, admin, opts.AdminPassword, opts.BcryptCost)
	if errors.Is(err, repository.ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("admin account created", "user_id", opts.AdminID)
	return true, nil
}

// Seed loads the demo data into a database without students. A database
// that already has students is left alone; the admin account alone does
// not count.
func Seed(ctx context.Context, store *repository.Store, opts Options) (Result, error) {
	var res Result
	created, err := EnsureAdmin(ctx, store, opts)
	if err != nil {
		return res, err
	}
	if created {
		res.Users++
	}
	n, err := store.Users.CountByRole(ctx, model.RoleStudent)
	if err != nil {
		return res, err
	}
	if n > 0 {
		slog.Info("seed skipped, database not empty", "students", n)
		res.Skipped = true
		return res, nil
	}

	for _, u := range users {
		m := &model.User{ID: u.ID, Name: u.Name, University: u.University, Balance: u.Balance}
		if err := store.Users.Create(ctx, m, DemoPassword, opts.BcryptCost); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		res.Users++
	}

	err = store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rooms {
			room := &model.Room{
				ID: r.ID, OwnerID: r.Owner,
				StartLocation: r.Start, StartLat: r.Lat, StartLon: r.Lon,
				EndLocation: hansung, EndLat: r.EndLat, EndLon: r.EndLon,
				CurrentMembers: len(r.Members), MaxMembers: r.Max,
				EstimatedCost: r.Cost, CostPerPerson: r.PerHead,
				Status: r.Status, Phase: model.PhaseCreated,
			}
			if err := store.Rooms.CreateTx(ctx, tx, room); err != nil {
				return err
			}
			ready := r.Status == model.StatusReadyAll
			for _, id := range r.Members {
				if err := store.Members.AddTx(ctx, tx, r.ID, id, ready); err != nil {
					return fmt.Errorf("room %s member %s: %w", r.ID, id, err)
				}
			}
			res.Rooms++
		}
		return nil
	})
	if err != nil {
		return Result{Users: res.Users}, fmt.Errorf("seed rooms: %w", err)
	}
	slog.Info("demo data seeded", "users", res.Users, "rooms", res.Rooms)
	return res, nil
}

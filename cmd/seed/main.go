package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/session-scheduling/internal/db"
	"github.com/clinicore/session-scheduling/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedClinics(context.Background(), pool, 5); err != nil {
		log.Fatalf("seed clinics: %v", err)
	}

	log.Println("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clinics", count)

	for i := 0; i < count; i++ {
		clinicID := gofakeit.UUID()
		name := gofakeit.Company() + " Clinic"

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO clinics (id, name, walkin_token_allotment, walkin_capacity_threshold, walkin_reserve_ratio, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, clinicID, name, gofakeit.Number(2, 4), 0.9, 0.2)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}

		doctors := gofakeit.Number(8, 15)
		for d := 0; d < doctors; d++ {
			if err := seedDoctor(ctx, tx, clinicID); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("clinic %s seeded with %d doctors", name, doctors)
	}

	return nil
}

func seedDoctor(ctx context.Context, tx pgx.Tx, clinicID string) error {
	name := "Dr. " + gofakeit.Name()

	avail := weeklyTemplate()
	availJSON, err := json.Marshal(avail)
	if err != nil {
		return err
	}

	consulting := []int{10, 15, 15, 20}[gofakeit.Number(0, 3)]

	_, err = tx.Exec(ctx, `
		INSERT INTO doctors (clinic_id, name, availability, average_consulting_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, clinicID, name, availJSON, consulting)
	return err
}

// weeklyTemplate builds a plausible working week: a morning session every
// weekday, an afternoon session most days, a short Saturday morning.
func weeklyTemplate() []schedule.DayAvailability {
	var out []schedule.DayAvailability

	for wd := time.Monday; wd <= time.Friday; wd++ {
		day := schedule.DayAvailability{
			Weekday: wd,
			Sessions: []schedule.SessionWindow{
				{Start: clock(9, 0), End: clock(13, 0)},
			},
		}
		if gofakeit.Bool() || wd != time.Wednesday {
			day.Sessions = append(day.Sessions, schedule.SessionWindow{
				Start: clock(14, 0), End: clock(17, 0),
			})
		}
		out = append(out, day)
	}

	if gofakeit.Bool() {
		out = append(out, schedule.DayAvailability{
			Weekday: time.Saturday,
			Sessions: []schedule.SessionWindow{
				{Start: clock(9, 0), End: clock(12, 0)},
			},
		})
	}

	return out
}

func clock(h, m int) schedule.ClockTime {
	return schedule.ClockTime(h*60 + m)
}

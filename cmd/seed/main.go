package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openvax/vaccine-appointment-scheduling/internal/db"
)

var vaccineBrands = []string{"Pfizer", "Moderna", "Janssen", "Novavax", "AstraZeneca"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	caregivers := flag.Int("caregivers", 50, "number of caregivers to seed")
	days := flag.Int("days", 30, "availability dates per caregiver, starting tomorrow")
	maxDoses := flag.Int("max-doses", 500, "upper bound for initial doses per vaccine")
	flag.Parse()

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

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedVaccines(context.Background(), pool, *maxDoses); err != nil {
		log.Fatalf("seed vaccines: %v", err)
	}
	if err := seedCaregivers(context.Background(), pool, *caregivers, *days); err != nil {
		log.Fatalf("seed caregivers: %v", err)
	}

	log.Println("seed complete")
}

func seedVaccines(ctx context.Context, pool *pgxpool.Pool, maxDoses int) error {
	log.Printf("seeding %d vaccines", len(vaccineBrands))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, name := range vaccineBrands {
		doses := gofakeit.Number(0, maxDoses)

		_, err := tx.Exec(ctx, `
			INSERT INTO vaccines (name, doses)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET doses = vaccines.doses + EXCLUDED.doses
		`, name, doses)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedCaregivers(ctx context.Context, pool *pgxpool.Pool, count, days int) error {
	log.Printf("seeding %d caregivers with %d availability dates each", count, days)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tomorrow := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)

	for i := 0; i < count; i++ {
		username := fmt.Sprintf("%s%d", strings.ToLower(gofakeit.FirstName()), gofakeit.Number(10, 99))

		for d := 0; d < days; d++ {
			date := tomorrow.AddDate(0, 0, d)

			_, err := tx.Exec(ctx, `
				INSERT INTO availabilities (caregiver_username, available_on)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, username, date)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

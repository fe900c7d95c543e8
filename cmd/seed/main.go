package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartclinic/clinic-scheduling/internal/appointment"
	"github.com/smartclinic/clinic-scheduling/internal/db"
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

	if err := seedDoctors(context.Background(), pool, 5); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

// seedDoctors creates perSpecialization doctors for every specialization
// the resolver can produce, so no resolvable issue ends up without a
// candidate set.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, perSpecialization int) error {
	specializations := appointment.Specializations()
	log.Printf("seeding %d doctors across %d specializations", perSpecialization*len(specializations), len(specializations))

	slotGrid := []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, spec := range specializations {
		for i := 0; i < perSpecialization; i++ {
			id := uuid.New()
			name := "Dr. " + gofakeit.Name()

			// Each doctor publishes a contiguous run of the slot grid.
			start := gofakeit.Number(0, 2)
			length := gofakeit.Number(3, len(slotGrid)-start)
			slots := strings.Join(slotGrid[start:start+length], ",")

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, name, specialization, time_slots, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, spec, slots)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

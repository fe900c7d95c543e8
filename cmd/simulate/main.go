// simulate fires concurrent booking traffic at a running api-server and
// checks the slot-exclusivity guarantee from the outside: for any storm of
// bookings aimed at one (doctor, date, time-slot), at most one may come
// back booked and the rest must be waitlisted. It then cancels the winner
// repeatedly and watches the waitlist drain in FIFO order.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartclinic/clinic-scheduling/internal/db"
)

type bookingResponse struct {
	Outcome     string `json:"outcome"`
	Appointment *struct {
		ID uuid.UUID `json:"id"`
	} `json:"appointment"`
	Position int `json:"waitlist_position"`
}

type cancelResponse struct {
	Cancelled uuid.UUID `json:"cancelled"`
	Promoted  *struct {
		ID        uuid.UUID `json:"id"`
		PatientID uuid.UUID `json:"patient_id"`
	} `json:"promoted"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		baseURL = flag.String("base-url", "http://127.0.0.1:8080", "api-server base URL")
		storm   = flag.Int("storm", 25, "concurrent bookings aimed at one slot")
		date    = flag.String("date", time.Now().AddDate(0, 0, 7).Format("2006-01-02"), "appointment date")
	)
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

	patients, err := loadPatients(ctx, pool, *storm)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	if len(patients) < *storm {
		log.Fatalf("need %d seeded patients, found %d (run cmd/seed first)", *storm, len(patients))
	}

	doctorID, slot, err := pickCardiologist(ctx, pool)
	if err != nil {
		log.Fatalf("pick doctor: %v", err)
	}

	log.Printf("storming doctor=%s date=%s slot=%s with %d bookings", doctorID, *date, slot, *storm)

	client := &http.Client{Timeout: 10 * time.Second}

	var (
		mu         sync.Mutex
		booked     []uuid.UUID
		waitlisted int
		retried    int
	)

	var wg sync.WaitGroup
	for i := 0; i < *storm; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			resp, code, err := book(client, *baseURL, patientID, doctorID, *date, slot)
			if err != nil {
				log.Printf("booking error: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case code == http.StatusCreated:
				booked = append(booked, resp.Appointment.ID)
			case code == http.StatusAccepted:
				waitlisted++
			case code == http.StatusConflict:
				retried++
			default:
				log.Printf("unexpected status %d", code)
			}
		}(patients[i])
	}
	wg.Wait()

	log.Printf("storm result: booked=%d waitlisted=%d lock_conflicts=%d", len(booked), waitlisted, retried)
	if len(booked) > 1 {
		log.Fatalf("EXCLUSIVITY VIOLATED: %d confirmed appointments for one slot", len(booked))
	}
	if len(booked) == 0 {
		log.Println("no booking won the slot (all contended); nothing to drain")
		return
	}

	// Drain: each cancel should promote exactly one waitlisted patient.
	current := booked[0]
	promotions := 0
	for {
		res, err := cancelAppointment(client, *baseURL, current)
		if err != nil {
			log.Fatalf("cancel error: %v", err)
		}
		if res.Promoted == nil {
			break
		}
		promotions++
		current = res.Promoted.ID
	}

	log.Printf("drained waitlist with %d promotions", promotions)
	if promotions != waitlisted {
		log.Fatalf("FIFO DRAIN MISMATCH: %d waitlisted but %d promoted", waitlisted, promotions)
	}
	log.Println("simulation passed")
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func pickCardiologist(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, string, error) {
	var id uuid.UUID
	var slots string
	err := pool.QueryRow(ctx, `
		SELECT id, time_slots FROM doctors
		WHERE LOWER(specialization) = 'cardiologist'
		ORDER BY name, id LIMIT 1
	`).Scan(&id, &slots)
	if err != nil {
		return uuid.Nil, "", err
	}
	first := slots
	if i := strings.IndexByte(slots, ','); i >= 0 {
		first = slots[:i]
	}
	return id, first, nil
}

func book(client *http.Client, baseURL string, patientID, doctorID uuid.UUID, date, slot string) (*bookingResponse, int, error) {
	body, _ := json.Marshal(map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"issue":      "chest pain",
		"date":       date,
		"time_slot":  slot,
	})

	resp, err := client.Post(baseURL+"/bookings", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var out bookingResponse
	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, resp.StatusCode, err
		}
	}
	return &out, resp.StatusCode, nil
}

func cancelAppointment(client *http.Client, baseURL string, id uuid.UUID) (*cancelResponse, error) {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/appointments/%s", baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cancel returned %d: %s", resp.StatusCode, data)
	}

	var out cancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

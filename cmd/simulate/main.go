package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/session-scheduling/internal/db"
)

// simulate drives concurrent walk-in traffic against a running api-server
// and reports how the slot reservation path behaves under contention.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	EstimateRatio float64 // share of requests that only ask for an estimate
	PostgresDSN   string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_URL", "http://localhost:8080"),
		Duration:      30 * time.Second,
		Workers:       16,
		EstimateRatio: 0.3,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
	}

	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SIM_ESTIMATE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EstimateRatio = f
		}
	}

	return cfg
}

type target struct {
	ClinicID   string
	DoctorName string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	avg = total / time.Duration(len(latencies))
	p50 = latencies[len(latencies)/2]
	p95 = latencies[len(latencies)*95/100]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}

	targets, err := loadTargets(context.Background(), pool, 50)
	pool.Close()
	if err != nil {
		log.Fatalf("load targets: %v", err)
	}
	if len(targets) == 0 {
		log.Fatal("no doctors found, run cmd/seed first")
	}

	log.Printf("simulating walk-ins: workers=%d duration=%s targets=%d", cfg.Workers, cfg.Duration, len(targets))

	bookings := &OperationMetrics{}
	estimates := &OperationMetrics{}

	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			worker(runCtx, cfg, targets, bookings, estimates, rand.New(rand.NewSource(seed)))
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	report("walk-in bookings", bookings)
	report("estimates", estimates)
}

func loadTargets(ctx context.Context, pool *pgxpool.Pool, limit int) ([]target, error) {
	rows, err := pool.Query(ctx, `
		SELECT clinic_id, name FROM doctors LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.ClinicID, &t.DoctorName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func worker(ctx context.Context, cfg SimConfig, targets []target, bookings, estimates *OperationMetrics, rng *rand.Rand) {
	client := &http.Client{Timeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t := targets[rng.Intn(len(targets))]
		base := fmt.Sprintf("%s/clinics/%s/doctors/%s",
			cfg.APIBaseURL, url.PathEscape(t.ClinicID), url.PathEscape(t.DoctorName))

		start := time.Now()
		if rng.Float64() < cfg.EstimateRatio {
			status := doGet(ctx, client, base+"/walk-in/estimate")
			estimates.Record(time.Since(start), status)
		} else {
			body, _ := json.Marshal(map[string]string{"patient_name": gofakeit.Name()})
			status := doPost(ctx, client, base+"/walk-in", body)
			bookings.Record(time.Since(start), status)
		}

		time.Sleep(time.Duration(rng.Intn(50)) * time.Millisecond)
	}
}

func doGet(ctx context.Context, client *http.Client, u string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0
	}
	return do(client, req)
}

func doPost(ctx context.Context, client *http.Client, u string, body []byte) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func do(client *http.Client, req *http.Request) int {
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func report(name string, m *OperationMetrics) {
	avg, p50, p95 := m.Stats()
	log.Printf("%s: total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
		name,
		atomic.LoadInt64(&m.Total),
		atomic.LoadInt64(&m.Success),
		atomic.LoadInt64(&m.Conflict),
		atomic.LoadInt64(&m.Error),
		avg, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

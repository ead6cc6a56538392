// Telemetry simulator for exercising a running Mechasense server.
//
// Usage:
//
//	go run ./cmd/simulator -url http://localhost:8080 -count 500 -anomaly 0.05
//
// This tool:
//  1. Registers the target motor (idempotent)
//  2. Generates readings around nominal values, with a share of anomalies
//  3. Posts them to /ingest from concurrent workers
//  4. Summarises statuses, alerts raised and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Nominal operating point of the simulated motor. The voltage sits under the
// 200 V warning band.
const (
	baseVoltage   = 195.0
	baseCurrent   = 3.5
	baseTemp      = 65.0
	baseVibration = 2.0
)

// Reading is the /ingest request body.
type Reading struct {
	MotorID             string    `json:"motorId"`
	Timestamp           time.Time `json:"timestamp"`
	GridVoltage         float64   `json:"gridVoltage"`
	MotorCurrent        float64   `json:"motorCurrent"`
	PowerConsumption    float64   `json:"powerConsumption"`
	PowerFactor         float64   `json:"powerFactor"`
	DailyEnergyKWh      float64   `json:"dailyEnergyKwh"`
	GridFrequency       float64   `json:"gridFrequency"`
	VibrationRms        float64   `json:"vibrationRms"`
	FaultFrequency      float64   `json:"faultFrequency"`
	RotorUnbalanceScore float64   `json:"rotorUnbalanceScore"`
	BearingHealthScore  float64   `json:"bearingHealthScore"`
	MotorSurfaceTemp    float64   `json:"motorSurfaceTemp"`
	ThermalAnomalyIndex float64   `json:"thermalAnomalyIndex"`
	BearingTemp         float64   `json:"bearingTemp"`
	DustDensity         float64   `json:"dustDensity"`
	SoilingLossPercent  float64   `json:"soilingLossPercent"`

	anomaly bool
}

// IngestResponse is the subset of the /ingest response the simulator reads.
type IngestResponse struct {
	ReadingID       string `json:"readingId"`
	Status          string `json:"status"`
	AlertsGenerated int    `json:"alertsGenerated"`
}

// Metrics tracks simulation results
type Metrics struct {
	Sent      int64
	Errors    int64
	Throttled int64
	Anomalies int64
	Alerts    int64

	mu        sync.Mutex
	statuses  map[string]int
	latencies []time.Duration
}

func (m *Metrics) record(status string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status]++
	m.latencies = append(m.latencies, latency)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Mechasense base URL")
	tenantID := flag.String("tenant", "simulator", "Tenant ID for requests")
	motorID := flag.String("motor", "sim-motor-1", "Motor ID to report for")
	count := flag.Int("count", 100, "Number of readings to send")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	anomalyRate := flag.Float64("anomaly", 0.05, "Share of anomalous readings (0.0-1.0)")
	spacing := flag.Duration("spacing", 5*time.Minute, "Simulated time between readings")
	verbose := flag.Bool("verbose", false, "Print each reading result")
	flag.Parse()

	if *count <= 0 || *workers <= 0 || *anomalyRate < 0 || *anomalyRate > 1 {
		fmt.Println("Usage: simulator [-url http://localhost:8080] [-count 100] [-anomaly 0.05]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("MECHASENSE TELEMETRY SIMULATOR")
	fmt.Printf("\nURL:          %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Motor ID:     %s\n", *motorID)
	fmt.Printf("Readings:     %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Anomaly Rate: %.2f\n", *anomalyRate)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Mechasense not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run ./cmd/mechasense serve")
		os.Exit(1)
	}
	fmt.Println("Server is healthy")

	if err := registerMotor(client, *baseURL, *tenantID, *motorID); err != nil {
		fmt.Printf("ERROR: failed to register motor: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Motor %s registered\n", *motorID)

	readings := generateReadings(*motorID, *count, *anomalyRate, *spacing, time.Now().UTC())

	fmt.Printf("\nSending %d readings with %d workers...\n", len(readings), *workers)
	start := time.Now()
	metrics := run(client, readings, *baseURL, *tenantID, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func registerMotor(client *http.Client, baseURL, tenantID, motorID string) error {
	body, _ := json.Marshal(map[string]any{
		"id":            motorID,
		"name":          "Simulated motor " + motorID,
		"location":      "Simulator",
		"ratedPowerKw":  0.75,
		"ratedCurrentA": baseCurrent,
		"ratedVoltageV": 220.0,
	})
	resp, err := post(client, baseURL+"/motors", tenantID, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func between(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

// generateReadings spreads readings evenly up to now, oldest first.
func generateReadings(motorID string, n int, anomalyRate float64, spacing time.Duration, now time.Time) []Reading {
	readings := make([]Reading, n)
	for i := range readings {
		anomaly := rand.Float64() < anomalyRate
		r := Reading{
			MotorID:             motorID,
			Timestamp:           now.Add(-time.Duration(n-1-i) * spacing),
			GridVoltage:         between(baseVoltage-4, baseVoltage+4),
			MotorCurrent:        between(baseCurrent-0.5, baseCurrent+0.4),
			PowerConsumption:    between(700, 900),
			PowerFactor:         between(0.86, 0.95),
			DailyEnergyKWh:      between(15, 25) + float64(i)*0.05,
			GridFrequency:       between(49.8, 50.2),
			VibrationRms:        between(baseVibration-0.5, baseVibration+0.5),
			FaultFrequency:      between(45, 55),
			RotorUnbalanceScore: between(85, 98),
			BearingHealthScore:  between(80, 95),
			MotorSurfaceTemp:    between(baseTemp-5, baseTemp+4),
			ThermalAnomalyIndex: between(0, 20),
			BearingTemp:         between(baseTemp-3, baseTemp+3),
			DustDensity:         between(20, 45),
			SoilingLossPercent:  between(1, 8),
			anomaly:             anomaly,
		}
		if anomaly {
			r.GridVoltage = between(210, 235)
			r.MotorCurrent = between(4.5, 6)
			r.PowerFactor = between(0.65, 0.75)
			r.VibrationRms = between(3.5, 5)
			r.MotorSurfaceTemp = between(75, 90)
			r.BearingTemp = between(70, 88)
			r.DustDensity = between(80, 120)
		}
		readings[i] = r
	}
	return readings
}

func run(client *http.Client, readings []Reading, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{statuses: make(map[string]int)}

	work := make(chan Reading, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range work {
				if r.anomaly {
					atomic.AddInt64(&metrics.Anomalies, 1)
				}

				start := time.Now()
				result, err := ingest(client, baseURL, tenantID, r, metrics)
				latency := time.Since(start)
				atomic.AddInt64(&metrics.Sent, 1)

				if err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", r.Timestamp.Format(time.RFC3339), err)
					}
					continue
				}

				atomic.AddInt64(&metrics.Alerts, int64(result.AlertsGenerated))
				metrics.record(result.Status, latency)

				if verbose {
					fmt.Printf("%s | anomaly: %-5v | status: %-8s | alerts: %d | %v\n",
						r.Timestamp.Format(time.RFC3339), r.anomaly, result.Status, result.AlertsGenerated, latency.Round(time.Microsecond))
				}
			}
		}()
	}

	for _, r := range readings {
		work <- r
	}
	close(work)
	wg.Wait()

	return metrics
}

// ingest posts one reading, waiting out the server's rate limit up to three times.
func ingest(client *http.Client, baseURL, tenantID string, r Reading, m *Metrics) (*IngestResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		resp, err := post(client, baseURL+"/ingest", tenantID, body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < 3 {
			atomic.AddInt64(&m.Throttled, 1)
			wait, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			time.Sleep(time.Duration(max(wait, 1)) * time.Second)
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		var result IngestResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, err
		}
		return &result, nil
	}
}

func post(client *http.Client, url, tenantID string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	return client.Do(req)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nSIMULATION RESULTS")

	fmt.Printf("\nREADINGS\n")
	fmt.Printf("   Sent:        %d\n", m.Sent)
	fmt.Printf("   Anomalous:   %d\n", m.Anomalies)
	fmt.Printf("   Errors:      %d\n", m.Errors)
	fmt.Printf("   Throttled:   %d\n", m.Throttled)

	fmt.Printf("\nINSPECTIONS\n")
	for _, status := range []string{"normal", "warning", "critical", "accepted"} {
		if n := m.statuses[status]; n > 0 {
			fmt.Printf("   %-11s  %d\n", status+":", n)
		}
	}
	fmt.Printf("   Alerts:      %d\n", m.Alerts)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if len(m.latencies) > 0 {
		slices.Sort(m.latencies)
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		p95 := m.latencies[(len(m.latencies)*95)/100]
		if len(m.latencies) < 20 {
			p95 = m.latencies[len(m.latencies)-1]
		}
		fmt.Printf("   Avg Latency:     %v\n", (total / time.Duration(len(m.latencies))).Round(time.Microsecond))
		fmt.Printf("   P95 Latency:     %v\n", p95.Round(time.Microsecond))
		fmt.Printf("   Throughput:      %.2f readings/sec\n", float64(m.Sent)/duration.Seconds())
	}
	fmt.Println()
}

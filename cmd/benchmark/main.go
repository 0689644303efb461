// Benchmark tool for testing Kestrel against labeled claim data.
//
// Usage:
//   go run cmd/benchmark/main.go -generate 5000 -url http://localhost:8080
//   go run cmd/benchmark/main.go -csv /path/to/claims.csv -url http://localhost:8080
//
// This tool:
//   1. Generates synthetic claims with fraud labels (or reads a labeled CSV)
//   2. Submits each claim to Kestrel and triggers a scoring pass
//   3. Compares Kestrel's routing (flagged vs auto-approved) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV format is: claimant_id,policy_number,category,amount,claimant_age,
// policy_duration_months,is_fraud
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClaim is a claim submission paired with its ground-truth label.
type LabeledClaim struct {
	ClaimantID           string
	PolicyNumber         string
	Category             string
	Amount               float64
	ClaimantAge          int
	PolicyDurationMonths int
	IsFraud              bool
}

// SubmitRequest is the Kestrel claim submission format
type SubmitRequest struct {
	ClaimantID           string  `json:"claimantId"`
	PolicyNumber         string  `json:"policyNumber"`
	Category             string  `json:"category"`
	Amount               float64 `json:"amount"`
	Description          string  `json:"description"`
	ClaimantAge          int     `json:"claimantAge"`
	PolicyDurationMonths int     `json:"policyDurationMonths"`
}

// ClaimResponse is the subset of the claim document the benchmark reads
type ClaimResponse struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Assessments []struct {
		Score int    `json:"score"`
		Tier  string `json:"tier"`
	} `json:"assessments"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud routed to review
	FalsePositives int64 // Legit routed to review
	TrueNegatives  int64 // Legit auto-approved
	FalseNegatives int64 // Fraud auto-approved (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalLegit     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

var categories = []string{"motor", "property", "health", "travel", "life"}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled claims CSV file")
	generate := flag.Int("generate", 0, "Generate N synthetic labeled claims instead of reading a CSV")
	fraudRate := flag.Float64("fraud-rate", 0.15, "Fraction of generated claims that are fraudulent")
	seed := flag.Int64("seed", 42, "RNG seed for synthetic claim generation")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" && *generate == 0 {
		fmt.Println("Usage: benchmark -generate 5000 [-url http://localhost:8080]")
		fmt.Println("       benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Claim Fraud Detection            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	if *csvPath != "" {
		fmt.Printf("\nCSV File:    %s\n", *csvPath)
	} else {
		fmt.Printf("\nSynthetic:   %d claims (fraud rate %.2f, seed %d)\n", *generate, *fraudRate, *seed)
	}
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running in automated mode:")
		fmt.Println("  KESTREL_MODE=automated go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Load claims
	var claims []LabeledClaim
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading claims from %s...\n", *csvPath)
		claims, err = readClaimsCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		claims = generateClaims(*generate, *fraudRate, *seed)
	}
	fmt.Printf("✓ Loaded %d claims\n", len(claims))

	// Count fraud vs legit
	fraudCount := 0
	for _, c := range claims {
		if c.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud: %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(claims)))
	fmt.Printf("  - Legit: %d (%.2f%%)\n", len(claims)-fraudCount, 100*float64(len(claims)-fraudCount)/float64(len(claims)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(claims, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateClaims produces a labeled synthetic dataset. Fraudulent claims are
// drawn from the high-risk feature ranges (inflated amounts, fresh policies,
// suspiciously round figures) with enough noise that a fraction of them look
// benign, so recall below 1.0 is expected.
func generateClaims(n int, fraudRate float64, seed int64) []LabeledClaim {
	rng := rand.New(rand.NewSource(seed))
	claims := make([]LabeledClaim, 0, n)

	for i := 0; i < n; i++ {
		c := LabeledClaim{
			ClaimantID:   fmt.Sprintf("claimant-%04d", rng.Intn(n/2+1)),
			PolicyNumber: fmt.Sprintf("POL-%06d", rng.Intn(900000)+100000),
			Category:     categories[rng.Intn(len(categories))],
		}

		if rng.Float64() < fraudRate {
			c.IsFraud = true
			// Inflated and often round amounts on young policies
			c.Amount = float64(rng.Intn(9)+2) * 100000
			c.PolicyDurationMonths = rng.Intn(8)
			if rng.Float64() < 0.5 {
				c.ClaimantAge = 18 + rng.Intn(7)
			} else {
				c.ClaimantAge = 66 + rng.Intn(20)
			}
			// Some fraud looks ordinary
			if rng.Float64() < 0.2 {
				c.Amount = 10000 + rng.Float64()*40000
				c.PolicyDurationMonths = 12 + rng.Intn(48)
			}
		} else {
			c.Amount = 1000 + rng.Float64()*90000
			c.ClaimantAge = 25 + rng.Intn(40)
			c.PolicyDurationMonths = 12 + rng.Intn(120)
			// Some legit claims look risky
			if rng.Float64() < 0.05 {
				c.Amount = 150000 + rng.Float64()*200000
				c.PolicyDurationMonths = rng.Intn(12)
			}
		}

		claims = append(claims, c)
	}

	return claims
}

func readClaimsCSV(path string, limit int) ([]LabeledClaim, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var claims []LabeledClaim

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)
		age, _ := strconv.Atoi(record[colIndex["claimant_age"]])
		duration, _ := strconv.Atoi(record[colIndex["policy_duration_months"]])

		claims = append(claims, LabeledClaim{
			ClaimantID:           record[colIndex["claimant_id"]],
			PolicyNumber:         record[colIndex["policy_number"]],
			Category:             record[colIndex["category"]],
			Amount:               amount,
			ClaimantAge:          age,
			PolicyDurationMonths: duration,
			IsFraud:              record[colIndex["is_fraud"]] == "1",
		})

		if limit > 0 && len(claims) >= limit {
			break
		}
	}

	return claims, nil
}

func runBenchmark(claims []LabeledClaim, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledClaim, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := scoreClaim(client, baseURL, tenantID, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.ClaimantID, err)
					}
					continue
				}

				// Track actual labels
				if c.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLegit, 1)
				}

				// Anything the engine did not auto-approve counts as flagged
				predicted := result.State != "approved"
				actual := c.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					score := -1
					tier := "?"
					if len(result.Assessments) > 0 {
						last := result.Assessments[len(result.Assessments)-1]
						score = last.Score
						tier = last.Tier
					}
					fmt.Printf("%s %-14s | Cat: %-8s | Amount: $%12.2f | Fraud: %-5v | Kestrel: %-12s | Score: %3d (%s)\n",
						status,
						c.ClaimantID,
						c.Category,
						c.Amount,
						c.IsFraud,
						result.State,
						score,
						tier,
					)
				}
			}
		}()
	}

	// Send work
	for _, c := range claims {
		work <- c
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

// scoreClaim submits a claim and runs a synchronous scoring pass, returning
// the routed claim.
func scoreClaim(client *http.Client, baseURL, tenantID string, c LabeledClaim) (*ClaimResponse, error) {
	req := SubmitRequest{
		ClaimantID:           c.ClaimantID,
		PolicyNumber:         c.PolicyNumber,
		Category:             c.Category,
		Amount:               c.Amount,
		Description:          "benchmark claim submission",
		ClaimantAge:          c.ClaimantAge,
		PolicyDurationMonths: c.PolicyDurationMonths,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	submitReq, err := http.NewRequest(http.MethodPost, baseURL+"/claims", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	submitReq.Header.Set("Content-Type", "application/json")
	submitReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(submitReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("submit: status %d", resp.StatusCode)
	}

	var submitted ClaimResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return nil, err
	}

	scoreReq, err := http.NewRequest(http.MethodPost, baseURL+"/claims/"+submitted.ID+"/score", nil)
	if err != nil {
		return nil, err
	}
	scoreReq.Header.Set("X-Tenant-ID", tenantID)

	scoreResp, err := client.Do(scoreReq)
	if err != nil {
		return nil, err
	}
	defer scoreResp.Body.Close()

	if scoreResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("score: status %d", scoreResp.StatusCode)
	}

	var result ClaimResponse
	if err := json.NewDecoder(scoreResp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Legit:      %d\n", m.TotalLegit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  Flagged    Approved")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged claims, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Caught:      %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Approved:    %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalLegit > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalLegit) * 100
		fmt.Printf("   Legit Held Up:     %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLegit, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms (submit + score)\n", avgMs)
		fmt.Printf("   Throughput:       %.2f claims/sec\n", cps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being approved!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - held claims are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many legit claims held up")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}

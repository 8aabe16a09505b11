/**
 * @description
 * Operator script that triggers obligation generation on a running billing service
 * through its internal API. Useful after onboarding residents mid-period or when a
 * scheduled run was missed.
 *
 * Usage:
 *   go run ./cmd/billing-trigger estate <estate-id>
 *   go run ./cmd/billing-trigger cycle <monthly|annual>
 *
 * @dependencies
 * - github.com/joho/godotenv: loads .env files.
 * - Environment variables: BILLING_SERVICE_URL, INTERNAL_API_KEY
 */
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type generationResult struct {
	ServicesEvaluated  int `json:"services_evaluated"`
	ServicesFailed     int `json:"services_failed"`
	ObligationsCreated int `json:"obligations_created"`
}

func main() {
	if len(os.Args) != 3 {
		fmt.Println("Usage: go run ./cmd/billing-trigger estate <estate-id>")
		fmt.Println("       go run ./cmd/billing-trigger cycle <monthly|annual>")
		os.Exit(1)
	}

	// Load stops at the first missing file, so each candidate is tried on its own.
	for _, file := range []string{".env", "../.env"} {
		_ = godotenv.Load(file)
	}

	baseURL := strings.TrimSuffix(os.Getenv("BILLING_SERVICE_URL"), "/")
	apiKey := os.Getenv("INTERNAL_API_KEY")
	if apiKey == "" {
		log.Fatal("INTERNAL_API_KEY environment variable is required")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
		fmt.Println("Using default service URL:", baseURL)
	}

	path, description, err := targetPath(os.Args[1], os.Args[2])
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("About to generate obligations for %s on %s.\n", description, baseURL)
	if !confirm(os.Stdin) {
		fmt.Println("Generation cancelled.")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := trigger(ctx, baseURL+path, apiKey)
	if err != nil {
		log.Fatalf("Failed to trigger generation: %v", err)
	}

	fmt.Println("Generation finished:")
	fmt.Printf("  Services evaluated: %d\n", result.ServicesEvaluated)
	fmt.Printf("  Services failed: %d\n", result.ServicesFailed)
	fmt.Printf("  Obligations created: %d\n", result.ObligationsCreated)
}

func targetPath(kind, value string) (string, string, error) {
	switch kind {
	case "estate":
		estateID, err := uuid.Parse(value)
		if err != nil {
			return "", "", fmt.Errorf("estate id must be a UUID: %w", err)
		}
		return fmt.Sprintf("/internal/estates/%s/billing/generate", estateID), "estate " + estateID.String(), nil
	case "cycle":
		cycle := strings.ToLower(strings.TrimSpace(value))
		if cycle != "monthly" && cycle != "annual" {
			return "", "", fmt.Errorf("cycle must be monthly or annual, got %q", value)
		}
		return "/internal/billing/run?cycle=" + url.QueryEscape(cycle), "the " + cycle + " run", nil
	default:
		return "", "", fmt.Errorf("unknown target %q, expected estate or cycle", kind)
	}
}

func confirm(in io.Reader) bool {
	fmt.Print("Continue? (yes/no): ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

func trigger(ctx context.Context, endpoint, apiKey string) (*generationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Internal-API-Key", apiKey)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result generationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

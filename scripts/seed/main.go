// Package main implements a standalone seed script that populates a running
// UniMarket deployment with demo catalog data. It talks to the marketplace
// service over HTTP using the gateway identity headers, so seeded data goes
// through the same validation as real traffic.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func httpPost(url, userID, role string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", userID)
	req.Header.Set("X-User-Role", role)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return result, nil
}

var categories = []string{"WORKSHOP_TICKET", "EVENT_TICKET", "BOOK", "MERCHANDISE", "SERVICE", "OTHER"}

var productNames = map[string][]string{
	"WORKSHOP_TICKET": {"Rust Workshop Ticket", "3D Printing Workshop", "Career Writing Workshop"},
	"EVENT_TICKET":    {"Spring Gala Ticket", "Hackathon Entry", "Alumni Dinner Seat"},
	"BOOK":            {"Intro to Databases", "Linear Algebra Notes", "Campus History Vol. 2"},
	"MERCHANDISE":     {"University Hoodie", "Engineering Mug", "Laptop Sticker Pack"},
	"SERVICE":         {"Tutoring Hour", "Poster Printing", "Bike Repair Voucher"},
	"OTHER":           {"Locker Rental", "Parking Pass", "Lab Goggles"},
}

func main() {
	baseURL := getEnv("MARKETPLACE_URL", "http://localhost:8081")
	count := 24

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	created := 0

	for i := 0; i < count; i++ {
		category := categories[rng.Intn(len(categories))]
		names := productNames[category]
		sellerID := fmt.Sprintf("faculty-%d", rng.Intn(4)+1)

		body := map[string]any{
			"name":        fmt.Sprintf("%s #%d", names[rng.Intn(len(names))], i+1),
			"description": "Seeded demo listing",
			"price":       int64(rng.Intn(9000) + 500),
			"stock":       rng.Intn(40) + 5,
			"category":    category,
		}

		if _, err := httpPost(baseURL+"/api/v1/marketplace/products", sellerID, "FACULTY", body); err != nil {
			log.Printf("seed product %d failed: %v", i+1, err)
			continue
		}
		created++
	}

	log.Printf("seeded %d/%d products against %s", created, count, baseURL)
}

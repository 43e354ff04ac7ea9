// Minimal end-to-end integration check for the Agora API: submit one query,
// read the status, and tail the transcript stream from Redis.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	baseURL  = getenv("API_URL", "http://localhost:8080/v1")
	redisURL = getenv("REDIS_URL", "redis://localhost:6379/0")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	ctx := context.Background()

	status()
	query("Should the council adopt a written code of conduct?")
	status()
	tailTranscript(ctx)
}

func query(prompt string) {
	body, _ := json.Marshal(map[string]string{"prompt": prompt})
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(baseURL+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		WinnerID string   `json:"winnerId"`
		Response string   `json:"response"`
		Failures []string `json:"failures"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("query decode: %v", err)
	}
	fmt.Printf("query -> %d, winner %s, %d failures\n%s\n", resp.StatusCode, result.WinnerID, len(result.Failures), result.Response)
}

func status() {
	resp, err := http.Get(baseURL + "/status")
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()

	var s struct {
		Members    []json.RawMessage `json:"members"`
		Candidates []json.RawMessage `json:"candidates"`
		Pool       struct {
			TargetSize          int `json:"targetSize"`
			RoundsSinceEviction int `json:"roundsSinceEviction"`
		} `json:"pool"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		log.Fatalf("status decode: %v", err)
	}
	fmt.Printf("status -> members=%d candidates=%d target=%d quiet=%d\n",
		len(s.Members), len(s.Candidates), s.Pool.TargetSize, s.Pool.RoundsSinceEviction)
}

func tailTranscript(ctx context.Context) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("transcript: %v (skipping)", err)
		return
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	entries, err := rdb.XRevRangeN(ctx, "agora.transcript", "+", "-", 5).Result()
	if err != nil {
		log.Printf("transcript read: %v (skipping)", err)
		return
	}
	fmt.Printf("transcript tail (%d entries):\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  [%v] %v: %.80v\n", e.Values["round"], e.Values["participant"], e.Values["response"])
	}
}

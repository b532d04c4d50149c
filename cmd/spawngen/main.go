// Command spawngen generates synthetic spawn webhooks against a running
// instance. Useful for load checks and for warming the rarity census.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultRunTimeout = 10 * time.Minute

var seenTypes = []string{"wild", "nearby_stop", "nearby_cell"}

type message struct {
	EncounterID   string  `json:"encounter_id"`
	PokemonID     int     `json:"pokemon_id"`
	Form          *int    `json:"form,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	SpawnpointID  string  `json:"spawnpoint_id"`
	SeenType      string  `json:"seen_type"`
	DisappearTime int64   `json:"disappear_time"`
}

type envelope struct {
	Type    string  `json:"type"`
	Message message `json:"message"`
}

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:7070", "Base URL of the service")
		endpoint   = flag.String("endpoint", "/webhook", "Target endpoint (/webhook or /webhook/census)")
		numEvents  = flag.Int("events", 100, "Number of events to send")
		batchSize  = flag.Int("batch", 10, "Events per webhook POST")
		speciesMax = flag.Int("species-max", 500, "Species ids are drawn from [1, species-max]")
		lat        = flag.Float64("lat", 40.7580, "Center latitude")
		lon        = flag.Float64("lon", -73.9855, "Center longitude")
		radius     = flag.Float64("radius", 2000, "Scatter radius in meters")
		despawn    = flag.Duration("despawn", 20*time.Minute, "Despawn horizon per event")
		interval   = flag.Duration("interval", 100*time.Millisecond, "Delay between batches")
		authHeader = flag.String("auth-header", "", "Static auth header as 'Name: value'")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 30 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	sent := 0
	for sent < *numEvents {
		n := *batchSize
		if rest := *numEvents - sent; rest < n {
			n = rest
		}
		batch := make([]envelope, n)
		for i := range batch {
			batch[i] = envelope{Type: "pokemon", Message: randomMessage(rng, *speciesMax, *lat, *lon, *radius, *despawn)}
		}
		if err := post(ctx, client, *baseURL+*endpoint, *authHeader, batch); err != nil {
			os.Stderr.WriteString("post failed: " + err.Error() + "\n")
			return
		}
		sent += n
		fmt.Printf("sent %d/%d\n", sent, *numEvents)
		time.Sleep(*interval)
	}
}

func randomMessage(rng *rand.Rand, speciesMax int, lat, lon, radius float64, despawn time.Duration) message {
	// Uniform scatter inside the radius.
	dist := radius * math.Sqrt(rng.Float64())
	bearing := rng.Float64() * 2 * math.Pi
	dLat := dist * math.Cos(bearing) / 111320.0
	dLon := dist * math.Sin(bearing) / (111320.0 * math.Cos(lat*math.Pi/180))

	return message{
		EncounterID:   uuid.NewString(),
		PokemonID:     1 + rng.Intn(speciesMax),
		Latitude:      lat + dLat,
		Longitude:     lon + dLon,
		SpawnpointID:  uuid.NewString(),
		SeenType:      seenTypes[rng.Intn(len(seenTypes))],
		DisappearTime: time.Now().Add(despawn).Unix(),
	}
}

func post(ctx context.Context, client *http.Client, url, authHeader string, batch []envelope) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if name, value, ok := strings.Cut(authHeader, ":"); ok {
		req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

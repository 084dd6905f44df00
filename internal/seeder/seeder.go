// Package seeder generates realistic synthetic event submissions for
// load-testing a collector.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/tracklight-systems/tracklight/internal/batcher"
)

type mixEntry struct {
	event    string
	category string
	action   string
	weight   int
}

// eventMix defines the generated traffic profile. Weights are relative.
var eventMix = []mixEntry{
	{"page_view", "navigation", "view", 40},
	{"click", "interaction", "click", 25},
	{"hover", "interaction", "hover", 10},
	{"scroll", "interaction", "scroll", 10},
	{"add_to_cart", "ecommerce", "add", 8},
	{"checkout", "ecommerce", "checkout", 4},
	{"purchase", "ecommerce", "purchase", 3},
}

var pages = []string{
	"/", "/products", "/search", "/cart", "/checkout", "/account", "/orders",
	"/products/sku-1042", "/blog/launch-notes",
}

// Config controls generation.
type Config struct {
	Tenants int
	Seed    int64
}

// Generator produces synthetic submissions.
type Generator struct {
	faker   *gofakeit.Faker
	rng     *rand.Rand
	tenants []string
}

// New creates a generator with a fixed tenant pool. A zero seed produces
// non-deterministic output.
func New(cfg Config) *Generator {
	if cfg.Tenants <= 0 {
		cfg.Tenants = 3
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	faker := gofakeit.New(seed)
	tenants := make([]string, cfg.Tenants)
	for i := range tenants {
		tenants[i] = fmt.Sprintf("tenant-%s", faker.LetterN(6))
	}

	return &Generator{
		faker:   faker,
		rng:     rand.New(rand.NewSource(seed)),
		tenants: tenants,
	}
}

// Next returns one synthetic submission.
func (g *Generator) Next() batcher.Submission {
	mix := g.pick()

	sub := batcher.Submission{
		Event:     mix.event,
		Category:  mix.category,
		Action:    mix.action,
		Page:      pages[g.rng.Intn(len(pages))],
		UserAgent: g.faker.UserAgent(),
		TenantID:  g.tenants[g.rng.Intn(len(g.tenants))],
	}

	switch mix.category {
	case "ecommerce":
		price := g.faker.Price(5, 500)
		sub.Value = &price
		sub.Label = fmt.Sprintf("order_%s", g.faker.LetterN(8))
	case "interaction":
		sub.Label = fmt.Sprintf("#%s", g.faker.Word())
	}

	return sub
}

func (g *Generator) pick() mixEntry {
	total := 0
	for _, m := range eventMix {
		total += m.weight
	}
	n := g.rng.Intn(total)
	for _, m := range eventMix {
		n -= m.weight
		if n < 0 {
			return m
		}
	}
	return eventMix[0]
}

// Runner posts generated submissions to a collector endpoint.
type Runner struct {
	gen        *Generator
	target     string
	httpClient *http.Client
}

// NewRunner creates a runner posting to target's collect endpoint.
func NewRunner(gen *Generator, target string) *Runner {
	return &Runner{
		gen:    gen,
		target: target,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Run posts count submissions, pausing interval between posts. Returns the
// number delivered successfully.
func (r *Runner) Run(ctx context.Context, count int, interval time.Duration) (int, error) {
	sent := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := r.post(ctx, r.gen.Next()); err != nil {
			return sent, err
		}
		sent++

		if interval > 0 && i < count-1 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return sent, nil
}

func (r *Runner) post(ctx context.Context, sub batcher.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.target+"/api/v1/collect", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector response status %d", resp.StatusCode)
	}
	return nil
}

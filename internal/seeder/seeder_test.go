package seeder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklight-systems/tracklight/internal/batcher"
)

func TestGenerator_Deterministic(t *testing.T) {
	a := New(Config{Tenants: 3, Seed: 42})
	b := New(Config{Tenants: 3, Seed: 42})

	for i := 0; i < 50; i++ {
		subA, subB := a.Next(), b.Next()
		require.Equal(t, subA.Event, subB.Event, "submission %d diverged", i)
		require.Equal(t, subA.TenantID, subB.TenantID, "submission %d diverged", i)
		require.Equal(t, subA.Page, subB.Page, "submission %d diverged", i)
	}
}

func TestGenerator_TenantPool(t *testing.T) {
	g := New(Config{Tenants: 2, Seed: 7})

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[g.Next().TenantID] = true
	}
	assert.LessOrEqual(t, len(seen), 2)
	for id := range seen {
		assert.Contains(t, id, "tenant-")
	}
}

func TestGenerator_FieldShape(t *testing.T) {
	g := New(Config{Tenants: 3, Seed: 99})

	sawEcommerce := false
	for i := 0; i < 300; i++ {
		sub := g.Next()

		assert.NotEmpty(t, sub.Event)
		assert.NotEmpty(t, sub.Category)
		assert.NotEmpty(t, sub.Action)
		assert.NotEmpty(t, sub.Page)
		assert.NotEmpty(t, sub.UserAgent)

		if sub.Category == "ecommerce" {
			sawEcommerce = true
			require.NotNil(t, sub.Value)
			assert.Greater(t, *sub.Value, 0.0)
			assert.Contains(t, sub.Label, "order_")
		}
	}
	assert.True(t, sawEcommerce, "300 draws should include ecommerce events")
}

func TestRunner_PostsToCollectEndpoint(t *testing.T) {
	var received []batcher.Submission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/collect", r.URL.Path)
		var sub batcher.Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		received = append(received, sub)
	}))
	defer server.Close()

	runner := NewRunner(New(Config{Tenants: 2, Seed: 1}), server.URL)
	sent, err := runner.Run(context.Background(), 5, 0)

	require.NoError(t, err)
	assert.Equal(t, 5, sent)
	assert.Len(t, received, 5)
}

func TestRunner_StopsOnServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 2 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	runner := NewRunner(New(Config{Tenants: 1, Seed: 1}), server.URL)
	sent, err := runner.Run(context.Background(), 10, 0)

	require.Error(t, err)
	assert.Equal(t, 2, sent)
}

func TestRunner_HonoursContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(New(Config{Tenants: 1, Seed: 1}), server.URL)
	sent, err := runner.Run(ctx, 10, 0)

	require.Error(t, err)
	assert.Equal(t, 0, sent)
}

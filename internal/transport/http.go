package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tracklight-systems/tracklight/internal/models"
)

// batchPath is the fixed ingestion path batches are posted to.
const batchPath = "/api/v1/batch"

// HTTPGate delivers envelopes with a JSON POST to an ingestion endpoint.
type HTTPGate struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGate creates an HTTP gate. timeout bounds the whole request,
// including unload-time best-effort sends.
func NewHTTPGate(baseURL string, timeout time.Duration) *HTTPGate {
	return &HTTPGate{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the envelope. A non-2xx status or a transport error is a
// failure.
func (g *HTTPGate) Send(ctx context.Context, envelope *models.BatchEnvelope) error {
	if g == nil {
		return fmt.Errorf("http gate not configured")
	}

	bodyBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+batchPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("ingest response status %d: %s", resp.StatusCode, errBody["message"])
	}

	return nil
}

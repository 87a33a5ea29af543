// internal/inference/httpbackend.go
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prediagnostic-back/pkg/imaging"
)

// HTTPBackend runs the forward pass against an external model server.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type forwardRequest struct {
	Shape [4]int    `json:"shape"`
	Data  []float32 `json:"data"`
}

type forwardResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

// Load pings the model server's health endpoint.
func (b *HTTPBackend) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health returned %d", resp.StatusCode)
	}
	return nil
}

// Forward posts the tensor and returns the probability row for the single
// batch entry.
func (b *HTTPBackend) Forward(ctx context.Context, t *imaging.Tensor) ([]float64, error) {
	body, err := json.Marshal(forwardRequest{Shape: t.Shape, Data: t.Data})
	if err != nil {
		return nil, fmt.Errorf("encode tensor: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, string(payload))
	}

	var out forwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(out.Predictions) == 0 {
		return nil, fmt.Errorf("model response contained no predictions")
	}
	return out.Predictions[0], nil
}

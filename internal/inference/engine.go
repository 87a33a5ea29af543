// internal/inference/engine.go
package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"prediagnostic-back/internal/apperrors"
	"prediagnostic-back/pkg/imaging"
)

// Result is the outcome of one forward pass.
type Result struct {
	// Probabilities is the model's raw output, one entry per configured
	// class label. Not renormalized; depending on the architecture it may
	// not sum to exactly 1.
	Probabilities  []float64 `json:"probabilities"`
	PredictedIndex int       `json:"predicted_index"`
	PredictedLabel string    `json:"predicted_label"`
	Confidence     float64   `json:"confidence"`
}

// Backend runs the forward pass for a normalized tensor.
type Backend interface {
	Forward(ctx context.Context, t *imaging.Tensor) ([]float64, error)
}

// Engine wraps a loaded classification model. It is constructed once,
// loaded once, and safe for sequential predictions without reloading; the
// loaded model is treated as read-only shared state.
type Engine struct {
	backend Backend
	labels  []string
	loaded  atomic.Bool
}

func NewEngine(backend Backend, labels []string) *Engine {
	return &Engine{backend: backend, labels: labels}
}

// Load readies the engine. Backends that need warmup (such as pinging a
// model server) expose their own Load; everything else is considered ready
// immediately.
func (e *Engine) Load(ctx context.Context) error {
	if l, ok := e.backend.(interface{ Load(context.Context) error }); ok {
		if err := l.Load(ctx); err != nil {
			return fmt.Errorf("load model backend: %w", err)
		}
	}
	e.loaded.Store(true)
	return nil
}

// Loaded reports whether the engine is ready to predict.
func (e *Engine) Loaded() bool {
	return e.loaded.Load()
}

// Labels returns the configured class label list.
func (e *Engine) Labels() []string {
	return e.labels
}

// Predict runs the forward pass and derives the argmax label. Ties break
// to the lowest index.
func (e *Engine) Predict(ctx context.Context, t *imaging.Tensor) (*Result, error) {
	if !e.loaded.Load() {
		return nil, apperrors.ErrModelNotLoaded
	}

	probs, err := e.backend.Forward(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInference, err)
	}
	if len(probs) != len(e.labels) {
		return nil, fmt.Errorf("%w: model returned %d probabilities for %d labels",
			apperrors.ErrInference, len(probs), len(e.labels))
	}

	idx := 0
	for i, p := range probs {
		if p > probs[idx] {
			idx = i
		}
	}

	return &Result{
		Probabilities:  probs,
		PredictedIndex: idx,
		PredictedLabel: e.labels[idx],
		Confidence:     probs[idx],
	}, nil
}

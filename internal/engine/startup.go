package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// EnsureReady checks that a local provider is reachable and installs any of
// models it is missing, writing progress to w.
func EnsureReady(ctx context.Context, m ModelManager, models []string, w io.Writer) error {
	if !m.IsRunning(ctx) {
		return fmt.Errorf("local inference engine is not running; please ensure the backend is started")
	}

	for _, model := range models {
		if model == "" {
			continue
		}
		if m.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := m.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, float64(p.Completed)/float64(p.Total)*100)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

// ErrDimensionMismatch is returned by CheckDimensions when the provider's
// vectors differ in length from the configured dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CheckDimensions embeds a short text and compares the vector length with
// want. Provider errors are returned as is so the caller can tell an outage
// from a misconfiguration.
func CheckDimensions(ctx context.Context, e Embedder, want int) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	vec, err := e.Embed(ctx, "dimension check")
	if err != nil {
		return err
	}
	if len(vec) != want {
		return fmt.Errorf("%w: provider returns %d, embedding.dimensions is %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// Package llm holds the model-facing side of nutrition analysis: the
// Generator interface implemented by each backend, the initialize-once
// Handle the service talks to, the prompts, and extraction of the JSON
// record from free-form model text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vbonduro/nutrilens/internal/domain"
)

var (
	// ErrInitialization is returned when a backend client could not be built.
	ErrInitialization = errors.New("model client initialization failed")

	// ErrNotInitialized is returned by Invoke on a handle whose initialization failed.
	ErrNotInitialized = errors.New("model client not initialized")

	// ErrInvocation wraps any failure of the remote call itself.
	ErrInvocation = errors.New("model invocation failed")
)

// Generator issues one text-generation call for an analysis request and
// returns the raw response text.
type Generator interface {
	Generate(ctx context.Context, req domain.AnalysisRequest) (string, error)
	Model() string
}

// Handle owns the single Generator for the process. It is built once by
// Initialize and never changes afterwards, so it is safe for concurrent use.
type Handle struct {
	gen     Generator
	initErr error
	logger  *slog.Logger
}

// Initialize runs init exactly once. If init fails the returned handle is
// permanently degraded: every Invoke fails with ErrNotInitialized and init is
// never retried.
func Initialize(logger *slog.Logger, init func() (Generator, error)) *Handle {
	h := &Handle{logger: logger}
	gen, err := init()
	switch {
	case err != nil:
		h.initErr = fmt.Errorf("%w: %w", ErrInitialization, err)
	case gen == nil:
		h.initErr = fmt.Errorf("%w: no generator returned", ErrInitialization)
	default:
		h.gen = gen
	}
	if h.initErr != nil {
		logger.Error("model client unavailable, analyses will return fallback results", "error", h.initErr)
	} else {
		logger.Info("model client initialized", "model", gen.Model())
	}
	return h
}

// Ready reports whether initialization succeeded.
func (h *Handle) Ready() bool { return h.gen != nil }

// Err returns the initialization error, if any.
func (h *Handle) Err() error { return h.initErr }

// Model names the model behind the handle, or "unavailable".
func (h *Handle) Model() string {
	if h.gen == nil {
		return "unavailable"
	}
	return h.gen.Model()
}

// Invoke performs one blocking model call. There is no retry and no timeout
// beyond whatever the backend transport applies.
func (h *Handle) Invoke(ctx context.Context, req domain.AnalysisRequest) (string, error) {
	if h.gen == nil {
		return "", fmt.Errorf("%w: %w", ErrNotInitialized, h.initErr)
	}
	text, err := h.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvocation, err)
	}
	return text, nil
}

package model

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hupe1980/agentgraph/core"
)

// RetryOptions configures the retry behavior of RetryModel.
type RetryOptions struct {
	// MaxRetries bounds the number of re-attempts after the first failure.
	MaxRetries uint64
	// InitialBackoff is the base delay of the exponential backoff.
	InitialBackoff time.Duration
	// Jitter is added to each backoff interval to avoid thundering herds.
	Jitter time.Duration
	// Timeout bounds each individual attempt. Zero disables the per-call
	// timeout; the caller's context still applies.
	Timeout time.Duration
}

// DefaultRetryOptions returns conservative defaults suitable for rate-limited
// provider APIs.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		Jitter:         100 * time.Millisecond,
		Timeout:        2 * time.Minute,
	}
}

// RetryModel wraps a Model with exponential backoff retries. Each attempt is
// drained fully before its chunks are forwarded, so a mid-stream failure never
// leaks partial output from a failed attempt downstream.
type RetryModel struct {
	inner Model
	opts  RetryOptions
}

// NewRetryModel wraps model with the given retry options.
func NewRetryModel(inner Model, opts RetryOptions) *RetryModel {
	return &RetryModel{inner: inner, opts: opts}
}

// Info implements Model.
func (m *RetryModel) Info() Info { return m.inner.Info() }

// Generate implements Model. Attempts that fail with a retryable error are
// re-run with exponential backoff; an attempt that exceeds the per-call
// timeout surfaces as core.TimeoutError.
func (m *RetryModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		backoff := retry.NewExponential(m.opts.InitialBackoff)
		backoff = retry.WithJitter(m.opts.Jitter, backoff)
		backoff = retry.WithMaxRetries(m.opts.MaxRetries, backoff)

		var buffered []Response
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			chunks, attemptErr := m.attempt(ctx, req)
			if attemptErr != nil {
				if errors.Is(attemptErr, context.DeadlineExceeded) {
					attemptErr = &core.TimeoutError{Op: "model.Generate", Timeout: m.opts.Timeout}
				}
				if ctx.Err() != nil {
					return attemptErr // caller cancelled; do not retry
				}
				return retry.RetryableError(attemptErr)
			}
			buffered = chunks
			return nil
		})
		if err != nil {
			errCh <- err
			return
		}
		for _, resp := range buffered {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- resp:
			}
		}
	}()
	return out, errCh
}

// attempt runs a single Generate call against the wrapped model, collecting
// every chunk it produces.
func (m *RetryModel) attempt(ctx context.Context, req Request) ([]Response, error) {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	respCh, innerErrCh := m.inner.Generate(ctx, req)

	var chunks []Response
	for respCh != nil || innerErrCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			chunks = append(chunks, resp)
		case err, ok := <-innerErrCh:
			if !ok {
				innerErrCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return chunks, nil
}

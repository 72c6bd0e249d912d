// Package dispatch runs one function per chunk with bounded concurrency and
// collects the outcomes in chunk order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/scribe/internal/chunk"
	"github.com/MikeSquared-Agency/scribe/internal/diag"
	"github.com/MikeSquared-Agency/scribe/internal/gateway"
)

// ErrPanic wraps a panic recovered from a chunk function.
var ErrPanic = errors.New("chunk function panicked")

// Func processes one chunk.
type Func[T any] func(ctx context.Context, ch chunk.Chunk) (T, error)

// Outcome is the result slot for one chunk. Err is set when the chunk failed or
// was never dispatched because the run was cancelled.
type Outcome[T any] struct {
	Chunk chunk.Chunk
	Value T
	Err   error
}

type Dispatcher[T any] struct {
	// Concurrency bounds in-flight chunks. Values below 1 mean 1.
	Concurrency int
	Recorder    diag.Recorder
	Logger      *slog.Logger
}

// Run calls fn once per chunk and returns one outcome per chunk in chunk order,
// whatever order the calls complete in. A failing chunk never stops the others.
// Once ctx is done no further chunks are started and the remaining slots carry
// ctx.Err().
func (d Dispatcher[T]) Run(ctx context.Context, chunks []chunk.Chunk, fn Func[T]) []Outcome[T] {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := d.Concurrency
	if limit < 1 {
		limit = 1
	}

	outcomes := make([]Outcome[T], len(chunks))
	for i, ch := range chunks {
		outcomes[i].Chunk = ch
	}

	sem := semaphore.NewWeighted(int64(limit))
	var g errgroup.Group

	for i, ch := range chunks {
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			for j := i; j < len(chunks); j++ {
				outcomes[j].Err = fmt.Errorf("chunk %s not dispatched: %w", chunks[j].Ref(), err)
			}
			logger.Warn("run cancelled, chunks left undispatched", "remaining", len(chunks)-i, "error", err)
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			cctx := diag.WithChunk(ctx, ch.Ref())

			v, err := call(cctx, ch, fn)
			outcomes[i].Value = v
			outcomes[i].Err = err
			if err != nil {
				logger.Error("chunk failed", "chunk", ch.Ref(), "error", err)
				diag.Emit(cctx, d.Recorder, diag.Event{
					Kind:    failureKind(err),
					Message: "chunk failed",
					Detail:  err.Error(),
				})
				return nil
			}
			logger.Debug("chunk done", "chunk", ch.Ref(), "records", ch.Len())
			return nil
		})
	}

	// Goroutines never return errors; failures live in their slots.
	_ = g.Wait()
	return outcomes
}

// failureKind tells model call failures apart from faults in the chunk function itself.
func failureKind(err error) diag.Kind {
	if errors.Is(err, gateway.ErrCall) {
		return diag.KindGatewayFailure
	}
	return diag.KindChunkFailure
}

func call[T any](ctx context.Context, ch chunk.Chunk, fn Func[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn(ctx, ch)
}

// Flatten concatenates the values of all outcomes in order. Failed outcomes are
// replaced by fallback(o); a nil fallback drops them.
func Flatten[E any](outcomes []Outcome[[]E], fallback func(Outcome[[]E]) []E) []E {
	var out []E
	for _, o := range outcomes {
		if o.Err != nil {
			if fallback != nil {
				out = append(out, fallback(o)...)
			}
			continue
		}
		out = append(out, o.Value...)
	}
	return out
}

// Failed counts the outcomes that carry an error.
func Failed[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

package source

import (
	"context"

	"github.com/skypro1111/livecaption/internal/audio"
)

// Source produces fixed-size audio chunks. Run blocks until ctx is cancelled
// or the source is exhausted, calling emit from a single goroutine. emit
// never blocks; Run must not retain chunks after passing them on.
//
// Run returns nil when the source ran out of audio and ctx.Err() when it was
// cancelled.
type Source interface {
	Run(ctx context.Context, emit func(audio.Chunk)) error
}

// Func adapts a function into a Source
type Func func(ctx context.Context, emit func(audio.Chunk)) error

// Run implements Source
func (f Func) Run(ctx context.Context, emit func(audio.Chunk)) error {
	return f(ctx, emit)
}

package l1frames

import "context"

// Source supplies synchronized frame pairs to the pipeline. Next returns
// io.EOF when the source is exhausted. Implementations need not be safe
// for concurrent Next calls.
type Source interface {
	Next(ctx context.Context) (*FramePair, error)
	Close() error
}

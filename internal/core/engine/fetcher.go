package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feedmeta/feedmeta/internal/core"
)

// ErrFetchTimeout is reported when a fetch outlives its deadline.
var ErrFetchTimeout = errors.New("fetch timed out")

// FetchDeadlineSlack is added on top of the page load and header waits
// when deriving a fetch deadline.
const FetchDeadlineSlack = 15 * time.Second

// FetchRequest describes one profile extraction.
type FetchRequest struct {
	Key         string
	Handle      string
	LoadTimeout time.Duration
	HeaderWait  time.Duration
	// Timeout bounds the whole fetch. Zero falls back to the pool default.
	Timeout time.Duration
}

// fetchDeadline covers both extractor waits plus slack, never dropping
// below floor.
func fetchDeadline(loadTimeout, headerWait, floor time.Duration) time.Duration {
	budget := loadTimeout + headerWait + FetchDeadlineSlack
	if floor > budget {
		return floor
	}
	return budget
}

// Fetcher extracts profile metrics for one handle. A throttle signal is
// reported through ProfileResult.RateLimited and is honoured even when an
// error is also returned.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (core.ProfileResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (core.ProfileResult, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (core.ProfileResult, error) {
	return f(ctx, req)
}

type fetchReply struct {
	result core.ProfileResult
	err    error
}

// runFetch calls the fetcher with a deadline and converts panics into
// errors. A fetcher that ignores its context is abandoned at the deadline.
func runFetch(ctx context.Context, fetcher Fetcher, req FetchRequest, timeout time.Duration) (core.ProfileResult, error) {
	if fetcher == nil {
		return core.ProfileResult{}, errors.New("no fetcher configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	replies := make(chan fetchReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- fetchReply{err: fmt.Errorf("fetch panic: %v", r)}
			}
		}()
		result, err := fetcher.Fetch(ctx, req)
		replies <- fetchReply{result: result, err: err}
	}()

	select {
	case reply := <-replies:
		return reply.result, reply.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.ProfileResult{}, ErrFetchTimeout
		}
		return core.ProfileResult{}, ctx.Err()
	}
}

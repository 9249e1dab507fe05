package persist

import (
	"context"
	"errors"
	"sync"
)

// DefaultStreamChannelSize is the buffer capacity of a replay stream when
// the repository is not configured otherwise.
const DefaultStreamChannelSize = 200

// ErrEndOfStream is returned by ReplayStream.Next once the producer has
// delivered every event and closed its feed.
var ErrEndOfStream = errors.New("end of stream")

// ErrStreamClosed is returned by ReplayFeed.Push when the consumer has
// closed the stream and is no longer interested in events.
var ErrStreamClosed = errors.New("replay stream closed by consumer")

type replayResult struct {
	event SerializedEvent
	err   error
}

// NewReplayStream creates a connected feed/stream pair with a bounded
// buffer of queueSize events. The repository pushes events into the feed
// from a background goroutine while the consumer drains the stream; the
// bounded buffer makes a slow consumer throttle the producer instead of
// growing memory without limit.
func NewReplayStream(queueSize int) (*ReplayFeed, *ReplayStream) {
	ch := make(chan replayResult, queueSize)
	done := make(chan struct{})
	return &ReplayFeed{ch: ch, done: done}, &ReplayStream{ch: ch, done: done}
}

// ReplayFeed is the producer half of a replay stream.
type ReplayFeed struct {
	ch   chan replayResult
	done chan struct{}
}

// Push delivers the next event, blocking while the buffer is full. It
// returns ErrStreamClosed once the consumer has closed the stream, at
// which point the producer should stop paging and return.
func (f *ReplayFeed) Push(ctx context.Context, event SerializedEvent) error {
	return f.push(ctx, replayResult{event: event})
}

// PushErr delivers a failure encountered while paging through storage.
func (f *ReplayFeed) PushErr(ctx context.Context, err error) error {
	return f.push(ctx, replayResult{err: err})
}

func (f *ReplayFeed) push(ctx context.Context, result replayResult) error {
	select {
	case f.ch <- result:
		return nil
	case <-f.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of the stream. The producer must call it when all
// events have been delivered.
func (f *ReplayFeed) Close() {
	close(f.ch)
}

// ReplayStream is the consumer half: a bounded, backpressured channel of
// serialized events delivered by a repository's background pager.
type ReplayStream struct {
	ch        chan replayResult
	done      chan struct{}
	closeOnce sync.Once
}

// Next blocks until the next event is available and returns it. It
// returns ErrEndOfStream when the producer has finished, or the error the
// producer encountered while reading storage.
func (s *ReplayStream) Next(ctx context.Context) (SerializedEvent, error) {
	select {
	case result, ok := <-s.ch:
		if !ok {
			return SerializedEvent{}, ErrEndOfStream
		}
		if result.err != nil {
			return SerializedEvent{}, result.err
		}
		return result.event, nil
	case <-ctx.Done():
		return SerializedEvent{}, ctx.Err()
	}
}

// Close signals the producer that the consumer has stopped. Subsequent
// pushes fail with ErrStreamClosed so the background pager terminates
// instead of blocking forever on a full buffer.
func (s *ReplayStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

package llmclient

import (
	"context"
	"io"
	"sync"
)

// PipeStream is a Stream backed by a channel fed by a single producer
// goroutine. Providers construct one with NewPipeStream, spawn a goroutine
// that calls Send for every frame it parses off the wire and finally calls
// either CloseSend (clean end) or Fail (error mid-stream), and return the
// *PipeStream itself to the caller as a Stream.
type PipeStream struct {
	ch     chan StreamChunk
	errCh  chan error
	cancel context.CancelFunc
	ctx    context.Context
	once   sync.Once
}

// NewPipeStream returns a stream and the context its producer goroutine
// should watch for early cancellation (Close cancels it).
func NewPipeStream(parent context.Context) (*PipeStream, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &PipeStream{
		ch:     make(chan StreamChunk, 4),
		errCh:  make(chan error, 1),
		cancel: cancel,
		ctx:    ctx,
	}, ctx
}

// Send delivers a chunk to the consumer. It blocks if the consumer hasn't
// drained the buffer yet, and returns false if the stream was closed first.
func (s *PipeStream) Send(chunk StreamChunk) bool {
	select {
	case s.ch <- chunk:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// CloseSend signals clean end of stream; the next Next call returns io.EOF.
func (s *PipeStream) CloseSend() {
	close(s.ch)
}

// Fail signals the stream ended in error; the next Next call returns err.
func (s *PipeStream) Fail(err error) {
	s.errCh <- err
	close(s.ch)
}

// Next implements Stream.
func (s *PipeStream) Next(ctx context.Context) (StreamChunk, error) {
	select {
	case chunk, ok := <-s.ch:
		if !ok {
			select {
			case err := <-s.errCh:
				return StreamChunk{}, err
			default:
				return StreamChunk{}, io.EOF
			}
		}
		return chunk, nil
	case <-ctx.Done():
		return StreamChunk{}, ctx.Err()
	case <-s.ctx.Done():
		return StreamChunk{}, s.ctx.Err()
	}
}

// Close implements Stream. It is idempotent.
func (s *PipeStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

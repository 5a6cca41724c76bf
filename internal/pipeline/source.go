package pipeline

import (
	"context"

	"github.com/reugn/go-streams"

	"github.com/arbflow/feedrelay/pkg/feed"
)

// EnvelopeSource adapts the shared relay output channel to a go-streams
// source. Every relay client for a feed (one per mirror endpoint) writes to
// the same input channel, so the source is also the fan-in point.
type EnvelopeSource struct {
	in    chan *feed.Root
	outCh chan any
}

// NewEnvelopeSource creates a source fed by the returned input channel.
func NewEnvelopeSource(buffer int) *EnvelopeSource {
	return &EnvelopeSource{
		in:    make(chan *feed.Root, buffer),
		outCh: make(chan any),
	}
}

// In returns the channel relay clients write envelopes to.
func (s *EnvelopeSource) In() chan *feed.Root {
	return s.in
}

// Out returns a channel that emits *feed.Root values.
func (s *EnvelopeSource) Out() <-chan any {
	return s.outCh
}

// Via implements streams.Source.
func (s *EnvelopeSource) Via(flow streams.Flow) streams.Flow {
	return flow
}

// Start pumps envelopes from the input to the output channel until ctx is
// cancelled, then closes the output.
func (s *EnvelopeSource) Start(ctx context.Context) {
	go func() {
		defer close(s.outCh)
		for {
			select {
			case <-ctx.Done():
				return
			case root, ok := <-s.in:
				if !ok {
					return
				}
				select {
				case s.outCh <- root:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

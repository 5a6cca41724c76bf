package pipeline

import (
	"context"
	"log"
	"sync"

	"github.com/arbflow/feedrelay/internal/config"
	"github.com/arbflow/feedrelay/pkg/feed"
)

// FeedPipeline consumes envelopes fanned in from a feed's relay clients,
// drops sequence numbers already forwarded by another mirror, decodes the
// L2 payloads with a bounded worker pool, and publishes the results to its
// sink. Decode failures are logged per message and never stop the pipeline.
type FeedPipeline struct {
	feedCfg config.FeedConfig
	source  *EnvelopeSource
	tracker SequenceTracker
	sink    Sink
	workers int
}

// NewFeedPipeline assembles a pipeline for one configured feed.
func NewFeedPipeline(feedCfg config.FeedConfig, source *EnvelopeSource, tracker SequenceTracker, sink Sink, workers int) *FeedPipeline {
	if workers < 1 {
		workers = 1
	}
	return &FeedPipeline{
		feedCfg: feedCfg,
		source:  source,
		tracker: tracker,
		sink:    sink,
		workers: workers,
	}
}

// Run processes envelopes until ctx is cancelled or the source closes.
func (p *FeedPipeline) Run(ctx context.Context) error {
	log.Printf("FeedPipeline %s: starting with %d decode workers", p.feedCfg.Name, p.workers)
	defer log.Printf("FeedPipeline %s: stopped", p.feedCfg.Name)

	p.source.Start(ctx)
	for item := range p.source.Out() {
		root, ok := item.(*feed.Root)
		if !ok {
			continue
		}
		p.processEnvelope(ctx, root)
	}
	return ctx.Err()
}

// processEnvelope decodes the fresh messages of one envelope concurrently
// and publishes an event per decoded message.
func (p *FeedPipeline) processEnvelope(ctx context.Context, root *feed.Root) {
	fresh := make([]*feed.BroadcastFeedMessage, 0, len(root.Messages))
	for i := range root.Messages {
		msg := &root.Messages[i]
		ok, err := p.tracker.Observe(ctx, p.feedCfg.Name, msg.SequenceNumber)
		if err != nil {
			// Tracker trouble must not stall the feed; forward and move on.
			log.Printf("FeedPipeline %s: sequence tracker error at %d: %v", p.feedCfg.Name, msg.SequenceNumber, err)
			ok = true
		}
		if ok {
			fresh = append(fresh, msg)
		}
	}
	if len(fresh) == 0 {
		return
	}

	// Start workers
	var wg sync.WaitGroup
	jobs := make(chan *feed.BroadcastFeedMessage, len(fresh))

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				p.processMessage(ctx, msg)
			}
		}()
	}

	for _, msg := range fresh {
		jobs <- msg
	}
	close(jobs)

	wg.Wait()
}

func (p *FeedPipeline) processMessage(ctx context.Context, msg *feed.BroadcastFeedMessage) {
	decoded, err := msg.Message.Message.Decode()
	if err != nil {
		log.Printf("FeedPipeline %s: dropping message %d: %v", p.feedCfg.Name, msg.SequenceNumber, err)
		return
	}
	if decoded == nil {
		// Heartbeats and other non-transaction kinds carry nothing to publish.
		return
	}

	event := &DecodedMessageEvent{
		Feed:           p.feedCfg.Name,
		SequenceNumber: msg.SequenceNumber,
		BlockNumber:    msg.Message.Message.Header.BlockNumber,
		Timestamp:      msg.Message.Message.Header.Timestamp,
		Sender:         msg.Message.Message.Header.Sender,
	}
	switch {
	case decoded.SignedTx != nil:
		event.Kind = "signedTx"
		event.TxHashes = []string{decoded.SignedTx.Hash().Hex()}
	default:
		event.Kind = "batch"
		event.TxHashes = make([]string, 0, len(decoded.Batch))
		for _, tx := range decoded.Batch {
			event.TxHashes = append(event.TxHashes, tx.Hash().Hex())
		}
	}

	if err := p.sink.Write(ctx, event); err != nil {
		log.Printf("FeedPipeline %s: failed to publish message %d: %v", p.feedCfg.Name, msg.SequenceNumber, err)
	}
}

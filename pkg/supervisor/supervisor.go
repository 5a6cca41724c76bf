package supervisor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/arbflow/feedrelay/internal/config"
	"github.com/arbflow/feedrelay/pkg/feed"
	"github.com/arbflow/feedrelay/pkg/relay"
)

// runnableClient is what the supervisor needs from a relay client.
type runnableClient interface {
	Run(ctx context.Context) error
}

// newRelayClientFunc allows replacing client construction in tests.
var newRelayClientFunc = func(ctx context.Context, url string, chainID uint64, id uint32, out chan<- *feed.Root, status chan<- relay.ConnectionUpdate) (runnableClient, error) {
	client, err := relay.New(ctx, url, chainID, id, out, status)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// FeedSupervisor owns the connection lifecycle for one feed: a relay
// client per mirror endpoint, all writing to the same output channel.
// Relay clients never reconnect themselves; the supervisor redials a
// mirror whenever its client stops, with a fixed delay between attempts
// and a cap on consecutive connect failures.
type FeedSupervisor struct {
	feedCfg    config.FeedConfig
	out        chan<- *feed.Root
	retryDelay time.Duration
	maxRetries int
}

// NewFeedSupervisor creates a supervisor for the configured feed, writing
// envelopes to out.
func NewFeedSupervisor(feedCfg config.FeedConfig, out chan<- *feed.Root, retryDelay time.Duration, maxRetries int) *FeedSupervisor {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &FeedSupervisor{
		feedCfg:    feedCfg,
		out:        out,
		retryDelay: retryDelay,
		maxRetries: maxRetries,
	}
}

// Run supervises all mirrors until ctx is cancelled.
func (s *FeedSupervisor) Run(ctx context.Context) error {
	log.Printf("FeedSupervisor %s: starting %d mirror(s)", s.feedCfg.Name, len(s.feedCfg.URLs))
	defer log.Printf("FeedSupervisor %s: stopped", s.feedCfg.Name)

	status := make(chan relay.ConnectionUpdate, len(s.feedCfg.URLs))

	// Drain status notices for the lifetime of the supervisor. The
	// per-mirror loops below react to Run returning; the notices are for
	// visibility.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-status:
				log.Printf("FeedSupervisor %s: mirror %d stopped sending frames", s.feedCfg.Name, update.ClientID)
			}
		}
	}()

	var wg sync.WaitGroup
	for i, url := range s.feedCfg.URLs {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			s.superviseMirror(ctx, idx, url, status)
		}(i, url)
	}
	wg.Wait()
	return ctx.Err()
}

// superviseMirror keeps one mirror connected: dial, run until the
// connection dies, wait, redial. Configuration faults (bad URL, wrong
// chain) are not retried — redialing cannot fix them.
func (s *FeedSupervisor) superviseMirror(ctx context.Context, idx int, url string, status chan<- relay.ConnectionUpdate) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		client, err := newRelayClientFunc(ctx, url, s.feedCfg.ChainID, uint32(idx), s.out, status)
		if err != nil {
			if errors.Is(err, relay.ErrInvalidURL) || errors.Is(err, relay.ErrInvalidChainID) {
				log.Printf("FeedSupervisor %s: mirror %s misconfigured, not retrying: %v", s.feedCfg.Name, url, err)
				return
			}
			failures++
			if s.maxRetries > 0 && failures > s.maxRetries {
				log.Printf("FeedSupervisor %s: giving up on mirror %s after %d consecutive failures", s.feedCfg.Name, url, failures)
				return
			}
			log.Printf("FeedSupervisor %s: connect to %s failed (attempt %d): %v", s.feedCfg.Name, url, failures, err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		failures = 0

		log.Printf("FeedSupervisor %s: mirror %d connected to %s", s.feedCfg.Name, idx, url)
		if err := client.Run(ctx); err != nil {
			log.Printf("FeedSupervisor %s: mirror %d: %v", s.feedCfg.Name, idx, err)
		}
		if ctx.Err() != nil {
			return
		}
		if !s.sleep(ctx) {
			return
		}
	}
}

// sleep waits out the retry delay; false means ctx was cancelled.
func (s *FeedSupervisor) sleep(ctx context.Context) bool {
	select {
	case <-time.After(s.retryDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

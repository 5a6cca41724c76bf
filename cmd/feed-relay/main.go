package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/arbflow/feedrelay/internal/config"
	"github.com/arbflow/feedrelay/internal/pipeline"
	"github.com/arbflow/feedrelay/pkg/supervisor"
)

func main() {
	// Load configuration (YAML overrides fall back to env)
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Sequence tracking: Redis when configured, in-memory otherwise
	var tracker pipeline.SequenceTracker
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			opt = &redis.Options{
				Addr: cfg.RedisURL,
			}
		}
		tracker = pipeline.NewRedisSequenceTracker(redis.NewClient(opt))
		log.Printf("Using Redis sequence tracker at %s", cfg.RedisURL)
	} else {
		tracker = pipeline.NewMemorySequenceTracker()
		log.Println("REDIS_URL not set, using in-memory sequence tracker")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Received shutdown signal")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, feedCfg := range cfg.Feeds {
		sink, err := pipeline.NewNATSSink(cfg.NatsURL, feedCfg.StreamName, feedCfg.Subject)
		if err != nil {
			log.Fatalf("Failed to create NATS sink for feed %s: %v", feedCfg.Name, err)
		}
		defer sink.Close()

		source := pipeline.NewEnvelopeSource(64)
		feedPipeline := pipeline.NewFeedPipeline(feedCfg, source, tracker, sink, cfg.DecodeWorkers)
		feedSupervisor := supervisor.NewFeedSupervisor(feedCfg, source.In(), cfg.RetryDelay, cfg.MaxRetries)

		wg.Add(2)
		go func(name string) {
			defer wg.Done()
			if err := feedPipeline.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("FeedPipeline %s error: %v", name, err)
			}
		}(feedCfg.Name)
		go func(name string) {
			defer wg.Done()
			if err := feedSupervisor.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("FeedSupervisor %s error: %v", name, err)
			}
		}(feedCfg.Name)
	}

	log.Printf("feed-relay started with %d feed(s)", len(cfg.Feeds))
	wg.Wait()
	log.Println("feed-relay stopped")
}

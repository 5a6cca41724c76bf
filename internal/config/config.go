package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes one sequencer feed to relay, possibly served by
// several redundant mirror endpoints.
type FeedConfig struct {
	Name       string   `yaml:"name"`
	ChainID    uint64   `yaml:"chain_id"`
	URLs       []string `yaml:"urls"`
	StreamName string   `yaml:"stream_name,omitempty"`
	Subject    string   `yaml:"subject,omitempty"`
}

// Config holds the application configuration.
type Config struct {
	// Feeds to connect to
	Feeds []FeedConfig `yaml:"feeds"`

	// NATS configuration
	NatsURL string

	// Redis configuration (sequence tracker)
	RedisURL string

	// Decode configuration
	DecodeWorkers int

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	feedsStr := os.Getenv("FEEDS")
	if feedsStr == "" {
		return nil, fmt.Errorf("FEEDS is required (comma-separated list of feed names)")
	}

	feedNames := strings.Split(feedsStr, ",")
	feeds := make([]FeedConfig, 0, len(feedNames))

	for _, name := range feedNames {
		name = strings.TrimSpace(name)
		prefix := "FEED_" + strings.ToUpper(name)

		chainIDStr := os.Getenv(prefix + "_CHAIN_ID")
		if chainIDStr == "" {
			return nil, fmt.Errorf("%s_CHAIN_ID is required", prefix)
		}
		chainID, err := strconv.ParseUint(chainIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s_CHAIN_ID must be an unsigned integer: %w", prefix, err)
		}

		urlsStr := os.Getenv(prefix + "_URLS")
		if urlsStr == "" {
			return nil, fmt.Errorf("%s_URLS is required (comma-separated websocket endpoints)", prefix)
		}
		var urls []string
		for _, u := range strings.Split(urlsStr, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}

		feeds = append(feeds, FeedConfig{
			Name:       name,
			ChainID:    chainID,
			URLs:       urls,
			StreamName: os.Getenv(prefix + "_STREAM_NAME"),
			Subject:    os.Getenv(prefix + "_SUBJECT"),
		})
	}
	applyFeedDefaults(feeds)

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	return &Config{
		Feeds:         feeds,
		NatsURL:       natsURL,
		RedisURL:      getEnvWithDefault("REDIS_URL", "localhost:6379"),
		DecodeWorkers: getEnvAsInt("DECODE_WORKERS", 4),
		MaxRetries:    getEnvAsInt("MAX_RETRIES", 3),
		RetryDelay:    getEnvAsDuration("RETRY_DELAY", 5*time.Second),
	}, nil
}

// Load reads a YAML config file (path), falls back to the environment
// loader when the file is missing. Feeds defined in YAML replace any feeds
// configured through the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadFromEnv()
	}
	var fileCfg struct {
		Feeds []FeedConfig `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for i := range fileCfg.Feeds {
		fc := &fileCfg.Feeds[i]
		for j := range fc.URLs {
			fc.URLs[j] = os.ExpandEnv(fc.URLs[j])
		}
		if fc.Name == "" {
			return nil, fmt.Errorf("config file %s: feed %d has no name", path, i)
		}
		if len(fc.URLs) == 0 {
			return nil, fmt.Errorf("config file %s: feed %q has no urls", path, fc.Name)
		}
	}

	cfg := &Config{
		Feeds:         fileCfg.Feeds,
		NatsURL:       getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
		RedisURL:      getEnvWithDefault("REDIS_URL", "localhost:6379"),
		DecodeWorkers: getEnvAsInt("DECODE_WORKERS", 4),
		MaxRetries:    getEnvAsInt("MAX_RETRIES", 3),
		RetryDelay:    getEnvAsDuration("RETRY_DELAY", 5*time.Second),
	}
	applyFeedDefaults(cfg.Feeds)
	return cfg, nil
}

// applyFeedDefaults fills in stream and subject names for feeds that did
// not set them explicitly.
func applyFeedDefaults(feeds []FeedConfig) {
	for i := range feeds {
		if feeds[i].StreamName == "" {
			feeds[i].StreamName = "SEQUENCER_FEED"
		}
		if feeds[i].Subject == "" {
			feeds[i].Subject = "feed." + strings.ToLower(feeds[i].Name)
		}
	}
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns environment variable as integer or default if not set
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvAsDuration returns environment variable as duration or default if not set
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

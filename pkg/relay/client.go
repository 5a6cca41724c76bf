package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/arbflow/feedrelay/pkg/feed"
)

// Handshake headers the sequencer feed expects beyond the standard
// websocket upgrade, and the response header carrying the chain identity.
const (
	feedClientVersionHeader   = "Arbitrum-Feed-Client-Version"
	feedRequestedSeqHeader    = "Arbitrum-Requested-Sequence-number"
	feedChainIDResponseHeader = "arbitrum-chain-id"

	feedClientVersion = "2"
)

var (
	// ErrInvalidURL indicates a feed URL without a resolvable host; no
	// network I/O is attempted.
	ErrInvalidURL = errors.New("relay: invalid feed url")

	// ErrInvalidChainID indicates the server's arbitrum-chain-id response
	// header was missing, unparsable, or did not match the expected chain.
	ErrInvalidChainID = errors.New("relay: invalid chain id")
)

// ConnectionEvent identifies what happened to a relay connection.
type ConnectionEvent int

const (
	// StoppedSendingFrames means the connection hit a transport-level
	// error and the client's run loop has terminated.
	StoppedSendingFrames ConnectionEvent = iota
)

// ConnectionUpdate is the status notice a RelayClient emits when its
// connection degrades. The supervisor uses it to decide on reconnection.
type ConnectionUpdate struct {
	Event    ConnectionEvent
	ClientID uint32
}

// RelayClient owns exactly one websocket connection to a sequencer feed
// endpoint. It validates the server's chain identity during the handshake,
// then pumps incoming frames as decoded feed.Root envelopes onto its output
// channel. It never reconnects; retry policy belongs to whoever constructed
// it and watches the status channel.
type RelayClient struct {
	conn   *websocket.Conn
	out    chan<- *feed.Root
	status chan<- ConnectionUpdate
	id     uint32
}

// New dials the feed endpoint and validates the handshake. The returned
// client holds the live connection; call Run or Spawn to start pumping
// frames. On any validation failure the connection is closed and not
// retained.
func New(ctx context.Context, rawURL string, chainID uint64, id uint32, out chan<- *feed.Root, status chan<- ConnectionUpdate) (*RelayClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	header := http.Header{}
	header.Set(feedClientVersionHeader, feedClientVersion)
	header.Set(feedRequestedSeqHeader, "0")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("relay: websocket dial %s failed: %w", rawURL, err)
	}
	if err := checkChainIDHeader(resp.Header, chainID); err != nil {
		conn.Close()
		return nil, err
	}

	return &RelayClient{
		conn:   conn,
		out:    out,
		status: status,
		id:     id,
	}, nil
}

// ID returns the identity this client stamps on its status notices.
func (c *RelayClient) ID() uint32 { return c.id }

// Run pumps frames until the connection ends or ctx is cancelled.
// Malformed JSON frames are dropped and the loop continues; feed noise must
// not take the client down. A clean peer close, and cancellation of ctx
// (the consumer went away), both return nil. A transport error emits a
// StoppedSendingFrames notice on the status channel and is returned.
func (c *RelayClient) Run(ctx context.Context) error {
	defer c.conn.Close()

	// ReadMessage has no context support; close the connection to
	// unblock it when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("RelayClient %d: feed closed the connection", c.id)
				return nil
			}
			c.notifyStopped(ctx)
			return fmt.Errorf("relay: connection closed with error: %w", err)
		}

		var root feed.Root
		if err := json.Unmarshal(data, &root); err != nil {
			log.Printf("RelayClient %d: dropping malformed frame: %v", c.id, err)
			continue
		}

		select {
		case c.out <- &root:
		case <-ctx.Done():
			return nil
		}
	}
}

// Spawn runs the client on its own goroutine. Errors are logged and
// swallowed at the task boundary; observers learn about them through the
// status channel.
func (c *RelayClient) Spawn(ctx context.Context) {
	go func() {
		if err := c.Run(ctx); err != nil {
			log.Printf("RelayClient %d: %v", c.id, err)
		}
	}()
}

func (c *RelayClient) notifyStopped(ctx context.Context) {
	select {
	case c.status <- ConnectionUpdate{Event: StoppedSendingFrames, ClientID: c.id}:
	case <-ctx.Done():
	}
}

func checkChainIDHeader(header http.Header, want uint64) error {
	raw := header.Get(feedChainIDResponseHeader)
	if raw == "" {
		return fmt.Errorf("%w: missing %s response header", ErrInvalidChainID, feedChainIDResponseHeader)
	}
	got, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparsable %s header %q", ErrInvalidChainID, feedChainIDResponseHeader, raw)
	}
	if got != want {
		return fmt.Errorf("%w: feed reports chain %d, expected %d", ErrInvalidChainID, got, want)
	}
	return nil
}

package feed

import "encoding/json"

// Root is the envelope carried by a single websocket frame on the
// sequencer feed. One Root may contain several feed messages.
type Root struct {
	Version  uint8                  `json:"version"`
	Messages []BroadcastFeedMessage `json:"messages"`
}

// BroadcastFeedMessage is one sequenced message from the feed. The
// sequence number is monotonic per feed; ordering is not enforced here.
// The signature is relayed opaquely and never verified.
type BroadcastFeedMessage struct {
	SequenceNumber uint64              `json:"sequenceNumber"`
	Message        MessageWithMetadata `json:"message"`
	Signature      json.RawMessage     `json:"signature"`
}

// MessageWithMetadata pairs an L1 incoming message with the delayed
// message count the sequencer had read when it was produced.
type MessageWithMetadata struct {
	Message             L1IncomingMessageHeader `json:"message"`
	DelayedMessagesRead uint64                  `json:"delayedMessagesRead"`
}

// L1IncomingMessageHeader wraps the outer header and the base64-encoded
// L2 message payload. Decode (see decode.go) interprets the payload.
type L1IncomingMessageHeader struct {
	Header Header `json:"header"`
	L2Msg  string `json:"l2Msg"`
}

// Header is the outer message classification. Kind here is the legacy
// L1 message kind and is unrelated to the L2MessageKind byte found at
// offset 0 of the decoded payload.
type Header struct {
	Kind        uint8           `json:"kind"`
	Sender      string          `json:"sender"`
	BlockNumber uint64          `json:"blockNumber"`
	Timestamp   uint64          `json:"timestamp"`
	RequestID   json.RawMessage `json:"requestId"`
	BaseFeeL1   json.RawMessage `json:"baseFeeL1"`
}

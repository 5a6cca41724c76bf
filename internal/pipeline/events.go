package pipeline

// DecodedMessageEvent is the JSON document published to NATS for every
// feed message whose payload decoded to transactions. Kind is "batch" for
// batch payloads and "signedTx" for single signed transactions.
type DecodedMessageEvent struct {
	Feed           string   `json:"feed"`
	SequenceNumber uint64   `json:"sequenceNumber"`
	BlockNumber    uint64   `json:"blockNumber"`
	Timestamp      uint64   `json:"timestamp"`
	Sender         string   `json:"sender"`
	Kind           string   `json:"kind"`
	TxHashes       []string `json:"txHashes"`
}

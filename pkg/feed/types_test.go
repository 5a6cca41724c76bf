package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFrame = `{
  "version": 1,
  "messages": [
    {
      "sequenceNumber": 25757324,
      "message": {
        "message": {
          "header": {
            "kind": 3,
            "sender": "0xa4b000000000000000000073657175656e636572",
            "blockNumber": 16238523,
            "timestamp": 1671691403,
            "requestId": null,
            "baseFeeL1": null
          },
          "l2Msg": "BAL4bA=="
        },
        "delayedMessagesRead": 354560
      },
      "signature": null
    }
  ]
}`

func TestRootUnmarshal(t *testing.T) {
	var root Root
	require.NoError(t, json.Unmarshal([]byte(sampleFrame), &root))

	assert.Equal(t, uint8(1), root.Version)
	require.Len(t, root.Messages, 1)

	msg := root.Messages[0]
	assert.Equal(t, uint64(25757324), msg.SequenceNumber)
	assert.Equal(t, uint64(354560), msg.Message.DelayedMessagesRead)

	hdr := msg.Message.Message
	assert.Equal(t, "BAL4bA==", hdr.L2Msg)
	assert.Equal(t, uint8(3), hdr.Header.Kind)
	assert.Equal(t, "0xa4b000000000000000000073657175656e636572", hdr.Header.Sender)
	assert.Equal(t, uint64(16238523), hdr.Header.BlockNumber)
	assert.Equal(t, uint64(1671691403), hdr.Header.Timestamp)
}

func TestRootMarshalFieldNames(t *testing.T) {
	root := Root{Version: 1, Messages: []BroadcastFeedMessage{{SequenceNumber: 42}}}
	raw, err := json.Marshal(&root)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"sequenceNumber":42`)
	assert.Contains(t, string(raw), `"delayedMessagesRead":0`)
	assert.Contains(t, string(raw), `"l2Msg":""`)
	assert.Contains(t, string(raw), `"blockNumber":0`)
}

package feed

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	to := common.HexToAddress("0x7073c616a8A3F277Ea4511fCe9EBB2656a1b87B8")
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(2_000_000_000),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(1_000_000_000_000_000),
	})
}

func encodeTx(t *testing.T, tx *types.Transaction) []byte {
	t.Helper()
	raw, err := rlp.EncodeToBytes(tx)
	require.NoError(t, err)
	return raw
}

// buildBatchPayload frames txs the way the sequencer does: kind byte 3,
// then per tx an 8-byte big-endian length, an inner kind byte, and the RLP.
func buildBatchPayload(t *testing.T, txs ...*types.Transaction) []byte {
	t.Helper()
	payload := []byte{byte(L2MessageKindBatch)}
	for _, tx := range txs {
		raw := encodeTx(t, tx)
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(raw)+1))
		payload = append(payload, size[:]...)
		payload = append(payload, byte(L2MessageKindSignedTx))
		payload = append(payload, raw...)
	}
	return payload
}

func headerWithPayload(payload []byte) *L1IncomingMessageHeader {
	return &L1IncomingMessageHeader{
		L2Msg: base64.StdEncoding.EncodeToString(payload),
	}
}

func TestDecodeOversizedPayloadReturnsNothing(t *testing.T) {
	h := &L1IncomingMessageHeader{L2Msg: strings.Repeat("A", 400*1024)}
	msg, err := h.Decode()
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDecodeSkippedKindsReturnNothing(t *testing.T) {
	for _, kind := range []L2MessageKind{
		L2MessageKindUnsignedUserTx,
		L2MessageKindContractTx,
		L2MessageKindNonMutatingCall,
		L2MessageKindHeartbeat,
		L2MessageKindSignedCompressedTx,
	} {
		h := headerWithPayload([]byte{byte(kind), 0xde, 0xad})
		msg, err := h.Decode()
		require.NoError(t, err, "kind %d", kind)
		assert.Nil(t, msg, "kind %d", kind)
	}
}

func TestDecodeUnknownKindFails(t *testing.T) {
	for _, kind := range []byte{5, 42, 255} {
		h := headerWithPayload([]byte{kind, 0x01})
		msg, err := h.Decode()
		assert.Nil(t, msg)
		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr, "kind %d", kind)
	}
}

func TestDecodeInvalidBase64Fails(t *testing.T) {
	h := &L1IncomingMessageHeader{L2Msg: "!!! not base64 !!!"}
	msg, err := h.Decode()
	assert.Nil(t, msg)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestDecodeEmptyPayloadFails(t *testing.T) {
	h := &L1IncomingMessageHeader{L2Msg: ""}
	msg, err := h.Decode()
	assert.Nil(t, msg)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestDecodeSignedTxRoundTrip(t *testing.T) {
	tx := legacyTx(t, 7)
	payload := append([]byte{byte(L2MessageKindSignedTx)}, encodeTx(t, tx)...)

	msg, err := headerWithPayload(payload).Decode()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NotNil(t, msg.SignedTx)
	assert.Nil(t, msg.Batch)
	assert.Equal(t, tx.Hash(), msg.SignedTx.Hash())
}

func TestDecodeBatchRoundTrip(t *testing.T) {
	txs := []*types.Transaction{legacyTx(t, 1), legacyTx(t, 2), legacyTx(t, 3)}
	payload := buildBatchPayload(t, txs...)

	msg, err := headerWithPayload(payload).Decode()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Len(t, msg.Batch, len(txs))
	for i, tx := range txs {
		assert.Equal(t, tx.Hash(), msg.Batch[i].Hash(), "batch order at %d", i)
	}
}

func TestDecodeBatchTruncatedTailIsTolerated(t *testing.T) {
	tx := legacyTx(t, 9)

	// Fewer than 8 trailing bytes after a complete frame.
	payload := append(buildBatchPayload(t, tx), 0x00, 0x01, 0x02)
	msg, err := headerWithPayload(payload).Decode()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Len(t, msg.Batch, 1)

	// A final frame announcing more bytes than remain.
	payload = buildBatchPayload(t, tx)
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], 4096)
	payload = append(payload, size[:]...)
	payload = append(payload, 0xaa, 0xbb)
	msg, err = headerWithPayload(payload).Decode()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Len(t, msg.Batch, 1)
}

func TestDecodeBatchBadTransactionFails(t *testing.T) {
	payload := []byte{byte(L2MessageKindBatch)}
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], 5)
	payload = append(payload, size[:]...)
	payload = append(payload, byte(L2MessageKindSignedTx), 0xff, 0xff, 0xff, 0xff)

	msg, err := headerWithPayload(payload).Decode()
	assert.Nil(t, msg)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Reason, "index 0")
}

func TestDecodeEmptyBatchSubMessageFails(t *testing.T) {
	payload := []byte{byte(L2MessageKindBatch)}
	var size [8]byte
	payload = append(payload, size[:]...) // length 0

	msg, err := headerWithPayload(payload).Decode()
	assert.Nil(t, msg)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestActionDecodeCreate(t *testing.T) {
	raw, err := rlp.EncodeToBytes([]byte{})
	require.NoError(t, err)

	var a Action
	require.NoError(t, rlp.DecodeBytes(raw, &a))
	assert.True(t, a.Create())
	assert.Nil(t, a.To)
}

func TestActionDecodeCall(t *testing.T) {
	addr := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	raw, err := rlp.EncodeToBytes(addr.Bytes())
	require.NoError(t, err)

	var a Action
	require.NoError(t, rlp.DecodeBytes(raw, &a))
	require.NotNil(t, a.To)
	assert.Equal(t, addr, *a.To)
	assert.False(t, a.Create())
}

func TestActionDecodeBadWidthFails(t *testing.T) {
	raw, err := rlp.EncodeToBytes([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)

	var a Action
	assert.Error(t, rlp.DecodeBytes(raw, &a))
}

func TestActionEncodeRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	for _, a := range []Action{{}, {To: &addr}} {
		raw, err := rlp.EncodeToBytes(&a)
		require.NoError(t, err)
		var got Action
		require.NoError(t, rlp.DecodeBytes(raw, &got))
		assert.Equal(t, a, got)
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &DecodeError{Reason: "test", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
}

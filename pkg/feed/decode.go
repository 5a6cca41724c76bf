package feed

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// MaxL2MessageSize caps the decoded payload size accepted from the feed.
// Larger payloads are dropped before any base64 or RLP work happens.
const MaxL2MessageSize = 256 * 1024

// L2MessageKind is the tag byte at offset 0 of a decoded L2 message.
type L2MessageKind uint8

const (
	L2MessageKindUnsignedUserTx  L2MessageKind = 0
	L2MessageKindContractTx      L2MessageKind = 1
	L2MessageKindNonMutatingCall L2MessageKind = 2
	L2MessageKindBatch           L2MessageKind = 3
	L2MessageKindSignedTx        L2MessageKind = 4
	// 5 is reserved
	L2MessageKindHeartbeat          L2MessageKind = 6 // deprecated
	L2MessageKindSignedCompressedTx L2MessageKind = 7
)

// DecodedMsg is the result of decoding an L2 message payload. Exactly one
// of Batch or SignedTx is set: Batch for kind 3, SignedTx for kind 4.
type DecodedMsg struct {
	Batch    []*types.Transaction
	SignedTx *types.Transaction
}

// DecodeError reports a malformed L2 message payload. It is a per-message
// fault: the feed connection stays up and the message is dropped by callers.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("l2 message decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("l2 message decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode interprets the base64-encoded L2 message carried by the header.
// It returns (nil, nil) when there is nothing to decode: oversized payloads,
// heartbeats, and the unsigned/contract/call/compressed kinds this relay does
// not process. Malformed payloads (bad base64, unknown kind byte, bad RLP)
// return a *DecodeError and never panic or tear down the connection.
func (h *L1IncomingMessageHeader) Decode() (*DecodedMsg, error) {
	if base64.StdEncoding.DecodedLen(len(h.L2Msg)) > MaxL2MessageSize {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(h.L2Msg)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64 payload", Err: err}
	}
	if len(data) > MaxL2MessageSize {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	switch kind := L2MessageKind(data[0]); kind {
	case L2MessageKindBatch:
		txs, err := parseBatchTransactions(data[1:])
		if err != nil {
			return nil, err
		}
		return &DecodedMsg{Batch: txs}, nil
	case L2MessageKindSignedTx:
		tx := new(types.Transaction)
		if err := rlp.DecodeBytes(data[1:], tx); err != nil {
			return nil, &DecodeError{Reason: "invalid signed tx", Err: err}
		}
		return &DecodedMsg{SignedTx: tx}, nil
	case L2MessageKindUnsignedUserTx, L2MessageKindContractTx,
		L2MessageKindNonMutatingCall, L2MessageKindHeartbeat,
		L2MessageKindSignedCompressedTx:
		return nil, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported L2 message kind %d", kind)}
	}
}

// parseBatchTransactions walks the length-prefixed sub-messages of a batch
// payload: 8-byte big-endian length, 1 inner-kind byte (skipped), then the
// RLP transaction. A truncated final frame (short length prefix, or an
// announced length past the end of the buffer) terminates the walk without
// error, keeping whatever fully-framed transactions came before it; feeds
// cut mid-message are expected.
func parseBatchTransactions(data []byte) ([]*types.Transaction, error) {
	var txs []*types.Transaction
	for i := 0; len(data)-i >= 8; {
		size := binary.BigEndian.Uint64(data[i : i+8])
		i += 8
		if size > uint64(len(data)-i) {
			break
		}
		if size == 0 {
			return nil, &DecodeError{
				Reason: fmt.Sprintf("empty batch sub-message at index %d", len(txs)),
			}
		}
		body := data[i : i+int(size)]
		i += int(size)

		tx := new(types.Transaction)
		if err := rlp.DecodeBytes(body[1:], tx); err != nil {
			return nil, &DecodeError{
				Reason: fmt.Sprintf("invalid batch transaction at index %d", len(txs)),
				Err:    err,
			}
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Action is the call target embedded in RLP transaction data: contract
// creation when the RLP item is empty, otherwise a call to a 20-byte address.
type Action struct {
	// To is nil for Create, the callee address for Call.
	To *common.Address
}

// Create reports whether the action is a contract creation.
func (a *Action) Create() bool { return a.To == nil }

// DecodeRLP implements rlp.Decoder. Any non-empty item that is not exactly
// address-width fails with an RLP decode error.
func (a *Action) DecodeRLP(s *rlp.Stream) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	switch len(b) {
	case 0:
		a.To = nil
	case common.AddressLength:
		addr := common.BytesToAddress(b)
		a.To = &addr
	default:
		return fmt.Errorf("rlp: invalid action target length %d", len(b))
	}
	return nil
}

// EncodeRLP implements rlp.Encoder.
func (a *Action) EncodeRLP(w io.Writer) error {
	if a.To == nil {
		return rlp.Encode(w, []byte{})
	}
	return rlp.Encode(w, a.To.Bytes())
}

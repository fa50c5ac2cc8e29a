// Package protocol implements the wire format and message router:
// newline-delimited JSON frames, tagged by type, carrying a monotonic
// per-node envelope id used for gossip de-duplication.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

// Tag identifies a frame's payload shape.
type Tag string

const (
	TagRequestMessageInfo  Tag = "RequestMessageInfo"
	TagResponseMessageInfo Tag = "ResponseMessageInfo"
	TagRequestLastNBlocks  Tag = "RequestLastNBlocksMessage"
	TagRequestBlocksBefore Tag = "RequestBlocksBeforeMessage"
	TagResponseBlock       Tag = "ResponseBlockMessage"
	TagResponseTransaction Tag = "ResponseTransactionMessage"
	TagResponseChain       Tag = "ResponseChainMessage"
	TagResponsePeer        Tag = "ResponsePeerMessage"
	TagResponseText        Tag = "ResponseTextMessage"
)

// DefaultPort is the port a node dials a peer on when asked via
// ResponsePeer.
const DefaultPort = 7878

// Frame is the envelope every wire message is wrapped in:
// {"type": <Tag>, "content": <Payload>}\n
type Frame struct {
	Type    Tag             `json:"type"`
	Content json.RawMessage `json:"content"`
}

type RequestMessageInfo struct {
	Id uint64 `json:"id"`
}

type ResponseMessageInfo struct {
	Id        uint64 `json:"id"`
	TimeStamp int64  `json:"time_stamp"`
}

type RequestLastNBlocksMessage struct {
	Id uint64 `json:"id"`
	N  int    `json:"n"`
}

type RequestBlocksBeforeMessage struct {
	Id        uint64 `json:"id"`
	TimeStamp int64  `json:"time_stamp"`
}

type ResponseBlockMessage struct {
	Id        uint64      `json:"id"`
	Block     types.Block `json:"block"`
	TimeStamp int64       `json:"time_stamp"`
	Force     bool        `json:"force"`
}

type ResponseTransactionMessage struct {
	Id          uint64            `json:"id"`
	Transaction types.Transaction `json:"transaction"`
	TimeStamp   int64             `json:"time_stamp"`
}

type ResponseChainMessage struct {
	Id        uint64        `json:"id"`
	Chain     []types.Block `json:"chain"`
	TimeStamp int64         `json:"time_stamp"`
}

type ResponsePeerMessage struct {
	Id          uint64 `json:"id"`
	PeerAddress string `json:"peer_address"`
	TimeStamp   int64  `json:"time_stamp"`
}

type ResponseTextMessage struct {
	Id        uint64 `json:"id"`
	Message   string `json:"message"`
	TimeStamp int64  `json:"time_stamp"`
}

// Encode wraps payload in a Frame and appends the newline the
// ConnectionPool's framing relies on.
func Encode(tag Tag, payload interface{}) (string, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal payload")
	}

	frame := Frame{Type: tag, Content: content}
	line, err := json.Marshal(frame)
	if err != nil {
		return "", errors.Wrap(err, "marshal frame")
	}

	return string(line) + "\n", nil
}

// DecodeFrame parses a single newline-terminated line into its tag
// and raw content, ready for a type-specific Unmarshal.
func DecodeFrame(line string) (Tag, json.RawMessage, error) {
	var frame Frame
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		return "", nil, errors.Wrap(err, "unmarshal frame")
	}
	return frame.Type, frame.Content, nil
}

package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := ResponseBlockMessage{
		Id:        7,
		Block:     types.Block{Id: 1, PreviousHash: "abc"},
		TimeStamp: 1000,
	}

	line, err := Encode(TagResponseBlock, msg)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(line, "\n"))

	tag, content, err := DecodeFrame(strings.TrimSuffix(line, "\n"))
	require.NoError(t, err)
	require.Equal(t, TagResponseBlock, tag)

	var decoded ResponseBlockMessage
	require.NoError(t, json.Unmarshal(content, &decoded))
	require.Equal(t, msg.Id, decoded.Id)
	require.Equal(t, msg.Block.Id, decoded.Block.Id)
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, _, err := DecodeFrame("not json")
	require.Error(t, err)
}

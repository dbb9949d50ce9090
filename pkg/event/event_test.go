package event

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"transfer":   "transfer",
		"my-event":   "my_event",
		"my_event":   "my_event",
		"Transfer!!": "transfer__",
		"Foo Bar 42": "foo_bar_42",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeName(in))
	}
}

func TestTableNameCollision(t *testing.T) {
	// Distinct event names can sanitize to the same table name.
	require.Equal(t, TableName("my-event"), TableName("my_event"))
	require.Equal(t, "events_my_event", TableName("my-event"))
}

func TestEncodeTopics(t *testing.T) {
	topics := []common.Hash{
		common.HexToHash("0xAABBCC"),
	}
	got := EncodeTopics(topics)
	require.Len(t, got, 1)
	require.True(t, len(got[0]) == 66)
	require.Equal(t, "0x", got[0][:2])
	require.Equal(t, got[0], common.HexToHash("0xAABBCC").Hex())
}

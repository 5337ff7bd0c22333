package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUint32s(t *testing.T) {
	value := []byte{0x01, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0x02}
	assert.Equal(t, []uint32{1, 0xffffffff}, decodeUint32s(value))
	assert.Empty(t, decodeUint32s(nil))
}

func TestParseWMClass(t *testing.T) {
	assert.Equal(t, "Firefox", parseWMClass([]byte("Navigator\x00Firefox\x00")))
	assert.Equal(t, "xterm", parseWMClass([]byte("xterm\x00")))
}

func TestX11WindowIDRoundTrip(t *testing.T) {
	id := FormatX11WindowID(0x3a00007)
	assert.Equal(t, "0x03a00007", id)

	parsed, err := ParseX11WindowID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x3a00007), parsed)

	_, err = ParseX11WindowID("0xzz")
	assert.Error(t, err)
}

func TestAwaitReplyHonoursContext(t *testing.T) {
	value, err := awaitReply(context.Background(), func() ([]byte, error) {
		return []byte{1, 2, 3, 4}, nil
	})
	require.NoError(t, err)
	assert.Len(t, value, 4)

	block := make(chan struct{})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = awaitReply(ctx, func() ([]byte, error) {
		<-block
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

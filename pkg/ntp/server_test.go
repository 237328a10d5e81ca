package ntp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/otpvault/pkg/ntp"
)

func TestServerAnswersClient(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	srv := &ntp.Server{
		Now:         func() time.Time { return time.Now().Add(-3 * time.Second) },
		Stratum:     2,
		ReferenceID: 0x4c4f434c, // "LOCL"
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, pc) }()

	c := ntp.NewClient(ntp.WithTimeout(2 * time.Second))
	resp, err := c.Query(context.Background(), pc.LocalAddr().String())
	require.NoError(t, err)
	assert.InDelta(t, (-3 * time.Second).Seconds(), resp.Offset.Seconds(), 0.1)
	assert.Equal(t, uint8(2), resp.Stratum)
	assert.Equal(t, uint32(0x4c4f434c), resp.ReferenceID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

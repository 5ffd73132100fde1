package stream

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeDialer(server net.Conn) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		return server, nil
	}
}

func TestSubscribeReceivesBroadcastFrame(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	m := NewManager("dev1", pipeDialer(clientSide), eventlog.NoopLogger{})

	sub, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	go writeFrame(serverSide, []byte("jpegbytes"))

	part, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(part, []byte("image/jpeg")))
	assert.True(t, bytes.Contains(part, []byte("jpegbytes")))
}

func TestMultipleSubscribersAllReceiveFrame(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	m := NewManager("dev1", pipeDialer(clientSide), eventlog.NoopLogger{})

	sub1, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub1.Close()

	sub2, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub2.Close()

	assert.Equal(t, 2, m.SubscriberCount())

	go writeFrame(serverSide, []byte("frame1"))

	p1, err := sub1.Next(context.Background())
	require.NoError(t, err)
	p2, err := sub2.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestStopSignalsEndOfStreamToSubscribers(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	m := NewManager("dev1", pipeDialer(clientSide), eventlog.NoopLogger{})

	sub, err := m.Subscribe(context.Background())
	require.NoError(t, err)

	m.Stop()

	_, err = sub.Next(context.Background())
	assert.Error(t, err)
}

func TestUnsubscribeDropsFromActiveCount(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	m := NewManager("dev1", pipeDialer(clientSide), eventlog.NoopLogger{})

	sub, err := m.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestSubscriptionNextHonoursContextCancellation(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	m := NewManager("dev1", pipeDialer(clientSide), eventlog.NoopLogger{})
	sub, err := m.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return promptly after context cancellation and timeout")
	}
}

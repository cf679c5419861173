package stomp_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"livon-client/internal/core/domain"
	"livon-client/internal/plugins/stomp"
	"livon-client/internal/plugins/stomp/stomptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialErr(t *testing.T, b *stomptest.Broker, token string) error {
	t.Helper()
	d := stomp.NewDialer(nil, stomp.Options{HandshakeTimeout: 2 * time.Second, WriteTimeout: time.Second})
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, err := d.Dial(context.Background(), b.URL(), h)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func TestDialRejectsBadCredential(t *testing.T) {
	b := stomptest.New(t, "good")
	err := dialErr(t, b, "bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthRejected))
}

func TestDialBrokerErrorIsTransportLost(t *testing.T) {
	b := stomptest.New(t, "good")
	b.RejectWith("broker overloaded")
	err := dialErr(t, b, "good")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransportLost))
}

func TestDialUnreachableIsTransportLost(t *testing.T) {
	d := stomp.NewDialer(nil, stomp.Options{HandshakeTimeout: 200 * time.Millisecond})
	_, err := d.Dial(context.Background(), "ws://127.0.0.1:1/chat", http.Header{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransportLost))
}

func TestConnSubscribeSendAndDeliverInOrder(t *testing.T) {
	b := stomptest.New(t, "tok")
	d := stomp.NewDialer(nil, stomp.Options{HandshakeTimeout: 2 * time.Second, WriteTimeout: time.Second})
	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	conn, err := d.Dial(context.Background(), b.URL(), h)
	require.NoError(t, err)
	defer conn.Close()

	var mu sync.Mutex
	var got []string
	_, err = conn.Subscribe("/topic/room/r1", func(body []byte) {
		mu.Lock()
		got = append(got, string(body))
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Subscribed("/topic/room/r1") }, 2*time.Second, 10*time.Millisecond)

	for _, body := range []string{"1", "2", "3"} {
		require.True(t, b.Publish("/topic/room/r1", body))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, got)

	require.NoError(t, conn.Send("/app/sendMessage/r1", []byte(`{"content":"x"}`)))
	require.Eventually(t, func() bool { return len(b.Sent("/app/sendMessage/r1")) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnCloseFlushesQueuedFrames(t *testing.T) {
	b := stomptest.New(t, "tok")
	d := stomp.NewDialer(nil, stomp.Options{HandshakeTimeout: 2 * time.Second, WriteTimeout: time.Second})
	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	conn, err := d.Dial(context.Background(), b.URL(), h)
	require.NoError(t, err)

	require.NoError(t, conn.Send("/app/leave/r1", []byte(`{"roomId":"r1"}`)))
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return len(b.Frames(stomp.CmdDisconnect)) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, b.Sent("/app/leave/r1"), 1)
	assert.NoError(t, conn.Err())

	err = conn.Send("/app/sendMessage/r1", []byte("{}"))
	assert.True(t, errors.Is(err, domain.ErrNotConnected))
}

func TestConnDropIsTransportLost(t *testing.T) {
	b := stomptest.New(t, "tok")
	d := stomp.NewDialer(nil, stomp.Options{HandshakeTimeout: 2 * time.Second})
	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	conn, err := d.Dial(context.Background(), b.URL(), h)
	require.NoError(t, err)
	defer conn.Close()

	b.DropConnections()
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not notice the drop")
	}
	assert.True(t, errors.Is(conn.Err(), domain.ErrTransportLost))
}

func TestConnMidSessionAuthError(t *testing.T) {
	b := stomptest.New(t, "tok")
	d := stomp.NewDialer(nil, stomp.Options{HandshakeTimeout: 2 * time.Second})
	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	conn, err := d.Dial(context.Background(), b.URL(), h)
	require.NoError(t, err)
	defer conn.Close()

	b.SendError("Access denied: token expired")
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not fail on ERROR frame")
	}
	assert.True(t, errors.Is(conn.Err(), domain.ErrAuthRejected))
}

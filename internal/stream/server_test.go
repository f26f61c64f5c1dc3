package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/fakebackend"
)

func testServer(t *testing.T, maxQueue int, fakeCfg fakebackend.Config) (*httptest.Server, *Server) {
	t.Helper()

	kind := backend.IdsPeak
	fakebackend.Register(kind, fakeCfg)

	log := zap.NewNop()
	srv := New("", ProducerConfig{
		CamIndex:       0,
		Backend:        kind,
		CompressionExt: ".png",
		FPS:            50,
		MaxQueue:       maxQueue,
		DebayerEnabled: false,
	}, log)

	hs := httptest.NewServer(srv.router)
	t.Cleanup(hs.Close)

	go srv.producer.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	return hs, srv
}

func dialWS(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestIdleToStreamingTransition covers spec.md §8 scenario 1.
func TestIdleToStreamingTransition(t *testing.T) {
	hs, _ := testServer(t, 10, fakebackend.Config{FrameSize: 8})
	conn := dialWS(t, hs)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("status")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, []string{"idle", "starting"}, string(msg))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("start")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.NotEmpty(t, frame)
}

// TestFanoutEquality covers spec.md §8 scenario 2.
func TestFanoutEquality(t *testing.T) {
	hs, _ := testServer(t, 20, fakebackend.Config{FrameSize: 8})
	a := dialWS(t, hs)
	b := dialWS(t, hs)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("start")))
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("start")))

	a.SetReadDeadline(time.Now().Add(3 * time.Second))
	b.SetReadDeadline(time.Now().Add(3 * time.Second))

	for i := 0; i < 5; i++ {
		_, fa, err := a.ReadMessage()
		require.NoError(t, err)
		_, fb, err := b.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, fa, fb, "frame %d diverged between subscribers", i)
	}
}

// TestBackpressureEviction covers spec.md §8 scenario 3.
func TestBackpressureEviction(t *testing.T) {
	hs, _ := testServer(t, 2, fakebackend.Config{FrameSize: 8})
	a := dialWS(t, hs)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("start")))

	a.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		msgType, _, err := a.ReadMessage()
		if err != nil {
			ce, ok := err.(*websocket.CloseError)
			require.True(t, ok, "expected a close error, got %v", err)
			assert.Equal(t, 1011, ce.Code)
			assert.Equal(t, "queue full", ce.Text)
			return
		}
		if msgType == websocket.CloseMessage {
			return
		}
		// Deliberately never drain fast enough: no-op, keep reading the
		// control/ping traffic until backpressure kicks in.
	}
}

// TestCameraInUseRecovery covers spec.md §8 scenario 4.
func TestCameraInUseRecovery(t *testing.T) {
	hs, srv := testServer(t, 10, fakebackend.Config{FrameSize: 8, FailOpenTimes: 3})
	conn := dialWS(t, hs)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("start")))

	deadline := time.Now().Add(3 * time.Second)
	sawCaptureInUse := false
	for time.Now().Before(deadline) {
		if srv.producer.Status() == ErrorCaptureInUse {
			sawCaptureInUse = true
		}
		if srv.producer.Status() == Streaming {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.True(t, sawCaptureInUse, "expected to observe ErrorCaptureInUse before recovery")
	assert.Equal(t, Streaming, srv.producer.Status())
}

// TestIdleTeardown covers spec.md §8 scenario 5.
func TestIdleTeardown(t *testing.T) {
	hs, srv := testServer(t, 10, fakebackend.Config{FrameSize: 8})
	conn := dialWS(t, hs)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("start")))
	require.Eventually(t, func() bool {
		return srv.producer.Status() == Streaming
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("stop")))

	require.Eventually(t, func() bool {
		return srv.producer.Status() == Idle
	}, 2*time.Second, 20*time.Millisecond)
}

// TestGracefulShutdown covers spec.md §8 scenario 6.
func TestGracefulShutdown(t *testing.T) {
	hs, srv := testServer(t, 10, fakebackend.Config{FrameSize: 8})
	a := dialWS(t, hs)
	b := dialWS(t, hs)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("start")))
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("start")))

	require.Eventually(t, func() bool {
		return srv.producer.Status() == Streaming
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = srv.Stop(ctx)
		close(done)
	}()

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var closeErr *websocket.CloseError
		for {
			_, _, err := conn.ReadMessage()
			if err == nil {
				continue
			}
			var ok bool
			closeErr, ok = err.(*websocket.CloseError)
			require.True(t, ok, "expected close error, got %v", err)
			break
		}
		assert.Equal(t, 1001, closeErr.Code)
		assert.Equal(t, "shutdown", closeErr.Text)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within 2s of sending close frames")
	}
}

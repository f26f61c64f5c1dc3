package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       uuid.UUID
	sent     [][]byte
	closedAt *struct {
		code   int
		reason string
	}
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.New()} }

func (f *fakeConn) ID() uuid.UUID    { return f.id }
func (f *fakeConn) QueueLen() int    { return len(f.sent) }
func (f *fakeConn) Enqueue(msg []byte) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeConn) Close(code int, reason string) {
	f.closedAt = &struct {
		code   int
		reason string
	}{code, reason}
}

func TestAddIsSetSemantics(t *testing.T) {
	r := New()
	c := newFakeConn()
	r.Add(c)
	r.Add(c)
	assert.Equal(t, 1, r.Len())
}

func TestRemoveDropsSubscriber(t *testing.T) {
	r := New()
	c := newFakeConn()
	r.Add(c)
	r.Remove(c.ID())
	assert.Equal(t, 0, r.Len())
}

func TestWaitWakesOnAdd(t *testing.T) {
	r := New()
	done := make(chan bool, 1)

	go func() {
		done <- r.Wait()
	}()

	time.Sleep(20 * time.Millisecond)
	r.Add(newFakeConn())

	select {
	case nonempty := <-done:
		assert.True(t, nonempty)
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on Add")
	}
}

func TestWaitWakesOnStop(t *testing.T) {
	r := New()
	done := make(chan bool, 1)

	go func() {
		done <- r.Wait()
	}()

	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case nonempty := <-done:
		assert.False(t, nonempty)
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on Stop")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	c1, c2 := newFakeConn(), newFakeConn()
	r.Add(c1)
	r.Add(c2)

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	r.Remove(c1.ID())
	assert.Len(t, snap, 2, "snapshot must not be affected by later mutation")
	assert.Equal(t, 1, r.Len())
}

func TestCloseAllEmptiesRegistry(t *testing.T) {
	r := New()
	c1, c2 := newFakeConn(), newFakeConn()
	r.Add(c1)
	r.Add(c2)

	r.CloseAll(1001, "shutdown")

	assert.Equal(t, 0, r.Len())
	require.NotNil(t, c1.closedAt)
	assert.Equal(t, 1001, c1.closedAt.code)
	assert.Equal(t, "shutdown", c1.closedAt.reason)
}

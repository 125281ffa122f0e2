package control

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu   sync.Mutex
	data [][]byte
}

func (r *recordingSink) WriteRaw(p []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, append([]byte(nil), p...))
	return true, nil
}

func (r *recordingSink) all() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

func TestRequestFrame(t *testing.T) {
	b, err := Request{Command: CmdShareName, Argument: 0x1122334455667788}.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, RequestSize)
	assert.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, b)

	var r Request
	require.NoError(t, r.UnmarshalBinary(b))
	assert.Equal(t, CmdShareName, r.Command)
	assert.Equal(t, uint64(0x1122334455667788), r.Argument)

	assert.Error(t, r.UnmarshalBinary(b[:8]))
	assert.Equal(t, "update-maps", CmdUpdateMaps.String())
	assert.Equal(t, "command_99", Command(99).String())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "/run/coretrace.42.sock", SocketPath("/run", 42))
	assert.Equal(t, "/coretrace.42.7", ShmName(42, 7))
}

func TestSharedBuffer(t *testing.T) {
	dir := t.TempDir()
	cfg := BufferConfig{
		Capacity: 64,
		PageSize: 4096,
		MaxStack: 1 << 16,
		MaxParam: 4096,
		Filter:   []byte{0xff, 0x01},
		ABI:      []byte{3, 2, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	}
	owner, err := CreateSharedBuffer(dir, "/coretrace.1.0", cfg)
	require.NoError(t, err)

	peer, err := OpenSharedBuffer(dir, "/coretrace.1.0")
	require.NoError(t, err)
	assert.Equal(t, cfg, peer.Config())
	assert.Equal(t, "/coretrace.1.0", peer.Name())

	require.NoError(t, peer.Append([]byte("hello ")))
	require.NoError(t, peer.Append([]byte("world")))
	assert.Equal(t, uint64(11), owner.Len())
	assert.ErrorIs(t, peer.Append(make([]byte, 60)), ErrBufferFull)

	assert.Equal(t, []byte("hello world"), owner.Drain())
	assert.Zero(t, peer.Len())
	assert.Empty(t, owner.Drain())

	require.NoError(t, peer.Close())
	require.NoError(t, owner.Close())
	_, err = os.Stat(shmPath(dir, "/coretrace.1.0"))
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, owner.Append([]byte("x")), ErrBufferClosed)
}

func TestSharedBufferRejectsBadCapacity(t *testing.T) {
	_, err := CreateSharedBuffer(t.TempDir(), "/x", BufferConfig{})
	assert.Error(t, err)
}

func TestServer(t *testing.T) {
	dir := t.TempDir()
	shmDir := t.TempDir()
	sink := &recordingSink{}
	const pid = 4242

	srv := NewServer(zaptest.NewLogger(t), pid, ServerOptions{
		Dir:    dir,
		ShmDir: shmDir,
		Sink:   sink,
		BufferConfig: func() BufferConfig {
			return BufferConfig{PageSize: 4096, MaxParam: 128, Filter: []byte{1}}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))

	c, err := Dial(ctx, dir, pid)
	require.NoError(t, err)
	defer c.Close()

	call := func(cmd Command, arg uint64) int32 {
		t.Helper()
		st, err := c.Call(cmd, arg)
		require.NoError(t, err)
		return st
	}

	assert.Equal(t, StatusNoBuffer, call(CmdFlushSharedBuffers, 0))
	assert.Equal(t, StatusOK, call(CmdShareName, 7))
	assert.Equal(t, StatusOK, call(CmdInitSharedBuffers, 1024))

	buf, err := OpenSharedBuffer(shmDir, ShmName(pid, 7))
	require.NoError(t, err)
	defer buf.Close()
	assert.Equal(t, uint32(128), buf.Config().MaxParam)
	assert.Equal(t, uint64(1024), buf.Capacity())

	require.NoError(t, buf.Append([]byte("record")))
	assert.Equal(t, StatusOK, call(CmdFlushSharedBuffers, 0))
	assert.Equal(t, [][]byte{[]byte("record")}, sink.all())

	_, ok := srv.TakeDump()
	assert.False(t, ok)
	assert.Equal(t, StatusOK, call(CmdEnableDump, 1))
	enabled, ok := srv.TakeDump()
	assert.True(t, ok)
	assert.True(t, enabled)
	_, ok = srv.TakeDump()
	assert.False(t, ok)

	assert.False(t, srv.TakeUpdateMaps())
	assert.Equal(t, StatusOK, call(CmdUpdateMaps, 0))
	assert.True(t, srv.TakeUpdateMaps())
	assert.False(t, srv.TakeUpdateMaps())

	assert.Equal(t, StatusUnknownCommand, call(Command(42), 0))

	require.NoError(t, buf.Append([]byte("tail")))
	require.NoError(t, srv.Close())
	srv.Wait()
	assert.Equal(t, [][]byte{[]byte("record"), []byte("tail")}, sink.all())

	_, err = os.Stat(srv.Path())
	assert.True(t, os.IsNotExist(err))
}

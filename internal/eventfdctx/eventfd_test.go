package eventfdctx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiixyj/epoll-shim-go/internal/eventfdctx"
	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
)

type fakeQueue struct {
	triggers int
	drains   int
}

func (f *fakeQueue) Register([]kqueue.Change) ([]kqueue.Receipt, error) { return nil, nil }
func (f *fakeQueue) Drain(int, *time.Duration) ([]kqueue.Event, error) {
	f.drains++
	return nil, nil
}
func (f *fakeQueue) Trigger() error      { f.triggers++; return nil }
func (f *fakeQueue) ClearTrigger() error { return nil }
func (f *fakeQueue) HostFD() int         { return -1 }
func (f *fakeQueue) Close() error        { return nil }

func TestNewTriggersOnNonzeroCounter(t *testing.T) {
	q := &fakeQueue{}
	_, err := eventfdctx.New(q, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, q.triggers)
}

func TestNewDoesNotTriggerOnZeroCounter(t *testing.T) {
	q := &fakeQueue{}
	_, err := eventfdctx.New(q, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, q.triggers)
}

func TestNewRejectsUnknownFlags(t *testing.T) {
	q := &fakeQueue{}
	_, err := eventfdctx.New(q, 0, 1<<30)
	assert.Error(t, err)
}

func TestReadDefaultModeDrainsWholeCounter(t *testing.T) {
	q := &fakeQueue{}
	s, err := eventfdctx.New(q, 3, 0)
	require.NoError(t, err)

	v, err := s.Read()
	require.NoError(t, err)
	assert.EqualValues(t, 3, v)

	_, err = s.Read()
	assert.ErrorIs(t, err, shimerr.EAGAIN)
}

func TestReadSemaphoreModeDecrementsByOne(t *testing.T) {
	q := &fakeQueue{}
	s, err := eventfdctx.New(q, 3, eventfdctx.Semaphore)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := s.Read()
		require.NoError(t, err)
		assert.EqualValues(t, 1, v)
	}
	_, err = s.Read()
	assert.ErrorIs(t, err, shimerr.EAGAIN)
}

func TestWriteAccumulatesAndTriggers(t *testing.T) {
	q := &fakeQueue{}
	s, err := eventfdctx.New(q, 0, 0)
	require.NoError(t, err)

	require.NoError(t, s.Write(2))
	require.NoError(t, s.Write(3))
	assert.Equal(t, 2, q.triggers)

	v, err := s.Read()
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
}

func TestWriteRejectsMaxUint64(t *testing.T) {
	q := &fakeQueue{}
	s, err := eventfdctx.New(q, 0, 0)
	require.NoError(t, err)
	err = s.Write(^uint64(0))
	assert.Error(t, err)
}

func TestWriteSaturatesInsteadOfOverflowing(t *testing.T) {
	q := &fakeQueue{}
	s, err := eventfdctx.New(q, ^uint64(0)-1, 0)
	require.NoError(t, err)
	err = s.Write(5)
	assert.Error(t, err)
}

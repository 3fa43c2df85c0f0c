package signalfdctx_test

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
	"github.com/jiixyj/epoll-shim-go/internal/signalfdctx"
)

type fakeQueue struct {
	triggers int
	clears   int
}

func (f *fakeQueue) Register([]kqueue.Change) ([]kqueue.Receipt, error) { return nil, nil }
func (f *fakeQueue) Drain(int, *time.Duration) ([]kqueue.Event, error)  { return nil, nil }
func (f *fakeQueue) Trigger() error                                     { f.triggers++; return nil }
func (f *fakeQueue) ClearTrigger() error                                { f.clears++; return nil }
func (f *fakeQueue) HostFD() int                                        { return -1 }
func (f *fakeQueue) Close() error                                       { return nil }

func TestNewRejectsEmptySignalSet(t *testing.T) {
	_, err := signalfdctx.New(&fakeQueue{}, nil)
	assert.Error(t, err)
}

func TestReadWithNothingPendingReturnsEAGAIN(t *testing.T) {
	q := &fakeQueue{}
	s, err := signalfdctx.New(q, []int{int(syscall.SIGUSR1)})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Read()
	assert.ErrorIs(t, err, shimerr.EAGAIN)
}

func TestRaisedSignalIsDeliveredThroughRead(t *testing.T) {
	q := &fakeQueue{}
	s, err := signalfdctx.New(q, []int{int(syscall.SIGUSR1)})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	var rec signalfdctx.Siginfo
	require.Eventually(t, func() bool {
		var err error
		rec, err = s.Read()
		return err == nil
	}, time.Second, time.Millisecond)

	assert.EqualValues(t, syscall.SIGUSR1, rec.Signo)
	assert.Greater(t, q.triggers, 0)
}

func TestPollReportsNoSignalWhenEmpty(t *testing.T) {
	q := &fakeQueue{}
	s, err := signalfdctx.New(q, []int{int(syscall.SIGUSR2)})
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Poll())
}

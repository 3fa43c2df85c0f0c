package timerfdctx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
	"github.com/jiixyj/epoll-shim-go/internal/timerfdctx"
	"github.com/jiixyj/epoll-shim-go/internal/timespec"
)

// fakeQueue hands back exactly one ready FilterTimer event per pending
// registration, enough to drive State.Read's harvest loop without a real
// kqueue.
type fakeQueue struct {
	pending int
}

func (f *fakeQueue) Register(changes []kqueue.Change) ([]kqueue.Receipt, error) {
	for _, c := range changes {
		if c.Flags&kqueue.FlagAdd != 0 {
			f.pending++
		}
		if c.Flags&kqueue.FlagDelete != 0 {
			f.pending = 0
		}
	}
	return make([]kqueue.Receipt, len(changes)), nil
}

func (f *fakeQueue) Drain(max int, _ *time.Duration) ([]kqueue.Event, error) {
	if f.pending == 0 {
		return nil, nil
	}
	f.pending--
	return []kqueue.Event{{Filter: kqueue.FilterTimer}}, nil
}

func (f *fakeQueue) Trigger() error      { return nil }
func (f *fakeQueue) ClearTrigger() error { return nil }
func (f *fakeQueue) HostFD() int         { return -1 }
func (f *fakeQueue) Close() error        { return nil }

func TestSettimeRejectsInvalidItimerspec(t *testing.T) {
	s, err := timerfdctx.New(&fakeQueue{}, timerfdctx.ClockMonotonic)
	require.NoError(t, err)

	_, err = s.Settime(0, timespec.Itimerspec{Value: timespec.Timespec{Nsec: -1}})
	assert.ErrorIs(t, err, shimerr.EINVAL)
}

func TestSettimeZeroValueDisarms(t *testing.T) {
	q := &fakeQueue{}
	s, err := timerfdctx.New(q, timerfdctx.ClockMonotonic)
	require.NoError(t, err)

	_, err = s.Settime(0, timespec.Itimerspec{Value: timespec.Timespec{Sec: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, q.pending)

	_, err = s.Settime(0, timespec.Itimerspec{})
	require.NoError(t, err)
	assert.Equal(t, 0, q.pending)
}

func TestReadWithNoExpirationReturnsEAGAIN(t *testing.T) {
	q := &fakeQueue{}
	s, err := timerfdctx.New(q, timerfdctx.ClockMonotonic)
	require.NoError(t, err)

	_, err = s.Read()
	assert.ErrorIs(t, err, shimerr.EAGAIN)
}

func TestReadAfterExpirationReportsOneShot(t *testing.T) {
	q := &fakeQueue{}
	s, err := timerfdctx.New(q, timerfdctx.ClockMonotonic)
	require.NoError(t, err)

	_, err = s.Settime(0, timespec.Itimerspec{Value: timespec.Timespec{Nsec: 1}})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	n, err := s.Read()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, 0, q.pending)
}

func TestReadPeriodicTimerCoalescesMissedTicks(t *testing.T) {
	q := &fakeQueue{}
	s, err := timerfdctx.New(q, timerfdctx.ClockMonotonic)
	require.NoError(t, err)

	_, err = s.Settime(0, timespec.Itimerspec{
		Value:    timespec.Timespec{Nsec: 1},
		Interval: timespec.Timespec{Nsec: 1},
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	n, err := s.Read()
	require.NoError(t, err)
	assert.Greater(t, n, uint64(1))

	assert.Equal(t, 1, q.pending, "periodic timer re-arms after harvesting")
}

func TestRealtimeClockSubscribesAndUnsubscribesCleanly(t *testing.T) {
	q := &fakeQueue{}
	s, err := timerfdctx.New(q, timerfdctx.ClockRealtime)
	require.NoError(t, err)
	s.Close()
}

func TestGettimeReportsRemainingNotAbsolute(t *testing.T) {
	q := &fakeQueue{}
	s, err := timerfdctx.New(q, timerfdctx.ClockMonotonic)
	require.NoError(t, err)

	_, err = s.Settime(0, timespec.Itimerspec{Value: timespec.Timespec{Sec: 10}})
	require.NoError(t, err)

	cur := s.Gettime()
	assert.LessOrEqual(t, cur.Value.Sec, int64(10))
	assert.Greater(t, cur.Value.Sec, int64(0))
}

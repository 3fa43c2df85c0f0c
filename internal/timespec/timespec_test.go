package timespec_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiixyj/epoll-shim-go/internal/timespec"
)

func TestAddCarriesNsecIntoSec(t *testing.T) {
	a := timespec.Timespec{Sec: 1, Nsec: 900_000_000}
	b := timespec.Timespec{Sec: 0, Nsec: 200_000_000}
	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, timespec.Timespec{Sec: 2, Nsec: 100_000_000}, sum)
}

func TestAddOverflows(t *testing.T) {
	a := timespec.Timespec{Sec: math.MaxInt64, Nsec: 0}
	b := timespec.Timespec{Sec: 1, Nsec: 0}
	_, err := a.Add(b)
	assert.ErrorIs(t, err, timespec.ErrOverflow)
}

func TestSubBorrowsFromSec(t *testing.T) {
	a := timespec.Timespec{Sec: 2, Nsec: 100_000_000}
	b := timespec.Timespec{Sec: 0, Nsec: 200_000_000}
	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, timespec.Timespec{Sec: 1, Nsec: 900_000_000}, diff)
}

func TestSaturatingSubClampsToZero(t *testing.T) {
	a := timespec.Timespec{Sec: 1}
	b := timespec.Timespec{Sec: 5}
	assert.Equal(t, timespec.Timespec{}, a.SaturatingSub(b))
}

func TestToMicrosecondsRoundsUp(t *testing.T) {
	ts := timespec.Timespec{Sec: 0, Nsec: 1500}
	micros, err := ts.ToMicroseconds()
	require.NoError(t, err)
	assert.Equal(t, int64(2), micros)
}

func TestCompareAndBefore(t *testing.T) {
	a := timespec.Timespec{Sec: 1}
	b := timespec.Timespec{Sec: 2}
	assert.True(t, a.Before(b))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestItimerspecIsPeriodic(t *testing.T) {
	its := timespec.Itimerspec{Value: timespec.Timespec{Sec: 1}}
	assert.False(t, its.IsPeriodic())
	its.Interval = timespec.Timespec{Sec: 1}
	assert.True(t, its.IsPeriodic())
}

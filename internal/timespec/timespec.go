// Package timespec provides overflow-checked arithmetic on Linux-style
// (seconds, nanoseconds) timestamps, the currency of timerfd settime/gettime.
package timespec

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrOverflow is returned by Add/Sub/ToMicroseconds on signed overflow.
var ErrOverflow = errors.New("timespec: overflow")

// Timespec is a (seconds, nanoseconds) pair, matching unix.Timespec's value
// domain without depending on its platform-specific field widths.
type Timespec struct {
	Sec  int64
	Nsec int64
}

const billion = int64(time.Second)

// Valid reports whether ts could have come from clock_gettime: Sec >= 0 and
// 0 <= Nsec < 1e9.
func (ts Timespec) Valid() bool {
	return ts.Sec >= 0 && ts.Nsec >= 0 && ts.Nsec < billion
}

// IsZero reports whether ts is the zero value, the "disarm" sentinel.
func (ts Timespec) IsZero() bool {
	return ts.Sec == 0 && ts.Nsec == 0
}

// Before reports whether ts happens before other.
func (ts Timespec) Before(other Timespec) bool {
	if ts.Sec != other.Sec {
		return ts.Sec < other.Sec
	}
	return ts.Nsec < other.Nsec
}

// Compare returns -1, 0 or 1 as ts is before, equal to, or after other.
func (ts Timespec) Compare(other Timespec) int {
	switch {
	case ts.Before(other):
		return -1
	case other.Before(ts):
		return 1
	default:
		return 0
	}
}

// Add returns ts+other, failing on signed overflow exactly like the C
// original's timespecadd_safe.
func (ts Timespec) Add(other Timespec) (Timespec, error) {
	sec, ok := addOverflow(ts.Sec, other.Sec)
	if !ok {
		return Timespec{}, ErrOverflow
	}
	nsec := ts.Nsec + other.Nsec
	if nsec >= billion {
		sec, ok = addOverflow(sec, 1)
		if !ok {
			return Timespec{}, ErrOverflow
		}
		nsec -= billion
	}
	return Timespec{Sec: sec, Nsec: nsec}, nil
}

// Sub returns ts-other, failing on signed overflow exactly like the C
// original's timespecsub_safe.
func (ts Timespec) Sub(other Timespec) (Timespec, error) {
	sec, ok := subOverflow(ts.Sec, other.Sec)
	if !ok {
		return Timespec{}, ErrOverflow
	}
	nsec := ts.Nsec - other.Nsec
	if nsec < 0 {
		sec, ok = subOverflow(sec, 1)
		if !ok {
			return Timespec{}, ErrOverflow
		}
		nsec += billion
	}
	return Timespec{Sec: sec, Nsec: nsec}, nil
}

// SaturatingSub is Sub, but a negative result (other happens after ts)
// saturates to zero instead of going negative.
func (ts Timespec) SaturatingSub(other Timespec) Timespec {
	d, err := ts.Sub(other)
	if err != nil || d.Sec < 0 {
		return Timespec{}
	}
	return d
}

// ToMicroseconds converts ts to a microsecond count, rounding any
// sub-microsecond remainder up, and failing on overflow. Used to build the
// NOTE_USECONDS payload of a one-shot EVFILT_TIMER registration.
func (ts Timespec) ToMicroseconds() (int64, error) {
	micros, ok := mulOverflow(ts.Sec, 1_000_000)
	if !ok {
		return 0, ErrOverflow
	}
	micros, ok = addOverflow(micros, ts.Nsec/1000)
	if !ok {
		return 0, ErrOverflow
	}
	if ts.Nsec%1000 != 0 {
		micros, ok = addOverflow(micros, 1)
		if !ok {
			return 0, ErrOverflow
		}
	}
	return micros, nil
}

// FromDuration converts a time.Duration to a Timespec.
func FromDuration(d time.Duration) Timespec {
	return Timespec{Sec: int64(d / time.Second), Nsec: int64(d % time.Second)}
}

// Duration converts ts to a time.Duration, saturating rather than
// overflowing.
func (ts Timespec) Duration() time.Duration {
	if ts.Sec > int64(math.MaxInt64/int64(time.Second)) {
		return math.MaxInt64
	}
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}

// Itimerspec mirrors struct itimerspec: the current value plus a reload
// interval for periodic timers.
type Itimerspec struct {
	Interval Timespec
	Value    Timespec
}

// Valid reports whether both components of its are individually valid.
func (its Itimerspec) Valid() bool {
	return its.Value.Valid() && its.Interval.Valid()
}

// IsPeriodic reports whether its reloads (non-zero interval).
func (its Itimerspec) IsPeriodic() bool {
	return !its.Interval.IsZero()
}

func addOverflow(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func subOverflow(a, b int64) (int64, bool) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, false
	}
	return diff, true
}

func mulOverflow(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

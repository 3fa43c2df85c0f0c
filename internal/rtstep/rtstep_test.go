package rtstep_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jiixyj/epoll-shim-go/internal/rtstep"
)

type countingSubscriber struct {
	notified int
}

func (c *countingSubscriber) NotifyRealtimeStep() { c.notified++ }

func TestRegisterUnregisterIsIdempotentAndSafe(t *testing.T) {
	d := rtstep.Default()
	sub := &countingSubscriber{}

	d.Register(sub)
	d.Unregister(sub)
	// unregistering twice must not panic (double-close tolerance, same
	// spirit as the registry's Remove being a no-op on a missing key).
	d.Unregister(sub)

	assert.Equal(t, 0, sub.notified)
}

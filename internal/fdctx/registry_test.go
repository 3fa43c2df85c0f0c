package fdctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiixyj/epoll-shim-go/internal/fdctx"
)

func TestInsertLookupRemove(t *testing.T) {
	r2, err := fdctx.Default().Insert(1000001, fdctx.KindEvent, 1000001, "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", r2.Payload())

	desc, ok := fdctx.Default().Lookup(1000001)
	require.True(t, ok)
	assert.Equal(t, fdctx.KindEvent, desc.Kind)

	fdctx.Default().Remove(1000001)
	_, ok = fdctx.Default().Lookup(1000001)
	assert.False(t, ok)
}

func TestInsertRejectsDuplicateFD(t *testing.T) {
	_, err := fdctx.Default().Insert(1000002, fdctx.KindEpoll, 1000002, nil)
	require.NoError(t, err)
	defer fdctx.Default().Remove(1000002)

	_, err = fdctx.Default().Insert(1000002, fdctx.KindEpoll, 1000002, nil)
	assert.ErrorIs(t, err, fdctx.ErrAlreadyRegistered)
}

func TestDescriptionConcurrentJobGatesClose(t *testing.T) {
	desc, err := fdctx.Default().Insert(1000003, fdctx.KindTimer, 1000003, nil)
	require.NoError(t, err)
	defer fdctx.Default().Remove(1000003)

	require.True(t, desc.Begin())
	desc.End()

	desc.Close()
	assert.True(t, desc.Closed())
	assert.False(t, desc.Begin())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "epoll", fdctx.KindEpoll.String())
	assert.Equal(t, "eventfd", fdctx.KindEvent.String())
	assert.Equal(t, "timerfd", fdctx.KindTimer.String())
	assert.Equal(t, "signalfd", fdctx.KindSignal.String())
}

package eventbus

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lendops/pkg/logging"
)

type args struct {
	data string
}

type otherArgs struct{}

func bufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log, buf
}

func TestPublish_NoMatchingSubscribers(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := New(log)
	bus.Subscribe(func(e *args) {
		t.Error("should not be called")
	})

	bus.Publish(&otherArgs{})
	require.Contains(t, buf.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublish_DeliversToMatchingHandler(t *testing.T) {
	bus := New(logging.ConsoleLogger(logrus.WarnLevel))
	var got string
	bus.Subscribe(func(e *args) { got = e.data })
	bus.Subscribe(func(ctx context.Context, e *args) { got += "+ctx" })

	bus.Publish(&args{data: "test"})
	require.Equal(t, "test", got)

	bus.Publish(context.Background(), &args{data: "x"})
	require.Equal(t, "test+ctx", got)
}

func TestPublish_PanicIsRecoveredAndOtherHandlersRun(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := New(log)

	var first, third bool
	bus.Subscribe(func(e *args) { first = true })
	bus.Subscribe(func(e *args) { panic("intentional panic") })
	bus.Subscribe(func(e *args) { third = true })

	require.NotPanics(t, func() { bus.Publish(&args{data: "d"}) })
	require.True(t, first)
	require.True(t, third)
	require.Contains(t, buf.String(), "intentional panic")
	require.NotContains(t, buf.String(), "no matching subscribers")
}

func TestPublish_AllHandlersPanicWarnsUnhandled(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := New(log)
	bus.Subscribe(func(e *args) { panic("always") })

	bus.Publish(&args{})
	require.Contains(t, buf.String(), "no matching subscribers")
}

func TestPublishE(t *testing.T) {
	bus := New(nil)
	require.ErrorIs(t, bus.PublishE(&args{}), ErrNoSubscribers)

	boom := errors.New("boom")
	bus.Subscribe(func(e *args) error { return boom })
	bus.Subscribe(func(e *args) error { return nil })
	bus.Subscribe(func(e *args) {})
	require.ErrorIs(t, bus.PublishE(&args{}), boom)

	bus.Clear()
	bus.Subscribe(func(e *args) int { return 1 })
	require.ErrorIs(t, bus.PublishE(&args{}), ErrInvalidHandlerReturn)

	bus.Clear()
	bus.Subscribe(func(e *args) error { panic("p") })
	require.ErrorIs(t, bus.PublishE(&args{}), ErrHandlerPanicked)
}

func TestPublish_NilArgument(t *testing.T) {
	bus := New(nil)
	called := false
	bus.Subscribe(func(e *args) {
		called = true
		require.Nil(t, e)
	})
	bus.Publish(nil)
	require.True(t, called)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	bus := New(nil)
	h1 := func(e *args) {}
	h2 := func(e *otherArgs) {}
	bus.Subscribe(h1)
	bus.Subscribe(h2)
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Unsubscribe(h1)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Clear()
	require.Zero(t, bus.SubscribersCount())

	require.Panics(t, func() { bus.Subscribe("not a func") })
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *args) {}, []any{&args{}}))
	require.False(t, MatchSignature(func(e *args) {}, []any{&otherArgs{}}))
	require.False(t, MatchSignature(func(e *args) {}, []any{}))
	require.False(t, MatchSignature(func(e *args) {}, []any{&args{}, &args{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.False(t, MatchSignature(func(n int) {}, []any{nil}))
	require.False(t, MatchSignature("x", nil))
}

package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicks/internal/event"
)

func TestChanSourcePushDropsWhenFull(t *testing.T) {
	src := NewChanSource(1)
	assert.True(t, src.Push(event.Raw{Target: "a"}))
	assert.False(t, src.Push(event.Raw{Target: "b"}))
}

func TestChanSourceStreamsInOrder(t *testing.T) {
	src := NewChanSource(4)
	src.Push(event.Raw{Target: "a"})
	src.Push(event.Raw{Target: "b"})

	stop := errors.New("stop")
	var got []string
	err := src.Stream(context.Background(), func(ev event.Raw) error {
		got = append(got, ev.Target)
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestChanSourceStopsOnCancel(t *testing.T) {
	src := NewChanSource(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := src.Stream(ctx, func(event.Raw) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceFunc(t *testing.T) {
	var s Source = SourceFunc(func(ctx context.Context, emit func(event.Raw) error) error {
		return emit(event.Raw{Target: "fn"})
	})
	var got event.Raw
	require.NoError(t, s.Stream(context.Background(), func(ev event.Raw) error {
		got = ev
		return nil
	}))
	assert.Equal(t, "fn", got.Target)
}

package pubchannel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusBroadcastsToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish("CAS_DONE:0")

	assert.Equal(t, "CAS_DONE:0", <-a)
	assert.Equal(t, "CAS_DONE:0", <-b)
}

func TestInboxAwaitReturnsFirstMatchKeepingOrder(t *testing.T) {
	ib := NewInbox()
	ib.Push(Message{Kind: KindCasReq, Pass: 0, Start: 0, Length: 2})
	ib.Push(Message{Kind: KindCasDone, Pass: 0})
	ib.Push(Message{Kind: KindCasReq, Pass: 0, Start: 2, Length: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m, ok := ib.Await(ctx, func(m Message) bool { return m.Kind == KindCasDone })
	require.True(t, ok)
	assert.Equal(t, KindCasDone, m.Kind)

	// The CAS_REQ messages remain, in original order, for later consumers.
	m2, ok := ib.Await(ctx, func(m Message) bool { return m.Kind == KindCasReq })
	require.True(t, ok)
	assert.Equal(t, 0, m2.Start)
}

func TestInboxAwaitTimesOut(t *testing.T) {
	ib := NewInbox()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := ib.Await(ctx, func(m Message) bool { return m.Kind == KindCasDone })
	assert.False(t, ok)
}

func TestInboxAwaitUnblocksWhenMessageArrivesLater(t *testing.T) {
	ib := NewInbox()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		ib.Push(Message{Kind: KindCasDone, Pass: 1})
	}()

	m, ok := ib.Await(ctx, func(m Message) bool { return m.Kind == KindCasDone })
	require.True(t, ok)
	assert.Equal(t, 1, m.Pass)
}

func TestPumpParsesLinesIntoInbox(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	ib := NewInbox()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ib.Pump(ctx, ch)

	bus.Publish("noise before CAS_INIT:0:1100")

	m, ok := ib.Await(ctx, func(m Message) bool { return m.Kind == KindCasInit })
	require.True(t, ok)
	assert.Equal(t, "1100", m.Parities)
}

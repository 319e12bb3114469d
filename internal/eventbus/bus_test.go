package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DispatchOrder(t *testing.T) {
	bus := New(nil)

	var order []string
	var mu sync.Mutex
	record := func(label string) Handler {
		return func(Event) error {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return nil
		}
	}

	bus.Subscribe(Wildcard, "", record("wildcard"))
	bus.Subscribe(TypeStateChanged, "", record("typed"))
	bus.Subscribe(TypeStateChanged, "dev-1", record("device"))

	bus.Publish(StateChanged("dev-1", StatePlaying))

	assert.Equal(t, []string{"wildcard", "typed", "device"}, order)
}

func TestBus_DeviceFilterIsolatesOtherDevices(t *testing.T) {
	bus := New(nil)

	var calls int
	bus.Subscribe(TypeStateChanged, "dev-1", func(Event) error {
		calls++
		return nil
	})

	bus.Publish(StateChanged("dev-2", StatePlaying))
	assert.Equal(t, 0, calls)

	bus.Publish(StateChanged("dev-1", StatePlaying))
	assert.Equal(t, 1, calls)
}

func TestBus_FailingHandlerDoesNotStopOthers(t *testing.T) {
	bus := New(nil)

	var secondRan bool
	bus.Subscribe(TypeStop, "", func(Event) error {
		return assert.AnError
	})
	bus.Subscribe(TypeStop, "", func(Event) error {
		secondRan = true
		return nil
	})

	require.NotPanics(t, func() {
		bus.Publish(CmdStop("dev-1"))
	})
	assert.True(t, secondRan)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := New(nil)

	var secondRan bool
	bus.Subscribe(TypeStop, "", func(Event) error {
		panic("boom")
	})
	bus.Subscribe(TypeStop, "", func(Event) error {
		secondRan = true
		return nil
	})

	require.NotPanics(t, func() {
		bus.Publish(CmdStop("dev-1"))
	})
	assert.True(t, secondRan)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(nil)

	var calls int
	sub := bus.Subscribe(TypeStop, "", func(Event) error {
		calls++
		return nil
	})
	bus.Publish(CmdStop(""))
	bus.Unsubscribe(sub)
	bus.Publish(CmdStop(""))

	assert.Equal(t, 1, calls)
}

func TestBus_UnsubscribeDevice(t *testing.T) {
	bus := New(nil)

	var calls int
	bus.Subscribe(TypePlay, "dev-1", func(Event) error {
		calls++
		return nil
	})
	bus.Subscribe(TypeStop, "dev-1", func(Event) error {
		calls++
		return nil
	})

	bus.UnsubscribeDevice("dev-1")
	bus.Publish(CmdPlay("dev-1", "http://x", 0, nil))
	bus.Publish(CmdStop("dev-1"))

	assert.Equal(t, 0, calls)
}

func TestBus_PublishAsyncWaitsForAllHandlers(t *testing.T) {
	bus := New(nil)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		bus.Subscribe(TypeDSPChanged, "", func(Event) error {
			defer wg.Done()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		bus.PublishAsync(DSPChanged("dev-1", true, nil))
		close(done)
	}()

	wg.Wait()
	<-done
}

func TestBus_ReentrantPublish(t *testing.T) {
	bus := New(nil)

	var secondCalled bool
	bus.Subscribe(TypeStop, "", func(Event) error {
		bus.Publish(CmdPause("dev-1"))
		return nil
	})
	bus.Subscribe(TypePause, "", func(Event) error {
		secondCalled = true
		return nil
	})

	bus.Publish(CmdStop("dev-1"))
	assert.True(t, secondCalled)
}

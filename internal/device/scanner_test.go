package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu     sync.Mutex
	rounds [][]DiscoveredDevice
	calls  int
}

func (f *fakeBrowser) browseOnce(ctx context.Context, timeout time.Duration) ([]DiscoveredDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.rounds) {
		f.calls++
		return nil, nil
	}
	r := f.rounds[f.calls]
	f.calls++
	return r, nil
}

func newTestScanner(rounds [][]DiscoveredDevice, exclude []ExcludeRule) (*Scanner, *fakeBrowser) {
	fb := &fakeBrowser{rounds: rounds}
	s := NewScanner(time.Millisecond, time.Millisecond, 3, exclude, nil)
	s.browser = fb
	return s, fb
}

func TestScanner_FirstSightingFiresOnFound(t *testing.T) {
	dev := DiscoveredDevice{Identifier: "AA:BB@Kitchen", Name: "Kitchen", Address: "10.0.0.5"}
	s, _ := newTestScanner([][]DiscoveredDevice{{dev}}, nil)

	var found []DiscoveredDevice
	s.OnDeviceFound(func(d DiscoveredDevice) { found = append(found, d) })

	require.NoError(t, s.ScanOnce(context.Background()))
	assert.Len(t, found, 1)
	assert.Equal(t, dev.Identifier, found[0].Identifier)
}

func TestScanner_RepeatedSightingDoesNotRefire(t *testing.T) {
	dev := DiscoveredDevice{Identifier: "AA:BB@Kitchen", Name: "Kitchen", Address: "10.0.0.5"}
	s, _ := newTestScanner([][]DiscoveredDevice{{dev}, {dev}}, nil)

	foundCount := 0
	s.OnDeviceFound(func(DiscoveredDevice) { foundCount++ })

	require.NoError(t, s.ScanOnce(context.Background()))
	require.NoError(t, s.ScanOnce(context.Background()))
	assert.Equal(t, 1, foundCount)
}

func TestScanner_LostOnlyAfterConsecutiveMisses(t *testing.T) {
	dev := DiscoveredDevice{Identifier: "AA:BB@Kitchen", Name: "Kitchen", Address: "10.0.0.5"}
	s, _ := newTestScanner([][]DiscoveredDevice{
		{dev}, // seen
		{},    // miss 1
		{},    // miss 2
		{},    // miss 3 -> lost
	}, nil)

	var lost []string
	s.OnDeviceLost(func(id string) { lost = append(lost, id) })

	for i := 0; i < 4; i++ {
		require.NoError(t, s.ScanOnce(context.Background()))
	}
	assert.Equal(t, []string{dev.Identifier}, lost)
}

func TestScanner_ReappearanceBeforeThresholdResetsMisses(t *testing.T) {
	dev := DiscoveredDevice{Identifier: "AA:BB@Kitchen", Name: "Kitchen"}
	s, _ := newTestScanner([][]DiscoveredDevice{
		{dev},
		{},
		{dev}, // reappears before 3 misses, resets counter
		{},
		{},
	}, nil)

	var lost []string
	s.OnDeviceLost(func(id string) { lost = append(lost, id) })

	for i := 0; i < 5; i++ {
		require.NoError(t, s.ScanOnce(context.Background()))
	}
	assert.Empty(t, lost)
}

func TestScanner_ExcludeByIP(t *testing.T) {
	dev := DiscoveredDevice{Identifier: "AA:BB@Kitchen", Name: "Kitchen", Address: "10.0.0.5"}
	s, _ := newTestScanner([][]DiscoveredDevice{{dev}}, []ExcludeRule{{IP: "10.0.0.5"}})

	var found []DiscoveredDevice
	s.OnDeviceFound(func(d DiscoveredDevice) { found = append(found, d) })

	require.NoError(t, s.ScanOnce(context.Background()))
	assert.Empty(t, found)
	assert.Empty(t, s.Devices())
}

func TestScanner_ExcludeByNameSubstring(t *testing.T) {
	dev := DiscoveredDevice{Identifier: "id-1", Name: "Living Room TV", Address: "10.0.0.9"}
	s, _ := newTestScanner([][]DiscoveredDevice{{dev}}, []ExcludeRule{{Name: "tv"}})

	var found []DiscoveredDevice
	s.OnDeviceFound(func(d DiscoveredDevice) { found = append(found, d) })

	require.NoError(t, s.ScanOnce(context.Background()))
	assert.Empty(t, found)
}

func TestScanner_StartStopToggleIsRunning(t *testing.T) {
	s, _ := newTestScanner(nil, nil)
	assert.False(t, s.IsRunning())

	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())
}

package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type brokenProvider struct{}

func (brokenProvider) Name() string { return "broken" }

func (brokenProvider) Updates(context.Context) (<-chan Fix, error) {
	return nil, errors.New("no satellite receiver")
}

func TestTrackerThrottlesPerProvider(t *testing.T) {
	tracker := NewTracker(UpdatePolicy{MinTime: 10 * time.Second})

	require.True(t, tracker.Offer(fixAt(100, 0)))
	require.False(t, tracker.Offer(fixAt(10, 5*time.Second)), "inside min time")
	require.True(t, tracker.Offer(fixAt(10, 15*time.Second)))

	network := fixAt(5, 16*time.Second)
	network.Provider = ProviderNetwork
	require.True(t, tracker.Offer(network), "other providers are throttled separately")
}

func TestTrackerDoesNotThrottleBackwardsTimestamps(t *testing.T) {
	tracker := NewTracker(UpdatePolicy{MinTime: 10 * time.Second})

	require.True(t, tracker.Offer(fixAt(100, time.Minute)))
	require.True(t, tracker.Offer(fixAt(10, 0)), "older timestamp from a skewed client clock")

	current, ok := tracker.CurrentFix()
	require.True(t, ok)
	require.Equal(t, 10.0, current.Accuracy)
}

func TestTrackerThrottlesByDistance(t *testing.T) {
	tracker := NewTracker(UpdatePolicy{MinDistance: 50})

	require.True(t, tracker.Offer(fixAt(100, 0)))

	near := fixAt(10, time.Minute)
	near.Latitude += 0.0001 // ~11m
	require.False(t, tracker.Offer(near))

	far := fixAt(10, 2*time.Minute)
	far.Latitude += 0.01 // ~1.1km
	require.True(t, tracker.Offer(far))
}

func TestTrackerObserveAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gps := NewFeedProvider(ProviderGPS)
	network := NewFeedProvider(ProviderNetwork)
	tracker := NewTracker(UpdatePolicy{})

	tracker.Observe(ctx, brokenProvider{})
	tracker.Observe(ctx, gps)
	tracker.Observe(ctx, network)
	tracker.Observe(ctx, gps) // already observing
	require.Equal(t, []string{ProviderGPS, ProviderNetwork}, tracker.Observing())
	require.Equal(t, 1, gps.Subscribers())

	network.Push(Fix{Latitude: 1, Longitude: 2, Accuracy: 800})
	gps.Push(Fix{Latitude: 1.001, Longitude: 2.001, Accuracy: 12})

	require.Eventually(t, func() bool {
		fix, ok := tracker.CurrentFix()
		return ok && fix.Provider == ProviderGPS && fix.Accuracy == 12
	}, time.Second, 5*time.Millisecond)

	tracker.Stop()
	require.Empty(t, tracker.Observing())
	require.Eventually(t, func() bool { return gps.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	require.Zero(t, gps.Push(Fix{Accuracy: 1}), "no subscriber after stop")
	fix, ok := tracker.CurrentFix()
	require.True(t, ok)
	require.Equal(t, 12.0, fix.Accuracy)
}

func TestWaitForFix(t *testing.T) {
	tracker := NewTracker(UpdatePolicy{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tracker.WaitForFix(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		tracker.Offer(fixAt(30, 0))
	}()

	fix, err := tracker.WaitForFix(context.Background())
	require.NoError(t, err)
	require.Equal(t, 30.0, fix.Accuracy)
}

func TestFeedProviderStampsFixes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := NewFeedProvider(ProviderNetwork)

	updates, err := feed.Updates(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, feed.Push(Fix{Latitude: 3, Longitude: 4}))

	fix := <-updates
	require.Equal(t, ProviderNetwork, fix.Provider)
	require.False(t, fix.Time.IsZero())

	cancel()
	_, open := <-updates
	require.False(t, open)
}

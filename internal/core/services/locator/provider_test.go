package locator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/geotrack/internal/adapters/platform/simulated"
	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/geo"
	mocks "github.com/lcalzada-xor/geotrack/internal/mock"
)

// setupProvider wires a provider to a simulated device without auto-driving.
func setupProvider(t *testing.T, opts simulated.Options, providerOpts ...Option) (*Provider, *simulated.Device, *mocks.MockNotifier, *mocks.MockObserver) {
	t.Helper()

	device := simulated.NewDevice(opts)
	notifier := new(mocks.MockNotifier)
	observer := new(mocks.MockObserver)

	p, err := New(ports.Platform{
		Permissions: device,
		Manager:     device.Manager(),
		Fused:       device.Fused(),
		Notifier:    notifier,
	}, observer, providerOpts...)
	require.NoError(t, err)

	t.Cleanup(func() { device.Close() })
	return p, device, notifier, observer
}

func allEnabled(coarse, fine bool) simulated.Options {
	return simulated.Options{Coarse: coarse, Fine: fine, NetworkEnabled: true, GPSEnabled: true}
}

func TestNew_Validation(t *testing.T) {
	device := simulated.NewDevice(simulated.Options{})
	platform := ports.Platform{
		Permissions: device,
		Manager:     device.Manager(),
		Fused:       device.Fused(),
		Notifier:    new(mocks.MockNotifier),
	}

	_, err := New(ports.Platform{}, new(mocks.MockObserver))
	assert.Error(t, err)

	_, err = New(platform, nil)
	assert.Error(t, err)

	bad := domain.ObserverRequest()
	bad.FastestInterval = bad.Interval * 2
	_, err = New(platform, new(mocks.MockObserver), WithRequest(bad))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStart_PermissionDenied(t *testing.T) {
	tests := []struct {
		name         string
		coarse, fine bool
		policy       domain.PermissionPolicy
	}{
		{"any policy, nothing granted", false, false, domain.RequireAny},
		{"both policy, nothing granted", false, false, domain.RequireBoth},
		{"both policy, coarse only", true, false, domain.RequireBoth},
		{"both policy, fine only", false, true, domain.RequireBoth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, device, notifier, observer := setupProvider(t, allEnabled(tt.coarse, tt.fine), WithPolicy(tt.policy))
			notifier.On("Notify", mock.Anything, domain.PermissionDeniedMessage).Return()

			report, err := p.StartLocationUpdates(context.Background())
			assert.NoError(t, err)
			assert.False(t, report.PermissionGranted)
			assert.Empty(t, report.Subscribed)
			assert.Zero(t, device.ActiveCount())

			notifier.AssertNumberOfCalls(t, "Notify", 1)
			observer.AssertNotCalled(t, "OnLocationUpdate", mock.Anything)
			assert.False(t, p.Status().PermissionGranted)
		})
	}
}

func TestStart_SubscribesEnabledSources(t *testing.T) {
	opts := simulated.Options{Coarse: true, NetworkEnabled: true, GPSEnabled: false}
	p, device, notifier, _ := setupProvider(t, opts)

	report, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)

	assert.True(t, report.PermissionGranted)
	assert.Equal(t, []domain.Source{domain.SourceNetwork, domain.SourceFused}, report.Subscribed)
	assert.Equal(t, []domain.Source{domain.SourceGPS}, report.Skipped)

	assert.Equal(t, 1, device.Active(domain.SourceNetwork))
	assert.Equal(t, 0, device.Active(domain.SourceGPS))
	assert.Equal(t, 1, device.Active(domain.SourceFused))
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	status := p.Status()
	assert.True(t, status.Running)
	assert.Equal(t, domain.ModeObserver, status.Mode)
	assert.Equal(t, domain.RequireAny, status.Policy)
	assert.Equal(t, report.Subscribed, status.ActiveSources)
}

func TestStartStop_LeavesNoSubscriptions(t *testing.T) {
	grants := []struct{ coarse, fine bool }{{true, false}, {false, true}, {true, true}}

	for _, g := range grants {
		p, device, _, _ := setupProvider(t, allEnabled(g.coarse, g.fine))

		report, err := p.StartLocationUpdates(context.Background())
		require.NoError(t, err)
		assert.Len(t, report.Subscribed, 3)
		assert.Equal(t, 3, device.ActiveCount())

		p.StopLocationUpdates(context.Background())
		assert.Zero(t, device.ActiveCount())
		assert.False(t, p.Status().Running)
	}
}

func TestStop_WithoutStartIsNoop(t *testing.T) {
	p, device, notifier, _ := setupProvider(t, allEnabled(true, true))

	assert.NotPanics(t, func() {
		p.StopLocationUpdates(context.Background())
		p.StopLocationUpdates(context.Background())
	})
	assert.Zero(t, device.ActiveCount())
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestDelivery_ForwardedOncePerSource(t *testing.T) {
	p, device, _, observer := setupProvider(t, allEnabled(true, true))
	observer.On("OnLocationUpdate", mock.Anything).Return()

	_, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)

	sample := domain.Sample{Latitude: 30.0444, Longitude: 31.2357}
	assert.Equal(t, 1, device.Emit(domain.SourceNetwork, sample))
	assert.Equal(t, 1, device.Emit(domain.SourceGPS, sample))
	assert.Equal(t, 1, device.Emit(domain.SourceFused, sample))

	observer.AssertNumberOfCalls(t, "OnLocationUpdate", 3)
	for _, src := range domain.AllSources() {
		observer.AssertCalled(t, "OnLocationUpdate", mock.MatchedBy(func(s domain.Sample) bool {
			return s.Source == src && s.Latitude == sample.Latitude && s.Longitude == sample.Longitude
		}))
	}

	delivered := p.Status().Delivered
	assert.Equal(t, int64(1), delivered[domain.SourceNetwork])
	assert.Equal(t, int64(1), delivered[domain.SourceGPS])
	assert.Equal(t, int64(1), delivered[domain.SourceFused])
}

func TestDelivery_FusedForwardsLastOfBatch(t *testing.T) {
	p, device, _, observer := setupProvider(t, allEnabled(true, false))
	observer.On("OnLocationUpdate", mock.Anything).Return()

	_, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)

	device.EmitResult(nil)
	device.EmitResult(&domain.Result{})
	observer.AssertNotCalled(t, "OnLocationUpdate", mock.Anything)

	device.EmitResult(&domain.Result{Samples: []domain.Sample{
		{Latitude: 1, Longitude: 1},
		{Latitude: 2, Longitude: 2},
	}})

	observer.AssertNumberOfCalls(t, "OnLocationUpdate", 1)
	observer.AssertCalled(t, "OnLocationUpdate", mock.MatchedBy(func(s domain.Sample) bool {
		return s.Latitude == 2 && s.Longitude == 2 && s.Source == domain.SourceFused
	}))
}

func TestStart_SourceFailureKeepsOthers(t *testing.T) {
	p, device, _, _ := setupProvider(t, allEnabled(true, true))
	boom := errors.New("boom")
	device.FailSubscriptions(domain.SourceGPS, boom)

	report, err := p.StartLocationUpdates(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "gps")

	assert.Equal(t, []domain.Source{domain.SourceNetwork, domain.SourceFused}, report.Subscribed)
	assert.Equal(t, 0, device.Active(domain.SourceGPS))
	assert.Equal(t, 2, device.ActiveCount())
}

func TestStart_RestartDoesNotDuplicate(t *testing.T) {
	p, device, _, _ := setupProvider(t, allEnabled(true, true))

	for i := 0; i < 3; i++ {
		_, err := p.StartLocationUpdates(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, device.ActiveCount())
	for _, src := range domain.AllSources() {
		assert.Equal(t, 1, device.Active(src), "source %s", src)
	}
}

func TestShutdown(t *testing.T) {
	p, device, _, _ := setupProvider(t, allEnabled(true, true))

	_, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Zero(t, device.ActiveCount())
	assert.True(t, p.Status().Closed)

	_, err = p.StartLocationUpdates(context.Background())
	assert.ErrorIs(t, err, domain.ErrClosed)

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestLifecycleIsAuditedAndPublished(t *testing.T) {
	audit := new(mocks.MockAuditService)
	events := new(mocks.MockEventPublisher)
	opts := simulated.Options{Fine: true, GPSEnabled: true}
	p, _, _, _ := setupProvider(t, opts, WithAudit(audit), WithEvents(events))

	audit.On("Log", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	events.On("Publish", mock.Anything).Return()

	_, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)
	p.StopLocationUpdates(context.Background())

	audit.AssertCalled(t, "Log", mock.Anything, domain.ActionSourceSkipped, "network", "provider disabled")
	audit.AssertCalled(t, "Log", mock.Anything, domain.ActionStart, "gps", "")
	audit.AssertCalled(t, "Log", mock.Anything, domain.ActionStart, "fused", "")
	audit.AssertCalled(t, "Log", mock.Anything, domain.ActionStop, "gps", "")
	audit.AssertCalled(t, "Log", mock.Anything, domain.ActionStop, "fused", "")

	events.AssertCalled(t, "Publish", mock.MatchedBy(func(e domain.Event) bool {
		return e.Type == domain.EventSubscribed && e.Source == domain.SourceGPS && e.ID != ""
	}))
	events.AssertCalled(t, "Publish", mock.MatchedBy(func(e domain.Event) bool {
		return e.Type == domain.EventUnsubscribed && e.Source == domain.SourceFused
	}))
}

func TestUpdates_StreamsUntilCancelled(t *testing.T) {
	p, device, _, observer := setupProvider(t, allEnabled(true, true))
	observer.On("OnLocationUpdate", mock.Anything).Return()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Updates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, device.ActiveCount())

	device.Emit(domain.SourceGPS, domain.Sample{Latitude: 5, Longitude: 6})

	select {
	case s := <-ch:
		assert.Equal(t, domain.SourceGPS, s.Source)
		assert.Equal(t, 5.0, s.Latitude)
	case <-time.After(time.Second):
		t.Fatal("sample not streamed")
	}

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
	assert.Eventually(t, func() bool { return device.ActiveCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestUpdates_DropsWhenConsumerIsSlow(t *testing.T) {
	p, device, _, observer := setupProvider(t, allEnabled(true, true), WithStreamBuffer(1))
	observer.On("OnLocationUpdate", mock.Anything).Return()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Updates(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		device.Emit(domain.SourceNetwork, domain.Sample{Latitude: float64(i)})
	}

	// observer still sees everything, the stream keeps only what fits
	observer.AssertNumberOfCalls(t, "OnLocationUpdate", 5)
	assert.Len(t, ch, 1)
}

func TestUpdates_ClosingOneStreamKeepsOthers(t *testing.T) {
	p, device, _, observer := setupProvider(t, allEnabled(true, true))
	observer.On("OnLocationUpdate", mock.Anything).Return()

	_, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	ch1, err := p.Updates(ctx1)
	require.NoError(t, err)
	ch2, err := p.Updates(ctx2)
	require.NoError(t, err)
	for _, src := range domain.AllSources() {
		assert.Equal(t, 1, device.Active(src), "source %s", src)
	}

	cancel1()
	select {
	case _, open := <-ch1:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("first stream not closed after cancel")
	}
	assert.Equal(t, 3, device.ActiveCount())

	assert.Equal(t, 1, device.Emit(domain.SourceGPS, domain.Sample{Latitude: 7, Longitude: 8}))
	select {
	case s := <-ch2:
		assert.Equal(t, 7.0, s.Latitude)
	case <-time.After(time.Second):
		t.Fatal("second stream received nothing")
	}
	observer.AssertNumberOfCalls(t, "OnLocationUpdate", 1)

	// the explicit start still holds the subscriptions after every stream ends
	cancel2()
	for range ch2 {
	}
	assert.Equal(t, 3, device.ActiveCount())
	p.StopLocationUpdates(context.Background())
	assert.Zero(t, device.ActiveCount())
}

func TestUpdates_LastStreamReleasesSubscriptions(t *testing.T) {
	p, device, _, _ := setupProvider(t, allEnabled(true, true))

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())

	ch1, err := p.Updates(ctx1)
	require.NoError(t, err)
	ch2, err := p.Updates(ctx2)
	require.NoError(t, err)
	assert.Equal(t, 3, device.ActiveCount())

	// stop from an operator does not cut off open streams
	p.StopLocationUpdates(context.Background())
	assert.Equal(t, 3, device.ActiveCount())

	cancel1()
	<-ch1
	assert.Equal(t, 3, device.ActiveCount())

	cancel2()
	<-ch2
	assert.Eventually(t, func() bool { return device.ActiveCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.False(t, p.Status().Running)
}

func TestUpdates_ShutdownEndsStreams(t *testing.T) {
	p, device, _, _ := setupProvider(t, allEnabled(true, true))

	ch, err := p.Updates(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, p.Shutdown(context.Background()))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown blocked on an open stream")
	}
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, device.ActiveCount())

	_, err = p.Updates(context.Background())
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestStart_DeniedRestartKeepsSubscriptions(t *testing.T) {
	p, device, notifier, _ := setupProvider(t, allEnabled(true, false))
	notifier.On("Notify", mock.Anything, domain.PermissionDeniedMessage).Return()

	_, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)

	device.SetGranted(domain.PermissionCoarse, false)
	report, err := p.StartLocationUpdates(context.Background())
	require.NoError(t, err)
	assert.False(t, report.PermissionGranted)

	status := p.Status()
	assert.True(t, status.Running)
	assert.False(t, status.PermissionGranted)
	assert.Equal(t, 3, device.ActiveCount())
}

func TestUpdates_PermissionDenied(t *testing.T) {
	p, device, notifier, _ := setupProvider(t, allEnabled(false, false))
	notifier.On("Notify", mock.Anything, domain.PermissionDeniedMessage).Return()

	ch, err := p.Updates(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Nil(t, ch)
	assert.Zero(t, device.ActiveCount())
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestCurrentLocation(t *testing.T) {
	opts := allEnabled(true, true)
	opts.Position = geo.NewStaticProvider(24.7136, 46.6753)
	p, device, notifier, _ := setupProvider(t, opts)

	sample, err := p.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24.7136, sample.Latitude)
	assert.Equal(t, 46.6753, sample.Longitude)
	assert.Equal(t, domain.SourceFused, sample.Source)

	device.SetNoFix(true)
	_, err = p.CurrentLocation(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoLocation)

	device.SetGranted(domain.PermissionCoarse, false)
	device.SetGranted(domain.PermissionFine, false)
	notifier.On("Notify", mock.Anything, domain.PermissionDeniedMessage).Return()
	_, err = p.CurrentLocation(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}
